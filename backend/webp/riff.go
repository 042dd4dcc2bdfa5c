package webp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/gogpu/ganim/backend"
)

// Container errors.
var (
	ErrInvalidRIFF = errors.New("webp: not a valid WebP file (bad RIFF header)")
	ErrTruncated   = errors.New("webp: data truncated")
	ErrInvalidVP8X = errors.New("webp: invalid VP8X chunk")
	ErrInvalidANIM = errors.New("webp: invalid ANIM chunk")
	ErrInvalidANMF = errors.New("webp: invalid ANMF chunk")
)

const (
	riffHeaderSize  = 12
	chunkHeaderSize = 8
	vp8xChunkSize   = 10
	animChunkSize   = 6
	anmfHeaderSize  = 16

	flagAnimation = 1 << 1
	flagAlpha     = 1 << 4

	// maxFrames bounds the frame table of hostile inputs.
	maxFrames = 10000
)

type chunk struct {
	id   string
	data []byte
}

// readChunk reads the chunk at the start of b and returns it with the
// number of bytes consumed, padding included.
func readChunk(b []byte) (chunk, int, error) {
	if len(b) < chunkHeaderSize {
		return chunk{}, 0, ErrTruncated
	}
	size := int(binary.LittleEndian.Uint32(b[4:8]))
	end := chunkHeaderSize + size
	if size < 0 || end > len(b) {
		return chunk{}, 0, fmt.Errorf("%w: %q chunk of %d bytes", ErrTruncated, b[:4], size)
	}
	n := end
	if size%2 != 0 && n < len(b) {
		n++
	}
	return chunk{id: string(b[:4]), data: b[chunkHeaderSize:end]}, n, nil
}

func uint24(b []byte) int {
	return int(b[0]) | int(b[1])<<8 | int(b[2])<<16
}

// frame is one ANMF frame (or the only image of a still file).
type frame struct {
	rect     image.Rectangle
	duration time.Duration
	info     backend.FrameInfo
	// bitstream is the VP8 or VP8L chunk payload.
	bitstream []byte
	lossless  bool
	// alpha is the ALPH chunk payload of a lossy frame, if any.
	alpha []byte
}

type container struct {
	width, height int
	loops         int
	frames        []frame
}

// parse walks the RIFF container.
func parse(data []byte) (*container, error) {
	if len(data) < riffHeaderSize || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WEBP" {
		return nil, ErrInvalidRIFF
	}
	end := int(binary.LittleEndian.Uint32(data[4:8])) + 8
	if end > len(data) || end < riffHeaderSize {
		end = len(data)
	}
	payload := data[riffHeaderSize:end]

	first, n, err := readChunk(payload)
	if err != nil {
		return nil, err
	}
	switch first.id {
	case "VP8X":
		return parseExtended(first, payload[n:])
	case "VP8 ", "VP8L":
		return parseSimple(data, first)
	default:
		return nil, fmt.Errorf("webp: unknown first chunk %q", first.id)
	}
}

// parseSimple handles a still VP8 or VP8L file.
func parseSimple(data []byte, c chunk) (*container, error) {
	cfg, err := decodeConfig(data)
	if err != nil {
		return nil, err
	}
	f := frame{
		rect:      image.Rect(0, 0, cfg.Width, cfg.Height),
		bitstream: c.data,
		lossless:  c.id == "VP8L",
	}
	return still(cfg.Width, cfg.Height, f), nil
}

func parseExtended(vp8x chunk, rest []byte) (*container, error) {
	if len(vp8x.data) < vp8xChunkSize {
		return nil, ErrInvalidVP8X
	}
	flags := vp8x.data[0]
	c := &container{
		width:  uint24(vp8x.data[4:7]) + 1,
		height: uint24(vp8x.data[7:10]) + 1,
		loops:  backend.LoopForever,
	}

	if flags&flagAnimation == 0 {
		f, err := parseImageChunks(rest)
		if err != nil {
			return nil, err
		}
		f.rect = image.Rect(0, 0, c.width, c.height)
		return still(c.width, c.height, f), nil
	}

	for pos := 0; pos+chunkHeaderSize <= len(rest); {
		ch, n, err := readChunk(rest[pos:])
		if err != nil {
			return nil, err
		}
		switch ch.id {
		case "ANIM":
			if len(ch.data) < animChunkSize {
				return nil, ErrInvalidANIM
			}
			// 0 repeats forever, anything else is the number of plays.
			c.loops = int(binary.LittleEndian.Uint16(ch.data[4:6]))
		case "ANMF":
			if len(c.frames) >= maxFrames {
				return nil, fmt.Errorf("webp: more than %d frames", maxFrames)
			}
			f, err := parseANMF(ch.data)
			if err != nil {
				return nil, fmt.Errorf("frame %d: %w", len(c.frames), err)
			}
			c.frames = append(c.frames, f)
		}
		pos += n
	}
	if len(c.frames) == 0 {
		return nil, backend.ErrNoFrames
	}
	return c, nil
}

func parseANMF(data []byte) (frame, error) {
	if len(data) < anmfHeaderSize {
		return frame{}, ErrInvalidANMF
	}
	x := uint24(data[0:3]) * 2
	y := uint24(data[3:6]) * 2
	w := uint24(data[6:9]) + 1
	h := uint24(data[9:12]) + 1
	flags := data[15]

	f, err := parseImageChunks(data[anmfHeaderSize:])
	if err != nil {
		return frame{}, err
	}
	f.rect = image.Rect(x, y, x+w, y+h)
	f.duration = time.Duration(uint24(data[12:15])) * time.Millisecond
	f.info = backend.FrameInfo{Bounds: f.rect, Dispose: backend.DisposeNone, Blend: backend.BlendAlpha}
	if flags&0x01 != 0 {
		f.info.Dispose = backend.DisposeBackground
	}
	if flags&0x02 != 0 {
		f.info.Blend = backend.BlendNone
	}
	return f, nil
}

// parseImageChunks picks the ALPH and VP8/VP8L chunks out of a frame payload.
func parseImageChunks(b []byte) (frame, error) {
	var f frame
	for pos := 0; pos+chunkHeaderSize <= len(b); {
		ch, n, err := readChunk(b[pos:])
		if err != nil {
			return frame{}, err
		}
		switch ch.id {
		case "ALPH":
			f.alpha = ch.data
		case "VP8 ":
			f.bitstream = ch.data
		case "VP8L":
			f.bitstream = ch.data
			f.lossless = true
		}
		if f.bitstream != nil {
			return f, nil
		}
		pos += n
	}
	return frame{}, fmt.Errorf("%w: no VP8 or VP8L bitstream", ErrTruncated)
}

func still(width, height int, f frame) *container {
	f.duration = StillDuration
	f.info = backend.FrameInfo{Bounds: f.rect, Blend: backend.BlendNone}
	return &container{width: width, height: height, loops: 1, frames: []frame{f}}
}

// wrap rebuilds a standalone WebP file around a frame's bitstream so the
// still-image decoder can read it.
func wrap(f *frame) []byte {
	var body []byte
	appendChunk := func(id string, data []byte) {
		body = append(body, id...)
		body = binary.LittleEndian.AppendUint32(body, uint32(len(data)))
		body = append(body, data...)
		if len(data)%2 != 0 {
			body = append(body, 0)
		}
	}

	switch {
	case f.lossless:
		appendChunk("VP8L", f.bitstream)
	case f.alpha != nil:
		hdr := make([]byte, vp8xChunkSize)
		hdr[0] = flagAlpha
		w, h := f.rect.Dx()-1, f.rect.Dy()-1
		hdr[4], hdr[5], hdr[6] = byte(w), byte(w>>8), byte(w>>16)
		hdr[7], hdr[8], hdr[9] = byte(h), byte(h>>8), byte(h>>16)
		appendChunk("VP8X", hdr)
		appendChunk("ALPH", f.alpha)
		appendChunk("VP8 ", f.bitstream)
	default:
		appendChunk("VP8 ", f.bitstream)
	}

	out := make([]byte, 0, riffHeaderSize+len(body))
	out = append(out, "RIFF"...)
	out = binary.LittleEndian.AppendUint32(out, uint32(4+len(body)))
	out = append(out, "WEBP"...)
	return append(out, body...)
}
