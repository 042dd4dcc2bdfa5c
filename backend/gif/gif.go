// Package gif registers a GIF backend.
//
// The whole file is decoded up front with image/gif; frames keep their
// paletted pixels and are expanded to RGBA only when rendered.
package gif

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"time"

	"golang.org/x/image/draw"

	"github.com/gogpu/ganim/backend"
)

// Magic is the signature shared by GIF87a and GIF89a.
const Magic = "GIF8"

// Browsers show frames with very short delays for 100ms instead.
const (
	minDelay     = 20 * time.Millisecond
	clampedDelay = 100 * time.Millisecond
)

func init() {
	backend.Register("gif", Magic, func(data []byte) (backend.Backend, error) {
		return Decode(data, Options{})
	})
}

// Options configures Decode.
type Options struct {
	// KeepShortDelays disables the browser-compatible delay clamp and
	// uses the encoded delays as-is.
	KeepShortDelays bool
}

// Backend is a decoded GIF.
type Backend struct {
	width, height int
	loops         int
	frames        []*image.Paletted
	durations     []time.Duration
	infos         []backend.FrameInfo
}

var _ backend.Backend = (*Backend)(nil)

// Decode parses a complete GIF.
func Decode(data []byte, opts Options) (*Backend, error) {
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gif: %w", err)
	}
	if len(g.Image) == 0 {
		return nil, backend.ErrNoFrames
	}

	b := &Backend{
		width:     g.Config.Width,
		height:    g.Config.Height,
		loops:     loopCount(g.LoopCount),
		frames:    g.Image,
		durations: make([]time.Duration, len(g.Image)),
		infos:     make([]backend.FrameInfo, len(g.Image)),
	}
	if b.width <= 0 || b.height <= 0 {
		var r image.Rectangle
		for _, p := range g.Image {
			r = r.Union(p.Rect)
		}
		b.width, b.height = r.Max.X, r.Max.Y
	}

	canvas := image.Rect(0, 0, b.width, b.height)
	for i, p := range g.Image {
		var delay, disposal int
		if i < len(g.Delay) {
			delay = g.Delay[i]
		}
		if i < len(g.Disposal) {
			disposal = int(g.Disposal[i])
		}
		b.durations[i] = frameDelay(delay, opts.KeepShortDelays)
		b.infos[i] = backend.FrameInfo{
			Bounds:  p.Rect.Intersect(canvas),
			Dispose: disposeMethod(byte(disposal)),
			Blend:   backend.BlendAlpha,
		}
	}
	return b, nil
}

// loopCount converts the NETSCAPE2.0 repeat count, where 0 repeats forever
// and a missing extension (-1) plays once.
func loopCount(n int) int {
	switch {
	case n == 0:
		return backend.LoopForever
	case n < 0:
		return 1
	default:
		return n + 1
	}
}

func frameDelay(centis int, keepShort bool) time.Duration {
	d := time.Duration(centis) * 10 * time.Millisecond
	if !keepShort && d < minDelay {
		return clampedDelay
	}
	return d
}

func disposeMethod(m byte) backend.DisposeMethod {
	switch m {
	case gif.DisposalBackground:
		return backend.DisposeBackground
	case gif.DisposalPrevious:
		return backend.DisposePrevious
	default:
		return backend.DisposeNone
	}
}

func (b *Backend) FrameCount() int { return len(b.frames) }
func (b *Backend) Width() int      { return b.width }
func (b *Backend) Height() int     { return b.height }
func (b *Backend) LoopCount() int  { return b.loops }

func (b *Backend) FrameDuration(i int) time.Duration { return b.durations[i] }

func (b *Backend) FrameInfo(i int) backend.FrameInfo { return b.infos[i] }

// RenderFrame expands frame i's palette into dst. Transparent palette
// entries stay transparent.
func (b *Backend) RenderFrame(i int, dst *image.RGBA) error {
	if err := backend.CheckIndex(b, i); err != nil {
		return err
	}
	r := dst.Bounds().Intersect(b.frames[i].Rect)
	draw.Draw(dst, r, b.frames[i], r.Min, draw.Src)
	return nil
}
