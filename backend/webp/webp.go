// Package webp registers an animated WebP backend.
//
// The RIFF container is demuxed once at open time. Each frame's bitstream is
// decoded on demand by golang.org/x/image/webp, and recently decoded frames
// are kept in a small LRU so that replaying a dependency chain does not
// decode the same bitstream twice.
package webp

import (
	"bytes"
	"fmt"
	"image"
	"time"

	"golang.org/x/image/draw"
	xwebp "golang.org/x/image/webp"

	"github.com/gogpu/ganim/backend"
	"github.com/gogpu/ganim/internal/lru"
)

// Magic matches the RIFF header of any WebP file.
const Magic = "RIFF????WEBP"

// StillDuration is the display time given to the single frame of a still
// WebP file.
const StillDuration = 100 * time.Millisecond

// DefaultDecodedFrames is the default soft limit of decoded frames kept per
// animation.
const DefaultDecodedFrames = 8

func init() {
	backend.Register("webp", Magic, func(data []byte) (backend.Backend, error) {
		return Decode(data, Options{})
	})
}

// Options configures Decode.
type Options struct {
	// DecodedFrames is the soft limit of decoded frame images kept in
	// memory. Zero means DefaultDecodedFrames; negative disables the cache.
	DecodedFrames int
}

// Backend is a demuxed WebP file.
type Backend struct {
	c       *container
	decoded *lru.Cache[int, image.Image]
}

var _ backend.Backend = (*Backend)(nil)

// Decode demuxes a complete WebP file. Frame bitstreams are not decoded
// until rendered.
func Decode(data []byte, opts Options) (*Backend, error) {
	c, err := parse(data)
	if err != nil {
		return nil, err
	}
	b := &Backend{c: c}
	switch n := opts.DecodedFrames; {
	case n == 0:
		b.decoded = lru.New[int, image.Image](DefaultDecodedFrames)
	case n > 0:
		b.decoded = lru.New[int, image.Image](n)
	}
	return b, nil
}

func decodeConfig(data []byte) (image.Config, error) {
	cfg, err := xwebp.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return image.Config{}, fmt.Errorf("webp: %w", err)
	}
	return cfg, nil
}

func (b *Backend) FrameCount() int { return len(b.c.frames) }
func (b *Backend) Width() int      { return b.c.width }
func (b *Backend) Height() int     { return b.c.height }
func (b *Backend) LoopCount() int  { return b.c.loops }

func (b *Backend) FrameDuration(i int) time.Duration { return b.c.frames[i].duration }

func (b *Backend) FrameInfo(i int) backend.FrameInfo { return b.c.frames[i].info }

// DecodedStats returns the hit and miss counts of the decoded frame cache.
func (b *Backend) DecodedStats() (hits, misses uint64) {
	if b.decoded == nil {
		return 0, 0
	}
	return b.decoded.Stats()
}

// RenderFrame decodes frame i and copies it into dst.
func (b *Backend) RenderFrame(i int, dst *image.RGBA) error {
	if err := backend.CheckIndex(b, i); err != nil {
		return err
	}
	img, err := b.frameImage(i)
	if err != nil {
		return err
	}
	f := &b.c.frames[i]
	r := dst.Bounds().Intersect(f.rect)
	draw.Draw(dst, r, img, img.Bounds().Min.Add(r.Min.Sub(f.rect.Min)), draw.Src)
	return nil
}

func (b *Backend) frameImage(i int) (image.Image, error) {
	if b.decoded != nil {
		if img, ok := b.decoded.Get(i); ok {
			return img, nil
		}
	}
	f := &b.c.frames[i]
	img, err := xwebp.Decode(bytes.NewReader(wrap(f)))
	if err != nil {
		return nil, fmt.Errorf("webp: frame %d: %w", i, err)
	}
	if got := img.Bounds(); got.Dx() != f.rect.Dx() || got.Dy() != f.rect.Dy() {
		return nil, fmt.Errorf("webp: frame %d: bitstream is %dx%d, frame header says %dx%d",
			i, got.Dx(), got.Dy(), f.rect.Dx(), f.rect.Dy())
	}
	if b.decoded != nil {
		b.decoded.Set(i, img)
	}
	return img, nil
}
