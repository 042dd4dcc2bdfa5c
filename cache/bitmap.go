package cache

import (
	"image"
	"sync/atomic"

	"github.com/gogpu/ganim/internal/pixpool"
)

// Bitmap is a reference-counted, composited canvas for one frame.
//
// A new Bitmap holds one reference owned by its creator. Every holder
// releases its reference exactly once; the last Release hands the pixels to
// the free hook and Image returns nil from then on. The pixels are never
// written after the Bitmap is published.
type Bitmap struct {
	frame int
	size  int64
	refs  atomic.Int32
	pix   atomic.Pointer[image.RGBA]
	free  func(*image.RGBA)
}

// NewBitmap wraps img as the composited canvas of frame. free, if not nil,
// receives the pixels when the last reference is released.
func NewBitmap(frame int, img *image.RGBA, free func(*image.RGBA)) *Bitmap {
	b := &Bitmap{
		frame: frame,
		size:  pixpool.SizeOf(img.Bounds()),
		free:  free,
	}
	b.refs.Store(1)
	b.pix.Store(img)
	return b
}

// Frame returns the frame index the canvas belongs to.
func (b *Bitmap) Frame() int { return b.frame }

// SizeBytes returns the pixel storage size. It stays valid after release.
func (b *Bitmap) SizeBytes() int64 { return b.size }

// Image returns the pixels, or nil once the bitmap has been freed.
// Callers must treat the image as read-only.
func (b *Bitmap) Image() *image.RGBA { return b.pix.Load() }

// RefCount returns the number of outstanding references.
func (b *Bitmap) RefCount() int { return int(b.refs.Load()) }

// Retain adds a reference and returns b for chaining.
// Retaining a freed bitmap panics.
func (b *Bitmap) Retain() *Bitmap {
	if b.refs.Add(1) <= 1 {
		panic("cache: Retain on a released bitmap")
	}
	return b
}

// Release drops one reference. The pixels are freed when the count reaches
// zero. Releasing more often than retaining panics.
func (b *Bitmap) Release() {
	n := b.refs.Add(-1)
	switch {
	case n < 0:
		panic("cache: Bitmap released too many times")
	case n == 0:
		img := b.pix.Swap(nil)
		if img != nil && b.free != nil {
			b.free(img)
		}
	}
}
