// Package pixpool recycles RGBA pixel buffers between compositions.
package pixpool

import (
	"image"
	"sync"
)

// BytesPerPixel is the storage cost of one RGBA pixel.
const BytesPerPixel = 4

// Pool is a thread-safe pool for reusing *image.RGBA buffers.
//
// Pool groups buffers by their dimensions, so a full-canvas buffer released
// by an evicted frame is handed to the next composition of the same
// animation. Buffers are cleared to transparent before reuse.
//
// Thread safety: All methods are safe for concurrent use.
type Pool struct {
	mu      sync.Mutex
	buckets map[poolKey][]*image.RGBA
	maxSize int // max buffers per bucket
}

type poolKey struct {
	width  int
	height int
}

// New creates a pool retaining at most maxPerBucket buffers of each size.
// A maxPerBucket of 0 means unlimited (use with caution).
func New(maxPerBucket int) *Pool {
	return &Pool{
		buckets: make(map[poolKey][]*image.RGBA),
		maxSize: maxPerBucket,
	}
}

// Get returns a transparent buffer whose bounds equal r.
// It returns nil if r is empty.
func (p *Pool) Get(r image.Rectangle) *image.RGBA {
	if r.Empty() {
		return nil
	}
	key := poolKey{width: r.Dx(), height: r.Dy()}

	p.mu.Lock()
	bucket := p.buckets[key]
	if len(bucket) > 0 {
		buf := bucket[len(bucket)-1]
		bucket[len(bucket)-1] = nil
		p.buckets[key] = bucket[:len(bucket)-1]
		p.mu.Unlock()

		clear(buf.Pix)
		// Same size, so re-basing the rectangle keeps PixOffset valid.
		buf.Rect = r
		return buf
	}
	p.mu.Unlock()

	return image.NewRGBA(r)
}

// Put returns a buffer to the pool. The caller must not touch buf afterwards.
// If buf is nil or its bucket is at max capacity, the buffer is discarded.
func (p *Pool) Put(buf *image.RGBA) {
	if buf == nil || buf.Rect.Empty() {
		return
	}
	key := poolKey{width: buf.Rect.Dx(), height: buf.Rect.Dy()}

	p.mu.Lock()
	defer p.mu.Unlock()

	bucket := p.buckets[key]
	if p.maxSize > 0 && len(bucket) >= p.maxSize {
		return
	}
	p.buckets[key] = append(bucket, buf)
}

// Len returns the number of buffers currently retained.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, b := range p.buckets {
		n += len(b)
	}
	return n
}

// Drop releases every retained buffer to the garbage collector.
func (p *Pool) Drop() {
	p.mu.Lock()
	p.buckets = make(map[poolKey][]*image.RGBA)
	p.mu.Unlock()
}

// SizeOf returns the byte size of an RGBA buffer covering r.
func SizeOf(r image.Rectangle) int64 {
	return int64(r.Dx()) * int64(r.Dy()) * BytesPerPixel
}
