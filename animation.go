package ganim

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync/atomic"
	"time"

	"github.com/gogpu/ganim/backend"
	"github.com/gogpu/ganim/cache"
	"github.com/gogpu/ganim/compose"
	"github.com/gogpu/ganim/decode"
	"github.com/gogpu/ganim/internal/logging"
	"github.com/gogpu/ganim/internal/pixpool"
	"github.com/gogpu/ganim/playback"
	"github.com/gogpu/ganim/schedule"
)

// ErrInvalidAnimation is returned by New for a backend without frames or
// with an empty canvas.
var ErrInvalidAnimation = errors.New("ganim: invalid animation")

// Stats combines the counters of an animation's cache and decoder.
type Stats struct {
	Cache  cache.Stats
	Decode decode.Stats
}

// Animation wires one animated image to its frame cache, compositor and
// decode scheduler. Nothing is shared between animations.
//
// Animation is safe for concurrent use. Players created by NewPlayer are not.
type Animation struct {
	b      backend.Backend
	format string
	opts   options

	sched  *schedule.Scheduler
	pool   *pixpool.Pool
	comp   *compose.Compositor
	frames *cache.FrameCache
	dec    *decode.Scheduler

	closed atomic.Bool
}

// New creates an animation over an already opened backend.
func New(b backend.Backend, opts ...Option) (*Animation, error) {
	return newAnimation(b, "", opts)
}

// Open detects the format of data with the registered backends and opens
// it. Formats are registered by importing their package:
//
//	import _ "github.com/gogpu/ganim/backend/webp"
func Open(data []byte, opts ...Option) (*Animation, error) {
	b, format, err := backend.Open(data)
	if err != nil {
		return nil, err
	}
	return newAnimation(b, format, opts)
}

// OpenFile reads and opens the animated image at path.
func OpenFile(path string, opts ...Option) (*Animation, error) {
	b, format, err := backend.OpenFile(path)
	if err != nil {
		return nil, err
	}
	return newAnimation(b, format, opts)
}

func newAnimation(b backend.Backend, format string, opts []Option) (*Animation, error) {
	if b == nil {
		return nil, fmt.Errorf("%w: nil backend", ErrInvalidAnimation)
	}
	if b.FrameCount() < 1 {
		return nil, fmt.Errorf("%w: no frames", ErrInvalidAnimation)
	}
	if b.Width() <= 0 || b.Height() <= 0 {
		return nil, fmt.Errorf("%w: canvas %dx%d", ErrInvalidAnimation, b.Width(), b.Height())
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	a := &Animation{
		b:      b,
		format: format,
		opts:   o,
		sched:  schedule.New(b),
		pool:   pixpool.New(o.poolBuckets),
		frames: cache.New(o.budget),
	}
	a.comp = compose.New(b, a.pool)
	a.dec = decode.New(a.comp, a.frames, decode.WithWorkers(o.workers))

	logging.L().Info("ganim: animation opened",
		"format", format,
		"frames", b.FrameCount(),
		"width", b.Width(),
		"height", b.Height(),
		"loops", b.LoopCount(),
		"budget", o.budget)
	return a, nil
}

// Backend returns the underlying backend.
func (a *Animation) Backend() backend.Backend { return a.b }

// Format returns the registered format name, or "" for New.
func (a *Animation) Format() string { return a.format }

// Width returns the canvas width.
func (a *Animation) Width() int { return a.b.Width() }

// Height returns the canvas height.
func (a *Animation) Height() int { return a.b.Height() }

// FrameCount returns the number of frames.
func (a *Animation) FrameCount() int { return a.b.FrameCount() }

// LoopCount returns the loop count, or backend.LoopForever.
func (a *Animation) LoopCount() int { return a.b.LoopCount() }

// Duration returns the length of the whole animation, or schedule.NoNext
// if it loops forever.
func (a *Animation) Duration() time.Duration { return a.sched.TotalDuration() }

// Scheduler returns the frame timing of the animation.
func (a *Animation) Scheduler() *schedule.Scheduler { return a.sched }

// Cache returns the frame cache.
func (a *Animation) Cache() *cache.FrameCache { return a.frames }

// Decoder returns the decode scheduler.
func (a *Animation) Decoder() *decode.Scheduler { return a.dec }

// FrameAt returns the frame shown at animation time t, or schedule.Done.
func (a *Animation) FrameAt(t time.Duration) int { return a.sched.FrameForTime(t) }

// Frame returns the cached frame i, or nil if it is not decoded yet.
// It never blocks. The caller must Release the result.
func (a *Animation) Frame(i int) *cache.Bitmap { return a.frames.Get(i) }

// RequestFrame returns a future for frame i, decoding it if needed.
func (a *Animation) RequestFrame(i int) *decode.Future { return a.dec.RequestDecode(i) }

// Prefetch starts decoding frame i without waiting for it.
func (a *Animation) Prefetch(i int) bool { return a.dec.Prefetch(i) }

// Render decodes frame i and waits for it. The caller must Release the
// result.
func (a *Animation) Render(ctx context.Context, i int) (*cache.Bitmap, error) {
	f := a.dec.RequestDecode(i)
	bmp, err := f.Wait(ctx)
	if err == nil {
		return bmp, nil
	}
	if !f.Cancel() {
		// Resolved while we gave up.
		if late, lateErr := f.Result(); lateErr == nil {
			late.Release()
		}
	}
	return nil, err
}

// Poster renders frame 0 scaled to fit a maxSide square, for display until
// playback has its first frame.
func (a *Animation) Poster(ctx context.Context, maxSide int) (*image.NRGBA, error) {
	bmp, err := a.Render(ctx, 0)
	if err != nil {
		return nil, err
	}
	defer bmp.Release()
	return playback.PosterFromImage(bmp.Image(), maxSide), nil
}

// NewPlayer creates a playback driver drawing onto surface. The animation's
// prefetch setting applies unless opts override it.
func (a *Animation) NewPlayer(surface playback.Surface, opts ...playback.Option) *playback.Driver {
	all := append([]playback.Option{playback.WithPrefetch(a.opts.prefetch)}, opts...)
	return playback.New(a.sched, a.dec, surface, all...)
}

// Stats returns the cache and decoder counters.
func (a *Animation) Stats() Stats {
	return Stats{
		Cache:  a.frames.Stats(),
		Decode: a.dec.Stats(),
	}
}

// Close stops decoding, fails pending requests and drops every cached
// frame. Handles still held by callers stay valid until released.
// Close is safe to call multiple times.
func (a *Animation) Close() {
	if !a.closed.CompareAndSwap(false, true) {
		return
	}
	a.dec.Close()
	a.frames.Clear()
	a.pool.Drop()
}
