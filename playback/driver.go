package playback

import (
	"context"
	"fmt"
	"image"
	"sync/atomic"
	"time"

	"github.com/gogpu/ganim/cache"
	"github.com/gogpu/ganim/decode"
	"github.com/gogpu/ganim/internal/logging"
	"github.com/gogpu/ganim/schedule"
)

// DefaultPrefetch is the number of frames prefetched ahead of the current one.
const DefaultPrefetch = 3

// PosterFrame is the frame index passed to Surface.DrawFrame for the poster.
const PosterFrame = -1

// Surface receives the frames to display. img is only valid for the
// duration of the call.
type Surface interface {
	DrawFrame(frame int, img image.Image) error
}

// SurfaceFunc adapts a function to Surface.
type SurfaceFunc func(frame int, img image.Image) error

func (f SurfaceFunc) DrawFrame(frame int, img image.Image) error { return f(frame, img) }

// Outcome is what a tick put on the surface.
type Outcome uint8

const (
	// OutcomeHit: the current frame came from the cache.
	OutcomeHit Outcome = iota
	// OutcomeAsync: the current frame arrived from a finished decode.
	OutcomeAsync
	// OutcomeFallback: the last drawn frame is kept while decoding.
	OutcomeFallback
	// OutcomePoster: the poster is shown while decoding.
	OutcomePoster
	// OutcomeNothing: nothing could be drawn yet.
	OutcomeNothing
	// OutcomeDone: the animation has finished.
	OutcomeDone
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeHit:
		return "hit"
	case OutcomeAsync:
		return "async"
	case OutcomeFallback:
		return "fallback"
	case OutcomePoster:
		return "poster"
	case OutcomeNothing:
		return "nothing"
	case OutcomeDone:
		return "done"
	default:
		return fmt.Sprintf("Outcome(%d)", uint8(o))
	}
}

// TickResult describes one tick.
type TickResult struct {
	// Frame is the frame due at the tick's time, or schedule.Done.
	Frame int
	// Outcome is what was drawn.
	Outcome Outcome
	// Next is the animation time of the next frame boundary or of the
	// end of the animation, or schedule.NoNext if nothing changes anymore.
	Next time.Duration
}

// Stats is a snapshot of driver counters.
type Stats struct {
	Ticks     uint64
	Hits      uint64
	Misses    uint64
	Async     uint64
	Fallbacks uint64
	Posters   uint64
	Nothing   uint64
	Stale     uint64 // decode results that arrived for a frame no longer due
	Failures  uint64
	Dropped   uint64 // frames never drawn because playback moved past them
}

// Option configures a Driver.
type Option func(*Driver)

// WithPrefetch sets how many frames after the current one are kept in the
// playback window. Negative values are treated as zero.
func WithPrefetch(k int) Option {
	return func(d *Driver) {
		d.prefetch = max(k, 0)
	}
}

// WithPoster sets the image shown until the first frame is ready.
func WithPoster(img image.Image) Option {
	return func(d *Driver) {
		d.poster = img
	}
}

// WithClock replaces the system clock used by Run.
func WithClock(c Clock) Option {
	return func(d *Driver) {
		d.clock = c
	}
}

// Driver plays one animation onto a Surface.
//
// Driver is not safe for concurrent use, except for Stats.
type Driver struct {
	sched    *schedule.Scheduler
	dec      *decode.Scheduler
	frames   *cache.FrameCache
	surface  Surface
	clock    Clock
	prefetch int
	poster   image.Image

	pending    *decode.Future
	last       *cache.Bitmap
	lastFrame  int
	failed     int
	lastWindow []int

	ticks     atomic.Uint64
	hits      atomic.Uint64
	misses    atomic.Uint64
	async     atomic.Uint64
	fallbacks atomic.Uint64
	posters   atomic.Uint64
	nothing   atomic.Uint64
	stale     atomic.Uint64
	failures  atomic.Uint64
	dropped   atomic.Uint64
}

// New creates a driver reading timing from sched and frames from dec.
func New(sched *schedule.Scheduler, dec *decode.Scheduler, surface Surface, opts ...Option) *Driver {
	d := &Driver{
		sched:     sched,
		dec:       dec,
		frames:    dec.Cache(),
		surface:   surface,
		clock:     SystemClock{},
		prefetch:  DefaultPrefetch,
		lastFrame: -1,
		failed:    -1,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Window returns the playback window of the last tick.
func (d *Driver) Window() []int {
	return append([]int(nil), d.lastWindow...)
}

// Tick shows the frame due at animation time elapsed.
func (d *Driver) Tick(elapsed time.Duration) TickResult {
	d.ticks.Add(1)

	st := d.sched.State(elapsed)
	if st.Done {
		d.dropPending()
		d.setWindow(nil)
		return TickResult{Frame: schedule.Done, Outcome: OutcomeDone, Next: schedule.NoNext}
	}
	frame := st.Frame
	res := TickResult{Frame: frame, Next: d.nextWake(elapsed)}

	if d.pending != nil && d.pending.Frame() != frame {
		d.dropPending()
	}
	if frame != d.failed {
		d.failed = -1
	}
	d.setWindow(d.window(st))

	if d.pending != nil && d.pending.Ready() {
		if d.takePending(frame) {
			res.Outcome = OutcomeAsync
			return res
		}
	}

	if bmp := d.frames.Get(frame); bmp != nil {
		d.hits.Add(1)
		d.show(frame, bmp)
		res.Outcome = OutcomeHit
		return res
	}
	d.misses.Add(1)

	if d.pending == nil && frame != d.failed {
		d.pending = d.dec.RequestDecode(frame)
		if d.pending.Ready() && d.takePending(frame) {
			res.Outcome = OutcomeAsync
			return res
		}
	}

	res.Outcome = d.fallback()
	return res
}

// takePending consumes the resolved pending future. It reports whether the
// frame was drawn.
func (d *Driver) takePending(frame int) bool {
	f := d.pending
	d.pending = nil

	bmp, err := f.Result()
	if err != nil {
		d.failures.Add(1)
		d.failed = frame
		logging.L().Warn("playback: frame unavailable", "frame", frame, "err", err)
		return false
	}
	d.async.Add(1)
	d.show(frame, bmp)
	return true
}

// dropPending forgets a request for a frame that is no longer due.
func (d *Driver) dropPending() {
	f := d.pending
	if f == nil {
		return
	}
	d.pending = nil
	if f.Cancel() {
		return
	}
	// Resolved before we got to it.
	if bmp, err := f.Result(); err == nil {
		bmp.Release()
		d.stale.Add(1)
		logging.L().Debug("playback: stale frame discarded", "frame", f.Frame())
	}
}

// show draws bmp and keeps it as the fallback frame. It takes ownership
// of bmp.
func (d *Driver) show(frame int, bmp *cache.Bitmap) {
	if d.lastFrame >= 0 && frame != d.lastFrame {
		n := d.sched.FrameCount()
		if skipped := (frame - d.lastFrame - 1 + n) % n; skipped > 0 {
			d.dropped.Add(uint64(skipped))
		}
	}
	d.draw(frame, bmp.Image())
	if d.last != nil {
		d.last.Release()
	}
	d.last = bmp
	d.lastFrame = frame
}

func (d *Driver) fallback() Outcome {
	switch {
	case d.last != nil:
		d.fallbacks.Add(1)
		d.draw(d.lastFrame, d.last.Image())
		return OutcomeFallback
	case d.poster != nil:
		d.posters.Add(1)
		d.draw(PosterFrame, d.poster)
		return OutcomePoster
	default:
		d.nothing.Add(1)
		return OutcomeNothing
	}
}

func (d *Driver) draw(frame int, img image.Image) {
	if d.surface == nil || img == nil {
		return
	}
	if err := d.surface.DrawFrame(frame, img); err != nil {
		logging.L().Warn("playback: draw failed", "frame", frame, "err", err)
	}
}

// window returns the current frame followed by the next K frames, wrapping
// into the next loop when there is one.
func (d *Driver) window(st schedule.LoopState) []int {
	n := d.sched.FrameCount()
	wrap := d.sched.IsInfinite() || st.Loop+1 < d.sched.LoopCount()

	w := make([]int, 0, d.prefetch+1)
	for k := 0; k <= d.prefetch && k < n; k++ {
		f := st.Frame + k
		if f >= n {
			if !wrap {
				break
			}
			f -= n
		}
		w = append(w, f)
	}
	return w
}

func (d *Driver) setWindow(w []int) {
	d.lastWindow = w
	d.frames.SetWindow(w)
	d.dec.CancelOutsideWindow(w)
	// w[0] is the current frame; Tick requests it itself.
	for i := 1; i < len(w); i++ {
		d.dec.Prefetch(w[i])
	}
}

// nextWake returns when the displayed frame changes next: the next frame
// boundary, else the end of a finite animation.
func (d *Driver) nextWake(elapsed time.Duration) time.Duration {
	if next := d.sched.NextTargetRenderTime(elapsed); next != schedule.NoNext {
		return next
	}
	if d.sched.IsInfinite() {
		return schedule.NoNext
	}
	return d.sched.TotalDuration()
}

// Run plays the animation until it finishes or ctx is done. It wakes at
// every frame boundary and whenever a pending decode completes.
func (d *Driver) Run(ctx context.Context) error {
	start := d.clock.Now()
	logging.L().Info("playback: start",
		"frames", d.sched.FrameCount(), "loops", d.sched.LoopCount(), "prefetch", d.prefetch)

	for {
		elapsed := d.clock.Now().Sub(start)
		res := d.Tick(elapsed)
		if res.Outcome == OutcomeDone {
			logging.L().Info("playback: done", "elapsed", elapsed)
			return nil
		}

		var timer <-chan time.Time
		if res.Next != schedule.NoNext {
			timer = d.clock.After(max(res.Next-elapsed, 0))
		}
		var ready <-chan struct{}
		if d.pending != nil {
			ready = d.pending.Done()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer:
		case <-ready:
		}
	}
}

// Close releases the fallback frame and abandons any pending request.
func (d *Driver) Close() {
	d.dropPending()
	if d.last != nil {
		d.last.Release()
		d.last = nil
	}
	d.lastFrame = -1
}

// Stats returns current driver statistics.
func (d *Driver) Stats() Stats {
	return Stats{
		Ticks:     d.ticks.Load(),
		Hits:      d.hits.Load(),
		Misses:    d.misses.Load(),
		Async:     d.async.Load(),
		Fallbacks: d.fallbacks.Load(),
		Posters:   d.posters.Load(),
		Nothing:   d.nothing.Load(),
		Stale:     d.stale.Load(),
		Failures:  d.failures.Load(),
		Dropped:   d.dropped.Load(),
	}
}
