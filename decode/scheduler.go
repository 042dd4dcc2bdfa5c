package decode

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/gogpu/ganim/backend"
	"github.com/gogpu/ganim/cache"
	"github.com/gogpu/ganim/compose"
	"github.com/gogpu/ganim/internal/logging"
	"github.com/gogpu/ganim/internal/parallel"
)

var (
	// ErrCanceled resolves a future whose waiter called Cancel.
	ErrCanceled = errors.New("decode: canceled")

	// ErrClosed resolves futures still pending when the scheduler closes,
	// and every request made afterwards.
	ErrClosed = errors.New("decode: scheduler closed")
)

// DefaultWorkers returns the worker count used when none is configured:
// GOMAXPROCS capped at 4.
func DefaultWorkers() int {
	return min(runtime.GOMAXPROCS(0), 4)
}

// Option configures a Scheduler.
type Option func(*options)

type options struct {
	pool    *parallel.WorkerPool
	workers int
}

// WithPool runs compositions on an existing pool. The scheduler does not
// close a pool it did not create.
func WithPool(p *parallel.WorkerPool) Option {
	return func(o *options) {
		o.pool = p
	}
}

// WithWorkers sets the size of the scheduler's own pool.
// Ignored when WithPool is given.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// task is the single in-flight composition of one frame.
type task struct {
	frame    int
	waiters  []*Future
	canceled atomic.Bool
}

// Stats is a snapshot of scheduler counters.
type Stats struct {
	Requests     uint64 // RequestDecode calls
	CacheHits    uint64 // requests resolved from the cache
	Deduplicated uint64 // requests attached to a running task
	Started      uint64 // compositions dispatched, retries included
	Completed    uint64 // results published
	Failed       uint64 // compositions that failed
	Canceled     uint64 // tasks marked by CancelOutsideWindow
	Discarded    uint64 // results dropped because their task was canceled
	Revived      uint64 // canceled tasks requested again before finishing
	InFlight     int
}

// Scheduler owns the in-flight decode tasks of one animation.
//
// Scheduler is safe for concurrent use.
type Scheduler struct {
	comp     *compose.Compositor
	frames   *cache.FrameCache
	pool     *parallel.WorkerPool
	ownsPool bool

	mu         sync.Mutex
	tasks      map[int]*task
	idle       chan struct{}
	idleClosed bool
	closed     bool

	requests     atomic.Uint64
	cacheHits    atomic.Uint64
	deduplicated atomic.Uint64
	started      atomic.Uint64
	completed    atomic.Uint64
	failed       atomic.Uint64
	canceled     atomic.Uint64
	discarded    atomic.Uint64
	revived      atomic.Uint64
}

// New creates a scheduler composing frames with comp and publishing them
// into frames.
func New(comp *compose.Compositor, frames *cache.FrameCache, opts ...Option) *Scheduler {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s := &Scheduler{
		comp:   comp,
		frames: frames,
		pool:   o.pool,
		tasks:  make(map[int]*task),
		idle:   make(chan struct{}),
	}
	if s.pool == nil {
		workers := o.workers
		if workers <= 0 {
			workers = DefaultWorkers()
		}
		s.pool = parallel.NewWorkerPool(workers)
		s.ownsPool = true
	}
	close(s.idle)
	s.idleClosed = true
	return s
}

// Cache returns the cache results are published into.
func (s *Scheduler) Cache() *cache.FrameCache { return s.frames }

// RequestDecode returns a future for the composited frame i. A cached frame
// resolves immediately. Otherwise the request joins the frame's running
// task, or starts one.
func (s *Scheduler) RequestDecode(i int) *Future {
	s.requests.Add(1)
	if err := backend.CheckIndex(s.comp.Backend(), i); err != nil {
		return resolvedFuture(i, nil, fmt.Errorf("decode: %w", err))
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return resolvedFuture(i, nil, ErrClosed)
	}
	if bmp := s.frames.Get(i); bmp != nil {
		s.mu.Unlock()
		s.cacheHits.Add(1)
		return resolvedFuture(i, bmp, nil)
	}

	f := newFuture(i, s)
	t, start := s.attachLocked(i)
	t.waiters = append(t.waiters, f)
	f.task = t
	s.mu.Unlock()

	if start {
		s.dispatch(t)
	}
	return f
}

// Prefetch starts composing frame i without a waiter. It reports whether
// the frame is cached or being composed afterwards.
func (s *Scheduler) Prefetch(i int) bool {
	if i < 0 || i >= s.comp.Backend().FrameCount() {
		return false
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	if s.frames.Contains(i) {
		s.mu.Unlock()
		return true
	}
	t, start := s.attachLocked(i)
	s.mu.Unlock()

	if start {
		s.dispatch(t)
	}
	return true
}

// attachLocked returns the task for frame i, reviving it if it was
// canceled, or creates one. start reports whether the caller must
// dispatch it.
func (s *Scheduler) attachLocked(i int) (t *task, start bool) {
	if t, ok := s.tasks[i]; ok {
		s.deduplicated.Add(1)
		if t.canceled.CompareAndSwap(true, false) {
			s.revived.Add(1)
			logging.L().Debug("decode: revived canceled task", "frame", i)
		}
		return t, false
	}

	t = &task{frame: i}
	s.tasks[i] = t
	if s.idleClosed {
		s.idle = make(chan struct{})
		s.idleClosed = false
	}
	return t, true
}

func (s *Scheduler) dispatch(t *task) {
	s.started.Add(1)
	logging.L().Debug("decode: start", "frame", t.frame)
	if !s.pool.Go(func() { s.run(t) }) {
		s.finish(t, nil, ErrClosed)
	}
}

func (s *Scheduler) run(t *task) {
	img, err := s.comp.Compose(t.frame, s.frames.Peek, t.canceled.Load)
	s.finish(t, img, err)
}

// finish publishes or discards a task's outcome and resolves its waiters.
func (s *Scheduler) finish(t *task, img *image.RGBA, err error) {
	s.mu.Lock()

	if t.canceled.Load() {
		s.removeLocked(t)
		s.mu.Unlock()

		if img != nil {
			s.comp.Pool().Put(img)
		}
		s.discarded.Add(1)
		logging.L().Debug("decode: discarded stale result", "frame", t.frame)
		return
	}

	if errors.Is(err, compose.ErrCanceled) && !s.closed {
		// Canceled mid-replay, then requested again.
		s.mu.Unlock()
		s.dispatch(t)
		return
	}

	if err != nil {
		if errors.Is(err, compose.ErrCanceled) {
			err = ErrClosed
		}
		waiters := s.removeLocked(t)
		s.mu.Unlock()

		s.failed.Add(1)
		logging.L().Warn("decode: frame failed", "frame", t.frame, "err", err)
		for _, w := range waiters {
			w.resolve(nil, err)
		}
		return
	}

	bmp := cache.NewBitmap(t.frame, img, s.comp.Pool().Put)
	putErr := s.frames.Put(t.frame, bmp)
	waiters := s.removeLocked(t)
	s.mu.Unlock()

	s.completed.Add(1)
	if putErr != nil {
		logging.L().Warn("decode: frame not cached", "frame", t.frame, "err", putErr)
	}
	logging.L().Debug("decode: finished", "frame", t.frame, "waiters", len(waiters))

	for _, w := range waiters {
		if !w.resolve(bmp.Retain(), nil) {
			bmp.Release()
		}
	}
	bmp.Release()
}

// removeLocked deletes t from the task table and returns its waiters.
func (s *Scheduler) removeLocked(t *task) []*Future {
	if s.tasks[t.frame] == t {
		delete(s.tasks, t.frame)
	}
	waiters := t.waiters
	t.waiters = nil
	for _, w := range waiters {
		w.task = nil
	}
	if len(s.tasks) == 0 && !s.idleClosed {
		close(s.idle)
		s.idleClosed = true
	}
	return waiters
}

// detach removes f from its task's waiters.
func (s *Scheduler) detach(f *Future) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := f.task
	if t == nil {
		return
	}
	f.task = nil
	t.waiters = slices.DeleteFunc(t.waiters, func(w *Future) bool { return w == f })
}

// CancelOutsideWindow marks canceled every in-flight task whose frame is not
// in window and that nobody waits for. It returns the number of tasks
// marked.
func (s *Scheduler) CancelOutsideWindow(window []int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for frame, t := range s.tasks {
		if len(t.waiters) > 0 || slices.Contains(window, frame) {
			continue
		}
		if t.canceled.CompareAndSwap(false, true) {
			n++
			logging.L().Debug("decode: canceled outside window", "frame", frame)
		}
	}
	s.canceled.Add(uint64(n))
	return n
}

// InFlight returns the number of tasks not yet finished, canceled ones
// included.
func (s *Scheduler) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Pending returns the frames with an in-flight task in ascending order.
func (s *Scheduler) Pending() []int {
	s.mu.Lock()
	out := make([]int, 0, len(s.tasks))
	for f := range s.tasks {
		out = append(out, f)
	}
	s.mu.Unlock()

	slices.Sort(out)
	return out
}

// Idle returns a channel that is closed while no task is in flight.
// A new channel is handed out once work starts again.
func (s *Scheduler) Idle() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idle
}

// Wait blocks until no task is in flight or ctx is done.
func (s *Scheduler) Wait(ctx context.Context) error {
	for {
		idle := s.Idle()
		select {
		case <-idle:
			if s.InFlight() == 0 {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stats returns current scheduler statistics.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Requests:     s.requests.Load(),
		CacheHits:    s.cacheHits.Load(),
		Deduplicated: s.deduplicated.Load(),
		Started:      s.started.Load(),
		Completed:    s.completed.Load(),
		Failed:       s.failed.Load(),
		Canceled:     s.canceled.Load(),
		Discarded:    s.discarded.Load(),
		Revived:      s.revived.Load(),
		InFlight:     s.InFlight(),
	}
}

// Close fails every pending future with ErrClosed and rejects further
// requests. Running compositions are told to stop and their results are
// dropped. If the scheduler created its pool, Close waits for the workers.
// Close is safe to call multiple times.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	var waiters []*Future
	for _, t := range s.tasks {
		t.canceled.Store(true)
		waiters = append(waiters, t.waiters...)
		for _, w := range t.waiters {
			w.task = nil
		}
		t.waiters = nil
	}
	s.mu.Unlock()

	for _, w := range waiters {
		w.resolve(nil, ErrClosed)
	}
	if s.ownsPool {
		s.pool.Close()
	}
}
