package decode

import (
	"context"
	"errors"
	"sync"

	"github.com/gogpu/ganim/cache"
)

// ErrPending is returned by Result before the future is resolved.
var ErrPending = errors.New("decode: result pending")

// Future is the pending result of one decode request.
//
// A successful future carries its own reference to the bitmap. The caller
// releases it once it is done drawing, however many times Result is called.
type Future struct {
	frame int
	s     *Scheduler
	task  *task // guarded by s.mu; nil once detached

	mu        sync.Mutex
	done      chan struct{}
	resolved  bool
	bmp       *cache.Bitmap
	err       error
	callbacks []func(*Future)
}

func newFuture(frame int, s *Scheduler) *Future {
	return &Future{frame: frame, s: s, done: make(chan struct{})}
}

func resolvedFuture(frame int, bmp *cache.Bitmap, err error) *Future {
	f := newFuture(frame, nil)
	f.resolve(bmp, err)
	return f
}

// Frame returns the requested frame index.
func (f *Future) Frame() int { return f.frame }

// Done is closed once the future is resolved.
func (f *Future) Done() <-chan struct{} { return f.done }

// Ready reports whether the future is resolved without blocking.
func (f *Future) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Result returns the outcome. Before resolution it returns ErrPending.
func (f *Future) Result() (*cache.Bitmap, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.resolved {
		return nil, ErrPending
	}
	return f.bmp, f.err
}

// Wait blocks until the future resolves or ctx is done.
// It is meant for tools and tests; playback polls Done instead.
func (f *Future) Wait(ctx context.Context) (*cache.Bitmap, error) {
	select {
	case <-f.done:
		return f.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// OnComplete registers fn to run once the future resolves. If it already
// has, fn runs immediately. fn runs on the resolving goroutine and must not
// block.
func (f *Future) OnComplete(fn func(*Future)) {
	f.mu.Lock()
	if !f.resolved {
		f.callbacks = append(f.callbacks, fn)
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	fn(f)
}

// Cancel detaches this waiter from its task and resolves the future with
// ErrCanceled. The task itself keeps running for other waiters. Cancel
// reports false if the future had already resolved; a bitmap it carries
// must still be released.
func (f *Future) Cancel() bool {
	if f.s != nil {
		f.s.detach(f)
	}
	return f.resolve(nil, ErrCanceled)
}

// resolve settles the future once. It reports false if the future was
// already resolved, in which case the caller keeps ownership of bmp.
func (f *Future) resolve(bmp *cache.Bitmap, err error) bool {
	f.mu.Lock()
	if f.resolved {
		f.mu.Unlock()
		return false
	}
	f.resolved = true
	f.bmp, f.err = bmp, err
	cbs := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, fn := range cbs {
		fn(f)
	}
	return true
}
