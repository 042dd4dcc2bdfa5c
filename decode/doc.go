// Package decode runs frame compositions on a worker pool and publishes the
// results into a cache.FrameCache.
//
// Scheduler keeps at most one task per frame. A second request for a frame
// that is already being composed attaches to the running task, so each
// frame is rendered once no matter how many callers wait for it:
//
//	s := decode.New(comp, frames)
//	f := s.RequestDecode(7)
//	select {
//	case <-f.Done():
//		bmp, err := f.Result()
//		...
//		bmp.Release()
//	default:
//		// draw something else this tick
//	}
//
// Prefetch starts work nobody waits for yet. CancelOutsideWindow marks such
// tasks canceled once their frame leaves the playback window; the
// compositor stops at its next replay step and the result is dropped.
// A canceled task that is requested again before it finishes completes
// normally.
package decode
