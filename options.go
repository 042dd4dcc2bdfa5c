package ganim

import (
	"github.com/gogpu/ganim/cache"
	"github.com/gogpu/ganim/decode"
	"github.com/gogpu/ganim/playback"
)

// Option configures an Animation during creation.
//
// Example:
//
//	// Defaults: 32 MiB of frames, 3 frames of prefetch, up to 4 workers
//	a, err := ganim.OpenFile("loader.webp")
//
//	// A larger cache shared by fewer workers
//	a, err := ganim.OpenFile("loader.webp",
//		ganim.WithByteBudget(128<<20),
//		ganim.WithWorkers(2))
type Option func(*options)

type options struct {
	budget      int64
	prefetch    int
	workers     int
	poolBuckets int
}

func defaultOptions() options {
	return options{
		budget:      cache.DefaultBudget,
		prefetch:    playback.DefaultPrefetch,
		workers:     decode.DefaultWorkers(),
		poolBuckets: 8,
	}
}

// WithByteBudget sets the byte budget of the frame cache.
// Non-positive values keep the default of 32 MiB.
func WithByteBudget(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.budget = n
		}
	}
}

// WithPrefetch sets how many frames ahead of the current one players keep
// decoded.
func WithPrefetch(k int) Option {
	return func(o *options) {
		o.prefetch = max(k, 0)
	}
}

// WithWorkers sets the number of decode workers.
// Non-positive values keep the default of min(GOMAXPROCS, 4).
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithPoolBuckets sets how many spare canvases of each size are kept for
// reuse after eviction. Zero disables the limit.
func WithPoolBuckets(n int) Option {
	return func(o *options) {
		o.poolBuckets = max(n, 0)
	}
}
