// Package ganim plays animated images frame by frame.
//
// # Overview
//
// ganim decodes animated GIF and WebP images lazily. Each frame is
// composited against the frames before it, cached under a byte budget and
// prefetched ahead of a playback clock, so long animations play without
// holding every frame in memory.
//
// # Quick Start
//
//	import (
//		"github.com/gogpu/ganim"
//		_ "github.com/gogpu/ganim/backend/gif"
//		_ "github.com/gogpu/ganim/backend/webp"
//	)
//
//	a, err := ganim.OpenFile("spinner.gif")
//	if err != nil {
//		return err
//	}
//	defer a.Close()
//
//	player := a.NewPlayer(surface)
//	defer player.Close()
//	err = player.Run(ctx)
//
// # Architecture
//
// The library is organized into:
//   - backend: the format-independent frame source and its registry
//   - schedule: animation time to frame index
//   - compose: disposal and blending across the frame chain
//   - cache: byte-budgeted store of reference-counted frames
//   - decode: deduplicated, cancellable decode tasks on a worker pool
//   - playback: the clock-driven driver with prefetch and fallback frames
//
// # Frame lifetime
//
// Frames are handed out as *cache.Bitmap handles. Every handle obtained
// from Frame, Render or a resolved future must be released exactly once.
// Eviction never frees a frame that is still held.
package ganim
