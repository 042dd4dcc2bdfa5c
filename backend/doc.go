// Package backend defines the animated image container abstraction.
//
// A Backend exposes frame count, canvas size, loop count, per-frame
// duration and composition metadata, and renders one frame's own pixels
// into a caller-provided buffer. Everything above that (composition across
// frames, caching, scheduling) lives in the compose, cache, decode and
// playback packages and depends only on this interface.
//
// # Format Registration
//
// Container formats register themselves in init() and are enabled by a
// blank import, the same explicit pattern used for optional accelerators:
//
//	import (
//		_ "github.com/gogpu/ganim/backend/gif"
//		_ "github.com/gogpu/ganim/backend/webp"
//	)
//
//	b, format, err := backend.Open(data)
//
// # Available Formats
//
//   - "gif": GIF89a via image/gif
//   - "webp": animated and still WebP (VP8, VP8L, ALPH)
package backend
