// Package compose builds full-canvas frames from a backend's partial frames.
//
// An animated image stores each frame as a rectangle plus a disposal method
// and a blend operation, so the canvas shown for frame N depends on the
// frames before it. Compositor walks back from N to the nearest usable
// starting point, which is either a cached composited frame or a key frame,
// then replays the frames in between:
//
//	c := compose.New(b, pool)
//	img, err := c.Compose(n, lookup, nil)
//
// A key frame is frame 0, a full-canvas frame drawn without blending, or
// the frame after a full-canvas frame disposed to background. Frames
// disposed to previous are skipped during replay, since they leave the
// canvas as it was before them. When such a chain reaches frame 0 the
// result starts from the empty transparent canvas.
//
// Compose never writes to the cache. The lookup callback only reads
// ancestors that happen to be cached.
package compose
