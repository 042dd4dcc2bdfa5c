// Package cache holds composited animation frames under a byte budget.
//
// # FrameCache
//
// FrameCache maps frame indices to reference-counted Bitmaps. Admission
// evicts least recently used frames first but never a frame inside the
// playback window set with SetWindow:
//
//	c := cache.New(32 << 20)
//	c.SetWindow([]int{4, 5, 6, 7})
//	if err := c.Put(4, bmp); err != nil { ... }
//	if b := c.Get(4); b != nil {
//		draw(b.Image())
//		b.Release()
//	}
//
// A frame larger than the whole budget is admitted on its own: every other
// evictable frame is dropped and the large frame is queued to leave first.
// When the window alone leaves no room for a frame, Put fails with
// ErrNoRoom and the cache is unchanged.
//
// # Bitmap lifetime
//
// The cache owns one reference to each stored Bitmap. Get and Peek return an
// additional reference that the caller must Release. Eviction only drops the
// cache's reference, so a frame being drawn stays valid until its holder is
// done with it.
//
// # Thread Safety
//
// FrameCache is safe for concurrent use. All index mutations are serialized
// by one mutex; published pixels are shared without locking.
package cache
