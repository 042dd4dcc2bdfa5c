// Package playback drives an animation against a clock.
//
// A Driver turns elapsed time into a frame with schedule.Scheduler, takes it
// from the frame cache when it is there and otherwise asks the decode
// scheduler for it. While the frame is being composed the driver keeps
// showing the last frame it drew, else the poster, else nothing. It never
// blocks on a decode.
//
// Each tick also slides the playback window: the current frame plus the
// next K frames are pinned in the cache and prefetched, and decode tasks
// for frames that fell out of the window are canceled.
//
// A Driver belongs to one goroutine. Run owns it for the length of the
// playback; Tick can be called directly by hosts with their own frame loop.
package playback
