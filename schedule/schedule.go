// Package schedule maps animation time to frame indices.
//
// A Scheduler is a pure function of the backend's duration table: given the
// time elapsed since playback started it returns the frame to show, the
// loop being played and when the next frame boundary falls. The only state
// is the memoized loop duration.
package schedule

import (
	"math"
	"sync"
	"time"
)

// Done is returned by FrameForTime once a finite animation has finished.
const Done = -1

// NoNext is returned by NextTargetRenderTime when no further frame boundary
// will be reached.
const NoNext time.Duration = -1

// LoopForever mirrors backend.LoopForever.
const LoopForever = 0

// Timing is the subset of backend.Backend a Scheduler reads.
type Timing interface {
	FrameCount() int
	LoopCount() int
	FrameDuration(i int) time.Duration
}

// LoopState is the playback position derived from an animation time.
type LoopState struct {
	// Frame is the frame to display, or Done.
	Frame int
	// Loop is the zero-based loop being played.
	Loop int
	// Done reports that a finite animation has finished.
	Done bool
}

// Scheduler computes frame timing for one animation.
//
// Scheduler is safe for concurrent use.
type Scheduler struct {
	timing Timing

	mu      sync.Mutex
	loopDur time.Duration
	memo    bool
}

// New creates a scheduler over t.
func New(t Timing) *Scheduler {
	return &Scheduler{timing: t}
}

// FrameCount returns the number of frames.
func (s *Scheduler) FrameCount() int {
	return s.timing.FrameCount()
}

// LoopCount returns the loop count, or LoopForever.
func (s *Scheduler) LoopCount() int {
	return s.timing.LoopCount()
}

// IsInfinite reports whether the animation loops forever.
func (s *Scheduler) IsInfinite() bool {
	return s.timing.LoopCount() == LoopForever
}

// FrameDuration returns the display duration of frame i. Negative
// durations reported by a backend are treated as zero.
func (s *Scheduler) FrameDuration(i int) time.Duration {
	d := s.timing.FrameDuration(i)
	if d < 0 {
		return 0
	}
	return d
}

// LoopDuration returns the sum of all frame durations. The value is
// computed once and memoized until Invalidate is called.
func (s *Scheduler) LoopDuration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.memo {
		var total time.Duration
		for i := 0; i < s.timing.FrameCount(); i++ {
			total += s.FrameDuration(i)
		}
		s.loopDur = total
		s.memo = true
	}
	return s.loopDur
}

// Invalidate drops the memoized loop duration. Call it when the backend's
// duration table changes.
func (s *Scheduler) Invalidate() {
	s.mu.Lock()
	s.memo = false
	s.mu.Unlock()
}

// TotalDuration returns the length of the whole animation, or NoNext for
// an animation that loops forever. Lengths past the range of
// time.Duration saturate at math.MaxInt64.
func (s *Scheduler) TotalDuration() time.Duration {
	if s.IsInfinite() {
		return NoNext
	}
	loopDur, loops := s.LoopDuration(), time.Duration(s.LoopCount())
	if loopDur > 0 && loops > math.MaxInt64/loopDur {
		return math.MaxInt64
	}
	return loopDur * loops
}

// finished reports whether t lies past the last loop.
func (s *Scheduler) finished(t, loopDur time.Duration) bool {
	if s.IsInfinite() {
		return false
	}
	if loopDur == 0 {
		return t > 0
	}
	return t/loopDur >= time.Duration(s.LoopCount())
}

// FrameForTime returns the frame displayed at animation time t, or Done.
//
// Frame intervals are half-open, [start, start+duration): at an exact
// boundary the next frame is selected, and zero-duration frames are never
// selected.
func (s *Scheduler) FrameForTime(t time.Duration) int {
	return s.State(t).Frame
}

// State returns the full playback position at animation time t.
func (s *Scheduler) State(t time.Duration) LoopState {
	if t < 0 {
		t = 0
	}
	loopDur := s.LoopDuration()
	if s.finished(t, loopDur) {
		loop := 0
		if !s.IsInfinite() {
			loop = s.LoopCount()
		}
		return LoopState{Frame: Done, Loop: loop, Done: true}
	}
	if loopDur == 0 {
		return LoopState{Frame: 0}
	}
	return LoopState{
		Frame: s.frameWithinLoop(t % loopDur),
		Loop:  int(t / loopDur),
	}
}

// frameWithinLoop finds the frame whose interval contains t, 0 <= t < loop.
func (s *Scheduler) frameWithinLoop(t time.Duration) int {
	n := s.timing.FrameCount()
	var cumulative time.Duration
	frame := 0
	for frame < n {
		cumulative += s.FrameDuration(frame)
		frame++
		if t < cumulative {
			break
		}
	}
	return frame - 1
}

// TargetRenderTime returns the offset within a loop at which frame starts:
// the sum of the durations of all frames before it.
func (s *Scheduler) TargetRenderTime(frame int) time.Duration {
	var t time.Duration
	for i := 0; i < frame && i < s.timing.FrameCount(); i++ {
		t += s.FrameDuration(i)
	}
	return t
}

// NextTargetRenderTime returns the absolute animation time of the first
// frame boundary strictly after t, or NoNext if the animation is finished
// by then.
func (s *Scheduler) NextTargetRenderTime(t time.Duration) time.Duration {
	if t < 0 {
		t = 0
	}
	loopDur := s.LoopDuration()
	if loopDur == 0 || s.finished(t, loopDur) {
		return NoNext
	}

	inLoop := t % loopDur
	var cumulative time.Duration
	for i := 0; i < s.timing.FrameCount(); i++ {
		cumulative += s.FrameDuration(i)
		if cumulative > inLoop {
			break
		}
	}
	next := t - inLoop + cumulative

	if !s.IsInfinite() && next >= s.TotalDuration() {
		return NoNext
	}
	return next
}
