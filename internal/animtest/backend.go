// Package animtest provides a deterministic in-memory backend for tests.
package animtest

import (
	"errors"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/image/draw"

	"github.com/gogpu/ganim/backend"
)

// ErrRender is the default error injected by Fail.
var ErrRender = errors.New("animtest: injected render failure")

// Frame describes one synthetic frame.
type Frame struct {
	Duration time.Duration
	Info     backend.FrameInfo
	// Color fills the frame rectangle. Zero means FrameColor(i).
	Color color.RGBA
}

// Backend is a fake backend.Backend.
//
// Each frame renders as a solid rectangle. Renders can be blocked per frame
// with Gate and failed with Fail; RenderCount reports how many times each
// frame was rendered.
type Backend struct {
	width, height int
	loops         int

	mu     sync.Mutex
	frames []Frame
	gates  map[int]chan struct{}
	fails  map[int]error
	// entered is signalled every time a gated render starts waiting.
	entered map[int]chan struct{}

	renders []atomic.Int64
	total   atomic.Int64
}

var _ backend.Backend = (*Backend)(nil)

// New creates a backend with the given canvas, loop count and frames.
func New(width, height, loops int, frames []Frame) *Backend {
	return &Backend{
		width:   width,
		height:  height,
		loops:   loops,
		frames:  frames,
		gates:   make(map[int]chan struct{}),
		fails:   make(map[int]error),
		entered: make(map[int]chan struct{}),
		renders: make([]atomic.Int64, len(frames)),
	}
}

// FullFrames creates full-canvas, opaque, no-blend frames (every frame is a
// key frame) with the given durations in milliseconds.
func FullFrames(width, height int, durationsMs ...int) []Frame {
	frames := make([]Frame, len(durationsMs))
	for i, ms := range durationsMs {
		frames[i] = Frame{
			Duration: time.Duration(ms) * time.Millisecond,
			Info: backend.FrameInfo{
				Bounds: image.Rect(0, 0, width, height),
				Blend:  backend.BlendNone,
			},
		}
	}
	return frames
}

// FrameColor is the default opaque color of frame i.
func FrameColor(i int) color.RGBA {
	return color.RGBA{R: uint8(20 + i*23), G: uint8(200 - i*17), B: uint8(i * 41), A: 255}
}

func (b *Backend) FrameCount() int { return len(b.frames) }
func (b *Backend) Width() int      { return b.width }
func (b *Backend) Height() int     { return b.height }
func (b *Backend) LoopCount() int  { return b.loops }

func (b *Backend) FrameDuration(i int) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frames[i].Duration
}

// SetDuration changes a frame duration, as a bounds change would.
func (b *Backend) SetDuration(i int, d time.Duration) {
	b.mu.Lock()
	b.frames[i].Duration = d
	b.mu.Unlock()
}

func (b *Backend) FrameInfo(i int) backend.FrameInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frames[i].Info
}

func (b *Backend) RenderFrame(i int, dst *image.RGBA) error {
	if err := backend.CheckIndex(b, i); err != nil {
		return err
	}
	b.renders[i].Add(1)
	b.total.Add(1)

	b.mu.Lock()
	gate := b.gates[i]
	entered := b.entered[i]
	err := b.fails[i]
	c := b.frames[i].Color
	b.mu.Unlock()

	if gate != nil {
		if entered != nil {
			select {
			case entered <- struct{}{}:
			default:
			}
		}
		<-gate
	}
	if err != nil {
		return err
	}
	if c == (color.RGBA{}) {
		c = FrameColor(i)
	}
	draw.Draw(dst, dst.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
	return nil
}

// Gate blocks renders of frame i until the returned release func is called.
// The entered channel receives a value each time a render starts waiting.
func (b *Backend) Gate(i int) (release func(), entered <-chan struct{}) {
	gate := make(chan struct{})
	ent := make(chan struct{}, 16)

	b.mu.Lock()
	b.gates[i] = gate
	b.entered[i] = ent
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.gates, i)
			delete(b.entered, i)
			b.mu.Unlock()
			close(gate)
		})
	}, ent
}

// Fail makes renders of frame i return err (ErrRender if nil).
func (b *Backend) Fail(i int, err error) {
	if err == nil {
		err = ErrRender
	}
	b.mu.Lock()
	b.fails[i] = err
	b.mu.Unlock()
}

// Heal removes an injected failure.
func (b *Backend) Heal(i int) {
	b.mu.Lock()
	delete(b.fails, i)
	b.mu.Unlock()
}

// RenderCount returns how many times frame i was rendered.
func (b *Backend) RenderCount(i int) int64 {
	return b.renders[i].Load()
}

// TotalRenders returns the number of RenderFrame calls for all frames.
func (b *Backend) TotalRenders() int64 {
	return b.total.Load()
}
