package backend

import (
	"errors"
	"fmt"
	"image"
	"time"
)

// Common backend errors.
var (
	// ErrUnknownFormat is returned by Open when no registered format
	// recognizes the data.
	ErrUnknownFormat = errors.New("backend: unknown animated image format")

	// ErrFrameIndex is returned when a frame index is outside [0, FrameCount).
	ErrFrameIndex = errors.New("backend: frame index out of range")

	// ErrNoFrames is returned by decoders for containers without frames.
	ErrNoFrames = errors.New("backend: no frames")
)

// LoopForever is the LoopCount value of an animation that never stops.
const LoopForever = 0

// DisposeMethod describes what happens to a frame's rectangle after the
// frame has been displayed and before the next frame is drawn.
type DisposeMethod uint8

const (
	// DisposeNone leaves the canvas as-is.
	DisposeNone DisposeMethod = iota

	// DisposeBackground clears the frame rectangle to transparent.
	DisposeBackground

	// DisposePrevious restores the frame rectangle to its state before
	// the frame was drawn.
	DisposePrevious
)

// String returns the disposal method name.
func (d DisposeMethod) String() string {
	switch d {
	case DisposeNone:
		return "none"
	case DisposeBackground:
		return "background"
	case DisposePrevious:
		return "previous"
	default:
		return fmt.Sprintf("DisposeMethod(%d)", uint8(d))
	}
}

// BlendOp describes how a frame's pixels are combined with the canvas.
type BlendOp uint8

const (
	// BlendAlpha alpha-composites the frame over the existing canvas.
	BlendAlpha BlendOp = iota

	// BlendNone overwrites the frame rectangle, alpha included.
	BlendNone
)

// String returns the blend operation name.
func (b BlendOp) String() string {
	switch b {
	case BlendAlpha:
		return "alpha"
	case BlendNone:
		return "none"
	default:
		return fmt.Sprintf("BlendOp(%d)", uint8(b))
	}
}

// FrameInfo is the per-frame composition metadata.
type FrameInfo struct {
	// Bounds is the frame rectangle in canvas coordinates.
	Bounds image.Rectangle

	// Dispose is applied after the frame is displayed.
	Dispose DisposeMethod

	// Blend is used when drawing the frame onto the canvas.
	Blend BlendOp
}

// CoversCanvas reports whether the frame rectangle spans a whole
// width x height canvas.
func (fi FrameInfo) CoversCanvas(width, height int) bool {
	return fi.Bounds.Min.X <= 0 && fi.Bounds.Min.Y <= 0 &&
		fi.Bounds.Max.X >= width && fi.Bounds.Max.Y >= height
}

// Backend is a decoded animated image container.
//
// Implementations expose frame metadata and render a single frame's own
// pixels. They know nothing about composition or caching; frame
// dependencies are resolved by the compose package.
//
// All methods must be safe for concurrent use: RenderFrame is called from
// several decode workers at once.
type Backend interface {
	// FrameCount returns the number of frames (at least 1).
	FrameCount() int

	// Width returns the canvas width in pixels.
	Width() int

	// Height returns the canvas height in pixels.
	Height() int

	// LoopCount returns how many times the animation plays, or LoopForever.
	LoopCount() int

	// FrameDuration returns how long frame i is displayed.
	FrameDuration(i int) time.Duration

	// FrameInfo returns the composition metadata of frame i.
	FrameInfo(i int) FrameInfo

	// RenderFrame writes frame i's own pixels, before disposal and
	// blending, into dst. dst.Bounds() is the frame rectangle clamped to
	// the canvas; pixels the frame does not cover must be left transparent.
	RenderFrame(i int, dst *image.RGBA) error
}

// CheckIndex returns ErrFrameIndex wrapped with context if i is not a
// valid frame of b.
func CheckIndex(b Backend, i int) error {
	if i < 0 || i >= b.FrameCount() {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrFrameIndex, i, b.FrameCount())
	}
	return nil
}

// CanvasBounds returns the canvas rectangle of b.
func CanvasBounds(b Backend) image.Rectangle {
	return image.Rect(0, 0, b.Width(), b.Height())
}
