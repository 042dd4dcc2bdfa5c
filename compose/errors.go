package compose

import (
	"errors"
	"fmt"
)

var (
	// ErrCompositionFailed matches every *CompositionError with errors.Is.
	ErrCompositionFailed = errors.New("compose: composition failed")

	// ErrCanceled is returned when the cancellation probe fires between
	// replay steps.
	ErrCanceled = errors.New("compose: canceled")
)

// CompositionError reports a frame that could not be rendered while
// composing Target. Frame is Target itself or one of its ancestors.
type CompositionError struct {
	Target int
	Frame  int
	Err    error
}

func (e *CompositionError) Error() string {
	if e.Frame == e.Target {
		return fmt.Sprintf("compose: frame %d: %v", e.Frame, e.Err)
	}
	return fmt.Sprintf("compose: frame %d: ancestor %d: %v", e.Target, e.Frame, e.Err)
}

func (e *CompositionError) Unwrap() error { return e.Err }

// Is reports whether target is ErrCompositionFailed.
func (e *CompositionError) Is(target error) bool {
	return target == ErrCompositionFailed
}
