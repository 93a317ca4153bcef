package errors

import (
	"fmt"
	"runtime/debug"
)

// PanicError is a panic recovered inside a pipeline stage, converted into an
// ordinary error so that sibling stages keep their results.
type PanicError struct {
	// PanicValue is the value passed to panic().
	PanicValue interface{}

	// StackTrace is the goroutine stack captured at recovery time.
	StackTrace string

	// Stage names the pipeline stage in which the panic was recovered.
	Stage string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Stage, e.PanicValue)
}

// String includes the captured stack trace.
func (e *PanicError) String() string {
	return fmt.Sprintf("panic in %s: %v\nStack trace:\n%s", e.Stage, e.PanicValue, e.StackTrace)
}

// NewPanicError creates a PanicError for stage with the current stack.
func NewPanicError(stage string, panicValue interface{}) *PanicError {
	return &PanicError{
		PanicValue: panicValue,
		StackTrace: string(debug.Stack()),
		Stage:      stage,
	}
}

// Recover converts a panic into an error assigned to *err. It must be
// deferred directly:
//
//	func (f *Forest) Fit(ctx context.Context, X mat.Matrix, y []float64) (err error) {
//	    defer errors.Recover(&err, "forest.fit")
//	    ...
//	}
//
// An error already stored in *err is kept as the cause.
func Recover(err *error, stage string) {
	if r := recover(); r != nil {
		panicErr := NewPanicError(stage, r)
		if *err != nil {
			*err = Wrapf(*err, "panic in %s: %v", stage, r)
			return
		}
		*err = panicErr
	}
}

// SafeExecute runs fn and converts a panic into a PanicError.
func SafeExecute(stage string, fn func() error) (err error) {
	defer Recover(&err, stage)
	return fn()
}
