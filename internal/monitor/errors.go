package monitor

import (
	"errors"
	"fmt"
)

// ErrNotInitialized is returned by the Facade when no engine was constructed.
var ErrNotInitialized = errors.New("Performance monitoring is not initialized") //nolint:staticcheck // message is part of the tool contract

const (
	OpGetStats      = "get performance statistics"
	OpGetQueryStats = "get query performance"
	OpGetPoolStats  = "get connection health"
)

// OperationError reports an unexpected failure while computing a view.
type OperationError struct {
	Op  string
	Err error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("Failed to %s: %s", e.Op, e.Err.Error())
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// guard runs fn and turns a returned error or a panic into an *OperationError for op.
// ErrNotInitialized is passed through unchanged.
func guard[T any](op string, fn func() (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			result = zero
			if rerr, ok := r.(error); ok {
				err = &OperationError{Op: op, Err: rerr}
			} else {
				err = &OperationError{Op: op, Err: fmt.Errorf("%v", r)}
			}
		}
	}()
	result, err = fn()
	if err != nil && !errors.Is(err, ErrNotInitialized) {
		var zero T
		return zero, &OperationError{Op: op, Err: err}
	}
	return result, err
}
