package backend

import (
	"errors"
	"fmt"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not registered
	// or cannot find an adapter.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrUnsupported is returned for capabilities the backend does not have.
	ErrUnsupported = errors.New("backend: operation not available")

	// ErrOutOfMemory is returned when an allocation cannot be satisfied.
	ErrOutOfMemory = errors.New("backend: out of memory")

	// ErrForeignObject is returned when a handle created by another backend
	// is passed in.
	ErrForeignObject = errors.New("backend: object belongs to another backend")

	// ErrOutOfBounds is returned for copies outside an allocation.
	ErrOutOfBounds = errors.New("backend: range out of bounds")
)

// NativeError is a failure reported by a native API call. Code keeps the
// native result value for diagnostics.
type NativeError struct {
	Op   string
	Code int
	Err  error
}

func (e *NativeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: native error %d: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: native error %d", e.Op, e.Code)
}

func (e *NativeError) Unwrap() error { return e.Err }
