package rhi

import (
	"errors"
	"fmt"

	"github.com/gogpu/rhi/backend"
)

// Sentinel errors. Use errors.Is to test for them; most are returned
// wrapped with context.
var (
	// ErrValidation reports a request that violates an API rule.
	ErrValidation = errors.New("rhi: validation failed")

	// ErrUnsupported reports a capability the device's backend lacks.
	// It is the same value as backend.ErrUnsupported.
	ErrUnsupported = backend.ErrUnsupported

	// ErrOutOfMemory reports a failed allocation.
	// It is the same value as backend.ErrOutOfMemory.
	ErrOutOfMemory = backend.ErrOutOfMemory

	// ErrCommandBufferClosed is returned when recording into a closed
	// command buffer. It wraps ErrValidation.
	ErrCommandBufferClosed = fmt.Errorf("rhi: command buffer is closed: %w", ErrValidation)

	// ErrHeapInUse is returned by TransientHeap.Reset while command buffers
	// from the heap are still executing. It wraps ErrValidation.
	ErrHeapInUse = fmt.Errorf("rhi: transient heap has unfinished submissions: %w", ErrValidation)

	// ErrDeviceReleased is returned by operations on a released device.
	ErrDeviceReleased = errors.New("rhi: device released")
)

// BackendError is a failure reported by the native backend. Code preserves
// the native result value.
type BackendError struct {
	Op   string
	Code int
	Err  error
}

func (e *BackendError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("rhi: %s: backend error %d: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("rhi: %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// validationError formats a message wrapping ErrValidation.
func validationError(format string, args ...any) error {
	return fmt.Errorf("rhi: "+format+": %w", append(args, ErrValidation)...)
}

// wrapBackend turns a backend failure into a *BackendError. Backend
// sentinels stay reachable through errors.Is, and a backend.NativeError
// lends its native code.
func wrapBackend(op string, err error) error {
	if err == nil {
		return nil
	}
	be := &BackendError{Op: op, Err: err}
	var ne *backend.NativeError
	if errors.As(err, &ne) {
		be.Code = ne.Code
	}
	return be
}
