package rhi

import (
	"context"
	"sync"
)

// Fence is a monotonic counter signaled by the queue when a submission
// completes. Host code waits for a value with Wait.
type Fence struct {
	mu      sync.Mutex
	value   uint64
	changed chan struct{}
}

// CreateFence creates a fence at the initial value.
func (d *Device) CreateFence(initial uint64) (*Fence, error) {
	if err := d.checkLive(); err != nil {
		return nil, err
	}
	return &Fence{value: initial, changed: make(chan struct{})}, nil
}

// CurrentValue returns the last signaled value.
func (f *Fence) CurrentValue() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

// SetCurrentValue signals the fence from the host. Values never decrease.
func (f *Fence) SetCurrentValue(v uint64) { f.signal(v) }

// Wait blocks until the fence reaches v or ctx is done.
func (f *Fence) Wait(ctx context.Context, v uint64) error {
	for {
		f.mu.Lock()
		if f.value >= v {
			f.mu.Unlock()
			return nil
		}
		ch := f.changed
		f.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (f *Fence) signal(v uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v <= f.value {
		return
	}
	f.value = v
	close(f.changed)
	f.changed = make(chan struct{})
}
