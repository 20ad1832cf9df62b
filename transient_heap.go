package rhi

import (
	"sync"
	"sync/atomic"
)

// DefaultConstantBufferSize is the arena chunk size of a transient heap.
const DefaultConstantBufferSize = 64 << 10

// TransientHeapDesc describes a transient heap.
type TransientHeapDesc struct {
	Label string
	// ConstantBufferSize is the size of each arena chunk. Zero selects
	// DefaultConstantBufferSize.
	ConstantBufferSize int
}

// TransientHeap produces command buffers and owns the arena their upload
// data lives in. Reset recycles the arena once every command buffer the
// heap produced has been waited on.
type TransientHeap struct {
	device *Device
	desc   TransientHeapDesc

	mu         sync.Mutex
	chunks     [][]byte
	chunk      int
	used       int
	generation uint64

	inflight atomic.Int64
}

// CreateTransientHeap creates a heap.
func (d *Device) CreateTransientHeap(desc TransientHeapDesc) (*TransientHeap, error) {
	if err := d.checkLive(); err != nil {
		return nil, err
	}
	if desc.ConstantBufferSize < 0 {
		return nil, validationError("transient heap %q: negative chunk size", desc.Label)
	}
	if desc.ConstantBufferSize == 0 {
		desc.ConstantBufferSize = DefaultConstantBufferSize
	}
	return &TransientHeap{device: d, desc: desc}, nil
}

// Desc returns the creation descriptor with defaults applied.
func (h *TransientHeap) Desc() TransientHeapDesc { return h.desc }

// CreateCommandBuffer starts a new command buffer.
func (h *TransientHeap) CreateCommandBuffer() (*CommandBuffer, error) {
	if err := h.device.checkLive(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	gen := h.generation
	h.mu.Unlock()
	return &CommandBuffer{heap: h, device: h.device, generation: gen}, nil
}

// Reset recycles the arena. Command buffers recorded before the reset can
// no longer be submitted. Reset fails with ErrHeapInUse while any buffer
// from the heap is submitted and not yet waited on.
func (h *TransientHeap) Reset() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.inflight.Load() > 0 {
		return ErrHeapInUse
	}
	h.chunk, h.used = 0, 0
	h.generation++
	return nil
}

// acquire counts a buffer recorded at gen as in flight. It fails when the
// heap has been reset since.
func (h *TransientHeap) acquire(gen uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if gen != h.generation {
		return false
	}
	h.inflight.Add(1)
	return true
}

func (h *TransientHeap) release() {
	h.mu.Lock()
	h.inflight.Add(-1)
	h.mu.Unlock()
}

// InFlight returns the number of submitted, not yet waited command buffers.
func (h *TransientHeap) InFlight() int64 { return h.inflight.Load() }

// alloc copies data into the arena. Requests larger than a chunk get a
// dedicated allocation.
func (h *TransientHeap) alloc(data []byte) []byte {
	n := len(data)
	size := h.desc.ConstantBufferSize
	if n > size {
		return append([]byte(nil), data...)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.chunks) == 0 || h.used+n > size {
		if len(h.chunks) > 0 {
			h.chunk++
		}
		if h.chunk == len(h.chunks) {
			h.chunks = append(h.chunks, make([]byte, size))
		}
		h.used = 0
	}
	blob := h.chunks[h.chunk][h.used : h.used+n : h.used+n]
	copy(blob, data)
	h.used += n
	return blob
}
