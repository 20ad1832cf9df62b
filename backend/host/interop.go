package host

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/rhi/backend"
)

// sharedTable is the process-wide handle table. Every host backend in the
// process sees the same table, so memory exported by one device can be
// imported by another.
var sharedTable = struct {
	mu      sync.Mutex
	next    uint64
	entries map[uint64]*sharedEntry
}{entries: make(map[uint64]*sharedEntry)}

type sharedEntry struct {
	data []byte
	refs int
}

func releaseShared(h uint64) {
	sharedTable.mu.Lock()
	defer sharedTable.mu.Unlock()
	e, ok := sharedTable.entries[h]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(sharedTable.entries, h)
	}
}

func lookupShared(h backend.SharedHandle, size uint64) (*sharedEntry, error) {
	if h.Type != backend.HandleHost {
		return nil, fmt.Errorf("host: handle type %d: %w", h.Type, backend.ErrUnsupported)
	}
	e, ok := sharedTable.entries[h.Value]
	if !ok {
		return nil, fmt.Errorf("host: unknown shared handle %#x: %w", h.Value, backend.ErrForeignObject)
	}
	if size > uint64(len(e.data)) {
		return nil, fmt.Errorf("host: import of %d bytes from %d byte allocation: %w", size, len(e.data), backend.ErrOutOfBounds)
	}
	return e, nil
}

// ExportBuffer publishes a buffer in the handle table. Exporting the same
// buffer twice returns the same handle.
func (b *Backend) ExportBuffer(m backend.Memory) (backend.SharedHandle, error) {
	buf, err := hostBuffer(m)
	if err != nil {
		return backend.SharedHandle{}, err
	}
	sharedTable.mu.Lock()
	defer sharedTable.mu.Unlock()
	if buf.handle == 0 {
		sharedTable.next++
		buf.handle = sharedTable.next
		sharedTable.entries[buf.handle] = &sharedEntry{data: buf.data, refs: 1}
	}
	return backend.SharedHandle{Type: backend.HandleHost, Value: buf.handle}, nil
}

// ImportBuffer aliases the first size bytes of an exported allocation.
func (b *Backend) ImportBuffer(h backend.SharedHandle, size uint64) (backend.Memory, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	sharedTable.mu.Lock()
	defer sharedTable.mu.Unlock()
	e, err := lookupShared(h, size)
	if err != nil {
		return nil, err
	}
	e.refs++
	b.track(1)
	return &buffer{data: e.data[:size:size], handle: h.Value}, nil
}

// ImportImage aliases an exported allocation as an image. Mip levels are
// carved from the allocation back to back.
func (b *Backend) ImportImage(h backend.SharedHandle, size uint64, desc backend.ImageDesc) (backend.Image, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	levels := max(desc.MipLevels, 1)
	var need uint64
	for mip := range levels {
		need += desc.MipSize(mip)
	}
	if need > size {
		return nil, fmt.Errorf("host: image %q needs %d bytes, handle provides %d: %w", desc.Label, need, size, backend.ErrOutOfBounds)
	}

	sharedTable.mu.Lock()
	defer sharedTable.mu.Unlock()
	e, err := lookupShared(h, size)
	if err != nil {
		return nil, err
	}
	img := &image{desc: desc, mips: make([][]byte, levels), handle: h.Value}
	var off uint64
	for mip := range levels {
		n := desc.MipSize(mip)
		img.mips[mip] = e.data[off : off+n : off+n]
		off += n
	}
	e.refs++
	b.track(1)
	return img, nil
}

// Timestamp reads the host clock in nanoseconds since backend creation.
func (b *Backend) Timestamp() (uint64, error) {
	d := time.Since(b.epoch)
	return uint64(d.Nanoseconds()), nil // #nosec G115 -- monotonic, non-negative
}

// TimestampFrequency returns one tick per nanosecond.
func (b *Backend) TimestampFrequency() uint64 { return uint64(time.Second) }

// Acceleration structure sizing. The host has no traversal hardware, so the
// sizes model a flat BVH: one node per primitive plus instance records.
const (
	bvhNodeSize         = 32
	bvhInstanceSize     = 64
	bvhHeaderSize       = 256
	bvhScratchPerPrim   = 16
	bvhAlignment        = 256
	bvhUpdateScratchDiv = 2
)

var asHandles atomic.Uint64

type accelerationStructure struct {
	handle  uint64
	backing *buffer
	offset  uint64
	size    uint64
}

func (a *accelerationStructure) Handle() uint64 { return a.handle }

// AccelerationStructureSizes returns the memory a build would need.
func (b *Backend) AccelerationStructureSizes(desc backend.AccelerationStructureBuildDesc) (backend.AccelerationStructureSizes, error) {
	var prims uint64
	switch desc.Kind {
	case backend.BottomLevel:
		for _, n := range desc.TriangleCount {
			prims += uint64(n)
		}
	case backend.TopLevel:
		prims = uint64(desc.InstanceCount)
	default:
		return backend.AccelerationStructureSizes{}, fmt.Errorf("host: acceleration structure kind %d: %w", desc.Kind, backend.ErrUnsupported)
	}
	size := uint64(bvhHeaderSize) + 2*prims*bvhNodeSize
	if desc.Kind == backend.TopLevel {
		size += prims * bvhInstanceSize
	}
	sizes := backend.AccelerationStructureSizes{
		AccelerationStructureSize: alignUp(size, bvhAlignment),
		ScratchSize:               alignUp(prims*bvhScratchPerPrim, bvhAlignment),
	}
	if desc.AllowUpdate {
		sizes.UpdateScratchSize = alignUp(sizes.ScratchSize/bvhUpdateScratchDiv, bvhAlignment)
	}
	return sizes, nil
}

// CreateAccelerationStructure places a structure in a region of backing.
func (b *Backend) CreateAccelerationStructure(backing backend.Memory, offset, size uint64) (backend.AccelerationStructure, error) {
	buf, err := hostBuffer(backing)
	if err != nil {
		return nil, err
	}
	if err := checkRange("acceleration structure", offset, size, buf.Size()); err != nil {
		return nil, err
	}
	return &accelerationStructure{
		handle:  asHandles.Add(1),
		backing: buf,
		offset:  offset,
		size:    size,
	}, nil
}

// FreeAccelerationStructure drops the structure. The backing buffer is owned
// by the caller.
func (b *Backend) FreeAccelerationStructure(as backend.AccelerationStructure) {
	if a, ok := as.(*accelerationStructure); ok {
		a.backing = nil
	}
}

func alignUp(v, a uint64) uint64 {
	return (v + a - 1) / a * a
}
