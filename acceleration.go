package rhi

import (
	"fmt"

	"github.com/gogpu/rhi/backend"
)

// AccelerationStructureBuildDesc is the geometry summary sizes are computed
// from.
type AccelerationStructureBuildDesc = backend.AccelerationStructureBuildDesc

// AccelerationStructureSizes are the memory requirements of a build.
type AccelerationStructureSizes = backend.AccelerationStructureSizes

// Acceleration structure levels.
const (
	BottomLevel = backend.BottomLevel
	TopLevel    = backend.TopLevel
)

// AccelerationStructureDesc places a structure inside a buffer.
type AccelerationStructureDesc struct {
	Kind   backend.AccelerationStructureKind
	Buffer *Buffer
	Offset uint64
	Size   uint64
}

// AccelerationStructure is a ray tracing structure backed by a buffer
// region. It keeps the buffer alive.
type AccelerationStructure struct {
	device *Device
	desc   AccelerationStructureDesc
	native backend.AccelerationStructure
	refs   refCount
}

// GetAccelerationStructureSizes reports the memory a build would need.
func (d *Device) GetAccelerationStructureSizes(desc AccelerationStructureBuildDesc) (AccelerationStructureSizes, error) {
	if d.rayTracer == nil {
		return AccelerationStructureSizes{}, fmt.Errorf("rhi: acceleration structure sizes: %w", ErrUnsupported)
	}
	sizes, err := d.rayTracer.AccelerationStructureSizes(desc)
	if err != nil {
		return AccelerationStructureSizes{}, wrapBackend("acceleration structure sizes", err)
	}
	return sizes, nil
}

// CreateAccelerationStructure creates a structure in desc.Buffer.
func (d *Device) CreateAccelerationStructure(desc AccelerationStructureDesc) (*AccelerationStructure, error) {
	if err := d.checkLive(); err != nil {
		return nil, err
	}
	if d.rayTracer == nil {
		return nil, fmt.Errorf("rhi: create acceleration structure: %w", ErrUnsupported)
	}
	if desc.Buffer == nil {
		return nil, validationError("acceleration structure without a backing buffer")
	}
	if desc.Offset > desc.Buffer.Size() || desc.Size > desc.Buffer.Size()-desc.Offset {
		return nil, validationError("acceleration structure [%d, +%d) outside buffer %q", desc.Offset, desc.Size, desc.Buffer.desc.Label)
	}
	native, err := d.rayTracer.CreateAccelerationStructure(desc.Buffer.mem, desc.Offset, desc.Size)
	if err != nil {
		return nil, wrapBackend("create acceleration structure", err)
	}
	desc.Buffer.Retain()
	as := &AccelerationStructure{device: d, desc: desc, native: native}
	as.refs.init()
	return as, nil
}

// Desc returns the creation descriptor.
func (a *AccelerationStructure) Desc() AccelerationStructureDesc { return a.desc }

// Handle returns the backend handle kernels address the structure by.
func (a *AccelerationStructure) Handle() uint64 { return a.native.Handle() }

// Retain adds a reference.
func (a *AccelerationStructure) Retain() { a.refs.retain() }

// Release drops a reference. The last release frees the structure and the
// reference it holds on its buffer.
func (a *AccelerationStructure) Release() {
	if a.refs.release() {
		a.device.rayTracer.FreeAccelerationStructure(a.native)
		a.desc.Buffer.Release()
		a.native = nil
	}
}
