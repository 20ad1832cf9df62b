package backend

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/rhi/reflection"
)

// ResourceKind tags what a ResourceBinding carries.
type ResourceKind uint8

const (
	ResourceBuffer ResourceKind = iota
	ResourceTexture
	ResourceSampler
	ResourceAccelerationStructure
)

// ResourceBinding is one resource slot flattened out of a shader object.
type ResourceBinding struct {
	// Path is the dotted parameter path, relative to the block.
	Path string
	// Binding is the native binding point from reflection, if any.
	Binding *reflection.BindingPoint
	Kind    ResourceKind
	Access  reflection.ResourceAccess

	Buffer      Memory
	Offset      uint64
	Size        uint64
	ElementSize uint32

	View                  ImageView
	Sampler               Sampler
	AccelerationStructure AccelerationStructure
}

// ObjectRange locates the uniform bytes of one sub-object inside a block.
// Size covers the object's own data, not the sub-objects it holds.
type ObjectRange struct {
	Path   string
	Offset uint32
	Size   uint32
}

// ArgumentBlock is the flattened parameter data for one kernel launch: the
// uniform bytes, the byte offset of every uniform leaf and the resources.
type ArgumentBlock struct {
	Data      []byte
	Offsets   map[string]uint32
	Resources []ResourceBinding
	Objects   []ObjectRange
}

// NewArgumentBlock returns an empty block.
func NewArgumentBlock() *ArgumentBlock {
	return &ArgumentBlock{Offsets: make(map[string]uint32)}
}

// Offset returns the byte offset of a uniform leaf.
func (b *ArgumentBlock) Offset(path string) (uint32, bool) {
	if b == nil {
		return 0, false
	}
	off, ok := b.Offsets[path]
	return off, ok
}

// Resource returns the binding recorded at path.
func (b *ArgumentBlock) Resource(path string) (*ResourceBinding, bool) {
	if b == nil {
		return nil, false
	}
	for i := range b.Resources {
		if b.Resources[i].Path == path {
			return &b.Resources[i], true
		}
	}
	return nil, false
}

// Object returns the byte range of the sub-object bound at path.
func (b *ArgumentBlock) Object(path string) (ObjectRange, bool) {
	if b == nil {
		return ObjectRange{}, false
	}
	for _, o := range b.Objects {
		if o.Path == path {
			return o, true
		}
	}
	return ObjectRange{}, false
}

// Bytes returns the uniform bytes of an object range.
func (b *ArgumentBlock) Bytes(o ObjectRange) []byte {
	end := min(int(o.Offset)+int(o.Size), len(b.Data))
	if int(o.Offset) >= end {
		return nil
	}
	return b.Data[o.Offset:end]
}

// Uint32 reads a uniform value. Missing paths read as zero.
func (b *ArgumentBlock) Uint32(path string) uint32 {
	off, ok := b.Offset(path)
	if !ok || int(off)+4 > len(b.Data) {
		return 0
	}
	return binary.LittleEndian.Uint32(b.Data[off:])
}

// Int32 reads a uniform value. Missing paths read as zero.
func (b *ArgumentBlock) Int32(path string) int32 {
	return int32(b.Uint32(path)) // #nosec G115 -- bit reinterpretation
}

// Float32 reads a uniform value. Missing paths read as zero.
func (b *ArgumentBlock) Float32(path string) float32 {
	return math.Float32frombits(b.Uint32(path))
}

// Buffer returns a typed view of the host-visible buffer bound at path.
// The view is empty when nothing host-visible is bound there.
func (b *ArgumentBlock) Buffer(path string) BufferView {
	r, ok := b.Resource(path)
	if !ok || r.Kind != ResourceBuffer || r.Buffer == nil {
		return BufferView{}
	}
	hv, ok := r.Buffer.(HostVisible)
	if !ok {
		return BufferView{}
	}
	data := hv.Bytes()
	end := r.Offset + r.Size
	if r.Size == 0 || end > uint64(len(data)) {
		end = uint64(len(data))
	}
	if r.Offset > end {
		return BufferView{}
	}
	return BufferView{data: data[r.Offset:end], elementSize: r.ElementSize}
}

// BufferView is a little-endian element view over host memory.
type BufferView struct {
	data        []byte
	elementSize uint32
}

// Bytes returns the viewed bytes.
func (v BufferView) Bytes() []byte { return v.data }

// ElementSize returns the element stride.
func (v BufferView) ElementSize() uint32 { return v.elementSize }

// Len returns the number of whole elements.
func (v BufferView) Len() int {
	if v.elementSize == 0 {
		return 0
	}
	return len(v.data) / int(v.elementSize)
}

func (v BufferView) at(i, width int) []byte {
	off := i * int(v.elementSize)
	return v.data[off : off+width]
}

// Float32 reads element i.
func (v BufferView) Float32(i int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(v.at(i, 4)))
}

// SetFloat32 writes element i.
func (v BufferView) SetFloat32(i int, f float32) {
	binary.LittleEndian.PutUint32(v.at(i, 4), math.Float32bits(f))
}

// Uint32 reads element i.
func (v BufferView) Uint32(i int) uint32 {
	return binary.LittleEndian.Uint32(v.at(i, 4))
}

// SetUint32 writes element i.
func (v BufferView) SetUint32(i int, u uint32) {
	binary.LittleEndian.PutUint32(v.at(i, 4), u)
}

// Uint16 reads element i.
func (v BufferView) Uint16(i int) uint16 {
	return binary.LittleEndian.Uint16(v.at(i, 2))
}

// SetUint16 writes element i.
func (v BufferView) SetUint16(i int, u uint16) {
	binary.LittleEndian.PutUint16(v.at(i, 2), u)
}
