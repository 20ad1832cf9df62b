package backend

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi/reflection"
)

// Memory is a backend allocation of linear device memory.
type Memory interface {
	Size() uint64
}

// HostVisible is implemented by memory the host can address directly.
type HostVisible interface {
	Bytes() []byte
}

// Image is a backend allocation of image memory.
type Image interface {
	Desc() ImageDesc
}

// ViewKind selects how an image is exposed to kernels.
type ViewKind uint8

const (
	// ViewSampled is the read-only sampled-texture binding.
	ViewSampled ViewKind = iota
	// ViewSurface is the writable surface binding.
	ViewSurface
)

// ImageView is a bindable view of an image.
type ImageView interface {
	Image() Image
	Kind() ViewKind
}

// Kernel is a compiled, launchable kernel.
type Kernel interface {
	Name() string
	ThreadGroupSize() [3]uint32
}

// BufferDesc describes a buffer allocation.
type BufferDesc struct {
	Label string
	Size  uint64
	Usage gputypes.BufferUsage
	// HostVisible requests memory the host maps for reading or writing.
	HostVisible bool
}

// ImageDimension is the rank of an image allocation.
type ImageDimension uint8

const (
	Image1D ImageDimension = iota
	Image2D
	Image3D
	ImageCube
)

// ImageDesc describes an image allocation.
//
// Extents are positional: a dimension above the image's rank is zero.
// Cube images have Depth 1 and ArrayLayers already multiplied by six.
type ImageDesc struct {
	Label       string
	Dimension   ImageDimension
	Width       uint32
	Height      uint32
	Depth       uint32
	ArrayLayers uint32
	MipLevels   uint32
	Format      gputypes.TextureFormat
	ElementSize uint32
	Usage       gputypes.TextureUsage
	SampleCount uint32
}

// MipExtent returns the extent of a mip level, clamped to one texel.
func (d ImageDesc) MipExtent(mip uint32) (w, h, depth uint32) {
	w = max(d.Width>>mip, 1)
	h = max(d.Height>>mip, 1)
	depth = max(d.Depth>>mip, 1)
	return w, h, depth
}

// Layers returns the number of array layers (faces count as layers).
func (d ImageDesc) Layers() uint32 {
	return max(d.ArrayLayers, 1)
}

// MipSize returns the byte size of one mip level across all layers, laid
// out layer-major with tightly packed rows.
func (d ImageDesc) MipSize(mip uint32) uint64 {
	w, h, depth := d.MipExtent(mip)
	return uint64(d.ElementSize) * uint64(w) * uint64(h) * uint64(depth) * uint64(d.Layers())
}

// KernelRequest asks a backend for a concrete kernel.
type KernelRequest struct {
	Label           string
	Source          *Source
	Program         *reflection.Program
	EntryPoint      string
	EntryPointIndex int
	// TypeParams and TypeArgs are parallel: TypeArgs[i] is the concrete
	// type bound to the interface TypeParams[i].
	TypeParams []string
	TypeArgs   []string
}

// Source carries the forms a program can be compiled from. A backend uses
// the form it understands and reports ErrUnsupported if it is missing.
type Source struct {
	Name string
	// WGSL is generic WGSL source. Interface types are referenced by name
	// and bound by prepending type aliases at specialization.
	WGSL string
	// TypeWGSL holds the WGSL declarations of each concrete type.
	TypeWGSL map[string]string
	// Host links a Go kernel for the host backend.
	Host HostModule
}

// Backend is the native execution collaborator of a device.
type Backend interface {
	Name() string
	Info() gputypes.AdapterInfo
	Features() []string
	Limits() gputypes.Limits

	AllocBuffer(desc BufferDesc) (Memory, error)
	FreeBuffer(m Memory)
	AllocImage(desc ImageDesc) (Image, error)
	FreeImage(img Image)
	CreateImageView(img Image, kind ViewKind) (ImageView, error)

	WriteBuffer(dst Memory, offset uint64, data []byte) error
	ReadBuffer(src Memory, offset uint64, dst []byte) error
	CopyBuffer(dst Memory, dstOffset uint64, src Memory, srcOffset, size uint64) error
	// WriteImage uploads one mip level from a layer-major contiguous region.
	WriteImage(dst Image, mip uint32, data []byte) error
	ReadImage(src Image, mip uint32, dst []byte) error

	// CompileKernel returns the kernel plus compiler diagnostics. Diagnostics
	// may be non-empty on success.
	CompileKernel(req *KernelRequest) (Kernel, []byte, error)
	FreeKernel(k Kernel)
	Launch(k Kernel, groups [3]uint32, globals, entry *ArgumentBlock) error

	// Synchronize blocks until all launched work has completed.
	Synchronize() error
	Close() error
}

// HandleType identifies the API a shared handle comes from.
type HandleType uint8

const (
	HandleUnknown HandleType = iota
	HandleWin32
	HandleFD
	HandleD3D12Resource
	HandleHost
)

// SharedHandle is an opaque interop handle. The zero value is null.
type SharedHandle struct {
	Type  HandleType
	Value uint64
}

// IsNull reports whether the handle refers to nothing.
func (h SharedHandle) IsNull() bool { return h.Value == 0 }

// ExternalMemoryImporter imports memory exported by another API.
type ExternalMemoryImporter interface {
	ImportBuffer(h SharedHandle, size uint64) (Memory, error)
	ImportImage(h SharedHandle, size uint64, desc ImageDesc) (Image, error)
}

// ExternalMemoryExporter exports memory so another API can import it.
type ExternalMemoryExporter interface {
	ExportBuffer(m Memory) (SharedHandle, error)
}

// TimestampWriter reads the device clock.
type TimestampWriter interface {
	Timestamp() (uint64, error)
	// TimestampFrequency returns clock ticks per second.
	TimestampFrequency() uint64
}

// AccelerationStructureKind distinguishes instance and geometry levels.
type AccelerationStructureKind uint8

const (
	BottomLevel AccelerationStructureKind = iota
	TopLevel
)

// AccelerationStructureBuildDesc is the input to size queries.
type AccelerationStructureBuildDesc struct {
	Kind          AccelerationStructureKind
	TriangleCount []uint32
	InstanceCount uint32
	AllowUpdate   bool
}

// AccelerationStructureSizes are the memory requirements of a build.
type AccelerationStructureSizes struct {
	AccelerationStructureSize uint64
	ScratchSize               uint64
	UpdateScratchSize         uint64
}

// AccelerationStructure is a backend ray tracing structure.
type AccelerationStructure interface {
	Handle() uint64
}

// RayTracer builds acceleration structures.
type RayTracer interface {
	AccelerationStructureSizes(desc AccelerationStructureBuildDesc) (AccelerationStructureSizes, error)
	CreateAccelerationStructure(backing Memory, offset, size uint64) (AccelerationStructure, error)
	FreeAccelerationStructure(as AccelerationStructure)
}

// SamplerDesc describes a sampler object.
type SamplerDesc struct {
	Label        string
	AddressModeU gputypes.AddressMode
	AddressModeV gputypes.AddressMode
	AddressModeW gputypes.AddressMode
	MagFilter    gputypes.FilterMode
	MinFilter    gputypes.FilterMode
	MipmapFilter gputypes.FilterMode
	LodMinClamp  float32
	LodMaxClamp  float32
}

// Sampler is a backend sampler object.
type Sampler interface {
	Desc() SamplerDesc
}

// SamplerCreator creates sampler objects.
type SamplerCreator interface {
	CreateSampler(desc SamplerDesc) (Sampler, error)
	FreeSampler(s Sampler)
}
