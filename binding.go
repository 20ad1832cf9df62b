package rhi

import (
	"github.com/gogpu/rhi/backend"
	"github.com/gogpu/rhi/reflection"
)

// Binding is a resource placed in a shader object slot. The set of bindings
// is closed: BufferBinding, TextureBinding, SamplerBinding and
// AccelerationStructureBinding.
type Binding interface {
	check(r *BindingRange) error
	retain()
	release()
	resource(path string, r *BindingRange) backend.ResourceBinding
}

// BufferBinding binds a buffer range. A zero Size binds to the end of the
// buffer.
type BufferBinding struct {
	Buffer *Buffer
	Offset uint64
	Size   uint64
}

func (b BufferBinding) check(r *BindingRange) error {
	if b.Buffer == nil {
		return validationError("%s: nil buffer", r.Path)
	}
	if r.Kind != RangeResource || !r.Type.Shape.IsBuffer() {
		return validationError("%s: buffer bound to %s slot", r.Path, r.Type)
	}
	if b.Offset > b.Buffer.Size() || b.Size > b.Buffer.Size()-b.Offset {
		return validationError("%s: range [%d, +%d) outside buffer %q", r.Path, b.Offset, b.Size, b.Buffer.desc.Label)
	}
	return nil
}

func (b BufferBinding) retain()  { b.Buffer.Retain() }
func (b BufferBinding) release() { b.Buffer.Release() }

func (b BufferBinding) resource(path string, r *BindingRange) backend.ResourceBinding {
	size := b.Size
	if size == 0 {
		size = b.Buffer.Size() - b.Offset
	}
	elementSize := b.Buffer.desc.ElementSize
	if elementSize == 0 {
		elementSize = r.Type.ElementSize()
	}
	return backend.ResourceBinding{
		Path:        path,
		Binding:     r.Binding,
		Kind:        backend.ResourceBuffer,
		Access:      r.Type.Access,
		Buffer:      b.Buffer.mem,
		Offset:      b.Offset,
		Size:        size,
		ElementSize: elementSize,
	}
}

// TextureBinding binds a texture. Read-write slots use the texture's surface
// view, read-only slots its sampled view.
type TextureBinding struct {
	Texture *Texture
}

func (b TextureBinding) check(r *BindingRange) error {
	if b.Texture == nil {
		return validationError("%s: nil texture", r.Path)
	}
	if r.Kind != RangeResource || !r.Type.Shape.IsTexture() {
		return validationError("%s: texture bound to %s slot", r.Path, r.Type)
	}
	if r.Type.Access == reflection.AccessReadWrite && b.Texture.surface == nil {
		return validationError("%s: texture %q has no storage usage", r.Path, b.Texture.layout.desc.Label)
	}
	return nil
}

func (b TextureBinding) retain()  { b.Texture.Retain() }
func (b TextureBinding) release() { b.Texture.Release() }

func (b TextureBinding) resource(path string, r *BindingRange) backend.ResourceBinding {
	view := b.Texture.sampled
	if r.Type.Access == reflection.AccessReadWrite {
		view = b.Texture.surface
	}
	return backend.ResourceBinding{
		Path:        path,
		Binding:     r.Binding,
		Kind:        backend.ResourceTexture,
		Access:      r.Type.Access,
		View:        view,
		ElementSize: b.Texture.layout.elementSize,
	}
}

// SamplerBinding binds a sampler.
type SamplerBinding struct {
	Sampler *Sampler
}

func (b SamplerBinding) check(r *BindingRange) error {
	if b.Sampler == nil {
		return validationError("%s: nil sampler", r.Path)
	}
	if r.Kind != RangeSampler {
		return validationError("%s: sampler bound to %s slot", r.Path, r.Type)
	}
	return nil
}

func (b SamplerBinding) retain()  { b.Sampler.Retain() }
func (b SamplerBinding) release() { b.Sampler.Release() }

func (b SamplerBinding) resource(path string, r *BindingRange) backend.ResourceBinding {
	return backend.ResourceBinding{
		Path:    path,
		Binding: r.Binding,
		Kind:    backend.ResourceSampler,
		Sampler: b.Sampler.native,
	}
}

// AccelerationStructureBinding binds a ray tracing acceleration structure.
type AccelerationStructureBinding struct {
	AccelerationStructure *AccelerationStructure
}

func (b AccelerationStructureBinding) check(r *BindingRange) error {
	if b.AccelerationStructure == nil {
		return validationError("%s: nil acceleration structure", r.Path)
	}
	if r.Kind != RangeResource || r.Type.Shape != reflection.ShapeAccelerationStructure {
		return validationError("%s: acceleration structure bound to %s slot", r.Path, r.Type)
	}
	return nil
}

func (b AccelerationStructureBinding) retain()  { b.AccelerationStructure.Retain() }
func (b AccelerationStructureBinding) release() { b.AccelerationStructure.Release() }

func (b AccelerationStructureBinding) resource(path string, r *BindingRange) backend.ResourceBinding {
	return backend.ResourceBinding{
		Path:                  path,
		Binding:               r.Binding,
		Kind:                  backend.ResourceAccelerationStructure,
		AccelerationStructure: b.AccelerationStructure.native,
	}
}
