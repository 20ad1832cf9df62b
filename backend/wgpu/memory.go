package wgpu

import (
	"fmt"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi/backend"
)

// bufferUsage is added to every allocation so that buffers can be bound as
// storage and copied in both directions.
const bufferUsage = gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst

type buffer struct {
	id       uint64
	raw      hal.Buffer
	size     uint64
	mappable bool
}

func (m *buffer) Size() uint64 { return m.size }

type image struct {
	id    uint64
	raw   hal.Texture
	desc  backend.ImageDesc
	views []*imageView
}

func (i *image) Desc() backend.ImageDesc { return i.desc }

type imageView struct {
	id   uint64
	img  *image
	kind backend.ViewKind
	raw  hal.TextureView
}

func (v *imageView) Image() backend.Image   { return v.img }
func (v *imageView) Kind() backend.ViewKind { return v.kind }

func asBuffer(m backend.Memory) (*buffer, error) {
	buf, ok := m.(*buffer)
	if !ok || buf == nil || buf.raw == nil {
		return nil, fmt.Errorf("wgpu: memory %T: %w", m, backend.ErrForeignObject)
	}
	return buf, nil
}

func asImage(img backend.Image) (*image, error) {
	i, ok := img.(*image)
	if !ok || i == nil || i.raw == nil {
		return nil, fmt.Errorf("wgpu: image %T: %w", img, backend.ErrForeignObject)
	}
	return i, nil
}

// AllocBuffer creates a HAL buffer. Host-visible buffers are mappable.
func (b *Backend) AllocBuffer(desc backend.BufferDesc) (backend.Memory, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	if desc.Size > b.limits.MaxBufferSize {
		return nil, fmt.Errorf("wgpu: buffer %q of %d bytes: %w", desc.Label, desc.Size, backend.ErrOutOfMemory)
	}
	usage := desc.Usage | bufferUsage
	if desc.HostVisible {
		usage |= gputypes.BufferUsageMapRead | gputypes.BufferUsageMapWrite
	}
	raw, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  alignUp(max(desc.Size, 4), 4),
		Usage: usage,
	})
	if err != nil {
		return nil, halError("create buffer "+desc.Label, err)
	}
	b.live.Add(1)
	return &buffer{id: b.newID(), raw: raw, size: desc.Size, mappable: desc.HostVisible}, nil
}

// FreeBuffer destroys a buffer and every cached bind group that uses it.
func (b *Backend) FreeBuffer(m backend.Memory) {
	buf, err := asBuffer(m)
	if err != nil {
		return
	}
	b.forget(buf.id)
	b.device.DestroyBuffer(buf.raw)
	buf.raw = nil
	b.live.Add(-1)
}

// WriteBuffer uploads through the queue.
func (b *Backend) WriteBuffer(dst backend.Memory, offset uint64, data []byte) error {
	buf, err := asBuffer(dst)
	if err != nil {
		return err
	}
	if offset+uint64(len(data)) > buf.size {
		return fmt.Errorf("wgpu: write of %d bytes at %d: %w", len(data), offset, backend.ErrOutOfBounds)
	}
	if err := b.queue.WriteBuffer(buf.raw, offset, data); err != nil {
		return halError("write buffer", err)
	}
	return nil
}

// ReadBuffer waits for the device, then maps host-visible buffers directly
// and reads device-local ones through a staging copy.
func (b *Backend) ReadBuffer(src backend.Memory, offset uint64, dst []byte) error {
	buf, err := asBuffer(src)
	if err != nil {
		return err
	}
	size := uint64(len(dst))
	if offset+size > buf.size {
		return fmt.Errorf("wgpu: read of %d bytes at %d: %w", size, offset, backend.ErrOutOfBounds)
	}
	if size == 0 {
		return nil
	}
	if err := b.Synchronize(); err != nil {
		return err
	}
	if buf.mappable {
		return b.readMapped(buf.raw, offset, dst)
	}

	// Copies need 4-byte aligned offsets and sizes.
	start := offset &^ 3
	span := alignUp(offset+size, 4) - start
	staging, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "rhi_readback",
		Size:  span,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return halError("create staging buffer", err)
	}
	defer b.device.DestroyBuffer(staging)

	err = b.submit("rhi_readback", func(enc hal.CommandEncoder) {
		enc.CopyBufferToBuffer(buf.raw, staging, []hal.BufferCopy{{SrcOffset: start, DstOffset: 0, Size: span}})
	})
	if err != nil {
		return err
	}
	return b.readMapped(staging, offset-start, dst)
}

func (b *Backend) readMapped(raw hal.Buffer, offset uint64, dst []byte) error {
	mapping, err := b.device.MapBuffer(raw, offset, uint64(len(dst)))
	if err != nil {
		return halError("map buffer", err)
	}
	copy(dst, unsafe.Slice((*byte)(mapping.Ptr), len(dst)))
	if err := b.device.UnmapBuffer(raw); err != nil {
		return halError("unmap buffer", err)
	}
	return nil
}

// CopyBuffer records and submits a buffer to buffer copy.
func (b *Backend) CopyBuffer(dst backend.Memory, dstOffset uint64, src backend.Memory, srcOffset, size uint64) error {
	d, err := asBuffer(dst)
	if err != nil {
		return err
	}
	s, err := asBuffer(src)
	if err != nil {
		return err
	}
	if srcOffset+size > s.size || dstOffset+size > d.size {
		return fmt.Errorf("wgpu: copy of %d bytes: %w", size, backend.ErrOutOfBounds)
	}
	if size == 0 {
		return nil
	}
	return b.submit("rhi_copy", func(enc hal.CommandEncoder) {
		enc.CopyBufferToBuffer(s.raw, d.raw, []hal.BufferCopy{{SrcOffset: srcOffset, DstOffset: dstOffset, Size: size}})
	})
}

// submit encodes one command buffer, submits it and waits for completion.
func (b *Backend) submit(label string, record func(enc hal.CommandEncoder)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.submitLocked(label, record)
}

func (b *Backend) submitLocked(label string, record func(enc hal.CommandEncoder)) error {
	encoder, err := b.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return halError("create command encoder", err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		return halError("begin encoding", err)
	}
	record(encoder)
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return halError("end encoding", err)
	}
	defer b.device.FreeCommandBuffer(cmdBuf)

	if _, err := b.queue.Submit([]hal.CommandBuffer{cmdBuf}); err != nil {
		return halError("submit", err)
	}
	if err := b.device.WaitIdle(); err != nil {
		return halError("wait idle", err)
	}
	return nil
}

var textureDimensions = map[backend.ImageDimension]gputypes.TextureDimension{
	backend.Image1D:   gputypes.TextureDimension1D,
	backend.Image2D:   gputypes.TextureDimension2D,
	backend.Image3D:   gputypes.TextureDimension3D,
	backend.ImageCube: gputypes.TextureDimension2D,
}

// AllocImage creates a HAL texture. Cube images are 2D arrays of faces.
func (b *Backend) AllocImage(desc backend.ImageDesc) (backend.Image, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	depthOrLayers := desc.Layers()
	if desc.Dimension == backend.Image3D {
		depthOrLayers = max(desc.Depth, 1)
	}
	raw, err := b.device.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          hal.Extent3D{Width: max(desc.Width, 1), Height: max(desc.Height, 1), DepthOrArrayLayers: depthOrLayers},
		MipLevelCount: max(desc.MipLevels, 1),
		SampleCount:   max(desc.SampleCount, 1),
		Dimension:     textureDimensions[desc.Dimension],
		Format:        desc.Format,
		Usage:         desc.Usage | gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, halError("create texture "+desc.Label, err)
	}
	b.live.Add(1)
	return &image{id: b.newID(), raw: raw, desc: desc}, nil
}

// FreeImage destroys a texture and the cached bind groups that use it.
func (b *Backend) FreeImage(img backend.Image) {
	i, err := asImage(img)
	if err != nil {
		return
	}
	b.forget(i.id)
	for _, v := range i.views {
		b.forget(v.id)
		b.device.DestroyTextureView(v.raw)
	}
	i.views = nil
	b.device.DestroyTexture(i.raw)
	i.raw = nil
	b.live.Add(-1)
}

// viewDimension returns the view dimension covering every layer of an
// image.
func viewDimension(desc backend.ImageDesc) gputypes.TextureViewDimension {
	switch desc.Dimension {
	case backend.Image1D:
		return gputypes.TextureViewDimension1D
	case backend.Image3D:
		return gputypes.TextureViewDimension3D
	case backend.ImageCube:
		if desc.Layers() > 6 {
			return gputypes.TextureViewDimensionCubeArray
		}
		return gputypes.TextureViewDimensionCube
	}
	if desc.Layers() > 1 {
		return gputypes.TextureViewDimension2DArray
	}
	return gputypes.TextureViewDimension2D
}

// CreateImageView creates a view over all mips and layers. Surface views
// of cube images are 2D arrays, since storage bindings cannot be cubes.
func (b *Backend) CreateImageView(img backend.Image, kind backend.ViewKind) (backend.ImageView, error) {
	i, err := asImage(img)
	if err != nil {
		return nil, err
	}
	dim := viewDimension(i.desc)
	mips := max(i.desc.MipLevels, 1)
	if kind == backend.ViewSurface {
		mips = 1
		if i.desc.Dimension == backend.ImageCube {
			dim = gputypes.TextureViewDimension2DArray
		}
	}
	layers := i.desc.Layers()
	if i.desc.Dimension == backend.Image3D {
		layers = 1
	}
	raw, err := b.device.CreateTextureView(i.raw, &hal.TextureViewDescriptor{
		Label:           i.desc.Label,
		Format:          i.desc.Format,
		Dimension:       dim,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   mips,
		ArrayLayerCount: layers,
	})
	if err != nil {
		return nil, halError("create texture view", err)
	}
	v := &imageView{id: b.newID(), img: i, kind: kind, raw: raw}
	b.mu.Lock()
	i.views = append(i.views, v)
	b.mu.Unlock()
	return v, nil
}

// WriteImage uploads one mip level of every layer.
func (b *Backend) WriteImage(dst backend.Image, mip uint32, data []byte) error {
	i, err := asImage(dst)
	if err != nil {
		return err
	}
	if want := i.desc.MipSize(mip); uint64(len(data)) != want {
		return fmt.Errorf("wgpu: mip %d upload of %d bytes, want %d: %w", mip, len(data), want, backend.ErrOutOfBounds)
	}
	w, h, depth := i.desc.MipExtent(mip)
	if i.desc.Dimension != backend.Image3D {
		depth = i.desc.Layers()
	}
	err = b.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: i.raw, MipLevel: mip, Aspect: gputypes.TextureAspectAll},
		data,
		&hal.ImageDataLayout{BytesPerRow: w * i.desc.ElementSize, RowsPerImage: h},
		&hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: depth},
	)
	if err != nil {
		return halError("write texture", err)
	}
	return nil
}

// copyRowAlignment is the row pitch texture to buffer copies require.
const copyRowAlignment = 256

// ReadImage reads one mip level back through a staging buffer and strips
// the row padding copies require.
func (b *Backend) ReadImage(src backend.Image, mip uint32, dst []byte) error {
	i, err := asImage(src)
	if err != nil {
		return err
	}
	if want := i.desc.MipSize(mip); uint64(len(dst)) != want {
		return fmt.Errorf("wgpu: mip %d read of %d bytes, want %d: %w", mip, len(dst), want, backend.ErrOutOfBounds)
	}
	w, h, depth := i.desc.MipExtent(mip)
	if i.desc.Dimension != backend.Image3D {
		depth = i.desc.Layers()
	}
	row := uint64(w) * uint64(i.desc.ElementSize)
	pitch := alignUp(row, copyRowAlignment)
	staging, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "rhi_image_readback",
		Size:  pitch * uint64(h) * uint64(depth),
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return halError("create staging buffer", err)
	}
	defer b.device.DestroyBuffer(staging)

	err = b.submit("rhi_image_readback", func(enc hal.CommandEncoder) {
		enc.CopyTextureToBuffer(i.raw, staging, []hal.BufferTextureCopy{{
			BufferLayout: hal.ImageDataLayout{BytesPerRow: uint32(pitch), RowsPerImage: h}, // #nosec G115 -- pitch fits the texture row limit
			TextureBase:  hal.ImageCopyTexture{Texture: i.raw, MipLevel: mip, Aspect: gputypes.TextureAspectAll},
			Size:         hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: depth},
		}})
	})
	if err != nil {
		return err
	}

	padded := make([]byte, pitch*uint64(h)*uint64(depth))
	if err := b.readMapped(staging, 0, padded); err != nil {
		return err
	}
	for r := range uint64(h) * uint64(depth) {
		copy(dst[r*row:(r+1)*row], padded[r*pitch:])
	}
	return nil
}

func alignUp(v, a uint64) uint64 {
	return (v + a - 1) &^ (a - 1)
}
