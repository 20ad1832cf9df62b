package host

import (
	"fmt"

	"github.com/gogpu/rhi/backend"
)

// buffer is a linear host allocation.
type buffer struct {
	data []byte
	// handle is non-zero when the bytes live in the shared handle table.
	handle uint64
}

func (m *buffer) Size() uint64  { return uint64(len(m.data)) }
func (m *buffer) Bytes() []byte { return m.data }

// image stores one contiguous region per mip level, each laid out
// layer-major with tightly packed rows.
type image struct {
	desc   backend.ImageDesc
	mips   [][]byte
	handle uint64
}

func (i *image) Desc() backend.ImageDesc { return i.desc }

type imageView struct {
	img  *image
	kind backend.ViewKind
}

func (v *imageView) Image() backend.Image   { return v.img }
func (v *imageView) Kind() backend.ViewKind { return v.kind }

// Bytes exposes mip 0 to kernels.
func (v *imageView) Bytes() []byte { return v.img.mips[0] }

// AllocBuffer allocates zeroed host memory.
func (b *Backend) AllocBuffer(desc backend.BufferDesc) (backend.Memory, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	if desc.Size > b.Limits().MaxBufferSize {
		return nil, fmt.Errorf("host: buffer %q of %d bytes: %w", desc.Label, desc.Size, backend.ErrOutOfMemory)
	}
	b.track(1)
	return &buffer{data: make([]byte, desc.Size)}, nil
}

// FreeBuffer releases a buffer. Memory shared through a handle stays alive
// for the other importers.
func (b *Backend) FreeBuffer(m backend.Memory) {
	if buf, ok := m.(*buffer); ok {
		if buf.handle != 0 {
			releaseShared(buf.handle)
		}
		buf.data = nil
		b.track(-1)
	}
}

// AllocImage allocates every mip level of an image.
func (b *Backend) AllocImage(desc backend.ImageDesc) (backend.Image, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	img := &image{desc: desc, mips: make([][]byte, max(desc.MipLevels, 1))}
	for mip := range img.mips {
		img.mips[mip] = make([]byte, desc.MipSize(uint32(mip))) // #nosec G115 -- mip count fits uint32
	}
	b.track(1)
	return img, nil
}

// FreeImage releases an image.
func (b *Backend) FreeImage(i backend.Image) {
	if img, ok := i.(*image); ok {
		if img.handle != 0 {
			releaseShared(img.handle)
		}
		img.mips = nil
		b.track(-1)
	}
}

// CreateImageView returns a view over img. Host views need no allocation.
func (b *Backend) CreateImageView(i backend.Image, kind backend.ViewKind) (backend.ImageView, error) {
	img, ok := i.(*image)
	if !ok {
		return nil, backend.ErrForeignObject
	}
	return &imageView{img: img, kind: kind}, nil
}

func hostBuffer(m backend.Memory) (*buffer, error) {
	buf, ok := m.(*buffer)
	if !ok {
		return nil, backend.ErrForeignObject
	}
	return buf, nil
}

func checkRange(op string, offset, size, limit uint64) error {
	if offset > limit || size > limit-offset {
		return fmt.Errorf("host: %s [%d, +%d) exceeds %d bytes: %w", op, offset, size, limit, backend.ErrOutOfBounds)
	}
	return nil
}

// WriteBuffer copies data into dst at offset.
func (b *Backend) WriteBuffer(dst backend.Memory, offset uint64, data []byte) error {
	buf, err := hostBuffer(dst)
	if err != nil {
		return err
	}
	if err := checkRange("write", offset, uint64(len(data)), buf.Size()); err != nil {
		return err
	}
	copy(buf.data[offset:], data)
	return nil
}

// ReadBuffer copies len(dst) bytes from src at offset.
func (b *Backend) ReadBuffer(src backend.Memory, offset uint64, dst []byte) error {
	buf, err := hostBuffer(src)
	if err != nil {
		return err
	}
	if err := checkRange("read", offset, uint64(len(dst)), buf.Size()); err != nil {
		return err
	}
	copy(dst, buf.data[offset:])
	return nil
}

// CopyBuffer copies size bytes between buffers. Overlapping ranges of the
// same buffer behave like memmove.
func (b *Backend) CopyBuffer(dst backend.Memory, dstOffset uint64, src backend.Memory, srcOffset, size uint64) error {
	d, err := hostBuffer(dst)
	if err != nil {
		return err
	}
	s, err := hostBuffer(src)
	if err != nil {
		return err
	}
	if err := checkRange("copy source", srcOffset, size, s.Size()); err != nil {
		return err
	}
	if err := checkRange("copy destination", dstOffset, size, d.Size()); err != nil {
		return err
	}
	copy(d.data[dstOffset:dstOffset+size], s.data[srcOffset:srcOffset+size])
	return nil
}

func (b *Backend) mipLevel(i backend.Image, mip uint32) ([]byte, error) {
	img, ok := i.(*image)
	if !ok {
		return nil, backend.ErrForeignObject
	}
	if int(mip) >= len(img.mips) {
		return nil, fmt.Errorf("host: mip %d of %d: %w", mip, len(img.mips), backend.ErrOutOfBounds)
	}
	return img.mips[mip], nil
}

// WriteImage uploads one mip level.
func (b *Backend) WriteImage(dst backend.Image, mip uint32, data []byte) error {
	level, err := b.mipLevel(dst, mip)
	if err != nil {
		return err
	}
	if err := checkRange("image write", 0, uint64(len(data)), uint64(len(level))); err != nil {
		return err
	}
	copy(level, data)
	return nil
}

// ReadImage downloads one mip level.
func (b *Backend) ReadImage(src backend.Image, mip uint32, dst []byte) error {
	level, err := b.mipLevel(src, mip)
	if err != nil {
		return err
	}
	if err := checkRange("image read", 0, uint64(len(dst)), uint64(len(level))); err != nil {
		return err
	}
	copy(dst, level)
	return nil
}
