package rhi

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi/backend"
)

// MemoryType selects where a buffer lives.
type MemoryType uint8

const (
	// MemoryDeviceLocal is fastest for kernels. The host reaches it through
	// copies only.
	MemoryDeviceLocal MemoryType = iota
	// MemoryUpload is host-writable memory.
	MemoryUpload
	// MemoryReadBack is host-readable memory.
	MemoryReadBack
)

// BufferDesc describes a buffer.
type BufferDesc struct {
	Label string
	Size  uint64
	// ElementSize is the structured element stride. Zero lets the binding
	// site infer it from reflection.
	ElementSize uint32
	Usage       gputypes.BufferUsage
	MemoryType  MemoryType
}

// Buffer is linear device memory.
type Buffer struct {
	device *Device
	desc   BufferDesc
	mem    backend.Memory
	refs   refCount
}

// CreateBuffer allocates a buffer and uploads initData, if any, to its
// start.
func (d *Device) CreateBuffer(desc BufferDesc, initData []byte) (*Buffer, error) {
	if err := d.checkLive(); err != nil {
		return nil, err
	}
	if desc.Usage.ContainsUnknownBits() {
		return nil, validationError("buffer %q: unknown usage bits %#x", desc.Label, uint64(desc.Usage))
	}
	if uint64(len(initData)) > desc.Size {
		return nil, validationError("buffer %q: %d bytes of initial data exceed size %d", desc.Label, len(initData), desc.Size)
	}
	if desc.Size > d.limits.MaxBufferSize {
		return nil, fmt.Errorf("rhi: buffer %q: size %d exceeds device limit %d: %w", desc.Label, desc.Size, d.limits.MaxBufferSize, ErrOutOfMemory)
	}

	mem, err := d.backend.AllocBuffer(backend.BufferDesc{
		Label:       desc.Label,
		Size:        desc.Size,
		Usage:       desc.Usage,
		HostVisible: desc.MemoryType != MemoryDeviceLocal,
	})
	if err != nil {
		return nil, wrapBackend("allocate buffer", err)
	}
	if len(initData) > 0 {
		if err := d.backend.WriteBuffer(mem, 0, initData); err != nil {
			d.backend.FreeBuffer(mem)
			return nil, wrapBackend("upload buffer data", err)
		}
	}
	return d.wrapBuffer(desc, mem), nil
}

func (d *Device) wrapBuffer(desc BufferDesc, mem backend.Memory) *Buffer {
	b := &Buffer{device: d, desc: desc, mem: mem}
	b.refs.init()
	d.log.Debug("rhi: buffer created", "label", desc.Label, "size", desc.Size)
	return b
}

// CreateBufferFromSharedHandle wraps memory exported by another API. A null
// handle yields a nil buffer and no error.
func (d *Device) CreateBufferFromSharedHandle(h SharedHandle, desc BufferDesc) (*Buffer, error) {
	if h.IsNull() {
		return nil, nil
	}
	if err := d.checkLive(); err != nil {
		return nil, err
	}
	if d.importer == nil {
		return nil, fmt.Errorf("rhi: import buffer %q: %w", desc.Label, ErrUnsupported)
	}
	mem, err := d.importer.ImportBuffer(h, desc.Size)
	if err != nil {
		return nil, wrapBackend("import buffer", err)
	}
	return d.wrapBuffer(desc, mem), nil
}

// Desc returns the creation descriptor.
func (b *Buffer) Desc() BufferDesc { return b.desc }

// Size returns the size in bytes.
func (b *Buffer) Size() uint64 { return b.desc.Size }

// Memory returns the backend allocation.
func (b *Buffer) Memory() backend.Memory { return b.mem }

// SharedHandle exports the buffer so another API can import it.
func (b *Buffer) SharedHandle() (SharedHandle, error) {
	if b.device.exporter == nil {
		return SharedHandle{}, fmt.Errorf("rhi: export buffer %q: %w", b.desc.Label, ErrUnsupported)
	}
	h, err := b.device.exporter.ExportBuffer(b.mem)
	if err != nil {
		return SharedHandle{}, wrapBackend("export buffer", err)
	}
	return h, nil
}

// Retain adds a reference.
func (b *Buffer) Retain() { b.refs.retain() }

// Release drops a reference and frees the memory with the last one.
func (b *Buffer) Release() {
	if b.refs.release() {
		b.device.backend.FreeBuffer(b.mem)
		b.mem = nil
	}
}

// ReadBuffer copies size bytes starting at offset out of buf. It waits for
// submitted work to finish first.
func (d *Device) ReadBuffer(buf *Buffer, offset, size uint64) ([]byte, error) {
	if err := d.checkLive(); err != nil {
		return nil, err
	}
	if offset > buf.desc.Size || size > buf.desc.Size-offset {
		return nil, validationError("read of [%d, +%d) from buffer %q of %d bytes", offset, size, buf.desc.Label, buf.desc.Size)
	}
	d.queue.drain()
	out := make([]byte, size)
	if err := d.backend.ReadBuffer(buf.mem, offset, out); err != nil {
		return nil, wrapBackend("read buffer", err)
	}
	return out, nil
}
