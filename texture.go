package rhi

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi/backend"
)

// TextureType is the shape of a texture.
type TextureType uint8

const (
	Texture1D TextureType = iota
	Texture2D
	Texture3D
	TextureCube
)

func (t TextureType) String() string {
	switch t {
	case Texture1D:
		return "1D"
	case Texture2D:
		return "2D"
	case Texture3D:
		return "3D"
	case TextureCube:
		return "Cube"
	default:
		return fmt.Sprintf("TextureType(%d)", uint8(t))
	}
}

// Extents is a texel extent. Dimensions above the texture's rank are zero.
type Extents struct {
	Width, Height, Depth uint32
}

// TextureDesc describes a texture.
type TextureDesc struct {
	Label string
	Type  TextureType
	Size  Extents
	// ArrayLength is the number of array elements; zero means one. For cube
	// textures each element has six faces.
	ArrayLength uint32
	// MipLevelCount of zero requests the full mip chain.
	MipLevelCount uint32
	Format        gputypes.TextureFormat
	Usage         gputypes.TextureUsage
	SampleCount   uint32
}

// textureStorage distinguishes how a texture's levels are held.
type textureStorage uint8

const (
	// storageArray is a single level, possibly arrayed.
	storageArray textureStorage = iota
	// storageMipChain holds more than one mip level.
	storageMipChain
)

// Texture is image memory plus the views kernels bind.
type Texture struct {
	device  *Device
	layout  textureLayout
	image   backend.Image
	storage textureStorage
	sampled backend.ImageView
	// surface is set for storage-bindable textures.
	surface backend.ImageView
	refs    refCount
}

// CreateTexture allocates a texture and uploads initData.
//
// When present, initData holds one entry per (mip, face) pair indexed
// initData[mip + face*mipLevelCount], where faces run over the array
// elements times six for cubes. Each entry is tightly packed rows of the
// face's texels.
func (d *Device) CreateTexture(desc TextureDesc, initData [][]byte) (*Texture, error) {
	if err := d.checkLive(); err != nil {
		return nil, err
	}
	l, err := d.resolveTextureLayout(desc)
	if err != nil {
		return nil, err
	}
	if initData != nil {
		if want := int(l.mipLevels * l.faceCount); len(initData) != want {
			return nil, validationError("texture %q: %d subresources of initial data, want %d", desc.Label, len(initData), want)
		}
	}

	img, err := d.backend.AllocImage(l.image)
	if err != nil {
		return nil, wrapBackend("allocate texture", err)
	}
	if initData != nil {
		for mip := range l.mipLevels {
			staging, err := l.gatherMip(initData, mip)
			if err == nil {
				err = wrapBackend("upload texture data", d.backend.WriteImage(img, mip, staging))
			}
			if err != nil {
				d.backend.FreeImage(img)
				return nil, err
			}
		}
	}
	return d.wrapTexture(l, img)
}

// CreateTextureFromSharedHandle wraps image memory exported by another API.
// size is the byte size of the shared allocation. A null handle yields a nil
// texture and no error.
func (d *Device) CreateTextureFromSharedHandle(h SharedHandle, desc TextureDesc, size uint64) (*Texture, error) {
	if h.IsNull() {
		return nil, nil
	}
	if err := d.checkLive(); err != nil {
		return nil, err
	}
	if d.importer == nil {
		return nil, fmt.Errorf("rhi: import texture %q: %w", desc.Label, ErrUnsupported)
	}
	l, err := d.resolveTextureLayout(desc)
	if err != nil {
		return nil, err
	}
	img, err := d.importer.ImportImage(h, size, l.image)
	if err != nil {
		return nil, wrapBackend("import texture", err)
	}
	return d.wrapTexture(l, img)
}

func (d *Device) wrapTexture(l textureLayout, img backend.Image) (*Texture, error) {
	t := &Texture{device: d, layout: l, image: img}
	if l.mipLevels > 1 {
		t.storage = storageMipChain
	}
	var err error
	if t.sampled, err = d.backend.CreateImageView(img, backend.ViewSampled); err != nil {
		d.backend.FreeImage(img)
		return nil, wrapBackend("create sampled view", err)
	}
	if l.desc.Usage.Contains(gputypes.TextureUsageStorageBinding) {
		if t.surface, err = d.backend.CreateImageView(img, backend.ViewSurface); err != nil {
			d.backend.FreeImage(img)
			return nil, wrapBackend("create surface view", err)
		}
	}
	t.refs.init()
	d.log.Debug("rhi: texture created",
		"label", l.desc.Label,
		"type", l.desc.Type,
		"size", fmt.Sprintf("%dx%dx%d", l.desc.Size.Width, l.desc.Size.Height, l.desc.Size.Depth),
		"mips", l.mipLevels,
		"faces", l.faceCount)
	return t, nil
}

// Desc returns the normalized descriptor: extents above the rank are zero,
// ArrayLength and MipLevelCount are resolved.
func (t *Texture) Desc() TextureDesc { return t.layout.desc }

// ElementSize returns the texel size in bytes.
func (t *Texture) ElementSize() uint32 { return t.layout.elementSize }

// IsMipChain reports whether the texture holds more than one mip level.
func (t *Texture) IsMipChain() bool { return t.storage == storageMipChain }

// SampledView returns the read-only view.
func (t *Texture) SampledView() backend.ImageView { return t.sampled }

// SurfaceView returns the writable view, or nil if the texture was not
// created with storage usage.
func (t *Texture) SurfaceView() backend.ImageView { return t.surface }

// Retain adds a reference.
func (t *Texture) Retain() { t.refs.retain() }

// Release drops a reference and frees the image with the last one.
func (t *Texture) Release() {
	if t.refs.release() {
		t.device.backend.FreeImage(t.image)
		t.image, t.sampled, t.surface = nil, nil, nil
	}
}

// ReadTexture reads mip level 0 of every layer. Rows are tightly packed:
// pixelSize is the texel size and rowPitch is width*pixelSize. It waits for
// submitted work to finish first.
func (d *Device) ReadTexture(t *Texture) (data []byte, rowPitch, pixelSize uint64, err error) {
	if err := d.checkLive(); err != nil {
		return nil, 0, 0, err
	}
	d.queue.drain()
	data = make([]byte, t.layout.image.MipSize(0))
	if err := d.backend.ReadImage(t.image, 0, data); err != nil {
		return nil, 0, 0, wrapBackend("read texture", err)
	}
	pixelSize = uint64(t.layout.elementSize)
	rowPitch = uint64(t.layout.desc.Size.Width) * pixelSize
	return data, rowPitch, pixelSize, nil
}
