package rhi

import (
	"math/bits"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi/backend"
)

// textureLayout is a validated texture description resolved into the
// quantities the upload and allocation paths need.
type textureLayout struct {
	desc        TextureDesc
	elementSize uint32
	mipLevels   uint32
	// faceCount is the number of 2D slices per mip level the init data is
	// indexed by: array length, times six for cubes.
	faceCount uint32
	image     backend.ImageDesc
}

// fullMipChain returns the number of levels down to a 1x1x1 mip.
func fullMipChain(w, h, d uint32) uint32 {
	return uint32(bits.Len32(max(w, h, d, 1))) // #nosec G115 -- at most 32
}

// resolveTextureLayout applies the extent, array and mip rules:
//
//   - 1D uses only width, 2D width and height, 3D all three; cubes are square
//     2D faces with depth 1.
//   - Arrays are allowed on 1D, 2D and cube textures only.
//   - A mip level count of zero requests the full chain.
//   - Storage usage needs a single mip level.
func (d *Device) resolveTextureLayout(desc TextureDesc) (textureLayout, error) {
	l := textureLayout{desc: desc}
	if desc.Usage.ContainsUnknownBits() {
		return l, validationError("texture %q: unknown usage bits %#x", desc.Label, uint64(desc.Usage))
	}
	l.elementSize = FormatElementSize(desc.Format)
	if l.elementSize == 0 {
		return l, validationError("texture %q: format %v has no addressable texels", desc.Label, desc.Format)
	}
	if desc.Size.Width == 0 {
		return l, validationError("texture %q: zero width", desc.Label)
	}

	size := desc.Size
	var dim backend.ImageDimension
	switch desc.Type {
	case Texture1D:
		dim = backend.Image1D
		size.Height, size.Depth = 0, 0
	case Texture2D:
		dim = backend.Image2D
		size.Depth = 0
	case Texture3D:
		dim = backend.Image3D
	case TextureCube:
		dim = backend.ImageCube
		size.Depth = 1
	default:
		return l, validationError("texture %q: unknown type %d", desc.Label, desc.Type)
	}
	if dim != backend.Image1D && size.Height == 0 {
		return l, validationError("texture %q: zero height", desc.Label)
	}
	if dim == backend.Image3D && size.Depth == 0 {
		return l, validationError("texture %q: zero depth", desc.Label)
	}
	if dim == backend.ImageCube && size.Width != size.Height {
		return l, validationError("texture %q: cube faces must be square, got %dx%d", desc.Label, size.Width, size.Height)
	}
	l.desc.Size = size

	arrayLength := max(desc.ArrayLength, 1)
	if arrayLength > 1 && dim == backend.Image3D {
		return l, validationError("texture %q: 3D textures cannot be arrays", desc.Label)
	}
	l.desc.ArrayLength = arrayLength
	l.faceCount = arrayLength
	if dim == backend.ImageCube {
		l.faceCount *= 6
	}
	if l.faceCount > d.limits.MaxTextureArrayLayers {
		return l, validationError("texture %q: %d layers exceed limit %d", desc.Label, l.faceCount, d.limits.MaxTextureArrayLayers)
	}

	full := fullMipChain(size.Width, size.Height, size.Depth)
	l.mipLevels = desc.MipLevelCount
	if l.mipLevels == 0 {
		l.mipLevels = full
	}
	if l.mipLevels > full {
		return l, validationError("texture %q: %d mip levels exceed the full chain of %d", desc.Label, l.mipLevels, full)
	}
	if desc.Usage.Contains(gputypes.TextureUsageStorageBinding) && l.mipLevels != 1 {
		return l, validationError("texture %q: storage textures need exactly one mip level, got %d", desc.Label, l.mipLevels)
	}
	l.desc.MipLevelCount = l.mipLevels
	l.desc.SampleCount = max(desc.SampleCount, 1)

	l.image = backend.ImageDesc{
		Label:       desc.Label,
		Dimension:   dim,
		Width:       size.Width,
		Height:      size.Height,
		Depth:       size.Depth,
		ArrayLayers: l.faceCount,
		MipLevels:   l.mipLevels,
		Format:      desc.Format,
		ElementSize: l.elementSize,
		Usage:       desc.Usage,
		SampleCount: l.desc.SampleCount,
	}
	return l, nil
}

// faceSize returns the byte size of one face of a mip level.
func (l *textureLayout) faceSize(mip uint32) uint64 {
	w, h, depth := l.image.MipExtent(mip)
	return uint64(l.elementSize) * uint64(w) * uint64(h) * uint64(depth)
}

// gatherMip copies the faces of one mip level from init data into a
// contiguous staging region, face j at j*faceSize. Init data is indexed
// initData[mip + face*mipLevels].
func (l *textureLayout) gatherMip(initData [][]byte, mip uint32) ([]byte, error) {
	faceSize := l.faceSize(mip)
	staging := make([]byte, faceSize*uint64(l.faceCount))
	for face := range l.faceCount {
		src := initData[mip+face*l.mipLevels]
		if uint64(len(src)) < faceSize {
			return nil, validationError("texture %q: mip %d face %d has %d bytes, need %d", l.desc.Label, mip, face, len(src), faceSize)
		}
		copy(staging[uint64(face)*faceSize:], src[:faceSize])
	}
	return staging, nil
}
