package rhi

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
)

func TestDeviceFeatures(t *testing.T) {
	dev := newTestDevice(t)
	for _, name := range []string{FeatureExternalMemory, FeatureTimestampQuery, FeatureRayTracing, "host-memory"} {
		if !dev.HasFeature(name) {
			t.Errorf("HasFeature(%q) = false", name)
		}
	}
	if dev.HasFeature(FeatureSampler) {
		t.Error("host device reports samplers")
	}
	names := dev.Features().Names()
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("feature names not sorted and unique: %v", names)
		}
	}
	if dev.Info().DeviceType != gputypes.DeviceTypeCPU {
		t.Errorf("DeviceType = %v", dev.Info().DeviceType)
	}
}

func TestCreateBufferValidation(t *testing.T) {
	dev := newTestDevice(t)
	tests := []struct {
		name string
		desc BufferDesc
		init []byte
		want error
	}{
		{"init larger than size", BufferDesc{Size: 2}, []byte{1, 2, 3}, ErrValidation},
		{"unknown usage", BufferDesc{Size: 4, Usage: gputypes.BufferUsage(1 << 30)}, nil, ErrValidation},
		{"over limit", BufferDesc{Size: dev.Limits().MaxBufferSize + 1}, nil, ErrOutOfMemory},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := dev.CreateBuffer(tt.desc, tt.init); !errors.Is(err, tt.want) {
				t.Errorf("CreateBuffer() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestReadBufferRange(t *testing.T) {
	dev := newTestDevice(t)
	buf, _ := dev.CreateBuffer(BufferDesc{Size: 8}, []byte{0, 1, 2, 3, 4, 5, 6, 7})
	defer buf.Release()
	got, err := dev.ReadBuffer(buf, 2, 3)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{2, 3, 4}) {
		t.Errorf("ReadBuffer(2, 3) = %v", got)
	}
	if _, err := dev.ReadBuffer(buf, 6, 4); !errors.Is(err, ErrValidation) {
		t.Errorf("ReadBuffer past end = %v, want ErrValidation", err)
	}
}

func TestNullSharedHandle(t *testing.T) {
	dev := newTestDevice(t)
	buf, err := dev.CreateBufferFromSharedHandle(SharedHandle{}, BufferDesc{Size: 16})
	if buf != nil || err != nil {
		t.Errorf("buffer from null handle = %v, %v; want nil, nil", buf, err)
	}
	tex, err := dev.CreateTextureFromSharedHandle(SharedHandle{}, TextureDesc{Type: Texture2D, Size: Extents{4, 4, 0}, Format: gputypes.TextureFormatRGBA8Unorm}, 64)
	if tex != nil || err != nil {
		t.Errorf("texture from null handle = %v, %v; want nil, nil", tex, err)
	}
}

func TestSharedHandleRoundTrip(t *testing.T) {
	exporter := newTestDevice(t)
	importer := newTestDevice(t)

	src, _ := exporter.CreateBuffer(BufferDesc{Label: "shared", Size: 16}, []byte{1, 2, 3, 4})
	defer src.Release()
	h, err := src.SharedHandle()
	if err != nil {
		t.Fatalf("SharedHandle() error: %v", err)
	}
	if h.IsNull() || h.Type != HandleHost {
		t.Fatalf("handle = %+v", h)
	}

	alias, err := importer.CreateBufferFromSharedHandle(h, BufferDesc{Label: "alias", Size: 16})
	if err != nil {
		t.Fatalf("CreateBufferFromSharedHandle() error: %v", err)
	}
	defer alias.Release()
	got, _ := importer.ReadBuffer(alias, 0, 4)
	if !bytes.Equal(got, []byte{1, 2, 3, 4}) {
		t.Errorf("imported bytes = %v", got)
	}

	desc := TextureDesc{Type: Texture2D, Size: Extents{2, 2, 0}, MipLevelCount: 1, Format: gputypes.TextureFormatR8Uint}
	tex, err := importer.CreateTextureFromSharedHandle(h, desc, 16)
	if err != nil {
		t.Fatalf("CreateTextureFromSharedHandle() error: %v", err)
	}
	defer tex.Release()
	if tex.SampledView() == nil || tex.SurfaceView() != nil {
		t.Error("imported texture views do not follow its usage")
	}
}

func TestTextureElementSize(t *testing.T) {
	tests := []struct {
		format gputypes.TextureFormat
		want   uint32
	}{
		{gputypes.TextureFormatR8Unorm, 1},
		{gputypes.TextureFormatRG16Float, 4},
		{gputypes.TextureFormatRGBA8Unorm, 4},
		{gputypes.TextureFormatRGBA16Float, 8},
		{gputypes.TextureFormatRGBA32Float, 16},
		{gputypes.TextureFormatDepth24Plus, 0},
	}
	for _, tt := range tests {
		if got := FormatElementSize(tt.format); got != tt.want {
			t.Errorf("FormatElementSize(%v) = %d, want %d", tt.format, got, tt.want)
		}
	}
}

func TestTextureValidation(t *testing.T) {
	dev := newTestDevice(t)
	rgba := gputypes.TextureFormatRGBA8Unorm
	tests := []struct {
		name string
		desc TextureDesc
	}{
		{"3D array", TextureDesc{Type: Texture3D, Size: Extents{4, 4, 4}, ArrayLength: 2, Format: rgba}},
		{"storage with mips", TextureDesc{Type: Texture2D, Size: Extents{4, 4, 0}, MipLevelCount: 2, Format: rgba, Usage: gputypes.TextureUsageStorageBinding}},
		{"too many mips", TextureDesc{Type: Texture2D, Size: Extents{4, 4, 0}, MipLevelCount: 4, Format: rgba}},
		{"zero width", TextureDesc{Type: Texture2D, Size: Extents{0, 4, 0}, Format: rgba}},
		{"non-square cube", TextureDesc{Type: TextureCube, Size: Extents{4, 2, 0}, Format: rgba}},
		{"depth format", TextureDesc{Type: Texture2D, Size: Extents{4, 4, 0}, Format: gputypes.TextureFormatDepth24Plus}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := dev.CreateTexture(tt.desc, nil); !errors.Is(err, ErrValidation) {
				t.Errorf("CreateTexture() = %v, want ErrValidation", err)
			}
		})
	}
}

func TestTextureExtentsNormalized(t *testing.T) {
	dev := newTestDevice(t)
	tests := []struct {
		desc     TextureDesc
		want     Extents
		mips     uint32
		mipChain bool
	}{
		{TextureDesc{Type: Texture1D, Size: Extents{8, 5, 3}}, Extents{8, 0, 0}, 4, true},
		{TextureDesc{Type: Texture2D, Size: Extents{8, 4, 3}, MipLevelCount: 1}, Extents{8, 4, 0}, 1, false},
		{TextureDesc{Type: Texture3D, Size: Extents{2, 2, 8}}, Extents{2, 2, 8}, 4, true},
		{TextureDesc{Type: TextureCube, Size: Extents{4, 4, 9}}, Extents{4, 4, 1}, 3, true},
	}
	for _, tt := range tests {
		t.Run(tt.desc.Type.String(), func(t *testing.T) {
			tt.desc.Format = gputypes.TextureFormatR32Float
			tex, err := dev.CreateTexture(tt.desc, nil)
			if err != nil {
				t.Fatalf("CreateTexture() error: %v", err)
			}
			defer tex.Release()
			got := tex.Desc()
			if got.Size != tt.want || got.MipLevelCount != tt.mips {
				t.Errorf("size = %+v mips = %d, want %+v and %d", got.Size, got.MipLevelCount, tt.want, tt.mips)
			}
			if tex.IsMipChain() != tt.mipChain {
				t.Errorf("IsMipChain() = %v", tex.IsMipChain())
			}
		})
	}
}

func TestCubeFaceGather(t *testing.T) {
	dev := newTestDevice(t)
	desc := TextureDesc{Type: TextureCube, Size: Extents{2, 2, 0}, MipLevelCount: 2, Format: gputypes.TextureFormatR8Uint}

	// initData[mip + face*2]; every texel of a face holds its face index,
	// offset by 100 on mip 1.
	init := make([][]byte, 2*6)
	for face := range 6 {
		init[0+face*2] = bytes.Repeat([]byte{byte(face)}, 4)
		init[1+face*2] = []byte{byte(100 + face)}
	}
	tex, err := dev.CreateTexture(desc, init)
	if err != nil {
		t.Fatalf("CreateTexture() error: %v", err)
	}
	defer tex.Release()

	data, rowPitch, pixelSize, err := dev.ReadTexture(tex)
	if err != nil {
		t.Fatalf("ReadTexture() error: %v", err)
	}
	if pixelSize != 1 || rowPitch != 2 {
		t.Errorf("rowPitch = %d, pixelSize = %d, want 2 and 1", rowPitch, pixelSize)
	}
	if len(data) != 6*4 {
		t.Fatalf("len = %d, want 24", len(data))
	}
	for face := range 6 {
		want := bytes.Repeat([]byte{byte(face)}, 4)
		if got := data[face*4 : face*4+4]; !bytes.Equal(got, want) {
			t.Errorf("face %d = %v, want %v", face, got, want)
		}
	}

	mip1 := make([]byte, 6)
	if err := dev.Backend().ReadImage(tex.image, 1, mip1); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(mip1, []byte{100, 101, 102, 103, 104, 105}) {
		t.Errorf("mip 1 = %v", mip1)
	}

	if _, err := dev.CreateTexture(desc, init[:5]); !errors.Is(err, ErrValidation) {
		t.Errorf("short init data = %v, want ErrValidation", err)
	}
}

func TestStorageTextureViews(t *testing.T) {
	dev := newTestDevice(t)
	tex, err := dev.CreateTexture(TextureDesc{
		Type: Texture2D, Size: Extents{4, 4, 0}, MipLevelCount: 1,
		Format: gputypes.TextureFormatRGBA8Unorm,
		Usage:  gputypes.TextureUsageStorageBinding | gputypes.TextureUsageTextureBinding,
	}, nil)
	if err != nil {
		t.Fatalf("CreateTexture() error: %v", err)
	}
	defer tex.Release()
	if tex.SampledView() == nil || tex.SurfaceView() == nil {
		t.Error("storage texture is missing a view")
	}
}

func TestQueryPoolValidation(t *testing.T) {
	dev := newTestDevice(t)
	if _, err := dev.CreateQueryPool(QueryPoolDesc{Count: 0}); !errors.Is(err, ErrValidation) {
		t.Errorf("zero count = %v, want ErrValidation", err)
	}
	pool, _ := dev.CreateQueryPool(QueryPoolDesc{Count: 4})
	defer pool.Release()
	if _, err := pool.Results(3, 2); !errors.Is(err, ErrValidation) {
		t.Errorf("Results(3, 2) = %v, want ErrValidation", err)
	}
	vals, _ := pool.Results(0, 4)
	if len(vals) != 4 {
		t.Errorf("len = %d", len(vals))
	}
}

func TestAccelerationStructure(t *testing.T) {
	dev := newTestDevice(t)
	sizes, err := dev.GetAccelerationStructureSizes(AccelerationStructureBuildDesc{Kind: BottomLevel, TriangleCount: []uint32{16}})
	if err != nil {
		t.Fatalf("GetAccelerationStructureSizes() error: %v", err)
	}
	if sizes.AccelerationStructureSize == 0 || sizes.ScratchSize == 0 {
		t.Errorf("sizes = %+v", sizes)
	}

	backing, _ := dev.CreateBuffer(BufferDesc{Size: sizes.AccelerationStructureSize}, nil)
	as, err := dev.CreateAccelerationStructure(AccelerationStructureDesc{Kind: BottomLevel, Buffer: backing, Size: sizes.AccelerationStructureSize})
	if err != nil {
		t.Fatalf("CreateAccelerationStructure() error: %v", err)
	}
	if as.Handle() == 0 {
		t.Error("Handle() = 0")
	}
	backing.Release()
	if backing.mem == nil {
		t.Fatal("backing buffer freed while the structure holds it")
	}
	as.Release()
	if backing.mem != nil {
		t.Error("backing buffer not freed with the structure")
	}

	small, _ := dev.CreateBuffer(BufferDesc{Size: 16}, nil)
	defer small.Release()
	if _, err := dev.CreateAccelerationStructure(AccelerationStructureDesc{Buffer: small, Size: 32}); !errors.Is(err, ErrValidation) {
		t.Errorf("oversized structure = %v, want ErrValidation", err)
	}
}

func TestSamplerUnsupportedOnHost(t *testing.T) {
	dev := newTestDevice(t)
	if _, err := dev.CreateSampler(SamplerDesc{}); !errors.Is(err, ErrUnsupported) {
		t.Errorf("CreateSampler() = %v, want ErrUnsupported", err)
	}
}
