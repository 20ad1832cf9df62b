package backend

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/gogpu/gputypes"
)

type hostBytes []byte

func (h hostBytes) Size() uint64  { return uint64(len(h)) }
func (h hostBytes) Bytes() []byte { return h }

func TestRegistry(t *testing.T) {
	const name = "test-registry"
	Register(name, func(cfg Config) (Backend, error) {
		return nil, errors.New("no device")
	})
	defer Unregister(name)

	if !IsRegistered(name) {
		t.Fatal("IsRegistered() = false after Register")
	}
	found := false
	for _, n := range Available() {
		if n == name {
			found = true
		}
	}
	if !found {
		t.Errorf("Available() = %v, missing %q", Available(), name)
	}
	if _, err := Open(name, Config{}); err == nil || err.Error() != "no device" {
		t.Errorf("Open() error = %v, want factory error", err)
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	const name = "test-duplicate"
	factory := func(Config) (Backend, error) { return nil, nil }
	Register(name, factory)
	defer Unregister(name)

	defer func() {
		if recover() == nil {
			t.Error("second Register did not panic")
		}
	}()
	Register(name, factory)
}

func TestOpenUnknown(t *testing.T) {
	_, err := Open("does-not-exist", Config{})
	if !errors.Is(err, ErrBackendNotAvailable) {
		t.Fatalf("Open() error = %v, want ErrBackendNotAvailable", err)
	}
}

func TestConfigOption(t *testing.T) {
	cfg := Config{Options: map[string]string{"workers": "4"}}
	if v, ok := cfg.Option("workers"); !ok || v != "4" {
		t.Errorf("Option(workers) = %q, %v", v, ok)
	}
	if _, ok := cfg.Option("missing"); ok {
		t.Error("Option(missing) should not be found")
	}
}

func TestImageDescMipSize(t *testing.T) {
	tests := []struct {
		name string
		desc ImageDesc
		mip  uint32
		want uint64
	}{
		{"2d mip0", ImageDesc{Width: 8, Height: 4, ElementSize: 4, MipLevels: 3}, 0, 8 * 4 * 4},
		{"2d mip2", ImageDesc{Width: 8, Height: 4, ElementSize: 4, MipLevels: 3}, 2, 2 * 1 * 4},
		{"1d clamps height", ImageDesc{Width: 16, ElementSize: 1}, 0, 16},
		{"cube faces", ImageDesc{Dimension: ImageCube, Width: 4, Height: 4, Depth: 1, ArrayLayers: 6, ElementSize: 4}, 0, 4 * 4 * 6 * 4},
		{"3d", ImageDesc{Dimension: Image3D, Width: 4, Height: 4, Depth: 4, ElementSize: 2}, 1, 2 * 2 * 2 * 2},
	}
	for _, tt := range tests {
		if got := tt.desc.MipSize(tt.mip); got != tt.want {
			t.Errorf("%s: MipSize(%d) = %d, want %d", tt.name, tt.mip, got, tt.want)
		}
	}
}

func TestArgumentBlockUniforms(t *testing.T) {
	b := NewArgumentBlock()
	b.Data = make([]byte, 16)
	binary.LittleEndian.PutUint32(b.Data[0:], math.Float32bits(2.5))
	binary.LittleEndian.PutUint32(b.Data[4:], 7)
	b.Offsets["scale"] = 0
	b.Offsets["count"] = 4

	if got := b.Float32("scale"); got != 2.5 {
		t.Errorf("Float32(scale) = %v, want 2.5", got)
	}
	if got := b.Uint32("count"); got != 7 {
		t.Errorf("Uint32(count) = %d, want 7", got)
	}
	if got := b.Uint32("missing"); got != 0 {
		t.Errorf("Uint32(missing) = %d, want 0", got)
	}
	var nilBlock *ArgumentBlock
	if _, ok := nilBlock.Offset("x"); ok {
		t.Error("nil block should have no offsets")
	}
}

func TestArgumentBlockBufferView(t *testing.T) {
	mem := make(hostBytes, 16)
	b := NewArgumentBlock()
	b.Resources = append(b.Resources, ResourceBinding{
		Path: "values", Kind: ResourceBuffer, Buffer: mem, Size: 8, ElementSize: 2,
		Offset: 4,
	})

	v := b.Buffer("values")
	if v.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", v.Len())
	}
	for i := 0; i < v.Len(); i++ {
		v.SetUint16(i, uint16(i+1))
	}
	if got := binary.LittleEndian.Uint16(mem[4:]); got != 1 {
		t.Errorf("first element at offset 4 = %d, want 1", got)
	}
	if got := v.Uint16(3); got != 4 {
		t.Errorf("Uint16(3) = %d, want 4", got)
	}
	if b.Buffer("missing").Len() != 0 {
		t.Error("missing binding should give an empty view")
	}
}

func TestNativeErrorUnwrap(t *testing.T) {
	inner := errors.New("device lost")
	err := error(&NativeError{Op: "launch", Code: 999, Err: inner})
	if !errors.Is(err, inner) {
		t.Error("NativeError should unwrap to its cause")
	}
	var ne *NativeError
	if !errors.As(err, &ne) || ne.Code != 999 {
		t.Errorf("errors.As = %v, code %d", ne, ne.Code)
	}
}

func TestSharedHandleNull(t *testing.T) {
	if !(SharedHandle{}).IsNull() {
		t.Error("zero handle should be null")
	}
	if (SharedHandle{Type: HandleHost, Value: 1}).IsNull() {
		t.Error("non-zero handle should not be null")
	}
	_ = gputypes.BufferUsageStorage
}

func TestArgumentBlockObjects(t *testing.T) {
	b := NewArgumentBlock()
	b.Data = make([]byte, 24)
	b.Data[16] = 7
	b.Objects = append(b.Objects, ObjectRange{Path: "params", Offset: 16, Size: 8})

	o, ok := b.Object("params")
	if !ok {
		t.Fatal("Object(params) not found")
	}
	if got := b.Bytes(o); len(got) != 8 || got[0] != 7 {
		t.Errorf("Bytes() = %v", got)
	}
	if _, ok := b.Object("missing"); ok {
		t.Error("Object(missing) found")
	}
	if got := b.Bytes(ObjectRange{Offset: 20, Size: 16}); len(got) != 4 {
		t.Errorf("clamped Bytes() has %d bytes, want 4", len(got))
	}
}
