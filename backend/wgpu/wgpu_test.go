package wgpu

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/backend"
	"github.com/gogpu/rhi/reflection"
)

const scaleWGSL = `
struct Params {
    scale: f32,
    count: u32,
}

@group(0) @binding(0) var<uniform> params: Params;
@group(0) @binding(1) var<storage, read> src: array<f32>;
@group(0) @binding(2) var<storage, read_write> dst: array<f32>;

@compute @workgroup_size(64)
fn scale(@builtin(global_invocation_id) id: vec3<u32>) {
    if id.x < params.count {
        dst[id.x] = src[id.x] * params.scale;
    }
}
`

// newNoopBackend opens a backend on the noop HAL device.
func newNoopBackend(t *testing.T, opts map[string]string) *Backend {
	t.Helper()
	return newNoopBackendAs(t, opts, nil)
}

// newNoopBackendAs opens a noop backend whose adapter description is
// adjusted by edit first.
func newNoopBackendAs(t *testing.T, opts map[string]string, edit func(*gputypes.AdapterInfo)) *Backend {
	t.Helper()
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		t.Fatal("noop instance has no adapters")
	}
	open, err := adapters[0].Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	info := adapters[0].Info
	if edit != nil {
		edit(&info)
	}
	b, err := NewFromHAL(backend.Config{Label: t.Name(), Options: opts}, open, info)
	if err != nil {
		t.Fatalf("NewFromHAL: %v", err)
	}
	t.Cleanup(func() {
		_ = b.Close()
		open.Device.Destroy()
		instance.Destroy()
	})
	return b
}

func scaleRequest(t *testing.T) *backend.KernelRequest {
	t.Helper()
	prog, _, err := reflection.FromWGSL("scale", scaleWGSL)
	if err != nil {
		t.Fatalf("FromWGSL: %v", err)
	}
	return &backend.KernelRequest{
		Source:          &backend.Source{Name: "scale", WGSL: scaleWGSL},
		Program:         prog,
		EntryPoint:      "scale",
		EntryPointIndex: 0,
	}
}

func TestParseOptions(t *testing.T) {
	tests := []struct {
		name    string
		opts    map[string]string
		wantErr bool
	}{
		{"defaults", nil, false},
		{"vulkan", map[string]string{"api": "vulkan"}, false},
		{"unknown api", map[string]string{"api": "glide"}, true},
		{"discrete", map[string]string{"adapter": "discrete"}, false},
		{"unknown adapter", map[string]string{"adapter": "fpga"}, true},
		{"cache size", map[string]string{"bind_group_cache": "8"}, false},
		{"zero cache", map[string]string{"bind_group_cache": "0"}, true},
		{"bad cache", map[string]string{"bind_group_cache": "many"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := parseOptions(backend.Config{Options: tt.opts})
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseOptions() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && tt.opts == nil && o.bindGroupCache != DefaultBindGroupCacheSize {
				t.Errorf("bindGroupCache = %d", o.bindGroupCache)
			}
		})
	}
}

func TestSelectAdapter(t *testing.T) {
	adapters := []hal.ExposedAdapter{
		{Info: gputypes.AdapterInfo{Name: "cpu", DeviceType: gputypes.DeviceTypeCPU}},
		{Info: gputypes.AdapterInfo{Name: "igpu", DeviceType: gputypes.DeviceTypeIntegratedGPU}},
		{Info: gputypes.AdapterInfo{Name: "dgpu", DeviceType: gputypes.DeviceTypeDiscreteGPU}},
	}
	if got := selectAdapter(adapters, options{anyAdapter: true}); got.Info.Name != "dgpu" {
		t.Errorf("default selection = %s, want dgpu", got.Info.Name)
	}
	if got := selectAdapter(adapters, options{adapter: gputypes.DeviceTypeCPU}); got.Info.Name != "cpu" {
		t.Errorf("cpu selection = %s", got.Info.Name)
	}
	if got := selectAdapter(adapters[:1], options{adapter: gputypes.DeviceTypeDiscreteGPU}); got != nil {
		t.Errorf("selection without a match = %s, want nil", got.Info.Name)
	}
	if got := selectAdapter(adapters[:1], options{anyAdapter: true}); got.Info.Name != "cpu" {
		t.Errorf("fallback selection = %s", got.Info.Name)
	}
}

func TestBufferRoundTrip(t *testing.T) {
	b := newNoopBackend(t, nil)
	mem, err := b.AllocBuffer(backend.BufferDesc{Label: "rt", Size: 10, HostVisible: true})
	if err != nil {
		t.Fatalf("AllocBuffer: %v", err)
	}
	defer b.FreeBuffer(mem)

	if err := b.WriteBuffer(mem, 2, []byte{1, 2, 3, 4, 5}); err != nil {
		t.Fatalf("WriteBuffer: %v", err)
	}
	got := make([]byte, 5)
	if err := b.ReadBuffer(mem, 2, got); err != nil {
		t.Fatalf("ReadBuffer: %v", err)
	}
	if !bytes.Equal(got, []byte{1, 2, 3, 4, 5}) {
		t.Errorf("ReadBuffer = %v", got)
	}

	if err := b.WriteBuffer(mem, 8, []byte{1, 2, 3}); !errors.Is(err, backend.ErrOutOfBounds) {
		t.Errorf("write past end: %v", err)
	}
	if err := b.ReadBuffer(mem, 9, make([]byte, 2)); !errors.Is(err, backend.ErrOutOfBounds) {
		t.Errorf("read past end: %v", err)
	}
}

func TestDeviceLocalReadback(t *testing.T) {
	b := newNoopBackend(t, nil)
	mem, err := b.AllocBuffer(backend.BufferDesc{Label: "local", Size: 7})
	if err != nil {
		t.Fatalf("AllocBuffer: %v", err)
	}
	defer b.FreeBuffer(mem)
	// Unaligned ranges go through a widened staging copy.
	if err := b.ReadBuffer(mem, 1, make([]byte, 5)); err != nil {
		t.Fatalf("ReadBuffer: %v", err)
	}
	if err := b.CopyBuffer(mem, 0, mem, 4, 8); !errors.Is(err, backend.ErrOutOfBounds) {
		t.Errorf("CopyBuffer past end: %v", err)
	}
}

func TestForeignObjects(t *testing.T) {
	b := newNoopBackend(t, nil)
	type fake struct{ backend.Memory }
	if err := b.WriteBuffer(fake{}, 0, []byte{1}); !errors.Is(err, backend.ErrForeignObject) {
		t.Errorf("WriteBuffer(foreign) = %v", err)
	}
	if err := b.Launch(nil, [3]uint32{1, 1, 1}, nil, nil); !errors.Is(err, backend.ErrForeignObject) {
		t.Errorf("Launch(nil) = %v", err)
	}
}

func TestCompileKernel(t *testing.T) {
	b := newNoopBackend(t, nil)
	k, diag, err := b.CompileKernel(scaleRequest(t))
	if err != nil {
		t.Fatalf("CompileKernel: %v (%s)", err, diag)
	}
	defer b.FreeKernel(k)

	if k.Name() != "scale" {
		t.Errorf("Name() = %q", k.Name())
	}
	if k.ThreadGroupSize() != [3]uint32{64, 1, 1} {
		t.Errorf("ThreadGroupSize() = %v", k.ThreadGroupSize())
	}
	kk := k.(*kernel)
	if len(kk.layouts) != 1 {
		t.Fatalf("bind group layouts = %d, want 1", len(kk.layouts))
	}
	want := []struct {
		path string
		kind slotKind
	}{
		{"params", slotUniform},
		{"src", slotReadOnlyStorage},
		{"dst", slotStorage},
	}
	if len(kk.slots) != len(want) {
		t.Fatalf("slots = %+v", kk.slots)
	}
	for i, w := range want {
		s := kk.slots[i]
		if s.path != w.path || s.kind != w.kind || s.binding != uint32(i) {
			t.Errorf("slot %d = {%s %v %d}, want {%s %v %d}", i, s.path, s.kind, s.binding, w.path, w.kind, i)
		}
	}
	if kk.slots[0].size != 8 || kk.uniforms[0] == nil {
		t.Errorf("uniform slot size %d, buffer %v", kk.slots[0].size, kk.uniforms[0])
	}
}

const twiceWGSL = `
@group(0) @binding(0) var<storage, read_write> data: array<f32>;

@compute @workgroup_size(64)
fn twice(@builtin(global_invocation_id) id: vec3<u32>) {
    if id.x < arrayLength(&data) {
        data[id.x] = data[id.x] * 2.0;
    }
}
`

func TestSoftwareDeviceKernels(t *testing.T) {
	b := newNoopBackendAs(t, nil, func(info *gputypes.AdapterInfo) {
		info.Name = "Software Renderer"
		info.DeviceType = gputypes.DeviceTypeCPU
	})
	if !b.softwareDevice() {
		t.Fatal("software adapter not recognized")
	}

	_, _, err := b.CompileKernel(scaleRequest(t))
	if !errors.Is(err, backend.ErrUnsupported) {
		t.Errorf("CompileKernel(uniform kernel) = %v, want ErrUnsupported", err)
	}

	prog, _, err := reflection.FromWGSL("twice", twiceWGSL)
	if err != nil {
		t.Fatalf("FromWGSL: %v", err)
	}
	k, diag, err := b.CompileKernel(&backend.KernelRequest{
		Source:     &backend.Source{Name: "twice", WGSL: twiceWGSL},
		Program:    prog,
		EntryPoint: "twice",
	})
	if err != nil {
		t.Fatalf("CompileKernel(storage kernel): %v (%s)", err, diag)
	}
	b.FreeKernel(k)

	if newNoopBackend(t, nil).softwareDevice() {
		t.Error("noop adapter taken for the software device")
	}
}

func TestCompileKernelErrors(t *testing.T) {
	b := newNoopBackend(t, nil)

	req := scaleRequest(t)
	req.Source = &backend.Source{Name: "broken", WGSL: "fn main( {"}
	if _, diag, err := b.CompileKernel(req); err == nil || len(diag) == 0 {
		t.Errorf("broken source: err = %v, diag = %q", err, diag)
	}

	req = scaleRequest(t)
	req.Source = &backend.Source{Name: "host only"}
	if _, _, err := b.CompileKernel(req); !errors.Is(err, backend.ErrUnsupported) {
		t.Errorf("missing WGSL: %v", err)
	}

	// Two globals on the same binding.
	req = scaleRequest(t)
	f32 := reflection.Scalar(reflection.ScalarFloat32)
	req.Program = reflection.NewProgram("dup", reflection.Struct("globals",
		reflection.BoundMember("a", reflection.StructuredBuffer(f32, reflection.AccessRead), 0, 1),
		reflection.BoundMember("b", reflection.StructuredBuffer(f32, reflection.AccessRead), 0, 1),
	), reflection.ComputeEntryPoint("scale", [3]uint32{64, 1, 1}))
	if _, _, err := b.CompileKernel(req); err == nil || !strings.Contains(err.Error(), "share") {
		t.Errorf("duplicate binding: %v", err)
	}

	// Resources must carry a binding point.
	req.Program = reflection.NewProgram("unbound", reflection.Struct("globals",
		reflection.Member("a", reflection.StructuredBuffer(f32, reflection.AccessRead)),
	), reflection.ComputeEntryPoint("scale", [3]uint32{64, 1, 1}))
	if _, _, err := b.CompileKernel(req); !errors.Is(err, backend.ErrUnsupported) {
		t.Errorf("resource without binding: %v", err)
	}
}

func TestSpecializeWGSL(t *testing.T) {
	req := &backend.KernelRequest{
		Source: &backend.Source{
			WGSL:     "fn body() {}",
			TypeWGSL: map[string]string{"Double": "struct Double { k: f32 }"},
		},
		TypeParams: []string{"Scale", "Scale"},
		TypeArgs:   []string{"Double", "Double"},
	}
	got, err := specializeWGSL(req)
	if err != nil {
		t.Fatalf("specializeWGSL: %v", err)
	}
	want := "struct Double { k: f32 }\nalias Scale = Double;\nfn body() {}"
	if got != want {
		t.Errorf("specializeWGSL =\n%s\nwant\n%s", got, want)
	}

	req.TypeArgs = []string{"Double", "Triple"}
	if _, err := specializeWGSL(req); !errors.Is(err, backend.ErrUnsupported) {
		t.Errorf("conflicting arguments: %v", err)
	}
	req.TypeArgs = []string{"Double"}
	if _, err := specializeWGSL(req); err == nil {
		t.Error("argument count mismatch accepted")
	}
}

func TestCompileSpecializedKernel(t *testing.T) {
	b := newNoopBackend(t, nil)
	const body = `
@group(0) @binding(0) var<storage, read_write> data: array<f32>;

@compute @workgroup_size(1)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    var s: Scale;
    s.k = 2.0;
    data[id.x] = data[id.x] * s.k;
}
`
	f32 := reflection.Scalar(reflection.ScalarFloat32)
	req := &backend.KernelRequest{
		Source: &backend.Source{
			WGSL:     body,
			TypeWGSL: map[string]string{"Double": "struct Double { k: f32 }"},
		},
		Program: reflection.NewProgram("alias", reflection.Struct("globals",
			reflection.BoundMember("data", reflection.StructuredBuffer(f32, reflection.AccessReadWrite), 0, 0),
		), reflection.ComputeEntryPoint("main", [3]uint32{1, 1, 1})),
		EntryPoint: "main",
		TypeParams: []string{"Scale"},
		TypeArgs:   []string{"Double"},
	}
	k, diag, err := b.CompileKernel(req)
	if err != nil {
		t.Fatalf("CompileKernel: %v (%s)", err, diag)
	}
	defer b.FreeKernel(k)
	if k.Name() != "main<Double>" {
		t.Errorf("Name() = %q", k.Name())
	}

	// Without the alias the module does not resolve Scale.
	req.TypeParams, req.TypeArgs = nil, nil
	if _, _, err := b.CompileKernel(req); err == nil {
		t.Error("unspecialized source compiled")
	}
}

func TestCompileWGSLEmitsSPIRV(t *testing.T) {
	words, diag, err := compileWGSL(scaleWGSL, true)
	if err != nil {
		t.Fatalf("compileWGSL: %v (%s)", err, diag)
	}
	if len(words) < 5 || words[0] != 0x07230203 {
		t.Fatalf("SPIR-V header = %x", words[:min(len(words), 5)])
	}
}

func scaleArguments(t *testing.T, b *Backend, src, dst backend.Memory, scale float32, count uint32) *backend.ArgumentBlock {
	t.Helper()
	block := backend.NewArgumentBlock()
	block.Data = make([]byte, 8)
	binary.LittleEndian.PutUint32(block.Data[0:], math.Float32bits(scale))
	binary.LittleEndian.PutUint32(block.Data[4:], count)
	block.Objects = []backend.ObjectRange{{Path: "params", Offset: 0, Size: 8}}
	block.Resources = []backend.ResourceBinding{
		{Path: "src", Kind: backend.ResourceBuffer, Access: reflection.AccessRead, Buffer: src, Size: src.Size(), ElementSize: 4},
		{Path: "dst", Kind: backend.ResourceBuffer, Access: reflection.AccessReadWrite, Buffer: dst, Size: dst.Size(), ElementSize: 4},
	}
	return block
}

func TestLaunchCachesBindGroups(t *testing.T) {
	b := newNoopBackend(t, nil)
	k, _, err := b.CompileKernel(scaleRequest(t))
	if err != nil {
		t.Fatalf("CompileKernel: %v", err)
	}
	defer b.FreeKernel(k)

	src, _ := b.AllocBuffer(backend.BufferDesc{Label: "src", Size: 64})
	dst, _ := b.AllocBuffer(backend.BufferDesc{Label: "dst", Size: 64})
	defer b.FreeBuffer(src)
	args := scaleArguments(t, b, src, dst, 2, 16)

	for range 3 {
		if err := b.Launch(k, [3]uint32{1, 1, 1}, args, backend.NewArgumentBlock()); err != nil {
			t.Fatalf("Launch: %v", err)
		}
	}
	stats := b.BindGroupCacheStats()
	if stats.Misses != 1 || stats.Hits != 2 || stats.Len != 1 {
		t.Errorf("after repeated launches: %+v", stats)
	}

	// The uniform upload reaches the kernel's constant buffer.
	kk := k.(*kernel)
	got := make([]byte, 8)
	if err := b.readMapped(kk.uniforms[0], 0, got); err != nil {
		t.Fatalf("readMapped: %v", err)
	}
	if !bytes.Equal(got, args.Data) {
		t.Errorf("uniform buffer = %v, want %v", got, args.Data)
	}

	// Freeing a bound buffer drops the groups that use it.
	b.FreeBuffer(dst)
	if stats := b.BindGroupCacheStats(); stats.Len != 0 || stats.Evictions != 1 {
		t.Errorf("after FreeBuffer: %+v", stats)
	}
	if err := b.Launch(k, [3]uint32{1, 1, 1}, args, nil); err == nil {
		t.Error("launch with a freed buffer succeeded")
	}
}

func TestLaunchMissingArguments(t *testing.T) {
	b := newNoopBackend(t, nil)
	k, _, err := b.CompileKernel(scaleRequest(t))
	if err != nil {
		t.Fatalf("CompileKernel: %v", err)
	}
	defer b.FreeKernel(k)

	if err := b.Launch(k, [3]uint32{1, 1, 1}, backend.NewArgumentBlock(), nil); err == nil || !strings.Contains(err.Error(), "params") {
		t.Errorf("launch without constant buffer: %v", err)
	}
	// Empty grids do nothing.
	if err := b.Launch(k, [3]uint32{0, 1, 1}, nil, nil); err != nil {
		t.Errorf("empty grid: %v", err)
	}
}

func TestBindGroupEviction(t *testing.T) {
	b := newNoopBackend(t, map[string]string{"bind_group_cache": "1"})
	k, _, err := b.CompileKernel(scaleRequest(t))
	if err != nil {
		t.Fatalf("CompileKernel: %v", err)
	}
	defer b.FreeKernel(k)

	var bufs []backend.Memory
	for range 3 {
		m, err := b.AllocBuffer(backend.BufferDesc{Size: 64})
		if err != nil {
			t.Fatalf("AllocBuffer: %v", err)
		}
		bufs = append(bufs, m)
	}
	defer func() {
		for _, m := range bufs {
			b.FreeBuffer(m)
		}
	}()

	if err := b.Launch(k, [3]uint32{1, 1, 1}, scaleArguments(t, b, bufs[0], bufs[1], 1, 1), nil); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if err := b.Launch(k, [3]uint32{1, 1, 1}, scaleArguments(t, b, bufs[0], bufs[2], 1, 1), nil); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	stats := b.BindGroupCacheStats()
	if stats.Misses != 2 || stats.Evictions != 1 || stats.Len != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestFreeKernelDropsGroups(t *testing.T) {
	b := newNoopBackend(t, nil)
	k, _, err := b.CompileKernel(scaleRequest(t))
	if err != nil {
		t.Fatalf("CompileKernel: %v", err)
	}
	src, _ := b.AllocBuffer(backend.BufferDesc{Size: 16})
	defer b.FreeBuffer(src)
	if err := b.Launch(k, [3]uint32{1, 1, 1}, scaleArguments(t, b, src, src, 1, 4), nil); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	b.FreeKernel(k)
	if stats := b.BindGroupCacheStats(); stats.Len != 0 {
		t.Errorf("groups after FreeKernel: %+v", stats)
	}
	if err := b.Launch(k, [3]uint32{1, 1, 1}, nil, nil); err == nil {
		t.Error("launch of a freed kernel succeeded")
	}
}

func TestSampler(t *testing.T) {
	b := newNoopBackend(t, nil)
	desc := backend.SamplerDesc{
		Label:     "linear",
		MagFilter: gputypes.FilterModeLinear,
		MinFilter: gputypes.FilterModeLinear,
	}
	s, err := b.CreateSampler(desc)
	if err != nil {
		t.Fatalf("CreateSampler: %v", err)
	}
	if s.Desc() != desc {
		t.Errorf("Desc() = %+v", s.Desc())
	}
	b.FreeSampler(s)
	b.FreeSampler(s)

	if _, err := b.CreateSampler(backend.SamplerDesc{LodMinClamp: 4, LodMaxClamp: 2}); err == nil {
		t.Error("empty lod range accepted")
	}
}

func TestImages(t *testing.T) {
	b := newNoopBackend(t, nil)
	img, err := b.AllocImage(backend.ImageDesc{
		Label:       "tex",
		Dimension:   backend.Image2D,
		Width:       4,
		Height:      4,
		Depth:       1,
		ArrayLayers: 1,
		MipLevels:   1,
		Format:      gputypes.TextureFormatR32Float,
		ElementSize: 4,
		Usage:       gputypes.TextureUsageStorageBinding,
		SampleCount: 1,
	})
	if err != nil {
		t.Fatalf("AllocImage: %v", err)
	}
	defer b.FreeImage(img)

	view, err := b.CreateImageView(img, backend.ViewSampled)
	if err != nil {
		t.Fatalf("CreateImageView: %v", err)
	}
	if view.Image() != img || view.Kind() != backend.ViewSampled {
		t.Errorf("view = %v %v", view.Image(), view.Kind())
	}
	data := make([]byte, 64)
	if err := b.WriteImage(img, 0, data); err != nil {
		t.Errorf("WriteImage: %v", err)
	}
	if err := b.WriteImage(img, 0, data[:3]); err == nil {
		t.Error("short WriteImage accepted")
	}
	if err := b.ReadImage(img, 0, data); err != nil {
		t.Errorf("ReadImage: %v", err)
	}
}

func TestCloseBorrowed(t *testing.T) {
	b := newNoopBackend(t, nil)
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, err := b.AllocBuffer(backend.BufferDesc{Size: 4}); err == nil {
		t.Error("AllocBuffer after Close succeeded")
	}
}

type sharedDevice struct {
	device hal.Device
	queue  hal.Queue
}

func (s sharedDevice) HalDevice() any { return s.device }
func (s sharedDevice) HalQueue() any  { return s.queue }

func TestNewFromProvider(t *testing.T) {
	if _, err := NewFromProvider(backend.Config{}, struct{}{}); err == nil {
		t.Error("provider without HAL accessors accepted")
	}
	if _, err := NewFromProvider(backend.Config{}, sharedDevice{}); err == nil {
		t.Error("provider with nil device accepted")
	}

	owner := newNoopBackend(t, nil)
	b, err := NewFromProvider(backend.Config{Label: "shared"}, owner)
	if err != nil {
		t.Fatalf("NewFromProvider: %v", err)
	}
	if b.HalDevice() != owner.HalDevice() {
		t.Error("provider device not shared")
	}
	if err := b.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	// Closing the borrower leaves the owner usable.
	if _, err := owner.AllocBuffer(backend.BufferDesc{Size: 4}); err != nil {
		t.Errorf("owner after borrower Close: %v", err)
	}
}

func TestDeviceOnWgpuBackend(t *testing.T) {
	b := newNoopBackend(t, nil)
	dev, err := rhi.NewDevice(rhi.WithBackendInstance(b), rhi.WithLabel("noop"))
	if err != nil {
		t.Fatalf("NewDevice: %v", err)
	}
	defer dev.Release()

	if dev.BackendName() != Name {
		t.Errorf("BackendName() = %q", dev.BackendName())
	}
	for _, f := range []string{"compute", "wgsl", rhi.FeatureSampler} {
		if !dev.HasFeature(f) {
			t.Errorf("HasFeature(%q) = false", f)
		}
	}
	if dev.HasFeature(rhi.FeatureRayTracing) {
		t.Error("wgpu device reports ray tracing")
	}

	buf, err := dev.CreateBuffer(rhi.BufferDesc{Size: 8, MemoryType: rhi.MemoryReadBack}, []byte{9, 8, 7, 6})
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}
	defer buf.Release()
	got, err := dev.ReadBuffer(buf, 0, 4)
	if err != nil {
		t.Fatalf("ReadBuffer: %v", err)
	}
	if !bytes.Equal(got, []byte{9, 8, 7, 6}) {
		t.Errorf("ReadBuffer = %v", got)
	}
}
