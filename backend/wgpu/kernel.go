package wgpu

import (
	"cmp"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/naga/spirv"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi/backend"
	"github.com/gogpu/rhi/reflection"
)

type slotKind uint8

const (
	slotUniform slotKind = iota
	slotStorage
	slotReadOnlyStorage
	slotTexture
	slotStorageTexture
	slotSampler
)

// slot is one binding of a kernel, located by its parameter path in the
// globals or the entry point argument block.
type slot struct {
	path    string
	entry   bool
	group   uint32
	binding uint32
	kind    slotKind
	typ     *reflection.Type
	size    uint64 // uniform slots only
}

type kernel struct {
	id        uint64
	name      string
	groupSize [3]uint32

	module         hal.ShaderModule
	layouts        []hal.BindGroupLayout
	pipelineLayout hal.PipelineLayout
	pipeline       hal.ComputePipeline

	slots    []slot
	uniforms []hal.Buffer // parallel to slots, nil except for uniform slots
}

func (k *kernel) Name() string               { return k.name }
func (k *kernel) ThreadGroupSize() [3]uint32 { return k.groupSize }

// CompileKernel specializes the WGSL source, validates it with naga and
// builds the compute pipeline. Validation findings are returned as
// diagnostics.
func (b *Backend) CompileKernel(req *backend.KernelRequest) (backend.Kernel, []byte, error) {
	if err := b.checkOpen(); err != nil {
		return nil, nil, err
	}
	if req.Source == nil || req.Source.WGSL == "" {
		return nil, nil, fmt.Errorf("wgpu: kernel %s: no WGSL source: %w", req.EntryPoint, backend.ErrUnsupported)
	}
	name := kernelName(req)
	code, err := specializeWGSL(req)
	if err != nil {
		return nil, nil, err
	}
	spv, diag, err := compileWGSL(code, b.info.Backend == gputypes.BackendVulkan)
	if err != nil {
		return nil, diag, fmt.Errorf("wgpu: kernel %s: %w", name, err)
	}

	slots, err := collectSlots(req)
	if err != nil {
		return nil, diag, fmt.Errorf("wgpu: kernel %s: %w", name, err)
	}
	if b.softwareDevice() && (len(req.TypeArgs) > 0 || hasUniform(slots)) {
		return nil, diag, fmt.Errorf("wgpu: kernel %s: constant buffers and specialized types do not run on the software device: %w", name, backend.ErrUnsupported)
	}
	groups := groupCount(slots)
	if groups > b.limits.MaxBindGroups {
		return nil, diag, fmt.Errorf("wgpu: kernel %s uses %d bind groups, device allows %d: %w", name, groups, b.limits.MaxBindGroups, backend.ErrUnsupported)
	}

	k := &kernel{id: b.newID(), name: name, slots: slots, uniforms: make([]hal.Buffer, len(slots))}
	if size, ok := req.Program.ThreadGroupSize(req.EntryPoint); ok {
		k.groupSize = size
	}
	if err := b.buildPipeline(k, req.EntryPoint, code, spv, groups); err != nil {
		b.destroyKernel(k)
		return nil, diag, err
	}
	slogger().Debug("wgpu: kernel compiled", "kernel", name, "bind_groups", groups, "slots", len(slots))
	return k, diag, nil
}

// softwareDevice reports whether kernels run on the software HAL's SPIR-V
// interpreter. It executes storage-buffer kernels but leaves the buffers
// untouched for kernels reading uniforms through specialized struct calls,
// without reporting an error.
func (b *Backend) softwareDevice() bool {
	return b.info.Backend == gputypes.BackendEmpty && b.info.DeviceType == gputypes.DeviceTypeCPU
}

func hasUniform(slots []slot) bool {
	for _, s := range slots {
		if s.kind == slotUniform {
			return true
		}
	}
	return false
}

func kernelName(req *backend.KernelRequest) string {
	if len(req.TypeArgs) == 0 {
		return req.EntryPoint
	}
	return req.EntryPoint + "<" + strings.Join(req.TypeArgs, ",") + ">"
}

// specializeWGSL binds interface parameters by prepending the declarations
// of the concrete types and an alias from each interface name to its
// argument.
func specializeWGSL(req *backend.KernelRequest) (string, error) {
	if len(req.TypeParams) != len(req.TypeArgs) {
		return "", fmt.Errorf("wgpu: %d type parameters, %d arguments", len(req.TypeParams), len(req.TypeArgs))
	}
	var sb strings.Builder
	bound := make(map[string]string)
	declared := make(map[string]bool)
	for i, param := range req.TypeParams {
		arg := req.TypeArgs[i]
		if prev, ok := bound[param]; ok {
			if prev != arg {
				return "", fmt.Errorf("wgpu: interface %s bound to both %s and %s: %w", param, prev, arg, backend.ErrUnsupported)
			}
			continue
		}
		bound[param] = arg
		if !declared[arg] {
			declared[arg] = true
			if decl, ok := req.Source.TypeWGSL[arg]; ok {
				sb.WriteString(decl)
				sb.WriteByte('\n')
			}
		}
		if param != arg {
			fmt.Fprintf(&sb, "alias %s = %s;\n", param, arg)
		}
	}
	sb.WriteString(req.Source.WGSL)
	return sb.String(), nil
}

// compileWGSL validates code and, when asked, emits SPIR-V words.
func compileWGSL(code string, wantSPIRV bool) ([]uint32, []byte, error) {
	ast, err := naga.Parse(code)
	if err != nil {
		return nil, []byte(err.Error()), fmt.Errorf("parse: %w", err)
	}
	module, err := naga.LowerWithSource(ast, code)
	if err != nil {
		return nil, []byte(err.Error()), fmt.Errorf("lower: %w", err)
	}
	verrs, err := naga.Validate(module)
	if err != nil {
		return nil, nil, fmt.Errorf("validate: %w", err)
	}
	if len(verrs) > 0 {
		lines := make([]string, len(verrs))
		errs := make([]error, len(verrs))
		for i, ve := range verrs {
			lines[i] = ve.Error()
			errs[i] = ve
		}
		return nil, []byte(strings.Join(lines, "\n")), fmt.Errorf("validation failed: %w", errors.Join(errs...))
	}
	if !wantSPIRV {
		return nil, nil, nil
	}
	raw, err := naga.GenerateSPIRV(module, spirv.Options{Version: spirv.Version1_3})
	if err != nil {
		return nil, nil, err
	}
	if len(raw)%4 != 0 {
		return nil, nil, fmt.Errorf("SPIR-V output of %d bytes is not word aligned", len(raw))
	}
	words := make([]uint32, len(raw)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	return words, nil, nil
}

// slotCollector walks reflected parameter types and records every
// binding point.
type slotCollector struct {
	program *reflection.Program
	args    map[string]string
	entry   bool
	slots   []slot
}

func collectSlots(req *backend.KernelRequest) ([]slot, error) {
	c := &slotCollector{program: req.Program, args: make(map[string]string)}
	for i, p := range req.TypeParams {
		c.args[p] = req.TypeArgs[i]
	}
	if req.Program.Globals.Size > 0 {
		return nil, fmt.Errorf("loose global uniforms must live in a constant buffer: %w", backend.ErrUnsupported)
	}
	if err := c.walkFields(req.Program.Globals, ""); err != nil {
		return nil, err
	}
	if req.EntryPointIndex >= 0 && req.EntryPointIndex < len(req.Program.EntryPoints) {
		params := req.Program.EntryPoints[req.EntryPointIndex].Params
		if params != nil {
			if params.Size > 0 {
				return nil, fmt.Errorf("entry point uniforms are not bindable: %w", backend.ErrUnsupported)
			}
			c.entry = true
			if err := c.walkFields(params, ""); err != nil {
				return nil, err
			}
		}
	}

	seen := make(map[[2]uint32]string)
	for _, s := range c.slots {
		key := [2]uint32{s.group, s.binding}
		if prev, dup := seen[key]; dup {
			return nil, fmt.Errorf("%s and %s share @group(%d) @binding(%d)", prev, s.path, s.group, s.binding)
		}
		seen[key] = s.path
	}
	slices.SortStableFunc(c.slots, func(a, b slot) int {
		return cmp.Or(cmp.Compare(a.group, b.group), cmp.Compare(a.binding, b.binding))
	})
	return c.slots, nil
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func (c *slotCollector) walkFields(t *reflection.Type, prefix string) error {
	for _, f := range t.Fields {
		if err := c.walk(f.Type, joinPath(prefix, f.Name), f.Binding); err != nil {
			return err
		}
	}
	return nil
}

func (c *slotCollector) add(path string, bp *reflection.BindingPoint, kind slotKind, t *reflection.Type, size uint64) error {
	if bp == nil {
		return fmt.Errorf("%s (%s) has no binding point: %w", path, t, backend.ErrUnsupported)
	}
	c.slots = append(c.slots, slot{
		path: path, entry: c.entry, group: bp.Group, binding: bp.Binding,
		kind: kind, typ: t, size: size,
	})
	return nil
}

func (c *slotCollector) walk(t *reflection.Type, path string, bp *reflection.BindingPoint) error {
	switch t.Kind {
	case reflection.KindStruct:
		return c.walkFields(t, path)
	case reflection.KindConstantBuffer, reflection.KindParameterBlock:
		return c.subObject(t.Element, path, bp)
	case reflection.KindInterface:
		arg, ok := c.args[t.Name]
		if !ok {
			return fmt.Errorf("%s: interface %s has no type argument", path, t.Name)
		}
		concrete := c.program.FindTypeByName(arg)
		if concrete == nil {
			return fmt.Errorf("%s: type %s is not declared by the program", path, arg)
		}
		return c.subObject(concrete, path, bp)
	case reflection.KindResource:
		switch {
		case t.Shape.IsBuffer() && t.Access == reflection.AccessRead:
			return c.add(path, bp, slotReadOnlyStorage, t, 0)
		case t.Shape.IsBuffer():
			return c.add(path, bp, slotStorage, t, 0)
		case t.Shape.IsTexture() && t.Access == reflection.AccessRead:
			return c.add(path, bp, slotTexture, t, 0)
		case t.Shape.IsTexture():
			return c.add(path, bp, slotStorageTexture, t, 0)
		}
		return fmt.Errorf("%s: %s: %w", path, t, backend.ErrUnsupported)
	case reflection.KindSampler:
		return c.add(path, bp, slotSampler, t, 0)
	case reflection.KindArray:
		if t.Element != nil && t.Element.Kind != reflection.KindScalar &&
			t.Element.Kind != reflection.KindVector && t.Element.Kind != reflection.KindMatrix &&
			t.Element.Kind != reflection.KindStruct {
			return fmt.Errorf("%s: arrays of %s: %w", path, t.Element, backend.ErrUnsupported)
		}
	}
	return nil
}

// subObject records the uniform buffer of a sub-object, if it has uniform
// data, and the bindings nested inside it.
func (c *slotCollector) subObject(inner *reflection.Type, path string, bp *reflection.BindingPoint) error {
	if inner == nil {
		return fmt.Errorf("%s: sub-object without a type", path)
	}
	if inner.Size > 0 {
		if err := c.add(path, bp, slotUniform, inner, uint64(inner.Size)); err != nil {
			return err
		}
	}
	return c.walkFields(inner, path)
}

func groupCount(slots []slot) uint32 {
	var n uint32
	for _, s := range slots {
		n = max(n, s.group+1)
	}
	return n
}

func (b *Backend) buildPipeline(k *kernel, entryPoint, code string, spv []uint32, groups uint32) error {
	src := hal.ShaderSource{WGSL: code}
	if spv != nil {
		// The Vulkan HAL prefers WGSL when both are present.
		src = hal.ShaderSource{SPIRV: spv}
	}
	var err error
	k.module, err = b.device.CreateShaderModule(&hal.ShaderModuleDescriptor{Label: k.name, Source: src})
	if err != nil {
		return halError("create shader module "+k.name, err)
	}

	entries := make([][]gputypes.BindGroupLayoutEntry, groups)
	for i, s := range k.slots {
		entries[s.group] = append(entries[s.group], layoutEntry(s))
		if s.kind == slotUniform {
			k.uniforms[i], err = b.device.CreateBuffer(&hal.BufferDescriptor{
				Label: k.name + ":" + s.path,
				Size:  alignUp(max(s.size, 16), 16),
				Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
			})
			if err != nil {
				return halError("create uniform buffer "+s.path, err)
			}
		}
	}
	for g := range groups {
		layout, err := b.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
			Label:   fmt.Sprintf("%s/group%d", k.name, g),
			Entries: entries[g],
		})
		if err != nil {
			return halError("create bind group layout", err)
		}
		k.layouts = append(k.layouts, layout)
	}

	k.pipelineLayout, err = b.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            k.name,
		BindGroupLayouts: k.layouts,
	})
	if err != nil {
		return halError("create pipeline layout", err)
	}
	k.pipeline, err = b.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   k.name,
		Layout:  k.pipelineLayout,
		Compute: hal.ComputeState{Module: k.module, EntryPoint: entryPoint},
	})
	if err != nil {
		return halError("create compute pipeline", err)
	}
	return nil
}

func layoutEntry(s slot) gputypes.BindGroupLayoutEntry {
	e := gputypes.BindGroupLayoutEntry{Binding: s.binding, Visibility: gputypes.ShaderStageCompute}
	switch s.kind {
	case slotUniform:
		e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform, MinBindingSize: s.size}
	case slotStorage:
		e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}
	case slotReadOnlyStorage:
		e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}
	case slotTexture:
		e.Texture = &gputypes.TextureBindingLayout{
			SampleType:    sampleType(s.typ.Element),
			ViewDimension: shapeViewDimension(s.typ.Shape),
		}
	case slotStorageTexture:
		e.StorageTexture = &gputypes.StorageTextureBindingLayout{
			Access:        gputypes.StorageTextureAccessReadWrite,
			Format:        storageFormat(s.typ.Element),
			ViewDimension: shapeViewDimension(s.typ.Shape),
		}
		if s.typ.Shape == reflection.ShapeTextureCube {
			e.StorageTexture.ViewDimension = gputypes.TextureViewDimension2DArray
		}
	case slotSampler:
		e.Sampler = &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering}
	}
	return e
}

func shapeViewDimension(s reflection.ResourceShape) gputypes.TextureViewDimension {
	switch s {
	case reflection.ShapeTexture1D:
		return gputypes.TextureViewDimension1D
	case reflection.ShapeTexture3D:
		return gputypes.TextureViewDimension3D
	case reflection.ShapeTextureCube:
		return gputypes.TextureViewDimensionCube
	}
	return gputypes.TextureViewDimension2D
}

func sampleType(elem *reflection.Type) gputypes.TextureSampleType {
	if elem == nil {
		return gputypes.TextureSampleTypeFloat
	}
	switch elem.Scalar {
	case reflection.ScalarUint16, reflection.ScalarUint32:
		return gputypes.TextureSampleTypeUint
	case reflection.ScalarInt16, reflection.ScalarInt32:
		return gputypes.TextureSampleTypeSint
	}
	return gputypes.TextureSampleTypeFloat
}

// storageFormat picks a 32-bit format matching the element type of a
// writable texture.
func storageFormat(elem *reflection.Type) gputypes.TextureFormat {
	wide := elem != nil && elem.Columns > 1
	switch sampleType(elem) {
	case gputypes.TextureSampleTypeUint:
		if wide {
			return gputypes.TextureFormatRGBA32Uint
		}
		return gputypes.TextureFormatR32Uint
	case gputypes.TextureSampleTypeSint:
		if wide {
			return gputypes.TextureFormatRGBA32Sint
		}
		return gputypes.TextureFormatR32Sint
	}
	if wide {
		return gputypes.TextureFormatRGBA32Float
	}
	return gputypes.TextureFormatR32Float
}

// FreeKernel destroys the pipeline objects of a kernel and the bind groups
// built for it.
func (b *Backend) FreeKernel(k backend.Kernel) {
	kk, ok := k.(*kernel)
	if !ok || kk == nil {
		return
	}
	b.forget(kk.id)
	b.destroyKernel(kk)
}

func (b *Backend) destroyKernel(k *kernel) {
	if k.pipeline != nil {
		b.device.DestroyComputePipeline(k.pipeline)
	}
	if k.pipelineLayout != nil {
		b.device.DestroyPipelineLayout(k.pipelineLayout)
	}
	for _, l := range k.layouts {
		b.device.DestroyBindGroupLayout(l)
	}
	for _, u := range k.uniforms {
		if u != nil {
			b.device.DestroyBuffer(u)
		}
	}
	if k.module != nil {
		b.device.DestroyShaderModule(k.module)
	}
	*k = kernel{id: k.id, name: k.name}
}
