package rhi

import (
	"errors"
	"testing"

	"github.com/gogpu/rhi/reflection"
)

var (
	f32  = reflection.Scalar(reflection.ScalarFloat32)
	u32  = reflection.Scalar(reflection.ScalarUint32)
	vec4 = reflection.Vector(reflection.ScalarFloat32, 4)
)

func materialType() *reflection.Type {
	light := reflection.Struct("Light",
		reflection.Member("color", vec4),
		reflection.Member("intensity", f32))
	return reflection.Struct("Material",
		reflection.Member("tint", f32),
		reflection.Member("lights", reflection.Array(light, 2)),
		reflection.BoundMember("albedo", reflection.Texture(reflection.ShapeTexture2D, vec4, reflection.AccessRead), 0, 1),
		reflection.Member("samp", reflection.Sampler()),
		reflection.Member("params", reflection.ConstantBuffer(reflection.Struct("Params", reflection.Member("scale", f32)))),
		reflection.Member("shading", reflection.Interface("IShading")))
}

func TestLayoutRanges(t *testing.T) {
	dev := newTestDevice(t)
	l, err := dev.CreateShaderObjectLayout(materialType())
	if err != nil {
		t.Fatalf("CreateShaderObjectLayout() error: %v", err)
	}

	wantPaths := []struct {
		path string
		kind BindingRangeKind
	}{
		{"tint", RangeUniform},
		{"lights[0].color", RangeUniform},
		{"lights[0].intensity", RangeUniform},
		{"lights[1].color", RangeUniform},
		{"lights[1].intensity", RangeUniform},
		{"albedo", RangeResource},
		{"samp", RangeSampler},
		{"params", RangeSubObject},
		{"shading", RangeExistential},
	}
	ranges := l.Ranges()
	if len(ranges) != len(wantPaths) {
		t.Fatalf("got %d ranges, want %d", len(ranges), len(wantPaths))
	}
	for i, w := range wantPaths {
		if ranges[i].Path != w.path || ranges[i].Kind != w.kind {
			t.Errorf("range %d = %s %s, want %s %s", i, ranges[i].Path, ranges[i].Kind, w.path, w.kind)
		}
	}

	// vec4 alignment pushes lights to 16; Light is 32 bytes.
	if r, _ := l.Range("lights[1].intensity"); r.Offset != 16+32+16 {
		t.Errorf("lights[1].intensity offset = %d, want 64", r.Offset)
	}
	if r, _ := l.Range("albedo"); r.Binding == nil || r.Binding.Binding != 1 {
		t.Errorf("albedo binding = %+v", r.Binding)
	}
	if r, _ := l.Range("params"); r.SubLayout == nil || r.SubLayout.TypeName() != "Params" {
		t.Error("params has no sub-layout")
	}
	if l.CountOf(RangeUniform) != 5 {
		t.Errorf("CountOf(Uniform) = %d", l.CountOf(RangeUniform))
	}

	again, _ := dev.CreateShaderObjectLayout(l.Type())
	if again != l {
		t.Error("layout not cached per type")
	}
}

func TestLayoutErrors(t *testing.T) {
	dev := newTestDevice(t)
	if _, err := dev.CreateShaderObjectLayout(f32); !errors.Is(err, ErrValidation) {
		t.Errorf("scalar layout = %v, want ErrValidation", err)
	}
	opaqueArray := reflection.Struct("Bad", reflection.Member("textures",
		reflection.Array(reflection.Texture(reflection.ShapeTexture2D, vec4, reflection.AccessRead), 0)))
	if _, err := dev.CreateShaderObjectLayout(opaqueArray); !errors.Is(err, ErrUnsupported) {
		t.Errorf("runtime array of textures = %v, want ErrUnsupported", err)
	}
	cb, err := dev.CreateShaderObjectLayout(reflection.ConstantBuffer(reflection.Struct("Inner", reflection.Member("x", u32))))
	if err != nil || cb.TypeName() != "Inner" {
		t.Errorf("constant buffer layout = %v, %v", cb, err)
	}
}

func TestCursorNavigation(t *testing.T) {
	dev := newTestDevice(t)
	obj, err := dev.CreateShaderObject(materialType())
	if err != nil {
		t.Fatal(err)
	}
	defer obj.Release()
	c := NewShaderCursor(obj)

	if err := c.Path("lights[1].intensity").SetFloat32(2.5); err != nil {
		t.Fatalf("SetFloat32() error: %v", err)
	}
	if got := c.Field("lights").Element(1).Field("intensity").Offset(); got != 64 {
		t.Errorf("offset = %d, want 64", got)
	}
	data := obj.Data()
	if data[64] != 0x00 || data[67] != 0x40 {
		t.Errorf("bytes at 64 = % x, want 2.5 little endian", data[64:68])
	}

	invalid := []ShaderCursor{
		c.Field("missing"),
		c.Field("tint").Field("x"),
		c.Field("lights").Element(2),
		c.Path("lights[x]"),
		NewShaderCursor(nil),
	}
	for i, bad := range invalid {
		if bad.IsValid() {
			t.Errorf("cursor %d is valid", i)
		}
		if err := bad.SetFloat32(1); !errors.Is(err, ErrValidation) {
			t.Errorf("write through cursor %d = %v, want ErrValidation", i, err)
		}
	}

	if err := c.Field("tint").SetUint32(1); !errors.Is(err, ErrValidation) {
		t.Errorf("uint into float = %v, want ErrValidation", err)
	}
	if err := c.Field("albedo").SetData([]byte{1}); !errors.Is(err, ErrValidation) {
		t.Errorf("SetData on a resource = %v, want ErrValidation", err)
	}
	if err := c.Field("tint").SetData(make([]byte, 8)); !errors.Is(err, ErrValidation) {
		t.Errorf("oversized SetData = %v, want ErrValidation", err)
	}
}

func TestCursorThroughSubObjects(t *testing.T) {
	dev := newTestDevice(t)
	mat, _ := dev.CreateShaderObject(materialType())
	defer mat.Release()

	r, _ := mat.Layout().Range("params")
	params, err := dev.CreateShaderObject(r.SubLayout.Type())
	if err != nil {
		t.Fatal(err)
	}
	defer params.Release()
	c := NewShaderCursor(mat)

	if err := c.Field("params").Field("scale").SetFloat32(3); !errors.Is(err, ErrValidation) {
		t.Errorf("write through an unbound slot = %v, want ErrValidation", err)
	}
	if err := c.Field("params").SetObject(params); err != nil {
		t.Fatalf("SetObject(params) error: %v", err)
	}
	if err := c.Path("params.scale").SetFloat32(3); err != nil {
		t.Fatalf("write through bound slot: %v", err)
	}
	if got := params.Data(); got[3] != 0x40 || got[2] != 0x40 {
		t.Errorf("params bytes = % x, want 3.0", got)
	}

	wrong, _ := dev.CreateShaderObject(reflection.Struct("Other", reflection.Member("scale", f32)))
	defer wrong.Release()
	if err := c.Field("params").SetObject(wrong); !errors.Is(err, ErrValidation) {
		t.Errorf("wrong type in constant buffer slot = %v, want ErrValidation", err)
	}
	if err := c.Field("shading").SetObject(wrong); err != nil {
		t.Errorf("any type in interface slot = %v", err)
	}
	if err := c.Field("tint").SetObject(wrong); !errors.Is(err, ErrValidation) {
		t.Errorf("object in uniform slot = %v, want ErrValidation", err)
	}
}

func TestSetObjectRejectsCycles(t *testing.T) {
	dev := newTestDevice(t)
	node := reflection.Struct("Node", reflection.Member("next", reflection.Interface("INode")))
	a, _ := dev.CreateShaderObject(node)
	b, _ := dev.CreateShaderObject(node)
	defer a.Release()
	defer b.Release()

	if err := a.SetObject("next", b); err != nil {
		t.Fatal(err)
	}
	if err := b.SetObject("next", a); !errors.Is(err, ErrValidation) {
		t.Errorf("cycle = %v, want ErrValidation", err)
	}
	if err := a.SetObject("next", a); !errors.Is(err, ErrValidation) {
		t.Errorf("self reference = %v, want ErrValidation", err)
	}
	if err := a.SetObject("next", nil); err != nil {
		t.Errorf("clearing slot = %v", err)
	}
	if a.Object("next") != nil {
		t.Error("slot not cleared")
	}
}

func TestFlattenAlignsSubObjects(t *testing.T) {
	dev := newTestDevice(t)
	outer := reflection.Struct("Outer",
		reflection.Member("a", f32),
		reflection.Member("b", u32),
		reflection.Member("pad", f32),
		reflection.Member("inner", reflection.Interface("IInner")))
	obj, _ := dev.CreateShaderObject(outer)
	defer obj.Release()
	inner, _ := dev.CreateShaderObject(reflection.Struct("Inner", reflection.Member("x", f32), reflection.Member("y", f32)))
	defer inner.Release()

	c := NewShaderCursor(obj)
	_ = c.Field("a").SetFloat32(1)
	_ = c.Field("b").SetUint32(7)
	_ = c.Field("inner").SetObject(inner)
	_ = c.Path("inner.y").SetFloat32(4)

	block := obj.flatten()
	// Uniform data is 12 bytes; the sub-object starts at the next multiple
	// of 16.
	if len(block.Data) != 16+8 {
		t.Fatalf("block size = %d, want 24", len(block.Data))
	}
	if off, _ := block.Offset("inner.y"); off != 20 {
		t.Errorf("inner.y offset = %d, want 20", off)
	}
	if r, ok := block.Object("inner"); !ok || r.Offset != 16 || r.Size != 8 {
		t.Errorf("inner object range = %+v, %v", r, ok)
	}
	if block.Uint32("b") != 7 || block.Float32("a") != 1 || block.Float32("inner.y") != 4 {
		t.Errorf("flattened values a=%v b=%v inner.y=%v", block.Float32("a"), block.Uint32("b"), block.Float32("inner.y"))
	}
}

func TestRootObjectShape(t *testing.T) {
	dev := newTestDevice(t)
	globals := reflection.Struct("Globals", reflection.Member("time", f32))
	ep0 := reflection.ComputeEntryPoint("first", [3]uint32{8, 1, 1}, reflection.Member("n", u32))
	ep1 := reflection.ComputeEntryPoint("second", [3]uint32{1, 1, 1}, reflection.Member("m", u32))
	prog, err := dev.CreateShaderProgram(ShaderProgramDesc{Program: reflection.NewProgram("two", globals, ep0, ep1)})
	if err != nil {
		t.Fatal(err)
	}
	defer prog.Release()

	root, err := dev.CreateRootShaderObject(prog)
	if err != nil {
		t.Fatal(err)
	}
	defer root.Release()
	if root.Kind() != ObjectRoot || root.EntryPointCount() != prog.Reflection().EntryPointCount() {
		t.Fatalf("root kind %v with %d entry points", root.Kind(), root.EntryPointCount())
	}
	for i := range root.EntryPointCount() {
		if root.EntryPoint(i).Kind() != ObjectEntryPoint {
			t.Errorf("entry point %d kind = %v", i, root.EntryPoint(i).Kind())
		}
	}
	if root.EntryPoint(2) != nil {
		t.Error("EntryPoint(2) is not nil")
	}

	c := NewShaderCursor(root)
	if err := c.Field("time").SetFloat32(1); err != nil {
		t.Errorf("global write: %v", err)
	}
	if err := c.Field("n").SetUint32(5); err != nil {
		t.Errorf("entry point fallback write: %v", err)
	}
	if root.EntryPoint(0).flatten().Uint32("n") != 5 {
		t.Error("entry point parameter not written")
	}

	other, _ := dev.CreateShaderObject(reflection.Struct("Leaf"))
	defer other.Release()
	holder, _ := dev.CreateShaderObject(reflection.Struct("Holder", reflection.Member("any", reflection.Interface("IAny"))))
	defer holder.Release()
	if err := holder.SetObject("any", root); !errors.Is(err, ErrValidation) {
		t.Errorf("binding a root object = %v, want ErrValidation", err)
	}
	if err := holder.SetObject("any", other); err != nil {
		t.Errorf("binding a plain object = %v", err)
	}
}

func TestSnapshotSemantics(t *testing.T) {
	dev := newTestDevice(t)
	typ := reflection.Struct("Value", reflection.Member("v", u32))
	plain, _ := dev.CreateShaderObject(typ)
	mutable, _ := dev.CreateMutableShaderObject(typ)
	defer plain.Release()
	defer mutable.Release()

	_ = NewShaderCursor(plain).Field("v").SetUint32(1)
	_ = NewShaderCursor(mutable).Field("v").SetUint32(1)
	ps, ms := plain.snapshot(), mutable.snapshot()
	defer ps.Release()
	defer ms.Release()

	_ = NewShaderCursor(plain).Field("v").SetUint32(2)
	_ = NewShaderCursor(mutable).Field("v").SetUint32(2)

	if ps == plain || ps.flatten().Uint32("v") != 1 {
		t.Error("plain snapshot follows later writes")
	}
	if ms != mutable || ms.flatten().Uint32("v") != 2 {
		t.Error("mutable snapshot does not follow later writes")
	}
}

func TestBindingChecks(t *testing.T) {
	dev := newTestDevice(t)
	typ := reflection.Struct("Slots",
		reflection.Member("buf", reflection.StructuredBuffer(u32, reflection.AccessRead)),
		reflection.Member("img", reflection.Texture(reflection.ShapeTexture2D, vec4, reflection.AccessReadWrite)),
		reflection.Member("bvh", reflection.AccelerationStructure()))
	obj, _ := dev.CreateShaderObject(typ)
	defer obj.Release()
	buf, _ := dev.CreateBuffer(BufferDesc{Size: 16}, nil)
	defer buf.Release()

	if err := obj.SetBinding("buf", BufferBinding{Buffer: buf, Offset: 8, Size: 16}); !errors.Is(err, ErrValidation) {
		t.Errorf("out of range buffer binding = %v, want ErrValidation", err)
	}
	if err := obj.SetBinding("img", BufferBinding{Buffer: buf}); !errors.Is(err, ErrValidation) {
		t.Errorf("buffer in texture slot = %v, want ErrValidation", err)
	}
	if err := obj.SetBinding("nope", BufferBinding{Buffer: buf}); !errors.Is(err, ErrValidation) {
		t.Errorf("unknown path = %v, want ErrValidation", err)
	}
	if err := obj.SetBinding("buf", BufferBinding{Buffer: buf, Offset: 4}); err != nil {
		t.Fatalf("SetBinding() error: %v", err)
	}
	if buf.refs.count() != 2 {
		t.Errorf("buffer refs = %d, want 2 while bound", buf.refs.count())
	}

	block := obj.flatten()
	rb, ok := block.Resource("buf")
	if !ok || rb.Offset != 4 || rb.Size != 12 || rb.ElementSize != 4 {
		t.Errorf("flattened buffer = %+v", rb)
	}

	if err := obj.SetBinding("buf", nil); err != nil {
		t.Fatal(err)
	}
	if buf.refs.count() != 1 {
		t.Errorf("buffer refs = %d after clearing, want 1", buf.refs.count())
	}
}
