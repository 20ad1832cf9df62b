package reflection

// FieldSpec describes a struct member before layout.
type FieldSpec struct {
	Name    string
	Type    *Type
	Binding *BindingPoint
}

// Member returns a field specification.
func Member(name string, t *Type) FieldSpec {
	return FieldSpec{Name: name, Type: t}
}

// BoundMember returns a field specification carrying a native binding point.
func BoundMember(name string, t *Type, group, binding uint32) FieldSpec {
	return FieldSpec{Name: name, Type: t, Binding: &BindingPoint{Group: group, Binding: binding}}
}

// Scalar returns a scalar type.
func Scalar(s ScalarType) *Type {
	size := s.Size()
	return &Type{Kind: KindScalar, Scalar: s, Rows: 1, Columns: 1, Size: size, Alignment: size}
}

// Vector returns an n-component vector type, 2 <= n <= 4.
func Vector(s ScalarType, n uint32) *Type {
	w := s.Size()
	align := 4 * w
	if n == 2 {
		align = 2 * w
	}
	return &Type{Kind: KindVector, Scalar: s, Rows: 1, Columns: n, Size: n * w, Alignment: align}
}

// Matrix returns a column-major matrix type.
func Matrix(s ScalarType, rows, cols uint32) *Type {
	col := Vector(s, rows)
	stride := alignUp(col.Size, col.Alignment)
	return &Type{
		Kind: KindMatrix, Scalar: s, Rows: rows, Columns: cols,
		Size: stride * cols, Alignment: col.Alignment,
	}
}

// Array returns a fixed-size array type. A zero count denotes a runtime
// sized array, which has no uniform footprint.
func Array(elem *Type, count uint32) *Type {
	t := &Type{Kind: KindArray, Element: elem, Count: count, Alignment: max(elem.Alignment, 1)}
	t.Size = t.Stride() * count
	return t
}

// Struct lays out the given members in declaration order.
func Struct(name string, fields ...FieldSpec) *Type {
	t := &Type{Name: name, Kind: KindStruct, Alignment: 1}
	var cursor uint32
	for _, spec := range fields {
		ft := spec.Type
		align := max(ft.Alignment, 1)
		offset := alignUp(cursor, align)
		t.Fields = append(t.Fields, Field{Name: spec.Name, Type: ft, Offset: offset, Binding: spec.Binding})
		cursor = offset + ft.Size
		t.Alignment = max(t.Alignment, align)
	}
	t.Size = alignUp(cursor, t.Alignment)
	return t
}

// StructWithLayout builds a struct whose member offsets and span were
// computed elsewhere, for example by a shader compiler.
func StructWithLayout(name string, size uint32, fields []Field) *Type {
	t := &Type{Name: name, Kind: KindStruct, Fields: fields, Size: size, Alignment: 1}
	for _, f := range fields {
		t.Alignment = max(t.Alignment, f.Type.Alignment)
	}
	return t
}

// StructuredBuffer returns a typed buffer resource.
func StructuredBuffer(elem *Type, access ResourceAccess) *Type {
	return &Type{Kind: KindResource, Shape: ShapeStructuredBuffer, Element: elem, Access: access, Alignment: 1}
}

// ByteAddressBuffer returns an untyped buffer resource.
func ByteAddressBuffer(access ResourceAccess) *Type {
	return &Type{Kind: KindResource, Shape: ShapeByteAddressBuffer, Access: access, Alignment: 1}
}

// Texture returns an image resource of the given shape.
func Texture(shape ResourceShape, elem *Type, access ResourceAccess) *Type {
	return &Type{Kind: KindResource, Shape: shape, Element: elem, Access: access, Alignment: 1}
}

// Sampler returns a sampler type.
func Sampler() *Type {
	return &Type{Name: "SamplerState", Kind: KindSampler, Alignment: 1}
}

// AccelerationStructure returns a ray tracing acceleration structure
// resource.
func AccelerationStructure() *Type {
	return &Type{Name: "RaytracingAccelerationStructure", Kind: KindResource, Shape: ShapeAccelerationStructure, Alignment: 1}
}

// ConstantBuffer wraps inner in its own sub-object.
func ConstantBuffer(inner *Type) *Type {
	return &Type{Kind: KindConstantBuffer, Element: inner, Alignment: 1}
}

// ParameterBlock wraps inner in its own sub-object.
func ParameterBlock(inner *Type) *Type {
	return &Type{Kind: KindParameterBlock, Element: inner, Alignment: 1}
}

// Interface returns a generic parameter type. Values bound to it are
// concrete types; their names become specialization arguments.
func Interface(name string) *Type {
	return &Type{Name: name, Kind: KindInterface, Alignment: 1}
}

// ComputeEntryPoint returns a compute entry point whose parameters are laid
// out like a struct.
func ComputeEntryPoint(name string, threadGroupSize [3]uint32, params ...FieldSpec) *EntryPoint {
	return &EntryPoint{
		Name:            name,
		Stage:           StageCompute,
		ThreadGroupSize: threadGroupSize,
		Params:          Struct(name+".params", params...),
	}
}
