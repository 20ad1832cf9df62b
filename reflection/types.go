package reflection

import (
	"fmt"
	"strings"
)

// Kind classifies a reflected type.
type Kind uint8

const (
	KindNone Kind = iota
	KindScalar
	KindVector
	KindMatrix
	KindArray
	KindStruct
	KindResource
	KindSampler
	KindConstantBuffer
	KindParameterBlock
	KindInterface
)

var kindNames = [...]string{
	KindNone:           "None",
	KindScalar:         "Scalar",
	KindVector:         "Vector",
	KindMatrix:         "Matrix",
	KindArray:          "Array",
	KindStruct:         "Struct",
	KindResource:       "Resource",
	KindSampler:        "Sampler",
	KindConstantBuffer: "ConstantBuffer",
	KindParameterBlock: "ParameterBlock",
	KindInterface:      "Interface",
}

// String returns the kind name.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Unknown"
}

// ScalarType identifies a scalar element type.
type ScalarType uint8

const (
	ScalarNone ScalarType = iota
	ScalarBool
	ScalarInt16
	ScalarUint16
	ScalarFloat16
	ScalarInt32
	ScalarUint32
	ScalarFloat32
	ScalarInt64
	ScalarUint64
	ScalarFloat64
)

var scalarNames = [...]string{
	ScalarNone:    "none",
	ScalarBool:    "bool",
	ScalarInt16:   "int16",
	ScalarUint16:  "uint16",
	ScalarFloat16: "float16",
	ScalarInt32:   "int32",
	ScalarUint32:  "uint32",
	ScalarFloat32: "float32",
	ScalarInt64:   "int64",
	ScalarUint64:  "uint64",
	ScalarFloat64: "float64",
}

// String returns the scalar type name.
func (s ScalarType) String() string {
	if int(s) < len(scalarNames) {
		return scalarNames[s]
	}
	return "unknown"
}

// Size returns the width of the scalar in bytes. Booleans occupy four bytes
// in host-shareable memory.
func (s ScalarType) Size() uint32 {
	switch s {
	case ScalarInt16, ScalarUint16, ScalarFloat16:
		return 2
	case ScalarBool, ScalarInt32, ScalarUint32, ScalarFloat32:
		return 4
	case ScalarInt64, ScalarUint64, ScalarFloat64:
		return 8
	default:
		return 0
	}
}

// ResourceShape describes what a resource-kind type binds to.
type ResourceShape uint8

const (
	ShapeNone ResourceShape = iota
	ShapeStructuredBuffer
	ShapeByteAddressBuffer
	ShapeTexture1D
	ShapeTexture2D
	ShapeTexture3D
	ShapeTextureCube
	ShapeAccelerationStructure
)

// IsBuffer reports whether the shape binds buffer memory.
func (s ResourceShape) IsBuffer() bool {
	return s == ShapeStructuredBuffer || s == ShapeByteAddressBuffer
}

// IsTexture reports whether the shape binds image memory.
func (s ResourceShape) IsTexture() bool {
	return s >= ShapeTexture1D && s <= ShapeTextureCube
}

// ResourceAccess is the shader-side access mode of a resource.
type ResourceAccess uint8

const (
	AccessRead ResourceAccess = iota
	AccessReadWrite
)

// BindingPoint is a native bind group / binding pair.
type BindingPoint struct {
	Group   uint32
	Binding uint32
}

// Type is a reflected shader type.
//
// Size and Alignment describe the uniform footprint. Resource, sampler,
// sub-object and interface kinds have no uniform footprint of their own.
type Type struct {
	Name string
	Kind Kind

	// Scalar is the element scalar for scalar, vector and matrix kinds.
	Scalar ScalarType
	// Rows and Columns give the vector length (Columns) or matrix shape.
	Rows    uint32
	Columns uint32

	// Element is the array element, the resource element, or the inner
	// type of a constant buffer or parameter block.
	Element *Type
	// Count is the array length; zero means runtime sized.
	Count uint32

	Fields []Field

	Shape  ResourceShape
	Access ResourceAccess

	Size      uint32
	Alignment uint32
}

// Field is a named member of a struct type.
type Field struct {
	Name    string
	Type    *Type
	Offset  uint32
	Binding *BindingPoint
}

// FieldByName returns the struct member with the given name.
func (t *Type) FieldByName(name string) (Field, bool) {
	if t == nil {
		return Field{}, false
	}
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// IsSubObject reports whether values of this type live in their own
// shader object rather than inline in the parent's uniform data.
func (t *Type) IsSubObject() bool {
	if t == nil {
		return false
	}
	switch t.Kind {
	case KindConstantBuffer, KindParameterBlock, KindInterface:
		return true
	}
	return false
}

// Stride returns the distance between array elements.
func (t *Type) Stride() uint32 {
	if t == nil || t.Element == nil {
		return 0
	}
	return alignUp(t.Element.Size, t.Element.Alignment)
}

// ElementSize returns the byte size of one element of a buffer resource.
// Byte address buffers report 4.
func (t *Type) ElementSize() uint32 {
	if t == nil || t.Kind != KindResource {
		return 0
	}
	if t.Shape == ShapeByteAddressBuffer {
		return 4
	}
	if t.Element == nil {
		return 0
	}
	return alignUp(t.Element.Size, t.Element.Alignment)
}

// String returns a readable type signature.
func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	switch t.Kind {
	case KindScalar:
		return t.Scalar.String()
	case KindVector:
		return fmt.Sprintf("%s%d", t.Scalar, t.Columns)
	case KindMatrix:
		return fmt.Sprintf("%s%dx%d", t.Scalar, t.Rows, t.Columns)
	case KindArray:
		if t.Count == 0 {
			return t.Element.String() + "[]"
		}
		return fmt.Sprintf("%s[%d]", t.Element, t.Count)
	case KindResource:
		return fmt.Sprintf("resource<%s>", t.Element)
	case KindConstantBuffer:
		return fmt.Sprintf("ConstantBuffer<%s>", t.Element)
	case KindParameterBlock:
		return fmt.Sprintf("ParameterBlock<%s>", t.Element)
	}
	if t.Name != "" {
		return t.Name
	}
	var b strings.Builder
	b.WriteString("struct{")
	for i, f := range t.Fields {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(f.Name)
		b.WriteByte(' ')
		b.WriteString(f.Type.String())
	}
	b.WriteByte('}')
	return b.String()
}

func alignUp(v, a uint32) uint32 {
	if a <= 1 {
		return v
	}
	return (v + a - 1) / a * a
}
