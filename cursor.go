package rhi

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/gogpu/rhi/reflection"
)

// ShaderCursor addresses a location inside a shader object by walking its
// reflected type. Navigation never fails eagerly: an invalid step yields an
// invalid cursor and writes through it return ErrValidation.
//
//	c := rhi.NewShaderCursor(root)
//	c.Path("material.tint").SetFloat32(0.5)
//	c.Field("buffer").SetBinding(rhi.BufferBinding{Buffer: buf})
type ShaderCursor struct {
	obj    *ShaderObject
	typ    *reflection.Type
	offset uint32
	path   string
	err    string
}

// NewShaderCursor returns a cursor at the top of obj.
func NewShaderCursor(obj *ShaderObject) ShaderCursor {
	if obj == nil {
		return ShaderCursor{err: "nil object"}
	}
	return ShaderCursor{obj: obj, typ: obj.layout.typ}
}

func (c ShaderCursor) invalid(format string, args ...any) ShaderCursor {
	return ShaderCursor{err: c.where() + ": " + fmt.Sprintf(format, args...)}
}

func (c ShaderCursor) where() string {
	if c.obj == nil {
		return "<invalid>"
	}
	if c.path == "" {
		return c.obj.TypeName()
	}
	return c.obj.TypeName() + "." + c.path
}

// IsValid reports whether the cursor points at a parameter.
func (c ShaderCursor) IsValid() bool { return c.obj != nil && c.typ != nil }

// Type returns the reflected type at the cursor.
func (c ShaderCursor) Type() *reflection.Type { return c.typ }

// Object returns the object the cursor writes into.
func (c ShaderCursor) Object() *ShaderObject { return c.obj }

// Offset returns the uniform byte offset of the cursor in its object.
func (c ShaderCursor) Offset() uint32 { return c.offset }

// Field steps into a struct member. Stepping through a sub-object slot
// continues in the bound object. On a root object, names missing from the
// global scope are looked up in the entry point parameters.
func (c ShaderCursor) Field(name string) ShaderCursor {
	if !c.IsValid() {
		return c
	}
	if c.typ.IsSubObject() {
		sub := c.obj.Object(c.path)
		if sub == nil {
			return c.invalid("no object bound")
		}
		return NewShaderCursor(sub).Field(name)
	}
	if c.typ.Kind != reflection.KindStruct {
		return c.invalid("%s has no fields", c.typ)
	}
	f, ok := c.typ.FieldByName(name)
	if !ok {
		if c.path == "" && c.obj.kind == ObjectRoot {
			for _, ep := range c.obj.entryPoints {
				if _, ok := ep.layout.typ.FieldByName(name); ok {
					return NewShaderCursor(ep).Field(name)
				}
			}
		}
		return c.invalid("no field %q", name)
	}
	next := c
	next.typ = f.Type
	next.offset = c.offset + f.Offset
	if c.path == "" {
		next.path = name
	} else {
		next.path = c.path + "." + name
	}
	return next
}

// Element steps into array element i.
func (c ShaderCursor) Element(i uint32) ShaderCursor {
	if !c.IsValid() {
		return c
	}
	if c.typ.Kind != reflection.KindArray {
		return c.invalid("%s is not an array", c.typ)
	}
	if c.typ.Count != 0 && i >= c.typ.Count {
		return c.invalid("index %d out of range [0, %d)", i, c.typ.Count)
	}
	next := c
	next.typ = c.typ.Element
	next.offset = c.offset + i*c.typ.Stride()
	next.path = c.path + "[" + strconv.FormatUint(uint64(i), 10) + "]"
	return next
}

// Path walks a dotted path with optional indices, such as "lights[2].color".
func (c ShaderCursor) Path(p string) ShaderCursor {
	for _, part := range strings.Split(p, ".") {
		name, rest, _ := strings.Cut(part, "[")
		if name != "" {
			c = c.Field(name)
		}
		for rest != "" {
			idx, after, ok := strings.Cut(rest, "]")
			if !ok {
				return c.invalid("malformed path %q", p)
			}
			n, err := strconv.ParseUint(idx, 10, 32)
			if err != nil {
				return c.invalid("malformed index in %q", p)
			}
			c = c.Element(uint32(n))
			rest = strings.TrimPrefix(after, "[")
		}
	}
	return c
}

func (c ShaderCursor) checkValid() error {
	if !c.IsValid() {
		return validationError("invalid cursor: %s", c.err)
	}
	return nil
}

// SetData writes raw uniform bytes at the cursor.
func (c ShaderCursor) SetData(data []byte) error {
	if err := c.checkValid(); err != nil {
		return err
	}
	if hasOpaque(c.typ) {
		return validationError("%s: %s is not uniform data", c.where(), c.typ)
	}
	if c.typ.Size != 0 && uint32(len(data)) > c.typ.Size { // #nosec G115 -- compared against a uint32 size
		return validationError("%s: %d bytes exceed the %d byte %s", c.where(), len(data), c.typ.Size, c.typ)
	}
	return c.obj.SetData(c.offset, data)
}

func (c ShaderCursor) setScalar(bits uint32, want ...reflection.ScalarType) error {
	if err := c.checkValid(); err != nil {
		return err
	}
	if c.typ.Kind != reflection.KindScalar || !containsScalar(want, c.typ.Scalar) {
		return validationError("%s: cannot store %v into %s", c.where(), want[0], c.typ)
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], bits)
	return c.obj.SetData(c.offset, buf[:])
}

func containsScalar(set []reflection.ScalarType, s reflection.ScalarType) bool {
	for _, x := range set {
		if x == s {
			return true
		}
	}
	return false
}

// SetFloat32 writes a float scalar.
func (c ShaderCursor) SetFloat32(v float32) error {
	return c.setScalar(math.Float32bits(v), reflection.ScalarFloat32)
}

// SetUint32 writes an unsigned or boolean scalar.
func (c ShaderCursor) SetUint32(v uint32) error {
	return c.setScalar(v, reflection.ScalarUint32, reflection.ScalarBool)
}

// SetInt32 writes a signed scalar.
func (c ShaderCursor) SetInt32(v int32) error {
	return c.setScalar(uint32(v), reflection.ScalarInt32) // #nosec G115 -- bit reinterpretation
}

// SetBinding binds a resource at the cursor.
func (c ShaderCursor) SetBinding(b Binding) error {
	if err := c.checkValid(); err != nil {
		return err
	}
	return c.obj.SetBinding(c.path, b)
}

// SetObject binds a sub-object at the cursor.
func (c ShaderCursor) SetObject(sub *ShaderObject) error {
	if err := c.checkValid(); err != nil {
		return err
	}
	return c.obj.SetObject(c.path, sub)
}
