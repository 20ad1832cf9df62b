package rhi

import (
	"fmt"
	"strconv"

	"github.com/gogpu/rhi/reflection"
)

// BindingRangeKind classifies a slot in a shader object layout.
type BindingRangeKind uint8

const (
	// RangeUniform is inline uniform data.
	RangeUniform BindingRangeKind = iota
	// RangeResource is a buffer, texture or acceleration structure slot.
	RangeResource
	// RangeSampler is a sampler slot.
	RangeSampler
	// RangeSubObject is a constant buffer or parameter block held in its own
	// shader object.
	RangeSubObject
	// RangeExistential is an interface-typed slot. The concrete type of the
	// object bound there is a specialization argument.
	RangeExistential
)

var rangeKindNames = [...]string{
	RangeUniform:     "Uniform",
	RangeResource:    "Resource",
	RangeSampler:     "Sampler",
	RangeSubObject:   "SubObject",
	RangeExistential: "Existential",
}

func (k BindingRangeKind) String() string {
	if int(k) < len(rangeKindNames) {
		return rangeKindNames[k]
	}
	return "BindingRangeKind(" + strconv.Itoa(int(k)) + ")"
}

// BindingRange is one slot of a layout, in declaration order.
type BindingRange struct {
	Kind BindingRangeKind
	// Path is the slot's parameter path relative to the object, for example
	// "lights[2].color".
	Path string
	Type *reflection.Type
	// Offset and Size locate uniform data in the object's bytes.
	Offset uint32
	Size   uint32
	// Binding is the native binding point declared on the parameter.
	Binding *reflection.BindingPoint
	// SubLayout is the layout of the object a SubObject slot holds.
	SubLayout *ShaderObjectLayout
}

// ShaderObjectLayout is the binding layout of one reflected type. Layouts are
// built once per type and cached on the device.
type ShaderObjectLayout struct {
	typ         *reflection.Type
	ranges      []BindingRange
	uniformSize uint32
	byPath      map[string]int
}

// CreateShaderObjectLayout returns the layout for t, building it on first
// use. Constant buffers and parameter blocks are laid out as their inner
// type.
func (d *Device) CreateShaderObjectLayout(t *reflection.Type) (*ShaderObjectLayout, error) {
	if t == nil {
		return nil, validationError("layout of nil type")
	}
	d.layoutMu.Lock()
	defer d.layoutMu.Unlock()
	return d.layoutLocked(t)
}

func (d *Device) layoutLocked(t *reflection.Type) (*ShaderObjectLayout, error) {
	if l, ok := d.layouts[t]; ok {
		return l, nil
	}
	inner := t
	if t.Kind == reflection.KindConstantBuffer || t.Kind == reflection.KindParameterBlock {
		inner = t.Element
	}
	if inner == nil || inner.Kind != reflection.KindStruct {
		return nil, validationError("layout of %s: shader objects are built from struct types", t)
	}

	l := &ShaderObjectLayout{typ: inner, uniformSize: inner.Size, byPath: make(map[string]int)}
	for _, f := range inner.Fields {
		if err := d.addRanges(l, f.Type, f.Name, f.Offset, f.Binding); err != nil {
			return nil, fmt.Errorf("layout of %s: %w", inner.Name, err)
		}
	}
	d.layouts[t] = l
	if t != inner {
		d.layouts[inner] = l
	}
	return l, nil
}

func (d *Device) addRanges(l *ShaderObjectLayout, t *reflection.Type, path string, offset uint32, binding *reflection.BindingPoint) error {
	add := func(r BindingRange) {
		l.byPath[r.Path] = len(l.ranges)
		l.ranges = append(l.ranges, r)
	}
	switch t.Kind {
	case reflection.KindScalar, reflection.KindVector, reflection.KindMatrix:
		add(BindingRange{Kind: RangeUniform, Path: path, Type: t, Offset: offset, Size: t.Size})
	case reflection.KindStruct:
		for _, f := range t.Fields {
			if err := d.addRanges(l, f.Type, path+"."+f.Name, offset+f.Offset, f.Binding); err != nil {
				return err
			}
		}
	case reflection.KindArray:
		if t.Count == 0 {
			if hasOpaque(t.Element) {
				return fmt.Errorf("%s: runtime sized array of opaque types: %w", path, ErrUnsupported)
			}
			add(BindingRange{Kind: RangeUniform, Path: path, Type: t, Offset: offset})
			return nil
		}
		for i := range t.Count {
			elem := path + "[" + strconv.FormatUint(uint64(i), 10) + "]"
			if err := d.addRanges(l, t.Element, elem, offset+i*t.Stride(), binding); err != nil {
				return err
			}
		}
	case reflection.KindResource:
		add(BindingRange{Kind: RangeResource, Path: path, Type: t, Binding: binding})
	case reflection.KindSampler:
		add(BindingRange{Kind: RangeSampler, Path: path, Type: t, Binding: binding})
	case reflection.KindConstantBuffer, reflection.KindParameterBlock:
		sub, err := d.layoutLocked(t)
		if err != nil {
			return err
		}
		add(BindingRange{Kind: RangeSubObject, Path: path, Type: t, Binding: binding, SubLayout: sub})
	case reflection.KindInterface:
		add(BindingRange{Kind: RangeExistential, Path: path, Type: t, Binding: binding})
	default:
		return fmt.Errorf("%s: type %s: %w", path, t, ErrUnsupported)
	}
	return nil
}

// hasOpaque reports whether t contains anything that is not uniform data.
func hasOpaque(t *reflection.Type) bool {
	switch t.Kind {
	case reflection.KindScalar, reflection.KindVector, reflection.KindMatrix:
		return false
	case reflection.KindArray:
		return hasOpaque(t.Element)
	case reflection.KindStruct:
		for _, f := range t.Fields {
			if hasOpaque(f.Type) {
				return true
			}
		}
		return false
	}
	return true
}

// Type returns the struct type the layout was built from.
func (l *ShaderObjectLayout) Type() *reflection.Type { return l.typ }

// TypeName returns the name of the laid out type.
func (l *ShaderObjectLayout) TypeName() string { return l.typ.Name }

// UniformSize returns the size of the object's inline uniform data.
func (l *ShaderObjectLayout) UniformSize() uint32 { return l.uniformSize }

// Ranges returns the binding ranges in declaration order.
func (l *ShaderObjectLayout) Ranges() []BindingRange {
	return append([]BindingRange(nil), l.ranges...)
}

// Range returns the range at path.
func (l *ShaderObjectLayout) Range(path string) (BindingRange, bool) {
	i, ok := l.byPath[path]
	if !ok {
		return BindingRange{}, false
	}
	return l.ranges[i], true
}

// CountOf returns the number of ranges of a kind.
func (l *ShaderObjectLayout) CountOf(kind BindingRangeKind) int {
	n := 0
	for _, r := range l.ranges {
		if r.Kind == kind {
			n++
		}
	}
	return n
}
