package rhi

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/gogpu/rhi/backend"
	"github.com/gogpu/rhi/reflection"
)

// ObjectKind is the closed set of shader object variants.
type ObjectKind uint8

const (
	// ObjectPlain is copied into a command buffer when a dispatch is
	// recorded; later writes do not affect recorded work.
	ObjectPlain ObjectKind = iota
	// ObjectMutable is referenced live by recorded work; writes made before
	// execution are visible to it.
	ObjectMutable
	// ObjectEntryPoint holds the parameters of one entry point of a root.
	ObjectEntryPoint
	// ObjectRoot holds the global parameters of a program and one entry
	// point object per entry point.
	ObjectRoot
)

func (k ObjectKind) String() string {
	switch k {
	case ObjectPlain:
		return "Plain"
	case ObjectMutable:
		return "Mutable"
	case ObjectEntryPoint:
		return "EntryPoint"
	case ObjectRoot:
		return "Root"
	default:
		return fmt.Sprintf("ObjectKind(%d)", uint8(k))
	}
}

// ShaderObject holds the values of one parameter block: uniform bytes, bound
// resources and sub-objects, keyed by parameter path.
type ShaderObject struct {
	device *Device
	kind   ObjectKind
	layout *ShaderObjectLayout

	mu        sync.Mutex
	data      []byte
	resources map[string]Binding
	objects   map[string]*ShaderObject

	// Root objects only.
	program     *ShaderProgram
	entryPoints []*ShaderObject

	refs refCount
}

func newShaderObject(d *Device, kind ObjectKind, layout *ShaderObjectLayout) *ShaderObject {
	o := &ShaderObject{
		device:    d,
		kind:      kind,
		layout:    layout,
		data:      make([]byte, layout.uniformSize),
		resources: make(map[string]Binding),
		objects:   make(map[string]*ShaderObject),
	}
	o.refs.init()
	return o
}

// CreateShaderObject creates a plain object of type t.
func (d *Device) CreateShaderObject(t *reflection.Type) (*ShaderObject, error) {
	return d.createShaderObject(t, ObjectPlain)
}

// CreateMutableShaderObject creates a mutable object of type t.
func (d *Device) CreateMutableShaderObject(t *reflection.Type) (*ShaderObject, error) {
	return d.createShaderObject(t, ObjectMutable)
}

func (d *Device) createShaderObject(t *reflection.Type, kind ObjectKind) (*ShaderObject, error) {
	if err := d.checkLive(); err != nil {
		return nil, err
	}
	l, err := d.CreateShaderObjectLayout(t)
	if err != nil {
		return nil, err
	}
	return newShaderObject(d, kind, l), nil
}

// CreateRootShaderObject creates the root object of a program with one
// entry point object per program entry point.
func (d *Device) CreateRootShaderObject(p *ShaderProgram) (*ShaderObject, error) {
	if err := d.checkLive(); err != nil {
		return nil, err
	}
	gl, err := d.CreateShaderObjectLayout(p.program.Globals)
	if err != nil {
		return nil, err
	}
	root := newShaderObject(d, ObjectRoot, gl)
	for _, ep := range p.program.EntryPoints {
		el, err := d.CreateShaderObjectLayout(ep.Params)
		if err != nil {
			root.Release()
			return nil, err
		}
		root.entryPoints = append(root.entryPoints, newShaderObject(d, ObjectEntryPoint, el))
	}
	p.Retain()
	root.program = p
	return root, nil
}

// Kind returns the object variant.
func (o *ShaderObject) Kind() ObjectKind { return o.kind }

// Layout returns the object's binding layout.
func (o *ShaderObject) Layout() *ShaderObjectLayout { return o.layout }

// TypeName returns the name of the object's type. For objects bound to an
// interface slot this is the specialization argument.
func (o *ShaderObject) TypeName() string { return o.layout.TypeName() }

// Program returns the program of a root object.
func (o *ShaderObject) Program() *ShaderProgram { return o.program }

// EntryPointCount returns the number of entry point objects of a root.
func (o *ShaderObject) EntryPointCount() int { return len(o.entryPoints) }

// EntryPoint returns entry point object i of a root.
func (o *ShaderObject) EntryPoint(i int) *ShaderObject {
	if i < 0 || i >= len(o.entryPoints) {
		return nil
	}
	return o.entryPoints[i]
}

// Data returns a copy of the uniform bytes.
func (o *ShaderObject) Data() []byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]byte(nil), o.data...)
}

// Object returns the sub-object bound at path.
func (o *ShaderObject) Object(path string) *ShaderObject {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.objects[path]
}

// Binding returns the resource bound at path.
func (o *ShaderObject) Binding(path string) Binding {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.resources[path]
}

// SetData writes uniform bytes at offset.
func (o *ShaderObject) SetData(offset uint32, data []byte) error {
	if uint64(offset)+uint64(len(data)) > uint64(len(o.data)) {
		return validationError("write of %d bytes at %d outside %d bytes of %s", len(data), offset, len(o.data), o.layout.TypeName())
	}
	o.mu.Lock()
	copy(o.data[offset:], data)
	o.mu.Unlock()
	return nil
}

// SetBinding binds a resource at path. A nil binding clears the slot.
func (o *ShaderObject) SetBinding(path string, b Binding) error {
	r, ok := o.layout.Range(path)
	if !ok {
		return validationError("%s has no parameter %q", o.layout.TypeName(), path)
	}
	if b != nil {
		if err := b.check(&r); err != nil {
			return err
		}
		b.retain()
	}
	o.mu.Lock()
	old := o.resources[path]
	if b == nil {
		delete(o.resources, path)
	} else {
		o.resources[path] = b
	}
	o.mu.Unlock()
	if old != nil {
		old.release()
	}
	return nil
}

// SetObject places a sub-object at path. Interface slots accept an object
// of any concrete type; constant buffer and parameter block slots need the
// declared inner type. A nil object clears the slot.
func (o *ShaderObject) SetObject(path string, sub *ShaderObject) error {
	r, ok := o.layout.Range(path)
	if !ok {
		return validationError("%s has no parameter %q", o.layout.TypeName(), path)
	}
	switch r.Kind {
	case RangeSubObject:
		if sub != nil && sub.layout != r.SubLayout {
			return validationError("%s: object of type %s bound to %s", path, sub.TypeName(), r.Type)
		}
	case RangeExistential:
	default:
		return validationError("%s: object bound to %s slot", path, r.Kind)
	}
	if sub != nil {
		if sub.kind == ObjectRoot || sub.kind == ObjectEntryPoint {
			return validationError("%s: cannot bind a %s object", path, sub.kind)
		}
		if sub.reaches(o) {
			return validationError("%s: binding %s would create a cycle", path, sub.TypeName())
		}
		sub.Retain()
	}
	o.mu.Lock()
	old := o.objects[path]
	if sub == nil {
		delete(o.objects, path)
	} else {
		o.objects[path] = sub
	}
	o.mu.Unlock()
	if old != nil {
		old.Release()
	}
	return nil
}

// reaches reports whether target is o or one of its sub-objects.
func (o *ShaderObject) reaches(target *ShaderObject) bool {
	if o == target {
		return true
	}
	o.mu.Lock()
	subs := slices.Collect(maps.Values(o.objects))
	o.mu.Unlock()
	for _, sub := range subs {
		if sub.reaches(target) {
			return true
		}
	}
	return false
}

// Retain adds a reference.
func (o *ShaderObject) Retain() { o.refs.retain() }

// Release drops a reference. The last release releases every bound
// resource and sub-object.
func (o *ShaderObject) Release() {
	if !o.refs.release() {
		return
	}
	o.mu.Lock()
	resources, objects, eps := o.resources, o.objects, o.entryPoints
	o.resources, o.objects, o.entryPoints = nil, nil, nil
	o.mu.Unlock()
	for _, b := range resources {
		b.release()
	}
	for _, sub := range objects {
		sub.Release()
	}
	for _, ep := range eps {
		ep.Release()
	}
	if o.program != nil {
		o.program.Release()
	}
}

// snapshot returns the object as recorded work sees it. Mutable objects
// are shared with a new reference; every other kind is copied, recursively,
// with its own references on what it binds.
func (o *ShaderObject) snapshot() *ShaderObject {
	if o.kind == ObjectMutable {
		o.Retain()
		return o
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	c := newShaderObject(o.device, o.kind, o.layout)
	copy(c.data, o.data)
	for path, b := range o.resources {
		b.retain()
		c.resources[path] = b
	}
	for path, sub := range o.objects {
		c.objects[path] = sub.snapshot()
	}
	for _, ep := range o.entryPoints {
		c.entryPoints = append(c.entryPoints, ep.snapshot())
	}
	if o.program != nil {
		o.program.Retain()
		c.program = o.program
	}
	return c
}

// specializationArgs collects the concrete types bound to interface slots,
// depth first in declaration order: globals, then each entry point. params
// receives the interface names in the same order.
func (o *ShaderObject) specializationArgs() (params, args []string, err error) {
	if err := o.collectArgs(&params, &args); err != nil {
		return nil, nil, err
	}
	for _, ep := range o.entryPoints {
		if err := ep.collectArgs(&params, &args); err != nil {
			return nil, nil, err
		}
	}
	return params, args, nil
}

func (o *ShaderObject) collectArgs(params, args *[]string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := range o.layout.ranges {
		r := &o.layout.ranges[i]
		switch r.Kind {
		case RangeExistential:
			sub := o.objects[r.Path]
			if sub == nil {
				return validationError("interface parameter %s (%s) is unbound", r.Path, r.Type.Name)
			}
			*params = append(*params, r.Type.Name)
			*args = append(*args, sub.TypeName())
		case RangeSubObject:
			if sub := o.objects[r.Path]; sub != nil {
				if err := sub.collectArgs(params, args); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// flatten produces the argument block of the object. Ordinary uniform
// bytes come first, verbatim. Each bound sub-object follows at the next
// 16-byte boundary, its paths prefixed with the slot path.
func (o *ShaderObject) flatten() *backend.ArgumentBlock {
	b := backend.NewArgumentBlock()
	o.flattenInto(b, "")
	return b
}

const subObjectAlignment = 16

func (o *ShaderObject) flattenInto(b *backend.ArgumentBlock, prefix string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	base := uint32(len(b.Data)) // #nosec G115 -- argument blocks are far below 4 GiB
	b.Data = append(b.Data, o.data...)
	for i := range o.layout.ranges {
		r := &o.layout.ranges[i]
		switch r.Kind {
		case RangeUniform:
			b.Offsets[prefix+r.Path] = base + r.Offset
		case RangeResource, RangeSampler:
			if bnd := o.resources[r.Path]; bnd != nil {
				b.Resources = append(b.Resources, bnd.resource(prefix+r.Path, r))
			}
		}
	}
	for i := range o.layout.ranges {
		r := &o.layout.ranges[i]
		if r.Kind != RangeSubObject && r.Kind != RangeExistential {
			continue
		}
		sub := o.objects[r.Path]
		if sub == nil {
			continue
		}
		for len(b.Data)%subObjectAlignment != 0 {
			b.Data = append(b.Data, 0)
		}
		b.Objects = append(b.Objects, backend.ObjectRange{
			Path:   prefix + r.Path,
			Offset: uint32(len(b.Data)), // #nosec G115 -- argument blocks are far below 4 GiB
			Size:   sub.layout.uniformSize,
		})
		sub.flattenInto(b, prefix+r.Path+".")
	}
}
