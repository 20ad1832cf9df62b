package reflection

import "sort"

// Stage is the pipeline stage of an entry point.
type Stage uint8

const (
	StageCompute Stage = iota
	StageVertex
	StageFragment
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageCompute:
		return "compute"
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	default:
		return "unknown"
	}
}

// EntryPoint is a reflected kernel entry point.
type EntryPoint struct {
	Name            string
	Stage           Stage
	ThreadGroupSize [3]uint32
	// Params holds the entry point's uniform parameters as a struct.
	Params *Type
}

// Program is the reflection of a linked shader program.
type Program struct {
	Name        string
	Globals     *Type
	EntryPoints []*EntryPoint

	types        map[string]*Type
	conformances map[string][]string
}

// NewProgram creates a program. A nil globals type is replaced by an empty
// struct.
func NewProgram(name string, globals *Type, entryPoints ...*EntryPoint) *Program {
	if globals == nil {
		globals = Struct(name + ".globals")
	}
	p := &Program{
		Name:         name,
		Globals:      globals,
		EntryPoints:  entryPoints,
		types:        make(map[string]*Type),
		conformances: make(map[string][]string),
	}
	p.registerNamed(globals)
	for _, ep := range entryPoints {
		p.registerNamed(ep.Params)
	}
	return p
}

// AddType registers a named type so it can be found with FindTypeByName.
// Types reachable from the globals or entry point parameters are registered
// automatically.
func (p *Program) AddType(t *Type) *Program {
	p.registerNamed(t)
	return p
}

// AddConformance records that concrete implements iface.
func (p *Program) AddConformance(iface, concrete string) *Program {
	for _, c := range p.conformances[iface] {
		if c == concrete {
			return p
		}
	}
	p.conformances[iface] = append(p.conformances[iface], concrete)
	return p
}

// Conforms reports whether concrete was declared to implement iface.
func (p *Program) Conforms(iface, concrete string) bool {
	for _, c := range p.conformances[iface] {
		if c == concrete {
			return true
		}
	}
	return false
}

// Implementations returns the concrete types declared for iface, sorted.
func (p *Program) Implementations(iface string) []string {
	out := append([]string(nil), p.conformances[iface]...)
	sort.Strings(out)
	return out
}

// FindTypeByName returns a registered named type or nil.
func (p *Program) FindTypeByName(name string) *Type {
	return p.types[name]
}

// EntryPointCount returns the number of entry points.
func (p *Program) EntryPointCount() int {
	return len(p.EntryPoints)
}

// FindEntryPoint returns the index of the named entry point.
func (p *Program) FindEntryPoint(name string) (int, bool) {
	for i, ep := range p.EntryPoints {
		if ep.Name == name {
			return i, true
		}
	}
	return -1, false
}

// ThreadGroupSize returns the declared workgroup shape of a kernel.
func (p *Program) ThreadGroupSize(kernel string) ([3]uint32, bool) {
	i, ok := p.FindEntryPoint(kernel)
	if !ok {
		return [3]uint32{}, false
	}
	return p.EntryPoints[i].ThreadGroupSize, true
}

// TypeParameters returns the interface types reachable from the program's
// parameters in depth-first order: globals first, then each entry point.
// This is the order in which specialization arguments are collected.
func (p *Program) TypeParameters() []string {
	var out []string
	var walk func(t *Type)
	walk = func(t *Type) {
		if t == nil {
			return
		}
		switch t.Kind {
		case KindInterface:
			out = append(out, t.Name)
		case KindStruct:
			for _, f := range t.Fields {
				walk(f.Type)
			}
		case KindArray, KindConstantBuffer, KindParameterBlock:
			walk(t.Element)
		}
	}
	walk(p.Globals)
	for _, ep := range p.EntryPoints {
		walk(ep.Params)
	}
	return out
}

func (p *Program) registerNamed(t *Type) {
	if t == nil {
		return
	}
	if t.Name != "" && (t.Kind == KindStruct || t.Kind == KindInterface) {
		if _, ok := p.types[t.Name]; ok {
			return
		}
		p.types[t.Name] = t
	}
	switch t.Kind {
	case KindStruct:
		for _, f := range t.Fields {
			p.registerNamed(f.Type)
		}
	case KindArray, KindConstantBuffer, KindParameterBlock, KindResource:
		p.registerNamed(t.Element)
	}
}
