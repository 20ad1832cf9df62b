package rhi

import (
	"fmt"

	"github.com/gogpu/rhi/backend"
	"github.com/gogpu/rhi/reflection"
)

// HostModule links a Go kernel for the host backend.
type HostModule = backend.HostModule

// ShaderProgramDesc describes a linked program: its reflection and the
// source forms backends compile it from.
type ShaderProgramDesc struct {
	Label   string
	Program *reflection.Program
	Source  backend.Source
}

// ShaderProgram is a reflected, not yet specialized program.
type ShaderProgram struct {
	device  *Device
	label   string
	program *reflection.Program
	source  *backend.Source
	refs    refCount
}

// CreateShaderProgram validates the reflection and wraps the program.
func (d *Device) CreateShaderProgram(desc ShaderProgramDesc) (*ShaderProgram, error) {
	if err := d.checkLive(); err != nil {
		return nil, err
	}
	if desc.Program == nil {
		return nil, validationError("program %q: no reflection", desc.Label)
	}
	if desc.Program.EntryPointCount() == 0 {
		return nil, validationError("program %q: no entry points", desc.Label)
	}
	// Build layouts now so that malformed parameter types fail here rather
	// than at the first dispatch.
	if _, err := d.CreateShaderObjectLayout(desc.Program.Globals); err != nil {
		return nil, err
	}
	for _, ep := range desc.Program.EntryPoints {
		if ep.Params == nil {
			return nil, validationError("program %q: entry point %s has no parameter type", desc.Label, ep.Name)
		}
		if _, err := d.CreateShaderObjectLayout(ep.Params); err != nil {
			return nil, err
		}
	}
	label := desc.Label
	if label == "" {
		label = desc.Program.Name
	}
	src := desc.Source
	if src.Name == "" {
		src.Name = label
	}
	p := &ShaderProgram{device: d, label: label, program: desc.Program, source: &src}
	p.refs.init()
	return p, nil
}

// CreateShaderProgramFromWGSL reflects WGSL source and creates a program
// from it. host optionally supplies the Go kernel for the host backend.
// Compiler diagnostics are returned even when creation succeeds.
func (d *Device) CreateShaderProgramFromWGSL(label, wgsl string, host HostModule) (*ShaderProgram, []byte, error) {
	prog, diag, err := reflection.FromWGSL(label, wgsl)
	if err != nil {
		return nil, diag, fmt.Errorf("rhi: program %q: %w", label, err)
	}
	p, err := d.CreateShaderProgram(ShaderProgramDesc{
		Label:   label,
		Program: prog,
		Source:  backend.Source{Name: label, WGSL: wgsl, Host: host},
	})
	return p, diag, err
}

// Label returns the program label.
func (p *ShaderProgram) Label() string { return p.label }

// Reflection returns the program reflection.
func (p *ShaderProgram) Reflection() *reflection.Program { return p.program }

// FindTypeByName looks up a named type declared by the program.
func (p *ShaderProgram) FindTypeByName(name string) *reflection.Type {
	return p.program.FindTypeByName(name)
}

// Retain adds a reference.
func (p *ShaderProgram) Retain() { p.refs.retain() }

// Release drops a reference.
func (p *ShaderProgram) Release() { p.refs.release() }

// PipelineState tells generic pipelines from specialized ones.
type PipelineState uint8

const (
	PipelineUnspecialized PipelineState = iota
	PipelineSpecialized
)

// ComputePipelineDesc describes a compute pipeline.
type ComputePipelineDesc struct {
	Label   string
	Program *ShaderProgram
}

// Pipeline is a compute pipeline. Pipelines created by the device are
// unspecialized; the specialization cache derives specialized pipelines
// holding compiled kernels when the pipeline is dispatched.
type Pipeline struct {
	id      uint64
	device  *Device
	label   string
	program *ShaderProgram
	state   PipelineState

	// Specialized pipelines only.
	generic     *Pipeline
	typeArgs    []string
	kernels     []backend.Kernel
	diagnostics []byte

	refs refCount
}

// CreateComputePipeline creates an unspecialized pipeline for a program.
func (d *Device) CreateComputePipeline(desc ComputePipelineDesc) (*Pipeline, error) {
	if err := d.checkLive(); err != nil {
		return nil, err
	}
	if desc.Program == nil {
		return nil, validationError("pipeline %q: nil program", desc.Label)
	}
	ep := desc.Program.program.EntryPoints[0]
	if ep.Stage != reflection.StageCompute {
		return nil, validationError("pipeline %q: entry point %s is a %s shader", desc.Label, ep.Name, ep.Stage)
	}
	label := desc.Label
	if label == "" {
		label = desc.Program.label
	}
	desc.Program.Retain()
	p := &Pipeline{
		id:      d.nextID.Add(1),
		device:  d,
		label:   label,
		program: desc.Program,
		state:   PipelineUnspecialized,
	}
	p.refs.init()
	return p, nil
}

// Label returns the pipeline label.
func (p *Pipeline) Label() string { return p.label }

// State reports whether the pipeline is specialized.
func (p *Pipeline) State() PipelineState { return p.state }

// Program returns the program the pipeline runs.
func (p *Pipeline) Program() *ShaderProgram { return p.program }

// Generic returns the unspecialized pipeline a specialized one came from.
func (p *Pipeline) Generic() *Pipeline { return p.generic }

// TypeArguments returns the concrete types a specialized pipeline was built
// for.
func (p *Pipeline) TypeArguments() []string { return append([]string(nil), p.typeArgs...) }

// Kernel returns the compute kernel, entry point 0.
func (p *Pipeline) Kernel() backend.Kernel { return p.KernelAt(0) }

// KernelAt returns the kernel of entry point i.
func (p *Pipeline) KernelAt(i int) backend.Kernel {
	if i < 0 || i >= len(p.kernels) {
		return nil
	}
	return p.kernels[i]
}

// ThreadGroupSize returns the thread-group shape of the compute kernel.
func (p *Pipeline) ThreadGroupSize() [3]uint32 {
	if k := p.Kernel(); k != nil {
		return k.ThreadGroupSize()
	}
	return p.program.program.EntryPoints[0].ThreadGroupSize
}

// EntryPointSymbol returns the compiled symbol name of entry point i.
func (p *Pipeline) EntryPointSymbol(i int) string {
	if k := p.KernelAt(i); k != nil {
		return k.Name()
	}
	return ""
}

// Diagnostics returns the compiler messages produced while specializing.
func (p *Pipeline) Diagnostics() []byte { return p.diagnostics }

// Retain adds a reference.
func (p *Pipeline) Retain() { p.refs.retain() }

// Release drops a reference. Specialized pipelines are held by the cache
// and by each dispatch launching them; they free their kernels once the
// cache is cleared and no dispatch is using them. Both kinds hold a
// reference on the program.
func (p *Pipeline) Release() {
	if !p.refs.release() {
		return
	}
	if p.state == PipelineSpecialized {
		for _, k := range p.kernels {
			p.device.backend.FreeKernel(k)
		}
		p.kernels = nil
	}
	p.program.Release()
}
