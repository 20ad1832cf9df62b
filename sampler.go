package rhi

import (
	"fmt"

	"github.com/gogpu/rhi/backend"
)

// SamplerDesc describes texture filtering and addressing.
type SamplerDesc = backend.SamplerDesc

// Sampler is a texture sampling state object.
type Sampler struct {
	device *Device
	native backend.Sampler
	refs   refCount
}

// CreateSampler creates a sampler. Backends without sampler objects report
// ErrUnsupported.
func (d *Device) CreateSampler(desc SamplerDesc) (*Sampler, error) {
	if err := d.checkLive(); err != nil {
		return nil, err
	}
	if d.samplers == nil {
		return nil, fmt.Errorf("rhi: create sampler %q: %w", desc.Label, ErrUnsupported)
	}
	native, err := d.samplers.CreateSampler(desc)
	if err != nil {
		return nil, wrapBackend("create sampler", err)
	}
	s := &Sampler{device: d, native: native}
	s.refs.init()
	return s, nil
}

// Desc returns the creation descriptor.
func (s *Sampler) Desc() SamplerDesc { return s.native.Desc() }

// Retain adds a reference.
func (s *Sampler) Retain() { s.refs.retain() }

// Release drops a reference.
func (s *Sampler) Release() {
	if s.refs.release() {
		s.device.samplers.FreeSampler(s.native)
	}
}
