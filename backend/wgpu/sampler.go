package wgpu

import (
	"fmt"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi/backend"
)

type sampler struct {
	id   uint64
	raw  hal.Sampler
	desc backend.SamplerDesc
}

func (s *sampler) Desc() backend.SamplerDesc { return s.desc }

// CreateSampler creates a native sampler. A zero LodMaxClamp means no
// upper clamp.
func (b *Backend) CreateSampler(desc backend.SamplerDesc) (backend.Sampler, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	if desc.LodMaxClamp < desc.LodMinClamp && desc.LodMaxClamp != 0 {
		return nil, fmt.Errorf("wgpu: sampler %q: lod clamp [%g, %g] is empty", desc.Label, desc.LodMinClamp, desc.LodMaxClamp)
	}
	hd := &hal.SamplerDescriptor{
		Label:        desc.Label,
		AddressModeU: desc.AddressModeU,
		AddressModeV: desc.AddressModeV,
		AddressModeW: desc.AddressModeW,
		MagFilter:    desc.MagFilter,
		MinFilter:    desc.MinFilter,
		MipmapFilter: desc.MipmapFilter,
		LodMinClamp:  desc.LodMinClamp,
		LodMaxClamp:  desc.LodMaxClamp,
		Anisotropy:   1,
	}
	if hd.LodMaxClamp == 0 {
		hd.LodMaxClamp = 32
	}
	raw, err := b.device.CreateSampler(hd)
	if err != nil {
		return nil, halError("create sampler", err)
	}
	b.live.Add(1)
	return &sampler{id: b.newID(), raw: raw, desc: desc}, nil
}

// FreeSampler destroys a sampler and the bind groups that reference it.
func (b *Backend) FreeSampler(s backend.Sampler) {
	smp, ok := s.(*sampler)
	if !ok || smp == nil || smp.raw == nil {
		return
	}
	b.forget(smp.id)
	b.device.DestroySampler(smp.raw)
	smp.raw = nil
	b.live.Add(-1)
}
