package wgpu

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi/backend"
)

// bindGroup is a cached native bind group and the ids of every object it
// references. Freeing any of them drops the group.
type bindGroup struct {
	raw  hal.BindGroup
	deps []uint64
}

// CacheStats reports bind group cache activity.
type CacheStats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Len       int
}

// BindGroupCacheStats returns a snapshot of the bind group cache counters.
func (b *Backend) BindGroupCacheStats() CacheStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stats
	s.Len = b.groups.Len()
	return s
}

// forget removes every cached bind group that references id.
func (b *Backend) forget(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, key := range b.groups.Keys() {
		if g, ok := b.groups.Peek(key); ok && slices.Contains(g.deps, id) {
			b.groups.Remove(key)
		}
	}
}

// groupBuilder accumulates the entries, cache key and dependencies of one
// bind group.
type groupBuilder struct {
	entries []gputypes.BindGroupEntry
	key     strings.Builder
	deps    []uint64
}

func (g *groupBuilder) add(binding uint32, res gputypes.BindingResource, dep, offset, size uint64) {
	g.entries = append(g.entries, gputypes.BindGroupEntry{Binding: binding, Resource: res})
	g.deps = append(g.deps, dep)
	g.key.WriteString(strconv.FormatUint(uint64(binding), 10))
	g.key.WriteByte('=')
	g.key.WriteString(strconv.FormatUint(dep, 10))
	g.key.WriteByte('@')
	g.key.WriteString(strconv.FormatUint(offset, 10))
	g.key.WriteByte('+')
	g.key.WriteString(strconv.FormatUint(size, 10))
	g.key.WriteByte(';')
}

// Launch uploads constant buffers, resolves bind groups and dispatches the
// kernel. It returns once the dispatch has completed.
func (b *Backend) Launch(k backend.Kernel, groups [3]uint32, globals, entry *backend.ArgumentBlock) error {
	kk, ok := k.(*kernel)
	if !ok || kk == nil {
		return fmt.Errorf("wgpu: launch: %w", backend.ErrForeignObject)
	}
	if kk.pipeline == nil {
		return fmt.Errorf("wgpu: launch %s: kernel was freed", kk.name)
	}
	if groups[0] == 0 || groups[1] == 0 || groups[2] == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("wgpu: launch %s: backend closed", kk.name)
	}

	builders := make([]groupBuilder, len(kk.layouts))
	for i, s := range kk.slots {
		block := globals
		if s.entry {
			block = entry
		}
		if block == nil {
			return fmt.Errorf("wgpu: launch %s: no argument block for %s", kk.name, s.path)
		}
		if err := b.bindSlot(kk, i, s, block, &builders[s.group]); err != nil {
			return fmt.Errorf("wgpu: launch %s: %w", kk.name, err)
		}
	}

	bound := make([]hal.BindGroup, len(builders))
	var transient []hal.BindGroup
	defer func() {
		for _, g := range transient {
			b.device.DestroyBindGroup(g)
		}
	}()
	// A launch needing more groups than the cache holds would evict its own
	// groups before dispatch, so those are built per launch.
	cached := len(builders) <= b.cacheSize
	for g := range builders {
		gb := &builders[g]
		key := strconv.FormatUint(kk.id, 10) + "/" + strconv.Itoa(g) + ":" + gb.key.String()
		if cached {
			if hit, ok := b.groups.Get(key); ok {
				b.stats.Hits++
				bound[g] = hit.raw
				continue
			}
		}
		raw, err := b.device.CreateBindGroup(&hal.BindGroupDescriptor{
			Label:   fmt.Sprintf("%s/group%d", kk.name, g),
			Layout:  kk.layouts[g],
			Entries: gb.entries,
		})
		if err != nil {
			return halError("create bind group", err)
		}
		b.stats.Misses++
		bound[g] = raw
		if cached {
			b.groups.Add(key, &bindGroup{raw: raw, deps: append(gb.deps, kk.id)})
		} else {
			transient = append(transient, raw)
		}
	}

	return b.submitLocked(kk.name, func(enc hal.CommandEncoder) {
		pass := enc.BeginComputePass(&hal.ComputePassDescriptor{Label: kk.name})
		pass.SetPipeline(kk.pipeline)
		for g, bg := range bound {
			pass.SetBindGroup(uint32(g), bg, nil) // #nosec G115 -- bounded by MaxBindGroups
		}
		pass.Dispatch(groups[0], groups[1], groups[2])
		pass.End()
	})
}

func (b *Backend) bindSlot(k *kernel, i int, s slot, block *backend.ArgumentBlock, gb *groupBuilder) error {
	if s.kind == slotUniform {
		o, ok := block.Object(s.path)
		if !ok {
			return fmt.Errorf("constant buffer %s is not bound", s.path)
		}
		data := block.Bytes(o)
		if pad := alignUp(uint64(len(data)), 4) - uint64(len(data)); pad > 0 {
			data = append(slices.Clip(data), make([]byte, pad)...)
		}
		if len(data) > 0 {
			if err := b.queue.WriteBuffer(k.uniforms[i], 0, data); err != nil {
				return halError("upload "+s.path, err)
			}
		}
		size := alignUp(max(s.size, 16), 16)
		gb.add(s.binding, gputypes.BufferBinding{Buffer: k.uniforms[i].NativeHandle(), Size: size}, k.id, 0, size)
		return nil
	}

	rb, ok := block.Resource(s.path)
	if !ok {
		return fmt.Errorf("%s is not bound", s.path)
	}
	switch s.kind {
	case slotStorage, slotReadOnlyStorage:
		if rb.Kind != backend.ResourceBuffer {
			return fmt.Errorf("%s: buffer slot holds a %v binding", s.path, rb.Kind)
		}
		buf, err := asBuffer(rb.Buffer)
		if err != nil {
			return err
		}
		size := rb.Size
		if size == 0 {
			size = buf.size - min(rb.Offset, buf.size)
		}
		gb.add(s.binding, gputypes.BufferBinding{Buffer: buf.raw.NativeHandle(), Offset: rb.Offset, Size: size}, buf.id, rb.Offset, size)
	case slotTexture, slotStorageTexture:
		view, ok := rb.View.(*imageView)
		if !ok || view == nil {
			return fmt.Errorf("%s: %w", s.path, backend.ErrForeignObject)
		}
		gb.add(s.binding, gputypes.TextureViewBinding{TextureView: view.raw.NativeHandle()}, view.id, 0, 0)
	case slotSampler:
		smp, ok := rb.Sampler.(*sampler)
		if !ok || smp == nil {
			return fmt.Errorf("%s: %w", s.path, backend.ErrForeignObject)
		}
		gb.add(s.binding, gputypes.SamplerBinding{Sampler: smp.raw.NativeHandle()}, smp.id, 0, 0)
	}
	return nil
}
