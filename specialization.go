package rhi

import (
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/gogpu/rhi/backend"
)

// SpecializationCache maps a generic pipeline plus the concrete types bound
// to its interface parameters onto a specialized pipeline. Each key is
// compiled at most once per device, even when several queues dispatch the
// same pipeline concurrently.
//
// Thread Safety:
// SpecializationCache is safe for concurrent use. Lookups take a read lock;
// misses are de-duplicated with singleflight and stored under the write lock.
type SpecializationCache struct {
	device *Device

	mu      sync.RWMutex
	entries map[string]*Pipeline

	group singleflight.Group

	hits     atomic.Uint64
	compiles atomic.Uint64
}

// CacheStats is a snapshot of cache counters.
type CacheStats struct {
	Hits     uint64
	Compiles uint64
	Size     int
}

func newSpecializationCache(d *Device) *SpecializationCache {
	return &SpecializationCache{device: d, entries: make(map[string]*Pipeline)}
}

func specializationKey(p *Pipeline, args []string) string {
	return strconv.FormatUint(p.id, 10) + "|" + strings.Join(args, ",")
}

// Resolve returns the specialized pipeline for p with the type arguments
// bound in root. Already specialized pipelines are returned as is.
//
// The returned pipeline carries a reference owned by the caller, who must
// Release it. A Clear racing with the launch then cannot free the kernels
// underneath it.
func (c *SpecializationCache) Resolve(p *Pipeline, root *ShaderObject) (*Pipeline, error) {
	if p.state == PipelineSpecialized {
		p.Retain()
		return p, nil
	}
	params, args, err := root.specializationArgs()
	if err != nil {
		return nil, err
	}
	key := specializationKey(p, args)

	if sp := c.acquire(key); sp != nil {
		c.hits.Add(1)
		return sp, nil
	}
	for {
		_, err, _ := c.group.Do(key, func() (any, error) {
			c.mu.RLock()
			_, ok := c.entries[key]
			c.mu.RUnlock()
			if ok {
				return nil, nil
			}
			sp, err := c.specialize(p, params, args)
			if err != nil {
				return nil, err
			}
			c.mu.Lock()
			c.entries[key] = sp
			c.mu.Unlock()
			c.compiles.Add(1)
			return nil, nil
		})
		if err != nil {
			return nil, err
		}
		// A Clear between the store and this lookup drops the entry; compile
		// it again.
		if sp := c.acquire(key); sp != nil {
			return sp, nil
		}
	}
}

// acquire returns the cached pipeline for key with a reference added, or
// nil. The reference is taken under the read lock so Clear cannot release
// the cache's own reference first.
func (c *SpecializationCache) acquire(key string) *Pipeline {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sp, ok := c.entries[key]
	if !ok {
		return nil
	}
	sp.Retain()
	return sp
}

func (c *SpecializationCache) specialize(p *Pipeline, params, args []string) (*Pipeline, error) {
	prog := p.program.program
	for i, iface := range params {
		impls := prog.Implementations(iface)
		if len(impls) > 0 && !prog.Conforms(iface, args[i]) {
			return nil, validationError("pipeline %q: %s does not implement %s", p.label, args[i], iface)
		}
	}

	d := c.device
	sp := &Pipeline{
		device:   d,
		label:    p.label,
		program:  p.program,
		state:    PipelineSpecialized,
		generic:  p,
		typeArgs: args,
	}
	sp.refs.init()
	for i, ep := range prog.EntryPoints {
		k, diag, err := d.backend.CompileKernel(&backend.KernelRequest{
			Label:           p.label,
			Source:          p.program.source,
			Program:         prog,
			EntryPoint:      ep.Name,
			EntryPointIndex: i,
			TypeParams:      params,
			TypeArgs:        args,
		})
		if len(diag) > 0 {
			d.log.Warn("rhi: kernel diagnostics",
				"pipeline", p.label,
				"entry", ep.Name,
				"diagnostics", string(diag))
			sp.diagnostics = append(sp.diagnostics, diag...)
		}
		if err != nil {
			for _, k := range sp.kernels {
				d.backend.FreeKernel(k)
			}
			return nil, wrapBackend("compile "+ep.Name, err)
		}
		sp.kernels = append(sp.kernels, k)
	}
	p.program.Retain()
	d.log.Debug("rhi: pipeline specialized",
		"pipeline", p.label,
		"args", strings.Join(args, ","),
		"kernels", len(sp.kernels))
	return sp, nil
}

// Stats returns the cache counters.
func (c *SpecializationCache) Stats() CacheStats {
	return CacheStats{Hits: c.hits.Load(), Compiles: c.compiles.Load(), Size: c.Size()}
}

// Size returns the number of specialized pipelines held.
func (c *SpecializationCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// HitRate returns hits / (hits + compiles), or 0 before any lookup.
func (c *SpecializationCache) HitRate() float64 {
	h, m := c.hits.Load(), c.compiles.Load()
	if h+m == 0 {
		return 0
	}
	return float64(h) / float64(h+m)
}

// Clear drops the cache's reference on every specialized pipeline.
// Pipelines still held by a running dispatch are freed when it ends.
// Counters are kept.
func (c *SpecializationCache) Clear() {
	c.mu.Lock()
	entries := c.entries
	c.entries = make(map[string]*Pipeline)
	c.mu.Unlock()
	for _, sp := range entries {
		sp.Release()
	}
}
