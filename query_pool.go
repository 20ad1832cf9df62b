package rhi

import (
	"fmt"
	"sync"
)

// QueryType is the kind of value a query pool records.
type QueryType uint8

const (
	// QueryTimestamp records the device clock.
	QueryTimestamp QueryType = iota
)

// QueryPoolDesc describes a query pool.
type QueryPoolDesc struct {
	Label string
	Type  QueryType
	Count uint32
}

// QueryPool holds query results written by WriteTimestamp commands.
type QueryPool struct {
	device *Device
	desc   QueryPoolDesc

	mu     sync.Mutex
	values []uint64

	refs refCount
}

// CreateQueryPool creates a pool of desc.Count slots. Timestamp pools need a
// backend with a device clock.
func (d *Device) CreateQueryPool(desc QueryPoolDesc) (*QueryPool, error) {
	if err := d.checkLive(); err != nil {
		return nil, err
	}
	if desc.Type != QueryTimestamp {
		return nil, fmt.Errorf("rhi: query type %d: %w", desc.Type, ErrUnsupported)
	}
	if d.timestamps == nil {
		return nil, fmt.Errorf("rhi: timestamp queries: %w", ErrUnsupported)
	}
	if desc.Count == 0 {
		return nil, validationError("query pool %q: zero count", desc.Label)
	}
	p := &QueryPool{device: d, desc: desc, values: make([]uint64, desc.Count)}
	p.refs.init()
	return p, nil
}

// Desc returns the creation descriptor.
func (p *QueryPool) Desc() QueryPoolDesc { return p.desc }

// Frequency returns timestamp ticks per second.
func (p *QueryPool) Frequency() uint64 {
	return p.device.timestamps.TimestampFrequency()
}

// Results returns count values starting at first. Values are those written by
// submissions that have completed; call Queue.WaitOnHost first.
func (p *QueryPool) Results(first, count uint32) ([]uint64, error) {
	if err := p.checkRange(first, count); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]uint64, count)
	copy(out, p.values[first:first+count])
	return out, nil
}

// Reset zeroes every slot.
func (p *QueryPool) Reset() {
	p.mu.Lock()
	clear(p.values)
	p.mu.Unlock()
}

func (p *QueryPool) checkRange(first, count uint32) error {
	if uint64(first)+uint64(count) > uint64(p.desc.Count) {
		return validationError("query range [%d, +%d) outside pool %q of %d", first, count, p.desc.Label, p.desc.Count)
	}
	return nil
}

func (p *QueryPool) write(index uint32, v uint64) {
	p.mu.Lock()
	p.values[index] = v
	p.mu.Unlock()
}

// Retain adds a reference.
func (p *QueryPool) Retain() { p.refs.retain() }

// Release drops a reference.
func (p *QueryPool) Release() {
	if p.refs.release() {
		p.mu.Lock()
		p.values = nil
		p.mu.Unlock()
	}
}
