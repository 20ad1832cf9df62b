package rhi

import "sync/atomic"

// refCount is the intrusive reference count shared by device objects.
// A new object starts with one reference owned by its creator.
type refCount struct {
	n atomic.Int64
}

func (r *refCount) init() { r.n.Store(1) }

func (r *refCount) retain() { r.n.Add(1) }

// release drops a reference and reports whether it was the last one.
func (r *refCount) release() bool {
	n := r.n.Add(-1)
	if n < 0 {
		panic("rhi: object released more times than retained")
	}
	return n == 0
}

func (r *refCount) count() int64 { return r.n.Load() }
