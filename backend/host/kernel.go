package host

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/gogpu/rhi/backend"
)

type kernel struct {
	name string
	size [3]uint32
	fn   backend.HostKernel
}

func (k *kernel) Name() string               { return k.name }
func (k *kernel) ThreadGroupSize() [3]uint32 { return k.size }

// CompileKernel links the Go kernel for a specialization. The program must
// carry a HostModule; WGSL-only programs are not runnable on the host.
func (b *Backend) CompileKernel(req *backend.KernelRequest) (backend.Kernel, []byte, error) {
	if err := b.checkOpen(); err != nil {
		return nil, nil, err
	}
	if req.Source == nil || req.Source.Host == nil {
		return nil, nil, fmt.Errorf("host: program %q has no host module: %w", req.Label, backend.ErrUnsupported)
	}
	if req.Program == nil || req.EntryPointIndex < 0 || req.EntryPointIndex >= req.Program.EntryPointCount() {
		return nil, nil, fmt.Errorf("host: entry point %d out of range", req.EntryPointIndex)
	}
	ep := req.Program.EntryPoints[req.EntryPointIndex]

	fn, err := req.Source.Host(req)
	if err != nil {
		return nil, nil, fmt.Errorf("host: link %s: %w", ep.Name, err)
	}
	if fn == nil {
		return nil, nil, fmt.Errorf("host: link %s: module returned no kernel", ep.Name)
	}

	size := ep.ThreadGroupSize
	for i := range size {
		size[i] = max(size[i], 1)
	}
	name := ep.Name
	if len(req.TypeArgs) > 0 {
		name += "<" + strings.Join(req.TypeArgs, ",") + ">"
	}
	slogger().Debug("host: kernel linked", "kernel", name, "threads", size)
	return &kernel{name: name, size: size, fn: fn}, nil, nil
}

// FreeKernel drops a kernel.
func (b *Backend) FreeKernel(k backend.Kernel) {
	if hk, ok := k.(*kernel); ok {
		hk.fn = nil
	}
}

// Launch runs groups[0]*groups[1]*groups[2] workgroups and returns when all
// have finished. Up to Workers workgroups run at once; the threads of a
// workgroup run in LocalIndex order. The first kernel error cancels the
// workgroups not yet started.
func (b *Backend) Launch(k backend.Kernel, groups [3]uint32, globals, entry *backend.ArgumentBlock) error {
	hk, ok := k.(*kernel)
	if !ok {
		return backend.ErrForeignObject
	}
	if hk.fn == nil {
		return fmt.Errorf("host: launch of freed kernel %s", hk.name)
	}
	total := uint64(groups[0]) * uint64(groups[1]) * uint64(groups[2])
	if total == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(b.workers)
	var gid [3]uint32
	for gid[2] = 0; gid[2] < groups[2]; gid[2]++ {
		for gid[1] = 0; gid[1] < groups[1]; gid[1]++ {
			for gid[0] = 0; gid[0] < groups[0]; gid[0]++ {
				group := gid
				g.Go(func() error {
					if ctx.Err() != nil {
						return nil
					}
					return hk.runGroup(group, globals, entry)
				})
			}
		}
	}
	return g.Wait()
}

func (k *kernel) runGroup(group [3]uint32, globals, entry *backend.ArgumentBlock) error {
	inv := backend.Invocation{GroupID: group, Globals: globals, Entry: entry}
	var index uint32
	for z := range k.size[2] {
		for y := range k.size[1] {
			for x := range k.size[0] {
				inv.LocalID = [3]uint32{x, y, z}
				inv.LocalIndex = index
				for i := range 3 {
					inv.GlobalID[i] = group[i]*k.size[i] + inv.LocalID[i]
				}
				if err := k.fn(&inv); err != nil {
					return fmt.Errorf("host: %s group %v thread %v: %w", k.name, group, inv.LocalID, err)
				}
				index++
			}
		}
	}
	return nil
}
