// Package rhi is a backend-agnostic GPU runtime core.
//
// # Overview
//
// rhi lets client code issue compute work through one API while execution
// is carried out by interchangeable native backends. It covers deferred
// command recording, specialization of generic shader programs into
// concrete kernels once their interface parameters are bound, a
// reflection-driven hierarchical parameter binding model, and resource
// lifetime across asynchronous execution.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/rhi"
//	    _ "github.com/gogpu/rhi/backend/host"
//	)
//
//	dev, err := rhi.NewDevice(rhi.WithBackend("host"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dev.Release()
//
//	buf, _ := dev.CreateBuffer(rhi.BufferDesc{Size: 16, ElementSize: 4}, data)
//	prog, _ := dev.CreateShaderProgram(rhi.ShaderProgramDesc{Program: reflected, Source: src})
//	pipe, _ := dev.CreateComputePipeline(rhi.ComputePipelineDesc{Program: prog})
//
//	heap, _ := dev.CreateTransientHeap(rhi.TransientHeapDesc{})
//	cb, _ := heap.CreateCommandBuffer()
//	pass := cb.BeginComputePass()
//	root, _ := pass.BindPipeline(pipe)
//	rhi.NewShaderCursor(root).Path("buffer").SetBinding(rhi.BufferBinding{Buffer: buf})
//	pass.DispatchCompute(1, 1, 1)
//	pass.End()
//	cb.Close()
//
//	q, _ := dev.GetQueue(rhi.QueueGraphics)
//	defer q.Release()
//	q.Submit([]*rhi.CommandBuffer{cb}, nil, 0)
//	err = q.WaitOnHost(ctx)
//
// # Architecture
//
//   - Device: composition root. Owns the backend, the single graphics queue,
//     the specialization cache and the layout cache.
//   - CommandBuffer: opcode log plus typed object and blob tables. Recording
//     never calls the backend.
//   - Queue: one worker goroutine interpreting submissions in order.
//   - SpecializationCache: compiles each (pipeline, type arguments) pair once.
//   - ShaderObjectLayout, ShaderObject, ShaderCursor: parameter blocks built
//     from package reflection and flattened into backend argument blocks.
//
// Backends implement package backend and register themselves from init, the
// way database/sql drivers do. See backend/host and backend/wgpu.
//
// # Errors
//
// Failures are returned, never swallowed. Test them with errors.Is against
// ErrValidation, ErrUnsupported, ErrOutOfMemory and the other sentinels;
// native failures arrive as *BackendError. Shader compiler diagnostics are
// kept on the specialized pipeline, separate from errors.
package rhi

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0-alpha.1"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 1

	// VersionPatch is the patch version
	VersionPatch = 0

	// VersionPrerelease is the prerelease identifier
	VersionPrerelease = "alpha.1"
)
