// Package backend defines the contract between the rhi core and a native
// execution backend.
//
// The core never issues a native call itself. Everything it needs from a
// backend is listed on [Backend]: allocating and freeing memory, copying
// between host and device, compiling a kernel for a concrete set of type
// arguments and launching it with two argument blocks (the program's global
// parameters and the entry point's own parameters).
//
// Capabilities that only some backends have are separate interfaces which
// the core checks once when a device is created:
//
//   - [ExternalMemoryImporter] and [ExternalMemoryExporter] for interop handles
//   - [TimestampWriter] for timestamp query pools
//   - [RayTracer] for acceleration structures
//   - [SamplerCreator] for sampler objects
//
// # Backend Registration
//
// Backends register a factory from init(), following the database/sql
// driver pattern:
//
//	import _ "github.com/gogpu/rhi/backend/host"
//
//	b, err := backend.Open("host", backend.Config{})
//
// # Available Backends
//
//   - "host": CPU execution of Go kernels (always available)
//   - "wgpu": GPU execution through gogpu/wgpu HAL and gogpu/naga
package backend
