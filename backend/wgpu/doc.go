// Package wgpu runs rhi kernels on GPUs through the gogpu/wgpu HAL.
//
// The backend opens a HAL device for the platform's native API (Vulkan,
// Metal, DX12, GLES or the software rasterizer) and maps the backend
// contract onto it:
//
//   - Buffers are HAL buffers. Host-visible buffers are mapped directly;
//     device-local ones are read back through a staging copy.
//   - Kernels are compiled from WGSL. Interface parameters are bound by
//     prepending the concrete type declarations and one alias per
//     parameter, after which naga validates the module and emits SPIR-V.
//   - Bind group layouts come from the reflected binding points. Bind
//     groups are cached in an LRU; eviction destroys the native object.
//   - Constant buffers are uploaded into per-kernel uniform buffers before
//     each launch.
//
// Register the backend with a blank import:
//
//	import _ "github.com/gogpu/rhi/backend/wgpu"
//
// # Options
//
//   - api: vulkan, metal, dx12, gl or software. Default picks the first
//     available in that order. The software device only runs kernels
//     without constant buffers or interface parameters; others fail to
//     compile with backend.ErrUnsupported.
//   - adapter: discrete, integrated or cpu. Default prefers discrete.
//   - bind_group_cache: LRU capacity, default 256.
//
// A device owned by another component (for example a gogpu window) can be
// shared with NewFromProvider.
package wgpu
