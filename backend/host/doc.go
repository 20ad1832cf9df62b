// Package host implements the rhi backend contract on the CPU.
//
// Memory is ordinary Go memory, so every buffer is host visible. Kernels are
// Go functions linked through backend.Source.Host; a launch runs workgroups
// in parallel and the threads of one workgroup in order, which gives kernels
// the same "distinct threads write distinct elements" model as a GPU without
// any barrier support.
//
// The backend also provides the optional capabilities that make sense
// without a device: shared handles (a process-wide handle table), timestamps
// (a monotonic host clock) and acceleration-structure sizing. It has no
// sampler objects.
//
// Importing the package registers it under the name "host":
//
//	import _ "github.com/gogpu/rhi/backend/host"
package host
