// Package reflection describes shader parameter types as seen by the runtime.
//
// A reflected program lists its global parameters, its entry points and the
// named types it declares. Layouts in the rhi package are derived from these
// descriptions once per type, so the model is deliberately small: enough to
// compute uniform byte offsets, locate resource slots and find the generic
// (interface-typed) parameters that drive pipeline specialization.
//
// # Building programs by hand
//
// Backends that load kernels from sources the runtime cannot parse describe
// their parameters with the builder helpers:
//
//	transformer := reflection.Interface("ITransformer")
//	add := reflection.Struct("AddTransformer", reflection.Member("c", reflection.Scalar(reflection.ScalarFloat32)))
//
//	prog := reflection.NewProgram("compute-smoke", nil,
//	    reflection.ComputeEntryPoint("computeMain", [3]uint32{4, 1, 1},
//	        reflection.Member("buffer", reflection.StructuredBuffer(reflection.Scalar(reflection.ScalarFloat32), reflection.AccessReadWrite)),
//	        reflection.Member("transformer", transformer),
//	    ))
//	prog.AddType(add)
//	prog.AddConformance("ITransformer", "AddTransformer")
//
// # WGSL
//
// [FromWGSL] lowers WGSL source through gogpu/naga and converts its IR into
// the same model, with bind group and binding numbers taken from the source.
//
// Layout follows WGSL host-shareable rules: vec2 aligns to twice its scalar
// width, vec3 and vec4 to four times, arrays use a stride rounded up to the
// element alignment, structs align to their widest member.
package reflection
