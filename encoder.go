package rhi

// ComputePassEncoder records pipeline binds and dispatches.
type ComputePassEncoder struct {
	cb       *CommandBuffer
	pipeline *Pipeline
	root     *ShaderObject
}

// BindPipeline records a pipeline bind and returns a fresh root object for
// its program. The root becomes current: parameters written into it before
// DispatchCompute are what the dispatch sees.
func (e *ComputePassEncoder) BindPipeline(p *Pipeline) (*ShaderObject, error) {
	if err := e.cb.checkOpen(); err != nil {
		return nil, err
	}
	if p == nil {
		return nil, validationError("bind of nil pipeline")
	}
	root, err := e.cb.device.CreateRootShaderObject(p.program)
	if err != nil {
		return nil, err
	}
	e.bind(p, root)
	return root, nil
}

// BindPipelineWithRootObject records a pipeline bind that uses a root
// object created by the caller for the same program.
func (e *ComputePassEncoder) BindPipelineWithRootObject(p *Pipeline, root *ShaderObject) error {
	if err := e.cb.checkOpen(); err != nil {
		return err
	}
	if p == nil || root == nil {
		return validationError("bind of nil pipeline or root object")
	}
	if root.kind != ObjectRoot || root.program != p.program {
		return validationError("root object %s does not belong to pipeline %q", root.TypeName(), p.label)
	}
	root.Retain()
	e.bind(p, root)
	return nil
}

func (e *ComputePassEncoder) bind(p *Pipeline, root *ShaderObject) {
	e.cb.record(OpSetPipeline, e.cb.addPipeline(p))
	if e.root != nil {
		e.root.Release()
	}
	e.pipeline, e.root = p, root
}

// DispatchCompute records a dispatch of x*y*z thread groups. The current
// root object is snapshotted: plain objects are copied, mutable ones are
// referenced live. A dispatch with nothing bound is still recorded and
// fails when executed.
func (e *ComputePassEncoder) DispatchCompute(x, y, z uint32) error {
	if err := e.cb.checkOpen(); err != nil {
		return err
	}
	if e.root != nil {
		e.cb.record(OpBindRootShaderObject, e.cb.addRoot(e.root.snapshot()))
	}
	e.cb.record(OpDispatchCompute, uint64(x), uint64(y), uint64(z))
	return nil
}

// End finishes the pass and drops the encoder's root object.
func (e *ComputePassEncoder) End() {
	if e.root != nil {
		e.root.Release()
	}
	e.pipeline, e.root = nil, nil
}

// ResourcePassEncoder records copies, uploads and query commands. Ranges are
// validated at record time.
type ResourcePassEncoder struct {
	cb *CommandBuffer
}

func checkBufferRange(b *Buffer, offset, size uint64) error {
	if b == nil {
		return validationError("nil buffer")
	}
	if offset > b.Size() || size > b.Size()-offset {
		return validationError("range [%d, +%d) outside buffer %q of %d bytes", offset, size, b.desc.Label, b.Size())
	}
	return nil
}

// CopyBuffer records a copy of size bytes from src to dst.
func (e *ResourcePassEncoder) CopyBuffer(dst *Buffer, dstOffset uint64, src *Buffer, srcOffset, size uint64) error {
	if err := e.cb.checkOpen(); err != nil {
		return err
	}
	if err := checkBufferRange(dst, dstOffset, size); err != nil {
		return err
	}
	if err := checkBufferRange(src, srcOffset, size); err != nil {
		return err
	}
	e.cb.record(OpCopyBuffer, e.cb.addBuffer(dst), dstOffset, e.cb.addBuffer(src), srcOffset, size)
	return nil
}

// UploadBufferData records a write of data into dst. The bytes are copied
// into the heap arena at record time.
func (e *ResourcePassEncoder) UploadBufferData(dst *Buffer, offset uint64, data []byte) error {
	if err := e.cb.checkOpen(); err != nil {
		return err
	}
	size := uint64(len(data))
	if err := checkBufferRange(dst, offset, size); err != nil {
		return err
	}
	e.cb.record(OpUploadBufferData, e.cb.addBuffer(dst), offset, size, e.cb.addBlob(data))
	return nil
}

// WriteTimestamp records a device clock read into query slot index.
func (e *ResourcePassEncoder) WriteTimestamp(pool *QueryPool, index uint32) error {
	if err := e.cb.checkOpen(); err != nil {
		return err
	}
	if pool == nil {
		return validationError("nil query pool")
	}
	if err := pool.checkRange(index, 1); err != nil {
		return err
	}
	e.cb.record(OpWriteTimestamp, e.cb.addQueryPool(pool), uint64(index))
	return nil
}

// ResolveQuery records a copy of count query values, as little-endian
// uint64s, into dst.
func (e *ResourcePassEncoder) ResolveQuery(pool *QueryPool, first, count uint32, dst *Buffer, dstOffset uint64) error {
	if err := e.cb.checkOpen(); err != nil {
		return err
	}
	if pool == nil {
		return validationError("nil query pool")
	}
	if err := pool.checkRange(first, count); err != nil {
		return err
	}
	if err := checkBufferRange(dst, dstOffset, uint64(count)*8); err != nil {
		return err
	}
	e.cb.record(OpResolveQuery, e.cb.addQueryPool(pool), uint64(first), uint64(count), e.cb.addBuffer(dst), dstOffset)
	return nil
}

// End finishes the pass.
func (e *ResourcePassEncoder) End() {}
