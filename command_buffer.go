package rhi

import "strconv"

// Opcode identifies a recorded command.
type Opcode uint8

// Operand layout per opcode. References are indices into the command
// buffer's typed tables.
const (
	// OpSetPipeline: pipeline-ref.
	OpSetPipeline Opcode = iota
	// OpBindRootShaderObject: root-ref.
	OpBindRootShaderObject
	// OpDispatchCompute: x, y, z thread groups.
	OpDispatchCompute
	// OpCopyBuffer: dst-ref, dstOffset, src-ref, srcOffset, size.
	OpCopyBuffer
	// OpUploadBufferData: dst-ref, offset, size, blob-ref.
	OpUploadBufferData
	// OpWriteTimestamp: pool-ref, index.
	OpWriteTimestamp
	// OpResolveQuery: pool-ref, first, count, dst-ref, dstOffset.
	OpResolveQuery
)

var opcodeNames = [...]string{
	OpSetPipeline:          "SetPipeline",
	OpBindRootShaderObject: "BindRootShaderObject",
	OpDispatchCompute:      "DispatchCompute",
	OpCopyBuffer:           "CopyBuffer",
	OpUploadBufferData:     "UploadBufferData",
	OpWriteTimestamp:       "WriteTimestamp",
	OpResolveQuery:         "ResolveQuery",
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) {
		return opcodeNames[op]
	}
	return "Opcode(" + strconv.Itoa(int(op)) + ")"
}

// Command is one entry of the opcode log. Unused operands are zero.
type Command struct {
	Op       Opcode
	Operands [5]uint64
}

// CommandBuffer is an append-only log of commands plus the tables their
// operands index into. Recording never touches the backend; the queue
// interprets the log at execution.
//
// Objects placed in the tables are retained until the buffer has executed
// and been waited on with Queue.WaitOnHost, or until Release for a buffer
// that is never submitted.
//
// A CommandBuffer is not safe for concurrent recording. Distinct buffers
// may be recorded concurrently.
type CommandBuffer struct {
	heap       *TransientHeap
	device     *Device
	generation uint64

	commands   []Command
	pipelines  []*Pipeline
	roots      []*ShaderObject
	buffers    []*Buffer
	queryPools []*QueryPool
	blobs      [][]byte

	closed    bool
	submitted bool
	retired   bool
}

// Close ends recording. Further appends fail with ErrCommandBufferClosed.
func (cb *CommandBuffer) Close() { cb.closed = true }

// IsClosed reports whether Close was called.
func (cb *CommandBuffer) IsClosed() bool { return cb.closed }

// Commands returns a copy of the opcode log.
func (cb *CommandBuffer) Commands() []Command {
	return append([]Command(nil), cb.commands...)
}

// ObjectCount returns the number of entries across the object tables.
func (cb *CommandBuffer) ObjectCount() int {
	return len(cb.pipelines) + len(cb.roots) + len(cb.buffers) + len(cb.queryPools)
}

// BlobCount returns the number of entries in the blob table.
func (cb *CommandBuffer) BlobCount() int { return len(cb.blobs) }

// BeginComputePass starts recording compute work.
func (cb *CommandBuffer) BeginComputePass() *ComputePassEncoder {
	return &ComputePassEncoder{cb: cb}
}

// BeginResourcePass starts recording copies, uploads and queries.
func (cb *CommandBuffer) BeginResourcePass() *ResourcePassEncoder {
	return &ResourcePassEncoder{cb: cb}
}

// Release drops the references of a buffer that will not be submitted.
// Submitted buffers are released by Queue.WaitOnHost; calling Release on
// them is a no-op.
func (cb *CommandBuffer) Release() {
	if cb.submitted {
		return
	}
	cb.retire()
}

func (cb *CommandBuffer) checkOpen() error {
	if cb.closed {
		return ErrCommandBufferClosed
	}
	return nil
}

func (cb *CommandBuffer) record(op Opcode, operands ...uint64) {
	c := Command{Op: op}
	copy(c.Operands[:], operands)
	cb.commands = append(cb.commands, c)
}

func (cb *CommandBuffer) addPipeline(p *Pipeline) uint64 {
	p.Retain()
	cb.pipelines = append(cb.pipelines, p)
	return uint64(len(cb.pipelines) - 1) // #nosec G115 -- table index
}

// addRoot takes ownership of a reference on root.
func (cb *CommandBuffer) addRoot(root *ShaderObject) uint64 {
	cb.roots = append(cb.roots, root)
	return uint64(len(cb.roots) - 1) // #nosec G115 -- table index
}

func (cb *CommandBuffer) addBuffer(b *Buffer) uint64 {
	b.Retain()
	cb.buffers = append(cb.buffers, b)
	return uint64(len(cb.buffers) - 1) // #nosec G115 -- table index
}

func (cb *CommandBuffer) addQueryPool(p *QueryPool) uint64 {
	p.Retain()
	cb.queryPools = append(cb.queryPools, p)
	return uint64(len(cb.queryPools) - 1) // #nosec G115 -- table index
}

func (cb *CommandBuffer) addBlob(data []byte) uint64 {
	cb.blobs = append(cb.blobs, cb.heap.alloc(data))
	return uint64(len(cb.blobs) - 1) // #nosec G115 -- table index
}

// retire releases every table reference. The tables keep their length so
// that indices in the log stay meaningful for inspection.
func (cb *CommandBuffer) retire() {
	if cb.retired {
		return
	}
	cb.retired = true
	for _, p := range cb.pipelines {
		p.Release()
	}
	for _, r := range cb.roots {
		r.Release()
	}
	for _, b := range cb.buffers {
		b.Release()
	}
	for _, p := range cb.queryPools {
		p.Release()
	}
}
