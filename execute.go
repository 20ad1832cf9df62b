package rhi

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/rhi/backend"
)

// executionState is the queue-local binding state while one command buffer
// is interpreted.
type executionState struct {
	pipeline *Pipeline
	root     *ShaderObject
}

// execute interprets the buffers of a submission in order. The first
// failing command ends the submission.
func (q *Queue) execute(s *submission) error {
	for _, cb := range s.buffers {
		var st executionState
		for i, cmd := range cb.commands {
			if err := q.executeCommand(cb, &st, cmd); err != nil {
				q.device.log.Debug("rhi: command failed",
					"index", i,
					"op", cmd.Op.String(),
					"err", err)
				return fmt.Errorf("rhi: command %d (%s): %w", i, cmd.Op, err)
			}
		}
		q.device.log.Debug("rhi: command buffer executed", "commands", len(cb.commands))
	}
	return nil
}

func (q *Queue) executeCommand(cb *CommandBuffer, st *executionState, cmd Command) error {
	d := q.device
	ops := cmd.Operands
	switch cmd.Op {
	case OpSetPipeline:
		st.pipeline = cb.pipelines[ops[0]]
		return nil

	case OpBindRootShaderObject:
		st.root = cb.roots[ops[0]]
		return nil

	case OpDispatchCompute:
		return q.dispatch(st, [3]uint32{uint32(ops[0]), uint32(ops[1]), uint32(ops[2])}) // #nosec G115 -- recorded from uint32

	case OpCopyBuffer:
		dst, src := cb.buffers[ops[0]], cb.buffers[ops[2]]
		return wrapBackend("copy buffer", d.backend.CopyBuffer(dst.mem, ops[1], src.mem, ops[3], ops[4]))

	case OpUploadBufferData:
		dst, blob := cb.buffers[ops[0]], cb.blobs[ops[3]]
		return wrapBackend("upload buffer data", d.backend.WriteBuffer(dst.mem, ops[1], blob[:ops[2]]))

	case OpWriteTimestamp:
		ts, err := d.timestamps.Timestamp()
		if err != nil {
			return wrapBackend("timestamp", err)
		}
		cb.queryPools[ops[0]].write(uint32(ops[1]), ts) // #nosec G115 -- recorded from uint32
		return nil

	case OpResolveQuery:
		pool, dst := cb.queryPools[ops[0]], cb.buffers[ops[3]]
		values, err := pool.Results(uint32(ops[1]), uint32(ops[2])) // #nosec G115 -- recorded from uint32
		if err != nil {
			return err
		}
		out := make([]byte, 8*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint64(out[8*i:], v)
		}
		return wrapBackend("resolve query", d.backend.WriteBuffer(dst.mem, ops[4], out))

	default:
		panic(fmt.Sprintf("rhi: unknown opcode %d", cmd.Op))
	}
}

// dispatch specializes the bound pipeline for the bound root object, then
// launches the compute kernel with the global block and the block of entry
// point 0.
func (q *Queue) dispatch(st *executionState, groups [3]uint32) error {
	if st.pipeline == nil {
		return validationError("dispatch without a pipeline")
	}
	if st.root == nil {
		return validationError("dispatch without a root object")
	}
	d := q.device
	sp, err := d.cache.Resolve(st.pipeline, st.root)
	if err != nil {
		return err
	}
	defer sp.Release()
	k := sp.Kernel()
	globals := st.root.flatten()
	var entry *backend.ArgumentBlock
	if ep := st.root.EntryPoint(0); ep != nil {
		entry = ep.flatten()
	} else {
		entry = backend.NewArgumentBlock()
	}
	d.log.Debug("rhi: dispatch",
		"pipeline", sp.label,
		"kernel", k.Name(),
		"groups", groups)
	return wrapBackend("launch "+k.Name(), d.backend.Launch(k, groups, globals, entry))
}
