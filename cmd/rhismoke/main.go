// Command rhismoke runs a small compute workload on an rhi device and checks
// its result.
//
// The kernel adds a constant through an interface-typed parameter:
//
//	buffer[i] = transform(buffer[i]) + 10, transform(x) = x + c
//
// Usage:
//
//	rhismoke -backend host
//	rhismoke -config smoke.toml -v
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/backend"
	_ "github.com/gogpu/rhi/backend/host"
	_ "github.com/gogpu/rhi/backend/wgpu"
	"github.com/gogpu/rhi/reflection"
)

const transformWGSL = `
@group(0) @binding(0) var<storage, read_write> data: array<f32>;
@group(0) @binding(1) var<uniform> transformer: ITransformer;

@compute @workgroup_size(4)
fn computeMain(@builtin(global_invocation_id) id: vec3<u32>) {
    if id.x < arrayLength(&data) {
        data[id.x] = transform(transformer, data[id.x]) + 10.0;
    }
}
`

const addTransformerWGSL = `
struct AddTransformer {
    c: f32,
}

fn transform(t: AddTransformer, x: f32) -> f32 {
    return x + t.c;
}
`

func main() {
	var (
		backendName = flag.String("backend", "", "backend name (default: first available)")
		configPath  = flag.String("config", "", "TOML configuration file")
		verbose     = flag.Bool("v", false, "debug logging")
		c           = flag.Float64("c", 1, "constant added by the transformer")
		timeout     = flag.Duration("timeout", 10*time.Second, "wait limit for the queue")
	)
	flag.Parse()

	var opts []rhi.DeviceOption
	if *configPath != "" {
		cfg, err := rhi.LoadConfig(*configPath)
		if err != nil {
			log.Fatal(err)
		}
		opts = cfg.Options()
	}
	if *backendName != "" {
		opts = append(opts, rhi.WithBackend(*backendName))
	}
	if *verbose {
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		rhi.SetLogger(logger)
		opts = append(opts, rhi.WithLogger(logger))
	}

	got, err := run(opts, float32(*c), *timeout)
	if err != nil {
		log.Fatalf("rhismoke: %v", err)
	}
	for i, v := range got {
		want := float32(i) + float32(*c) + 10
		if v != want {
			log.Fatalf("rhismoke: buffer[%d] = %g, want %g", i, v, want)
		}
	}
	fmt.Printf("ok %v\n", got)
}

func run(opts []rhi.DeviceOption, c float32, timeout time.Duration) ([]float32, error) {
	dev, err := rhi.NewDevice(append(opts, rhi.WithLabel("rhismoke"))...)
	if err != nil {
		return nil, err
	}
	defer dev.Release()
	log.Printf("device %s on %s (%s)", dev.Label(), dev.BackendName(), dev.Info().Name)

	queue, err := dev.GetQueue(rhi.QueueGraphics)
	if err != nil {
		return nil, err
	}
	defer queue.Release()

	buf, err := dev.CreateBuffer(rhi.BufferDesc{Label: "values", Size: 16, ElementSize: 4, MemoryType: rhi.MemoryUpload}, float32Bytes(0, 1, 2, 3))
	if err != nil {
		return nil, err
	}
	defer buf.Release()

	prog, err := dev.CreateShaderProgram(rhi.ShaderProgramDesc{
		Label:   "transform",
		Program: transformProgram(),
		Source: backend.Source{
			WGSL:     transformWGSL,
			TypeWGSL: map[string]string{"AddTransformer": addTransformerWGSL},
			Host:     transformHost,
		},
	})
	if err != nil {
		return nil, err
	}
	defer prog.Release()

	pipe, err := dev.CreateComputePipeline(rhi.ComputePipelineDesc{Program: prog})
	if err != nil {
		return nil, err
	}
	defer pipe.Release()

	add, err := dev.CreateShaderObject(prog.FindTypeByName("AddTransformer"))
	if err != nil {
		return nil, err
	}
	defer add.Release()
	if err := rhi.NewShaderCursor(add).Field("c").SetFloat32(c); err != nil {
		return nil, err
	}

	heap, err := dev.CreateTransientHeap(rhi.TransientHeapDesc{})
	if err != nil {
		return nil, err
	}
	cb, err := heap.CreateCommandBuffer()
	if err != nil {
		return nil, err
	}
	pass := cb.BeginComputePass()
	root, err := pass.BindPipeline(pipe)
	if err != nil {
		return nil, err
	}
	cursor := rhi.NewShaderCursor(root)
	if err := cursor.Path("buffer").SetBinding(rhi.BufferBinding{Buffer: buf}); err != nil {
		return nil, err
	}
	if err := cursor.Path("transformer").SetObject(add); err != nil {
		return nil, err
	}
	if err := pass.DispatchCompute(1, 1, 1); err != nil {
		return nil, err
	}
	pass.End()
	cb.Close()

	if err := queue.Submit([]*rhi.CommandBuffer{cb}, nil, 0); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := queue.WaitOnHost(ctx); err != nil {
		return nil, err
	}

	st := dev.SpecializationCache().Stats()
	slog.Debug("specialization cache", "compiles", st.Compiles, "size", st.Size)

	data, err := dev.ReadBuffer(buf, 0, buf.Size())
	if err != nil {
		return nil, err
	}
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return out, nil
}

// transformProgram reflects computeMain. Binding points place the buffer
// and the transformer's constant buffer for GPU backends.
func transformProgram() *reflection.Program {
	f32 := reflection.Scalar(reflection.ScalarFloat32)
	ep := reflection.ComputeEntryPoint("computeMain", [3]uint32{4, 1, 1},
		reflection.BoundMember("buffer", reflection.StructuredBuffer(f32, reflection.AccessReadWrite), 0, 0),
		reflection.BoundMember("transformer", reflection.Interface("ITransformer"), 0, 1))
	add := reflection.Struct("AddTransformer", reflection.Member("c", f32))
	return reflection.NewProgram("transform", nil, ep).
		AddType(add).
		AddConformance("ITransformer", "AddTransformer")
}

func transformHost(req *backend.KernelRequest) (backend.HostKernel, error) {
	if len(req.TypeArgs) != 1 || req.TypeArgs[0] != "AddTransformer" {
		return nil, fmt.Errorf("no host implementation for %v", req.TypeArgs)
	}
	return func(inv *backend.Invocation) error {
		buf := inv.Entry.Buffer("buffer")
		i := int(inv.GlobalID[0])
		if i >= buf.Len() {
			return nil
		}
		buf.SetFloat32(i, buf.Float32(i)+inv.Entry.Float32("transformer.c")+10)
		return nil
	}, nil
}

func float32Bytes(vs ...float32) []byte {
	out := make([]byte, 4*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
	}
	return out
}
