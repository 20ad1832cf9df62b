package host

import (
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi/backend"
)

// Name is the registry name of the host backend.
const Name = "host"

func init() {
	backend.Register(Name, func(cfg backend.Config) (backend.Backend, error) {
		return New(cfg)
	})
}

// Backend runs kernels on the CPU.
type Backend struct {
	label   string
	workers int
	epoch   time.Time

	mu     sync.Mutex
	closed bool
	live   int // buffers and images not yet freed
}

// Compile-time interface checks.
var (
	_ backend.Backend                = (*Backend)(nil)
	_ backend.ExternalMemoryImporter = (*Backend)(nil)
	_ backend.ExternalMemoryExporter = (*Backend)(nil)
	_ backend.TimestampWriter        = (*Backend)(nil)
	_ backend.RayTracer              = (*Backend)(nil)
)

// New creates a host backend. The "workers" option bounds the number of
// workgroups executed concurrently; it defaults to GOMAXPROCS.
func New(cfg backend.Config) (*Backend, error) {
	workers := runtime.GOMAXPROCS(0)
	if v, ok := cfg.Option("workers"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("host: invalid workers option %q", v)
		}
		workers = n
	}
	if cfg.Logger != nil {
		setLogger(cfg.Logger)
	}
	b := &Backend{
		label:   cfg.Label,
		workers: workers,
		epoch:   time.Now(),
	}
	slogger().Info("host: backend created", "label", cfg.Label, "workers", workers)
	return b, nil
}

// SetLogger replaces the package logger.
func (b *Backend) SetLogger(l *slog.Logger) { setLogger(l) }

// Name returns "host".
func (b *Backend) Name() string { return Name }

// Workers returns the workgroup concurrency limit.
func (b *Backend) Workers() int { return b.workers }

// Info describes the host as a CPU adapter.
func (b *Backend) Info() gputypes.AdapterInfo {
	return gputypes.AdapterInfo{
		Name:       "Go host (" + runtime.GOARCH + ")",
		Vendor:     "gogpu",
		DeviceType: gputypes.DeviceTypeCPU,
		Driver:     "rhi/host",
		DriverInfo: runtime.Version(),
		Backend:    gputypes.BackendEmpty,
	}
}

// Features lists the capabilities the host backend provides.
func (b *Backend) Features() []string {
	return []string{"host-memory", "shared-handles", "timestamp-query", "ray-tracing-sizes"}
}

// Limits returns the default limits with no practical cap on buffer size.
func (b *Backend) Limits() gputypes.Limits {
	l := gputypes.DefaultLimits()
	l.MaxBufferSize = 1 << 40
	l.MaxStorageBufferBindingSize = 1<<32 - 1
	return l
}

// Synchronize is a no-op: Launch and the copy operations complete before
// they return.
func (b *Backend) Synchronize() error {
	return b.checkOpen()
}

// Close marks the backend closed. Allocations still live are reported.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if b.live > 0 {
		slogger().Warn("host: backend closed with live allocations", "count", b.live)
	}
	return nil
}

func (b *Backend) checkOpen() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("host: %w", backend.ErrBackendNotAvailable)
	}
	return nil
}

func (b *Backend) track(delta int) {
	b.mu.Lock()
	b.live += delta
	b.mu.Unlock()
}
