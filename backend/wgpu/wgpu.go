package wgpu

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/allbackends"

	"github.com/gogpu/rhi/backend"
)

// Name is the registry name of the wgpu backend.
const Name = "wgpu"

// DefaultBindGroupCacheSize is the bind group LRU capacity when the
// "bind_group_cache" option is absent.
const DefaultBindGroupCacheSize = 256

func init() {
	backend.Register(Name, func(cfg backend.Config) (backend.Backend, error) {
		return New(cfg)
	})
}

// Backend runs kernels on a HAL device.
type Backend struct {
	label  string
	info   gputypes.AdapterInfo
	limits gputypes.Limits

	instance hal.Instance // nil when the device is borrowed
	device   hal.Device
	queue    hal.Queue
	borrowed bool

	// mu serializes encoding, submission and the bind group cache.
	mu        sync.Mutex
	groups    *lru.Cache[string, *bindGroup]
	cacheSize int
	stats     CacheStats
	closed    bool

	nextID atomic.Uint64
	live   atomic.Int64
}

// Compile-time interface checks.
var (
	_ backend.Backend        = (*Backend)(nil)
	_ backend.SamplerCreator = (*Backend)(nil)
)

var apiNames = map[string]gputypes.Backend{
	"vulkan":   gputypes.BackendVulkan,
	"metal":    gputypes.BackendMetal,
	"dx12":     gputypes.BackendDX12,
	"gl":       gputypes.BackendGL,
	"software": gputypes.BackendEmpty,
}

// apiPriority is the order tried when no api option is given.
var apiPriority = []gputypes.Backend{
	gputypes.BackendVulkan,
	gputypes.BackendMetal,
	gputypes.BackendDX12,
	gputypes.BackendGL,
	gputypes.BackendEmpty,
}

var adapterNames = map[string]gputypes.DeviceType{
	"discrete":   gputypes.DeviceTypeDiscreteGPU,
	"integrated": gputypes.DeviceTypeIntegratedGPU,
	"cpu":        gputypes.DeviceTypeCPU,
}

type options struct {
	apis           []gputypes.Backend
	adapter        gputypes.DeviceType
	anyAdapter     bool
	bindGroupCache int
}

func parseOptions(cfg backend.Config) (options, error) {
	o := options{apis: apiPriority, anyAdapter: true, bindGroupCache: DefaultBindGroupCacheSize}
	if v, ok := cfg.Option("api"); ok {
		api, known := apiNames[v]
		if !known {
			return o, fmt.Errorf("wgpu: unknown api %q", v)
		}
		o.apis = []gputypes.Backend{api}
	}
	if v, ok := cfg.Option("adapter"); ok {
		t, known := adapterNames[v]
		if !known {
			return o, fmt.Errorf("wgpu: unknown adapter type %q", v)
		}
		o.adapter, o.anyAdapter = t, false
	}
	if v, ok := cfg.Option("bind_group_cache"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return o, fmt.Errorf("wgpu: invalid bind_group_cache option %q", v)
		}
		o.bindGroupCache = n
	}
	return o, nil
}

// New opens the first HAL device matching the config.
func New(cfg backend.Config) (*Backend, error) {
	opts, err := parseOptions(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Logger != nil {
		setLogger(cfg.Logger)
	}

	var errs []error
	for _, variant := range opts.apis {
		hb, ok := hal.GetBackend(variant)
		if !ok {
			continue
		}
		instance, err := hb.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
		if err != nil {
			errs = append(errs, fmt.Errorf("create instance: %w", err))
			continue
		}
		selected := selectAdapter(instance.EnumerateAdapters(nil), opts)
		if selected == nil {
			instance.Destroy()
			continue
		}
		limits := gputypes.DefaultLimits()
		open, err := selected.Adapter.Open(gputypes.Features(0), limits)
		if err != nil {
			instance.Destroy()
			errs = append(errs, fmt.Errorf("open %s: %w", selected.Info.Name, err))
			continue
		}
		b, err := newBackend(cfg.Label, open, selected.Info, limits, opts)
		if err != nil {
			open.Device.Destroy()
			instance.Destroy()
			return nil, err
		}
		b.instance = instance
		slogger().Info("wgpu: backend created", "label", cfg.Label, "adapter", selected.Info.Name, "driver", selected.Info.Driver)
		return b, nil
	}
	return nil, fmt.Errorf("wgpu: no usable adapter: %w", errors.Join(append([]error{backend.ErrBackendNotAvailable}, errs...)...))
}

// selectAdapter returns the first adapter of the requested type. Without a
// preference discrete GPUs win over integrated ones, which win over the
// rest.
func selectAdapter(adapters []hal.ExposedAdapter, opts options) *hal.ExposedAdapter {
	if !opts.anyAdapter {
		for i := range adapters {
			if adapters[i].Info.DeviceType == opts.adapter {
				return &adapters[i]
			}
		}
		return nil
	}
	for _, want := range []gputypes.DeviceType{gputypes.DeviceTypeDiscreteGPU, gputypes.DeviceTypeIntegratedGPU} {
		for i := range adapters {
			if adapters[i].Info.DeviceType == want {
				return &adapters[i]
			}
		}
	}
	if len(adapters) > 0 {
		return &adapters[0]
	}
	return nil
}

// NewFromHAL wraps a device opened by the caller. The caller keeps
// ownership: Close leaves the device alive.
func NewFromHAL(cfg backend.Config, open hal.OpenDevice, info gputypes.AdapterInfo) (*Backend, error) {
	if open.Device == nil || open.Queue == nil {
		return nil, errors.New("wgpu: NewFromHAL needs a device and a queue")
	}
	opts, err := parseOptions(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Logger != nil {
		setLogger(cfg.Logger)
	}
	b, err := newBackend(cfg.Label, open, info, gputypes.DefaultLimits(), opts)
	if err != nil {
		return nil, err
	}
	b.borrowed = true
	return b, nil
}

// NewFromProvider shares the device of another component. The provider
// must implement HalDevice() any and HalQueue() any returning hal.Device
// and hal.Queue; a gpucontext.DeviceProvider additionally lends its adapter
// description.
func NewFromProvider(cfg backend.Config, provider any) (*Backend, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, errors.New("wgpu: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, errors.New("wgpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, errors.New("wgpu: provider HalQueue is not hal.Queue")
	}
	info := gputypes.AdapterInfo{Name: "shared device"}
	if dp, ok := provider.(gpucontext.DeviceProvider); ok {
		ai := dp.AdapterInfo()
		info.Name = ai.Name
		info.DeviceType = deviceType(ai.Type)
	}
	return NewFromHAL(cfg, hal.OpenDevice{Device: device, Queue: queue}, info)
}

func deviceType(t gpucontext.AdapterType) gputypes.DeviceType {
	switch t {
	case gpucontext.AdapterTypeDiscrete:
		return gputypes.DeviceTypeDiscreteGPU
	case gpucontext.AdapterTypeIntegrated:
		return gputypes.DeviceTypeIntegratedGPU
	case gpucontext.AdapterTypeSoftware:
		return gputypes.DeviceTypeCPU
	default:
		return gputypes.DeviceTypeOther
	}
}

func newBackend(label string, open hal.OpenDevice, info gputypes.AdapterInfo, limits gputypes.Limits, opts options) (*Backend, error) {
	b := &Backend{
		label:     label,
		info:      info,
		limits:    limits,
		device:    open.Device,
		queue:     open.Queue,
		cacheSize: opts.bindGroupCache,
	}
	groups, err := lru.NewWithEvict(opts.bindGroupCache, func(_ string, g *bindGroup) {
		b.device.DestroyBindGroup(g.raw)
		b.stats.Evictions++
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: bind group cache: %w", err)
	}
	b.groups = groups
	return b, nil
}

// SetLogger replaces the package logger.
func (b *Backend) SetLogger(l *slog.Logger) { setLogger(l) }

// Name returns "wgpu".
func (b *Backend) Name() string { return Name }

// Info returns the adapter description.
func (b *Backend) Info() gputypes.AdapterInfo { return b.info }

// Limits returns the limits the device was opened with.
func (b *Backend) Limits() gputypes.Limits { return b.limits }

// Features lists the backend's capabilities.
func (b *Backend) Features() []string {
	f := []string{"compute", "wgsl"}
	for name, api := range apiNames {
		if api == b.info.Backend && api != gputypes.BackendEmpty {
			f = append(f, name)
		}
	}
	return f
}

// HalDevice exposes the underlying device so other gogpu components can
// share it.
func (b *Backend) HalDevice() any { return b.device }

// HalQueue exposes the underlying queue.
func (b *Backend) HalQueue() any { return b.queue }

func (b *Backend) newID() uint64 { return b.nextID.Add(1) }

func (b *Backend) checkOpen() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errors.New("wgpu: backend closed")
	}
	return nil
}

// Synchronize waits until the device is idle.
func (b *Backend) Synchronize() error {
	if err := b.device.WaitIdle(); err != nil {
		return halError("wait idle", err)
	}
	return nil
}

// Close destroys cached objects and, unless the device is borrowed, the
// device itself. Allocations not yet freed are reported.
func (b *Backend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	err := b.device.WaitIdle()
	b.mu.Lock()
	b.groups.Purge()
	b.mu.Unlock()
	if n := b.live.Load(); n != 0 {
		slogger().Warn("wgpu: closing with live allocations", "label", b.label, "count", n)
	}
	if !b.borrowed {
		b.device.Destroy()
		if b.instance != nil {
			b.instance.Destroy()
		}
	}
	if err != nil {
		return halError("close", err)
	}
	return nil
}

// halError maps HAL sentinels onto backend errors.
func halError(op string, err error) error {
	switch {
	case errors.Is(err, hal.ErrDeviceOutOfMemory):
		return fmt.Errorf("wgpu: %s: %w", op, errors.Join(backend.ErrOutOfMemory, err))
	case errors.Is(err, hal.ErrTimestampsNotSupported):
		return fmt.Errorf("wgpu: %s: %w", op, errors.Join(backend.ErrUnsupported, err))
	}
	return &backend.NativeError{Op: "wgpu: " + op, Code: -1, Err: err}
}
