package rhi

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi/backend"
	"github.com/gogpu/rhi/reflection"
)

// Device is the composition root of the runtime. It owns the backend, the
// graphics queue, the specialization cache and the layout cache.
//
// A device starts with one reference owned by its creator. Release drops it;
// the device is destroyed when the last reference is gone. Handing out the
// queue with GetQueue adds a reference until the queue is released.
type Device struct {
	label   string
	log     *slog.Logger
	backend backend.Backend

	// ownLogger is set when WithLogger chose the logger; SetLogger then
	// leaves the backend alone.
	ownLogger bool

	info     gputypes.AdapterInfo
	features FeatureSet
	limits   gputypes.Limits

	// Optional capabilities, resolved once at creation.
	importer   backend.ExternalMemoryImporter
	exporter   backend.ExternalMemoryExporter
	timestamps backend.TimestampWriter
	rayTracer  backend.RayTracer
	samplers   backend.SamplerCreator

	queue *Queue
	cache *SpecializationCache

	layoutMu sync.Mutex
	layouts  map[*reflection.Type]*ShaderObjectLayout

	nextID   atomic.Uint64
	refs     refCount
	released atomic.Bool
}

// NewDevice opens a backend and creates a device on it.
//
// Without WithBackend or WithBackendInstance the first registered backend
// that opens wins, in the order "wgpu", "host", then any other.
func NewDevice(opts ...DeviceOption) (*Device, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	log := o.logger
	if log == nil {
		log = Logger()
	}

	b := o.backendInstance
	if b == nil {
		cfg := backend.Config{Label: o.label, Logger: log, Options: o.backendConfig}
		var err error
		if o.backendName != "" {
			b, err = backend.Open(o.backendName, cfg)
		} else {
			b, err = backend.OpenDefault(cfg)
		}
		if err != nil {
			return nil, fmt.Errorf("rhi: open backend: %w", err)
		}
	}
	propagateLogger(b, log)
	return newDevice(b, o.label, log, o.logger != nil), nil
}

func newDevice(b backend.Backend, label string, log *slog.Logger, ownLogger bool) *Device {
	d := &Device{
		label:     label,
		log:       log,
		backend:   b,
		ownLogger: ownLogger,
		info:      b.Info(),
		features:  newFeatureSet(b),
		limits:    b.Limits(),
		layouts:   make(map[*reflection.Type]*ShaderObjectLayout),
	}
	d.importer, _ = b.(backend.ExternalMemoryImporter)
	d.exporter, _ = b.(backend.ExternalMemoryExporter)
	d.timestamps, _ = b.(backend.TimestampWriter)
	d.rayTracer, _ = b.(backend.RayTracer)
	d.samplers, _ = b.(backend.SamplerCreator)
	d.refs.init()
	d.cache = newSpecializationCache(d)
	d.queue = newQueue(d, QueueGraphics)

	liveDevices.Store(d, struct{}{})
	log.Info("rhi: device created",
		"label", label,
		"backend", b.Name(),
		"adapter", d.info.Name,
		"features", d.features.Len())
	return d
}

// Label returns the device label.
func (d *Device) Label() string { return d.label }

// BackendName returns the name of the backend executing work.
func (d *Device) BackendName() string { return d.backend.Name() }

// Backend returns the native collaborator. It is exposed for backend
// packages and tests; normal use goes through the device API.
func (d *Device) Backend() backend.Backend { return d.backend }

// Info describes the adapter.
func (d *Device) Info() gputypes.AdapterInfo { return d.info }

// Features returns the immutable feature set.
func (d *Device) Features() FeatureSet { return d.features }

// HasFeature reports whether the device has the named feature.
func (d *Device) HasFeature(name string) bool { return d.features.Has(name) }

// Limits returns the device limits.
func (d *Device) Limits() gputypes.Limits { return d.limits }

// SpecializationCache returns the device's specialization cache.
func (d *Device) SpecializationCache() *SpecializationCache { return d.cache }

// Retain adds a reference to the device.
func (d *Device) Retain() { d.refs.retain() }

// Release drops a reference. The last release drains the queue, frees
// cached kernels and closes the backend.
func (d *Device) Release() {
	if !d.refs.release() {
		return
	}
	d.released.Store(true)
	liveDevices.Delete(d)
	d.queue.stop()
	d.cache.Clear()
	if err := d.backend.Close(); err != nil {
		d.log.Warn("rhi: backend close failed", "label", d.label, "err", err)
	}
	d.log.Info("rhi: device released", "label", d.label)
}

func (d *Device) checkLive() error {
	if d.released.Load() {
		return ErrDeviceReleased
	}
	return nil
}

// GetQueue returns the device queue of the given type. Only QueueGraphics
// exists. The first external owner moves the queue to external ownership,
// which retains the device until the queue is released.
func (d *Device) GetQueue(t QueueType) (*Queue, error) {
	if err := d.checkLive(); err != nil {
		return nil, err
	}
	if t != QueueGraphics {
		return nil, fmt.Errorf("rhi: queue type %v: %w", t, ErrUnsupported)
	}
	d.queue.acquire()
	return d.queue, nil
}

// WaitIdle waits for every submission to finish executing. Execution errors
// stay queued for the next Queue.WaitOnHost.
func (d *Device) WaitIdle() error {
	d.queue.drain()
	return wrapBackend("synchronize", d.backend.Synchronize())
}
