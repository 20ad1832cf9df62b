package backend

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Config is passed to a backend factory.
type Config struct {
	// Label names the device in logs.
	Label string
	// Logger receives backend diagnostics. Nil means silent.
	Logger *slog.Logger
	// Options carries backend specific settings keyed by name, for example
	// "workers" for the host backend or "api" for wgpu.
	Options map[string]string
}

// Option returns a backend specific setting.
func (c Config) Option(key string) (string, bool) {
	v, ok := c.Options[key]
	return v, ok
}

// Factory creates a backend instance.
type Factory func(cfg Config) (Backend, error)

// registry holds registered backends.
var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
	// Priority order for Default (first available wins).
	backendPriority = []string{"wgpu", "host"}
)

// Register registers a backend factory with the given name.
// This is typically called from init() in backend packages.
//
// Register panics if factory is nil or the name is already taken, so that
// duplicate registrations surface during program initialization.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if factory == nil {
		panic("backend: Register factory is nil")
	}
	if _, dup := factories[name]; dup {
		panic("backend: Register called twice for " + name)
	}
	factories[name] = factory
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(factories, name)
}

// Available returns the registered backend names, sorted.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := factories[name]
	return ok
}

// Open creates a backend instance by name.
// The error mentions a forgotten import when the name is unknown.
func Open(name string, cfg Config) (Backend, error) {
	registryMu.RLock()
	factory, ok := factories[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: unknown backend %q (forgotten import?)", ErrBackendNotAvailable, name)
	}
	return factory(cfg)
}

// OpenDefault opens the first backend in priority order that succeeds,
// falling back to any registered backend.
func OpenDefault(cfg Config) (Backend, error) {
	tried := make(map[string]bool)
	var lastErr error
	names := append(append([]string(nil), backendPriority...), Available()...)
	for _, name := range names {
		if tried[name] || !IsRegistered(name) {
			continue
		}
		tried[name] = true
		b, err := Open(name, cfg)
		if err == nil {
			return b, nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrBackendNotAvailable
}
