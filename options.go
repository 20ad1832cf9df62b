package rhi

import (
	"log/slog"
	"maps"

	"github.com/gogpu/rhi/backend"
)

// DeviceOption configures a Device during creation.
//
// Example:
//
//	// First backend that opens, in priority order
//	dev, err := rhi.NewDevice()
//
//	// Explicit backend with a worker limit
//	dev, err := rhi.NewDevice(
//	    rhi.WithBackend("host"),
//	    rhi.WithBackendConfig(map[string]string{"workers": "2"}),
//	)
type DeviceOption func(*deviceOptions)

// deviceOptions holds optional configuration for Device creation.
type deviceOptions struct {
	backendName     string
	backendInstance backend.Backend
	label           string
	logger          *slog.Logger
	backendConfig   map[string]string
}

// defaultOptions returns the default device options.
func defaultOptions() deviceOptions {
	return deviceOptions{
		label:         "rhi",
		backendConfig: make(map[string]string),
	}
}

// WithBackend selects a registered backend by name. The backend package must
// be imported for its registration to run.
func WithBackend(name string) DeviceOption {
	return func(o *deviceOptions) {
		o.backendName = name
	}
}

// WithBackendInstance uses an already opened backend. The device takes
// ownership and closes it on release. This takes precedence over
// WithBackend.
func WithBackendInstance(b backend.Backend) DeviceOption {
	return func(o *deviceOptions) {
		o.backendInstance = b
	}
}

// WithLabel names the device in logs and backend object labels.
func WithLabel(label string) DeviceOption {
	return func(o *deviceOptions) {
		o.label = label
	}
}

// WithLogger sets the logger used by this device and handed to its backend.
// Without it the device logs through Logger.
func WithLogger(l *slog.Logger) DeviceOption {
	return func(o *deviceOptions) {
		o.logger = l
	}
}

// WithBackendConfig passes backend specific settings, for example
// {"workers": "4"} for the host backend. Repeated calls merge.
func WithBackendConfig(cfg map[string]string) DeviceOption {
	return func(o *deviceOptions) {
		maps.Copy(o.backendConfig, cfg)
	}
}
