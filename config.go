package rhi

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

// Config is the file form of the device options.
//
//	backend = "host"
//	label = "smoke"
//	log_level = "debug"
//
//	[host]
//	workers = 4
//
//	[wgpu]
//	api = "vulkan"
//	adapter = "discrete"
//	bind_group_cache = 128
type Config struct {
	Backend  string     `toml:"backend"`
	Label    string     `toml:"label"`
	LogLevel string     `toml:"log_level"`
	Host     HostConfig `toml:"host"`
	WGPU     WGPUConfig `toml:"wgpu"`
}

// HostConfig configures the host backend.
type HostConfig struct {
	// Workers bounds concurrently executing workgroups. Zero means GOMAXPROCS.
	Workers int `toml:"workers"`
}

// WGPUConfig configures the wgpu backend.
type WGPUConfig struct {
	// API restricts adapter enumeration: vulkan, metal, dx12, gl or software.
	API string `toml:"api"`
	// Adapter prefers an adapter kind: discrete, integrated or cpu.
	Adapter string `toml:"adapter"`
	// BindGroupCache is the number of bind groups kept alive between
	// dispatches.
	BindGroupCache int `toml:"bind_group_cache"`
}

// LoadConfig reads a TOML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is supplied by the operator
	if err != nil {
		return nil, fmt.Errorf("rhi: read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes TOML configuration. Unknown keys are rejected.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("rhi: parse config: %w", err)
	}
	if _, err := cfg.level(); err != nil {
		return nil, err
	}
	if cfg.Host.Workers < 0 {
		return nil, fmt.Errorf("rhi: config: host.workers must not be negative, got %d", cfg.Host.Workers)
	}
	if cfg.WGPU.BindGroupCache < 0 {
		return nil, fmt.Errorf("rhi: config: wgpu.bind_group_cache must not be negative, got %d", cfg.WGPU.BindGroupCache)
	}
	return &cfg, nil
}

func (c *Config) level() (slog.Level, error) {
	var lvl slog.Level
	if c.LogLevel == "" {
		return lvl, nil
	}
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return lvl, fmt.Errorf("rhi: config: log_level: %w", err)
	}
	return lvl, nil
}

// Options converts the configuration into device options. A log_level
// installs a text logger on stderr at that level.
func (c *Config) Options() []DeviceOption {
	var opts []DeviceOption
	if c.Backend != "" {
		opts = append(opts, WithBackend(c.Backend))
	}
	if c.Label != "" {
		opts = append(opts, WithLabel(c.Label))
	}
	if c.LogLevel != "" {
		lvl, _ := c.level()
		opts = append(opts, WithLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))))
	}

	bc := make(map[string]string)
	if c.Host.Workers > 0 {
		bc["workers"] = strconv.Itoa(c.Host.Workers)
	}
	if c.WGPU.API != "" {
		bc["api"] = c.WGPU.API
	}
	if c.WGPU.Adapter != "" {
		bc["adapter"] = c.WGPU.Adapter
	}
	if c.WGPU.BindGroupCache > 0 {
		bc["bind_group_cache"] = strconv.Itoa(c.WGPU.BindGroupCache)
	}
	if len(bc) > 0 {
		opts = append(opts, WithBackendConfig(bc))
	}
	return opts
}
