// Package config provides configuration management for boxd.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the full process configuration for the gateway, the
// sandbox supervisor, the backend pool and the backend RPC server.
// One immutable Config is built at startup and threaded explicitly
// through every component; nothing reads a package-level global.
type Config struct {
	Hostname string `toml:"hostname"`
	LogLevel string `toml:"log_level"`

	Gateway GatewayConfig `toml:"gateway"`
	Sandbox SandboxConfig `toml:"sandbox"`
	Pool    PoolConfig    `toml:"pool"`
	Backend BackendConfig `toml:"backend"`
	Metrics MetricsConfig `toml:"metrics"`

	// StorageBase is the root directory under which per-user directories
	// (user_<ID-padded-to-3>) are created.
	StorageBase string `toml:"storage_base"`

	// PepperFile, if set, is read once at startup and base64-decoded into
	// the process-wide pepper used by the identity package. Takes
	// precedence over the BOXD_PEPPER environment variable.
	PepperFile string `toml:"pepper_file"`

	// TrustDir holds the RSA keypair PEM files used by the transport
	// handshake: <TrustDir>/public_key.pem and <TrustDir>/private_key.pem.
	TrustDir string `toml:"trust_dir"`
}

// GatewayConfig configures the client-facing session gateway (component A).
type GatewayConfig struct {
	Address string `toml:"address"`

	// MaxConnections bounds concurrently upgraded WebSocket sessions.
	// Zero means unlimited.
	MaxConnections int `toml:"max_connections"`
}

// SandboxConfig configures the container supervisor (component B/C).
type SandboxConfig struct {
	Image             string `toml:"image"`
	InnerTimeout      string `toml:"inner_timeout"`
	OuterTimeout      string `toml:"outer_timeout"`
	InputPollInterval string `toml:"input_poll_interval"`
	PIDPollInterval   string `toml:"pid_poll_interval"`
	PIDSettleWindow   string `toml:"pid_settle_window"`
	CPUs              string `toml:"cpus"`
	MemoryLimit       string `toml:"memory_limit"`
	PIDsLimit         int    `toml:"pids_limit"`
}

// PoolConfig configures the backend connection pool (component E).
type PoolConfig struct {
	Size            int    `toml:"size"`
	BackendAddr     string `toml:"backend_address"`
	AcquireDeadline string `toml:"acquire_deadline"`
}

// BackendConfig configures the backend RPC server (component F).
type BackendConfig struct {
	Address string `toml:"address"`
}

// MetricsConfig holds configuration for the Prometheus exporter.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
	Path    string `toml:"path"`
}

// Default returns a Config with sensible default values.
func Default() Config {
	return Config{
		Hostname: "localhost",
		LogLevel: "info",
		Gateway: GatewayConfig{
			Address:        ":8080",
			MaxConnections: 256,
		},
		Sandbox: SandboxConfig{
			Image:             "python_runner",
			InnerTimeout:      "60s",
			OuterTimeout:      "61s",
			InputPollInterval: "200ms",
			PIDPollInterval:   "50ms",
			PIDSettleWindow:   "2s",
			CPUs:              "0.5",
			MemoryLimit:       "128m",
			PIDsLimit:         64,
		},
		Pool: PoolConfig{
			Size:            3,
			BackendAddr:     "localhost:7070",
			AcquireDeadline: "0s",
		},
		Backend: BackendConfig{
			Address: ":7070",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9101",
			Path:    "/metrics",
		},
		StorageBase: "./user_storage",
		TrustDir:    "./secrets/keys",
	}
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Hostname == "" {
		return errors.New("hostname is required")
	}
	if c.Gateway.Address == "" {
		return errors.New("gateway address is required")
	}
	if c.Pool.Size <= 0 {
		return errors.New("pool size must be positive")
	}
	if c.Sandbox.PIDsLimit <= 0 {
		return errors.New("sandbox pids_limit must be positive")
	}
	for name, d := range map[string]string{
		"inner_timeout":       c.Sandbox.InnerTimeout,
		"outer_timeout":       c.Sandbox.OuterTimeout,
		"input_poll_interval": c.Sandbox.InputPollInterval,
		"pid_poll_interval":   c.Sandbox.PIDPollInterval,
		"pid_settle_window":   c.Sandbox.PIDSettleWindow,
	} {
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("invalid sandbox.%s: %w", name, err)
		}
	}
	if c.Pool.AcquireDeadline != "" {
		if _, err := time.ParseDuration(c.Pool.AcquireDeadline); err != nil {
			return fmt.Errorf("invalid pool.acquire_deadline: %w", err)
		}
	}
	if c.Metrics.Enabled {
		if c.Metrics.Address == "" {
			return errors.New("metrics address is required when metrics are enabled")
		}
		if c.Metrics.Path == "" {
			return errors.New("metrics path is required when metrics are enabled")
		}
	}
	return nil
}

// duration parses a config duration string, falling back to def on error
// or empty input.
func duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// InnerTimeoutDuration returns the in-container timeout enforced via `timeout`.
func (s SandboxConfig) InnerTimeoutDuration() time.Duration {
	return duration(s.InnerTimeout, 60*time.Second)
}

// OuterTimeoutDuration returns the supervisor's own watchdog deadline.
func (s SandboxConfig) OuterTimeoutDuration() time.Duration {
	return duration(s.OuterTimeout, 61*time.Second)
}

// InputPollIntervalDuration returns the input-block poll interval.
func (s SandboxConfig) InputPollIntervalDuration() time.Duration {
	return duration(s.InputPollInterval, 200*time.Millisecond)
}

// PIDPollIntervalDuration returns the PID-resolve poll interval.
func (s SandboxConfig) PIDPollIntervalDuration() time.Duration {
	return duration(s.PIDPollInterval, 50*time.Millisecond)
}

// PIDSettleWindowDuration returns the configured PID settle window. The
// sandbox supervisor does not read it: PID discovery keeps polling for
// as long as the execution is alive.
func (s SandboxConfig) PIDSettleWindowDuration() time.Duration {
	return duration(s.PIDSettleWindow, 2*time.Second)
}

// AcquireDeadlineDuration returns the pool's default acquire deadline, or
// zero meaning "block forever".
func (p PoolConfig) AcquireDeadlineDuration() time.Duration {
	return duration(p.AcquireDeadline, 0)
}
