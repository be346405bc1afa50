package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	toml "github.com/pelletier/go-toml/v2"
)

// Flags holds command-line flag values.
type Flags struct {
	ConfigPath string
	Hostname   string
	LogLevel   string
	Listen     string
	StorageBase string
	TrustDir   string
}

// ParseFlags parses command-line flags and returns a Flags struct.
func ParseFlags() *Flags {
	f := &Flags{}

	flagSet := flag.NewFlagSet("boxd", flag.ContinueOnError)
	flagSet.StringVar(&f.ConfigPath, "config", "./boxd.toml", "Path to configuration file")
	flagSet.StringVar(&f.Hostname, "hostname", "", "Server hostname")
	flagSet.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flagSet.StringVar(&f.Listen, "listen", "", "Gateway listen address (overrides config)")
	flagSet.StringVar(&f.StorageBase, "storage-base", "", "Per-user storage root directory")
	flagSet.StringVar(&f.TrustDir, "trust-dir", "", "Directory holding the RSA trust material")
	flagSet.Parse(os.Args[1:])

	return f
}

// Load parses a TOML configuration file and returns the Config. If the
// file does not exist, the default configuration is returned unchanged.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config file: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// ApplyFlags merges command-line flag values into the config. Non-empty
// flag values override config file values.
func ApplyFlags(cfg Config, f *Flags) Config {
	if f.Hostname != "" {
		cfg.Hostname = f.Hostname
	}
	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}
	if f.Listen != "" {
		cfg.Gateway.Address = f.Listen
	}
	if f.StorageBase != "" {
		cfg.StorageBase = f.StorageBase
	}
	if f.TrustDir != "" {
		cfg.TrustDir = f.TrustDir
	}
	return cfg
}

// ApplyEnv merges BOXD_* environment variable overrides into the config,
// the same override layer ApplyFlags provides for CLI flags. Only
// BOXD_PEPPER is treated as a secret that must come from the
// environment rather than the TOML file; everything else is a
// compile-time default with an environment override, so every Config
// field that makes sense to flip per-deployment gets a BOXD_ prefixed
// variable.
func ApplyEnv(cfg Config) Config {
	if v := os.Getenv("BOXD_HOSTNAME"); v != "" {
		cfg.Hostname = v
	}
	if v := os.Getenv("BOXD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("BOXD_GATEWAY_ADDRESS"); v != "" {
		cfg.Gateway.Address = v
	}
	if v := os.Getenv("BOXD_BACKEND_ADDRESS"); v != "" {
		cfg.Backend.Address = v
		cfg.Pool.BackendAddr = v
	}
	if v := os.Getenv("BOXD_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pool.Size = n
		}
	}
	if v := os.Getenv("BOXD_STORAGE_BASE"); v != "" {
		cfg.StorageBase = v
	}
	if v := os.Getenv("BOXD_TRUST_DIR"); v != "" {
		cfg.TrustDir = v
	}
	return cfg
}

// LoadWithFlags loads configuration from the path specified in flags,
// then applies environment and flag overrides (flags win).
func LoadWithFlags(f *Flags) (Config, error) {
	cfg, err := Load(f.ConfigPath)
	if err != nil {
		return cfg, err
	}
	cfg = ApplyEnv(cfg)
	return ApplyFlags(cfg, f), nil
}
