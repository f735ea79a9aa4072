// config.go defines the server settings and how they are resolved.
//
// Settings come from three layers, lowest precedence first:
//
//   - Built-in defaults (defaultConfig).
//   - An optional YAML file given with --config.
//   - Command-line flags, but only those the operator set explicitly.
//
// A flag left at its default never overrides a value from the file.

package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"bloomd.lopezb.com/internal/bloom"
)

type config struct {
	Port            int           `yaml:"port"`
	MaxConnections  int           `yaml:"max_connections"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`

	// Parameters for filters created implicitly by BF.ADD / BF.MADD.
	BFCapacity          uint64 `yaml:"bf_capacity"`
	BFProbes            uint32 `yaml:"bf_probes"`
	BFConcurrentInserts bool   `yaml:"bf_concurrent_inserts"`
	BFProbeStrategy     string `yaml:"bf_probe_strategy"`

	// Upper bounds on what BF.RESERVE may ask for.
	BFMaxCapacity uint64 `yaml:"bf_max_capacity"`
	BFMaxProbes   uint32 `yaml:"bf_max_probes"`

	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
	LogFile     string `yaml:"log_file"`
}

func defaultConfig() config {
	return config{
		Port:            6479,
		MaxConnections:  100,
		ShutdownTimeout: 5 * time.Second,
		BFCapacity:      1_000_000,
		BFProbes:        3,
		BFProbeStrategy: "murmur3",
		BFMaxCapacity:   1 << 32,
		BFMaxProbes:     64,
		LogLevel:        "info",
	}
}

// flagFields copies a single setting from the flag-bound config to the
// resolved one. Keys are flag names.
var flagFields = map[string]func(dst, src *config){
	"port":                  func(d, s *config) { d.Port = s.Port },
	"max-conn":              func(d, s *config) { d.MaxConnections = s.MaxConnections },
	"shutdown-timeout":      func(d, s *config) { d.ShutdownTimeout = s.ShutdownTimeout },
	"idle-timeout":          func(d, s *config) { d.IdleTimeout = s.IdleTimeout },
	"bf-capacity":           func(d, s *config) { d.BFCapacity = s.BFCapacity },
	"bf-probes":             func(d, s *config) { d.BFProbes = s.BFProbes },
	"bf-concurrent-inserts": func(d, s *config) { d.BFConcurrentInserts = s.BFConcurrentInserts },
	"bf-probe-strategy":     func(d, s *config) { d.BFProbeStrategy = s.BFProbeStrategy },
	"bf-max-capacity":       func(d, s *config) { d.BFMaxCapacity = s.BFMaxCapacity },
	"bf-max-probes":         func(d, s *config) { d.BFMaxProbes = s.BFMaxProbes },
	"metrics-addr":          func(d, s *config) { d.MetricsAddr = s.MetricsAddr },
	"log-level":             func(d, s *config) { d.LogLevel = s.LogLevel },
	"log-file":              func(d, s *config) { d.LogFile = s.LogFile },
}

// loadConfigFile decodes a YAML file on top of the defaults. Unknown keys are
// rejected so that typos do not silently fall back to defaults.
func loadConfigFile(path string) (config, error) {
	cfg := defaultConfig()

	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer func() { _ = f.Close() }()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg, nil
}

// mergeFlags overlays the flags named in changed onto base.
func mergeFlags(base config, flagged config, changed func(name string) bool) config {
	for name, apply := range flagFields {
		if changed(name) {
			apply(&base, &flagged)
		}
	}
	return base
}

// validate rejects settings the server cannot start with.
func (c config) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.MaxConnections < 1 {
		return errors.New("max-conn must be at least 1")
	}
	if c.BFCapacity == 0 {
		return bloom.ErrInvalidCapacity
	}
	if c.BFProbes == 0 {
		return bloom.ErrInvalidProbeCount
	}
	if c.BFMaxCapacity == 0 {
		return fmt.Errorf("bf-max-capacity: %w", bloom.ErrInvalidCapacity)
	}
	if c.BFMaxCapacity > bloom.MaxCapacity {
		return fmt.Errorf("bf-max-capacity %d: %w", c.BFMaxCapacity, bloom.ErrCapacityTooLarge)
	}
	if c.BFMaxProbes == 0 {
		return fmt.Errorf("bf-max-probes: %w", bloom.ErrInvalidProbeCount)
	}
	if c.BFCapacity > c.BFMaxCapacity {
		return fmt.Errorf("bf-capacity %d above bf-max-capacity %d", c.BFCapacity, c.BFMaxCapacity)
	}
	if c.BFProbes > c.BFMaxProbes {
		return fmt.Errorf("bf-probes %d above bf-max-probes %d", c.BFProbes, c.BFMaxProbes)
	}
	if _, ok := bloom.ProbeStrategyByName(c.BFProbeStrategy); !ok {
		return fmt.Errorf("unknown probe strategy %q", c.BFProbeStrategy)
	}
	return nil
}

// filterOptions translates the settings into construction options for every
// filter the server creates.
func (c config) filterOptions() []bloom.Option {
	strategy, _ := bloom.ProbeStrategyByName(c.BFProbeStrategy)
	opts := []bloom.Option{bloom.WithProbeStrategy(strategy)}
	if c.BFConcurrentInserts {
		opts = append(opts, bloom.WithConcurrentInserts())
	}
	return opts
}
