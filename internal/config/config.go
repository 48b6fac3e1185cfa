// Package config loads the calcgrid run configuration: engine and resolver
// settings, the market data function setup, scenario definitions, and the
// optional cache, store, feed and server subsystems.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quantfabric/calcgrid/internal/cache"
	"github.com/quantfabric/calcgrid/internal/engine"
	"github.com/quantfabric/calcgrid/internal/feed"
	"github.com/quantfabric/calcgrid/internal/marketdata"
	"github.com/quantfabric/calcgrid/internal/mdfunc"
	"github.com/quantfabric/calcgrid/internal/pricer"
	"github.com/quantfabric/calcgrid/internal/server"
	"github.com/quantfabric/calcgrid/internal/store"
)

// CacheMode selects the plan cache tier.
type CacheMode string

const (
	CacheNone   CacheMode = "none"
	CacheMemory CacheMode = "memory"
	CacheRedis  CacheMode = "redis"
)

// CacheConfig configures the dependency plan cache.
type CacheConfig struct {
	Mode  CacheMode         `yaml:"mode"`
	TTL   time.Duration     `yaml:"ttl"`
	Redis cache.RedisConfig `yaml:"redis"`
}

// ScenarioConfig defines one parallel-shift scenario. Curves narrows the
// shift to the named curves; empty shifts every curve.
type ScenarioConfig struct {
	Name    string   `yaml:"name"`
	ShiftBP float64  `yaml:"shift_bp"`
	Curves  []string `yaml:"curves,omitempty"`
}

// Config is the full run configuration.
type Config struct {
	Runner     engine.RunnerConfig       `yaml:"runner"`
	Resolver   marketdata.ResolverConfig `yaml:"resolver"`
	Reporting  engine.ReportingRules     `yaml:"reporting"`
	Selector   pricer.CurveSelector      `yaml:"selector"`
	MarketData mdfunc.Config             `yaml:"market_data"`
	Scenarios  []ScenarioConfig          `yaml:"scenarios,omitempty"`

	Cache  CacheConfig   `yaml:"cache"`
	Store  store.Config  `yaml:"store"`
	Feeds  []feed.Config `yaml:"feeds,omitempty"`
	Server server.Config `yaml:"server"`
}

// Default returns a runnable configuration with every subsystem at its
// package defaults and persistence disabled.
func Default() Config {
	return Config{
		Runner:    engine.DefaultRunnerConfig(),
		Resolver:  marketdata.DefaultResolverConfig(),
		Reporting: engine.NaturalReporting(),
		Selector:  pricer.CurveSelector{Group: "default"},
		Cache:     CacheConfig{Mode: CacheMemory, Redis: cache.DefaultRedisConfig()},
		Store:     store.DefaultConfig(),
		Server:    server.DefaultConfig(),
	}
}

// Load reads a config file over the defaults.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(raw)
}

// Parse decodes config YAML over the defaults and validates it.
func Parse(raw []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.Runner.Parallelism <= 0 {
		return fmt.Errorf("config: runner parallelism must be positive")
	}
	if c.Resolver.Parallelism <= 0 || c.Resolver.MaxDepth <= 0 {
		return fmt.Errorf("config: resolver parallelism and max_depth must be positive")
	}
	switch c.Cache.Mode {
	case CacheNone, CacheMemory, CacheRedis:
	default:
		return fmt.Errorf("config: unknown cache mode %q", c.Cache.Mode)
	}
	if c.Reporting.Mode == engine.ReportingFixed && c.Reporting.Currency == "" {
		return fmt.Errorf("config: fixed reporting requires a currency")
	}
	if c.Selector.Group == "" {
		return fmt.Errorf("config: selector group is required")
	}
	seen := make(map[string]struct{}, len(c.Scenarios))
	for _, s := range c.Scenarios {
		if s.Name == "" {
			return fmt.Errorf("config: scenario without a name")
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("config: duplicate scenario %q", s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	return nil
}
