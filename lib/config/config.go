// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/wavefs/lib/wave"
)

// EnvironmentVariable names the config file for Load.
const EnvironmentVariable = "WAVEFS_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the complete wavefs configuration.
type Config struct {
	Environment Environment `yaml:"environment"`

	Store  StoreConfig  `yaml:"store"`
	Marine MarineConfig `yaml:"marine"`
	Mount  MountConfig  `yaml:"mount"`
	Log    LogConfig    `yaml:"log"`

	// Per-environment overrides, applied after the base config is
	// loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains the sections that can be overridden per
// environment. Zero values in an override section leave the base
// value alone; booleans are pointers so that an unset key is told
// apart from an explicit false.
type ConfigOverrides struct {
	Store  *StoreOverrides `yaml:"store,omitempty"`
	Marine *MarineConfig   `yaml:"marine,omitempty"`
	Mount  *MountOverrides `yaml:"mount,omitempty"`
	Log    *LogConfig      `yaml:"log,omitempty"`
}

// StoreOverrides is the override form of StoreConfig.
type StoreOverrides struct {
	Root             string `yaml:"root"`
	BaseFrequency    string `yaml:"base_frequency"`
	Compression      string `yaml:"compression"`
	CacheEntries     int    `yaml:"cache_entries"`
	NoSync           *bool  `yaml:"no_sync"`
	RepairCorruption *bool  `yaml:"repair_corruption"`
}

// MountOverrides is the override form of MountConfig.
type MountOverrides struct {
	AllowOther *bool `yaml:"allow_other"`
	ReadOnly   *bool `yaml:"read_only"`
}

// StoreConfig configures the wave store.
type StoreConfig struct {
	// Root is the store directory.
	Root string `yaml:"root"`

	// BaseFrequency is a preset name (golden, unit, octave, euler, pi)
	// or a decimal number. It only takes effect when a store is
	// created.
	BaseFrequency string `yaml:"base_frequency"`

	// Compression for newly stored waves: none, lz4, zstd or bg8_lz4.
	Compression string `yaml:"compression"`

	// CacheEntries bounds the decoded payload cache. Zero disables it.
	CacheEntries int `yaml:"cache_entries"`

	NoSync           bool `yaml:"no_sync"`
	RepairCorruption bool `yaml:"repair_corruption"`
}

// MarineConfig configures salience detection for analyze.
type MarineConfig struct {
	WonderThreshold   float64 `yaml:"wonder_threshold"`
	SalienceThreshold float64 `yaml:"salience_threshold"`
	ClipThreshold     float64 `yaml:"clip_threshold"`
	GridTickRate      float64 `yaml:"grid_tick_rate"`
}

// MountConfig configures the FUSE mount.
type MountConfig struct {
	// AllowOther lets users other than the mounter read the mount.
	// Requires user_allow_other in /etc/fuse.conf.
	AllowOther bool `yaml:"allow_other"`

	// ReadOnly rejects writes through the mount.
	ReadOnly bool `yaml:"read_only"`
}

// LogConfig configures the slog handler built by the CLI.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Environment: Development,
		Store: StoreConfig{
			Root:          filepath.Join(homeDir, ".local", "share", "wavefs"),
			BaseFrequency: "golden",
			Compression:   "none",
			CacheEntries:  1024,
		},
		Marine: MarineConfig{
			WonderThreshold:   0,
			SalienceThreshold: 0.8,
			ClipThreshold:     0,
			GridTickRate:      100,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from the file named by WAVEFS_CONFIG. It
// fails if the variable is not set.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your wavefs.yaml config file, or use --config flag", EnvironmentVariable)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path on top of Default, applies
// the matching environment overrides and expands variables.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		// Production defaults: durable writes, machine-readable logs.
		if overrides == nil {
			overrides = &ConfigOverrides{
				Store: &StoreOverrides{NoSync: new(bool)},
				Log:   &LogConfig{Format: "json"},
			}
		}
	}

	if overrides == nil {
		return
	}

	if store := overrides.Store; store != nil {
		if store.Root != "" {
			c.Store.Root = store.Root
		}
		if store.BaseFrequency != "" {
			c.Store.BaseFrequency = store.BaseFrequency
		}
		if store.Compression != "" {
			c.Store.Compression = store.Compression
		}
		if store.CacheEntries != 0 {
			c.Store.CacheEntries = store.CacheEntries
		}
		if store.NoSync != nil {
			c.Store.NoSync = *store.NoSync
		}
		if store.RepairCorruption != nil {
			c.Store.RepairCorruption = *store.RepairCorruption
		}
	}

	if marine := overrides.Marine; marine != nil {
		if marine.WonderThreshold != 0 {
			c.Marine.WonderThreshold = marine.WonderThreshold
		}
		if marine.SalienceThreshold != 0 {
			c.Marine.SalienceThreshold = marine.SalienceThreshold
		}
		if marine.ClipThreshold != 0 {
			c.Marine.ClipThreshold = marine.ClipThreshold
		}
		if marine.GridTickRate != 0 {
			c.Marine.GridTickRate = marine.GridTickRate
		}
	}

	if mount := overrides.Mount; mount != nil {
		if mount.AllowOther != nil {
			c.Mount.AllowOther = *mount.AllowOther
		}
		if mount.ReadOnly != nil {
			c.Mount.ReadOnly = *mount.ReadOnly
		}
	}

	if log := overrides.Log; log != nil {
		if log.Level != "" {
			c.Log.Level = log.Level
		}
		if log.Format != "" {
			c.Log.Format = log.Format
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Store.Root = expandVars(c.Store.Root, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default}, looking in vars
// before the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name := parts[1]
		defaultValue := parts[2]

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if !slices.Contains([]Environment{Development, Staging, Production}, c.Environment) {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Store.Root == "" {
		errs = append(errs, fmt.Errorf("store.root is required"))
	}
	if _, err := wave.ParseFrequency(c.Store.BaseFrequency); err != nil {
		errs = append(errs, fmt.Errorf("store.base_frequency: %w", err))
	}
	compressions := []string{"none", "lz4", "zstd", "bg8_lz4"}
	if !slices.Contains(compressions, c.Store.Compression) {
		errs = append(errs, fmt.Errorf("store.compression must be one of: %v", compressions))
	}
	if c.Store.CacheEntries < 0 {
		errs = append(errs, fmt.Errorf("store.cache_entries must not be negative"))
	}

	if !(c.Marine.WonderThreshold >= 0 && c.Marine.WonderThreshold <= 1) {
		errs = append(errs, fmt.Errorf("marine.wonder_threshold must be in [0, 1]"))
	}
	if math.IsNaN(c.Marine.SalienceThreshold) || math.IsInf(c.Marine.SalienceThreshold, 0) {
		errs = append(errs, fmt.Errorf("marine.salience_threshold must be finite"))
	}
	if !(c.Marine.ClipThreshold >= 0) || math.IsInf(c.Marine.ClipThreshold, 0) {
		errs = append(errs, fmt.Errorf("marine.clip_threshold must be finite and non-negative"))
	}
	if !(c.Marine.GridTickRate > 0) || math.IsInf(c.Marine.GridTickRate, 0) {
		errs = append(errs, fmt.Errorf("marine.grid_tick_rate must be finite and positive"))
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	formats := []string{"text", "json"}
	if !slices.Contains(formats, c.Log.Format) {
		errs = append(errs, fmt.Errorf("log.format must be one of: %v", formats))
	}

	return errors.Join(errs...)
}

// Frequency returns the parsed store base frequency.
func (s StoreConfig) Frequency() (float64, error) {
	return wave.ParseFrequency(s.BaseFrequency)
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
