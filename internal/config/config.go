package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"assist-service/internal/fusion"
	"assist-service/internal/hardware"
	"assist-service/internal/logger"
	"assist-service/internal/types"
)

const (
	DefaultPath        = "/etc/assist-service/config.yml"
	DefaultSnapshotKey = "assist:snapshot"
	DefaultTickPeriod  = "10ms"

	maxFileSize = 1 * 1024 * 1024
)

// Config is the service configuration file.
type Config struct {
	Variant string             `yaml:"variant"`
	Flags   types.FeatureFlags `yaml:"flags"`

	Redis RedisConfig `yaml:"redis"`

	// TickPeriod is a duration string like "10ms".
	TickPeriod string `yaml:"tick_period"`
	// StaleTolerance is how many expected periods a message may be late.
	StaleTolerance float64 `yaml:"stale_tolerance"`

	// Indicators maps indicator names to GPIO lines. Empty disables the lamps.
	Indicators map[string]hardware.LineMapping `yaml:"indicators"`

	LogLevel string `yaml:"log_level"`
}

type RedisConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	SnapshotKey string `yaml:"snapshot_key"`
}

// Default returns the configuration used when no file is given.
// Variant has no default and must be set.
func Default() *Config {
	return &Config{
		Redis: RedisConfig{
			Host:        "127.0.0.1",
			Port:        6379,
			SnapshotKey: DefaultSnapshotKey,
		},
		TickPeriod:     DefaultTickPeriod,
		StaleTolerance: fusion.DefaultStaleTolerance,
		LogLevel:       "info",
	}
}

// Override changes a decoded config before it is validated.
type Override func(*Config)

// WithVariant replaces the variant when v is not empty.
func WithVariant(v string) Override {
	return func(c *Config) {
		if v != "" {
			c.Variant = v
		}
	}
}

// WithLogLevel replaces the log level when level is not empty.
func WithLogLevel(level string) Override {
	return func(c *Config) {
		if level != "" {
			c.LogLevel = level
		}
	}
}

// Load reads a YAML config file on top of the defaults, applies the
// overrides and validates the result.
func Load(path string, overrides ...Override) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".yml" && ext != ".yaml" {
		return nil, fmt.Errorf("config file must have .yml or .yaml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data, overrides...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cleanPath, err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of the defaults. Unknown keys are rejected.
func Parse(data []byte, overrides ...Override) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	for _, o := range overrides {
		o(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	if _, err := types.ParseVariant(c.Variant); err != nil {
		return err
	}

	if period, err := time.ParseDuration(c.TickPeriod); err != nil {
		return fmt.Errorf("invalid tick_period '%s': %w", c.TickPeriod, err)
	} else if period <= 0 {
		return fmt.Errorf("tick_period must be positive, got %s", c.TickPeriod)
	}

	if c.StaleTolerance < 1 {
		return fmt.Errorf("stale_tolerance must be at least 1, got %f", c.StaleTolerance)
	}

	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		return fmt.Errorf("redis port out of range: %d", c.Redis.Port)
	}
	if c.Redis.SnapshotKey == "" {
		return fmt.Errorf("redis snapshot_key must not be empty")
	}

	switch c.Flags.Transmission {
	case "", types.TransmissionAutomatic, types.TransmissionCVT, types.TransmissionManual:
	default:
		return fmt.Errorf("unknown transmission %q", c.Flags.Transmission)
	}

	for name, m := range c.Indicators {
		if name != hardware.IndicatorLateral && name != hardware.IndicatorLongitudinal {
			return fmt.Errorf("unknown indicator %q", name)
		}
		if m.Chip == "" || m.Line < 0 {
			return fmt.Errorf("indicator %s: invalid line %s/%d", name, m.Chip, m.Line)
		}
	}

	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// VehicleVariant returns the validated variant.
func (c *Config) VehicleVariant() types.VehicleVariant {
	v, _ := types.ParseVariant(c.Variant)
	return v
}

// Period returns the tick period. Validate must have passed.
func (c *Config) Period() time.Duration {
	d, _ := time.ParseDuration(c.TickPeriod)
	return d
}

func (c *Config) Level() logger.LogLevel {
	l, _ := logger.ParseLevel(c.LogLevel)
	return l
}
