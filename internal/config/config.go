// Package config provides hostwatch runtime options: defaults, the YAML
// config file, HOSTWATCH_* environment overrides and command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Thresholds are the alert limits. A metric strictly above its limit
// triggers the alert.
type Thresholds struct {
	CPU     float64 `yaml:"cpu_threshold"`      // percent
	Memory  float64 `yaml:"memory_threshold"`   // percent
	Disk    float64 `yaml:"disk_threshold"`     // percent of root filesystem
	GPUTemp float64 `yaml:"gpu_temp_threshold"` // degrees Celsius
}

// Process table orderings.
const (
	SortCPU    = "cpu"
	SortMemory = "mem"
)

// Config carries runtime options for hostwatch.
type Config struct {
	UpdateInterval  time.Duration
	ProcessInterval time.Duration
	Thresholds      Thresholds
	LogFile         string
	LogLevel        string
	EnableGPU       bool
	EnableBatt      bool

	// Sort and Filter only change how the dashboard shows the process list.
	Sort   string // SortCPU or SortMemory
	Filter string // regular expression matched against name and command
}

const (
	defaultUpdateInterval  = 2 * time.Second
	defaultProcessInterval = time.Second
)

func Default() Config {
	return Config{
		UpdateInterval:  defaultUpdateInterval,
		ProcessInterval: defaultProcessInterval,
		Thresholds: Thresholds{
			CPU:     80,
			Memory:  80,
			Disk:    90,
			GPUTemp: 80,
		},
		LogFile:    "hostwatch.log",
		LogLevel:   "info",
		EnableGPU:  true,
		EnableBatt: true,
		Sort:       SortCPU,
	}
}

// fileConfig is the on-disk layout. Intervals are stored in milliseconds.
type fileConfig struct {
	UpdateIntervalMS  int64      `yaml:"update_interval_ms"`
	ProcessIntervalMS int64      `yaml:"process_interval_ms"`
	Thresholds        Thresholds `yaml:",inline"`
	LogFile           string     `yaml:"log_file"`
	LogLevel          string     `yaml:"log_level"`
	GPU               bool       `yaml:"gpu"`
	Battery           bool       `yaml:"battery"`
	Sort              string     `yaml:"sort"`
	Filter            string     `yaml:"filter,omitempty"`
}

func toFile(c Config) fileConfig {
	return fileConfig{
		UpdateIntervalMS:  c.UpdateInterval.Milliseconds(),
		ProcessIntervalMS: c.ProcessInterval.Milliseconds(),
		Thresholds:        c.Thresholds,
		LogFile:           c.LogFile,
		LogLevel:          c.LogLevel,
		GPU:               c.EnableGPU,
		Battery:           c.EnableBatt,
		Sort:              c.Sort,
		Filter:            c.Filter,
	}
}

func (f fileConfig) config() Config {
	return Config{
		UpdateInterval:  time.Duration(f.UpdateIntervalMS) * time.Millisecond,
		ProcessInterval: time.Duration(f.ProcessIntervalMS) * time.Millisecond,
		Thresholds:      f.Thresholds,
		LogFile:         f.LogFile,
		LogLevel:        f.LogLevel,
		EnableGPU:       f.GPU,
		EnableBatt:      f.Battery,
		Sort:            f.Sort,
		Filter:          f.Filter,
	}
}

// DefaultPath is config.yaml under the user config directory, or "" when
// there is none.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "hostwatch", "config.yaml")
}

// Load reads a YAML config file over the defaults. A missing file is not an
// error. When the file cannot be read or parsed Load returns the defaults
// together with the error, so callers can log it and carry on.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	f := toFile(cfg)
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Default(), fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg = f.config()
	cfg.normalize()
	return cfg, nil
}

// Save writes c to path as YAML, creating the parent directory.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(toFile(c))
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// normalize replaces values no component can run with.
func (c *Config) normalize() {
	if c.UpdateInterval <= 0 {
		c.UpdateInterval = defaultUpdateInterval
	}
	if c.ProcessInterval <= 0 {
		c.ProcessInterval = defaultProcessInterval
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Sort == "" {
		c.Sort = SortCPU
	}
}

// checkProcessView resets an unknown sort key or an invalid filter pattern
// and reports what it dropped.
func (c *Config) checkProcessView() error {
	var errs []error
	if c.Sort != SortCPU && c.Sort != SortMemory {
		errs = append(errs, fmt.Errorf("unknown sort %q (want %s or %s)", c.Sort, SortCPU, SortMemory))
		c.Sort = SortCPU
	}
	if c.Filter != "" {
		if _, err := regexp.Compile(c.Filter); err != nil {
			errs = append(errs, fmt.Errorf("invalid filter: %w", err))
			c.Filter = ""
		}
	}
	return errors.Join(errs...)
}

// readEnvironment applies HOSTWATCH_* overrides. Invalid values are skipped
// and reported together.
func readEnvironment(cfg *Config) error {
	var errs []error

	if v := os.Getenv("HOSTWATCH_UPDATE_INTERVAL_MS"); v != "" {
		if d, err := parseInterval(v); err == nil {
			cfg.UpdateInterval = d
		} else {
			errs = append(errs, fmt.Errorf("invalid HOSTWATCH_UPDATE_INTERVAL_MS: %w", err))
		}
	}
	if v := os.Getenv("HOSTWATCH_PROCESS_INTERVAL_MS"); v != "" {
		if d, err := parseInterval(v); err == nil {
			cfg.ProcessInterval = d
		} else {
			errs = append(errs, fmt.Errorf("invalid HOSTWATCH_PROCESS_INTERVAL_MS: %w", err))
		}
	}

	thresholds := []struct {
		env string
		dst *float64
	}{
		{"HOSTWATCH_CPU_THRESHOLD", &cfg.Thresholds.CPU},
		{"HOSTWATCH_MEMORY_THRESHOLD", &cfg.Thresholds.Memory},
		{"HOSTWATCH_DISK_THRESHOLD", &cfg.Thresholds.Disk},
		{"HOSTWATCH_GPU_TEMP_THRESHOLD", &cfg.Thresholds.GPUTemp},
	}
	for _, th := range thresholds {
		v := os.Getenv(th.env)
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", th.env, err))
			continue
		}
		*th.dst = f
	}

	if v := os.Getenv("HOSTWATCH_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("HOSTWATCH_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("HOSTWATCH_SORT"); v != "" {
		cfg.Sort = v
	}
	if v, ok := os.LookupEnv("HOSTWATCH_FILTER"); ok {
		cfg.Filter = v
	}

	toggles := []struct {
		env string
		dst *bool
	}{
		{"HOSTWATCH_GPU", &cfg.EnableGPU},
		{"HOSTWATCH_BATTERY", &cfg.EnableBatt},
	}
	for _, tg := range toggles {
		v := os.Getenv(tg.env)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", tg.env, err))
			continue
		}
		*tg.dst = b
	}

	cfg.normalize()
	return errors.Join(errs...)
}

// parseInterval accepts a bare millisecond count or a Go duration string.
func parseInterval(v string) (time.Duration, error) {
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(v)
}
