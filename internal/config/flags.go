package config

import (
	"errors"
	"time"

	"github.com/spf13/pflag"
)

// Flags are the command line options layered over the file and environment.
// Only flags the user actually set override lower layers.
type Flags struct {
	ConfigPath      string
	UpdateInterval  time.Duration
	ProcessInterval time.Duration
	GPU             bool
	Battery         bool
	LogFile         string
	LogLevel        string
	Sort            string
	Filter          string

	fs *pflag.FlagSet
}

// Bind registers the options on fs.
func (f *Flags) Bind(fs *pflag.FlagSet) {
	def := Default()
	fs.StringVarP(&f.ConfigPath, "config", "c", DefaultPath(), "path to YAML config file")
	fs.DurationVarP(&f.UpdateInterval, "interval", "i", def.UpdateInterval, "snapshot refresh interval")
	fs.DurationVar(&f.ProcessInterval, "process-interval", def.ProcessInterval, "process list refresh interval")
	fs.BoolVar(&f.GPU, "gpu", def.EnableGPU, "enable GPU sampling")
	fs.BoolVar(&f.Battery, "battery", def.EnableBatt, "enable battery sampling")
	fs.StringVar(&f.LogFile, "log-file", def.LogFile, "log file path")
	fs.StringVar(&f.LogLevel, "log-level", def.LogLevel, "log level: debug|info|warn|error")
	fs.StringVarP(&f.Sort, "sort", "s", def.Sort, "process table order: cpu|mem")
	fs.StringVar(&f.Filter, "filter", "", "only show processes whose name or command matches this regex")
	f.fs = fs
}

// Resolve builds the effective configuration: defaults, then the config
// file, then HOSTWATCH_* variables, then explicitly set flags. The returned
// error describes inputs that were ignored; the Config is always usable.
func (f *Flags) Resolve() (Config, error) {
	cfg, fileErr := Load(f.ConfigPath)
	envErr := readEnvironment(&cfg)

	if f.fs != nil {
		if f.fs.Changed("interval") {
			cfg.UpdateInterval = f.UpdateInterval
		}
		if f.fs.Changed("process-interval") {
			cfg.ProcessInterval = f.ProcessInterval
		}
		if f.fs.Changed("gpu") {
			cfg.EnableGPU = f.GPU
		}
		if f.fs.Changed("battery") {
			cfg.EnableBatt = f.Battery
		}
		if f.fs.Changed("log-file") {
			cfg.LogFile = f.LogFile
		}
		if f.fs.Changed("log-level") {
			cfg.LogLevel = f.LogLevel
		}
		if f.fs.Changed("sort") {
			cfg.Sort = f.Sort
		}
		if f.fs.Changed("filter") {
			cfg.Filter = f.Filter
		}
	}
	cfg.normalize()
	viewErr := cfg.checkProcessView()
	return cfg, errors.Join(fileErr, envErr, viewErr)
}
