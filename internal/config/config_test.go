package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func setEnvAndRun(t *testing.T, env map[string]string, fn func()) {
	t.Helper()

	backup := map[string]string{}
	for k := range env {
		if v, ok := os.LookupEnv(k); ok {
			backup[k] = v
		}
	}

	for k, v := range env {
		require.NoError(t, os.Setenv(k, v))
	}
	defer func() {
		for k := range env {
			_ = os.Unsetenv(k)
			if old, ok := backup[k]; ok {
				_ = os.Setenv(k, old)
			}
		}
	}()

	fn()
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.Equal(t, 2*time.Second, cfg.UpdateInterval)
	require.Equal(t, time.Second, cfg.ProcessInterval)
	require.Equal(t, Thresholds{CPU: 80, Memory: 80, Disk: 90, GPUTemp: 80}, cfg.Thresholds)
	require.True(t, cfg.EnableGPU)
	require.True(t, cfg.EnableBatt)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)

	cfg, err = Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoad_PartialFile(t *testing.T) {
	path := writeFile(t, "update_interval_ms: 500\ncpu_threshold: 95.5\ngpu: false\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 500*time.Millisecond, cfg.UpdateInterval)
	require.Equal(t, time.Second, cfg.ProcessInterval)
	require.Equal(t, 95.5, cfg.Thresholds.CPU)
	require.Equal(t, 80.0, cfg.Thresholds.Memory)
	require.False(t, cfg.EnableGPU)
	require.True(t, cfg.EnableBatt)
}

func TestLoad_NonPositiveIntervals(t *testing.T) {
	path := writeFile(t, "update_interval_ms: 0\nprocess_interval_ms: -5\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, cfg.UpdateInterval)
	require.Equal(t, time.Second, cfg.ProcessInterval)
}

func TestLoad_BrokenFile(t *testing.T) {
	path := writeFile(t, "update_interval_ms: [oops\n")
	cfg, err := Load(path)
	require.Error(t, err)
	require.Equal(t, Default(), cfg)
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.UpdateInterval = 750 * time.Millisecond
	cfg.Thresholds.Disk = 70
	cfg.EnableBatt = false

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, cfg.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "update_interval_ms: 750")
	require.Contains(t, string(data), "disk_threshold: 70")

	got, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, got)
}

func TestReadEnvironment(t *testing.T) {
	env := map[string]string{
		"HOSTWATCH_UPDATE_INTERVAL_MS":  "250",
		"HOSTWATCH_PROCESS_INTERVAL_MS": "3s",
		"HOSTWATCH_CPU_THRESHOLD":       "50",
		"HOSTWATCH_GPU":                 "0",
		"HOSTWATCH_LOG_LEVEL":           "debug",
	}

	setEnvAndRun(t, env, func() {
		cfg := Default()
		require.NoError(t, readEnvironment(&cfg))

		require.Equal(t, 250*time.Millisecond, cfg.UpdateInterval)
		require.Equal(t, 3*time.Second, cfg.ProcessInterval)
		require.Equal(t, 50.0, cfg.Thresholds.CPU)
		require.False(t, cfg.EnableGPU)
		require.True(t, cfg.EnableBatt)
		require.Equal(t, "debug", cfg.LogLevel)
	})
}

func TestReadEnvironment_InvalidValuesSkipped(t *testing.T) {
	env := map[string]string{
		"HOSTWATCH_DISK_THRESHOLD": "high",
		"HOSTWATCH_BATTERY":        "maybe",
	}

	setEnvAndRun(t, env, func() {
		cfg := Default()
		err := readEnvironment(&cfg)
		require.ErrorContains(t, err, "HOSTWATCH_DISK_THRESHOLD")
		require.ErrorContains(t, err, "HOSTWATCH_BATTERY")
		require.Equal(t, 90.0, cfg.Thresholds.Disk)
		require.True(t, cfg.EnableBatt)
	})
}

func TestFlagsResolve_Precedence(t *testing.T) {
	path := writeFile(t, "update_interval_ms: 5000\nprocess_interval_ms: 4000\nlog_file: file.log\n")

	setEnvAndRun(t, map[string]string{"HOSTWATCH_PROCESS_INTERVAL_MS": "1500"}, func() {
		var f Flags
		fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
		f.Bind(fs)
		require.NoError(t, fs.Parse([]string{"--config", path, "--interval", "300ms", "--battery=false"}))

		cfg, err := f.Resolve()
		require.NoError(t, err)
		require.Equal(t, 300*time.Millisecond, cfg.UpdateInterval)
		require.Equal(t, 1500*time.Millisecond, cfg.ProcessInterval)
		require.Equal(t, "file.log", cfg.LogFile)
		require.False(t, cfg.EnableBatt)
		require.True(t, cfg.EnableGPU)
	})
}

func TestFlagsResolve_ProcessView(t *testing.T) {
	path := writeFile(t, "sort: mem\nfilter: ^ssh\n")

	var f Flags
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f.Bind(fs)
	require.NoError(t, fs.Parse([]string{"--config", path}))
	cfg, err := f.Resolve()
	require.NoError(t, err)
	require.Equal(t, SortMemory, cfg.Sort)
	require.Equal(t, "^ssh", cfg.Filter)

	setEnvAndRun(t, map[string]string{"HOSTWATCH_SORT": "cpu"}, func() {
		require.NoError(t, fs.Parse([]string{"--filter", "python|node"}))
		cfg, err := f.Resolve()
		require.NoError(t, err)
		require.Equal(t, SortCPU, cfg.Sort)
		require.Equal(t, "python|node", cfg.Filter)
	})
}

func TestFlagsResolve_BadProcessViewIsReset(t *testing.T) {
	var f Flags
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f.Bind(fs)
	require.NoError(t, fs.Parse([]string{
		"--config", filepath.Join(t.TempDir(), "none.yaml"),
		"--sort", "pid", "--filter", "([",
	}))

	cfg, err := f.Resolve()
	require.ErrorContains(t, err, `unknown sort "pid"`)
	require.ErrorContains(t, err, "invalid filter")
	require.Equal(t, SortCPU, cfg.Sort)
	require.Empty(t, cfg.Filter)
}
