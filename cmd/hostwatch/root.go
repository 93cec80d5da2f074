package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Dicklesworthstone/hostwatch/internal/config"
	"github.com/Dicklesworthstone/hostwatch/internal/logging"
	"github.com/Dicklesworthstone/hostwatch/internal/monitor"
	"github.com/Dicklesworthstone/hostwatch/internal/ui"
)

var flags config.Flags

var rootCmd = &cobra.Command{
	Use:   "hostwatch",
	Short: "Terminal dashboard for CPU, memory, disk, network, process, GPU and battery telemetry",
	Long: `hostwatch samples local OS counters on a fixed cadence, turns them into
rates, and shows them on a live dashboard. Alerts are raised while CPU, memory,
root disk usage or a GPU temperature is above its threshold.

Settings come from the config file, HOSTWATCH_* environment variables and
flags, in increasing order of precedence. Logs go to the configured log file.`,
	SilenceUsage: true,
	RunE:         runDashboard,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	flags.Bind(rootCmd.PersistentFlags())
}

// session is a started monitor plus the logging it writes to.
type session struct {
	mon    *monitor.Monitor
	log    *zap.SugaredLogger
	recent *logging.Recent
	view   ui.Options
}

// settings resolves the configuration. The error lists inputs that were
// replaced by defaults, including a log level the logger does not know.
func settings() (config.Config, error) {
	cfg, err := flags.Resolve()
	if _, lerr := logging.ParseLevel(cfg.LogLevel); lerr != nil {
		err = errors.Join(err, lerr)
	}
	return cfg, err
}

func start(ctx context.Context) (*session, error) {
	cfg, cfgErr := settings()
	log, recent, err := logging.New(logging.Options{File: cfg.LogFile, Level: cfg.LogLevel})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfgErr != nil {
		log.Warnf("ignoring invalid settings: %v", cfgErr)
	}

	mon, err := monitor.New(ctx, cfg, log, monitor.HostSources(cfg))
	if err != nil {
		log.Errorf("cannot start monitor: %v", err)
		_ = log.Sync()
		return nil, err
	}
	return &session{mon: mon, log: log, recent: recent, view: ui.Options{Sort: cfg.Sort, Filter: cfg.Filter}}, nil
}

func runDashboard(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := start(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = s.log.Sync() }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.mon.Run(gctx) })
	g.Go(func() error {
		defer cancel()
		return ui.RunTUI(gctx, s.mon, s.recent, s.view)
	})
	err = g.Wait()
	s.log.Infof("hostwatch stopped")
	return err
}
