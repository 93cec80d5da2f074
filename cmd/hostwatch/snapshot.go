package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Dicklesworthstone/hostwatch/internal/model"
)

var streamSnapshots bool

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Print one JSON snapshot, or stream NDJSON with --stream",
	Long: `snapshot runs the samplers without the dashboard. The first snapshot is
printed after one full update interval so that rates are populated.

Examples:
  hostwatch snapshot                  # one pretty-printed JSON document
  hostwatch snapshot --stream         # one JSON line per pass until interrupted
  hostwatch snapshot -i 500ms --gpu=false`,
	Args: cobra.NoArgs,
	RunE: runSnapshot,
}

func init() {
	snapshotCmd.Flags().BoolVar(&streamSnapshots, "stream", false, "stream NDJSON until interrupted")
	rootCmd.AddCommand(snapshotCmd)
}

func runSnapshot(cmd *cobra.Command, _ []string) error {
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
		return printSnapshots(gctx, cmd.OutOrStdout(), s.mon.Updates(), streamSnapshots)
	})
	return g.Wait()
}

// printSnapshots writes snapshots from updates to w. The first pass only
// primes rates, so output starts at the second. Without stream it returns
// after one snapshot.
func printSnapshots(ctx context.Context, w io.Writer, updates <-chan *model.Snapshot, stream bool) error {
	enc := json.NewEncoder(w)
	if !stream {
		enc.SetIndent("", "  ")
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap := <-updates:
			if snap.Seq < 2 {
				continue
			}
			if err := enc.Encode(snap); err != nil {
				return err
			}
			if !stream {
				return nil
			}
		}
	}
}
