package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/crystaldolphin/tgmirror/internal/dependency"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start mirroring until interrupted",
	RunE:  runMirror,
}

func runMirror(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg, cmd.ErrOrStderr())

	c, err := dependency.New(cfg, log)
	if err != nil {
		return fmt.Errorf("build services: %w", err)
	}

	// Graceful shutdown context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.Supervisor().Run(gctx) })
	g.Go(func() error { return c.Heartbeat().Start(gctx) })

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s Mirroring %d mapping(s). Press Ctrl+C to stop.\n", logo, len(c.Mappings()))
	if kw := c.Filter().Keywords(); len(kw) > 0 {
		fmt.Fprintf(out, "Keywords: %s\n", strings.Join(kw, ", "))
	}
	if !c.Heartbeat().Enabled() {
		fmt.Fprintln(out, "Stats reports: disabled")
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	snap := c.Stats().Snapshot()
	sup := c.Supervisor()
	fmt.Fprintf(out, "\nShutdown complete. Mirrored %d message(s), %d failed.\n", snap.Mirrored, snap.Failed+snap.Denied)
	fmt.Fprintf(out, "Connection cycles: %d, last routing table: %s\n", sup.Cycles(), sup.Table())
	return nil
}
