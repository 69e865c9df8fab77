package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/tgmirror/internal/dependency"
)

var resolveJSON bool

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve the configured mappings once and print the routing table",
	RunE:  runResolve,
}

func init() {
	resolveCmd.Flags().BoolVar(&resolveJSON, "json", false, "Print the table as JSON")
}

func runResolve(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg, cmd.ErrOrStderr())

	c, err := dependency.New(cfg, log)
	if err != nil {
		return fmt.Errorf("build services: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := c.Client()
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Disconnect()

	table := c.Resolver().Resolve(ctx, c.Mappings())
	out := cmd.OutOrStdout()
	if resolveJSON {
		data, err := json.MarshalIndent(table, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal table: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	if table.Len() == 0 {
		fmt.Fprintln(out, "✗ No mappings resolved")
		return nil
	}
	fmt.Fprintf(out, "✓ Resolved %d of %d source(s)\n", table.Len(), len(c.Mappings()))
	for _, src := range table.Sources() {
		fmt.Fprintf(out, "  %-16s → %s\n", src, joinIDs(table.Destinations(src)))
	}
	return nil
}
