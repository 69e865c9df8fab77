package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/tgmirror/internal/config"
	"github.com/crystaldolphin/tgmirror/internal/schema"
	"github.com/crystaldolphin/tgmirror/internal/shared/stringutils"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration summary",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s tgmirror Status\n\n", logo)

	_, statErr := os.Stat(cfgPath)
	cfgMark := "✗"
	if statErr == nil {
		cfgMark = "✓"
	}
	fmt.Fprintf(out, "Config:    %s %s\n", cfgPath, cfgMark)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(out, "  (could not load config: %v)\n", err)
		return nil
	}

	fmt.Fprintf(out, "Token:     %s\n", stringutils.Hint(cfg.BotToken))
	fmt.Fprintf(out, "Session:   %s\n", cfg.SessionName)
	if cfg.APIEndpoint != "" {
		fmt.Fprintf(out, "Endpoint:  %s\n", cfg.APIEndpoint)
	}

	mappings := cfg.Mappings()
	fmt.Fprintf(out, "\nMappings (%d):\n", len(mappings))
	for _, m := range mappings {
		fmt.Fprintf(out, "  %-20s → %s\n", m.Source, stringutils.Join(m.Destinations))
	}

	keywords := "(none, all messages)"
	if len(cfg.Keywords) > 0 {
		keywords = strings.Join(cfg.Keywords, ", ")
	}
	fmt.Fprintf(out, "\nKeywords:  %s\n", keywords)
	fmt.Fprintf(out, "Pacing:    %s between sends, +%s on rate limits\n", cfg.Delay(), cfg.RateLimitMargin())
	fmt.Fprintf(out, "Retry:     %s\n", cfg.RetryDelay())

	schedule := cfg.StatsSchedule
	if schedule == "" {
		schedule = "(disabled)"
	}
	fmt.Fprintf(out, "Stats:     %s\n", schedule)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(out, "\n✗ %v\n", err)
	}
	return nil
}

func joinIDs(ids []schema.ResolvedID) string {
	return stringutils.Join(ids)
}
