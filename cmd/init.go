package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/tgmirror/internal/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write an example configuration file",
	RunE:  runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing config file")
}

func runInit(cmd *cobra.Command, _ []string) error {
	if _, err := os.Stat(cfgPath); err == nil && !initForce {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", cfgPath)
	}

	cfg := config.ExampleConfig()
	if err := config.Save(&cfg, cfgPath); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Created config at %s\n", cfgPath)
	fmt.Fprintf(out, "\n%s Next steps:\n", logo)
	fmt.Fprintf(out, "  1. Set bot_token in %s (or export %s)\n", cfgPath, config.TokenEnv)
	fmt.Fprintln(out, "  2. Add the bot to every source and destination chat")
	fmt.Fprintln(out, "  3. Check the mappings: tgmirror resolve")
	fmt.Fprintln(out, "  4. Start mirroring:    tgmirror run")
	return nil
}
