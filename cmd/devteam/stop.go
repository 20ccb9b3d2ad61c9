package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/devteam/internal/notify"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Cancel the running solve",
	Long: `Stop writes a kill file into the signals directory (signals.dir).
A solve started from the same directory notices it, cancels every subtask
still in flight and reports the solve as canceled.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := notify.Kill(cfg.Signals.Dir); err != nil {
			return fmt.Errorf("write kill signal: %w", err)
		}
		printStatus(cmd.OutOrStdout(), "✓", "Kill signal sent", color.FgGreen)
		return nil
	},
}
