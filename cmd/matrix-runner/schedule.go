package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	rerrors "github.com/cicd-ai-toolkit/matrix-runner/pkg/errors"
	"github.com/cicd-ai-toolkit/matrix-runner/pkg/trigger"
)

// scheduleCmd lists upcoming scheduled runs.
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Show the next scheduled runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		policy, err := trigger.NewPolicy(cfg.On)
		if err != nil {
			return rerrors.ConfigError("parse triggers", err)
		}

		runs := policy.NextRuns(time.Now().UTC(), scheduleOpts.count)
		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no schedule declared")
			return nil
		}
		for _, r := range runs {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", r.At.Format(time.RFC3339), r.Cron)
		}
		return nil
	},
}

var scheduleOpts struct {
	count int
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
	scheduleCmd.Flags().IntVarP(&scheduleOpts.count, "count", "n", 5, "Number of runs to show")
}
