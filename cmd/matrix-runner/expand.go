package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/cicd-ai-toolkit/matrix-runner/pkg/matrix"
	"github.com/cicd-ai-toolkit/matrix-runner/pkg/observability"
)

// expandCmd prints the job instances a run would create.
var expandCmd = &cobra.Command{
	Use:   "expand",
	Short: "Show the job instances of the workflow matrix",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		jobs, secrets, err := expandJobs(cfg, expandOpts.variants, newLogger(cfg, cmd.ErrOrStderr()))
		if err != nil {
			return err
		}
		if !expandOpts.json {
			printJobs(cmd.OutOrStdout(), cfg, jobs, cfg.Scenarios, secrets.Names())
			return nil
		}

		type jobView struct {
			ID       string   `json:"id"`
			Index    int      `json:"index"`
			Variant  string   `json:"variant"`
			Artifact string   `json:"artifact"`
			Env      []string `json:"env"`
		}
		views := make([]jobView, 0, len(jobs))
		for _, j := range jobs {
			views = append(views, jobView{
				ID:       j.ID(),
				Index:    j.Index(),
				Variant:  j.Variant(),
				Artifact: j.ArtifactName(cfg.Artifacts.Prefix),
				Env:      matrix.Describe(j, secrets.Names()),
			})
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(views); err != nil {
			newLogger(cfg, cmd.ErrOrStderr()).Error("encode jobs", observability.Err(err))
			return err
		}
		return nil
	},
}

type expandFlags struct {
	variants []string
	json     bool
}

var expandOpts expandFlags

func init() {
	rootCmd.AddCommand(expandCmd)

	expandCmd.Flags().StringSliceVarP(&expandOpts.variants, "variant", "V", nil, "Show only these variants")
	expandCmd.Flags().BoolVar(&expandOpts.json, "json", false, "Print JSON")
}
