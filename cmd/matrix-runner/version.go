package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cicd-ai-toolkit/matrix-runner/pkg/version"
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long:  `Display detailed version information including build date, git commit, and Go version.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		info := version.Info()
		fmt.Fprintf(out, "matrix-runner version: %s\n", info["version"])
		fmt.Fprintf(out, "  build date: %s\n", info["buildDate"])
		fmt.Fprintf(out, "  git commit: %s\n", info["gitCommit"])
		fmt.Fprintf(out, "  go version: %s\n", info["goVersion"])
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
