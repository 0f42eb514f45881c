package main

import (
	"github.com/spf13/cobra"
)

var cleanupJobsCmd = &cobra.Command{
	Use:   "cleanup-jobs",
	Short: "Remove old finished jobs and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCleanup(cmd)
	},
}

func init() {
	cleanupJobsCmd.Flags().Int("max-job-age", 7, "maximum age in days of a job to keep")
}
