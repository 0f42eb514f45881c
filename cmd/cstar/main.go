// Command cstar runs an operator-supplied command across the nodes of a
// Cassandra cluster, one topology-aware batch at a time.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cstarhq/cstar/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cstar",
	Short: "Run a command across a Cassandra cluster",
	Long: `cstar runs an operator-supplied shell command across the nodes of a
Cassandra cluster, one topology-aware batch at a time, so that only nodes
without overlapping data ranges ever run the command concurrently.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("cstar version %s (%s)\n", Version, Commit))

	rootCmd.PersistentFlags().CountP("verbose", "v", "increase command output verbosity")
	rootCmd.PersistentFlags().Bool("log-json", false, "output logs in JSON format")
	rootCmd.PersistentFlags().String("metrics-addr", "", "if set, serve Prometheus metrics on this address for the life of the job")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(continueCmd)
	rootCmd.AddCommand(cleanupJobsCmd)
	registerCommandSubcommands()
}

func initLogging() {
	verbosity, _ := rootCmd.PersistentFlags().GetCount("verbose")
	jsonOutput, _ := rootCmd.PersistentFlags().GetBool("log-json")

	level := log.InfoLevel
	if verbosity > 0 {
		level = log.DebugLevel
	}
	log.Init(log.Config{Level: level, JSONOutput: jsonOutput})
}
