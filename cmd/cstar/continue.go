package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cstarhq/cstar/pkg/executor"
	"github.com/cstarhq/cstar/pkg/journal"
	"github.com/cstarhq/cstar/pkg/log"
	"github.com/cstarhq/cstar/pkg/supervisor"
)

var continueCmd = &cobra.Command{
	Use:   "continue <job-id>",
	Short: "Continue a previously created job",
	Args:  cobra.ExactArgs(1),
	RunE:  runContinue,
}

func init() {
	continueCmd.Flags().Bool("retry-failed", false, "retry nodes that failed last time")
	addCommonFlags(continueCmd)
	addSSHFlags(continueCmd)
	addJMXFlags(continueCmd)
}

func runContinue(cmd *cobra.Command, args []string) error {
	maybeServeMetrics(cmd)

	jobID := args[0]
	retryFailed, _ := cmd.Flags().GetBool("retry-failed")
	maxJobAge, _ := cmd.Flags().GetInt("max-job-age")
	outputDirectory, _ := cmd.Flags().GetString("output-directory")
	stopAfter, _ := cmd.Flags().GetInt("stop-after")

	dir, err := journal.Dir(jobID, outputDirectory)
	if err != nil {
		return err
	}

	rec, err := journal.Read(dir, journal.ReadOptions{MaxAgeDays: maxJobAge, RetryFailed: retryFailed})
	if err != nil {
		return err
	}

	log.Info(fmt.Sprintf("resuming job %s", jobID))
	log.Info(fmt.Sprintf("running %v", rec.Command))

	sshCfg := sshConfigFromFlags(cmd)
	// ssh flags on continue override what was journaled, same as upstream
	// lets an operator fix broken credentials before resuming. Passwords
	// are never journaled, so they come only from these flags.
	if sshCfg.Username != "" {
		rec.SSHUsername = sshCfg.Username
	}
	if sshCfg.Password != "" {
		rec.SSHPassword = sshCfg.Password
	}
	if sshCfg.IdentityFile != "" {
		rec.SSHIdentityFile = sshCfg.IdentityFile
	}

	jmxUsername, _ := cmd.Flags().GetString("jmx-username")
	jmxPassword, _ := cmd.Flags().GetString("jmx-password")
	if jmxUsername != "" {
		rec.JMXUsername = jmxUsername
	}
	if jmxPassword != "" {
		rec.JMXPassword = jmxPassword
	}

	cfg := supervisor.Config{
		JobID:           jobID,
		OutputDirectory: dir,
		IgnoreDownNodes: rec.State.IgnoreDownNodes,
	}
	dialCfg := executor.Config{Username: rec.SSHUsername, Password: rec.SSHPassword, IdentityFile: rec.SSHIdentityFile}

	sup, err := supervisor.Resume(cmdContext(), rec, cfg, newDialer(dialCfg), stopAfter, retryFailed)
	if err != nil {
		return err
	}
	return runSupervisor(sup, jobID)
}
