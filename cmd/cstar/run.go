package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cstarhq/cstar/pkg/command"
	"github.com/cstarhq/cstar/pkg/log"
	"github.com/cstarhq/cstar/pkg/supervisor"
)

// registerCommandSubcommands adds one subcommand per available command
// definition (builtin or found on the command search path), mirroring
// upstream's dynamic argparse subparser generation.
func registerCommandSubcommands() {
	names := command.List()
	sort.Strings(names)

	for _, name := range names {
		def, err := command.Load(name)
		if err != nil {
			log.Warn(fmt.Sprintf("skipping command %q: %v", name, err))
			continue
		}
		rootCmd.AddCommand(buildCommandCmd(def))
	}
}

func buildCommandCmd(def command.Command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   def.Name,
		Short: def.Description,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommandJob(cmd, def)
		},
	}

	addDestinationFlags(cmd)
	addStrategyFlags(cmd)
	addCommonFlags(cmd)
	addSSHFlags(cmd)
	addJMXFlags(cmd)

	for _, arg := range def.Arguments {
		cmd.Flags().String(arg.Name, arg.Default, arg.Description)
		if arg.Required {
			_ = cmd.MarkFlagRequired(arg.Name)
		}
	}

	return cmd
}

func runCommandJob(cmd *cobra.Command, def command.Command) error {
	maybeServeMetrics(cmd)

	hosts, seedHosts, err := resolveHosts(cmd)
	if err != nil {
		return err
	}

	env := map[string]string{}
	for _, arg := range def.Arguments {
		value, _ := cmd.Flags().GetString(arg.Name)
		env[arg.Name] = value
	}

	cliStrategy, _ := cmd.Flags().GetString("strategy")
	strat, err := command.ParseStrategy(cliStrategy, def.Strategy)
	if err != nil {
		return err
	}

	clusterParallel, _ := cmd.Flags().GetBool("cluster-parallel")
	if !cmd.Flags().Changed("cluster-parallel") && def.ClusterParallel != nil {
		clusterParallel = *def.ClusterParallel
	}
	dcParallel, _ := cmd.Flags().GetBool("dc-parallel")
	if !cmd.Flags().Changed("dc-parallel") && def.DCParallel != nil {
		dcParallel = *def.DCParallel
	}

	maxConcurrency, _ := cmd.Flags().GetInt("max-concurrency")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	stopAfter, _ := cmd.Flags().GetInt("stop-after")
	outputDirectory, _ := cmd.Flags().GetString("output-directory")
	ignoreDownNodes, _ := cmd.Flags().GetBool("ignore-down-nodes")
	dcFilter, _ := cmd.Flags().GetString("dc-filter")
	keySpace, _ := cmd.Flags().GetString("key-space")
	sshPauseTime, _ := cmd.Flags().GetFloat64("ssh-pause-time")
	nodeDonePauseTime, _ := cmd.Flags().GetFloat64("node-done-pause-time")
	sshLib, _ := cmd.Flags().GetString("ssh-lib")

	jmxUsername, _ := cmd.Flags().GetString("jmx-username")
	jmxPassword, _ := cmd.Flags().GetString("jmx-password")

	hostsVariables, err := loadHostsVariables(cmd)
	if err != nil {
		return err
	}
	adjacencyCache, err := openAdjacencyCache(cmd)
	if err != nil {
		return err
	}
	if adjacencyCache != nil {
		defer adjacencyCache.Close()
	}

	sshCfg := sshConfigFromFlags(cmd)
	jobID := newJobID(cmd)
	if parsed, err := uuid.Parse(jobID); err != nil || parsed.Version() != 4 || parsed.String() != jobID {
		return fmt.Errorf("job id %q is not a canonical version 4 uuid", jobID)
	}

	log.Info(fmt.Sprintf("job id is %s", jobID))
	log.Info(fmt.Sprintf("running %s", def.File))

	cfg := supervisor.Config{
		Hosts:            hosts,
		SeedHosts:        seedHosts,
		DCFilter:         dcFilter,
		Command:          []string{def.Script},
		JobID:            jobID,
		Strategy:         strat,
		ClusterParallel:  clusterParallel,
		DCParallel:       dcParallel,
		MaxConcurrency:   maxConcurrency,
		Timeout:          timeout,
		Env:              env,
		StopAfter:        stopAfter,
		KeySpace:         keySpace,
		OutputDirectory:  outputDirectory,
		IgnoreDownNodes:  ignoreDownNodes,
		SleepOnNewRunner: secondsToDuration(sshPauseTime),
		SleepAfterDone:   secondsToDuration(nodeDonePauseTime),
		SSH:              sshCfg,
		SSHLib:           sshLib,
		JMXUsername:      jmxUsername,
		JMXPassword:      jmxPassword,
		HostsVariables:   hostsVariables,
		AdjacencyCache:   adjacencyCache,
	}

	sup := supervisor.New(cfg, newDialer(sshCfg))
	if err := sup.Setup(cmdContext()); err != nil {
		return err
	}
	return runSupervisor(sup, jobID)
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
