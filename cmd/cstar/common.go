package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cstarhq/cstar/pkg/adjacency"
	"github.com/cstarhq/cstar/pkg/cleanup"
	"github.com/cstarhq/cstar/pkg/executor"
	"github.com/cstarhq/cstar/pkg/healthprobe"
	"github.com/cstarhq/cstar/pkg/hostvars"
	"github.com/cstarhq/cstar/pkg/interrupt"
	"github.com/cstarhq/cstar/pkg/log"
	"github.com/cstarhq/cstar/pkg/metrics"
	"github.com/cstarhq/cstar/pkg/supervisor"
)

// addCommonFlags registers the flags every subcommand that runs or resumes
// a job accepts.
func addCommonFlags(cmd *cobra.Command) {
	cmd.Flags().Int("stop-after", 0, "stop the job after this many hosts (0 means run to completion)")
	cmd.Flags().String("output-directory", "", "output location for job log (defaults to ~/.cstar/jobs/<job-id>)")
	cmd.Flags().Bool("ignore-down-nodes", false, "run the command even if there are down nodes in the cluster")
	cmd.Flags().String("enforced-job-id", "", "force the job id value to ease external tracking")
	cmd.Flags().Int("max-job-age", 7, "maximum age in days of a job to resume")
}

// addDestinationFlags registers the flags that say which hosts to target.
func addDestinationFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("seed-host", nil, "one or more hosts to use as seeds for the cluster topology")
	cmd.Flags().StringSlice("host", nil, "one or more hosts to run the command on")
	cmd.Flags().String("host-file", "", "a file containing one or more hosts to run the command on (newline separated)")
	cmd.Flags().Float64("ssh-pause-time", 0.5, "time to pause between establishing new ssh connections")
	cmd.Flags().Float64("node-done-pause-time", 0, "time to pause between a node finishing and the next node starting")
	cmd.Flags().String("ssh-lib", "ssh", "ssh library to use for remote connections")
	cmd.Flags().String("hosts-variables", "", "a YAML file of per-host environment variable overrides")
	cmd.Flags().String("adjacency-cache", "", "path to a bbolt file caching replica-adjacency graphs between runs")
}

// addStrategyFlags registers the flags that shape how hosts are scheduled.
func addStrategyFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("max-concurrency", "j", 0, "maximum number of hosts to run the job on concurrently (0 means unlimited)")
	cmd.Flags().Duration("timeout", 0, "maximum time to run on one host before considering the job failed")
	cmd.Flags().String("strategy", "", "dispatch strategy: one, topology, or all")
	cmd.Flags().Bool("cluster-parallel", false, "run on all clusters in parallel")
	cmd.Flags().Bool("dc-parallel", false, "run on all datacenters of a cluster in parallel")
	cmd.Flags().String("dc-filter", "", "only run on hosts belonging to the specified datacenter")
	cmd.Flags().String("key-space", "", "the keyspace to use for endpoint mapping (uses all keyspaces by default)")
}

// addSSHFlags registers ssh credential flags.
func addSSHFlags(cmd *cobra.Command) {
	cmd.Flags().String("ssh-username", "", "username for ssh connections")
	cmd.Flags().String("ssh-password", "", "password for ssh connections")
	cmd.Flags().String("ssh-identity-file", "", "identity file for ssh connections")
}

// addJMXFlags registers JMX credential flags.
func addJMXFlags(cmd *cobra.Command) {
	cmd.Flags().String("jmx-username", "", "JMX username")
	cmd.Flags().String("jmx-password", "", "JMX password")
}

// resolveHosts enforces that exactly one of --seed-host, --host and
// --host-file was given, and returns the explicit host list (nil when
// seeding instead) plus the seed list.
func resolveHosts(cmd *cobra.Command) (hosts, seedHosts []string, err error) {
	seedHosts, _ = cmd.Flags().GetStringSlice("seed-host")
	hosts, _ = cmd.Flags().GetStringSlice("host")
	hostFile, _ := cmd.Flags().GetString("host-file")

	count := 0
	if len(seedHosts) > 0 {
		count++
	}
	if len(hosts) > 0 {
		count++
	}
	if hostFile != "" {
		count++
	}
	if count != 1 {
		return nil, nil, fmt.Errorf("exactly one of --seed-host, --host and --host-file must be used")
	}

	if hostFile != "" {
		hosts, err = readHostsFile(hostFile)
		if err != nil {
			return nil, nil, err
		}
	}
	return hosts, seedHosts, nil
}

func readHostsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read host file: %w", err)
	}
	defer f.Close()

	var hosts []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		hosts = append(hosts, line)
	}
	return hosts, scanner.Err()
}

func sshConfigFromFlags(cmd *cobra.Command) executor.Config {
	username, _ := cmd.Flags().GetString("ssh-username")
	password, _ := cmd.Flags().GetString("ssh-password")
	identityFile, _ := cmd.Flags().GetString("ssh-identity-file")
	return executor.Config{Username: username, Password: password, IdentityFile: identityFile}
}

func loadHostsVariables(cmd *cobra.Command) (hostvars.Variables, error) {
	path, _ := cmd.Flags().GetString("hosts-variables")
	if path == "" {
		return nil, nil
	}
	return hostvars.Load(path)
}

func openAdjacencyCache(cmd *cobra.Command) (*adjacency.Cache, error) {
	path, _ := cmd.Flags().GetString("adjacency-cache")
	if path == "" {
		return nil, nil
	}
	return adjacency.OpenCache(path)
}

// newDialer builds the Executor factory the supervisor uses to open a
// connection to a given host IP.
func newDialer(sshCfg executor.Config) healthprobe.Dialer {
	return func(hostname string) (executor.Executor, error) {
		return executor.New(hostname, sshCfg)
	}
}

func newJobID(cmd *cobra.Command) string {
	enforced, _ := cmd.Flags().GetString("enforced-job-id")
	if enforced != "" {
		return enforced
	}
	return uuid.NewString()
}

// runSupervisor installs the sigint handler, then drives a job to
// completion, closing connections and reporting a non-zero failure count
// as an error for the caller to translate into an exit code.
func runSupervisor(sup *supervisor.Supervisor, jobID string) error {
	handle := interrupt.NotifyOnSigint(jobID, sup.SaveJournal)
	defer handle.Stop()
	defer sup.Close()

	if err := sup.Run(cmdContext()); err != nil {
		return err
	}

	if errs := sup.Errors(); len(errs) > 0 {
		log.Warn(fmt.Sprintf("job %s finished with %d failed host(s)", jobID, len(errs)))
		return fmt.Errorf("job %s finished with %d failed host(s)", jobID, len(errs))
	}
	return nil
}

// cmdContext is the base context for a job run. cstar jobs are driven from
// a single foreground invocation, so there is no server lifecycle to tie
// this to; SIGINT is handled separately by pkg/interrupt.
func cmdContext() context.Context {
	return context.Background()
}

// maybeServeMetrics starts a background Prometheus endpoint for the
// duration of the process if --metrics-addr was given. A long topology
// strategy run against a large cluster can take hours; scraping it while
// it's in flight is more useful than only seeing totals after the fact.
func maybeServeMetrics(cmd *cobra.Command) {
	addr, _ := cmd.Flags().GetString("metrics-addr")
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/healthz", metrics.HealthHandler())
	mux.Handle("/readyz", metrics.ReadyHandler())
	mux.Handle("/livez", metrics.LivenessHandler())
	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("metrics server stopped", err)
		}
	}()
}

func runCleanup(cmd *cobra.Command) error {
	maxDays, _ := cmd.Flags().GetInt("max-job-age")
	dir, err := cleanup.DefaultJobsDir()
	if err != nil {
		return err
	}
	return cleanup.Run(dir, maxDays)
}
