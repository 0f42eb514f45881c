// Package supervisor runs the main event loop of a job: dispatching a
// command to eligible hosts, waiting for completions, rechecking cluster
// health, and journaling progress so an interrupted run can resume.
package supervisor

import (
	"context"
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cstarhq/cstar/pkg/adjacency"
	"github.com/cstarhq/cstar/pkg/cstarerr"
	"github.com/cstarhq/cstar/pkg/executor"
	"github.com/cstarhq/cstar/pkg/healthprobe"
	"github.com/cstarhq/cstar/pkg/hostvars"
	"github.com/cstarhq/cstar/pkg/journal"
	"github.com/cstarhq/cstar/pkg/log"
	"github.com/cstarhq/cstar/pkg/metrics"
	"github.com/cstarhq/cstar/pkg/state"
	"github.com/cstarhq/cstar/pkg/strategy"
	"github.com/cstarhq/cstar/pkg/topology"
)

// Config is everything needed to set up a brand new job.
type Config struct {
	Hosts            []string
	SeedHosts        []string
	DCFilter         string
	Command          []string
	JobID            string
	Strategy         strategy.Strategy
	ClusterParallel  bool
	DCParallel       bool
	MaxConcurrency   int
	Timeout          time.Duration
	Env              map[string]string
	StopAfter        int
	KeySpace         string
	OutputDirectory  string
	IgnoreDownNodes  bool
	SleepOnNewRunner time.Duration
	SleepAfterDone   time.Duration
	SSH              executor.Config
	SSHLib           string
	JMXUsername      string
	JMXPassword      string
	HostsVariables   hostvars.Variables
	AdjacencyCache   *adjacency.Cache
}

type hostOutcome struct {
	host   topology.Host
	result executor.ExecutionResult
	err    error
}

// Supervisor runs one job: an invocation of a single command across the
// hosts its strategy allows.
type Supervisor struct {
	cfg   Config
	probe *healthprobe.Probe
	dial  healthprobe.Dialer

	state state.State

	mu          sync.Mutex
	connections map[string]executor.Executor

	results chan hostOutcome
	errors  []hostOutcome
	doLoop  bool

	logger zerolog.Logger
}

// New builds a Supervisor. dial opens an Executor for a given host IP;
// production callers pass executor.New wrapped with cfg.SSH, tests pass a
// fake.
func New(cfg Config, dial healthprobe.Dialer) *Supervisor {
	return &Supervisor{
		cfg: cfg,
		probe: &healthprobe.Probe{
			Dial:        dial,
			JMXUsername: cfg.JMXUsername,
			JMXPassword: cfg.JMXPassword,
		},
		dial:        dial,
		connections: map[string]executor.Executor{},
		results:     make(chan hostOutcome, 64),
		logger:      log.WithJob(cfg.JobID),
	}
}

// Setup discovers the cluster topology, builds the adjacency graph (when
// the strategy needs one) and writes the initial journal.
func (s *Supervisor) Setup(ctx context.Context) error {
	s.logger.Info().Msg("starting setup")

	outputDir := s.cfg.OutputDirectory
	if outputDir == "" {
		dir, err := journal.Dir(s.cfg.JobID, "")
		if err != nil {
			return err
		}
		outputDir = dir
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	s.cfg.OutputDirectory = outputDir

	current, original, schemaVersion, err := s.discoverTopology(ctx)
	if err != nil {
		metrics.UpdateComponent("topology", false, err.Error())
		return err
	}
	metrics.RegisterComponent("topology", true, fmt.Sprintf("%d host(s) discovered", len(current.Hosts())))
	metrics.RegisterComponent("ssh", true, "")

	var graph strategy.AdjacencyGraph
	if s.cfg.Strategy == strategy.Topology {
		s.logger.Info().Msg("generating endpoint mapping")
		graph, current, err = s.resolveAdjacency(ctx, current, schemaVersion)
		if err != nil {
			return err
		}
		tokens := map[string]string{}
		for _, h := range current.Hosts() {
			if h.Token != "" {
				tokens[h.IP] = h.Token
			}
		}
		original = original.WithTokens(tokens)
		s.logger.Info().Msg("done generating endpoint mapping")
	} else {
		s.logger.Info().Msg("skipping endpoint mapping because of selected strategy")
	}

	params := strategy.Params{
		Strategy:        s.cfg.Strategy,
		Adjacency:       graph,
		ClusterParallel: s.cfg.ClusterParallel,
		DCParallel:      s.cfg.DCParallel,
		MaxConcurrency:  s.cfg.MaxConcurrency,
		StopAfter:       s.cfg.StopAfter,
		IgnoreDownNodes: s.cfg.IgnoreDownNodes,
	}
	st := state.New(original, params)
	st = st.WithTopology(current)
	s.state = st
	if err := s.writeJournal(); err != nil {
		return err
	}

	s.logger.Info().Msg("setup done")
	return nil
}

func (s *Supervisor) discoverTopology(ctx context.Context) (current, original topology.Topology, schemaVersion string, err error) {
	if len(s.cfg.SeedHosts) > 0 {
		current = topology.New()
		for _, seed := range s.cfg.SeedHosts {
			found, version, err := s.probe.GetClusterTopology(ctx, []string{seed})
			if err != nil {
				return topology.Topology{}, topology.Topology{}, "", err
			}
			current = current.Union(found)
			if version != "" {
				schemaVersion = version
			}
		}
		original = current
		if s.cfg.DCFilter != "" {
			original = original.WithDCFilter(s.cfg.DCFilter)
		}
		return current, original, schemaVersion, nil
	}

	current = topology.New()
	hostIPs := map[string]bool{}
	seenIPs := map[string]bool{}
	var originalHosts []topology.Host
	for _, raw := range s.cfg.Hosts {
		ip, err := resolveIP(raw)
		if err != nil {
			return topology.Topology{}, topology.Topology{}, "", err
		}
		hostIPs[ip] = true
		if seenIPs[ip] {
			continue
		}
		seenIPs[ip] = true
		found, version, err := s.probe.GetClusterTopology(ctx, []string{ip})
		if err != nil {
			return topology.Topology{}, topology.Topology{}, "", err
		}
		current = current.Union(found)
		if version != "" {
			schemaVersion = version
		}
	}
	for _, h := range current.Hosts() {
		if hostIPs[h.IP] {
			originalHosts = append(originalHosts, h)
		}
	}
	original = topology.New(originalHosts...)
	return current, original, schemaVersion, nil
}

func resolveIP(raw string) (string, error) {
	if net.ParseIP(raw) != nil {
		return raw, nil
	}
	addrs, err := net.LookupHost(raw)
	if err != nil || len(addrs) == 0 {
		return "", fmt.Errorf("resolve host %s: %w", raw, err)
	}
	return addrs[0], nil
}

func (s *Supervisor) resolveAdjacency(ctx context.Context, current topology.Topology, schemaVersion string) (strategy.AdjacencyGraph, topology.Topology, error) {
	if s.cfg.AdjacencyCache != nil {
		clusterName := ""
		if hosts := current.Hosts(); len(hosts) > 0 {
			clusterName = hosts[0].Cluster
		}
		key := adjacency.Key(clusterName, schemaVersion, current)
		if cached, ok, err := s.cfg.AdjacencyCache.Get(key); err == nil && ok {
			metrics.AdjacencyCacheHitsTotal.Inc()
			return cached, current, nil
		}
		metrics.AdjacencyCacheMissesTotal.Inc()
		graph, withTokens, err := s.probe.GetEndpointMapping(ctx, current, s.cfg.KeySpace)
		if err != nil {
			return nil, current, err
		}
		_ = s.cfg.AdjacencyCache.Put(key, graph)
		return graph, withTokens, nil
	}
	return s.probe.GetEndpointMapping(ctx, current, s.cfg.KeySpace)
}

// Resume reconstructs a Supervisor's state from a journal record, refreshes
// the current topology and restarts any jobs that were running when the
// process was interrupted.
func Resume(ctx context.Context, rec journal.Record, cfg Config, dial healthprobe.Dialer, stopAfter int, retryFailed bool) (*Supervisor, error) {
	s := New(cfg, dial)

	var graph strategy.AdjacencyGraph
	strat, err := strategy.Parse(rec.State.Strategy)
	if err != nil {
		return nil, err
	}
	if strat == strategy.Topology {
		original := topology.New(rec.State.OriginalTopology...)
		graph, _, err = s.probe.GetEndpointMapping(ctx, original, rec.KeySpace)
		if err != nil {
			return nil, err
		}
	}

	stateProgress, params, original, current := rec.ToState(graph, stopAfter)
	if retryFailed {
		stateProgress = stateProgress.ResetFailed()
	}

	s.state = state.State{
		OriginalTopology: original,
		CurrentTopology:  current,
		Params:           params,
		Progress:         stateProgress,
	}
	s.cfg.Command = rec.Command
	s.cfg.Timeout = time.Duration(rec.Timeout) * time.Second
	s.cfg.Env = rec.Env
	s.cfg.KeySpace = rec.KeySpace
	s.cfg.SleepOnNewRunner = time.Duration(rec.SleepOnNewRunner * float64(time.Second))
	s.cfg.SleepAfterDone = time.Duration(rec.SleepAfterDone * float64(time.Second))
	s.cfg.SSH = executor.Config{Username: rec.SSHUsername, Password: rec.SSHPassword, IdentityFile: rec.SSHIdentityFile}
	s.cfg.SSHLib = rec.SSHLib
	s.cfg.JMXUsername = rec.JMXUsername
	s.cfg.JMXPassword = rec.JMXPassword
	s.cfg.HostsVariables = rec.HostsVariables

	if err := s.updateCurrentTopology(nil); err != nil {
		return nil, err
	}
	s.resumeOnRunningHosts(ctx)

	return s, nil
}

func (s *Supervisor) connection(ip string) (executor.Executor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if exec, ok := s.connections[ip]; ok {
		return exec, nil
	}
	exec, err := s.dial(ip)
	if err != nil {
		metrics.UpdateComponent("ssh", false, err.Error())
		return nil, err
	}
	s.connections[ip] = exec
	return exec, nil
}

func (s *Supervisor) hostVariables(host topology.Host) map[string]string {
	if s.cfg.HostsVariables == nil {
		return map[string]string{}
	}
	return s.cfg.HostsVariables.For(host.FQDN)
}

func (s *Supervisor) mergedEnv(host topology.Host) map[string]string {
	env := map[string]string{}
	for k, v := range s.cfg.Env {
		env[k] = v
	}
	for k, v := range s.hostVariables(host) {
		env[k] = v
	}
	return env
}

// Run drives the job to completion: scheduling eligible hosts, waiting on
// results, and rechecking health whenever a host returns.
func (s *Supervisor) Run(ctx context.Context) error {
	s.doLoop = true

	if err := s.writeJournal(); err != nil {
		return err
	}
	if !s.state.IsHealthy() {
		return &cstarerr.HostIsDownError{Hosts: fqdns(s.state.CurrentTopology.Down().Hosts())}
	}

	for s.doLoop {
		if err := s.scheduleAllRunnableJobs(ctx); err != nil {
			return err
		}
		if s.state.IsDone() {
			s.doLoop = false
		}
		if err := s.waitForAnyJob(ctx); err != nil {
			return err
		}
	}

	s.waitForAllJobs()
	s.printOutcome()
	return nil
}

func (s *Supervisor) scheduleAllRunnableJobs(ctx context.Context) error {
	for {
		next, ok, err := s.state.FindNextHost()
		if err != nil {
			return err
		}
		if !ok {
			if len(s.state.Progress.Running) == 0 {
				s.doLoop = false
			}
			return nil
		}

		if !next.IsUp && s.state.Params.IgnoreDownNodes {
			s.state = s.state.WithDone(next)
		} else {
			s.state = s.state.WithRunning(next)
			s.scheduleJob(ctx, next)
		}
		if err := s.writeJournal(); err != nil {
			return err
		}
	}
}

func (s *Supervisor) scheduleJob(ctx context.Context, host topology.Host) {
	s.logger.Debug().Str("host", host.FQDN).Msg("running on host")
	metrics.HostsDispatchedTotal.WithLabelValues(host.Cluster).Inc()

	env := s.mergedEnv(host)
	go func() {
		timer := metrics.NewTimer()
		exec, err := s.connection(host.IP)
		if err != nil {
			s.results <- hostOutcome{host: host, err: err}
			return
		}
		result, err := exec.RunJob(ctx, s.cfg.Command, s.cfg.JobID, s.cfg.Timeout, env)
		timer.ObserveDurationVec(metrics.CommandDuration, host.Cluster)
		s.results <- hostOutcome{host: host, result: result, err: err}
	}()

	if s.cfg.SleepOnNewRunner > 0 {
		time.Sleep(s.cfg.SleepOnNewRunner)
	}
}

// resumeOnRunningHosts restarts a RunJob for every host that the journal
// says was running when the process exited. A host whose earlier run has
// already written its status file gets that result replayed by the remote
// job script; on a host with no status file yet, the command runs again.
func (s *Supervisor) resumeOnRunningHosts(ctx context.Context) {
	for _, host := range s.state.Progress.RunningHosts() {
		s.logger.Debug().Str("host", host.FQDN).Msg("resume on host")
		s.scheduleJob(ctx, host)
	}
}

func (s *Supervisor) waitForAnyJob(ctx context.Context) error {
	if !s.doLoop {
		return nil
	}

	batch, err := s.drainResults(ctx, s.cfg.Timeout)
	if err != nil {
		return err
	}
	s.handleFinishedJobs(batch)

	nodes := make([]topology.Host, len(batch))
	for i, o := range batch {
		nodes[i] = o.host
	}
	return s.waitForNodeToReturn(ctx, nodes)
}

func (s *Supervisor) waitForAllJobs() {
	for len(s.state.Progress.Running) > 0 {
		batch, err := s.drainResults(context.Background(), 0)
		if err != nil {
			return
		}
		s.handleFinishedJobs(batch)
	}
}

// drainResults blocks for at least one result (honoring timeout, if
// nonzero), then drains whatever else is immediately available so a burst
// of simultaneous completions is processed as one batch.
func (s *Supervisor) drainResults(ctx context.Context, timeout time.Duration) ([]hostOutcome, error) {
	var batch []hostOutcome

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case o := <-s.results:
		batch = append(batch, o)
	case <-timeoutCh:
		return nil, fmt.Errorf("timed out waiting for a job to finish")
	case <-ctx.Done():
		return nil, ctx.Err()
	}

drain:
	for {
		select {
		case o := <-s.results:
			batch = append(batch, o)
		default:
			break drain
		}
	}
	return batch, nil
}

func (s *Supervisor) handleFinishedJobs(batch []hostOutcome) {
	s.logger.Debug().Int("count", len(batch)).Msg("processing finished jobs")
	for _, o := range batch {
		if o.err == nil {
			if saveErr := s.saveOutput(o.host, o.result); saveErr != nil {
				s.logger.Warn().Str("host", o.host.FQDN).Err(saveErr).Msg("could not save host output")
			}
		}

		if o.err != nil || !o.result.Succeeded() {
			s.errors = append(s.errors, o)
			s.state = s.state.WithFailed(o.host)
			metrics.HostsFailedTotal.WithLabelValues(o.host.Cluster).Inc()
			s.logger.Warn().Str("host", o.host.FQDN).Str("stdout", o.result.Stdout).Str("stderr", o.result.Stderr).Msg("failure on host")
			s.doLoop = false
		} else {
			s.state = s.state.WithDone(o.host)
			metrics.HostsDoneTotal.WithLabelValues(o.host.Cluster).Inc()
			s.logger.Info().Str("host", o.host.FQDN).Msg("host finished successfully")
			if s.cfg.SleepAfterDone > 0 {
				time.Sleep(s.cfg.SleepAfterDone)
			}
		}
	}
	_ = s.writeJournal()
}

// saveOutput writes a finished host's stdout, stderr and exit status to
// <output_directory>/<host_fqdn>/{out,err,status}, so `cstar continue` and
// operators inspecting a job after the fact can read a host's result
// without reconnecting to it.
func (s *Supervisor) saveOutput(host topology.Host, result executor.ExecutionResult) error {
	dir := s.cfg.OutputDirectory + "/" + host.FQDN
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create host output directory: %w", err)
	}
	if err := os.WriteFile(dir+"/out", []byte(result.Stdout), 0644); err != nil {
		return fmt.Errorf("write out: %w", err)
	}
	if err := os.WriteFile(dir+"/err", []byte(result.Stderr), 0644); err != nil {
		return fmt.Errorf("write err: %w", err)
	}
	if err := os.WriteFile(dir+"/status", []byte(strconv.Itoa(result.Status)), 0644); err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	return nil
}

// waitForNodeToReturn re-probes the cluster, using hosts other than nodes
// as probe seeds, until State.IsHealthy reports every idle host up,
// rechecking every 5 seconds. A BadSSHHostError from the probe is retried;
// any other probe error is returned.
func (s *Supervisor) waitForNodeToReturn(ctx context.Context, nodes []topology.Host) error {
	for {
		err := s.updateCurrentTopology(nodes)
		if err == nil && s.state.IsHealthy() {
			return nil
		}
		if err != nil {
			if _, ok := err.(*cstarerr.BadSSHHostError); !ok {
				return err
			}
			s.logger.Debug().Err(err).Msg("ssh to health-check host failed, instance down?")
		}
		select {
		case <-time.After(5 * time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// updateCurrentTopology refreshes CurrentTopology by re-probing one idle,
// up host per cluster in the original topology, skipping the given hosts
// (typically ones that just finished and may still be restarting services).
func (s *Supervisor) updateCurrentTopology(skip []topology.Host) error {
	newTopology := topology.New()
	for cluster := range s.state.OriginalTopology.Clusters() {
		seeds := s.state.Idle().WithCluster(cluster).WithoutHosts(skip).Up()
		if seeds.Len() == 0 {
			// the all strategy can move every host to running at once; fall
			// back to any up host in the cluster as a health-check seed.
			seeds = s.state.CurrentTopology.WithCluster(cluster).Up()
		}
		if seeds.Len() == 0 {
			continue
		}
		found, _, err := s.probe.GetClusterTopology(context.Background(), ipsOf(seeds.Hosts()))
		if err != nil {
			return err
		}
		newTopology = newTopology.Union(found)
	}
	s.state = s.state.WithTopology(newTopology)
	return nil
}

func (s *Supervisor) printOutcome() {
	p := s.state.Progress
	if s.state.IsDone() && len(s.errors) == 0 {
		if s.state.Params.StopAfter > 0 && len(p.Done) == s.state.Params.StopAfter {
			_ = s.writeJournal()
			s.logger.Info().Int("stop_after", s.state.Params.StopAfter).Msgf(
				"job %s successfully ran on %d hosts; to finish the job, run cstar continue %s",
				s.cfg.JobID, s.state.Params.StopAfter, s.cfg.JobID)
		}
		s.logger.Info().Msgf("job %s finished successfully", s.cfg.JobID)
	} else {
		notStarted := s.state.OriginalTopology.Len() - len(p.Done) - len(p.Failed)
		s.logger.Warn().Msgf(
			"job %s finished with errors: %d nodes finished successfully, %d nodes had errors, %d nodes didn't start executing",
			s.cfg.JobID, len(p.Done), len(p.Failed), notStarted)
	}
}

func (s *Supervisor) writeJournal() error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.JournalWriteDuration)
	metrics.JournalWritesTotal.Inc()

	rec := journal.ToRecord(
		s.cfg.Command, int(s.cfg.Timeout/time.Second), s.cfg.Env, s.cfg.KeySpace,
		s.cfg.SleepOnNewRunner.Seconds(), s.cfg.SleepAfterDone.Seconds(),
		s.cfg.SSH.Username, s.cfg.SSH.Password, s.cfg.SSH.IdentityFile, s.cfg.SSHLib,
		s.cfg.JMXUsername, s.cfg.JMXPassword,
		s.cfg.HostsVariables,
		s.state.Params.Strategy, s.state.Params.ClusterParallel, s.state.Params.DCParallel, s.state.Params.MaxConcurrency,
		s.state.OriginalTopology, s.state.CurrentTopology, s.state.Progress, s.state.Params.IgnoreDownNodes,
		time.Now().UTC(),
	)
	return journal.Write(s.cfg.OutputDirectory, rec)
}

// SaveJournal persists the current checkpoint. It is exposed for the
// interrupt handler, which must write the journal before the process
// exits.
func (s *Supervisor) SaveJournal() bool {
	if s.cfg.OutputDirectory == "" {
		return false
	}
	return s.writeJournal() == nil
}

// Close tears down every open connection.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for ip, exec := range s.connections {
		if err := exec.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.connections, ip)
	}
	return firstErr
}

// Errors returns the (host, result) pairs for every host that failed.
func (s *Supervisor) Errors() []hostOutcome {
	return s.errors
}

// State returns the current job state, primarily for tests and reporting.
func (s *Supervisor) State() state.State {
	return s.state
}

func fqdns(hosts []topology.Host) []string {
	names := make([]string, len(hosts))
	for i, h := range hosts {
		names[i] = h.FQDN
	}
	sort.Strings(names)
	return names
}

func ipsOf(hosts []topology.Host) []string {
	ips := make([]string, len(hosts))
	for i, h := range hosts {
		ips[i] = h.IP
	}
	return ips
}
