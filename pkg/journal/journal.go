// Package journal persists and restores job checkpoints, allowing an
// interrupted run to resume exactly where it left off.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cstarhq/cstar/pkg/cstarerr"
	"github.com/cstarhq/cstar/pkg/progress"
	"github.com/cstarhq/cstar/pkg/strategy"
	"github.com/cstarhq/cstar/pkg/topology"
)

// FormatVersion is the journal schema version this build writes and
// expects to read. Bumping it is a breaking change: old journals become
// unreadable and must finish on the build that wrote them.
const FormatVersion = 7

// DefaultMaxAgeDays is how old a journal is allowed to be before Read
// refuses to resume it without an explicit override.
const DefaultMaxAgeDays = 7

// Record is the full on-disk shape of a job checkpoint.
type Record struct {
	Version           int               `json:"version"`
	CreationTimestamp int64             `json:"creation_timestamp"`
	Command           []string          `json:"command"`
	Timeout           int               `json:"timeout"`
	Env               map[string]string `json:"env"`
	KeySpace          string            `json:"key_space,omitempty"`
	SleepOnNewRunner  float64           `json:"sleep_on_new_runner"`
	SleepAfterDone    float64           `json:"sleep_after_done"`
	SSHUsername       string            `json:"ssh_username,omitempty"`
	SSHPassword       string            `json:"-"`
	SSHIdentityFile   string            `json:"ssh_identity_file,omitempty"`
	SSHLib            string            `json:"ssh_lib,omitempty"`
	JMXUsername       string            `json:"jmx_username,omitempty"`
	JMXPassword       string            `json:"-"`
	HostsVariables    map[string]map[string]string `json:"hosts_variables,omitempty"`
	State             StateRecord       `json:"state"`
}

// StateRecord is the serialized form of state.State. AdjacencyGraph and
// StopAfter are intentionally absent: the adjacency graph is always
// recomputed on resume, and stop-after is supplied again on the
// "continue" command line rather than trusted from disk.
type StateRecord struct {
	Strategy         string               `json:"strategy"`
	ClusterParallel  bool                 `json:"cluster_parallel"`
	DCParallel       bool                 `json:"dc_parallel"`
	MaxConcurrency   int                  `json:"max_concurrency"`
	Progress         ProgressRecord       `json:"progress"`
	OriginalTopology []topology.Host      `json:"original_topology"`
	CurrentTopology  []topology.Host      `json:"current_topology"`
	IgnoreDownNodes  bool                 `json:"ignore_down_nodes"`
}

// ProgressRecord is the serialized form of progress.Progress.
type ProgressRecord struct {
	Running []topology.Host `json:"running"`
	Done    []topology.Host `json:"done"`
	Failed  []topology.Host `json:"failed"`
}

// Dir returns the on-disk directory for a job, honoring an explicit
// override or defaulting to ~/.cstar/jobs/<job-id>.
func Dir(jobID, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cstar", "jobs", jobID), nil
}

func path(dir string) string {
	return filepath.Join(dir, "job.json")
}

// ToRecord builds a Record from the live pieces of a job, ready to write.
func ToRecord(command []string, timeout int, env map[string]string, keySpace string,
	sleepOnNewRunner, sleepAfterDone float64,
	sshUsername, sshPassword, sshIdentityFile, sshLib, jmxUsername, jmxPassword string,
	hostsVariables map[string]map[string]string,
	strat strategy.Strategy, clusterParallel, dcParallel bool, maxConcurrency int,
	original, current topology.Topology, p progress.Progress, ignoreDownNodes bool,
	now time.Time) Record {
	return Record{
		Version:           FormatVersion,
		CreationTimestamp: now.Unix(),
		Command:           command,
		Timeout:           timeout,
		Env:               env,
		KeySpace:          keySpace,
		SleepOnNewRunner:  sleepOnNewRunner,
		SleepAfterDone:    sleepAfterDone,
		SSHUsername:       sshUsername,
		SSHPassword:       sshPassword,
		SSHIdentityFile:   sshIdentityFile,
		SSHLib:            sshLib,
		JMXUsername:       jmxUsername,
		JMXPassword:       jmxPassword,
		HostsVariables:    hostsVariables,
		State: StateRecord{
			Strategy:         strat.String(),
			ClusterParallel:  clusterParallel,
			DCParallel:       dcParallel,
			MaxConcurrency:   maxConcurrency,
			OriginalTopology: original.Hosts(),
			CurrentTopology:  current.Hosts(),
			IgnoreDownNodes:  ignoreDownNodes,
			Progress: ProgressRecord{
				Running: p.RunningHosts(),
				Done:    p.DoneHosts(),
				Failed:  p.FailedHosts(),
			},
		},
	}
}

// Write atomically persists a checkpoint: it writes to a temp file in the
// same directory then renames over the target, so a crash mid-write never
// leaves a truncated journal behind.
func Write(dir string, rec Record) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create job directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal journal: %w", err)
	}
	data = append(data, '\n')

	target := path(dir)
	tmp, err := os.CreateTemp(dir, ".job.json.*")
	if err != nil {
		return fmt.Errorf("create temp journal file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write journal: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close journal temp file: %w", err)
	}

	if err := os.Rename(tmpPath, target); err != nil {
		return fmt.Errorf("rename journal into place: %w", err)
	}
	return nil
}

// ReadOptions controls how a journal is interpreted on read.
type ReadOptions struct {
	MaxAgeDays int  // 0 uses DefaultMaxAgeDays
	RetryFailed bool // clear the failed set, so those hosts are retried
	Now         time.Time
}

// Read loads and validates the checkpoint at dir, returning the parsed
// Record. It enforces the format version and max-age checks before
// returning, and applies RetryFailed if requested.
func Read(dir string, opts ReadOptions) (Record, error) {
	data, err := os.ReadFile(path(dir))
	if err != nil {
		return Record{}, fmt.Errorf("read journal: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("parse journal: %w", err)
	}

	if rec.Version != FormatVersion {
		return Record{}, &cstarerr.BadFileFormatVersionError{Wanted: FormatVersion, Got: rec.Version}
	}

	maxDays := opts.MaxAgeDays
	if maxDays <= 0 {
		maxDays = DefaultMaxAgeDays
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	created := time.Unix(rec.CreationTimestamp, 0).UTC()
	ageDays := int(now.Sub(created).Hours() / 24)
	if ageDays > maxDays {
		return Record{}, &cstarerr.FileTooOldError{AgeDays: ageDays, MaxDays: maxDays}
	}

	if opts.RetryFailed {
		rec.State.Progress.Failed = nil
	}

	return rec, nil
}

// ToState reconstructs a state.State from a Record, given an adjacency
// graph recomputed fresh for this resume (nil when the strategy isn't
// Topology).
func (r Record) ToState(adjacency strategy.AdjacencyGraph, stopAfter int) (stateProgress progress.Progress, params strategy.Params, original, current topology.Topology) {
	original = topology.New(r.State.OriginalTopology...)
	current = topology.New(r.State.CurrentTopology...)
	strat, _ := strategy.Parse(r.State.Strategy)
	params = strategy.Params{
		Strategy:        strat,
		Adjacency:       adjacency,
		ClusterParallel: r.State.ClusterParallel,
		DCParallel:      r.State.DCParallel,
		MaxConcurrency:  r.State.MaxConcurrency,
		StopAfter:       stopAfter,
		IgnoreDownNodes: r.State.IgnoreDownNodes,
	}
	stateProgress = progress.New(r.State.Progress.Done, r.State.Progress.Running, r.State.Progress.Failed)
	return
}
