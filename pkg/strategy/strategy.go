// Package strategy implements the three concurrency strategies cstar uses
// to pick the next host to run a command on.
package strategy

import (
	"github.com/cstarhq/cstar/pkg/cstarerr"
	"github.com/cstarhq/cstar/pkg/progress"
	"github.com/cstarhq/cstar/pkg/topology"
)

// Strategy is one of the three concurrency strategies available in cstar.
type Strategy int

const (
	// One runs on a single host at a time, cluster-wide.
	One Strategy = iota + 1
	// Topology runs on as many hosts as possible without ever running on
	// two replicas of the same data at once.
	Topology
	// All runs on every eligible host concurrently, subject only to
	// max concurrency and the cluster/dc parallelism flags.
	All
)

// Parse converts a strategy name to a Strategy.
func Parse(text string) (Strategy, error) {
	switch text {
	case "one":
		return One, nil
	case "topology":
		return Topology, nil
	case "all":
		return All, nil
	default:
		return 0, &cstarerr.BadArgumentError{Message: "unknown strategy: " + text}
	}
}

// String renders the strategy back to its canonical name.
func (s Strategy) String() string {
	switch s {
	case One:
		return "one"
	case Topology:
		return "topology"
	case All:
		return "all"
	default:
		return "unknown"
	}
}

// AdjacencyGraph maps a host to the set of hosts that share data with it
// (i.e. are replicas of at least one of its token ranges). It is never
// persisted to the journal: it is always recomputed from current cluster
// state on resume.
type AdjacencyGraph map[string][]topology.Host

// Params bundles the scheduling knobs that stay constant across an entire
// job, as opposed to Progress, which changes every call.
type Params struct {
	Strategy        Strategy
	Adjacency       AdjacencyGraph // keyed by host IP; nil unless Strategy == Topology
	ClusterParallel bool
	DCParallel      bool
	MaxConcurrency  int // 0 means unlimited
	StopAfter       int // 0 means unlimited
	IgnoreDownNodes bool
}

// Pick finds the next host eligible to run a command, given the full
// topology of hosts the job targets and the current progress. It returns
// (zero Host, false, nil) when no host is currently eligible (either
// because all work is done, or because concurrency limits are exhausted),
// and an error only when a remaining host is down and down hosts were not
// told to be ignored.
func Pick(top topology.Topology, progress progress.Progress, params Params) (topology.Host, bool, error) {
	total := len(progress.Running) + len(progress.Done) + len(progress.Failed)
	if params.StopAfter > 0 && total >= params.StopAfter {
		return topology.Host{}, false, nil
	}

	remaining := top.
		WithoutHosts(progress.DoneHosts()).
		WithoutHosts(progress.RunningHosts()).
		WithoutHosts(progress.FailedHosts())

	running := progress.RunningHosts()

	if len(running) > 0 && !params.ClusterParallel {
		remaining = remaining.WithCluster(running[0].Cluster)
	}
	if len(running) > 0 && !params.DCParallel {
		remaining = remaining.WithDC(running[0].Cluster, running[0].DC)
	}

	if remaining.Len() == 0 {
		return topology.Host{}, false, nil
	}

	if params.MaxConcurrency > 0 && len(running) >= params.MaxConcurrency {
		return topology.Host{}, false, nil
	}

	if !params.IgnoreDownNodes {
		for _, h := range remaining.Hosts() {
			if !h.IsUp {
				return topology.Host{}, false, &cstarerr.HostIsDownError{Hosts: []string{h.FQDN}}
			}
		}
	}

	switch params.Strategy {
	case One:
		return pickOne(remaining, running)
	case Topology:
		return pickTopology(remaining, params.Adjacency, running)
	case All:
		return pickAll(remaining)
	default:
		return topology.Host{}, false, nil
	}
}

func pickAll(remaining topology.Topology) (topology.Host, bool, error) {
	h, ok := remaining.First()
	return h, ok, nil
}

func pickOne(remaining topology.Topology, running []topology.Host) (topology.Host, bool, error) {
	if len(running) > 0 {
		return topology.Host{}, false, nil
	}
	h, ok := remaining.First()
	return h, ok, nil
}

func pickTopology(remaining topology.Topology, adjacency AdjacencyGraph, running []topology.Host) (topology.Host, bool, error) {
	for _, r := range running {
		for _, neighbor := range adjacency[r.IP] {
			remaining = remaining.WithoutHost(neighbor)
		}
	}
	h, ok := remaining.First()
	return h, ok, nil
}
