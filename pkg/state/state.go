// Package state aggregates a job's topology, strategy and progress into a
// single value from which the next eligible host can be derived.
package state

import (
	"github.com/cstarhq/cstar/pkg/progress"
	"github.com/cstarhq/cstar/pkg/strategy"
	"github.com/cstarhq/cstar/pkg/topology"
)

// State holds everything needed to compute what host (if any) to run on
// next. It tracks two topologies: OriginalTopology is the set of hosts the
// job was asked to run on, CurrentTopology is the live set of hosts in
// those clusters right now. They diverge when nodes are added, removed or
// replaced mid-job.
type State struct {
	OriginalTopology topology.Topology
	CurrentTopology  topology.Topology
	Params           strategy.Params
	Progress         progress.Progress
}

// New builds a State. CurrentTopology defaults to OriginalTopology.
func New(original topology.Topology, params strategy.Params) State {
	return State{
		OriginalTopology: original,
		CurrentTopology:  original,
		Params:           params,
		Progress:         progress.New(nil, nil, nil),
	}
}

// WithTopology returns a copy of the state with CurrentTopology replaced.
func (s State) WithTopology(t topology.Topology) State {
	s.CurrentTopology = t
	return s
}

// WithRunning returns a copy of the state with host marked running.
func (s State) WithRunning(h topology.Host) State {
	s.Progress = s.Progress.WithRunning(h)
	return s
}

// WithDone returns a copy of the state with host marked done.
func (s State) WithDone(h topology.Host) State {
	s.Progress = s.Progress.WithDone(h)
	return s
}

// WithFailed returns a copy of the state with host marked failed.
func (s State) WithFailed(h topology.Host) State {
	s.Progress = s.Progress.WithFailed(h)
	return s
}

// WithProgress returns a copy of the state with a new Progress value.
func (s State) WithProgress(p progress.Progress) State {
	s.Progress = p
	return s
}

// FindNextHost picks the next eligible host, if any, per the configured
// strategy.
func (s State) FindNextHost() (topology.Host, bool, error) {
	return strategy.Pick(s.OriginalTopology, s.Progress, s.Params)
}

// IsDone reports whether every host in the original topology has finished,
// or the configured stop-after threshold has been reached.
func (s State) IsDone() bool {
	if len(s.Progress.Done) == s.OriginalTopology.Len() {
		return true
	}
	stopAfter := s.Params.StopAfter
	if stopAfter > 0 {
		total := len(s.Progress.Running) + len(s.Progress.Done) + len(s.Progress.Failed)
		if total >= stopAfter {
			return true
		}
	}
	return false
}

// IsHealthy reports whether every host in CurrentTopology that is not
// currently running the command is up.
func (s State) IsHealthy() bool {
	if s.Params.IgnoreDownNodes {
		return true
	}
	idle := s.CurrentTopology.WithoutHosts(s.Progress.RunningHosts())
	return idle.Down().Len() == 0
}

// Idle returns the hosts in CurrentTopology that are not currently running
// the command.
func (s State) Idle() topology.Topology {
	return s.CurrentTopology.WithoutHosts(s.Progress.RunningHosts())
}
