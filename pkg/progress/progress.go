// Package progress tracks which hosts in a job are done, running, or
// failed. Progress is immutable: every With* method returns a new value.
package progress

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cstarhq/cstar/pkg/topology"
)

// Progress is the per-host state of a running or resumed job.
type Progress struct {
	Done    map[string]topology.Host
	Running map[string]topology.Host
	Failed  map[string]topology.Host
}

// New builds a Progress from optional initial host sets.
func New(done, running, failed []topology.Host) Progress {
	p := Progress{
		Done:    map[string]topology.Host{},
		Running: map[string]topology.Host{},
		Failed:  map[string]topology.Host{},
	}
	for _, h := range done {
		p.Done[h.IP] = h
	}
	for _, h := range running {
		p.Running[h.IP] = h
	}
	for _, h := range failed {
		p.Failed[h.IP] = h
	}
	return p
}

func (p Progress) clone() Progress {
	return Progress{
		Done:    cloneSet(p.Done),
		Running: cloneSet(p.Running),
		Failed:  cloneSet(p.Failed),
	}
}

func cloneSet(m map[string]topology.Host) map[string]topology.Host {
	out := make(map[string]topology.Host, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// WithRunning marks a host as running.
func (p Progress) WithRunning(h topology.Host) Progress {
	res := p.clone()
	res.Running[h.IP] = h
	return res
}

// WithDone marks a host as done, removing it from running if present.
func (p Progress) WithDone(h topology.Host) Progress {
	res := p.clone()
	res.Done[h.IP] = h
	delete(res.Running, h.IP)
	return res
}

// WithFailed marks a host as failed, removing it from running if present.
func (p Progress) WithFailed(h topology.Host) Progress {
	res := p.clone()
	res.Failed[h.IP] = h
	delete(res.Running, h.IP)
	return res
}

// ResetFailed clears the failed set, used when resuming a job with
// --retry-failed.
func (p Progress) ResetFailed() Progress {
	res := p.clone()
	res.Failed = map[string]topology.Host{}
	return res
}

// DoneHosts, RunningHosts and FailedHosts return the respective sets as
// slices, sorted by IP for deterministic output.
func (p Progress) DoneHosts() []topology.Host    { return sortedValues(p.Done) }
func (p Progress) RunningHosts() []topology.Host { return sortedValues(p.Running) }
func (p Progress) FailedHosts() []topology.Host  { return sortedValues(p.Failed) }

func sortedValues(m map[string]topology.Host) []topology.Host {
	out := make([]topology.Host, 0, len(m))
	for _, h := range m {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IP < out[j].IP })
	return out
}

func (p Progress) String() string {
	fmtHosts := func(hosts []topology.Host) string {
		names := make([]string, len(hosts))
		for i, h := range hosts {
			names[i] = h.FQDN
		}
		return strings.Join(names, ", ")
	}
	return fmt.Sprintf("Progress(done=[%s], running=[%s], failed=[%s])",
		fmtHosts(p.DoneHosts()), fmtHosts(p.RunningHosts()), fmtHosts(p.FailedHosts()))
}
