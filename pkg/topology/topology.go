// Package topology describes a set of Cassandra cluster hosts and provides
// filtering operations to derive subtopologies. Topology is immutable:
// every method returns a new value rather than mutating the receiver.
package topology

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/cstarhq/cstar/pkg/cstarerr"
)

// Host describes a single Cassandra node. Two hosts are equal, and hash
// equal, by IP alone: fqdn/dc/rack/cluster may be stale between probes but
// the IP is the stable join key.
type Host struct {
	FQDN     string
	IP       string
	DC       string
	Cluster  string
	Rack     string
	IsUp     bool
	Token    string
	HostID   string
}

// position returns the host's position identifier for deterministic
// ordering: the token when known (ring-based sorts), falling back to the
// host id.
func (h Host) position() string {
	if h.Token != "" {
		return h.Token
	}
	return h.HostID
}

// Equal compares hosts by IP only, matching the namedtuple equality override
// hosts relied on upstream.
func (h Host) Equal(other Host) bool {
	return h.IP == other.IP
}

// Datacenter identifies a cluster/dc pair.
type Datacenter struct {
	Cluster string
	DC      string
}

// Topology is an immutable set of hosts, keyed internally by IP.
type Topology struct {
	byIP map[string]Host
}

// New builds a Topology from a host slice. Duplicate IPs collapse to the
// last occurrence, matching Python set-of-namedtuple semantics closely
// enough for cstar's purposes (hosts are deduplicated by IP before this is
// ever called in practice).
func New(hosts ...Host) Topology {
	byIP := make(map[string]Host, len(hosts))
	for _, h := range hosts {
		byIP[h.IP] = h
	}
	return Topology{byIP: byIP}
}

// Hosts returns the hosts in the topology in unspecified order.
func (t Topology) Hosts() []Host {
	out := make([]Host, 0, len(t.byIP))
	for _, h := range t.byIP {
		out = append(out, h)
	}
	return out
}

// Len returns the number of hosts in the topology.
func (t Topology) Len() int {
	return len(t.byIP)
}

// First returns the host that sorts first by (position identifier, ip),
// or the zero Host and false if the topology is empty. The ordering is
// fully deterministic so that identical inputs always produce identical
// dispatch order.
func (t Topology) First() (Host, bool) {
	hosts := t.Hosts()
	if len(hosts) == 0 {
		return Host{}, false
	}
	sort.Slice(hosts, func(i, j int) bool {
		pi, pj := hosts[i].position(), hosts[j].position()
		if pi != pj {
			return pi < pj
		}
		return hosts[i].IP < hosts[j].IP
	})
	return hosts[0], true
}

// WithTokens returns a copy of the topology with each host's Token field set
// from tokens (keyed by IP). Hosts whose IP is absent from tokens are left
// unchanged, so a partial ring probe never erases previously known tokens.
func (t Topology) WithTokens(tokens map[string]string) Topology {
	if len(tokens) == 0 {
		return t
	}
	out := make(map[string]Host, len(t.byIP))
	for ip, h := range t.byIP {
		if tok, ok := tokens[ip]; ok {
			h.Token = tok
		}
		out[ip] = h
	}
	return Topology{byIP: out}
}

// GetHost returns the host with the given IP, or an UnknownHostError.
func (t Topology) GetHost(ip string) (Host, error) {
	if h, ok := t.byIP[ip]; ok {
		return h, nil
	}
	return Host{}, &cstarerr.UnknownHostError{IP: ip}
}

// Contains reports whether a host with the same IP is present.
func (t Topology) Contains(h Host) bool {
	_, ok := t.byIP[h.IP]
	return ok
}

// WithCluster returns the subtopology restricted to a cluster.
func (t Topology) WithCluster(cluster string) Topology {
	return t.filter(func(h Host) bool { return h.Cluster == cluster })
}

// WithDC returns the subtopology restricted to a cluster/dc pair.
func (t Topology) WithDC(cluster, dc string) Topology {
	return t.filter(func(h Host) bool { return h.Cluster == cluster && h.DC == dc })
}

// WithDCFilter returns the subtopology restricted to a dc name across all
// clusters. Prefer WithDC when the cluster is known: DC names are not
// guaranteed unique across clusters.
func (t Topology) WithDCFilter(dc string) Topology {
	return t.filter(func(h Host) bool { return h.DC == dc })
}

// WithDCOrDistinctCluster returns the subtopology containing every host in a
// DC represented by hosts, plus every host belonging to a cluster that has
// no representative in hosts at all.
func (t Topology) WithDCOrDistinctCluster(hosts []Host) Topology {
	runningDCs := t.dcsOf(hosts)
	clusters := make(map[string]bool, len(runningDCs))
	for dc := range runningDCs {
		clusters[dc.Cluster] = true
	}
	return t.filter(func(h Host) bool {
		if runningDCs[Datacenter{Cluster: h.Cluster, DC: h.DC}] {
			return true
		}
		return !clusters[h.Cluster]
	})
}

// WithoutDCs returns the subtopology with the given datacenters removed.
func (t Topology) WithoutDCs(dcs map[Datacenter]bool) Topology {
	return t.filter(func(h Host) bool { return !dcs[Datacenter{Cluster: h.Cluster, DC: h.DC}] })
}

// WithoutHost returns the subtopology without the given host.
func (t Topology) WithoutHost(host Host) Topology {
	return t.filter(func(h Host) bool { return h.IP != host.IP })
}

// WithoutHosts returns the subtopology without the given hosts.
func (t Topology) WithoutHosts(hosts []Host) Topology {
	excluded := make(map[string]bool, len(hosts))
	for _, h := range hosts {
		excluded[h.IP] = true
	}
	return t.filter(func(h Host) bool { return !excluded[h.IP] })
}

// Clusters returns the distinct cluster names present.
func (t Topology) Clusters() map[string]bool {
	out := map[string]bool{}
	for _, h := range t.byIP {
		out[h.Cluster] = true
	}
	return out
}

// DCs returns the distinct cluster/dc pairs among the given hosts, or among
// every host in the topology if hosts is nil.
func (t Topology) DCs(hosts []Host) map[Datacenter]bool {
	return t.dcsOf(hosts)
}

func (t Topology) dcsOf(hosts []Host) map[Datacenter]bool {
	subject := t
	if hosts != nil {
		subject = New(hosts...)
	}
	out := map[Datacenter]bool{}
	for _, h := range subject.byIP {
		out[Datacenter{Cluster: h.Cluster, DC: h.DC}] = true
	}
	return out
}

// Down returns the subtopology of hosts reporting as down.
func (t Topology) Down() Topology {
	return t.filter(func(h Host) bool { return !h.IsUp })
}

// Up returns the subtopology of hosts reporting as up.
func (t Topology) Up() Topology {
	return t.filter(func(h Host) bool { return h.IsUp })
}

// Hash computes a stable fingerprint of the topology's cluster names and
// host identities, suitable as an adjacency cache key. It changes whenever
// cluster membership changes, but not when a host's up/down status flips.
func (t Topology) Hash() string {
	hosts := t.Hosts()
	if len(hosts) == 0 {
		return ""
	}
	ids := make([]string, 0, len(hosts))
	for _, h := range hosts {
		ids = append(ids, h.HostID)
	}
	sort.Strings(ids)
	clusters := make([]string, 0, 1)
	for c := range t.Clusters() {
		clusters = append(clusters, c)
	}
	sort.Strings(clusters)
	sum := md5.Sum([]byte(strings.Join(clusters, ",") + strings.Join(ids, "-")))
	return hex.EncodeToString(sum[:])
}

// Union returns the union of two topologies.
func (t Topology) Union(other Topology) Topology {
	merged := make(map[string]Host, len(t.byIP)+len(other.byIP))
	for ip, h := range t.byIP {
		merged[ip] = h
	}
	for ip, h := range other.byIP {
		merged[ip] = h
	}
	return Topology{byIP: merged}
}

// String renders the topology as a space-separated list of FQDNs, matching
// the format used in log lines.
func (t Topology) String() string {
	hosts := t.Hosts()
	names := make([]string, len(hosts))
	for i, h := range hosts {
		names[i] = h.FQDN
	}
	sort.Strings(names)
	return strings.Join(names, " ")
}

func (t Topology) filter(pred func(Host) bool) Topology {
	out := make(map[string]Host)
	for ip, h := range t.byIP {
		if pred(h) {
			out[ip] = h
		}
	}
	return Topology{byIP: out}
}
