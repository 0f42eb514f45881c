// Package adjacency builds the replica adjacency graph: for every host,
// the set of hosts that are replicas of at least one of its token ranges.
// The graph is used by the topology-aware strategy to avoid ever running a
// command on two replicas of the same data concurrently.
package adjacency

import (
	"github.com/cstarhq/cstar/pkg/nodetool"
	"github.com/cstarhq/cstar/pkg/strategy"
	"github.com/cstarhq/cstar/pkg/topology"
)

// Resolver turns a raw endpoint string from describering output (which may
// be a hostname or an IP) into the IP used as the Topology's key.
type Resolver func(raw string) (string, error)

// Build derives an AdjacencyGraph from a set of token ranges and the
// topology those ranges were collected from. Only same-DC replicas are
// considered adjacent: cross-DC replicas of the same range can safely run
// concurrently since they are never both coordinators for the same local
// quorum.
func Build(ranges []nodetool.Range, top topology.Topology, resolve Resolver) (strategy.AdjacencyGraph, error) {
	raw := rangesToRawAdjacency(ranges)
	dnsMapped, err := mapRawHostsToIPs(raw, resolve)
	if err != nil {
		return nil, err
	}
	return toTopologyGraph(dnsMapped, top), nil
}

// Merge unions any number of adjacency graphs built from independent
// clusters into one, matching the multi-cluster endpoint_mapping merge step.
func Merge(graphs ...strategy.AdjacencyGraph) strategy.AdjacencyGraph {
	merged := strategy.AdjacencyGraph{}
	for _, g := range graphs {
		for host, friends := range g {
			merged[host] = append(merged[host], friends...)
		}
	}
	return merged
}

// rangesToRawAdjacency builds, for every endpoint appearing in a range, the
// set of other endpoints in the same range (its replicas for that range).
func rangesToRawAdjacency(ranges []nodetool.Range) map[string]map[string]bool {
	mapping := map[string]map[string]bool{}
	for _, r := range ranges {
		for _, host1 := range r.Endpoints {
			for _, host2 := range r.Endpoints {
				if host1 == host2 {
					continue
				}
				if mapping[host1] == nil {
					mapping[host1] = map[string]bool{}
				}
				mapping[host1][host2] = true
			}
		}
	}
	return mapping
}

func mapRawHostsToIPs(raw map[string]map[string]bool, resolve Resolver) (map[string]map[string]bool, error) {
	out := map[string]map[string]bool{}
	for rawHost, rawFriends := range raw {
		host, err := resolve(rawHost)
		if err != nil {
			return nil, err
		}
		friends := out[host]
		if friends == nil {
			friends = map[string]bool{}
			out[host] = friends
		}
		for rawFriend := range rawFriends {
			friend, err := resolve(rawFriend)
			if err != nil {
				return nil, err
			}
			friends[friend] = true
		}
	}
	return out, nil
}

func toTopologyGraph(mapping map[string]map[string]bool, top topology.Topology) strategy.AdjacencyGraph {
	res := strategy.AdjacencyGraph{}
	// Every host in the topology gets an entry, even with no replicas
	// found, so strategy lookups never need a nil check.
	for _, h := range top.Hosts() {
		res[h.IP] = nil
	}
	for rawHost, rawFriends := range mapping {
		host, err := top.GetHost(rawHost)
		if err != nil {
			continue
		}
		var filtered []topology.Host
		for rawFriend := range rawFriends {
			friend, err := top.GetHost(rawFriend)
			if err != nil {
				continue
			}
			if friend.DC == host.DC {
				filtered = append(filtered, friend)
			}
		}
		res[host.IP] = filtered
	}
	return res
}

// IdentityResolver treats describering endpoints as already being IPs,
// suitable when nodetool was run with -Dcassandra.resolve_hostnames=false.
func IdentityResolver(raw string) (string, error) {
	return raw, nil
}
