// Package healthprobe discovers cluster topology and replica adjacency by
// running nodetool over ssh against one or more seed hosts.
package healthprobe

import (
	"context"
	"sync"
	"time"

	"github.com/cstarhq/cstar/pkg/adjacency"
	"github.com/cstarhq/cstar/pkg/cstarerr"
	"github.com/cstarhq/cstar/pkg/executor"
	"github.com/cstarhq/cstar/pkg/log"
	"github.com/cstarhq/cstar/pkg/metrics"
	"github.com/cstarhq/cstar/pkg/nodetool"
	"github.com/cstarhq/cstar/pkg/strategy"
	"github.com/cstarhq/cstar/pkg/topology"
)

// maxAttempts bounds how many seed hosts get tried before giving up.
const maxAttempts = 3

// systemKeyspaces are never probed for endpoint mapping: they're
// replicated identically to every node and don't affect adjacency.
var systemKeyspaces = map[string]bool{"system": true, "system_schema": true}

// Dialer opens an Executor for a host, abstracting the ssh connection
// details the probe doesn't need to know about.
type Dialer func(hostname string) (executor.Executor, error)

// Probe discovers cluster topology and adjacency over ssh.
type Probe struct {
	Dial             Dialer
	JMXUsername      string
	JMXPassword      string
	ResolveHostnames bool
}

func (p *Probe) runNodetool(ctx context.Context, exec executor.Executor, args ...string) (executor.ExecutionResult, error) {
	argv := []string{"nodetool"}
	if p.JMXUsername != "" && p.JMXPassword != "" {
		argv = append(argv, "-u", p.JMXUsername, "-pw", p.JMXPassword)
	}
	argv = append(argv, args...)
	return exec.Run(ctx, argv)
}

// GetClusterTopology tries each seed host in turn until one answers
// nodetool describecluster and nodetool status successfully. It returns the
// discovered topology alongside the cluster's schema version, which callers
// use to key the adjacency cache so a schema change invalidates it.
func (p *Probe) GetClusterTopology(ctx context.Context, seedHosts []string) (topology.Topology, string, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.HealthProbeDuration)

	var tried []string
	attempts := 0
	for _, host := range seedHosts {
		tried = append(tried, host)
		exec, err := p.Dial(host)
		if err != nil {
			log.WithComponent("healthprobe").Warn().Str("host", host).Err(err).Msg("could not connect")
			attempts++
			if attempts >= maxAttempts {
				break
			}
			continue
		}

		describeRes, describeErr := p.runNodetool(ctx, exec, "describecluster")
		statusRes, statusErr := p.runNodetool(ctx, exec, "status")
		exec.Close()

		if describeErr == nil && statusErr == nil && describeRes.Succeeded() && statusRes.Succeeded() {
			clusterName, schemaVersion, err := nodetool.ParseDescribeCluster(describeRes.Stdout)
			if err != nil {
				return topology.Topology{}, "", err
			}
			lookup := nodetool.ReverseLookup(nodetool.DefaultReverseLookup)
			top := nodetool.ParseNodetoolStatus(statusRes.Stdout, clusterName, p.ResolveHostnames, lookup)
			return top, schemaVersion, nil
		}

		attempts++
		if attempts >= maxAttempts {
			break
		}
	}

	metrics.HealthProbeFailuresTotal.Inc()
	return topology.Topology{}, "", &cstarerr.HostIsDownError{Hosts: tried}
}

// GetEndpointMapping discovers the replica adjacency graph for top by
// probing an up host for each keyspace's describering output (or a single
// keyspace, if keySpace is non-empty). It also returns top with each host's
// Token field populated from the ring data the describering calls exposed,
// for callers that want ring-based dispatch ordering.
func (p *Probe) GetEndpointMapping(ctx context.Context, top topology.Topology, keySpace string) (strategy.AdjacencyGraph, topology.Topology, error) {
	var tried []string
	attempts := 0

	for _, host := range top.Up().Hosts() {
		tried = append(tried, host.FQDN)
		exec, err := p.Dial(host.IP)
		if err != nil {
			attempts++
			if attempts >= maxAttempts {
				break
			}
			continue
		}

		keyspaces := []string{keySpace}
		if keySpace == "" {
			keyspaces, err = p.getKeyspaces(ctx, exec)
			if err != nil {
				exec.Close()
				attempts++
				continue
			}
		}

		graph, tokens, ok := p.buildGraphForKeyspaces(ctx, exec, top, keyspaces)
		exec.Close()
		if ok {
			return graph, top.WithTokens(tokens), nil
		}

		attempts++
		if attempts >= maxAttempts {
			break
		}
	}

	return nil, top, &cstarerr.HostIsDownError{Hosts: tried}
}

func (p *Probe) getKeyspaces(ctx context.Context, exec executor.Executor) ([]string, error) {
	res, err := p.runNodetool(ctx, exec, "cfstats")
	if err != nil {
		return nil, err
	}
	return nodetool.ExtractKeyspacesFromCFStats(res.Stdout), nil
}

func (p *Probe) buildGraphForKeyspaces(ctx context.Context, exec executor.Executor, top topology.Topology, keyspaces []string) (strategy.AdjacencyGraph, map[string]string, bool) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.AdjacencyBuildDuration)

	var graphs []strategy.AdjacencyGraph
	tokens := map[string]string{}
	for _, ks := range keyspaces {
		if systemKeyspaces[ks] {
			continue
		}
		res, err := p.runNodetool(ctx, exec, "describering", ks)
		if err != nil || !res.Succeeded() {
			return nil, nil, false
		}
		calls, err := nodetool.ParseDescribeRing(res.Stdout)
		if err != nil {
			return nil, nil, false
		}
		ranges := nodetool.ConvertToRangeMapping(calls)
		graph, err := adjacency.Build(ranges, top, adjacency.IdentityResolver)
		if err != nil {
			return nil, nil, false
		}
		graphs = append(graphs, graph)
		for ip, tok := range nodetool.TokensByEndpoint(ranges) {
			tokens[ip] = tok
		}
	}
	return adjacency.Merge(graphs...), tokens, true
}

// PreheatDNS issues reverse lookups for every IP concurrently, so later
// synchronous lookups hit the OS resolver cache. It never blocks longer
// than a second per host.
func PreheatDNS(ips []string) {
	var wg sync.WaitGroup
	for _, ip := range ips {
		wg.Add(1)
		go func(ip string) {
			defer wg.Done()
			done := make(chan struct{})
			go func() {
				nodetool.DefaultReverseLookup(ip)
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(time.Second):
			}
		}(ip)
	}
	wg.Wait()
}
