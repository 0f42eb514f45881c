package nodetool

import (
	"net"
	"regexp"
	"strings"

	"github.com/cstarhq/cstar/pkg/topology"
)

var (
	stateRe  = regexp.MustCompile(`^[A-Za-z]{2}$`)
	ipRe     = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)
	tokensRe = regexp.MustCompile(`^\d+$`)
	hostIDRe = regexp.MustCompile(`^[0-9A-Fa-f]{8}(?:-[0-9A-Fa-f]{4}){3}-[0-9A-Fa-f]{12}$`)
	rackRe   = regexp.MustCompile(`^\w+$`)
)

// statusNode is one host row of nodetool status, which splits into 8
// whitespace-separated fields: state, address, load value, load unit,
// tokens, owns, host id, rack.
type statusNode struct {
	state  string
	ip     string
	hostID string
	rack   string
}

func parseStatusNode(line string) (statusNode, bool) {
	words := strings.Fields(line)
	if len(words) != 8 {
		return statusNode{}, false
	}
	if !stateRe.MatchString(words[0]) || !ipRe.MatchString(words[1]) ||
		!tokensRe.MatchString(words[4]) || !hostIDRe.MatchString(words[6]) || !rackRe.MatchString(words[7]) {
		return statusNode{}, false
	}
	return statusNode{state: words[0], ip: words[1], hostID: words[6], rack: words[7]}, true
}

type datacenterNodes struct {
	name  string
	nodes []statusNode
}

func parseDatacenterSection(section string) datacenterNodes {
	lines := strings.Split(section, "\n")
	name := lines[0]
	var nodes []statusNode
	for _, line := range lines[1:] {
		if n, ok := parseStatusNode(line); ok {
			nodes = append(nodes, n)
		}
	}
	return datacenterNodes{name: name, nodes: nodes}
}

// ReverseLookup resolves an IP to a hostname, or returns the IP unchanged
// if the lookup fails.
type ReverseLookup func(ip string) string

// DefaultReverseLookup performs a real reverse-DNS lookup.
func DefaultReverseLookup(ip string) string {
	names, err := net.LookupAddr(ip)
	if err != nil || len(names) == 0 {
		return ip
	}
	return strings.TrimSuffix(names[0], ".")
}

// ParseNodetoolStatus parses the output of 'nodetool status' into a
// Topology. When resolveHostnames is true, each host's fqdn is looked up
// via lookup; on failure, the IP is used as the fqdn.
func ParseNodetoolStatus(text, clusterName string, resolveHostnames bool, lookup ReverseLookup) topology.Topology {
	sections := strings.Split(text, "Datacenter: ")[1:]
	dcs := make([]datacenterNodes, 0, len(sections))
	for _, s := range sections {
		dcs = append(dcs, parseDatacenterSection(s))
	}

	var hosts []topology.Host
	for _, dc := range dcs {
		for _, node := range dc.nodes {
			fqdn := node.ip
			if resolveHostnames && lookup != nil {
				fqdn = lookup(node.ip)
			}
			hosts = append(hosts, topology.Host{
				FQDN:    fqdn,
				IP:      node.ip,
				DC:      dc.name,
				Cluster: clusterName,
				IsUp:    node.state == "UN",
				Rack:    node.rack,
				HostID:  node.hostID,
			})
		}
	}
	return topology.New(hosts...)
}
