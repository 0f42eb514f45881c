package adjacency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cstarhq/cstar/pkg/nodetool"
	"github.com/cstarhq/cstar/pkg/topology"
)

func sampleTopology() topology.Topology {
	return topology.New(
		topology.Host{FQDN: "a", IP: "1.2.3.4", DC: "eu", Cluster: "c1", HostID: "h1"},
		topology.Host{FQDN: "b", IP: "2.3.4.5", DC: "eu", Cluster: "c1", HostID: "h2"},
		topology.Host{FQDN: "c", IP: "3.4.5.6", DC: "us", Cluster: "c1", HostID: "h3"},
	)
}

func TestBuildFiltersCrossDCReplicas(t *testing.T) {
	ranges := []nodetool.Range{
		{StartToken: "0", EndToken: "100", Endpoints: []string{"1.2.3.4", "2.3.4.5", "3.4.5.6"}},
	}

	graph, err := Build(ranges, sampleTopology(), IdentityResolver)
	require.NoError(t, err)

	friendsOfA := graph["1.2.3.4"]
	require.Len(t, friendsOfA, 1)
	assert.Equal(t, "2.3.4.5", friendsOfA[0].IP)

	// c is in a different DC, so it gets no same-DC friends from this range.
	assert.Empty(t, graph["3.4.5.6"])
}

func TestBuildIncludesEveryHostEvenWithNoReplicas(t *testing.T) {
	graph, err := Build(nil, sampleTopology(), IdentityResolver)
	require.NoError(t, err)
	assert.Len(t, graph, 3)
}

func TestMerge(t *testing.T) {
	a := map[string][]topology.Host{"1.2.3.4": {{IP: "2.3.4.5"}}}
	b := map[string][]topology.Host{"1.2.3.4": {{IP: "3.4.5.6"}}}
	merged := Merge(a, b)
	assert.Len(t, merged["1.2.3.4"], 2)
}
