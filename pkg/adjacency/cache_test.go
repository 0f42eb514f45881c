package adjacency

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cstarhq/cstar/pkg/strategy"
	"github.com/cstarhq/cstar/pkg/topology"
)

func TestCacheRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "adjacency.db")
	cache, err := OpenCache(path)
	require.NoError(t, err)
	defer cache.Close()

	top := topology.New(topology.Host{IP: "1.2.3.4", HostID: "h1", Cluster: "c1"})
	key := Key("c1", "schema-v1", top)

	_, found, err := cache.Get(key)
	require.NoError(t, err)
	assert.False(t, found)

	graph := strategy.AdjacencyGraph{"1.2.3.4": []topology.Host{{IP: "2.3.4.5"}}}
	require.NoError(t, cache.Put(key, graph))

	got, found, err := cache.Get(key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, graph["1.2.3.4"][0].IP, got["1.2.3.4"][0].IP)
}

func TestKeyChangesWithTopologyHash(t *testing.T) {
	topA := topology.New(topology.Host{IP: "1.2.3.4", HostID: "h1", Cluster: "c1"})
	topB := topology.New(topology.Host{IP: "1.2.3.4", HostID: "h2", Cluster: "c1"})
	assert.NotEqual(t, Key("c1", "schema-v1", topA), Key("c1", "schema-v1", topB))
}
