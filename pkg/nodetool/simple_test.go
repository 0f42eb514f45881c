package nodetool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDescribeCluster = `Cluster Information:
	Name: c3111
	Snitch: org.apache.cassandra.locator.GossipingPropertyFileSnitch
	DynamicEndPointSnitch: enabled
	Partitioner: org.apache.cassandra.dht.Murmur3Partitioner
	Schema versions:
		d8210030-20a4-3f05-b2ef-ea154a6d8ef6: [127.0.0.1, 127.0.0.2, 127.0.0.3]
`

func TestParseDescribeCluster(t *testing.T) {
	name, schemaVersion, err := ParseDescribeCluster(sampleDescribeCluster)
	require.NoError(t, err)
	assert.Equal(t, "c3111", name)
	assert.Equal(t, "d8210030-20a4-3f05-b2ef-ea154a6d8ef6", schemaVersion)
}

const sampleCFStats = `Keyspace: reaper_db
	Read Count: 0
Keyspace: system_traces
	Read Count: 0
Keyspace: system
	Read Count: 0
Keyspace: system_distributed
	Read Count: 0
Keyspace: system_auth
	Read Count: 0
`

func TestExtractKeyspacesFromCFStats(t *testing.T) {
	keyspaces := ExtractKeyspacesFromCFStats(sampleCFStats)
	assert.Equal(t, []string{"reaper_db", "system_traces", "system", "system_distributed", "system_auth"}, keyspaces)
}
