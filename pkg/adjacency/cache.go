package adjacency

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/cstarhq/cstar/pkg/strategy"
	"github.com/cstarhq/cstar/pkg/topology"
)

var bucketGraphs = []byte("adjacency_graphs")

// Cache is an on-disk cache of adjacency graphs, letting a new job skip the
// describering round trips when nothing in its key has changed. Only
// Supervisor.Setup consults it; Resume always recomputes the graph. Entries are
// keyed by cluster name, schema version and topology hash: any change to
// any of the three invalidates the cached entry.
type Cache struct {
	db *bolt.DB
}

// OpenCache opens (creating if absent) the bbolt-backed adjacency cache at
// path.
func OpenCache(path string) (*Cache, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open adjacency cache: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketGraphs)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Cache{db: db}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Key computes the cache key for a cluster at a particular schema version
// and topology hash.
func Key(clusterName, schemaVersion string, top topology.Topology) string {
	return clusterName + "/" + schemaVersion + "/" + top.Hash()
}

// Get returns the cached graph for key, and whether it was present.
func (c *Cache) Get(key string) (strategy.AdjacencyGraph, bool, error) {
	var graph strategy.AdjacencyGraph
	found := false
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketGraphs)
		data := b.Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &graph)
	})
	if err != nil {
		return nil, false, err
	}
	return graph, found, nil
}

// Put stores a graph under key.
func (c *Cache) Put(key string, graph strategy.AdjacencyGraph) error {
	data, err := json.Marshal(graph)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketGraphs)
		return b.Put([]byte(key), data)
	})
}
