package strategy

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cstarhq/cstar/pkg/progress"
	"github.com/cstarhq/cstar/pkg/topology"
)

func makeTopology(size int, hasDownHost bool) topology.Topology {
	var hosts []topology.Host
	for i := 0; i < size; i++ {
		hosts = append(hosts,
			topology.Host{FQDN: "a", IP: fmt.Sprintf("1.2.3.%d", i), DC: "eu", Cluster: "cluster1", Rack: fmt.Sprintf("%d", i*100), IsUp: !hasDownHost, HostID: fmt.Sprintf("a%d", i)},
			topology.Host{FQDN: "b", IP: fmt.Sprintf("2.2.3.%d", i), DC: "us", Cluster: "cluster1", Rack: fmt.Sprintf("%d", i*100+1), IsUp: true, HostID: fmt.Sprintf("b%d", i)},
			topology.Host{FQDN: "c", IP: fmt.Sprintf("3.2.3.%d", i), DC: "eu", Cluster: "cluster2", Rack: fmt.Sprintf("%d", i*100), IsUp: true, HostID: fmt.Sprintf("c%d", i)},
			topology.Host{FQDN: "d", IP: fmt.Sprintf("4.2.3.%d", i), DC: "us", Cluster: "cluster2", Rack: fmt.Sprintf("%d", i*100+1), IsUp: true, HostID: fmt.Sprintf("d%d", i)},
		)
	}
	return topology.New(hosts...)
}

func makeMapping(top topology.Topology) AdjacencyGraph {
	size := top.Len() / 4
	mapping := AdjacencyGraph{}
	for i := 0; i < size; i++ {
		for _, j := range []int{(i + 1) % size, (i + 2) % size, (i + size - 2) % size, (i + size - 1) % size} {
			for _, k := range []int{1, 2, 3, 4} {
				a, err := top.GetHost(fmt.Sprintf("%d.2.3.%d", k, i))
				if err != nil {
					continue
				}
				b, err := top.GetHost(fmt.Sprintf("%d.2.3.%d", k, j))
				if err != nil {
					continue
				}
				mapping[a.IP] = append(mapping[a.IP], b)
			}
		}
	}
	return mapping
}

// addWork repeatedly calls Pick and moves each returned host into running
// until none remain eligible.
func addWork(t *testing.T, top topology.Topology, p progress.Progress, params Params) progress.Progress {
	t.Helper()
	for {
		h, ok, err := Pick(top, p, params)
		require.NoError(t, err)
		if !ok {
			return p
		}
		p = p.WithRunning(h)
	}
}

func finishWork(p progress.Progress) progress.Progress {
	next := p
	for _, h := range p.RunningHosts() {
		next = next.WithDone(h)
	}
	return next
}

func TestPickAllRunsEveryHost(t *testing.T) {
	top := makeTopology(3, false)
	p := progress.New(nil, nil, nil)
	p = addWork(t, top, p, Params{Strategy: All, ClusterParallel: true, DCParallel: true})
	assert.Len(t, p.Running, 12)
}

func TestPickAllFailsIfDown(t *testing.T) {
	top := makeTopology(3, true)
	p := progress.New(nil, nil, nil)
	_, _, err := Pick(top, p, Params{Strategy: All, ClusterParallel: true, DCParallel: true})
	assert.Error(t, err)
}

func TestPickAllIgnoresDownWhenAsked(t *testing.T) {
	top := makeTopology(3, true)
	p := progress.New(nil, nil, nil)
	p = addWork(t, top, p, Params{Strategy: All, ClusterParallel: true, DCParallel: true, IgnoreDownNodes: true})
	assert.Len(t, p.Running, 12)
}

func TestPickAllMaxConcurrency(t *testing.T) {
	top := makeTopology(3, false)
	p := progress.New(nil, nil, nil)
	p = addWork(t, top, p, Params{Strategy: All, ClusterParallel: true, DCParallel: true, MaxConcurrency: 10})
	assert.Len(t, p.Running, 10)
}

func TestPickAllPerDC(t *testing.T) {
	// makeTopology reuses DC names ("eu"/"us") across cluster1 and cluster2,
	// so with dc_parallel=false the restriction must bind to (cluster, dc),
	// never to dc alone: every host in Running shares one (cluster, dc) pair.
	top := makeTopology(3, false)
	p := progress.New(nil, nil, nil)
	params := Params{Strategy: All, ClusterParallel: true, DCParallel: false}

	p = addWork(t, top, p, params)
	assert.Len(t, p.Running, 3)
	assertSharedDC(t, p.RunningHosts())
	p = finishWork(p)

	p = addWork(t, top, p, params)
	assert.Len(t, p.Running, 3)
	assertSharedDC(t, p.RunningHosts())
}

func assertSharedDC(t *testing.T, hosts []topology.Host) {
	t.Helper()
	require.NotEmpty(t, hosts)
	cluster, dc := hosts[0].Cluster, hosts[0].DC
	for _, h := range hosts {
		assert.Equal(t, cluster, h.Cluster)
		assert.Equal(t, dc, h.DC)
	}
}

func TestPickAllPerCluster(t *testing.T) {
	top := makeTopology(3, false)
	p := progress.New(nil, nil, nil)
	params := Params{Strategy: All, ClusterParallel: false, DCParallel: true}

	p = addWork(t, top, p, params)
	assert.Len(t, p.Running, 6)
	p = finishWork(p)

	p = addWork(t, top, p, params)
	assert.Len(t, p.Running, 6)
}

func TestPickOne(t *testing.T) {
	top := makeTopology(3, false)
	p := progress.New(nil, nil, nil)
	params := Params{Strategy: One, ClusterParallel: true, DCParallel: true}

	p = addWork(t, top, p, params)
	assert.Len(t, p.Running, 1)
	p = finishWork(p)

	p = addWork(t, top, p, params)
	assert.Len(t, p.Running, 1)
}

func TestPickTopologyParallel(t *testing.T) {
	top := makeTopology(12, false)
	mapping := makeMapping(top)
	params := Params{Strategy: Topology, Adjacency: mapping, ClusterParallel: true, DCParallel: true}

	p := progress.New(nil, nil, nil)
	laps := 0
	for {
		p = addWork(t, top, p, params)
		if len(p.Running) == 0 {
			break
		}
		laps++
		assert.Len(t, p.Running, 16)
		p = finishWork(p)
	}
	assert.Equal(t, 3, laps)
}

func TestPickTopologySerial(t *testing.T) {
	top := makeTopology(12, false)
	mapping := makeMapping(top)
	params := Params{Strategy: Topology, Adjacency: mapping, ClusterParallel: false, DCParallel: false}

	p := progress.New(nil, nil, nil)
	laps := 0
	for {
		p = addWork(t, top, p, params)
		if len(p.Running) == 0 {
			break
		}
		laps++
		assert.Len(t, p.Running, 4)
		p = finishWork(p)
	}
	assert.Equal(t, 12, laps)
}
