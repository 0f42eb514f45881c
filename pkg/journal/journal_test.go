package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cstarhq/cstar/pkg/progress"
	"github.com/cstarhq/cstar/pkg/strategy"
	"github.com/cstarhq/cstar/pkg/topology"
)

func sampleTopology() topology.Topology {
	return topology.New(
		topology.Host{FQDN: "a", IP: "1.2.3.4", Cluster: "c1", HostID: "h1"},
		topology.Host{FQDN: "b", IP: "2.3.4.5", Cluster: "c1", HostID: "h2"},
	)
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().UTC()
	top := sampleTopology()
	p := progress.New(nil, []topology.Host{{IP: "1.2.3.4"}}, nil)

	rec := ToRecord([]string{"nodetool", "flush"}, 120, map[string]string{"FOO": "bar"}, "",
		0.5, 0, "op", "", "", "ssh", "", "", nil,
		strategy.All, true, true, 0, top, top, p, false, now)

	require.NoError(t, Write(dir, rec))

	got, err := Read(dir, ReadOptions{Now: now})
	require.NoError(t, err)
	assert.Equal(t, FormatVersion, got.Version)
	assert.Equal(t, []string{"nodetool", "flush"}, got.Command)
	assert.Len(t, got.State.Progress.Running, 1)
}

func TestReadRejectsWrongVersion(t *testing.T) {
	dir := t.TempDir()
	rec := Record{Version: 3}
	require.NoError(t, Write(dir, rec))

	_, err := Read(dir, ReadOptions{})
	assert.Error(t, err)
}

func TestReadRejectsTooOld(t *testing.T) {
	dir := t.TempDir()
	old := time.Now().UTC().Add(-30 * 24 * time.Hour)
	rec := ToRecord(nil, 0, nil, "", 0, 0, "", "", "", "", "", "", nil,
		strategy.One, true, true, 0, sampleTopology(), sampleTopology(), progress.New(nil, nil, nil), false, old)

	require.NoError(t, Write(dir, rec))

	_, err := Read(dir, ReadOptions{Now: time.Now().UTC(), MaxAgeDays: 7})
	assert.Error(t, err)
}

func TestReadRetryFailedClearsFailedSet(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().UTC()
	p := progress.New(nil, nil, []topology.Host{{IP: "1.2.3.4"}})
	rec := ToRecord(nil, 0, nil, "", 0, 0, "", "", "", "", "", "", nil,
		strategy.One, true, true, 0, sampleTopology(), sampleTopology(), p, false, now)
	require.NoError(t, Write(dir, rec))

	got, err := Read(dir, ReadOptions{Now: now, RetryFailed: true})
	require.NoError(t, err)
	assert.Empty(t, got.State.Progress.Failed)
}

func TestDirDefaultsUnderHome(t *testing.T) {
	dir, err := Dir("job-123", "")
	require.NoError(t, err)
	assert.Contains(t, dir, filepath.Join(".cstar", "jobs", "job-123"))
}
