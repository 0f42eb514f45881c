package hostvars

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmptyPath(t *testing.T) {
	vars, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, vars)
}

func TestLoadParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hosts.yaml")
	content := "node1.example.com:\n  SNAPSHOT_NAME: weekly\nnode2.example.com:\n  SNAPSHOT_NAME: hourly\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	vars, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "weekly", vars.For("node1.example.com")["SNAPSHOT_NAME"])
	assert.Equal(t, "hourly", vars.For("node2.example.com")["SNAPSHOT_NAME"])
	assert.Empty(t, vars.For("unknown.example.com"))
}
