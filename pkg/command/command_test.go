package command

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHeaderProperties(t *testing.T) {
	definition := "#!/bin/sh\n" +
		"# C* description: does a thing\n" +
		"# C* strategy: all\n" +
		"# C* cluster-parallel: true\n" +
		"# C* dc-parallel: false\n" +
		"echo hello\n"

	cmd, err := parse("mycommand", "mycommand", definition)
	require.NoError(t, err)

	assert.Equal(t, "does a thing", cmd.Description)
	assert.Equal(t, "all", cmd.Strategy)
	require.NotNil(t, cmd.ClusterParallel)
	assert.True(t, *cmd.ClusterParallel)
	require.NotNil(t, cmd.DCParallel)
	assert.False(t, *cmd.DCParallel)
}

func TestParseHeaderArgument(t *testing.T) {
	definition := "#!/bin/sh\n" +
		`# C* argument: {"name": "SNAPSHOT_NAME", "option": "--snapshot-name", "description": "name", "required": true}` + "\n" +
		"nodetool snapshot -t $SNAPSHOT_NAME\n"

	cmd, err := parse("snapshot", "snapshot", definition)
	require.NoError(t, err)

	require.Len(t, cmd.Arguments, 1)
	assert.Equal(t, "SNAPSHOT_NAME", cmd.Arguments[0].Name)
	assert.True(t, cmd.Arguments[0].Required)
}

func TestParseKeepsFullScriptBody(t *testing.T) {
	definition := "#!/bin/sh\n" +
		"# C* description: does a thing\n" +
		"echo hello\n"

	cmd, err := parse("mycommand", "mycommand", definition)
	require.NoError(t, err)
	assert.Equal(t, definition, cmd.Script)
}

func TestParseHeaderStopsAtFirstNonComment(t *testing.T) {
	definition := "#!/bin/sh\n" +
		"echo hi\n" +
		"# C* description: ignored, past the header\n"

	cmd, err := parse("x", "x", definition)
	require.NoError(t, err)
	assert.Empty(t, cmd.Description)
}

func TestParseBadArgumentName(t *testing.T) {
	definition := `# C* argument: {"name": "bad name", "option": "--x", "description": "d"}` + "\n"
	_, err := parse("x", "x", definition)
	assert.Error(t, err)
}

func TestLoadBuiltinCommand(t *testing.T) {
	cmd, err := Load("status")
	require.NoError(t, err)
	assert.Equal(t, "one", cmd.Strategy)
}

func TestLoadUserCommandOverridesBuiltin(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	cmdDir := filepath.Join(dir, ".cstar", "commands")
	require.NoError(t, os.MkdirAll(cmdDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(cmdDir, "status"), []byte("# C* description: custom\necho hi\n"), 0755))

	cmd, err := Load("status")
	require.NoError(t, err)
	assert.Equal(t, "custom", cmd.Description)
}

func TestLoadMissingCommand(t *testing.T) {
	_, err := Load("does-not-exist-anywhere")
	assert.Error(t, err)
}

func TestListIncludesBuiltins(t *testing.T) {
	names := List()
	assert.Contains(t, names, "status")
	assert.Contains(t, names, "drain")
}
