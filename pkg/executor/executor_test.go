package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscapeLeavesAlnumAlone(t *testing.T) {
	assert.Equal(t, "plainvalue", Escape("plainvalue"))
}

func TestEscapeQuotesSpecialChars(t *testing.T) {
	assert.Equal(t, `'it'\''s'`, Escape("it's"))
}

func TestValidateEnvRejectsBadNames(t *testing.T) {
	err := validateEnv(map[string]string{"BAD NAME": "x"})
	assert.Error(t, err)
}

func TestValidateEnvAcceptsGoodNames(t *testing.T) {
	err := validateEnv(map[string]string{"SNAPSHOT_NAME": "weekly"})
	assert.NoError(t, err)
}

func TestNewRejectsEmptyHostname(t *testing.T) {
	_, err := New("", Config{})
	assert.Error(t, err)
}

func TestJobScriptGuardsOnExistingStatus(t *testing.T) {
	script := jobScript(".cstar/remote-jobs/job1", nil, "echo hi")
	assert.Contains(t, script, "if [ -f status ]; then")
	assert.Contains(t, script, `exit "$(cat status)"`)
	assert.Contains(t, script, "echo hi")
}

func TestJobScriptIncludesEnvPrefix(t *testing.T) {
	script := jobScript(".cstar/remote-jobs/job1", map[string]string{"SNAPSHOT_NAME": "weekly"}, "echo hi")
	assert.Contains(t, script, "export SNAPSHOT_NAME=weekly")
}
