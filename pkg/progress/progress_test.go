package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cstarhq/cstar/pkg/topology"
)

var hostA = topology.Host{FQDN: "a", IP: "1.2.3.4"}
var hostB = topology.Host{FQDN: "b", IP: "2.3.4.5"}

func TestWithRunningDoesNotMutateOriginal(t *testing.T) {
	p := New(nil, nil, nil)
	next := p.WithRunning(hostA)

	assert.Empty(t, p.Running)
	assert.Len(t, next.Running, 1)
}

func TestWithDoneRemovesFromRunning(t *testing.T) {
	p := New(nil, nil, nil).WithRunning(hostA)
	next := p.WithDone(hostA)

	assert.Contains(t, next.Done, hostA.IP)
	assert.NotContains(t, next.Running, hostA.IP)
}

func TestWithFailedRemovesFromRunning(t *testing.T) {
	p := New(nil, nil, nil).WithRunning(hostA)
	next := p.WithFailed(hostA)

	assert.Contains(t, next.Failed, hostA.IP)
	assert.NotContains(t, next.Running, hostA.IP)
}

func TestResetFailedClearsOnlyFailed(t *testing.T) {
	p := New([]topology.Host{hostB}, nil, []topology.Host{hostA})
	next := p.ResetFailed()

	assert.Empty(t, next.Failed)
	assert.Len(t, next.Done, 1)
}
