package interrupt

import (
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStopPreventsSaveFromRunning(t *testing.T) {
	called := make(chan bool, 1)
	h := NotifyOnSigint("job-1", func() bool {
		called <- true
		return true
	})
	h.Stop()

	// Give the goroutine a moment to process the stop before asserting
	// nothing fires afterward.
	time.Sleep(10 * time.Millisecond)
	select {
	case <-called:
		t.Fatal("save should not have been called after Stop")
	default:
	}
}

func TestNotifyOnSigintRegistersHandler(t *testing.T) {
	h := NotifyOnSigint("job-2", func() bool { return true })
	defer h.Stop()
	assert.NotNil(t, h)
	_ = syscall.SIGINT
}
