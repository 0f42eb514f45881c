// Package interrupt arranges for an in-progress job to save its journal
// before exiting on SIGINT, so it can be resumed with "cstar continue".
package interrupt

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cstarhq/cstar/pkg/log"
)

// SaveFunc persists whatever state is needed to resume a job. It returns
// true if it actually wrote a journal.
type SaveFunc func() bool

// Handle cancels the SIGINT hook it installed.
type Handle struct {
	stop chan struct{}
}

// Stop removes the signal hook, restoring default SIGINT handling.
func (h *Handle) Stop() {
	close(h.stop)
}

// NotifyOnSigint installs a SIGINT handler that calls save and prints a
// resume hint naming jobID before exiting with status 1. Only one signal is
// handled; the process exits (gracelessly, mid-save or not) on receipt.
func NotifyOnSigint(jobID string, save SaveFunc) *Handle {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT)

	h := &Handle{stop: make(chan struct{})}

	go func() {
		select {
		case <-sigCh:
			signal.Stop(sigCh)
			if save() {
				fmt.Printf("\nShutting down gracefully. Hit ^C again to shut down gracelessly.\n\n"+
					"To resume, type cstar continue %s\n", jobID)
			} else {
				log.Warn("interrupted before a job was set up, nothing to resume")
			}
			os.Exit(1)
		case <-h.stop:
			signal.Stop(sigCh)
		}
	}()

	return h
}
