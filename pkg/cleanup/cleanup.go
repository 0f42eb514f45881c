// Package cleanup removes stale job directories under ~/.cstar/jobs.
package cleanup

import (
	"os"
	"path/filepath"

	"github.com/cstarhq/cstar/pkg/journal"
	"github.com/cstarhq/cstar/pkg/log"
)

// Run deletes every job directory under jobsDir whose journal fails to
// parse or has aged past maxDays. A job directory is kept whenever its
// journal reads back cleanly, regardless of whether the job itself ever
// completed.
func Run(jobsDir string, maxDays int) error {
	entries, err := os.ReadDir(jobsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		jobID := entry.Name()
		dir := filepath.Join(jobsDir, jobID)

		_, err := journal.Read(dir, journal.ReadOptions{MaxAgeDays: maxDays})
		if err != nil {
			log.WithJob(jobID).Info().Str("reason", err.Error()).Msg("removing job")
			if err := os.RemoveAll(dir); err != nil {
				return err
			}
		}
	}
	return nil
}

// DefaultJobsDir returns ~/.cstar/jobs.
func DefaultJobsDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cstar", "jobs"), nil
}
