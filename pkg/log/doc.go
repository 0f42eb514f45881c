/*
Package log provides structured logging for cstar using zerolog.

The log package wraps zerolog to provide JSON or console structured
logging, a configurable level, and job/host/cluster/component-scoped child
loggers for tracing one job's output back to the host or cluster it
concerns.

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init(Config{Level, JSONOutput, Output})
  - Thread-safe concurrent writes

Level:
  - Debug: verbose per-host detail, enabled by -v/--verbose
  - Info: job lifecycle events (setup, dispatch, completion)
  - Warn: recoverable problems (a host failed, a retry is happening)
  - Error / Fatal: unrecoverable errors; Fatal exits the process

Scoped Loggers:
  - WithComponent(name) - a logger tagged with a component field
  - WithJob(jobID) - a logger tagged with the running job's id
  - WithHost(fqdn) - a logger tagged with the host a command is running on
  - WithCluster(cluster) - a logger tagged with a cluster name

# Usage

	import "github.com/cstarhq/cstar/pkg/log"

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	log.Info("job id is " + jobID)
	log.Warn("host unreachable, retrying")
	log.Errorf("metrics server stopped", err)

	jobLog := log.WithJob(jobID)
	jobLog.Info().Str("host", host.FQDN).Msg("dispatching command")
*/
package log
