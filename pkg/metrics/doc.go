/*
Package metrics provides Prometheus instrumentation and health endpoints for
a cstar job.

A cstar invocation is a single foreground process, not a long-lived daemon,
but a topology-strategy run against a large cluster can still take hours.
When --metrics-addr is given, the process serves /metrics, /healthz,
/readyz and /livez for the life of that one job.

# Metrics Catalog

cstar_hosts_dispatched_total{cluster}:
  - Type: Counter
  - Description: Total hosts a command was dispatched to, by cluster

cstar_hosts_done_total{cluster}:
  - Type: Counter
  - Description: Total hosts that finished a command successfully

cstar_hosts_failed_total{cluster}:
  - Type: Counter
  - Description: Total hosts where a command failed

cstar_dispatch_latency_seconds:
  - Type: Histogram
  - Description: Time between a host becoming eligible and the command starting on it

cstar_command_duration_seconds{cluster}:
  - Type: Histogram
  - Description: Time taken for a command to run on a single host

cstar_health_probe_duration_seconds:
  - Type: Histogram
  - Description: Time taken to probe cluster topology and node status over ssh

cstar_health_probe_failures_total:
  - Type: Counter
  - Description: Total health probes where no candidate host answered

cstar_adjacency_cache_hits_total / cstar_adjacency_cache_misses_total:
  - Type: Counter
  - Description: Replica adjacency graph lookups served from the on-disk
    cache versus recomputed from nodetool output

cstar_adjacency_build_duration_seconds:
  - Type: Histogram
  - Description: Time taken to build the replica adjacency graph

cstar_journal_writes_total / cstar_journal_write_duration_seconds:
  - Type: Counter / Histogram
  - Description: Journal checkpoint writes and their duration

cstar_jobs_total{outcome} / cstar_job_duration_seconds:
  - Type: Counter / Histogram
  - Description: Jobs started by outcome (succeeded/failed/interrupted) and
    total wall-clock job duration

# Health Endpoints

/healthz reports the status of every registered component as JSON, with a
503 if any component is unhealthy.

/readyz reports whether the job's critical components (topology discovery,
ssh connectivity) are ready, 503 otherwise.

/livez always returns 200 with the process uptime while the job is running.

# Usage

	timer := metrics.NewTimer()
	// ... run the command ...
	timer.ObserveDurationVec(metrics.CommandDuration, host.Cluster)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/healthz", metrics.HealthHandler())
	http.ListenAndServe(addr, mux)
*/
package metrics
