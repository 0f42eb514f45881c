package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Dispatch metrics
	HostsDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cstar_hosts_dispatched_total",
			Help: "Total number of hosts a command was dispatched to, by cluster",
		},
		[]string{"cluster"},
	)

	HostsDoneTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cstar_hosts_done_total",
			Help: "Total number of hosts that finished a command successfully",
		},
		[]string{"cluster"},
	)

	HostsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cstar_hosts_failed_total",
			Help: "Total number of hosts where a command failed",
		},
		[]string{"cluster"},
	)

	DispatchLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cstar_dispatch_latency_seconds",
			Help:    "Time between a host becoming eligible and the command starting on it",
			Buckets: prometheus.DefBuckets,
		},
	)

	CommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cstar_command_duration_seconds",
			Help:    "Time taken for a command to run on a single host",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"cluster"},
	)

	// Health probe metrics
	HealthProbeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cstar_health_probe_duration_seconds",
			Help:    "Time taken to probe cluster topology and node status over ssh",
			Buckets: prometheus.DefBuckets,
		},
	)

	HealthProbeFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cstar_health_probe_failures_total",
			Help: "Total number of health probes where no candidate host answered",
		},
	)

	// Adjacency cache metrics
	AdjacencyCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cstar_adjacency_cache_hits_total",
			Help: "Total number of adjacency graph lookups served from the on-disk cache",
		},
	)

	AdjacencyCacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cstar_adjacency_cache_misses_total",
			Help: "Total number of adjacency graph lookups that required recomputation",
		},
	)

	AdjacencyBuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cstar_adjacency_build_duration_seconds",
			Help:    "Time taken to build the replica adjacency graph from nodetool output",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Journal metrics
	JournalWritesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cstar_journal_writes_total",
			Help: "Total number of journal checkpoint writes",
		},
	)

	JournalWriteDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cstar_journal_write_duration_seconds",
			Help:    "Time taken to atomically write a journal checkpoint",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Job metrics
	JobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cstar_jobs_total",
			Help: "Total number of jobs started, by outcome",
		},
		[]string{"outcome"},
	)

	JobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cstar_job_duration_seconds",
			Help:    "Total wall-clock duration of a job from setup to completion",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600, 7200},
		},
	)
)

func init() {
	prometheus.MustRegister(HostsDispatchedTotal)
	prometheus.MustRegister(HostsDoneTotal)
	prometheus.MustRegister(HostsFailedTotal)
	prometheus.MustRegister(DispatchLatency)
	prometheus.MustRegister(CommandDuration)
	prometheus.MustRegister(HealthProbeDuration)
	prometheus.MustRegister(HealthProbeFailuresTotal)
	prometheus.MustRegister(AdjacencyCacheHitsTotal)
	prometheus.MustRegister(AdjacencyCacheMissesTotal)
	prometheus.MustRegister(AdjacencyBuildDuration)
	prometheus.MustRegister(JournalWritesTotal)
	prometheus.MustRegister(JournalWriteDuration)
	prometheus.MustRegister(JobsTotal)
	prometheus.MustRegister(JobDuration)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
