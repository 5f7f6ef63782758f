// Package metrics holds the prometheus collectors for the memory tiers and
// background jobs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	EntriesStored = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tiermem",
		Name:      "entries_stored_total",
		Help:      "Entries written per tier.",
	}, []string{"tier"})

	EmbedFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tiermem",
		Name:      "embed_failures_total",
		Help:      "Embedding calls that failed or returned unusable vectors.",
	}, []string{"reason"})

	WorkingEvicted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tiermem",
		Name:      "working_evicted_total",
		Help:      "Working entries evicted by rotation.",
	})

	DedupDeleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tiermem",
		Name:      "dedup_deleted_total",
		Help:      "Episodes removed as near duplicates.",
	})

	SweepDeleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "tiermem",
		Name:      "sweep_deleted_total",
		Help:      "Expired episodes removed by the sweeper.",
	})

	AssembleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tiermem",
		Name:      "assemble_duration_seconds",
		Help:      "Time to assemble a context pack.",
		Buckets:   prometheus.DefBuckets,
	})

	JobRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tiermem",
		Name:      "job_runs_total",
		Help:      "Background job runs by job and outcome.",
	}, []string{"job", "outcome"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		EntriesStored,
		EmbedFailures,
		WorkingEvicted,
		DedupDeleted,
		SweepDeleted,
		AssembleDuration,
		JobRuns,
	)
}

// Handler serves the registry in the prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
