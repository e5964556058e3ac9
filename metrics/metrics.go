package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// UploadsTotal counts upload attempts by outcome (accepted, rejected, failed).
	UploadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coherence",
		Subsystem: "api",
		Name:      "uploads_total",
		Help:      "Total number of video upload requests, labeled by outcome.",
	}, []string{"outcome"})

	// StatusPollsTotal counts status endpoint hits.
	StatusPollsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "coherence",
		Subsystem: "api",
		Name:      "status_polls_total",
		Help:      "Total number of status poll requests served.",
	})

	// JobsInFlight is the number of processing jobs currently running.
	JobsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "coherence",
		Subsystem: "jobs",
		Name:      "in_flight",
		Help:      "Current number of analysis jobs being processed.",
	})

	// ProcessingDurationSeconds is end-to-end analysis time per job.
	ProcessingDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "coherence",
		Subsystem: "jobs",
		Name:      "processing_duration_seconds",
		Help:      "End-to-end time from upload acceptance to terminal status.",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"result"})

	// SearchesTotal counts transcript moment searches by backend.
	SearchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coherence",
		Subsystem: "search",
		Name:      "queries_total",
		Help:      "Total number of moment search queries, labeled by index backend.",
	}, []string{"backend"})

	// ReportsTotal counts report generations by outcome.
	ReportsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coherence",
		Subsystem: "api",
		Name:      "reports_total",
		Help:      "Total number of PDF report generations, labeled by outcome.",
	}, []string{"outcome"})
)

// Register registers all collectors with the default registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			UploadsTotal,
			StatusPollsTotal,
			JobsInFlight,
			ProcessingDurationSeconds,
			SearchesTotal,
			ReportsTotal,
		)
	})
}
