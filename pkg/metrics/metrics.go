package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobsDiscovered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "felix_jobs_discovered_total",
			Help: "Total number of maintenance jobs produced by discovery",
		},
	)

	SchedulesIssued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "felix_schedules_issued_total",
			Help: "Total number of maintenance schedule requests accepted by the provider",
		},
	)

	HostOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "felix_host_outcomes_total",
			Help: "Terminal per-host outcomes by state",
		},
		[]string{"state"},
	)

	PassDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "felix_pass_duration_seconds",
			Help:    "Duration of a full orchestrator pass in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		},
	)
)

// Register registers all collectors with the default registry.
func Register() {
	prometheus.MustRegister(
		JobsDiscovered,
		SchedulesIssued,
		HostOutcomes,
		PassDuration,
	)
}

// Handler returns the HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
