// Package metrics exposes the pipeline's Prometheus instrumentation. Metrics
// are process-global; the batch runner increments them and an optional HTTP
// listener serves them for scraping between runs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recap_runs_total",
		Help: "Pipeline runs by final status.",
	}, []string{"status"})

	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "recap_run_duration_seconds",
		Help:    "Wall-clock duration of pipeline runs.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	ActiveUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "recap_active_users",
		Help: "Active users scanned by the last run.",
	})

	MeetingsDiscovered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recap_meetings_discovered_total",
		Help: "Meeting candidates returned by platform list calls.",
	}, []string{"platform"})

	MeetingsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recap_meetings_processed_total",
		Help: "Meetings by terminal outcome per run step.",
	}, []string{"platform", "status"})

	TranscriptDownloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recap_transcript_downloads_total",
		Help: "Transcript fetch outcomes.",
	}, []string{"platform", "status"})

	SummaryGenerations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recap_summary_generations_total",
		Help: "Summary generation outcomes.",
	}, []string{"status"})

	APIErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recap_api_errors_total",
		Help: "Outbound API failures after retry, by platform and operation.",
	}, []string{"platform", "op"})
)

// Handler serves the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
