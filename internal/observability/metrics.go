// Package observability exposes process-wide Prometheus watermarks.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsPersistedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "performance_hub",
		Subsystem: "persistence",
		Name:      "last_metrics_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent metric batch persisted to Postgres.",
	})
	syncCompletedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "performance_hub",
		Subsystem: "sync",
		Name:      "last_run_completed_timestamp_seconds",
		Help:      "Unix timestamp of the most recent completed sync run.",
	})
)

func init() {
	prometheus.MustRegister(metricsPersistedGauge, syncCompletedGauge)
}

// RecordMetricsPersisted updates the persistence watermark gauge.
func RecordMetricsPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	metricsPersistedGauge.Set(float64(ts.Unix()))
}

// RecordSyncCompleted updates the sync run watermark gauge.
func RecordSyncCompleted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	syncCompletedGauge.Set(float64(ts.Unix()))
}
