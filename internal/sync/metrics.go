package sync

import "github.com/prometheus/client_golang/prometheus"

var (
	usersSyncedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "performance_hub",
		Subsystem: "sync",
		Name:      "users_synced_total",
		Help:      "Number of users synced successfully.",
	})

	usersFailedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "performance_hub",
		Subsystem: "sync",
		Name:      "users_failed_total",
		Help:      "Number of per-user sync failures.",
	})

	recordsWrittenCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "performance_hub",
		Subsystem: "sync",
		Name:      "records_written_total",
		Help:      "Number of normalized metric records upserted.",
	})
)

func init() {
	prometheus.MustRegister(usersSyncedCounter, usersFailedCounter, recordsWrittenCounter)
}

func recordUserSynced(written int) {
	usersSyncedCounter.Inc()
	recordsWrittenCounter.Add(float64(written))
}

func recordUserFailed() {
	usersFailedCounter.Inc()
}
