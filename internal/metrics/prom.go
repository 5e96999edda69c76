//go:build prom

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

var (
	// Counter metrics
	promCallsPrepared = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tonctl_calls_prepared_total",
		Help: "Total number of contract calls prepared",
	})

	promMessagesSubmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tonctl_messages_submitted_total",
		Help: "Total number of external messages submitted to the network",
	})

	promSubmitFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tonctl_submit_failures_total",
		Help: "Total number of failed message submissions",
	})

	promEmulationsRun = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tonctl_emulations_run_total",
		Help: "Total number of local emulator runs",
	})

	promReplaysTriggered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tonctl_replays_triggered_total",
		Help: "Total number of failure replays triggered",
	})

	promReplayFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tonctl_replay_failures_total",
		Help: "Total number of replay-machinery failures",
	})

	promConfigUpdates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tonctl_config_updates_built_total",
		Help: "Total number of signed configuration update messages built",
	})

	// Gauge metrics
	promLastExpireAt = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tonctl_last_expire_at_unix",
		Help: "Expiry timestamp of the most recently prepared message",
	})

	promSnapshotEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tonctl_snapshot_entries",
		Help: "Number of replay snapshots held in the archive",
	})
)

func init() {
	// Register all metrics with the default registry
	prometheus.MustRegister(
		promCallsPrepared,
		promMessagesSubmitted,
		promSubmitFailures,
		promEmulationsRun,
		promReplaysTriggered,
		promReplayFailures,
		promConfigUpdates,
		promLastExpireAt,
		promSnapshotEntries,
	)
}

// updatePrometheusMetrics synchronizes expvar metrics with Prometheus metrics
func updatePrometheusMetrics() {
	// Update counters
	promCallsPrepared.Add(float64(CallsPrepared.Value()) - getPromCounterValue(promCallsPrepared))
	promMessagesSubmitted.Add(float64(MessagesSubmitted.Value()) - getPromCounterValue(promMessagesSubmitted))
	promSubmitFailures.Add(float64(SubmitFailures.Value()) - getPromCounterValue(promSubmitFailures))
	promEmulationsRun.Add(float64(EmulationsRun.Value()) - getPromCounterValue(promEmulationsRun))
	promReplaysTriggered.Add(float64(ReplaysTriggered.Value()) - getPromCounterValue(promReplaysTriggered))
	promReplayFailures.Add(float64(ReplayFailures.Value()) - getPromCounterValue(promReplayFailures))
	promConfigUpdates.Add(float64(ConfigUpdates.Value()) - getPromCounterValue(promConfigUpdates))

	// Update gauges
	promLastExpireAt.Set(float64(GetLastExpireAt()))
	promSnapshotEntries.Set(float64(SnapshotEntries.Value()))
}

// getPromCounterValue gets the current value of a Prometheus counter
func getPromCounterValue(counter prometheus.Counter) float64 {
	metric := &dto.Metric{}
	if err := counter.Write(metric); err != nil {
		return 0
	}
	return metric.GetCounter().GetValue()
}

// PrometheusHandler returns an HTTP handler for Prometheus metrics
func PrometheusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Update Prometheus metrics from expvar before serving
		updatePrometheusMetrics()

		// Serve Prometheus metrics
		promhttp.Handler().ServeHTTP(w, r)
	})
}
