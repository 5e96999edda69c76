package metrics

import (
	"expvar"
	"net/http"
	"sync/atomic"
	"time"
)

// Global metrics exposed via expvar
var (
	// Counters
	CallsPrepared     = expvar.NewInt("calls_prepared")
	MessagesSubmitted = expvar.NewInt("messages_submitted")
	SubmitFailures    = expvar.NewInt("submit_failures")
	EmulationsRun     = expvar.NewInt("emulations_run")
	ReplaysTriggered  = expvar.NewInt("replays_triggered")
	ReplayFailures    = expvar.NewInt("replay_failures")
	ConfigUpdates     = expvar.NewInt("config_updates_built")

	// Gauges (using atomic values)
	lastExpireAt    int64
	snapshotEntries int64

	// Expvar gauges
	LastExpireAt    = expvar.NewInt("last_expire_at_unix")
	SnapshotEntries = expvar.NewInt("snapshot_entries")

	// String metrics
	OutputMode = expvar.NewString("output_mode")
	StartTime  = expvar.NewString("start_time")
)

// Initialize metrics on package load
func init() {
	StartTime.Set(time.Now().UTC().Format(time.RFC3339))
	OutputMode.Set("interactive")
}

// SetOutputMode records whether the tool runs in json or interactive mode
func SetOutputMode(mode string) {
	OutputMode.Set(mode)
}

// IncrementCallsPrepared increments the prepared-calls counter
func IncrementCallsPrepared() {
	CallsPrepared.Add(1)
}

// IncrementMessagesSubmitted increments the submissions counter
func IncrementMessagesSubmitted() {
	MessagesSubmitted.Add(1)
}

// IncrementSubmitFailures increments the failed-submissions counter
func IncrementSubmitFailures() {
	SubmitFailures.Add(1)
}

// IncrementEmulationsRun increments the local-emulation counter
func IncrementEmulationsRun() {
	EmulationsRun.Add(1)
}

// IncrementReplaysTriggered increments the replay counter
func IncrementReplaysTriggered() {
	ReplaysTriggered.Add(1)
}

// IncrementReplayFailures increments the replay-machinery-failure counter
func IncrementReplayFailures() {
	ReplayFailures.Add(1)
}

// IncrementConfigUpdates increments the config-update-built counter
func IncrementConfigUpdates() {
	ConfigUpdates.Add(1)
}

// SetLastExpireAt updates the gauge recording the last message expiry
func SetLastExpireAt(timestamp time.Time) {
	unixTime := timestamp.Unix()
	atomic.StoreInt64(&lastExpireAt, unixTime)
	LastExpireAt.Set(unixTime)
}

// SetSnapshotEntries updates the archived-snapshot count gauge
func SetSnapshotEntries(count int64) {
	atomic.StoreInt64(&snapshotEntries, count)
	SnapshotEntries.Set(count)
}

// GetLastExpireAt returns the last recorded expiry as a Unix timestamp
func GetLastExpireAt() int64 {
	return atomic.LoadInt64(&lastExpireAt)
}

// Handler returns the HTTP handler for /debug/vars
func Handler() http.Handler {
	return expvar.Handler()
}

// Snapshot represents a point-in-time snapshot of metrics
type Snapshot struct {
	CallsPrepared     int64     `json:"calls_prepared"`
	MessagesSubmitted int64     `json:"messages_submitted"`
	SubmitFailures    int64     `json:"submit_failures"`
	EmulationsRun     int64     `json:"emulations_run"`
	ReplaysTriggered  int64     `json:"replays_triggered"`
	ReplayFailures    int64     `json:"replay_failures"`
	ConfigUpdates     int64     `json:"config_updates_built"`
	LastExpireAt      int64     `json:"last_expire_at_unix"`
	SnapshotEntries   int64     `json:"snapshot_entries"`
	OutputMode        string    `json:"output_mode"`
	StartTime         string    `json:"start_time"`
	SnapshotTime      time.Time `json:"snapshot_time"`
}

// GetSnapshot returns a snapshot of current metrics
func GetSnapshot() *Snapshot {
	return &Snapshot{
		CallsPrepared:     CallsPrepared.Value(),
		MessagesSubmitted: MessagesSubmitted.Value(),
		SubmitFailures:    SubmitFailures.Value(),
		EmulationsRun:     EmulationsRun.Value(),
		ReplaysTriggered:  ReplaysTriggered.Value(),
		ReplayFailures:    ReplayFailures.Value(),
		ConfigUpdates:     ConfigUpdates.Value(),
		LastExpireAt:      GetLastExpireAt(),
		SnapshotEntries:   atomic.LoadInt64(&snapshotEntries),
		OutputMode:        OutputMode.Value(),
		StartTime:         StartTime.Value(),
		SnapshotTime:      time.Now().UTC(),
	}
}
