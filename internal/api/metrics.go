package api

import (
	"sync/atomic"
	"time"
)

// Metrics collects in-memory server metrics using atomic counters.
type Metrics struct {
	startTime         time.Time
	requests          atomic.Int64
	serverErrors      atomic.Int64
	clientErrors      atomic.Int64
	actionsApplied    atomic.Int64
	actionsDuplicated atomic.Int64
	pullRequests      atomic.Int64
	listeners         atomic.Int64
}

// MetricsSnapshot is a point-in-time view of server metrics.
type MetricsSnapshot struct {
	UptimeSeconds     float64 `json:"uptime_seconds"`
	Requests          int64   `json:"requests"`
	ServerErrors      int64   `json:"server_errors"`
	ClientErrors      int64   `json:"client_errors"`
	ActionsApplied    int64   `json:"actions_applied"`
	ActionsDuplicated int64   `json:"actions_duplicated"`
	PullRequests      int64   `json:"pull_requests"`
	Listeners         int64   `json:"listeners"`
}

// NewMetrics creates a new Metrics instance with the current time as start.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// RecordRequest increments the total request counter.
func (m *Metrics) RecordRequest() {
	m.requests.Add(1)
}

// RecordError increments the server error (5xx) counter.
func (m *Metrics) RecordError() {
	m.serverErrors.Add(1)
}

// RecordClientError increments the client error (4xx) counter.
func (m *Metrics) RecordClientError() {
	m.clientErrors.Add(1)
}

// RecordPush adds the applied and already-seen action counts of one push.
func (m *Metrics) RecordPush(applied, duplicated int) {
	m.actionsApplied.Add(int64(applied))
	m.actionsDuplicated.Add(int64(duplicated))
}

// RecordPullRequest increments the pull request counter.
func (m *Metrics) RecordPullRequest() {
	m.pullRequests.Add(1)
}

// ListenerDelta tracks connected push channel listeners.
func (m *Metrics) ListenerDelta(d int64) {
	m.listeners.Add(d)
}

// Snapshot returns a point-in-time copy of the metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		UptimeSeconds:     time.Since(m.startTime).Seconds(),
		Requests:          m.requests.Load(),
		ServerErrors:      m.serverErrors.Load(),
		ClientErrors:      m.clientErrors.Load(),
		ActionsApplied:    m.actionsApplied.Load(),
		ActionsDuplicated: m.actionsDuplicated.Load(),
		PullRequests:      m.pullRequests.Load(),
		Listeners:         m.listeners.Load(),
	}
}
