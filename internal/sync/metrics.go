package sync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	passesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tlsync_sync_passes_total",
		Help: "Sync passes by result.",
	}, []string{"result"})

	actionsUploaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tlsync_actions_uploaded_total",
		Help: "Log entries confirmed by the server.",
	})

	pendingActions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tlsync_pending_actions",
		Help: "Entries waiting in the local action log.",
	})

	passDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tlsync_sync_pass_duration_seconds",
		Help:    "Duration of one upload and pull cycle.",
		Buckets: prometheus.DefBuckets,
	})
)

// pass results
const (
	resultSuccess      = "success"
	resultFailure      = "failure"
	resultReauth       = "reauth"
	resultRemoved      = "device_removed"
	resultInconsistent = "inconsistent"
)
