package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ReconcileTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vetassist",
			Name:      "reconcile_total",
			Help:      "Answers observed by the reconciliation engine, by delivery source and outcome.",
		},
		[]string{"source", "outcome"},
	)

	SweepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vetassist",
			Name:      "poll_sweeps_total",
			Help:      "Polling fallback sweeps, by result.",
		},
		[]string{"result"},
	)

	PollingConversations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vetassist",
			Name:      "polling_conversations",
			Help:      "Conversations whose polling fallback is currently active.",
		},
	)

	PendingResponses = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vetassist",
			Name:      "pending_responses",
			Help:      "Requests awaiting an answer across open conversations.",
		},
	)

	LivenessEscalations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vetassist",
			Name:      "liveness_escalations_total",
			Help:      "Times a silent push channel forced the polling fallback on.",
		},
	)

	BackupSuppressed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vetassist",
			Name:      "backup_events_suppressed_total",
			Help:      "Backup channel events skipped because the primary was recently active.",
		},
	)

	OpenConversations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vetassist",
			Name:      "open_conversations",
			Help:      "Conversations currently open.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		ReconcileTotal,
		SweepsTotal,
		PollingConversations,
		PendingResponses,
		LivenessEscalations,
		BackupSuppressed,
		OpenConversations,
	)
}
