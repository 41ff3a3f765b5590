// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BotTurns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resellerbot_bot_turns_total",
			Help: "Conversation turns processed, by outcome",
		},
		[]string{"outcome"},
	)

	InboundDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resellerbot_inbound_dropped_total",
			Help: "Inbound messages dropped before reaching the engine, by reason",
		},
		[]string{"reason"},
	)

	OutboundSends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resellerbot_outbound_sends_total",
			Help: "Outbound provider calls, by provider and result",
		},
		[]string{"provider", "kind", "result"},
	)

	RemindersProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resellerbot_reminders_processed_total",
			Help: "Reminders that reached a terminal status, by send mode and status",
		},
		[]string{"send_mode", "status"},
	)

	PushNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resellerbot_push_notifications_total",
			Help: "Operator push notifications, by tag and result",
		},
		[]string{"tag", "result"},
	)

	DispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "resellerbot_dispatch_duration_seconds",
			Help:    "Duration of one reminder dispatcher run",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)
)

// Result labels shared by the counters above.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// ResultLabel maps an error to ResultOK or ResultError.
func ResultLabel(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}
