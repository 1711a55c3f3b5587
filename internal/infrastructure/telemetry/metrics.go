// Package telemetry holds the Prometheus collectors and OpenTelemetry tracing
// setup shared by the bot.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "berrybot_chat_messages_total",
			Help: "Chat messages received per channel",
		},
		[]string{"channel"},
	)

	MalformedFrames = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "berrybot_malformed_frames_total",
			Help: "Protocol lines that could not be parsed",
		},
		[]string{"channel"},
	)

	MessagesFlagged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "berrybot_messages_flagged_total",
			Help: "Messages flagged by the moderation engine",
		},
		[]string{"category", "punishment"},
	)

	ClassifierErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "berrybot_classifier_errors_total",
			Help: "Classifier calls that failed",
		},
	)

	ClassifierDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "berrybot_classifier_duration_seconds",
			Help:    "Classifier request duration",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	CommandsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "berrybot_commands_dispatched_total",
			Help: "Commands resolved and answered",
		},
		[]string{"kind", "command"},
	)

	ActiveBots = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "berrybot_active_bots",
			Help: "Channel bots currently registered",
		},
	)

	Reconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "berrybot_reconnects_total",
			Help: "Reconnect attempts after a connection error",
		},
		[]string{"channel"},
	)
)
