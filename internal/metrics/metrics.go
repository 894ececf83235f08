// Package metrics holds the client-side counters for realtime channels.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "grievance_chat"

var (
	// Registry is private to the client so embedding programs keep their own default registry clean.
	Registry = prometheus.NewRegistry()

	ChannelsOpened = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channels_opened_total",
			Help:      "Realtime channels that completed the websocket handshake.",
		},
		[]string{"kind"},
	)

	ChannelsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channels_failed_total",
			Help:      "Realtime channels that never opened or ended in the errored state.",
		},
		[]string{"kind"},
	)

	FramesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Inbound websocket frames.",
		},
		[]string{"kind"},
	)

	FramesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Inbound frames dropped because they were malformed or unrecognized.",
		},
		[]string{"kind", "reason"},
	)

	SendFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Outbound chat messages rejected locally.",
		},
		[]string{"reason"},
	)

	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_received_total",
			Help:      "Notification events accepted by the aggregator.",
		},
		[]string{"type"},
	)
)

func init() {
	Registry.MustRegister(ChannelsOpened, ChannelsFailed, FramesReceived, FramesDropped, SendFailures, Notifications)
}

// Handler serves the client registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
