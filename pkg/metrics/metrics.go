package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Push results recorded on PushTotal.
const (
	PushDelivered = "delivered"
	PushOffline   = "offline"
	PushFailed    = "failed"
)

var (
	// ActiveConnections number of authenticated websocket connections
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "messaging",
		Name:      "connections_active",
		Help:      "Authenticated websocket connections currently open.",
	})

	// EventsTotal client events received, by event name
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "messaging",
		Name:      "events_total",
		Help:      "Client events received by the gateway.",
	}, []string{"event"})

	// MessagesPersisted messages written to the message store
	MessagesPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "messaging",
		Name:      "messages_persisted_total",
		Help:      "Messages persisted by send-message.",
	})

	// PersistFailures store failures reported back to clients as error events
	PersistFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "messaging",
		Name:      "persist_failures_total",
		Help:      "Store failures during client events.",
	}, []string{"op"})

	// PushTotal realtime pushes to a user channel, by result
	PushTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "messaging",
		Name:      "push_total",
		Help:      "Realtime pushes to user channels.",
	}, []string{"result"})

	// IdentityFallback user ids found in no role collection
	IdentityFallback = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "messaging",
		Name:      "identity_fallback_total",
		Help:      "Recipients resolved to the fallback role because no role collection matched.",
	})
)
