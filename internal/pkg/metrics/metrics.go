package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhooksReceived counts inbound gateway notifications by outcome.
	WebhooksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "subgate",
		Name:      "webhooks_received_total",
		Help:      "Inbound payment notifications by outcome.",
	}, []string{"outcome"})

	// PaymentTransitions counts committed payment state transitions.
	PaymentTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "subgate",
		Name:      "payment_transitions_total",
		Help:      "Payment transitions by event and source.",
	}, []string{"event", "source"})

	// AccessGrants counts grant attempts per external system.
	AccessGrants = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "subgate",
		Name:      "access_grants_total",
		Help:      "Access grant attempts by system and result.",
	}, []string{"system", "result"})

	// Notifications counts outbound chat messages.
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "subgate",
		Name:      "notifications_total",
		Help:      "Outbound notifications by audience and result.",
	}, []string{"audience", "result"})
)

// Result maps an error to the result label used by the counters.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
