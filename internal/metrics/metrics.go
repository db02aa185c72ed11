package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roadcall",
			Name:      "request_transitions_total",
			Help:      "Service request status transitions by target status.",
		},
		[]string{"to"},
	)

	paymentEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roadcall",
			Name:      "payment_events_total",
			Help:      "Payment processor events by type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	offers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roadcall",
			Name:      "offers_total",
			Help:      "Offer actions (submitted, accepted, declined, rejected, expired).",
		},
		[]string{"action"},
	)

	locationReports = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roadcall",
			Name:      "location_reports_total",
			Help:      "Location reports by outcome (stored, filtered, throttled, rejected).",
		},
		[]string{"outcome"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(transitions, paymentEvents, offers, locationReports)
	})
}

func IncTransition(to string) {
	transitions.WithLabelValues(to).Inc()
}

func IncPaymentEvent(eventType, outcome string) {
	paymentEvents.WithLabelValues(eventType, outcome).Inc()
}

func IncOffer(action string) {
	offers.WithLabelValues(action).Inc()
}

func IncLocationReport(outcome string) {
	locationReports.WithLabelValues(outcome).Inc()
}
