package resilience

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "engineroom"

// Breaker collectors, labelled by the target set with WithTarget.
var (
	// BreakerState exposes State as a number: 0 closed, 1 open, 2 half-open.
	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "breaker",
		Name:      "state",
		Help:      "Current breaker state (0 closed, 1 open, 2 half-open).",
	}, []string{"target"})

	BreakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "breaker",
		Name:      "transitions_total",
		Help:      "Breaker state transitions.",
	}, []string{"target", "from", "to"})

	BreakerOpenedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "breaker",
		Name:      "opened_total",
		Help:      "Times a breaker tripped open.",
	}, []string{"target"})
)
