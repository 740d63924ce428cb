package resilience

import "github.com/prometheus/client_golang/prometheus"

// Outbound collaborator metrics. State values follow State: 0 closed, 1 open, 2 half-open.
var (
	BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "outbound_breaker_state",
		Help: "Circuit breaker position per collaborator (0 closed, 1 open, 2 half-open).",
	}, []string{"target"})
	BreakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbound_breaker_transitions_total",
		Help: "Circuit breaker transitions per collaborator.",
	}, []string{"target", "from", "to"})
	OutboundAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbound_attempts_total",
		Help: "Outbound HTTP attempts per collaborator and outcome.",
	}, []string{"target", "outcome"})
)

func init() {
	prometheus.MustRegister(BreakerState, BreakerTransitions, OutboundAttempts)
}

func recordAttempt(target, outcome string) {
	OutboundAttempts.WithLabelValues(target, outcome).Inc()
}
