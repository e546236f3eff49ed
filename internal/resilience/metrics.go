package resilience

import "github.com/prometheus/client_golang/prometheus"

var (
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "upstream_breaker_state",
			Help: "Current breaker state per upstream: 0=closed,1=open,2=half-open",
		},
		[]string{"target"},
	)
	BreakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_breaker_transitions_total",
			Help: "Count of breaker state transitions per upstream",
		},
		[]string{"target", "from", "to"},
	)
	BreakerOpenedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_breaker_open_total",
			Help: "Number of times a breaker tripped open",
		},
		[]string{"target"},
	)
	BreakerRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_breaker_rejected_total",
			Help: "Requests refused locally because the breaker was open",
		},
		[]string{"target"},
	)
)

func init() {
	prometheus.MustRegister(BreakerState, BreakerTransitions, BreakerOpenedTotal, BreakerRejectedTotal)
}
