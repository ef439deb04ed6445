package destinations

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	gobreaker "github.com/sony/gobreaker/v2"
)

var (
	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trackrelay_breaker_state",
			Help: "Circuit breaker state per destination (0=closed, 1=half-open, 2=open)",
		},
		[]string{"destination", "platform"},
	)

	breakerRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackrelay_breaker_rejections_total",
			Help: "Deliveries short-circuited by an open breaker",
		},
		[]string{"platform"},
	)
)

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
