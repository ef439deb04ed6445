package destinations

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/amirphl/trackrelay/models"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// errTransient marks results that count against a destination's breaker
var errTransient = errors.New("transient delivery failure")

// BreakerSettings configures the per-destination circuit breakers
type BreakerSettings struct {
	// ConsecutiveFailures opens the breaker; zero disables breaking
	ConsecutiveFailures uint32
	// Cooldown is how long an open breaker rejects before probing again
	Cooldown time.Duration
}

// Breakers keeps one circuit breaker per destination so a platform outage
// stops costing a full timeout on every event. Only transport failures,
// 429 and 5xx responses count; credential errors never trip a breaker.
type Breakers struct {
	settings BreakerSettings
	logger   *zap.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[Result]
}

func NewBreakers(settings BreakerSettings, logger *zap.Logger) *Breakers {
	return &Breakers{
		settings: settings,
		logger:   logger.Named("breaker"),
		breakers: make(map[string]*gobreaker.CircuitBreaker[Result]),
	}
}

// Send runs adapter.Send through the breaker of the given destination
func (b *Breakers) Send(ctx context.Context, destination *models.Destination, adapter Adapter, event *models.Event) Result {
	if b == nil || b.settings.ConsecutiveFailures == 0 {
		return adapter.Send(ctx, destination.Config, event)
	}

	cb := b.breaker(destination)
	var result Result
	_, err := cb.Execute(func() (Result, error) {
		result = adapter.Send(ctx, destination.Config, event)
		if isTransient(result) {
			return result, errTransient
		}
		return result, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		breakerRejections.WithLabelValues(destination.Platform).Inc()
		return Result{
			Success: false,
			Code:    http.StatusServiceUnavailable,
			Body:    "circuit open for destination " + destination.ID.String() + ": " + err.Error(),
		}
	}
	return result
}

// State reports the breaker state of a destination, closed when none exists yet
func (b *Breakers) State(destinationID string) gobreaker.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.breakers[destinationID]; ok {
		return cb.State()
	}
	return gobreaker.StateClosed
}

func (b *Breakers) breaker(destination *models.Destination) *gobreaker.CircuitBreaker[Result] {
	key := destination.ID.String()

	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.breakers[key]; ok {
		return cb
	}

	platform := destination.Platform
	threshold := b.settings.ConsecutiveFailures
	breakerState.WithLabelValues(key, platform).Set(0)
	cb := gobreaker.NewCircuitBreaker[Result](gobreaker.Settings{
		Name:        key,
		MaxRequests: 1,
		Timeout:     b.settings.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn("destination breaker state changed",
				zap.String("destination_id", name),
				zap.String("platform", platform),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			breakerState.WithLabelValues(name, platform).Set(stateToFloat(to))
		},
	})
	b.breakers[key] = cb
	return cb
}

func isTransient(r Result) bool {
	if r.Success {
		return false
	}
	return r.Code == 0 || r.Code == http.StatusTooManyRequests ||
		(r.Code >= 500 && r.Code != http.StatusNotImplemented)
}
