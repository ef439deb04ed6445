// Package scheduler runs the periodic background jobs of the service
package scheduler

import (
	"context"
	"time"

	"github.com/amirphl/trackrelay/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const abandonedDeliveryBody = "delivery abandoned"

var deliveriesReaped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "trackrelay_deliveries_reaped_total",
	Help: "Deliveries failed by the reaper after staying pending too long",
})

// StaleDeliveryFailer settles deliveries that never left PENDING
type StaleDeliveryFailer interface {
	FailStalePending(ctx context.Context, olderThan time.Time, code int, body string) (int64, error)
}

// DeliveryReaper periodically fails deliveries abandoned by a crashed or restarted process
type DeliveryReaper struct {
	deliveries StaleDeliveryFailer
	interval   time.Duration
	staleAfter time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

func NewDeliveryReaper(deliveries StaleDeliveryFailer, interval, staleAfter time.Duration, logger *zap.Logger) *DeliveryReaper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 15 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeliveryReaper{
		deliveries: deliveries,
		interval:   interval,
		staleAfter: staleAfter,
		logger:     logger.Named("reaper"),
		now:        utils.UTCNow,
	}
}

// Start runs the reaper until the returned stop function is called or parent is done
func (r *DeliveryReaper) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		r.RunOnce(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.RunOnce(ctx)
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// RunOnce fails every delivery still pending after the stale threshold
func (r *DeliveryReaper) RunOnce(ctx context.Context) int64 {
	cutoff := r.now().Add(-r.staleAfter)
	n, err := r.deliveries.FailStalePending(ctx, cutoff, 0, abandonedDeliveryBody)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Error("reaping stale deliveries failed", zap.Error(err))
		}
		return 0
	}
	if n > 0 {
		deliveriesReaped.Add(float64(n))
		r.logger.Warn("failed abandoned deliveries", zap.Int64("count", n), zap.Time("cutoff", cutoff))
	}
	return n
}
