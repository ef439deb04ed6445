package businessflow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/amirphl/trackrelay/app/destinations"
	"github.com/amirphl/trackrelay/models"
	"github.com/amirphl/trackrelay/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DeliveryOutcome is the terminal state of one delivery
type DeliveryOutcome struct {
	DeliveryID    uuid.UUID
	DestinationID uuid.UUID
	Platform      string
	Status        string
	ResponseCode  int
	ResponseBody  string
}

// DeliveryOrchestrator routes a persisted event to destination adapters and records each outcome.
// One destination failing, panicking or hanging never affects the delivery rows of another.
type DeliveryOrchestrator interface {
	// FanOut writes one PENDING delivery per destination, dispatches all of them
	// concurrently and returns once every delivery settled
	FanOut(ctx context.Context, event *models.Event, destinations []models.Destination) []DeliveryOutcome
	// Deliver creates a fresh delivery for a single destination and dispatches it
	Deliver(ctx context.Context, destination *models.Destination, event *models.Event) (DeliveryOutcome, error)
}

type DeliveryOrchestratorImpl struct {
	store    DeliveryStore
	registry *destinations.Registry
	breakers *destinations.Breakers
	logger   *zap.Logger
}

func NewDeliveryOrchestrator(store DeliveryStore, registry *destinations.Registry, breakers *destinations.Breakers, logger *zap.Logger) DeliveryOrchestrator {
	return &DeliveryOrchestratorImpl{
		store:    store,
		registry: registry,
		breakers: breakers,
		logger:   logger.Named("orchestrator"),
	}
}

type pendingDelivery struct {
	destination *models.Destination
	delivery    *models.Delivery
}

func (o *DeliveryOrchestratorImpl) FanOut(ctx context.Context, event *models.Event, dests []models.Destination) []DeliveryOutcome {
	pending := make([]pendingDelivery, 0, len(dests))
	for i := range dests {
		dest := &dests[i]
		delivery, err := o.store.CreatePendingDelivery(ctx, event, dest)
		if err != nil {
			o.logger.Error("failed to create pending delivery",
				zap.String("event_id", event.EventID),
				zap.String("destination_id", dest.ID.String()),
				zap.Error(err))
			continue
		}
		pending = append(pending, pendingDelivery{destination: dest, delivery: delivery})
	}

	outcomes := make([]DeliveryOutcome, len(pending))
	var wg sync.WaitGroup
	for i, p := range pending {
		wg.Add(1)
		go func(i int, p pendingDelivery) {
			defer wg.Done()
			outcomes[i] = o.dispatch(ctx, p.destination, event, p.delivery)
		}(i, p)
	}
	wg.Wait()

	return outcomes
}

func (o *DeliveryOrchestratorImpl) Deliver(ctx context.Context, destination *models.Destination, event *models.Event) (DeliveryOutcome, error) {
	delivery, err := o.store.CreatePendingDelivery(ctx, event, destination)
	if err != nil {
		return DeliveryOutcome{}, NewBusinessError("CREATE_DELIVERY_FAILED", "Failed to create delivery", err)
	}
	return o.dispatch(ctx, destination, event, delivery), nil
}

// dispatch runs the adapter and settles the delivery row. It never panics.
func (o *DeliveryOrchestratorImpl) dispatch(ctx context.Context, destination *models.Destination, event *models.Event, delivery *models.Delivery) DeliveryOutcome {
	result := o.send(ctx, destination, event)

	status := models.DeliveryStatusFailed
	if result.Success {
		status = models.DeliveryStatusSuccess
	}
	outcome := DeliveryOutcome{
		DeliveryID:    delivery.ID,
		DestinationID: destination.ID,
		Platform:      destination.Platform,
		Status:        status,
		ResponseCode:  result.Code,
		ResponseBody:  result.Body,
	}
	deliveriesTotal.WithLabelValues(destination.Platform, status).Inc()

	// the row is settled even if the caller's context already expired
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := o.store.UpdateDeliveryResult(writeCtx, delivery.ID, status, result.Code, result.Body); err != nil {
		if errors.Is(err, repository.ErrDeliveryNotPending) {
			o.logger.Warn("delivery settled elsewhere before the adapter returned",
				zap.String("delivery_id", delivery.ID.String()))
		} else {
			o.logger.Error("failed to record delivery result",
				zap.String("delivery_id", delivery.ID.String()),
				zap.String("status", status),
				zap.Error(err))
		}
	}

	if !result.Success {
		o.logger.Warn("delivery failed",
			zap.String("delivery_id", delivery.ID.String()),
			zap.String("destination_id", destination.ID.String()),
			zap.String("platform", destination.Platform),
			zap.String("event_id", event.EventID),
			zap.Int("code", result.Code))
	}
	return outcome
}

func (o *DeliveryOrchestratorImpl) send(ctx context.Context, destination *models.Destination, event *models.Event) (result destinations.Result) {
	adapter, ok := o.registry.Lookup(destination.Platform)
	if !ok {
		return destinations.Result{
			Success: false,
			Code:    http.StatusNotImplemented,
			Body:    fmt.Sprintf("%v: %s", ErrUnsupportedPlatform, destination.Platform),
		}
	}

	start := time.Now()
	defer func() {
		adapterDuration.WithLabelValues(destination.Platform).Observe(time.Since(start).Seconds())
		if r := recover(); r != nil {
			o.logger.Error("destination adapter panicked",
				zap.String("platform", destination.Platform),
				zap.Any("panic", r))
			result = destinations.Result{Success: false, Code: http.StatusInternalServerError, Body: fmt.Sprintf("adapter panic: %v", r)}
		}
	}()

	return o.breakers.Send(ctx, destination, adapter, event)
}
