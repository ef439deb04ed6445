// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/amirphl/trackrelay/models"
	"github.com/google/uuid"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

var (
	// ErrDuplicateEvent is returned when (dataset_id, event_id) already exists
	ErrDuplicateEvent = errors.New("duplicate event")
	// ErrDeliveryNotPending is returned when a result is written to an already settled delivery
	ErrDeliveryNotPending = errors.New("delivery is not pending")
)

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uuid.UUID) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// DatasetRepository defines operations for datasets
type DatasetRepository interface {
	Repository[models.Dataset, models.DatasetFilter]
	DatasetWithDestinations(ctx context.Context, datasetID uuid.UUID) (*models.Dataset, error)
	DatasetWithRelations(ctx context.Context, datasetID uuid.UUID) (*models.Dataset, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*models.Dataset, error)
	DeleteCascade(ctx context.Context, datasetID uuid.UUID) error
}

// SourceRepository defines operations for sources
type SourceRepository interface {
	Repository[models.Source, models.SourceFilter]
	ListPendingPixelSources(ctx context.Context, datasetID uuid.UUID) ([]*models.Source, error)
	MarkSourceActive(ctx context.Context, sourceID uuid.UUID) error
}

// DestinationRepository defines operations for destinations
type DestinationRepository interface {
	Repository[models.Destination, models.DestinationFilter]
	ListByDataset(ctx context.Context, datasetID uuid.UUID) ([]*models.Destination, error)
	SetEnabled(ctx context.Context, destinationID uuid.UUID, enabled bool) error
}

// EventRepository defines operations for events
type EventRepository interface {
	Repository[models.Event, models.EventFilter]
	CreateEvent(ctx context.Context, event *models.Event) error
	ListEventsInWindow(ctx context.Context, datasetID uuid.UUID, since time.Time) ([]*models.Event, error)
}

// DeliveryRepository defines operations for deliveries
type DeliveryRepository interface {
	Repository[models.Delivery, models.DeliveryFilter]
	CreatePendingDelivery(ctx context.Context, event *models.Event, destination *models.Destination) (*models.Delivery, error)
	UpdateDeliveryResult(ctx context.Context, deliveryID uuid.UUID, status string, code int, body string) error
	CountByStatusSince(ctx context.Context, datasetID uuid.UUID, since time.Time) (models.DeliveryStatusCounts, error)
	FailStalePending(ctx context.Context, olderThan time.Time, code int, body string) (int64, error)
}
