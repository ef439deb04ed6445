package businessflow

import (
	"context"
	"time"

	"github.com/amirphl/trackrelay/models"
	"github.com/amirphl/trackrelay/repository"
	"github.com/google/uuid"
)

// DatasetStore is the slice of dataset persistence the pipeline needs
type DatasetStore interface {
	DatasetWithDestinations(ctx context.Context, datasetID uuid.UUID) (*models.Dataset, error)
	ListPendingPixelSources(ctx context.Context, datasetID uuid.UUID) ([]*models.Source, error)
	MarkSourceActive(ctx context.Context, sourceID uuid.UUID) error
}

// EventStore persists events. CreateEvent returns repository.ErrDuplicateEvent for a known key.
type EventStore interface {
	CreateEvent(ctx context.Context, event *models.Event) error
	ListEventsInWindow(ctx context.Context, datasetID uuid.UUID, since time.Time) ([]*models.Event, error)
}

// DeliveryStore persists delivery outcomes
type DeliveryStore interface {
	CreatePendingDelivery(ctx context.Context, event *models.Event, destination *models.Destination) (*models.Delivery, error)
	UpdateDeliveryResult(ctx context.Context, deliveryID uuid.UUID, status string, code int, body string) error
}

// DedupGuard is an optional fast path in front of the (dataset_id, event_id) unique index
type DedupGuard interface {
	// Acquire returns false when the key was seen within the guard window
	Acquire(ctx context.Context, datasetID uuid.UUID, eventID string) (bool, error)
	Release(ctx context.Context, datasetID uuid.UUID, eventID string) error
}

type repositoryDatasetStore struct {
	datasets repository.DatasetRepository
	sources  repository.SourceRepository
}

// NewDatasetStore backs DatasetStore with the dataset and source repositories
func NewDatasetStore(datasets repository.DatasetRepository, sources repository.SourceRepository) DatasetStore {
	return &repositoryDatasetStore{datasets: datasets, sources: sources}
}

func (s *repositoryDatasetStore) DatasetWithDestinations(ctx context.Context, datasetID uuid.UUID) (*models.Dataset, error) {
	return s.datasets.DatasetWithDestinations(ctx, datasetID)
}

func (s *repositoryDatasetStore) ListPendingPixelSources(ctx context.Context, datasetID uuid.UUID) ([]*models.Source, error) {
	return s.sources.ListPendingPixelSources(ctx, datasetID)
}

func (s *repositoryDatasetStore) MarkSourceActive(ctx context.Context, sourceID uuid.UUID) error {
	return s.sources.MarkSourceActive(ctx, sourceID)
}
