package testing

import (
	"fmt"
	"time"

	"github.com/amirphl/trackrelay/models"
	"github.com/amirphl/trackrelay/utils"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestDataset creates an empty dataset owned by tenantID
func (tf *TestFixtures) CreateTestDataset(tenantID string) (*models.Dataset, error) {
	now := utils.UTCNow()
	dataset := &models.Dataset{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Name:      "dataset-" + uuid.NewString()[:8],
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tf.DB.DB.Create(dataset).Error; err != nil {
		return nil, fmt.Errorf("failed to create dataset: %w", err)
	}
	return dataset, nil
}

// CreateTestSource attaches a source of the given kind and status
func (tf *TestFixtures) CreateTestSource(datasetID uuid.UUID, kind, status string, config map[string]any) (*models.Source, error) {
	if config == nil {
		config = map[string]any{}
	}
	now := utils.UTCNow()
	source := &models.Source{
		ID:        uuid.New(),
		DatasetID: datasetID,
		Kind:      kind,
		Name:      kind + " source",
		Config:    datatypes.JSONMap(config),
		Enabled:   utils.ToPtr(true),
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tf.DB.DB.Create(source).Error; err != nil {
		return nil, fmt.Errorf("failed to create source: %w", err)
	}
	return source, nil
}

// CreateTestDestination attaches a destination for platform
func (tf *TestFixtures) CreateTestDestination(datasetID uuid.UUID, platform string, config map[string]any, enabled bool) (*models.Destination, error) {
	if config == nil {
		config = map[string]any{}
	}
	status := models.DestinationStatusActive
	if !enabled {
		status = models.DestinationStatusInactive
	}
	now := utils.UTCNow()
	destination := &models.Destination{
		ID:        uuid.New(),
		DatasetID: datasetID,
		Platform:  platform,
		Name:      platform,
		Config:    datatypes.JSONMap(config),
		Enabled:   utils.ToPtr(enabled),
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tf.DB.DB.Create(destination).Error; err != nil {
		return nil, fmt.Errorf("failed to create destination: %w", err)
	}
	return destination, nil
}

// CreateTestEvent stores an event with the given dedup id and creation time
func (tf *TestFixtures) CreateTestEvent(datasetID uuid.UUID, eventID string, createdAt time.Time) (*models.Event, error) {
	event := &models.Event{
		ID:        uuid.New(),
		DatasetID: datasetID,
		EventID:   eventID,
		EventName: "Purchase",
		EventData: datatypes.JSONMap{"value": 10.0, "currency": "USD"},
		Status:    models.EventStatusProcessed,
		CreatedAt: createdAt.UTC(),
	}
	if err := tf.DB.DB.Create(event).Error; err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}
	return event, nil
}

// CreateTestDelivery stores a delivery row in the given state
func (tf *TestFixtures) CreateTestDelivery(event *models.Event, destination *models.Destination, status string, createdAt time.Time) (*models.Delivery, error) {
	delivery := &models.Delivery{
		ID:            uuid.New(),
		EventID:       event.ID,
		DestinationID: destination.ID,
		DatasetID:     event.DatasetID,
		Platform:      destination.Platform,
		Status:        status,
		CreatedAt:     createdAt.UTC(),
		UpdatedAt:     createdAt.UTC(),
	}
	if status != models.DeliveryStatusPending {
		code := 200
		if status == models.DeliveryStatusFailed {
			code = 400
		}
		completed := createdAt.UTC()
		delivery.ResponseCode = &code
		delivery.CompletedAt = &completed
	}
	if err := tf.DB.DB.Create(delivery).Error; err != nil {
		return nil, fmt.Errorf("failed to create delivery: %w", err)
	}
	return delivery, nil
}
