package models

import (
	"time"

	"github.com/google/uuid"
)

// Delivery statuses
const (
	DeliveryStatusPending = "PENDING"
	DeliveryStatusSuccess = "SUCCESS"
	DeliveryStatusFailed  = "FAILED"
)

// Delivery is the outcome of routing one event to one destination.
// It moves from PENDING to SUCCESS or FAILED exactly once and is never retried in place.
type Delivery struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	EventID       uuid.UUID  `gorm:"type:uuid;not null;index:idx_deliveries_event_id" json:"event_id"`
	DestinationID uuid.UUID  `gorm:"type:uuid;not null;index:idx_deliveries_destination_id" json:"destination_id"`
	DatasetID     uuid.UUID  `gorm:"type:uuid;not null;index:idx_deliveries_dataset_created_at,priority:1" json:"dataset_id"`
	Platform      string     `gorm:"size:20;not null" json:"platform"`
	Status        string     `gorm:"size:20;not null;index:idx_deliveries_status" json:"status"`
	ResponseCode  *int       `json:"response_code,omitempty"`
	ResponseBody  *string    `gorm:"type:text" json:"response_body,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_deliveries_dataset_created_at,priority:2" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

// TableName returns the table name for Delivery
func (Delivery) TableName() string { return "deliveries" }

// IsTerminal reports whether the delivery reached SUCCESS or FAILED
func (d Delivery) IsTerminal() bool {
	return d.Status == DeliveryStatusSuccess || d.Status == DeliveryStatusFailed
}

// DeliveryFilter provides filter fields for repository queries
type DeliveryFilter struct {
	ID            *uuid.UUID
	EventID       *uuid.UUID
	DestinationID *uuid.UUID
	DatasetID     *uuid.UUID
	Status        *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

// DeliveryStatusCounts aggregates deliveries by terminal state
type DeliveryStatusCounts struct {
	Success int64 `json:"success"`
	Failed  int64 `json:"failed"`
	Pending int64 `json:"pending"`
}
