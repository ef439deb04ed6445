package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Event processing statuses
const (
	EventStatusProcessed = "PROCESSED"
)

// Event is one tracked occurrence. EventID, EventName and EventData never change
// after the row is written; only Status may.
type Event struct {
	ID        uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	DatasetID uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:uk_events_dataset_event_id,priority:1;index:idx_events_dataset_created_at,priority:1" json:"dataset_id"`
	EventID   string            `gorm:"size:255;not null;uniqueIndex:uk_events_dataset_event_id,priority:2" json:"event_id"`
	EventName string            `gorm:"size:255;not null" json:"event_name"`
	EventData datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"event_data"`
	URL       string            `gorm:"type:text;not null;default:''" json:"url"`
	UserAgent string            `gorm:"type:text;not null;default:''" json:"user_agent"`
	ClientIP  string            `gorm:"size:64;not null;default:''" json:"client_ip"`
	Status    string            `gorm:"size:20;not null" json:"status"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_events_dataset_created_at,priority:2" json:"created_at"`
}

// TableName returns the table name for Event
func (Event) TableName() string { return "events" }

// EventFilter provides filter fields for repository queries
type EventFilter struct {
	ID            *uuid.UUID
	DatasetID     *uuid.UUID
	EventID       *string
	EventName     *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
