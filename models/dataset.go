// Package models contains domain entities for datasets, sources, destinations, events and deliveries
package models

import (
	"time"

	"github.com/google/uuid"
)

// Dataset groups the sources and destinations of one tenant.
// Deleting a dataset removes its sources, destinations, events and deliveries.
type Dataset struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID    string    `gorm:"size:100;not null;index:idx_datasets_tenant_id" json:"tenant_id"`
	Name        string    `gorm:"size:255;not null" json:"name"`
	Description string    `gorm:"type:text;not null;default:''" json:"description"`

	Sources      []Source      `gorm:"foreignKey:DatasetID;references:ID" json:"sources,omitempty"`
	Destinations []Destination `gorm:"foreignKey:DatasetID;references:ID" json:"destinations,omitempty"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_datasets_created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

// TableName returns the table name for Dataset
func (Dataset) TableName() string { return "datasets" }

// EnabledDestinations returns the destinations events should be fanned out to
func (d *Dataset) EnabledDestinations() []Destination {
	if d == nil {
		return nil
	}
	enabled := make([]Destination, 0, len(d.Destinations))
	for _, dest := range d.Destinations {
		if dest.IsEnabled() {
			enabled = append(enabled, dest)
		}
	}
	return enabled
}

// DatasetFilter provides filter fields for repository queries
type DatasetFilter struct {
	ID            *uuid.UUID
	TenantID      *string
	Name          *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}
