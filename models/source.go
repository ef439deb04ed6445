package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Source kinds
const (
	SourceKindPixelScript = "PIXEL_SCRIPT"
	SourceKindWebhook     = "WEBHOOK"
)

// Source statuses
const (
	SourceStatusPending = "PENDING"
	SourceStatusActive  = "ACTIVE"
)

// Source providers
const (
	SourceProviderStripe  = "STRIPE"
	SourceProviderShopify = "SHOPIFY"
)

// SourceConfigSigningSecret is the config key holding a webhook signing secret
const SourceConfigSigningSecret = "signingSecret"

// Source is an event origin bound to a dataset.
// A PIXEL_SCRIPT source starts PENDING and becomes ACTIVE once its dataset receives an event.
type Source struct {
	ID        uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	DatasetID uuid.UUID         `gorm:"type:uuid;not null;index:idx_sources_dataset_id" json:"dataset_id"`
	Kind      string            `gorm:"size:20;not null;index:idx_sources_kind_status,priority:1" json:"kind"`
	Name      string            `gorm:"size:255;not null" json:"name"`
	Provider  *string           `gorm:"size:50" json:"provider,omitempty"`
	Config    datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"-"`
	Enabled   *bool             `gorm:"default:true" json:"enabled"`
	Status    string            `gorm:"size:20;not null;index:idx_sources_kind_status,priority:2" json:"status"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

// TableName returns the table name for Source
func (Source) TableName() string { return "sources" }

// IsEnabled reports whether the source accepts events
func (s Source) IsEnabled() bool {
	return s.Enabled != nil && *s.Enabled
}

// SigningSecret returns the configured webhook signing secret, if any
func (s Source) SigningSecret() string {
	if s.Config == nil {
		return ""
	}
	secret, _ := s.Config[SourceConfigSigningSecret].(string)
	return secret
}

// SourceFilter provides filter fields for repository queries
type SourceFilter struct {
	ID        *uuid.UUID
	DatasetID *uuid.UUID
	Kind      *string
	Status    *string
	Provider  *string
	Enabled   *bool
}
