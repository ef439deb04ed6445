package models

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Destination platforms
const (
	PlatformMeta      = "META"
	PlatformTikTok    = "TIKTOK"
	PlatformGoogleAds = "GOOGLE_ADS"
)

// Destination statuses
const (
	DestinationStatusActive   = "ACTIVE"
	DestinationStatusInactive = "INACTIVE"
)

// Destination is an ad platform endpoint events of a dataset are forwarded to.
// Config carries the platform credentials (pixelId, apiToken, accessToken, conversionId).
type Destination struct {
	ID        uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	DatasetID uuid.UUID         `gorm:"type:uuid;not null;index:idx_destinations_dataset_id" json:"dataset_id"`
	Platform  string            `gorm:"size:20;not null;index:idx_destinations_platform" json:"platform"`
	Name      string            `gorm:"size:255;not null;default:''" json:"name"`
	Config    datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'" json:"-"`
	Enabled   *bool             `gorm:"default:true" json:"enabled"`
	Status    string            `gorm:"size:20;not null" json:"status"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

// TableName returns the table name for Destination
func (Destination) TableName() string { return "destinations" }

// IsEnabled reports whether events should be delivered to this destination
func (d Destination) IsEnabled() bool {
	return d.Enabled != nil && *d.Enabled
}

// ConfigString returns a trimmed string config value or an empty string
func (d Destination) ConfigString(key string) string {
	return ConfigString(d.Config, key)
}

// ConfigString reads key from a free-form config map as a trimmed string.
// Numeric values are formatted since pixel ids are often typed as numbers.
func ConfigString(config map[string]any, key string) string {
	if config == nil {
		return ""
	}
	switch v := config[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64, int, int64:
		return formatNumber(v)
	}
	return ""
}

// DestinationFilter provides filter fields for repository queries
type DestinationFilter struct {
	ID        *uuid.UUID
	DatasetID *uuid.UUID
	Platform  *string
	Enabled   *bool
}

func formatNumber(v any) string {
	switch n := v.(type) {
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case int:
		return strconv.Itoa(n)
	case int64:
		return strconv.FormatInt(n, 10)
	}
	return ""
}
