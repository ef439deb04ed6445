package dto

// CreateDatasetRequest creates an empty dataset for the authenticated tenant
type CreateDatasetRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=255"`
	Description string `json:"description,omitempty" validate:"omitempty,max=2000"`
}

// ConnectIntegrationRequest connects a server-side integration and implicitly creates its dataset
type ConnectIntegrationRequest struct {
	Provider string         `json:"provider" validate:"required,oneof=STRIPE SHOPIFY"`
	Name     string         `json:"name,omitempty" validate:"omitempty,max=255"`
	Config   map[string]any `json:"config,omitempty"`
}

// CreateSourceRequest attaches a source to a dataset
type CreateSourceRequest struct {
	Kind     string         `json:"kind" validate:"required,oneof=PIXEL_SCRIPT WEBHOOK"`
	Name     string         `json:"name" validate:"required,min=1,max=255"`
	Provider *string        `json:"provider,omitempty" validate:"omitempty,oneof=STRIPE SHOPIFY"`
	Config   map[string]any `json:"config,omitempty"`
	Enabled  *bool          `json:"enabled,omitempty"`
}

// CreateDestinationRequest attaches a destination to a dataset
type CreateDestinationRequest struct {
	Platform string         `json:"platform" validate:"required,oneof=META TIKTOK GOOGLE_ADS"`
	Name     string         `json:"name,omitempty" validate:"omitempty,max=255"`
	Config   map[string]any `json:"config" validate:"required"`
	Enabled  *bool          `json:"enabled,omitempty"`
}

// UpdateDestinationRequest toggles a destination
type UpdateDestinationRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// DatasetResponse is a dataset without its relations
type DatasetResponse struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

// DatasetDetailResponse is a dataset with its sources and destinations
type DatasetDetailResponse struct {
	DatasetResponse
	Sources      []SourceResponse      `json:"sources"`
	Destinations []DestinationResponse `json:"destinations"`
}

// SourceResponse never echoes the source config since it may hold a signing secret
type SourceResponse struct {
	ID         string  `json:"id"`
	DatasetID  string  `json:"datasetId"`
	Kind       string  `json:"kind"`
	Name       string  `json:"name"`
	Provider   *string `json:"provider,omitempty"`
	Enabled    bool    `json:"enabled"`
	Status     string  `json:"status"`
	HasSecret  bool    `json:"hasSigningSecret"`
	WebhookURL string  `json:"webhookUrl,omitempty"`
	CreatedAt  string  `json:"createdAt"`
}

// DestinationResponse exposes non-secret config keys only
type DestinationResponse struct {
	ID        string         `json:"id"`
	DatasetID string         `json:"datasetId"`
	Platform  string         `json:"platform"`
	Name      string         `json:"name"`
	Config    map[string]any `json:"config"`
	Enabled   bool           `json:"enabled"`
	Status    string         `json:"status"`
	CreatedAt string         `json:"createdAt"`
}
