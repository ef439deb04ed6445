// Package businessflow contains the business logic for the application.
package businessflow

import (
	"strings"
	"time"

	"github.com/amirphl/trackrelay/app/dto"
	"github.com/amirphl/trackrelay/models"
)

const RequestIDKey = "X-Request-ID"

// secretConfigKeys are masked whenever a destination config leaves the service
var secretConfigKeys = map[string]bool{
	"apiToken":      true,
	"accessToken":   true,
	"signingSecret": true,
	"refreshToken":  true,
	"clientSecret":  true,
}

// ClientMetadata holds the caller information attached to an ingestion request
type ClientMetadata struct {
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
	RequestID string `json:"request_id,omitempty"`
}

// NewClientMetadata creates a new ClientMetadata instance with basic information
func NewClientMetadata(ipAddress, userAgent string) *ClientMetadata {
	return &ClientMetadata{
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}
}

// SetRequestID sets the request ID
func (cm *ClientMetadata) SetRequestID(requestID string) {
	cm.RequestID = requestID
}

func ToDatasetDTO(dataset models.Dataset) dto.DatasetResponse {
	return dto.DatasetResponse{
		ID:          dataset.ID.String(),
		TenantID:    dataset.TenantID,
		Name:        dataset.Name,
		Description: dataset.Description,
		CreatedAt:   dataset.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   dataset.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func ToDatasetDetailDTO(dataset models.Dataset, webhookBaseURL string) dto.DatasetDetailResponse {
	out := dto.DatasetDetailResponse{
		DatasetResponse: ToDatasetDTO(dataset),
		Sources:         make([]dto.SourceResponse, 0, len(dataset.Sources)),
		Destinations:    make([]dto.DestinationResponse, 0, len(dataset.Destinations)),
	}
	for _, s := range dataset.Sources {
		out.Sources = append(out.Sources, ToSourceDTO(s, webhookBaseURL))
	}
	for _, d := range dataset.Destinations {
		out.Destinations = append(out.Destinations, ToDestinationDTO(d))
	}
	return out
}

func ToSourceDTO(source models.Source, webhookBaseURL string) dto.SourceResponse {
	out := dto.SourceResponse{
		ID:        source.ID.String(),
		DatasetID: source.DatasetID.String(),
		Kind:      source.Kind,
		Name:      source.Name,
		Provider:  source.Provider,
		Enabled:   source.IsEnabled(),
		Status:    source.Status,
		HasSecret: source.SigningSecret() != "",
		CreatedAt: source.CreatedAt.UTC().Format(time.RFC3339),
	}
	if source.Kind == models.SourceKindWebhook && webhookBaseURL != "" {
		out.WebhookURL = strings.TrimRight(webhookBaseURL, "/") + "/api/v1/track/sources/" + source.ID.String() + "/webhook"
	}
	return out
}

func ToDestinationDTO(destination models.Destination) dto.DestinationResponse {
	return dto.DestinationResponse{
		ID:        destination.ID.String(),
		DatasetID: destination.DatasetID.String(),
		Platform:  destination.Platform,
		Name:      destination.Name,
		Config:    maskConfig(destination.Config),
		Enabled:   destination.IsEnabled(),
		Status:    destination.Status,
		CreatedAt: destination.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func ToDeliveryDTO(delivery models.Delivery) dto.DeliveryResponse {
	out := dto.DeliveryResponse{
		ID:            delivery.ID.String(),
		EventID:       delivery.EventID.String(),
		DestinationID: delivery.DestinationID.String(),
		DatasetID:     delivery.DatasetID.String(),
		Platform:      delivery.Platform,
		Status:        delivery.Status,
		ResponseCode:  delivery.ResponseCode,
		ResponseBody:  delivery.ResponseBody,
		CreatedAt:     delivery.CreatedAt.UTC().Format(time.RFC3339),
	}
	if delivery.CompletedAt != nil {
		completed := delivery.CompletedAt.UTC().Format(time.RFC3339)
		out.CompletedAt = &completed
	}
	return out
}

// maskConfig keeps the last four characters of secret values
func maskConfig(config map[string]any) map[string]any {
	out := make(map[string]any, len(config))
	for k, v := range config {
		if !secretConfigKeys[k] {
			out[k] = v
			continue
		}
		s, _ := v.(string)
		if len(s) <= 4 {
			out[k] = "****"
		} else {
			out[k] = "****" + s[len(s)-4:]
		}
	}
	return out
}
