package dto

// TrackEventRequest is the public ingestion payload sent by the pixel script or a webhook.
// eventName is deliberately not required here: a missing name is acknowledged like any
// other event and rejected inside the pipeline.
type TrackEventRequest struct {
	EventName string         `json:"eventName" validate:"omitempty,max=255"`
	EventData map[string]any `json:"eventData,omitempty"`
	EventID   string         `json:"eventId,omitempty" validate:"omitempty,max=255"`
	URL       string         `json:"url,omitempty" validate:"omitempty,max=2048"`
	UserAgent string         `json:"userAgent,omitempty" validate:"omitempty,max=1024"`
	ClientIP  string         `json:"clientIp,omitempty" validate:"omitempty,max=64"`
	Timestamp *float64       `json:"timestamp,omitempty"`
}

// TrackEventResponse is returned immediately, before any delivery happens
type TrackEventResponse struct {
	Status string `json:"status"`
}

// DatasetStatsResponse summarizes the last 24 hours of a dataset.
// EventsByHour[23] is the most recent hour and EventsByHour[0] is 24 hours ago.
type DatasetStatsResponse struct {
	TotalEvents24h int                     `json:"totalEvents24h"`
	EventsByHour   [24]int                 `json:"eventsByHour"`
	LastEventTime  *string                 `json:"lastEventTime"`
	Deliveries24h  DeliveryStatusCountsDTO `json:"deliveries24h"`
}

// DeliveryStatusCountsDTO counts deliveries by status
type DeliveryStatusCountsDTO struct {
	Success int64 `json:"success"`
	Failed  int64 `json:"failed"`
	Pending int64 `json:"pending"`
}
