package dto

// ListDeliveriesRequest filters the delivery log of a dataset
type ListDeliveriesRequest struct {
	Status   string `query:"status" validate:"omitempty,oneof=PENDING SUCCESS FAILED"`
	Page     int    `query:"page" validate:"omitempty,min=1"`
	PageSize int    `query:"page_size" validate:"omitempty,min=1,max=100"`
}

// DeliveryResponse is one row of the delivery log
type DeliveryResponse struct {
	ID            string  `json:"id"`
	EventID       string  `json:"eventId"`
	DestinationID string  `json:"destinationId"`
	DatasetID     string  `json:"datasetId"`
	Platform      string  `json:"platform"`
	Status        string  `json:"status"`
	ResponseCode  *int    `json:"responseCode,omitempty"`
	ResponseBody  *string `json:"responseBody,omitempty"`
	CreatedAt     string  `json:"createdAt"`
	CompletedAt   *string `json:"completedAt,omitempty"`
}

// DeliveryListResponse is a page of the delivery log
type DeliveryListResponse struct {
	Items      []DeliveryResponse `json:"items"`
	Pagination PaginationInfo     `json:"pagination"`
}

// ExportDeliveriesRequest selects the delivery rows written to a spreadsheet
type ExportDeliveriesRequest struct {
	SinceHours int `query:"since_hours" validate:"omitempty,min=1,max=720"`
}
