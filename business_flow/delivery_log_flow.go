package businessflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/amirphl/trackrelay/app/dto"
	"github.com/amirphl/trackrelay/models"
	"github.com/amirphl/trackrelay/repository"
	"github.com/amirphl/trackrelay/utils"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const (
	defaultDeliveryPageSize = 20
	defaultExportWindow     = 24 * time.Hour
	maxExportRows           = 50000
)

// DeliveryLogFlow exposes the delivery audit log to operators: listing, spreadsheet
// export and manual redelivery. Redelivery writes a new delivery row; settled rows never change.
type DeliveryLogFlow interface {
	ListDeliveries(ctx context.Context, tenantID, datasetID string, req *dto.ListDeliveriesRequest) (*dto.DeliveryListResponse, error)
	ExportDeliveries(ctx context.Context, tenantID, datasetID string, req *dto.ExportDeliveriesRequest) (string, []byte, error)
	Redeliver(ctx context.Context, tenantID, deliveryID string) (*dto.DeliveryResponse, error)
}

type DeliveryLogFlowImpl struct {
	datasetRepo     repository.DatasetRepository
	eventRepo       repository.EventRepository
	destinationRepo repository.DestinationRepository
	deliveryRepo    repository.DeliveryRepository
	orchestrator    DeliveryOrchestrator
	logger          *zap.Logger
}

func NewDeliveryLogFlow(
	datasetRepo repository.DatasetRepository,
	eventRepo repository.EventRepository,
	destinationRepo repository.DestinationRepository,
	deliveryRepo repository.DeliveryRepository,
	orchestrator DeliveryOrchestrator,
	logger *zap.Logger,
) DeliveryLogFlow {
	return &DeliveryLogFlowImpl{
		datasetRepo:     datasetRepo,
		eventRepo:       eventRepo,
		destinationRepo: destinationRepo,
		deliveryRepo:    deliveryRepo,
		orchestrator:    orchestrator,
		logger:          logger.Named("delivery_log"),
	}
}

func (f *DeliveryLogFlowImpl) ListDeliveries(ctx context.Context, tenantID, datasetID string, req *dto.ListDeliveriesRequest) (*dto.DeliveryListResponse, error) {
	dataset, err := loadOwnedDataset(ctx, f.datasetRepo, tenantID, datasetID)
	if err != nil {
		return nil, err
	}

	page, pageSize := 1, defaultDeliveryPageSize
	filter := models.DeliveryFilter{DatasetID: &dataset.ID}
	if req != nil {
		if req.Page != 0 {
			page = req.Page
		}
		if req.PageSize != 0 {
			pageSize = req.PageSize
		}
		if req.Status != "" {
			status := req.Status
			filter.Status = &status
		}
	}
	if page < 1 {
		return nil, ErrInvalidPage
	}
	if pageSize < 1 || pageSize > 100 {
		return nil, ErrInvalidPageSize
	}

	total, err := f.deliveryRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("LIST_DELIVERIES_FAILED", "Failed to count deliveries", err)
	}
	rows, err := f.deliveryRepo.ByFilter(ctx, filter, "created_at DESC", pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, NewBusinessError("LIST_DELIVERIES_FAILED", "Failed to list deliveries", err)
	}

	items := make([]dto.DeliveryResponse, 0, len(rows))
	for _, row := range rows {
		items = append(items, ToDeliveryDTO(*row))
	}
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return &dto.DeliveryListResponse{
		Items: items,
		Pagination: dto.PaginationInfo{
			Total:      total,
			Page:       page,
			PageSize:   pageSize,
			TotalPages: totalPages,
		},
	}, nil
}

// ExportDeliveries writes the delivery log of a window into an xlsx workbook
// with a detail sheet and a per-destination summary sheet
func (f *DeliveryLogFlowImpl) ExportDeliveries(ctx context.Context, tenantID, datasetID string, req *dto.ExportDeliveriesRequest) (string, []byte, error) {
	dataset, err := loadOwnedDataset(ctx, f.datasetRepo, tenantID, datasetID)
	if err != nil {
		return "", nil, err
	}

	window := defaultExportWindow
	if req != nil && req.SinceHours > 0 {
		window = time.Duration(req.SinceHours) * time.Hour
	}
	since := utils.UTCNow().Add(-window)
	rows, err := f.deliveryRepo.ByFilter(ctx, models.DeliveryFilter{DatasetID: &dataset.ID, CreatedAfter: &since}, "created_at ASC", maxExportRows, 0)
	if err != nil {
		return "", nil, NewBusinessError("EXPORT_DELIVERIES_FAILED", "Failed to load deliveries", err)
	}

	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	detail := deliverySheetName(dataset.Name)
	if err := xl.SetSheetName(xl.GetSheetName(0), detail); err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to name delivery sheet", err)
	}
	header := []any{"delivery_id", "event_id", "destination_id", "platform", "status", "response_code", "response_body", "created_at", "completed_at"}
	if err := writeSheetRow(xl, detail, 1, header); err != nil {
		return "", nil, err
	}

	type summaryKey struct{ destination, platform string }
	summary := make(map[summaryKey]*models.DeliveryStatusCounts)
	for i, row := range rows {
		code, body, completed := "", "", ""
		if row.ResponseCode != nil {
			code = fmt.Sprintf("%d", *row.ResponseCode)
		}
		if row.ResponseBody != nil {
			body = *row.ResponseBody
		}
		if row.CompletedAt != nil {
			completed = row.CompletedAt.UTC().Format(time.RFC3339)
		}
		record := []any{
			row.ID.String(),
			row.EventID.String(),
			row.DestinationID.String(),
			row.Platform,
			row.Status,
			code,
			body,
			row.CreatedAt.UTC().Format(time.RFC3339),
			completed,
		}
		if err := writeSheetRow(xl, detail, i+2, record); err != nil {
			return "", nil, err
		}

		key := summaryKey{destination: row.DestinationID.String(), platform: row.Platform}
		counts, ok := summary[key]
		if !ok {
			counts = &models.DeliveryStatusCounts{}
			summary[key] = counts
		}
		switch row.Status {
		case models.DeliveryStatusSuccess:
			counts.Success++
		case models.DeliveryStatusFailed:
			counts.Failed++
		default:
			counts.Pending++
		}
	}

	const summarySheet = "Summary"
	if _, err := xl.NewSheet(summarySheet); err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to create summary sheet", err)
	}
	summaryHeader := []any{"destination_id", "platform", "success", "failed", "pending"}
	if err := writeSheetRow(xl, summarySheet, 1, summaryHeader); err != nil {
		return "", nil, err
	}
	keys := make([]summaryKey, 0, len(summary))
	for k := range summary {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].destination < keys[j].destination })
	for i, k := range keys {
		c := summary[k]
		record := []any{k.destination, k.platform, c.Success, c.Failed, c.Pending}
		if err := writeSheetRow(xl, summarySheet, i+2, record); err != nil {
			return "", nil, err
		}
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel file", err)
	}
	filename := fmt.Sprintf("deliveries_%s_%s.xlsx", dataset.ID.String(), utils.UTCNow().Format("20060102T150405"))
	return filename, buf.Bytes(), nil
}

// Redeliver dispatches the event of a delivery to its destination once more
func (f *DeliveryLogFlowImpl) Redeliver(ctx context.Context, tenantID, deliveryID string) (*dto.DeliveryResponse, error) {
	id, err := uuid.Parse(deliveryID)
	if err != nil {
		return nil, ErrDeliveryNotFound
	}
	original, err := f.deliveryRepo.ByID(ctx, id)
	if err != nil {
		return nil, NewBusinessError("DELIVERY_LOOKUP_FAILED", "Failed to load delivery", err)
	}
	if original == nil {
		return nil, ErrDeliveryNotFound
	}
	if _, err := loadOwnedDataset(ctx, f.datasetRepo, tenantID, original.DatasetID.String()); err != nil {
		return nil, err
	}

	event, err := f.eventRepo.ByID(ctx, original.EventID)
	if err != nil {
		return nil, NewBusinessError("EVENT_LOOKUP_FAILED", "Failed to load event", err)
	}
	if event == nil {
		return nil, ErrEventNotFound
	}
	destination, err := f.destinationRepo.ByID(ctx, original.DestinationID)
	if err != nil {
		return nil, NewBusinessError("DESTINATION_LOOKUP_FAILED", "Failed to load destination", err)
	}
	if destination == nil {
		return nil, ErrDestinationNotFound
	}
	if !destination.IsEnabled() {
		return nil, ErrDestinationDisabled
	}

	outcome, err := f.orchestrator.Deliver(ctx, destination, event)
	if err != nil {
		return nil, err
	}
	f.logger.Info("delivery redelivered",
		zap.String("original_delivery_id", original.ID.String()),
		zap.String("delivery_id", outcome.DeliveryID.String()),
		zap.String("status", outcome.Status))

	row, err := f.deliveryRepo.ByID(ctx, outcome.DeliveryID)
	if err != nil || row == nil {
		// fall back to the in-memory outcome
		code, body := outcome.ResponseCode, outcome.ResponseBody
		resp := dto.DeliveryResponse{
			ID:            outcome.DeliveryID.String(),
			EventID:       event.ID.String(),
			DestinationID: destination.ID.String(),
			DatasetID:     event.DatasetID.String(),
			Platform:      outcome.Platform,
			Status:        outcome.Status,
			ResponseCode:  &code,
			ResponseBody:  &body,
			CreatedAt:     utils.UTCNow().Format(time.RFC3339),
		}
		return &resp, nil
	}
	resp := ToDeliveryDTO(*row)
	return &resp, nil
}

// writeSheetRow writes values into row (1-based) of sheet starting at column A
func writeSheetRow(xl *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return NewBusinessError("EXCEL_WRITE_ERROR", "Failed to address Excel row", err)
	}
	if err := xl.SetSheetRow(sheet, cell, &values); err != nil {
		return NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel row", err)
	}
	return nil
}

func deliverySheetName(name string) string {
	// Excel sheet names cannot contain: : \\ / ? * [ ] and must be <= 31 chars
	replacer := strings.NewReplacer(":", "_", "\\", "_", "/", "_", "?", "_", "*", "_", "[", "_", "]", "_")
	safe := strings.TrimSpace(replacer.Replace(name))
	if safe == "" || strings.EqualFold(safe, "Summary") {
		safe = "Deliveries"
	}
	runes := []rune(safe)
	if len(runes) > 31 {
		safe = string(runes[:31])
	}
	return safe
}
