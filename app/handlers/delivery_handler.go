package handlers

import (
	"github.com/amirphl/trackrelay/app/dto"
	"github.com/amirphl/trackrelay/app/middleware"
	businessflow "github.com/amirphl/trackrelay/business_flow"
	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"
)

// DeliveryHandlerInterface defines the contract for delivery log handlers
type DeliveryHandlerInterface interface {
	ListDeliveries(c fiber.Ctx) error
	ExportDeliveries(c fiber.Ctx) error
	Redeliver(c fiber.Ctx) error
}

// DeliveryHandler implements DeliveryHandlerInterface
type DeliveryHandler struct {
	responder
	flow   businessflow.DeliveryLogFlow
	logger *zap.Logger
}

func NewDeliveryHandler(flow businessflow.DeliveryLogFlow, logger *zap.Logger) DeliveryHandlerInterface {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeliveryHandler{
		responder: newResponder(),
		flow:      flow,
		logger:    logger.Named("deliveries"),
	}
}

// ListDeliveries pages through the delivery log of a dataset, newest first
// @Summary List deliveries
// @Tags Deliveries
// @Produce json
// @Security BearerAuth
// @Param datasetId path string true "Dataset ID"
// @Param status query string false "PENDING, SUCCESS or FAILED"
// @Param page query int false "Page number" default(1)
// @Param page_size query int false "Page size" default(20)
// @Success 200 {object} dto.APIResponse{data=dto.DeliveryListResponse} "Deliveries retrieved"
// @Failure 400 {object} dto.APIResponse "Invalid filter"
// @Failure 403 {object} dto.APIResponse "Dataset belongs to another tenant"
// @Failure 404 {object} dto.APIResponse "Dataset not found"
// @Router /api/v1/datasets/{datasetId}/deliveries [get]
func (h *DeliveryHandler) ListDeliveries(c fiber.Ctx) error {
	tenantID, ok := middleware.GetTenantIDFromContext(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Tenant not authenticated", "UNAUTHORIZED", nil)
	}

	req := dto.ListDeliveriesRequest{Page: 1, PageSize: 20}
	if err := c.Bind().Query(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "INVALID_REQUEST", err.Error())
	}
	if messages := h.validate(&req); messages != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", messages)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/datasets/:datasetId/deliveries")
	defer cancel()

	resp, err := h.flow.ListDeliveries(ctx, tenantID, c.Params("datasetId"), &req)
	if err != nil {
		return h.handleError(c, "List deliveries failed", "LIST_DELIVERIES_FAILED", err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Deliveries retrieved successfully", resp)
}

// ExportDeliveries downloads the recent delivery log as an Excel workbook
// @Summary Export deliveries
// @Tags Deliveries
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security BearerAuth
// @Param datasetId path string true "Dataset ID"
// @Param since_hours query int false "Window in hours" default(24)
// @Success 200 {file} file "Excel file"
// @Failure 403 {object} dto.APIResponse "Dataset belongs to another tenant"
// @Failure 404 {object} dto.APIResponse "Dataset not found"
// @Router /api/v1/datasets/{datasetId}/deliveries/export [get]
func (h *DeliveryHandler) ExportDeliveries(c fiber.Ctx) error {
	tenantID, ok := middleware.GetTenantIDFromContext(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Tenant not authenticated", "UNAUTHORIZED", nil)
	}

	var req dto.ExportDeliveriesRequest
	if err := c.Bind().Query(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "INVALID_REQUEST", err.Error())
	}
	if messages := h.validate(&req); messages != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", messages)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/datasets/:datasetId/deliveries/export")
	defer cancel()

	filename, data, err := h.flow.ExportDeliveries(ctx, tenantID, c.Params("datasetId"), &req)
	if err != nil {
		return h.handleError(c, "Export deliveries failed", "EXPORT_DELIVERIES_FAILED", err)
	}

	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", "attachment; filename="+filename)
	return c.Send(data)
}

// Redeliver dispatches a delivery's event to its destination once more as a new delivery
// @Summary Redeliver
// @Tags Deliveries
// @Produce json
// @Security BearerAuth
// @Param deliveryId path string true "Delivery ID"
// @Success 200 {object} dto.APIResponse{data=dto.DeliveryResponse} "Redelivery finished"
// @Failure 403 {object} dto.APIResponse "Dataset belongs to another tenant"
// @Failure 404 {object} dto.APIResponse "Delivery not found"
// @Failure 409 {object} dto.APIResponse "Destination disabled"
// @Router /api/v1/deliveries/{deliveryId}/redeliver [post]
func (h *DeliveryHandler) Redeliver(c fiber.Ctx) error {
	tenantID, ok := middleware.GetTenantIDFromContext(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Tenant not authenticated", "UNAUTHORIZED", nil)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/deliveries/:deliveryId/redeliver")
	defer cancel()

	resp, err := h.flow.Redeliver(ctx, tenantID, c.Params("deliveryId"))
	if err != nil {
		return h.handleError(c, "Redeliver failed", "REDELIVER_FAILED", err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Redelivery finished", resp)
}

func (h *DeliveryHandler) handleError(c fiber.Ctx, message, code string, err error) error {
	if status, errCode, ok := dashboardErrorStatus(err); ok {
		return h.ErrorResponse(c, status, err.Error(), errCode, nil)
	}
	h.logger.Error(message, zap.String("code", code), zap.Error(err))
	return h.ErrorResponse(c, fiber.StatusInternalServerError, message, code, nil)
}
