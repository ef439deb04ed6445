package handlers

import (
	"github.com/amirphl/trackrelay/app/dto"
	"github.com/amirphl/trackrelay/app/middleware"
	businessflow "github.com/amirphl/trackrelay/business_flow"
	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"
)

// DatasetHandlerInterface defines the contract for dataset management handlers
type DatasetHandlerInterface interface {
	CreateDataset(c fiber.Ctx) error
	ListDatasets(c fiber.Ctx) error
	GetDataset(c fiber.Ctx) error
	DeleteDataset(c fiber.Ctx) error
	GetDatasetStats(c fiber.Ctx) error
	ConnectIntegration(c fiber.Ctx) error
	AddSource(c fiber.Ctx) error
	AddDestination(c fiber.Ctx) error
	UpdateDestination(c fiber.Ctx) error
}

// DatasetHandler implements DatasetHandlerInterface
type DatasetHandler struct {
	responder
	flow      businessflow.DatasetFlow
	statsFlow businessflow.DatasetStatsFlow
	logger    *zap.Logger
}

func NewDatasetHandler(flow businessflow.DatasetFlow, statsFlow businessflow.DatasetStatsFlow, logger *zap.Logger) DatasetHandlerInterface {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DatasetHandler{
		responder: newResponder(),
		flow:      flow,
		statsFlow: statsFlow,
		logger:    logger.Named("datasets"),
	}
}

// CreateDataset creates an empty dataset
// @Summary Create dataset
// @Tags Datasets
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.CreateDatasetRequest true "Dataset"
// @Success 201 {object} dto.APIResponse{data=dto.DatasetResponse} "Dataset created"
// @Failure 400 {object} dto.APIResponse "Invalid request"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/datasets [post]
func (h *DatasetHandler) CreateDataset(c fiber.Ctx) error {
	tenantID, ok := middleware.GetTenantIDFromContext(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Tenant not authenticated", "UNAUTHORIZED", nil)
	}

	var req dto.CreateDatasetRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if messages := h.validate(&req); messages != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", messages)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/datasets")
	defer cancel()

	resp, err := h.flow.CreateDataset(ctx, tenantID, &req)
	if err != nil {
		return h.handleError(c, "Create dataset failed", "CREATE_DATASET_FAILED", err)
	}
	return h.SuccessResponse(c, fiber.StatusCreated, "Dataset created", resp)
}

// ListDatasets lists the datasets of the authenticated tenant
// @Summary List datasets
// @Tags Datasets
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.APIResponse{data=[]dto.DatasetResponse} "Datasets retrieved"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Failure 500 {object} dto.APIResponse "Internal server error"
// @Router /api/v1/datasets [get]
func (h *DatasetHandler) ListDatasets(c fiber.Ctx) error {
	tenantID, ok := middleware.GetTenantIDFromContext(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Tenant not authenticated", "UNAUTHORIZED", nil)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/datasets")
	defer cancel()

	resp, err := h.flow.ListDatasets(ctx, tenantID)
	if err != nil {
		return h.handleError(c, "List datasets failed", "LIST_DATASETS_FAILED", err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Datasets retrieved successfully", resp)
}

// GetDataset returns a dataset with its sources and destinations
// @Summary Get dataset
// @Tags Datasets
// @Produce json
// @Security BearerAuth
// @Param datasetId path string true "Dataset ID"
// @Success 200 {object} dto.APIResponse{data=dto.DatasetDetailResponse} "Dataset retrieved"
// @Failure 403 {object} dto.APIResponse "Dataset belongs to another tenant"
// @Failure 404 {object} dto.APIResponse "Dataset not found"
// @Router /api/v1/datasets/{datasetId} [get]
func (h *DatasetHandler) GetDataset(c fiber.Ctx) error {
	tenantID, ok := middleware.GetTenantIDFromContext(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Tenant not authenticated", "UNAUTHORIZED", nil)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/datasets/:datasetId")
	defer cancel()

	resp, err := h.flow.GetDataset(ctx, tenantID, c.Params("datasetId"))
	if err != nil {
		return h.handleError(c, "Get dataset failed", "GET_DATASET_FAILED", err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Dataset retrieved successfully", resp)
}

// DeleteDataset removes a dataset together with its sources, destinations, events and deliveries
// @Summary Delete dataset
// @Tags Datasets
// @Produce json
// @Security BearerAuth
// @Param datasetId path string true "Dataset ID"
// @Success 200 {object} dto.APIResponse "Dataset deleted"
// @Failure 403 {object} dto.APIResponse "Dataset belongs to another tenant"
// @Failure 404 {object} dto.APIResponse "Dataset not found"
// @Router /api/v1/datasets/{datasetId} [delete]
func (h *DatasetHandler) DeleteDataset(c fiber.Ctx) error {
	tenantID, ok := middleware.GetTenantIDFromContext(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Tenant not authenticated", "UNAUTHORIZED", nil)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/datasets/:datasetId")
	defer cancel()

	if err := h.flow.DeleteDataset(ctx, tenantID, c.Params("datasetId")); err != nil {
		return h.handleError(c, "Delete dataset failed", "DELETE_DATASET_FAILED", err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Dataset deleted successfully", nil)
}

// GetDatasetStats summarizes the last 24 hours of a dataset
// @Summary Dataset stats
// @Tags Datasets
// @Produce json
// @Security BearerAuth
// @Param datasetId path string true "Dataset ID"
// @Success 200 {object} dto.APIResponse{data=dto.DatasetStatsResponse} "Stats retrieved"
// @Failure 403 {object} dto.APIResponse "Dataset belongs to another tenant"
// @Failure 404 {object} dto.APIResponse "Dataset not found"
// @Router /api/v1/datasets/{datasetId}/stats [get]
func (h *DatasetHandler) GetDatasetStats(c fiber.Ctx) error {
	tenantID, ok := middleware.GetTenantIDFromContext(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Tenant not authenticated", "UNAUTHORIZED", nil)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/datasets/:datasetId/stats")
	defer cancel()

	resp, err := h.statsFlow.GetDatasetStats(ctx, tenantID, c.Params("datasetId"))
	if err != nil {
		return h.handleError(c, "Get dataset stats failed", "DATASET_STATS_FAILED", err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Dataset stats retrieved successfully", resp)
}

// ConnectIntegration connects a server-side integration and creates its dataset
// @Summary Connect integration
// @Tags Datasets
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.ConnectIntegrationRequest true "Integration"
// @Success 201 {object} dto.APIResponse{data=dto.DatasetDetailResponse} "Integration connected"
// @Failure 400 {object} dto.APIResponse "Invalid request"
// @Router /api/v1/integrations [post]
func (h *DatasetHandler) ConnectIntegration(c fiber.Ctx) error {
	tenantID, ok := middleware.GetTenantIDFromContext(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Tenant not authenticated", "UNAUTHORIZED", nil)
	}

	var req dto.ConnectIntegrationRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if messages := h.validate(&req); messages != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", messages)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/integrations")
	defer cancel()

	resp, err := h.flow.ConnectIntegration(ctx, tenantID, &req)
	if err != nil {
		return h.handleError(c, "Connect integration failed", "CONNECT_INTEGRATION_FAILED", err)
	}
	return h.SuccessResponse(c, fiber.StatusCreated, "Integration connected", resp)
}

// AddSource attaches a pixel or webhook source to a dataset
// @Summary Add source
// @Tags Datasets
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param datasetId path string true "Dataset ID"
// @Param request body dto.CreateSourceRequest true "Source"
// @Success 201 {object} dto.APIResponse{data=dto.SourceResponse} "Source created"
// @Failure 400 {object} dto.APIResponse "Invalid request"
// @Failure 404 {object} dto.APIResponse "Dataset not found"
// @Router /api/v1/datasets/{datasetId}/sources [post]
func (h *DatasetHandler) AddSource(c fiber.Ctx) error {
	tenantID, ok := middleware.GetTenantIDFromContext(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Tenant not authenticated", "UNAUTHORIZED", nil)
	}

	var req dto.CreateSourceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if messages := h.validate(&req); messages != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", messages)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/datasets/:datasetId/sources")
	defer cancel()

	resp, err := h.flow.AddSource(ctx, tenantID, c.Params("datasetId"), &req)
	if err != nil {
		return h.handleError(c, "Add source failed", "CREATE_SOURCE_FAILED", err)
	}
	return h.SuccessResponse(c, fiber.StatusCreated, "Source created", resp)
}

// AddDestination attaches an ad platform destination to a dataset
// @Summary Add destination
// @Tags Datasets
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param datasetId path string true "Dataset ID"
// @Param request body dto.CreateDestinationRequest true "Destination"
// @Success 201 {object} dto.APIResponse{data=dto.DestinationResponse} "Destination created"
// @Failure 400 {object} dto.APIResponse "Invalid request or destination config"
// @Failure 404 {object} dto.APIResponse "Dataset not found"
// @Router /api/v1/datasets/{datasetId}/destinations [post]
func (h *DatasetHandler) AddDestination(c fiber.Ctx) error {
	tenantID, ok := middleware.GetTenantIDFromContext(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Tenant not authenticated", "UNAUTHORIZED", nil)
	}

	var req dto.CreateDestinationRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if messages := h.validate(&req); messages != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", messages)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/datasets/:datasetId/destinations")
	defer cancel()

	resp, err := h.flow.AddDestination(ctx, tenantID, c.Params("datasetId"), &req)
	if err != nil {
		return h.handleError(c, "Add destination failed", "CREATE_DESTINATION_FAILED", err)
	}
	return h.SuccessResponse(c, fiber.StatusCreated, "Destination created", resp)
}

// UpdateDestination enables or disables a destination
// @Summary Update destination
// @Tags Datasets
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param destinationId path string true "Destination ID"
// @Param request body dto.UpdateDestinationRequest true "Destination state"
// @Success 200 {object} dto.APIResponse{data=dto.DestinationResponse} "Destination updated"
// @Failure 400 {object} dto.APIResponse "Invalid request or destination config"
// @Failure 404 {object} dto.APIResponse "Destination not found"
// @Router /api/v1/destinations/{destinationId} [patch]
func (h *DatasetHandler) UpdateDestination(c fiber.Ctx) error {
	tenantID, ok := middleware.GetTenantIDFromContext(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Tenant not authenticated", "UNAUTHORIZED", nil)
	}

	var req dto.UpdateDestinationRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if messages := h.validate(&req); messages != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", messages)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/destinations/:destinationId")
	defer cancel()

	resp, err := h.flow.SetDestinationEnabled(ctx, tenantID, c.Params("destinationId"), *req.Enabled)
	if err != nil {
		return h.handleError(c, "Update destination failed", "UPDATE_DESTINATION_FAILED", err)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Destination updated", resp)
}

// handleError maps business errors shared by the dashboard routes onto HTTP statuses
func (h *DatasetHandler) handleError(c fiber.Ctx, message, code string, err error) error {
	if status, errCode, ok := dashboardErrorStatus(err); ok {
		return h.ErrorResponse(c, status, err.Error(), errCode, nil)
	}
	h.logger.Error(message, zap.String("code", code), zap.Error(err))
	return h.ErrorResponse(c, fiber.StatusInternalServerError, message, code, nil)
}

// dashboardErrorStatus classifies the tenant scoped business errors
func dashboardErrorStatus(err error) (int, string, bool) {
	switch {
	case businessflow.IsDatasetNotFound(err):
		return fiber.StatusNotFound, "DATASET_NOT_FOUND", true
	case businessflow.IsDatasetAccessDenied(err):
		return fiber.StatusForbidden, "DATASET_ACCESS_DENIED", true
	case businessflow.IsSourceNotFound(err):
		return fiber.StatusNotFound, "SOURCE_NOT_FOUND", true
	case businessflow.IsDestinationNotFound(err):
		return fiber.StatusNotFound, "DESTINATION_NOT_FOUND", true
	case businessflow.IsDeliveryNotFound(err):
		return fiber.StatusNotFound, "DELIVERY_NOT_FOUND", true
	case businessflow.IsEventNotFound(err):
		return fiber.StatusNotFound, "EVENT_NOT_FOUND", true
	case businessflow.IsUnsupportedPlatform(err):
		return fiber.StatusBadRequest, "UNSUPPORTED_PLATFORM", true
	case businessflow.IsInvalidDestinationConfig(err):
		return fiber.StatusBadRequest, "INVALID_DESTINATION_CONFIG", true
	case businessflow.IsDestinationDisabled(err):
		return fiber.StatusConflict, "DESTINATION_DISABLED", true
	case businessflow.IsInvalidPage(err):
		return fiber.StatusBadRequest, "INVALID_PAGE", true
	case businessflow.IsInvalidPageSize(err):
		return fiber.StatusBadRequest, "INVALID_PAGE_SIZE", true
	}
	return 0, "", false
}
