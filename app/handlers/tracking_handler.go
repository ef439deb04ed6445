package handlers

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/amirphl/trackrelay/app/dto"
	businessflow "github.com/amirphl/trackrelay/business_flow"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"
)

const (
	trackStatusReceived = "received"
	signatureHeader     = "X-Signature"
)

// TrackingHandlerInterface defines the contract for the public ingestion endpoints
type TrackingHandlerInterface interface {
	Track(c fiber.Ctx) error
	Webhook(c fiber.Ctx) error
	// Drain waits for in-flight pipeline runs or until ctx is done
	Drain(ctx context.Context) error
}

// TrackingHandler acknowledges events immediately and runs the pipeline in the background
type TrackingHandler struct {
	responder
	flow           businessflow.TrackingFlow
	processTimeout time.Duration
	webhookLimit   int
	logger         *zap.Logger
	inflight       sync.WaitGroup
	spawn          func(func())
}

func NewTrackingHandler(flow businessflow.TrackingFlow, processTimeout time.Duration, logger *zap.Logger) *TrackingHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrackingHandler{
		responder:      newResponder(),
		flow:           flow,
		processTimeout: processTimeout,
		logger:         logger.Named("track"),
		spawn:          func(fn func()) { go fn() },
	}
}

// WithWebhookBodyLimit rejects webhook bodies larger than limit bytes. Zero disables the check.
func (h *TrackingHandler) WithWebhookBodyLimit(limit int) *TrackingHandler {
	h.webhookLimit = limit
	return h
}

// Track ingests one event for a dataset
// @Summary Track event
// @Description Accepts an event from the pixel script. The response never reflects delivery results.
// @Tags Tracking
// @Accept json
// @Produce json
// @Param datasetId path string true "Dataset ID"
// @Param request body dto.TrackEventRequest true "Event"
// @Success 200 {object} dto.TrackEventResponse "Event received"
// @Failure 400 {object} dto.APIResponse "Malformed body"
// @Failure 429 {object} dto.APIResponse "Rate limit exceeded"
// @Router /api/v1/track/{datasetId} [post]
func (h *TrackingHandler) Track(c fiber.Ctx) error {
	datasetID := strings.Clone(c.Params("datasetId"))

	var req dto.TrackEventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if messages := h.validate(&req); messages != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", messages)
	}

	h.enqueue(datasetID, &req, h.clientMetadata(c))
	return c.Status(fiber.StatusOK).JSON(dto.TrackEventResponse{Status: trackStatusReceived})
}

// Webhook ingests an event posted by a server-side integration
// @Summary Source webhook
// @Description Verifies the HMAC-SHA256 signature of the raw body and ingests the event into the source's dataset
// @Tags Tracking
// @Accept json
// @Produce json
// @Param sourceId path string true "Source ID"
// @Param X-Signature header string true "Hex encoded HMAC-SHA256 of the raw body"
// @Param request body dto.TrackEventRequest true "Event"
// @Success 200 {object} dto.TrackEventResponse "Event received"
// @Failure 400 {object} dto.APIResponse "Malformed body or source does not accept webhooks"
// @Failure 401 {object} dto.APIResponse "Invalid signature"
// @Failure 404 {object} dto.APIResponse "Source not found or disabled"
// @Failure 413 {object} dto.APIResponse "Body too large"
// @Router /api/v1/track/sources/{sourceId}/webhook [post]
func (h *TrackingHandler) Webhook(c fiber.Ctx) error {
	sourceID := strings.Clone(c.Params("sourceId"))
	if h.webhookLimit > 0 && len(c.Body()) > h.webhookLimit {
		return h.ErrorResponse(c, fiber.StatusRequestEntityTooLarge, "Request body too large", "PAYLOAD_TOO_LARGE", nil)
	}
	body := append([]byte(nil), c.Body()...)

	ctx, cancel := h.createRequestContext(c, "/api/v1/track/sources/:sourceId/webhook")
	defer cancel()

	datasetID, err := h.flow.AuthenticateWebhook(ctx, sourceID, body, c.Get(signatureHeader))
	if err != nil {
		switch {
		case businessflow.IsSourceNotFound(err), businessflow.IsSourceDisabled(err):
			return h.ErrorResponse(c, fiber.StatusNotFound, "Source not found", "SOURCE_NOT_FOUND", nil)
		case businessflow.IsInvalidSignature(err):
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid signature", "INVALID_SIGNATURE", nil)
		case businessflow.IsSourceNotWebhook(err):
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Source does not accept webhooks", "SOURCE_NOT_WEBHOOK", nil)
		}
		h.logger.Error("webhook authentication failed", zap.String("source_id", sourceID), zap.Error(err))
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Webhook authentication failed", "WEBHOOK_AUTH_FAILED", nil)
	}

	var req dto.TrackEventRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}
	if messages := h.validate(&req); messages != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", messages)
	}

	h.enqueue(datasetID, &req, h.clientMetadata(c))
	return c.Status(fiber.StatusOK).JSON(dto.TrackEventResponse{Status: trackStatusReceived})
}

// Drain blocks until every background run started by this handler has finished
func (h *TrackingHandler) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// clientMetadata copies request values since fiber recycles the underlying buffers
func (h *TrackingHandler) clientMetadata(c fiber.Ctx) *businessflow.ClientMetadata {
	metadata := businessflow.NewClientMetadata(strings.Clone(c.IP()), strings.Clone(c.Get("User-Agent")))
	metadata.SetRequestID(strings.Clone(requestID(c)))
	return metadata
}

func (h *TrackingHandler) enqueue(datasetID string, req *dto.TrackEventRequest, metadata *businessflow.ClientMetadata) {
	h.inflight.Add(1)
	h.spawn(func() {
		defer h.inflight.Done()
		h.process(datasetID, req, metadata)
	})
}

func (h *TrackingHandler) process(datasetID string, req *dto.TrackEventRequest, metadata *businessflow.ClientMetadata) {
	logger := h.logger.With(zap.String("dataset_id", datasetID), zap.String("request_id", metadata.RequestID))
	defer func() {
		if r := recover(); r != nil {
			logger.Error("tracking pipeline panicked",
				zap.String("panic", fmt.Sprint(r)),
				zap.ByteString("stack", debug.Stack()))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), h.processTimeout)
	defer cancel()

	err := h.flow.ProcessEvent(ctx, datasetID, req, metadata)
	switch {
	case err == nil:
	case businessflow.IsInvalidEvent(err), businessflow.IsDatasetNotFound(err):
		logger.Warn("event rejected", zap.Error(err))
	default:
		logger.Error("event processing failed", zap.Error(err))
	}
}
