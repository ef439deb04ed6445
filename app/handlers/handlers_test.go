package handlers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/amirphl/trackrelay/app/dto"
	"github.com/amirphl/trackrelay/app/middleware"
	businessflow "github.com/amirphl/trackrelay/business_flow"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTenant = "0b5d8f0e-8a55-4d43-9c1e-0e7f5c1d2a11"

type processCall struct {
	datasetID string
	req       *dto.TrackEventRequest
	metadata  *businessflow.ClientMetadata
}

type fakeTrackingFlow struct {
	mu        sync.Mutex
	calls     []processCall
	processFn func() error
	authFn    func(sourceID string, body []byte, signature string) (string, error)
}

func (f *fakeTrackingFlow) ProcessEvent(_ context.Context, datasetID string, req *dto.TrackEventRequest, metadata *businessflow.ClientMetadata) error {
	f.mu.Lock()
	f.calls = append(f.calls, processCall{datasetID: datasetID, req: req, metadata: metadata})
	f.mu.Unlock()
	if f.processFn != nil {
		return f.processFn()
	}
	return nil
}

func (f *fakeTrackingFlow) AuthenticateWebhook(_ context.Context, sourceID string, body []byte, signature string) (string, error) {
	return f.authFn(sourceID, body, signature)
}

func (f *fakeTrackingFlow) recorded() []processCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]processCall(nil), f.calls...)
}

func newTrackingApp(flow *fakeTrackingFlow) (*fiber.App, *TrackingHandler) {
	h := NewTrackingHandler(flow, time.Second, nil)
	h.spawn = func(fn func()) { fn() }

	app := fiber.New()
	app.Post("/api/v1/track/sources/:sourceId/webhook", h.Webhook)
	app.Post("/api/v1/track/:datasetId", h.Track)
	return app, h
}

func doRequest(t *testing.T, app *fiber.App, req *http.Request) (int, dto.APIResponse, []byte) {
	t.Helper()
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var envelope dto.APIResponse
	_ = json.Unmarshal(raw, &envelope)
	return resp.StatusCode, envelope, raw
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func errorCode(t *testing.T, envelope dto.APIResponse) string {
	t.Helper()
	detail, ok := envelope.Error.(map[string]any)
	require.True(t, ok, "error detail missing")
	code, _ := detail["code"].(string)
	return code
}

func TestTrackHandler_AcknowledgesAndProcesses(t *testing.T) {
	flow := &fakeTrackingFlow{}
	app, _ := newTrackingApp(flow)

	req := jsonRequest(http.MethodPost, "/api/v1/track/ds-1", `{"eventName":"Purchase","eventData":{"value":10}}`)
	req.Header.Set("User-Agent", "pixel-test/1.0")

	status, _, raw := doRequest(t, app, req)
	assert.Equal(t, fiber.StatusOK, status)
	assert.JSONEq(t, `{"status":"received"}`, string(raw))

	calls := flow.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "ds-1", calls[0].datasetID)
	assert.Equal(t, "Purchase", calls[0].req.EventName)
	assert.Equal(t, "pixel-test/1.0", calls[0].metadata.UserAgent)
}

func TestTrackHandler_MalformedJSON(t *testing.T) {
	flow := &fakeTrackingFlow{}
	app, _ := newTrackingApp(flow)

	status, envelope, _ := doRequest(t, app, jsonRequest(http.MethodPost, "/api/v1/track/ds-1", `{"eventName":`))
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "INVALID_REQUEST", errorCode(t, envelope))
	assert.Empty(t, flow.recorded())
}

func TestTrackHandler_PipelineErrorsStayInvisible(t *testing.T) {
	for name, err := range map[string]error{
		"invalid event":   businessflow.ErrInvalidEvent,
		"unknown dataset": businessflow.ErrDatasetNotFound,
		"persist failure": businessflow.NewBusinessError("EVENT_PERSIST_FAILED", "Failed to persist event", businessflow.ErrPersistenceFailure),
	} {
		t.Run(name, func(t *testing.T) {
			flow := &fakeTrackingFlow{processFn: func() error { return err }}
			app, _ := newTrackingApp(flow)

			status, _, raw := doRequest(t, app, jsonRequest(http.MethodPost, "/api/v1/track/ds-1", `{"eventData":{}}`))
			assert.Equal(t, fiber.StatusOK, status)
			assert.JSONEq(t, `{"status":"received"}`, string(raw))
		})
	}
}

func TestTrackHandler_PanicIsContained(t *testing.T) {
	flow := &fakeTrackingFlow{processFn: func() error { panic("adapter exploded") }}
	app, h := newTrackingApp(flow)

	status, _, _ := doRequest(t, app, jsonRequest(http.MethodPost, "/api/v1/track/ds-1", `{"eventName":"Lead"}`))
	assert.Equal(t, fiber.StatusOK, status)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, h.Drain(ctx))
}

func TestTrackHandler_DrainWaitsForBackgroundRuns(t *testing.T) {
	release := make(chan struct{})
	flow := &fakeTrackingFlow{processFn: func() error {
		<-release
		return nil
	}}
	h := NewTrackingHandler(flow, time.Second, nil)
	app := fiber.New()
	app.Post("/api/v1/track/:datasetId", h.Track)

	status, _, _ := doRequest(t, app, jsonRequest(http.MethodPost, "/api/v1/track/ds-1", `{"eventName":"Lead"}`))
	assert.Equal(t, fiber.StatusOK, status)

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.Drain(short), context.DeadlineExceeded)

	close(release)
	ctx, cancelWait := context.WithTimeout(context.Background(), time.Second)
	defer cancelWait()
	assert.NoError(t, h.Drain(ctx))
	assert.Len(t, flow.recorded(), 1)
}

func TestWebhookHandler(t *testing.T) {
	tests := []struct {
		name       string
		authErr    error
		body       string
		wantStatus int
		wantCode   string
		wantCalls  int
	}{
		{name: "accepted", body: `{"eventName":"Purchase"}`, wantStatus: fiber.StatusOK, wantCalls: 1},
		{name: "unknown source", authErr: businessflow.ErrSourceNotFound, body: `{}`, wantStatus: fiber.StatusNotFound, wantCode: "SOURCE_NOT_FOUND"},
		{name: "disabled source", authErr: businessflow.ErrSourceDisabled, body: `{}`, wantStatus: fiber.StatusNotFound, wantCode: "SOURCE_NOT_FOUND"},
		{name: "bad signature", authErr: businessflow.ErrInvalidSignature, body: `{}`, wantStatus: fiber.StatusUnauthorized, wantCode: "INVALID_SIGNATURE"},
		{name: "pixel source", authErr: businessflow.ErrSourceNotWebhook, body: `{}`, wantStatus: fiber.StatusBadRequest, wantCode: "SOURCE_NOT_WEBHOOK"},
		{name: "lookup failure", authErr: errors.New("db down"), body: `{}`, wantStatus: fiber.StatusInternalServerError, wantCode: "WEBHOOK_AUTH_FAILED"},
		{name: "malformed body", body: `not-json`, wantStatus: fiber.StatusBadRequest, wantCode: "INVALID_REQUEST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotSignature string
			var gotBody []byte
			flow := &fakeTrackingFlow{authFn: func(sourceID string, body []byte, signature string) (string, error) {
				gotSignature = signature
				gotBody = body
				if tt.authErr != nil {
					return "", tt.authErr
				}
				return "ds-from-source", nil
			}}
			app, _ := newTrackingApp(flow)

			req := jsonRequest(http.MethodPost, "/api/v1/track/sources/src-1/webhook", tt.body)
			req.Header.Set("X-Signature", "abc123")

			status, envelope, _ := doRequest(t, app, req)
			assert.Equal(t, tt.wantStatus, status)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, errorCode(t, envelope))
			}
			assert.Equal(t, "abc123", gotSignature)
			assert.Equal(t, tt.body, string(gotBody))

			calls := flow.recorded()
			require.Len(t, calls, tt.wantCalls)
			if tt.wantCalls == 1 {
				assert.Equal(t, "ds-from-source", calls[0].datasetID)
			}
		})
	}
}

func TestWebhookHandler_BodyLimit(t *testing.T) {
	authCalled := false
	flow := &fakeTrackingFlow{authFn: func(string, []byte, string) (string, error) {
		authCalled = true
		return "ds-1", nil
	}}
	app, h := newTrackingApp(flow)
	h.WithWebhookBodyLimit(16)

	req := jsonRequest(http.MethodPost, "/api/v1/track/sources/src-1/webhook", `{"eventName":"Purchase"}`)
	status, envelope, _ := doRequest(t, app, req)
	assert.Equal(t, fiber.StatusRequestEntityTooLarge, status)
	assert.Equal(t, "PAYLOAD_TOO_LARGE", errorCode(t, envelope))
	assert.False(t, authCalled)
	assert.Empty(t, flow.recorded())
}

type fakeDatasetFlow struct {
	businessflow.DatasetFlow
	tenant string
	err    error
}

func (f *fakeDatasetFlow) CreateDataset(_ context.Context, tenantID string, req *dto.CreateDatasetRequest) (*dto.DatasetResponse, error) {
	f.tenant = tenantID
	if f.err != nil {
		return nil, f.err
	}
	return &dto.DatasetResponse{ID: "ds-1", TenantID: tenantID, Name: req.Name}, nil
}

func (f *fakeDatasetFlow) GetDataset(_ context.Context, tenantID, datasetID string) (*dto.DatasetDetailResponse, error) {
	f.tenant = tenantID
	if f.err != nil {
		return nil, f.err
	}
	return &dto.DatasetDetailResponse{DatasetResponse: dto.DatasetResponse{ID: datasetID}}, nil
}

func (f *fakeDatasetFlow) SetDestinationEnabled(_ context.Context, tenantID, destinationID string, enabled bool) (*dto.DestinationResponse, error) {
	f.tenant = tenantID
	if f.err != nil {
		return nil, f.err
	}
	return &dto.DestinationResponse{ID: destinationID, Enabled: enabled}, nil
}

type fakeStatsFlow struct {
	err error
}

func (f *fakeStatsFlow) GetDatasetStats(_ context.Context, _, _ string) (*dto.DatasetStatsResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	stats := &dto.DatasetStatsResponse{TotalEvents24h: 3}
	stats.EventsByHour[23] = 3
	return stats, nil
}

func withTenant(tenantID string) fiber.Handler {
	return func(c fiber.Ctx) error {
		if tenantID != "" {
			c.Locals(middleware.LocalTenantID, tenantID)
		}
		return c.Next()
	}
}

func newDatasetApp(flow *fakeDatasetFlow, stats *fakeStatsFlow, tenantID string) *fiber.App {
	h := NewDatasetHandler(flow, stats, nil)
	app := fiber.New()
	app.Use(withTenant(tenantID))
	app.Post("/api/v1/datasets", h.CreateDataset)
	app.Get("/api/v1/datasets/:datasetId", h.GetDataset)
	app.Get("/api/v1/datasets/:datasetId/stats", h.GetDatasetStats)
	app.Patch("/api/v1/destinations/:destinationId", h.UpdateDestination)
	return app
}

func TestDatasetHandler_CreateDataset(t *testing.T) {
	flow := &fakeDatasetFlow{}
	app := newDatasetApp(flow, &fakeStatsFlow{}, testTenant)

	status, envelope, _ := doRequest(t, app, jsonRequest(http.MethodPost, "/api/v1/datasets", `{"name":"Storefront"}`))
	assert.Equal(t, fiber.StatusCreated, status)
	assert.True(t, envelope.Success)
	assert.Equal(t, testTenant, flow.tenant)

	data, ok := envelope.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Storefront", data["name"])
}

func TestDatasetHandler_CreateDatasetValidation(t *testing.T) {
	app := newDatasetApp(&fakeDatasetFlow{}, &fakeStatsFlow{}, testTenant)

	status, envelope, _ := doRequest(t, app, jsonRequest(http.MethodPost, "/api/v1/datasets", `{"description":"no name"}`))
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, envelope))
}

func TestDatasetHandler_RequiresTenant(t *testing.T) {
	app := newDatasetApp(&fakeDatasetFlow{}, &fakeStatsFlow{}, "")

	status, envelope, _ := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/datasets/ds-1", nil))
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, envelope))
}

func TestDatasetHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{businessflow.ErrDatasetNotFound, fiber.StatusNotFound, "DATASET_NOT_FOUND"},
		{businessflow.ErrDatasetAccessDenied, fiber.StatusForbidden, "DATASET_ACCESS_DENIED"},
		{errors.New("connection reset"), fiber.StatusInternalServerError, "GET_DATASET_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			app := newDatasetApp(&fakeDatasetFlow{err: tt.err}, &fakeStatsFlow{}, testTenant)

			status, envelope, _ := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/datasets/ds-1", nil))
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, errorCode(t, envelope))
		})
	}
}

func TestDatasetHandler_GetDatasetStats(t *testing.T) {
	app := newDatasetApp(&fakeDatasetFlow{}, &fakeStatsFlow{}, testTenant)

	status, envelope, _ := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/datasets/ds-1/stats", nil))
	assert.Equal(t, fiber.StatusOK, status)

	data, ok := envelope.Data.(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 3, data["totalEvents24h"])
	assert.Len(t, data["eventsByHour"], 24)
	assert.Nil(t, data["lastEventTime"])
}

func TestDatasetHandler_GetDatasetStatsAccessDenied(t *testing.T) {
	app := newDatasetApp(&fakeDatasetFlow{}, &fakeStatsFlow{err: businessflow.ErrDatasetAccessDenied}, testTenant)

	status, _, _ := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/datasets/ds-1/stats", nil))
	assert.Equal(t, fiber.StatusForbidden, status)
}

func TestDatasetHandler_UpdateDestination(t *testing.T) {
	t.Run("enabled is required", func(t *testing.T) {
		app := newDatasetApp(&fakeDatasetFlow{}, &fakeStatsFlow{}, testTenant)
		status, envelope, _ := doRequest(t, app, jsonRequest(http.MethodPatch, "/api/v1/destinations/dest-1", `{}`))
		assert.Equal(t, fiber.StatusBadRequest, status)
		assert.Equal(t, "VALIDATION_ERROR", errorCode(t, envelope))
	})

	t.Run("invalid config", func(t *testing.T) {
		err := businessflow.NewBusinessError("INVALID_DESTINATION_CONFIG", "missing apiToken", businessflow.ErrInvalidDestinationConfig)
		app := newDatasetApp(&fakeDatasetFlow{err: err}, &fakeStatsFlow{}, testTenant)
		status, envelope, _ := doRequest(t, app, jsonRequest(http.MethodPatch, "/api/v1/destinations/dest-1", `{"enabled":true}`))
		assert.Equal(t, fiber.StatusBadRequest, status)
		assert.Equal(t, "INVALID_DESTINATION_CONFIG", errorCode(t, envelope))
	})

	t.Run("disable", func(t *testing.T) {
		app := newDatasetApp(&fakeDatasetFlow{}, &fakeStatsFlow{}, testTenant)
		status, envelope, _ := doRequest(t, app, jsonRequest(http.MethodPatch, "/api/v1/destinations/dest-1", `{"enabled":false}`))
		assert.Equal(t, fiber.StatusOK, status)
		data, ok := envelope.Data.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, false, data["enabled"])
	})
}

type fakeDeliveryLogFlow struct {
	listReq   *dto.ListDeliveriesRequest
	exportErr error
	redeliver func(deliveryID string) (*dto.DeliveryResponse, error)
}

func (f *fakeDeliveryLogFlow) ListDeliveries(_ context.Context, _, _ string, req *dto.ListDeliveriesRequest) (*dto.DeliveryListResponse, error) {
	f.listReq = req
	return &dto.DeliveryListResponse{Items: []dto.DeliveryResponse{}}, nil
}

func (f *fakeDeliveryLogFlow) ExportDeliveries(_ context.Context, _, datasetID string, _ *dto.ExportDeliveriesRequest) (string, []byte, error) {
	if f.exportErr != nil {
		return "", nil, f.exportErr
	}
	return "deliveries_" + datasetID + ".xlsx", []byte("PK-xlsx"), nil
}

func (f *fakeDeliveryLogFlow) Redeliver(_ context.Context, _, deliveryID string) (*dto.DeliveryResponse, error) {
	return f.redeliver(deliveryID)
}

func newDeliveryApp(flow *fakeDeliveryLogFlow) *fiber.App {
	h := NewDeliveryHandler(flow, nil)
	app := fiber.New()
	app.Use(withTenant(testTenant))
	app.Get("/api/v1/datasets/:datasetId/deliveries/export", h.ExportDeliveries)
	app.Get("/api/v1/datasets/:datasetId/deliveries", h.ListDeliveries)
	app.Post("/api/v1/deliveries/:deliveryId/redeliver", h.Redeliver)
	return app
}

func TestDeliveryHandler_ListDeliveries(t *testing.T) {
	flow := &fakeDeliveryLogFlow{}
	app := newDeliveryApp(flow)

	status, _, _ := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/datasets/ds-1/deliveries?status=FAILED&page=2", nil))
	assert.Equal(t, fiber.StatusOK, status)
	require.NotNil(t, flow.listReq)
	assert.Equal(t, "FAILED", flow.listReq.Status)
	assert.Equal(t, 2, flow.listReq.Page)
	assert.Equal(t, 20, flow.listReq.PageSize)
}

func TestDeliveryHandler_ListDeliveriesRejectsUnknownStatus(t *testing.T) {
	app := newDeliveryApp(&fakeDeliveryLogFlow{})

	status, envelope, _ := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/api/v1/datasets/ds-1/deliveries?status=LOST", nil))
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, envelope))
}

func TestDeliveryHandler_ExportDeliveries(t *testing.T) {
	app := newDeliveryApp(&fakeDeliveryLogFlow{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/datasets/ds-1/deliveries/export", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", resp.Header.Get("Content-Type"))
	assert.Equal(t, "attachment; filename=deliveries_ds-1.xlsx", resp.Header.Get("Content-Disposition"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "PK-xlsx", string(body))
}

func TestDeliveryHandler_Redeliver(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "success", wantStatus: fiber.StatusOK},
		{name: "missing delivery", err: businessflow.ErrDeliveryNotFound, wantStatus: fiber.StatusNotFound},
		{name: "disabled destination", err: businessflow.ErrDestinationDisabled, wantStatus: fiber.StatusConflict},
		{name: "other tenant", err: businessflow.ErrDatasetAccessDenied, wantStatus: fiber.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flow := &fakeDeliveryLogFlow{redeliver: func(deliveryID string) (*dto.DeliveryResponse, error) {
				if tt.err != nil {
					return nil, tt.err
				}
				return &dto.DeliveryResponse{ID: "new-" + deliveryID, Status: "SUCCESS"}, nil
			}}
			app := newDeliveryApp(flow)

			status, envelope, _ := doRequest(t, app, httptest.NewRequest(http.MethodPost, "/api/v1/deliveries/del-1/redeliver", nil))
			assert.Equal(t, tt.wantStatus, status)
			if tt.err == nil {
				data, ok := envelope.Data.(map[string]any)
				require.True(t, ok)
				assert.Equal(t, "new-del-1", data["id"])
			}
		})
	}
}
