package destinations

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	neturl "net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/amirphl/trackrelay/models"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

func newTestEvent(data map[string]any) *models.Event {
	return &models.Event{
		ID:        uuid.New(),
		DatasetID: uuid.New(),
		EventID:   "evt_123",
		EventName: "Purchase",
		EventData: datatypes.JSONMap(data),
		URL:       "https://shop.example.com/checkout",
		UserAgent: "Mozilla/5.0",
		ClientIP:  "203.0.113.7",
		Status:    models.EventStatusProcessed,
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func newMetaForTest(baseURL string) *MetaAdapter {
	return NewMetaAdapter(MetaOptions{
		Options:      Options{Timeout: 2 * time.Second},
		GraphBaseURL: baseURL,
		APIVersion:   "v18.0",
	}, zap.NewNop())
}

func TestMetaAdapter_Send_Success(t *testing.T) {
	var captured map[string]any
	var rawBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v18.0/123/events", r.URL.Path)
		assert.Empty(t, r.URL.RawQuery)
		body, _ := io.ReadAll(r.Body)
		rawBody = string(body)
		assert.NoError(t, json.Unmarshal(body, &captured))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"events_received":1}`))
	}))
	defer server.Close()

	adapter := newMetaForTest(server.URL)
	event := newTestEvent(map[string]any{
		"value":    99.9,
		"currency": "BRL",
		"email":    "User@Example.com",
		"fbp":      "fb.1.1596403881668.1116446470",
	})

	result := adapter.Send(context.Background(), map[string]any{"pixelId": "123", "apiToken": "tok"}, event)

	require.True(t, result.Success, result.Body)
	assert.Equal(t, http.StatusOK, result.Code)
	assert.Equal(t, `{"events_received":1}`, result.Body)

	assert.Equal(t, "tok", captured["access_token"])

	data := captured["data"].([]any)
	require.Len(t, data, 1)
	serverEvent := data[0].(map[string]any)
	assert.Equal(t, "Purchase", serverEvent["event_name"])
	assert.Equal(t, "evt_123", serverEvent["event_id"])
	assert.Equal(t, "website", serverEvent["action_source"])
	assert.Equal(t, "https://shop.example.com/checkout", serverEvent["event_source_url"])

	userData := serverEvent["user_data"].(map[string]any)
	assert.Equal(t, sha256Hex("user@example.com"), userData["em"])
	assert.Equal(t, "203.0.113.7", userData["client_ip_address"])
	assert.Equal(t, "Mozilla/5.0", userData["client_user_agent"])
	assert.Equal(t, "fb.1.1596403881668.1116446470", userData["fbp"])

	customData := serverEvent["custom_data"].(map[string]any)
	assert.Equal(t, "BRL", customData["currency"])
	assert.Equal(t, 99.9, customData["value"])
	assert.NotContains(t, customData, "email")

	assert.NotContains(t, rawBody, "User@Example.com")
	assert.NotContains(t, rawBody, "user@example.com")
}

func TestMetaAdapter_Send_DefaultsCurrency(t *testing.T) {
	adapter := newMetaForTest("http://unused")
	built := adapter.BuildEvent(newTestEvent(map[string]any{"value": "10"}))

	assert.Equal(t, "BRL", built.CustomData["currency"])
	assert.Equal(t, "10", built.CustomData["value"], "meta receives the value untouched")
}

func TestMetaAdapter_Send_MissingConfig(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer server.Close()

	adapter := newMetaForTest(server.URL)

	tests := []struct {
		name   string
		config map[string]any
	}{
		{name: "nil config", config: nil},
		{name: "missing token", config: map[string]any{"pixelId": "123"}},
		{name: "missing pixel", config: map[string]any{"apiToken": "tok"}},
		{name: "blank values", config: map[string]any{"pixelId": " ", "apiToken": ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := adapter.Send(context.Background(), tt.config, newTestEvent(nil))
			assert.False(t, result.Success)
			assert.Equal(t, http.StatusBadRequest, result.Code)
		})
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits), "no network call without credentials")
}

func TestMetaAdapter_Send_PlatformRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid OAuth access token.","code":190}}`))
	}))
	defer server.Close()

	result := newMetaForTest(server.URL).Send(context.Background(),
		map[string]any{"pixelId": "123", "apiToken": "bad"}, newTestEvent(nil))

	assert.False(t, result.Success)
	assert.Equal(t, http.StatusBadRequest, result.Code)
	assert.Contains(t, result.Body, "Invalid OAuth access token.")
}

func TestMetaAdapter_Send_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	result := newMetaForTest(url).Send(context.Background(),
		map[string]any{"pixelId": "123", "apiToken": "SECRET-TOKEN-XYZ"}, newTestEvent(nil))

	assert.False(t, result.Success)
	assert.Equal(t, 0, result.Code)
	assert.NotEmpty(t, result.Body)
	assert.NotContains(t, result.Body, "SECRET-TOKEN-XYZ", "delivery rows must not carry the api token")
}

func TestRedactURL(t *testing.T) {
	err := redactURL(&neturl.Error{Op: "Post", URL: "https://graph.example.com/v18.0/1/events?access_token=s3cret", Err: io.EOF})
	assert.NotContains(t, err.Error(), "s3cret")
	assert.Contains(t, err.Error(), "https://graph.example.com/v18.0/1/events")
	assert.ErrorIs(t, err, io.EOF)

	plain := io.ErrUnexpectedEOF
	assert.Equal(t, plain, redactURL(plain))
}

func TestMetaAdapter_Send_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	adapter := NewMetaAdapter(MetaOptions{
		Options:      Options{Timeout: 50 * time.Millisecond},
		GraphBaseURL: server.URL,
	}, zap.NewNop())

	start := time.Now()
	result := adapter.Send(context.Background(), map[string]any{"pixelId": "123", "apiToken": "tok"}, newTestEvent(nil))

	assert.False(t, result.Success)
	assert.Equal(t, 0, result.Code)
	assert.Less(t, time.Since(start), time.Second)
}
