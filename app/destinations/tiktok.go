package destinations

import (
	"context"
	"time"

	"github.com/amirphl/trackrelay/models"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// TikTok destination config keys
const (
	TikTokConfigPixelID     = "pixelId"
	TikTokConfigAccessToken = "accessToken"
	TikTokConfigTestCode    = "testEventCode"
)

const defaultTikTokEventsURL = "https://business-api.tiktok.com/open_api/v1.3/event/track/"

// tiktokUserKeys maps normalized PII fields to TikTok user keys
var tiktokUserKeys = map[string]string{
	"email":       "email",
	"phone":       "phone_number",
	"external_id": "external_id",
}

// TikTokOptions configures the TikTok Events API adapter
type TikTokOptions struct {
	Options
	EventsURL string
}

// TikTokAdapter posts events to the TikTok Events API
type TikTokAdapter struct {
	opts   TikTokOptions
	logger *zap.Logger
}

func NewTikTokAdapter(opts TikTokOptions, logger *zap.Logger) *TikTokAdapter {
	opts.Options = opts.Options.withDefaults()
	if opts.EventsURL == "" {
		opts.EventsURL = defaultTikTokEventsURL
	}
	return &TikTokAdapter{opts: opts, logger: logger.Named("tiktok")}
}

func (a *TikTokAdapter) Platform() string { return models.PlatformTikTok }

// TikTokEvent is the Events API payload for one event
type TikTokEvent struct {
	PixelCode     string         `json:"pixel_code"`
	Event         string         `json:"event"`
	EventID       string         `json:"event_id"`
	Timestamp     string         `json:"timestamp"`
	TestEventCode string         `json:"test_event_code,omitempty"`
	Context       TikTokContext  `json:"context"`
	Properties    map[string]any `json:"properties"`
}

type TikTokContext struct {
	Page      TikTokPage        `json:"page"`
	UserAgent string            `json:"user_agent,omitempty"`
	IP        string            `json:"ip,omitempty"`
	User      map[string]string `json:"user,omitempty"`
}

type TikTokPage struct {
	URL string `json:"url,omitempty"`
}

type tiktokResponse struct {
	Code    *int   `json:"code"`
	Message string `json:"message"`
}

// Send delivers one event. TikTok signals success with code 0 in the body, not with the HTTP status.
func (a *TikTokAdapter) Send(ctx context.Context, config map[string]any, event *models.Event) Result {
	pixelID := configString(config, TikTokConfigPixelID)
	token := configString(config, TikTokConfigAccessToken)
	if pixelID == "" || token == "" {
		return failure(400, "missing tiktok config: pixelId and accessToken are required")
	}

	payload := a.BuildEvent(pixelID, event)
	payload.TestEventCode = configString(config, TikTokConfigTestCode)

	code, body, err := postJSON(ctx, a.opts.HTTPClient, a.opts.Timeout, a.opts.EventsURL,
		map[string]string{"Access-Token": token}, payload)
	if err != nil {
		a.logger.Warn("tiktok request failed",
			zap.String("event_id", event.EventID),
			zap.String("pixel_code", pixelID),
			zap.Error(err))
		if code == 0 {
			return failure(0, "%v", err)
		}
		return Result{Success: false, Code: code, Body: err.Error()}
	}

	if !isSuccessStatus(code) {
		return Result{Success: false, Code: code, Body: body}
	}

	var parsed tiktokResponse
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return Result{Success: false, Code: code, Body: "unparseable tiktok response: " + body}
	}
	if parsed.Code == nil || *parsed.Code != 0 {
		return Result{Success: false, Code: code, Body: body}
	}
	return Result{Success: true, Code: code, Body: body}
}

// BuildEvent maps a stored event onto a TikTok Events API payload
func (a *TikTokAdapter) BuildEvent(pixelID string, event *models.Event) TikTokEvent {
	data := map[string]any(event.EventData)
	if data == nil {
		data = map[string]any{}
	}

	var user map[string]string
	for field, hashed := range hashedUserData(data) {
		key, ok := tiktokUserKeys[field]
		if !ok {
			continue
		}
		if user == nil {
			user = make(map[string]string)
		}
		user[key] = hashed
	}

	properties := scrubbedCopy(data)
	properties["currency"] = normalizeCurrency(data["currency"], a.opts.DefaultCurrency)
	delete(properties, "value")
	if v, ok := normalizeValue(data["value"]); ok {
		properties["value"] = v
	}

	ts := event.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	return TikTokEvent{
		PixelCode: pixelID,
		Event:     event.EventName,
		EventID:   event.EventID,
		Timestamp: ts.UTC().Format(time.RFC3339),
		Context: TikTokContext{
			Page:      TikTokPage{URL: event.URL},
			UserAgent: event.UserAgent,
			IP:        event.ClientIP,
			User:      user,
		},
		Properties: properties,
	}
}
