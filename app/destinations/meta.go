package destinations

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/amirphl/trackrelay/models"
	"github.com/amirphl/trackrelay/utils"
	"go.uber.org/zap"
)

// Meta destination config keys
const (
	MetaConfigPixelID       = "pixelId"
	MetaConfigAPIToken      = "apiToken"
	MetaConfigTestEventCode = "testEventCode"
)

const (
	defaultMetaGraphBaseURL = "https://graph.facebook.com"
	defaultMetaAPIVersion   = "v18.0"
)

// metaUserDataKeys maps normalized PII fields to Conversions API user_data keys
var metaUserDataKeys = map[string]string{
	"email":       "em",
	"phone":       "ph",
	"first_name":  "fn",
	"last_name":   "ln",
	"city":        "ct",
	"state":       "st",
	"zip":         "zp",
	"country":     "country",
	"external_id": "external_id",
}

// MetaOptions configures the Meta Conversions API adapter
type MetaOptions struct {
	Options
	GraphBaseURL string
	APIVersion   string
}

// MetaAdapter posts events to the Meta Graph API /events edge
type MetaAdapter struct {
	opts   MetaOptions
	logger *zap.Logger
}

func NewMetaAdapter(opts MetaOptions, logger *zap.Logger) *MetaAdapter {
	opts.Options = opts.Options.withDefaults()
	if opts.GraphBaseURL == "" {
		opts.GraphBaseURL = defaultMetaGraphBaseURL
	}
	if opts.APIVersion == "" {
		opts.APIVersion = defaultMetaAPIVersion
	}
	return &MetaAdapter{opts: opts, logger: logger.Named("meta")}
}

func (a *MetaAdapter) Platform() string { return models.PlatformMeta }

// metaEnvelope carries the access token in the body so it never shows up in request URLs
type metaEnvelope struct {
	Data          []MetaServerEvent `json:"data"`
	AccessToken   string            `json:"access_token"`
	TestEventCode string            `json:"test_event_code,omitempty"`
}

// MetaServerEvent is one entry of the Conversions API data array
type MetaServerEvent struct {
	EventName      string         `json:"event_name"`
	EventTime      int64          `json:"event_time"`
	EventID        string         `json:"event_id"`
	EventSourceURL string         `json:"event_source_url,omitempty"`
	ActionSource   string         `json:"action_source"`
	UserData       map[string]any `json:"user_data"`
	CustomData     map[string]any `json:"custom_data"`
}

// Send delivers one event. Missing credentials fail with 400 before any network call.
func (a *MetaAdapter) Send(ctx context.Context, config map[string]any, event *models.Event) Result {
	pixelID := configString(config, MetaConfigPixelID)
	token := configString(config, MetaConfigAPIToken)
	if pixelID == "" || token == "" {
		return failure(400, "missing meta config: pixelId and apiToken are required")
	}

	envelope := metaEnvelope{
		Data:          []MetaServerEvent{a.BuildEvent(event)},
		AccessToken:   token,
		TestEventCode: configString(config, MetaConfigTestEventCode),
	}

	endpoint := fmt.Sprintf("%s/%s/%s/events",
		strings.TrimRight(a.opts.GraphBaseURL, "/"),
		a.opts.APIVersion,
		url.PathEscape(pixelID),
	)

	code, body, err := postJSON(ctx, a.opts.HTTPClient, a.opts.Timeout, endpoint, nil, envelope)
	if err != nil {
		a.logger.Warn("meta request failed",
			zap.String("event_id", event.EventID),
			zap.String("pixel_id", pixelID),
			zap.Error(err))
		if code == 0 {
			return failure(0, "%v", err)
		}
		return Result{Success: false, Code: code, Body: err.Error()}
	}
	return Result{Success: isSuccessStatus(code), Code: code, Body: body}
}

// BuildEvent maps a stored event onto a Conversions API server event
func (a *MetaAdapter) BuildEvent(event *models.Event) MetaServerEvent {
	data := map[string]any(event.EventData)
	if data == nil {
		data = map[string]any{}
	}

	userData := map[string]any{}
	if event.ClientIP != "" {
		userData["client_ip_address"] = event.ClientIP
	}
	if event.UserAgent != "" {
		userData["client_user_agent"] = event.UserAgent
	}
	for key, aliases := range clickIDKeys {
		if v, ok := firstValue(data, aliases); ok {
			userData[key] = v
		}
	}
	for field, hashed := range hashedUserData(data) {
		userData[metaUserDataKeys[field]] = hashed
	}

	customData := scrubbedCopy(data)
	customData["currency"] = normalizeCurrency(data["currency"], a.opts.DefaultCurrency)
	if v, ok := data["value"]; ok {
		customData["value"] = v
	}

	return MetaServerEvent{
		EventName:      event.EventName,
		EventTime:      utils.UTCNowUnix(),
		EventID:        event.EventID,
		EventSourceURL: event.URL,
		ActionSource:   "website",
		UserData:       userData,
		CustomData:     customData,
	}
}

func configString(config map[string]any, key string) string {
	return models.ConfigString(config, key)
}
