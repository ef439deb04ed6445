// Package destinations translates tracked events into the wire formats of ad platform conversion APIs
package destinations

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/amirphl/trackrelay/models"
	"github.com/amirphl/trackrelay/utils"
	"github.com/goccy/go-json"
)

// Result is the outcome of one adapter call. Adapters never return errors;
// every failure is folded into a Result with Success=false.
type Result struct {
	Success bool
	Code    int
	Body    string
}

// Adapter sends one event to one ad platform
type Adapter interface {
	Platform() string
	Send(ctx context.Context, config map[string]any, event *models.Event) Result
}

// Registry resolves the adapter for a destination platform
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds a registry from the given adapters, keyed by their platform
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Platform()] = a
	}
	return r
}

// Lookup returns the adapter registered for platform
func (r *Registry) Lookup(platform string) (Adapter, bool) {
	if r == nil {
		return nil, false
	}
	a, ok := r.adapters[platform]
	return a, ok
}

// Platforms lists the registered platforms
func (r *Registry) Platforms() []string {
	out := make([]string, 0, len(r.adapters))
	for p := range r.adapters {
		out = append(out, p)
	}
	return out
}

// Options configures the outbound HTTP behaviour shared by the adapters
type Options struct {
	Timeout         time.Duration
	DefaultCurrency string
	HTTPClient      *http.Client
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = utils.DefaultAdapterTimeout
	}
	if o.DefaultCurrency == "" {
		o.DefaultCurrency = utils.DefaultCurrency
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: o.Timeout}
	}
	return o
}

func failure(code int, format string, args ...any) Result {
	return Result{Success: false, Code: code, Body: fmt.Sprintf(format, args...)}
}

// postJSON sends payload and returns the HTTP status with the (truncated) response body.
// A transport failure is reported as code 0.
func postJSON(ctx context.Context, client *http.Client, timeout time.Duration, endpoint string, headers map[string]string, payload any) (int, string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("request failed: %w", redactURL(err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, utils.MaxResponseBodyBytes+1))
	if err != nil {
		return resp.StatusCode, "", fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, utils.Truncate(string(raw), utils.MaxResponseBodyBytes), nil
}

// redactURL drops the query string from transport errors, which end up in delivery rows and logs
func redactURL(err error) error {
	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return err
	}
	if u, parseErr := url.Parse(urlErr.URL); parseErr == nil && u.RawQuery != "" {
		u.RawQuery = ""
		return &url.Error{Op: urlErr.Op, URL: u.String(), Err: urlErr.Err}
	}
	return err
}

func isSuccessStatus(code int) bool {
	return code >= 200 && code < 300
}
