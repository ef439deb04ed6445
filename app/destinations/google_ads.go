package destinations

import (
	"context"
	"net/http"

	"github.com/amirphl/trackrelay/models"
)

// GoogleAdsAdapter is a placeholder. Uploading conversions needs an OAuth token and a
// customer id flow, so every delivery settles as FAILED with 501 and stays visible in the log.
type GoogleAdsAdapter struct{}

func NewGoogleAdsAdapter() *GoogleAdsAdapter { return &GoogleAdsAdapter{} }

func (a *GoogleAdsAdapter) Platform() string { return models.PlatformGoogleAds }

func (a *GoogleAdsAdapter) Send(_ context.Context, _ map[string]any, _ *models.Event) Result {
	return Result{Success: false, Code: http.StatusNotImplemented, Body: "Not Implemented"}
}
