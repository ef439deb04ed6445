package businessflow

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/amirphl/trackrelay/utils"
	"github.com/goccy/go-json"
)

// CanonicalEventID derives the dedup key of an event that arrived without one.
// Identical name and payload within the same 60 second window collapse to the same id,
// so a browser pixel and a server webhook reporting one purchase dedupe on the ad platform.
func CanonicalEventID(eventName string, eventData map[string]any, timestampSeconds float64) string {
	if eventData == nil {
		eventData = map[string]any{}
	}
	// map keys are sorted by the encoder, nested maps included
	window := int64(math.Floor(timestampSeconds / utils.DedupTimeWindowSeconds))
	payload := map[string]any{
		"data":       eventData,
		"eventName":  eventName,
		"timeWindow": window,
	}
	serialized, err := json.Marshal(payload)
	if err != nil {
		// the encoder rejects NaN and Inf values
		serialized = []byte(fmt.Sprintf("%s|%d", eventName, window))
	}
	sum := sha256.Sum256(serialized)
	return hex.EncodeToString(sum[:])
}
