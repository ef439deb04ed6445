// Package utils provides utility functions for the application.
package utils

import (
	"math"
	"time"
)

// UTCNow returns the current time in UTC
func UTCNow() time.Time {
	return time.Now().UTC()
}

// UTCNowUnix returns the current UTC time as Unix timestamp
func UTCNowUnix() int64 {
	return UTCNow().Unix()
}

// EpochSeconds normalizes a client supplied epoch timestamp to seconds.
// Browsers usually send Date.now() (milliseconds); anything at or above
// MillisecondEpochThreshold is treated as milliseconds.
func EpochSeconds(ts float64) float64 {
	if math.IsNaN(ts) || math.IsInf(ts, 0) || ts <= 0 {
		return 0
	}
	if ts >= MillisecondEpochThreshold {
		return ts / 1000
	}
	return ts
}
