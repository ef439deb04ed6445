package utils

import (
	"time"
)

// Ingestion constants
const (
	// DedupTimeWindowSeconds is the width of the bucket used when deriving a canonical event id
	DedupTimeWindowSeconds = 60

	// MillisecondEpochThreshold separates epoch seconds from epoch milliseconds (year 5138 in seconds)
	MillisecondEpochThreshold = 1e11

	// DefaultCurrency is used when an event carries a value without a currency
	DefaultCurrency = "BRL"

	// StatsWindow is the look-back window of dataset stats
	StatsWindow = 24 * time.Hour

	// StatsBuckets is the number of hourly buckets in dataset stats
	StatsBuckets = 24
)

// Delivery constants
const (
	// DefaultAdapterTimeout bounds one outbound call to an ad platform
	DefaultAdapterTimeout = 10 * time.Second

	// MaxResponseBodyBytes caps the platform response stored on a delivery row
	MaxResponseBodyBytes = 8 * 1024
)
