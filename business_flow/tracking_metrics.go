package businessflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingestion outcomes
const (
	ingestOutcomePersisted     = "persisted"
	ingestOutcomeDuplicate     = "duplicate"
	ingestOutcomeInvalid       = "invalid"
	ingestOutcomePersistFailed = "persist_failed"
	ingestOutcomeUnknownSet    = "unknown_dataset"
)

var (
	eventsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackrelay_events_ingested_total",
			Help: "Events received by the ingestion pipeline by outcome",
		},
		[]string{"outcome"},
	)

	deliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackrelay_deliveries_total",
			Help: "Settled deliveries by platform and status",
		},
		[]string{"platform", "status"},
	)

	adapterDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trackrelay_adapter_duration_seconds",
			Help:    "Time spent in destination adapters",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"platform"},
	)

	sourceActivationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trackrelay_source_activations_total",
			Help: "Pixel sources flipped from PENDING to ACTIVE",
		},
	)
)
