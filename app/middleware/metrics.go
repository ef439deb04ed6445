package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	surfaceIngest    = "ingest"
	surfaceDashboard = "dashboard"
	surfaceSystem    = "system"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"surface", "method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"surface", "method", "route", "status"},
	)

	// Ingestion acks before processing, so body size is the main cost signal there
	ingestBodyBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trackrelay_ingest_body_bytes",
			Help:    "Size of request bodies received by the public ingestion endpoints",
			Buckets: prometheus.ExponentialBuckets(128, 4, 7),
		},
	)

	httpInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Number of HTTP requests currently being served",
		},
		[]string{"surface"},
	)
)

// Metrics records Prometheus metrics per route template, split by public ingestion and dashboard traffic
func Metrics() fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()
		surface := surfaceOf(c.Path())

		inFlight := httpInFlight.WithLabelValues(surface)
		inFlight.Inc()
		defer inFlight.Dec()

		if surface == surfaceIngest {
			ingestBodyBytes.Observe(float64(len(c.Body())))
		}

		err := c.Next()

		route := "unmatched"
		if r := c.Route(); r != nil && r.Path != "" {
			route = r.Path // route template keeps dataset ids out of the labels
		}

		labels := prometheus.Labels{
			"surface": surface,
			"method":  c.Method(),
			"route":   route,
			"status":  strconv.Itoa(c.Response().StatusCode()),
		}
		httpRequestsTotal.With(labels).Inc()
		httpRequestDuration.With(labels).Observe(time.Since(start).Seconds())

		return err
	}
}

func surfaceOf(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/v1/track/"):
		return surfaceIngest
	case strings.HasPrefix(path, "/api/v1/") && path != "/api/v1/health":
		return surfaceDashboard
	default:
		return surfaceSystem
	}
}
