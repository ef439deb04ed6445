package businessflow

import (
	"context"
	"time"

	"github.com/amirphl/trackrelay/app/dto"
	"github.com/amirphl/trackrelay/models"
	"github.com/amirphl/trackrelay/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DatasetStatsFlow aggregates the last 24 hours of a dataset into hourly buckets.
// Nothing is cached; every call recomputes from the event rows.
type DatasetStatsFlow interface {
	GetDatasetStats(ctx context.Context, tenantID, datasetID string) (*dto.DatasetStatsResponse, error)
}

// DeliveryCounter counts deliveries by status
type DeliveryCounter interface {
	CountByStatusSince(ctx context.Context, datasetID uuid.UUID, since time.Time) (models.DeliveryStatusCounts, error)
}

// DatasetLookup resolves a dataset by id
type DatasetLookup interface {
	ByID(ctx context.Context, id uuid.UUID) (*models.Dataset, error)
}

type DatasetStatsFlowImpl struct {
	datasets   DatasetLookup
	events     EventStore
	deliveries DeliveryCounter
	logger     *zap.Logger
	now        func() time.Time
}

func NewDatasetStatsFlow(datasets DatasetLookup, events EventStore, deliveries DeliveryCounter, logger *zap.Logger) DatasetStatsFlow {
	return &DatasetStatsFlowImpl{
		datasets:   datasets,
		events:     events,
		deliveries: deliveries,
		logger:     logger.Named("stats"),
		now:        utils.UTCNow,
	}
}

// DatasetStats is the in-memory aggregate behind the stats endpoint
type DatasetStats struct {
	TotalEvents24h int
	EventsByHour   [utils.StatsBuckets]int
	LastEventTime  *time.Time
}

// ComputeDatasetStats buckets events by hours ago. Index 23 is the current hour and
// index 0 is 24 hours ago; events outside [0, 23] hours ago are left out of the buckets.
func ComputeDatasetStats(events []*models.Event, now time.Time) DatasetStats {
	var stats DatasetStats
	stats.TotalEvents24h = len(events)
	for _, e := range events {
		if e == nil {
			continue
		}
		created := e.CreatedAt
		if stats.LastEventTime == nil || created.After(*stats.LastEventTime) {
			t := created
			stats.LastEventTime = &t
		}

		age := now.Sub(created)
		if age < 0 {
			continue
		}
		hoursAgo := int(age / time.Hour)
		if hoursAgo < 0 || hoursAgo >= utils.StatsBuckets {
			continue
		}
		stats.EventsByHour[utils.StatsBuckets-1-hoursAgo]++
	}
	return stats
}

func (f *DatasetStatsFlowImpl) GetDatasetStats(ctx context.Context, tenantID, datasetID string) (*dto.DatasetStatsResponse, error) {
	dataset, err := loadOwnedDataset(ctx, f.datasets, tenantID, datasetID)
	if err != nil {
		return nil, err
	}

	now := f.now()
	since := now.Add(-utils.StatsWindow)
	events, err := f.events.ListEventsInWindow(ctx, dataset.ID, since)
	if err != nil {
		return nil, NewBusinessError("STATS_EVENTS_FAILED", "Failed to load events", err)
	}
	stats := ComputeDatasetStats(events, now)

	resp := &dto.DatasetStatsResponse{
		TotalEvents24h: stats.TotalEvents24h,
		EventsByHour:   stats.EventsByHour,
	}
	if stats.LastEventTime != nil {
		last := stats.LastEventTime.UTC().Format(time.RFC3339)
		resp.LastEventTime = &last
	}

	if f.deliveries != nil {
		counts, err := f.deliveries.CountByStatusSince(ctx, dataset.ID, since)
		if err != nil {
			// the event aggregate is still useful without delivery counts
			f.logger.Warn("failed to count deliveries", zap.String("dataset_id", dataset.ID.String()), zap.Error(err))
		} else {
			resp.Deliveries24h = dto.DeliveryStatusCountsDTO{
				Success: counts.Success,
				Failed:  counts.Failed,
				Pending: counts.Pending,
			}
		}
	}
	return resp, nil
}

// loadOwnedDataset returns the dataset if it exists and belongs to tenantID
func loadOwnedDataset(ctx context.Context, datasets DatasetLookup, tenantID, datasetID string) (*models.Dataset, error) {
	id, err := uuid.Parse(datasetID)
	if err != nil {
		return nil, ErrDatasetNotFound
	}
	dataset, err := datasets.ByID(ctx, id)
	if err != nil {
		return nil, NewBusinessError("DATASET_LOOKUP_FAILED", "Failed to load dataset", err)
	}
	if dataset == nil {
		return nil, ErrDatasetNotFound
	}
	if dataset.TenantID != tenantID {
		return nil, ErrDatasetAccessDenied
	}
	return dataset, nil
}
