package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/amirphl/trackrelay/models"
	"github.com/amirphl/trackrelay/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeliveryRepositoryImpl implements DeliveryRepository
type DeliveryRepositoryImpl struct {
	*BaseRepository[models.Delivery, models.DeliveryFilter]
}

func NewDeliveryRepository(db *gorm.DB) DeliveryRepository {
	return &DeliveryRepositoryImpl{BaseRepository: NewBaseRepository[models.Delivery, models.DeliveryFilter](db)}
}

// CreatePendingDelivery writes the PENDING row for one (event, destination) pair
func (r *DeliveryRepositoryImpl) CreatePendingDelivery(ctx context.Context, event *models.Event, destination *models.Destination) (*models.Delivery, error) {
	now := utils.UTCNow()
	row := &models.Delivery{
		ID:            uuid.New(),
		EventID:       event.ID,
		DestinationID: destination.ID,
		DatasetID:     event.DatasetID,
		Platform:      destination.Platform,
		Status:        models.DeliveryStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := r.getDB(ctx).Create(row).Error; err != nil {
		return nil, fmt.Errorf("failed to create pending delivery: %w", err)
	}
	return row, nil
}

// UpdateDeliveryResult settles a PENDING delivery. Settled rows are never overwritten.
func (r *DeliveryRepositoryImpl) UpdateDeliveryResult(ctx context.Context, deliveryID uuid.UUID, status string, code int, body string) error {
	now := utils.UTCNow()
	res := r.getDB(ctx).Model(&models.Delivery{}).
		Where("id = ? AND status = ?", deliveryID, models.DeliveryStatusPending).
		Updates(map[string]any{
			"status":        status,
			"response_code": code,
			"response_body": body,
			"completed_at":  now,
			"updated_at":    now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update delivery %s: %w", deliveryID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrDeliveryNotPending
	}
	return nil
}

// CountByStatusSince groups the deliveries of a dataset created since the given time by status
func (r *DeliveryRepositoryImpl) CountByStatusSince(ctx context.Context, datasetID uuid.UUID, since time.Time) (models.DeliveryStatusCounts, error) {
	var rows []struct {
		Status string
		Total  int64
	}
	err := r.getDB(ctx).Model(&models.Delivery{}).
		Select("status, COUNT(*) AS total").
		Where("dataset_id = ? AND created_at >= ?", datasetID, since).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return models.DeliveryStatusCounts{}, err
	}

	var counts models.DeliveryStatusCounts
	for _, row := range rows {
		switch row.Status {
		case models.DeliveryStatusSuccess:
			counts.Success = row.Total
		case models.DeliveryStatusFailed:
			counts.Failed = row.Total
		case models.DeliveryStatusPending:
			counts.Pending = row.Total
		}
	}
	return counts, nil
}

// FailStalePending settles deliveries that stayed PENDING since before olderThan
func (r *DeliveryRepositoryImpl) FailStalePending(ctx context.Context, olderThan time.Time, code int, body string) (int64, error) {
	now := utils.UTCNow()
	res := r.getDB(ctx).Model(&models.Delivery{}).
		Where("status = ? AND created_at < ?", models.DeliveryStatusPending, olderThan).
		Updates(map[string]any{
			"status":        models.DeliveryStatusFailed,
			"response_code": code,
			"response_body": body,
			"completed_at":  now,
			"updated_at":    now,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to fail stale deliveries: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *DeliveryRepositoryImpl) applyFilter(db *gorm.DB, f models.DeliveryFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.EventID != nil {
		db = db.Where("event_id = ?", *f.EventID)
	}
	if f.DestinationID != nil {
		db = db.Where("destination_id = ?", *f.DestinationID)
	}
	if f.DatasetID != nil {
		db = db.Where("dataset_id = ?", *f.DatasetID)
	}
	if f.Status != nil {
		db = db.Where("status = ?", *f.Status)
	}
	if f.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		db = db.Where("created_at < ?", *f.CreatedBefore)
	}
	return db
}

func (r *DeliveryRepositoryImpl) ByFilter(ctx context.Context, filter models.DeliveryFilter, orderBy string, limit, offset int) ([]*models.Delivery, error) {
	db := r.getDB(ctx)
	query := paginate(r.applyFilter(db.Model(&models.Delivery{}), filter), orderBy, limit, offset)
	var rows []*models.Delivery
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *DeliveryRepositoryImpl) Count(ctx context.Context, filter models.DeliveryFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	if err := r.applyFilter(db.Model(&models.Delivery{}), filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *DeliveryRepositoryImpl) Exists(ctx context.Context, filter models.DeliveryFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
