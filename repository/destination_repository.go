package repository

import (
	"context"

	"github.com/amirphl/trackrelay/models"
	"github.com/amirphl/trackrelay/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DestinationRepositoryImpl implements DestinationRepository
type DestinationRepositoryImpl struct {
	*BaseRepository[models.Destination, models.DestinationFilter]
}

func NewDestinationRepository(db *gorm.DB) DestinationRepository {
	return &DestinationRepositoryImpl{BaseRepository: NewBaseRepository[models.Destination, models.DestinationFilter](db)}
}

func (r *DestinationRepositoryImpl) ListByDataset(ctx context.Context, datasetID uuid.UUID) ([]*models.Destination, error) {
	return r.ByFilter(ctx, models.DestinationFilter{DatasetID: &datasetID}, "created_at ASC", 0, 0)
}

func (r *DestinationRepositoryImpl) SetEnabled(ctx context.Context, destinationID uuid.UUID, enabled bool) error {
	status := models.DestinationStatusInactive
	if enabled {
		status = models.DestinationStatusActive
	}
	db := r.getDB(ctx)
	return db.Model(&models.Destination{}).
		Where("id = ?", destinationID).
		Updates(map[string]any{
			"enabled":    enabled,
			"status":     status,
			"updated_at": utils.UTCNow(),
		}).Error
}

func (r *DestinationRepositoryImpl) applyFilter(db *gorm.DB, f models.DestinationFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.DatasetID != nil {
		db = db.Where("dataset_id = ?", *f.DatasetID)
	}
	if f.Platform != nil {
		db = db.Where("platform = ?", *f.Platform)
	}
	if f.Enabled != nil {
		db = db.Where("enabled = ?", *f.Enabled)
	}
	return db
}

func (r *DestinationRepositoryImpl) ByFilter(ctx context.Context, filter models.DestinationFilter, orderBy string, limit, offset int) ([]*models.Destination, error) {
	db := r.getDB(ctx)
	query := paginate(r.applyFilter(db.Model(&models.Destination{}), filter), orderBy, limit, offset)
	var rows []*models.Destination
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *DestinationRepositoryImpl) Count(ctx context.Context, filter models.DestinationFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	if err := r.applyFilter(db.Model(&models.Destination{}), filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *DestinationRepositoryImpl) Exists(ctx context.Context, filter models.DestinationFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
