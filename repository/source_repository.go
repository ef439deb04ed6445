package repository

import (
	"context"

	"github.com/amirphl/trackrelay/models"
	"github.com/amirphl/trackrelay/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SourceRepositoryImpl implements SourceRepository
type SourceRepositoryImpl struct {
	*BaseRepository[models.Source, models.SourceFilter]
}

func NewSourceRepository(db *gorm.DB) SourceRepository {
	return &SourceRepositoryImpl{BaseRepository: NewBaseRepository[models.Source, models.SourceFilter](db)}
}

// ListPendingPixelSources returns the PIXEL_SCRIPT sources of a dataset still waiting for their first event
func (r *SourceRepositoryImpl) ListPendingPixelSources(ctx context.Context, datasetID uuid.UUID) ([]*models.Source, error) {
	kind := models.SourceKindPixelScript
	status := models.SourceStatusPending
	return r.ByFilter(ctx, models.SourceFilter{DatasetID: &datasetID, Kind: &kind, Status: &status}, "created_at ASC", 0, 0)
}

// MarkSourceActive flips a PENDING source to ACTIVE. Already active sources are left untouched.
func (r *SourceRepositoryImpl) MarkSourceActive(ctx context.Context, sourceID uuid.UUID) error {
	db := r.getDB(ctx)
	return db.Model(&models.Source{}).
		Where("id = ? AND status = ?", sourceID, models.SourceStatusPending).
		Updates(map[string]any{
			"status":     models.SourceStatusActive,
			"updated_at": utils.UTCNow(),
		}).Error
}

func (r *SourceRepositoryImpl) applyFilter(db *gorm.DB, f models.SourceFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.DatasetID != nil {
		db = db.Where("dataset_id = ?", *f.DatasetID)
	}
	if f.Kind != nil {
		db = db.Where("kind = ?", *f.Kind)
	}
	if f.Status != nil {
		db = db.Where("status = ?", *f.Status)
	}
	if f.Provider != nil {
		db = db.Where("provider = ?", *f.Provider)
	}
	if f.Enabled != nil {
		db = db.Where("enabled = ?", *f.Enabled)
	}
	return db
}

func (r *SourceRepositoryImpl) ByFilter(ctx context.Context, filter models.SourceFilter, orderBy string, limit, offset int) ([]*models.Source, error) {
	db := r.getDB(ctx)
	query := paginate(r.applyFilter(db.Model(&models.Source{}), filter), orderBy, limit, offset)
	var rows []*models.Source
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *SourceRepositoryImpl) Count(ctx context.Context, filter models.SourceFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	if err := r.applyFilter(db.Model(&models.Source{}), filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *SourceRepositoryImpl) Exists(ctx context.Context, filter models.SourceFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
