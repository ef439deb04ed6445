package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/trackrelay/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DatasetRepositoryImpl implements DatasetRepository
type DatasetRepositoryImpl struct {
	*BaseRepository[models.Dataset, models.DatasetFilter]
}

func NewDatasetRepository(db *gorm.DB) DatasetRepository {
	return &DatasetRepositoryImpl{BaseRepository: NewBaseRepository[models.Dataset, models.DatasetFilter](db)}
}

// DatasetWithDestinations loads a dataset and all of its destinations, enabled or not
func (r *DatasetRepositoryImpl) DatasetWithDestinations(ctx context.Context, datasetID uuid.UUID) (*models.Dataset, error) {
	db := r.getDB(ctx)
	var row models.Dataset
	err := db.Preload("Destinations", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("created_at ASC")
	}).Where("id = ?", datasetID).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *DatasetRepositoryImpl) DatasetWithRelations(ctx context.Context, datasetID uuid.UUID) (*models.Dataset, error) {
	db := r.getDB(ctx)
	var row models.Dataset
	err := db.Preload("Sources", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("created_at ASC")
	}).Preload("Destinations", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("created_at ASC")
	}).Where("id = ?", datasetID).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *DatasetRepositoryImpl) ListByTenant(ctx context.Context, tenantID string) ([]*models.Dataset, error) {
	return r.ByFilter(ctx, models.DatasetFilter{TenantID: &tenantID}, "created_at DESC", 0, 0)
}

// DeleteCascade removes a dataset together with everything it owns
func (r *DatasetRepositoryImpl) DeleteCascade(ctx context.Context, datasetID uuid.UUID) error {
	return WithTransaction(ctx, r.DB, func(txCtx context.Context) error {
		db := r.getDB(txCtx)
		steps := []struct {
			name  string
			model any
			where string
		}{
			{"deliveries", &models.Delivery{}, "dataset_id = ?"},
			{"events", &models.Event{}, "dataset_id = ?"},
			{"destinations", &models.Destination{}, "dataset_id = ?"},
			{"sources", &models.Source{}, "dataset_id = ?"},
			{"datasets", &models.Dataset{}, "id = ?"},
		}
		for _, step := range steps {
			if err := db.Where(step.where, datasetID).Delete(step.model).Error; err != nil {
				return fmt.Errorf("failed to delete %s of dataset %s: %w", step.name, datasetID, err)
			}
		}
		return nil
	})
}

func (r *DatasetRepositoryImpl) applyFilter(db *gorm.DB, f models.DatasetFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.TenantID != nil {
		db = db.Where("tenant_id = ?", *f.TenantID)
	}
	if f.Name != nil {
		db = db.Where("name = ?", *f.Name)
	}
	if f.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		db = db.Where("created_at < ?", *f.CreatedBefore)
	}
	return db
}

func (r *DatasetRepositoryImpl) ByFilter(ctx context.Context, filter models.DatasetFilter, orderBy string, limit, offset int) ([]*models.Dataset, error) {
	db := r.getDB(ctx)
	query := paginate(r.applyFilter(db.Model(&models.Dataset{}), filter), orderBy, limit, offset)
	var rows []*models.Dataset
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *DatasetRepositoryImpl) Count(ctx context.Context, filter models.DatasetFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	if err := r.applyFilter(db.Model(&models.Dataset{}), filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *DatasetRepositoryImpl) Exists(ctx context.Context, filter models.DatasetFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
