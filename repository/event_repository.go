package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/amirphl/trackrelay/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EventRepositoryImpl implements EventRepository
type EventRepositoryImpl struct {
	*BaseRepository[models.Event, models.EventFilter]
}

func NewEventRepository(db *gorm.DB) EventRepository {
	return &EventRepositoryImpl{BaseRepository: NewBaseRepository[models.Event, models.EventFilter](db)}
}

// CreateEvent inserts the event once per (dataset_id, event_id).
// A second insert with the same key writes nothing and returns ErrDuplicateEvent.
func (r *EventRepositoryImpl) CreateEvent(ctx context.Context, event *models.Event) error {
	db := r.getDB(ctx)
	res := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "dataset_id"}, {Name: "event_id"}},
		DoNothing: true,
	}).Create(event)
	if res.Error != nil {
		return fmt.Errorf("failed to create event: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrDuplicateEvent
	}
	return nil
}

// ListEventsInWindow returns the events of a dataset created at or after since
func (r *EventRepositoryImpl) ListEventsInWindow(ctx context.Context, datasetID uuid.UUID, since time.Time) ([]*models.Event, error) {
	return r.ByFilter(ctx, models.EventFilter{DatasetID: &datasetID, CreatedAfter: &since}, "created_at DESC", 0, 0)
}

func (r *EventRepositoryImpl) applyFilter(db *gorm.DB, f models.EventFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.DatasetID != nil {
		db = db.Where("dataset_id = ?", *f.DatasetID)
	}
	if f.EventID != nil {
		db = db.Where("event_id = ?", *f.EventID)
	}
	if f.EventName != nil {
		db = db.Where("event_name = ?", *f.EventName)
	}
	if f.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		db = db.Where("created_at < ?", *f.CreatedBefore)
	}
	return db
}

func (r *EventRepositoryImpl) ByFilter(ctx context.Context, filter models.EventFilter, orderBy string, limit, offset int) ([]*models.Event, error) {
	db := r.getDB(ctx)
	query := paginate(r.applyFilter(db.Model(&models.Event{}), filter), orderBy, limit, offset)
	var rows []*models.Event
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *EventRepositoryImpl) Count(ctx context.Context, filter models.EventFilter) (int64, error) {
	db := r.getDB(ctx)
	var count int64
	if err := r.applyFilter(db.Model(&models.Event{}), filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *EventRepositoryImpl) Exists(ctx context.Context, filter models.EventFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}
