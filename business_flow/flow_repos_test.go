package businessflow

import (
	"context"
	"sort"

	"github.com/amirphl/trackrelay/models"
	"github.com/amirphl/trackrelay/repository"
	"github.com/google/uuid"
)

// The repository fakes below expose memoryStore through the repository interfaces
// used by the dashboard flows. Methods a flow never calls stay on the nil embedded interface.

type fakeDatasetRepo struct {
	repository.DatasetRepository
	store *memoryStore
}

func (r fakeDatasetRepo) ByID(ctx context.Context, id uuid.UUID) (*models.Dataset, error) {
	return r.store.DatasetWithDestinations(ctx, id)
}

func (r fakeDatasetRepo) Save(_ context.Context, dataset *models.Dataset) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.datasets[dataset.ID] = dataset
	return nil
}

func (r fakeDatasetRepo) ListByTenant(_ context.Context, tenantID string) ([]*models.Dataset, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []*models.Dataset
	for _, ds := range r.store.datasets {
		if ds.TenantID == tenantID {
			out = append(out, ds)
		}
	}
	return out, nil
}

func (r fakeDatasetRepo) DatasetWithRelations(_ context.Context, id uuid.UUID) (*models.Dataset, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	ds, ok := r.store.datasets[id]
	if !ok {
		return nil, nil
	}
	clone := *ds
	clone.Sources = nil
	for _, src := range r.store.sources {
		if src.DatasetID == id {
			clone.Sources = append(clone.Sources, *src)
		}
	}
	return &clone, nil
}

func (r fakeDatasetRepo) DeleteCascade(_ context.Context, id uuid.UUID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.datasets, id)
	for srcID, src := range r.store.sources {
		if src.DatasetID == id {
			delete(r.store.sources, srcID)
		}
	}
	return nil
}

type fakeSourceRepo struct {
	repository.SourceRepository
	store *memoryStore
}

func (r fakeSourceRepo) Save(_ context.Context, source *models.Source) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.sources[source.ID] = source
	return nil
}

// fakeDestinationRepo keeps destinations inside their dataset, the way memoryStore serves them to the pipeline
type fakeDestinationRepo struct {
	repository.DestinationRepository
	store *memoryStore
}

func (r fakeDestinationRepo) find(id uuid.UUID) *models.Destination {
	for _, ds := range r.store.datasets {
		for i := range ds.Destinations {
			if ds.Destinations[i].ID == id {
				return &ds.Destinations[i]
			}
		}
	}
	return nil
}

func (r fakeDestinationRepo) ByID(_ context.Context, id uuid.UUID) (*models.Destination, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	dest := r.find(id)
	if dest == nil {
		return nil, nil
	}
	clone := *dest
	return &clone, nil
}

func (r fakeDestinationRepo) Save(_ context.Context, destination *models.Destination) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if ds, ok := r.store.datasets[destination.DatasetID]; ok {
		ds.Destinations = append(ds.Destinations, *destination)
	}
	return nil
}

func (r fakeDestinationRepo) SetEnabled(_ context.Context, id uuid.UUID, enabled bool) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	dest := r.find(id)
	if dest == nil {
		return nil
	}
	dest.Enabled = &enabled
	dest.Status = models.DestinationStatusInactive
	if enabled {
		dest.Status = models.DestinationStatusActive
	}
	return nil
}

type fakeEventRepo struct {
	repository.EventRepository
	store *memoryStore
}

func (r fakeEventRepo) ByID(_ context.Context, id uuid.UUID) (*models.Event, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, e := range r.store.events {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, nil
}

type fakeDeliveryRepo struct {
	repository.DeliveryRepository
	store *memoryStore
}

func (r fakeDeliveryRepo) ByID(_ context.Context, id uuid.UUID) (*models.Delivery, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	row, ok := r.store.deliveries[id]
	if !ok {
		return nil, nil
	}
	clone := *row
	return &clone, nil
}

func (r fakeDeliveryRepo) matching(filter models.DeliveryFilter) []*models.Delivery {
	var out []*models.Delivery
	for _, d := range r.store.deliveries {
		if filter.DatasetID != nil && d.DatasetID != *filter.DatasetID {
			continue
		}
		if filter.Status != nil && d.Status != *filter.Status {
			continue
		}
		if filter.CreatedAfter != nil && d.CreatedAt.Before(*filter.CreatedAfter) {
			continue
		}
		clone := *d
		out = append(out, &clone)
	}
	return out
}

func (r fakeDeliveryRepo) Count(_ context.Context, filter models.DeliveryFilter) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return int64(len(r.matching(filter))), nil
}

func (r fakeDeliveryRepo) ByFilter(_ context.Context, filter models.DeliveryFilter, orderBy string, limit, offset int) ([]*models.Delivery, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	rows := r.matching(filter)
	sort.Slice(rows, func(i, j int) bool {
		if orderBy == "created_at ASC" {
			return rows[i].CreatedAt.Before(rows[j].CreatedAt)
		}
		return rows[i].CreatedAt.After(rows[j].CreatedAt)
	})
	if offset >= len(rows) {
		return nil, nil
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows, nil
}

func (r fakeDeliveryRepo) CreatePendingDelivery(ctx context.Context, event *models.Event, destination *models.Destination) (*models.Delivery, error) {
	return r.store.CreatePendingDelivery(ctx, event, destination)
}

func (r fakeDeliveryRepo) UpdateDeliveryResult(ctx context.Context, id uuid.UUID, status string, code int, body string) error {
	return r.store.UpdateDeliveryResult(ctx, id, status, code, body)
}

// addDelivery stores a settled delivery row for an event and destination
func (s *memoryStore) addDelivery(event *models.Event, destination models.Destination, status string, code int, body string) *models.Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	completed := event.CreatedAt
	row := &models.Delivery{
		ID:            uuid.New(),
		EventID:       event.ID,
		DestinationID: destination.ID,
		DatasetID:     event.DatasetID,
		Platform:      destination.Platform,
		Status:        status,
		ResponseCode:  &code,
		ResponseBody:  &body,
		CreatedAt:     event.CreatedAt,
		CompletedAt:   &completed,
	}
	s.deliveries[row.ID] = row
	return row
}

func (s *memoryStore) addEvent(event *models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}
