package businessflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/amirphl/trackrelay/models"
	"github.com/amirphl/trackrelay/repository"
	"github.com/google/uuid"
)

// memoryStore keeps datasets, sources, events and deliveries in memory
// and enforces the (dataset_id, event_id) uniqueness of the events table
type memoryStore struct {
	mu         sync.Mutex
	datasets   map[uuid.UUID]*models.Dataset
	sources    map[uuid.UUID]*models.Source
	events     []*models.Event
	deliveries map[uuid.UUID]*models.Delivery

	createEventErr    error
	beforeCreateEvent func()
	createDeliveryErr error
	datasetErr        error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		datasets:   make(map[uuid.UUID]*models.Dataset),
		sources:    make(map[uuid.UUID]*models.Source),
		deliveries: make(map[uuid.UUID]*models.Delivery),
	}
}

func (s *memoryStore) addDataset(tenantID string, destinations ...models.Destination) *models.Dataset {
	s.mu.Lock()
	defer s.mu.Unlock()
	ds := &models.Dataset{ID: uuid.New(), TenantID: tenantID, Name: "Storefront"}
	for i := range destinations {
		if destinations[i].ID == uuid.Nil {
			destinations[i].ID = uuid.New()
		}
		destinations[i].DatasetID = ds.ID
	}
	ds.Destinations = destinations
	s.datasets[ds.ID] = ds
	return ds
}

func (s *memoryStore) addSource(source models.Source) *models.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	if source.ID == uuid.Nil {
		source.ID = uuid.New()
	}
	s.sources[source.ID] = &source
	return &source
}

func (s *memoryStore) DatasetWithDestinations(_ context.Context, datasetID uuid.UUID) (*models.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.datasetErr != nil {
		return nil, s.datasetErr
	}
	ds, ok := s.datasets[datasetID]
	if !ok {
		return nil, nil
	}
	clone := *ds
	return &clone, nil
}

func (s *memoryStore) ByID(ctx context.Context, id uuid.UUID) (*models.Dataset, error) {
	return s.DatasetWithDestinations(ctx, id)
}

func (s *memoryStore) ListPendingPixelSources(_ context.Context, datasetID uuid.UUID) ([]*models.Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Source
	for _, src := range s.sources {
		if src.DatasetID == datasetID && src.Kind == models.SourceKindPixelScript && src.Status == models.SourceStatusPending {
			out = append(out, src)
		}
	}
	return out, nil
}

func (s *memoryStore) MarkSourceActive(_ context.Context, sourceID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[sourceID]
	if !ok {
		return errors.New("source not found")
	}
	src.Status = models.SourceStatusActive
	return nil
}

func (s *memoryStore) source(id uuid.UUID) *models.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sources[id]
}

func (s *memoryStore) CreateEvent(_ context.Context, event *models.Event) error {
	if s.beforeCreateEvent != nil {
		s.beforeCreateEvent()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createEventErr != nil {
		return s.createEventErr
	}
	for _, e := range s.events {
		if e.DatasetID == event.DatasetID && e.EventID == event.EventID {
			return repository.ErrDuplicateEvent
		}
	}
	s.events = append(s.events, event)
	return nil
}

func (s *memoryStore) ListEventsInWindow(_ context.Context, datasetID uuid.UUID, since time.Time) ([]*models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Event
	for _, e := range s.events {
		if e.DatasetID == datasetID && !e.CreatedAt.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memoryStore) storedEvents() []*models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.Event(nil), s.events...)
}

func (s *memoryStore) CreatePendingDelivery(_ context.Context, event *models.Event, destination *models.Destination) (*models.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createDeliveryErr != nil {
		return nil, s.createDeliveryErr
	}
	row := &models.Delivery{
		ID:            uuid.New(),
		EventID:       event.ID,
		DestinationID: destination.ID,
		DatasetID:     event.DatasetID,
		Platform:      destination.Platform,
		Status:        models.DeliveryStatusPending,
		CreatedAt:     time.Now().UTC(),
	}
	s.deliveries[row.ID] = row
	return row, nil
}

func (s *memoryStore) UpdateDeliveryResult(_ context.Context, deliveryID uuid.UUID, status string, code int, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.deliveries[deliveryID]
	if !ok || row.Status != models.DeliveryStatusPending {
		return repository.ErrDeliveryNotPending
	}
	now := time.Now().UTC()
	row.Status = status
	row.ResponseCode = &code
	row.ResponseBody = &body
	row.CompletedAt = &now
	return nil
}

func (s *memoryStore) CountByStatusSince(_ context.Context, datasetID uuid.UUID, since time.Time) (models.DeliveryStatusCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var counts models.DeliveryStatusCounts
	for _, d := range s.deliveries {
		if d.DatasetID != datasetID || d.CreatedAt.Before(since) {
			continue
		}
		switch d.Status {
		case models.DeliveryStatusSuccess:
			counts.Success++
		case models.DeliveryStatusFailed:
			counts.Failed++
		default:
			counts.Pending++
		}
	}
	return counts, nil
}

func (s *memoryStore) deliveriesFor(destinationID uuid.UUID) []models.Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Delivery
	for _, d := range s.deliveries {
		if d.DestinationID == destinationID {
			out = append(out, *d)
		}
	}
	return out
}

// sourceLookup adapts memoryStore to SourceLookup
type sourceLookup struct{ store *memoryStore }

func (l sourceLookup) ByID(_ context.Context, id uuid.UUID) (*models.Source, error) {
	return l.store.source(id), nil
}

// memoryGuard is a DedupGuard backed by a set
type memoryGuard struct {
	mu       sync.Mutex
	seen     map[string]bool
	released int
}

func newMemoryGuard() *memoryGuard { return &memoryGuard{seen: make(map[string]bool)} }

func (g *memoryGuard) held(datasetID uuid.UUID, eventID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seen[datasetID.String()+":"+eventID]
}

func (g *memoryGuard) Acquire(_ context.Context, datasetID uuid.UUID, eventID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := datasetID.String() + ":" + eventID
	if g.seen[key] {
		return false, nil
	}
	g.seen[key] = true
	return true, nil
}

func (g *memoryGuard) Release(ctx context.Context, datasetID uuid.UUID, eventID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, datasetID.String()+":"+eventID)
	g.released++
	return nil
}
