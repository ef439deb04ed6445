package businessflow

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/amirphl/trackrelay/app/dto"
	"github.com/amirphl/trackrelay/models"
	"github.com/amirphl/trackrelay/repository"
	"github.com/amirphl/trackrelay/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// TrackingFlow ingests events and fans them out to the destinations of their dataset.
// Public flow, no authentication required.
type TrackingFlow interface {
	// ProcessEvent validates, persists and delivers one event. It only fails when the
	// event is invalid, the dataset is unknown or the event row could not be written;
	// delivery failures are recorded on delivery rows and never returned.
	ProcessEvent(ctx context.Context, datasetID string, req *dto.TrackEventRequest, metadata *ClientMetadata) error
	// AuthenticateWebhook checks a webhook call against its source and returns the dataset to ingest into
	AuthenticateWebhook(ctx context.Context, sourceID string, body []byte, signature string) (string, error)
}

// SourceLookup resolves a source by id
type SourceLookup interface {
	ByID(ctx context.Context, id uuid.UUID) (*models.Source, error)
}

type TrackingFlowImpl struct {
	datasets     DatasetStore
	events       EventStore
	sources      SourceLookup
	orchestrator DeliveryOrchestrator
	guard        DedupGuard
	logger       *zap.Logger
	now          func() time.Time
}

// NewTrackingFlow wires the pipeline. guard may be nil.
func NewTrackingFlow(
	datasets DatasetStore,
	events EventStore,
	sources SourceLookup,
	orchestrator DeliveryOrchestrator,
	guard DedupGuard,
	logger *zap.Logger,
) TrackingFlow {
	return &TrackingFlowImpl{
		datasets:     datasets,
		events:       events,
		sources:      sources,
		orchestrator: orchestrator,
		guard:        guard,
		logger:       logger.Named("tracking"),
		now:          utils.UTCNow,
	}
}

func (f *TrackingFlowImpl) ProcessEvent(ctx context.Context, datasetID string, req *dto.TrackEventRequest, metadata *ClientMetadata) error {
	if req == nil || strings.TrimSpace(req.EventName) == "" {
		eventsIngestedTotal.WithLabelValues(ingestOutcomeInvalid).Inc()
		return ErrInvalidEvent
	}

	dsID, err := uuid.Parse(datasetID)
	if err != nil {
		eventsIngestedTotal.WithLabelValues(ingestOutcomeUnknownSet).Inc()
		return ErrDatasetNotFound
	}
	dataset, err := f.datasets.DatasetWithDestinations(ctx, dsID)
	if err != nil {
		return NewBusinessError("DATASET_LOOKUP_FAILED", "Failed to load dataset", err)
	}
	if dataset == nil {
		eventsIngestedTotal.WithLabelValues(ingestOutcomeUnknownSet).Inc()
		return ErrDatasetNotFound
	}

	now := f.now()
	event := f.buildEvent(dataset.ID, req, metadata, now)
	logger := f.logger.With(
		zap.String("dataset_id", dataset.ID.String()),
		zap.String("event_id", event.EventID),
		zap.String("event_name", event.EventName),
	)

	if f.guard != nil {
		fresh, err := f.guard.Acquire(ctx, dataset.ID, event.EventID)
		if err != nil {
			logger.Warn("dedup guard unavailable, relying on the unique index", zap.Error(err))
		} else if !fresh {
			eventsIngestedTotal.WithLabelValues(ingestOutcomeDuplicate).Inc()
			logger.Debug("duplicate event dropped by dedup guard")
			return nil
		}
	}

	if err := f.events.CreateEvent(ctx, event); err != nil {
		if errors.Is(err, repository.ErrDuplicateEvent) {
			eventsIngestedTotal.WithLabelValues(ingestOutcomeDuplicate).Inc()
			logger.Debug("duplicate event dropped")
			return nil
		}
		f.releaseGuard(ctx, dataset.ID, event.EventID, logger)
		eventsIngestedTotal.WithLabelValues(ingestOutcomePersistFailed).Inc()
		logger.Error("failed to persist event, payload kept for manual replay",
			zap.Any("payload", req),
			zap.String("client_ip", event.ClientIP),
			zap.Error(err))
		return NewBusinessError("EVENT_PERSIST_FAILED", "Failed to persist event", fmt.Errorf("%w: %v", ErrPersistenceFailure, err))
	}
	eventsIngestedTotal.WithLabelValues(ingestOutcomePersisted).Inc()

	f.activatePixelSources(ctx, dataset.ID, logger)

	outcomes := f.orchestrator.FanOut(ctx, event, dataset.EnabledDestinations())
	failed := 0
	for _, o := range outcomes {
		if o.Status != models.DeliveryStatusSuccess {
			failed++
		}
	}
	logger.Info("event processed",
		zap.Int("deliveries", len(outcomes)),
		zap.Int("failed", failed))
	return nil
}

func (f *TrackingFlowImpl) buildEvent(datasetID uuid.UUID, req *dto.TrackEventRequest, metadata *ClientMetadata, now time.Time) *models.Event {
	data := req.EventData
	if data == nil {
		data = map[string]any{}
	}

	eventID := strings.TrimSpace(req.EventID)
	if eventID == "" {
		ts := float64(now.UnixNano()) / float64(time.Second)
		if req.Timestamp != nil {
			if s := utils.EpochSeconds(*req.Timestamp); s > 0 {
				ts = s
			}
		}
		eventID = CanonicalEventID(req.EventName, data, ts)
	}

	var userAgent, clientIP string
	if metadata != nil {
		userAgent = metadata.UserAgent
		clientIP = metadata.IPAddress
	}

	return &models.Event{
		ID:        uuid.New(),
		DatasetID: datasetID,
		EventID:   eventID,
		EventName: strings.TrimSpace(req.EventName),
		EventData: datatypes.JSONMap(data),
		URL:       req.URL,
		UserAgent: utils.FirstNonEmpty(req.UserAgent, userAgent),
		ClientIP:  utils.FirstNonEmpty(req.ClientIP, clientIP),
		Status:    models.EventStatusProcessed,
		CreatedAt: now,
	}
}

// activatePixelSources flips every pending pixel source of the dataset. Failures are logged only.
func (f *TrackingFlowImpl) activatePixelSources(ctx context.Context, datasetID uuid.UUID, logger *zap.Logger) {
	sources, err := f.datasets.ListPendingPixelSources(ctx, datasetID)
	if err != nil {
		logger.Warn("failed to list pending pixel sources", zap.Error(err))
		return
	}
	for _, source := range sources {
		if err := f.datasets.MarkSourceActive(ctx, source.ID); err != nil {
			logger.Warn("failed to activate pixel source",
				zap.String("source_id", source.ID.String()),
				zap.Error(err))
			continue
		}
		sourceActivationsTotal.Inc()
		logger.Info("pixel source activated", zap.String("source_id", source.ID.String()))
	}
}

func (f *TrackingFlowImpl) releaseGuard(ctx context.Context, datasetID uuid.UUID, eventID string, logger *zap.Logger) {
	if f.guard == nil {
		return
	}
	// the pipeline context may be the reason persistence failed
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := f.guard.Release(releaseCtx, datasetID, eventID); err != nil {
		logger.Warn("failed to release dedup guard", zap.Error(err))
	}
}

func (f *TrackingFlowImpl) AuthenticateWebhook(ctx context.Context, sourceID string, body []byte, signature string) (string, error) {
	id, err := uuid.Parse(sourceID)
	if err != nil {
		return "", ErrSourceNotFound
	}
	source, err := f.sources.ByID(ctx, id)
	if err != nil {
		return "", NewBusinessError("SOURCE_LOOKUP_FAILED", "Failed to load source", err)
	}
	if source == nil {
		return "", ErrSourceNotFound
	}
	if source.Kind != models.SourceKindWebhook {
		return "", ErrSourceNotWebhook
	}
	if !source.IsEnabled() {
		return "", ErrSourceDisabled
	}

	if secret := source.SigningSecret(); secret != "" && !validSignature(secret, body, signature) {
		return "", ErrInvalidSignature
	}
	return source.DatasetID.String(), nil
}

// validSignature checks a hex HMAC-SHA256 of body, with or without a "sha256=" prefix
func validSignature(secret string, body []byte, signature string) bool {
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	given, err := hex.DecodeString(signature)
	if err != nil || len(given) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(given, mac.Sum(nil))
}
