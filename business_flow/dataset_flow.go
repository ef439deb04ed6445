package businessflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/amirphl/trackrelay/app/destinations"
	"github.com/amirphl/trackrelay/app/dto"
	"github.com/amirphl/trackrelay/models"
	"github.com/amirphl/trackrelay/repository"
	"github.com/amirphl/trackrelay/utils"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DatasetFlow manages datasets and their sources and destinations for one tenant
type DatasetFlow interface {
	CreateDataset(ctx context.Context, tenantID string, req *dto.CreateDatasetRequest) (*dto.DatasetResponse, error)
	ListDatasets(ctx context.Context, tenantID string) ([]dto.DatasetResponse, error)
	GetDataset(ctx context.Context, tenantID, datasetID string) (*dto.DatasetDetailResponse, error)
	DeleteDataset(ctx context.Context, tenantID, datasetID string) error
	ConnectIntegration(ctx context.Context, tenantID string, req *dto.ConnectIntegrationRequest) (*dto.DatasetDetailResponse, error)
	AddSource(ctx context.Context, tenantID, datasetID string, req *dto.CreateSourceRequest) (*dto.SourceResponse, error)
	AddDestination(ctx context.Context, tenantID, datasetID string, req *dto.CreateDestinationRequest) (*dto.DestinationResponse, error)
	SetDestinationEnabled(ctx context.Context, tenantID, destinationID string, enabled bool) (*dto.DestinationResponse, error)
}

type DatasetFlowImpl struct {
	datasetRepo     repository.DatasetRepository
	sourceRepo      repository.SourceRepository
	destinationRepo repository.DestinationRepository
	db              *gorm.DB
	webhookBaseURL  string
	logger          *zap.Logger
}

func NewDatasetFlow(
	datasetRepo repository.DatasetRepository,
	sourceRepo repository.SourceRepository,
	destinationRepo repository.DestinationRepository,
	db *gorm.DB,
	webhookBaseURL string,
	logger *zap.Logger,
) DatasetFlow {
	return &DatasetFlowImpl{
		datasetRepo:     datasetRepo,
		sourceRepo:      sourceRepo,
		destinationRepo: destinationRepo,
		db:              db,
		webhookBaseURL:  webhookBaseURL,
		logger:          logger.Named("datasets"),
	}
}

func (f *DatasetFlowImpl) CreateDataset(ctx context.Context, tenantID string, req *dto.CreateDatasetRequest) (*dto.DatasetResponse, error) {
	now := utils.UTCNow()
	dataset := &models.Dataset{
		ID:          uuid.New(),
		TenantID:    tenantID,
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := f.datasetRepo.Save(ctx, dataset); err != nil {
		return nil, NewBusinessError("CREATE_DATASET_FAILED", "Failed to create dataset", err)
	}
	resp := ToDatasetDTO(*dataset)
	return &resp, nil
}

func (f *DatasetFlowImpl) ListDatasets(ctx context.Context, tenantID string) ([]dto.DatasetResponse, error) {
	rows, err := f.datasetRepo.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, NewBusinessError("LIST_DATASETS_FAILED", "Failed to list datasets", err)
	}
	out := make([]dto.DatasetResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, ToDatasetDTO(*row))
	}
	return out, nil
}

func (f *DatasetFlowImpl) GetDataset(ctx context.Context, tenantID, datasetID string) (*dto.DatasetDetailResponse, error) {
	dataset, err := loadOwnedDataset(ctx, f.datasetRepo, tenantID, datasetID)
	if err != nil {
		return nil, err
	}
	full, err := f.datasetRepo.DatasetWithRelations(ctx, dataset.ID)
	if err != nil {
		return nil, NewBusinessError("DATASET_LOOKUP_FAILED", "Failed to load dataset", err)
	}
	if full == nil {
		return nil, ErrDatasetNotFound
	}
	resp := ToDatasetDetailDTO(*full, f.webhookBaseURL)
	return &resp, nil
}

func (f *DatasetFlowImpl) DeleteDataset(ctx context.Context, tenantID, datasetID string) error {
	dataset, err := loadOwnedDataset(ctx, f.datasetRepo, tenantID, datasetID)
	if err != nil {
		return err
	}
	if err := f.datasetRepo.DeleteCascade(ctx, dataset.ID); err != nil {
		return NewBusinessError("DELETE_DATASET_FAILED", "Failed to delete dataset", err)
	}
	f.logger.Info("dataset deleted",
		zap.String("dataset_id", dataset.ID.String()),
		zap.String("tenant_id", tenantID))
	return nil
}

// ConnectIntegration creates the dataset of a server-side integration together with its webhook source
func (f *DatasetFlowImpl) ConnectIntegration(ctx context.Context, tenantID string, req *dto.ConnectIntegrationRequest) (*dto.DatasetDetailResponse, error) {
	provider := strings.ToUpper(req.Provider)
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = providerDisplayName(provider)
	}

	now := utils.UTCNow()
	dataset := &models.Dataset{
		ID:          uuid.New(),
		TenantID:    tenantID,
		Name:        name,
		Description: fmt.Sprintf("Created when %s was connected", providerDisplayName(provider)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	source := &models.Source{
		ID:        uuid.New(),
		DatasetID: dataset.ID,
		Kind:      models.SourceKindWebhook,
		Name:      providerDisplayName(provider) + " webhook",
		Provider:  &provider,
		Config:    datatypes.JSONMap(nonNilMap(req.Config)),
		Enabled:   utils.ToPtr(true),
		Status:    models.SourceStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		if err := f.datasetRepo.Save(txCtx, dataset); err != nil {
			return err
		}
		return f.sourceRepo.Save(txCtx, source)
	})
	if err != nil {
		return nil, NewBusinessError("CONNECT_INTEGRATION_FAILED", "Failed to connect integration", err)
	}

	dataset.Sources = []models.Source{*source}
	resp := ToDatasetDetailDTO(*dataset, f.webhookBaseURL)
	return &resp, nil
}

func (f *DatasetFlowImpl) AddSource(ctx context.Context, tenantID, datasetID string, req *dto.CreateSourceRequest) (*dto.SourceResponse, error) {
	dataset, err := loadOwnedDataset(ctx, f.datasetRepo, tenantID, datasetID)
	if err != nil {
		return nil, err
	}

	// pixel sources prove themselves with their first event
	status := models.SourceStatusActive
	if req.Kind == models.SourceKindPixelScript {
		status = models.SourceStatusPending
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	now := utils.UTCNow()
	source := &models.Source{
		ID:        uuid.New(),
		DatasetID: dataset.ID,
		Kind:      req.Kind,
		Name:      strings.TrimSpace(req.Name),
		Provider:  req.Provider,
		Config:    datatypes.JSONMap(nonNilMap(req.Config)),
		Enabled:   &enabled,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := f.sourceRepo.Save(ctx, source); err != nil {
		return nil, NewBusinessError("CREATE_SOURCE_FAILED", "Failed to create source", err)
	}
	resp := ToSourceDTO(*source, f.webhookBaseURL)
	return &resp, nil
}

func (f *DatasetFlowImpl) AddDestination(ctx context.Context, tenantID, datasetID string, req *dto.CreateDestinationRequest) (*dto.DestinationResponse, error) {
	dataset, err := loadOwnedDataset(ctx, f.datasetRepo, tenantID, datasetID)
	if err != nil {
		return nil, err
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	// incomplete credentials can be parked on a disabled destination
	if enabled {
		if err := ValidateDestinationConfig(req.Platform, req.Config); err != nil {
			return nil, err
		}
	}

	status := models.DestinationStatusActive
	if !enabled {
		status = models.DestinationStatusInactive
	}
	now := utils.UTCNow()
	destination := &models.Destination{
		ID:        uuid.New(),
		DatasetID: dataset.ID,
		Platform:  req.Platform,
		Name:      strings.TrimSpace(req.Name),
		Config:    datatypes.JSONMap(nonNilMap(req.Config)),
		Enabled:   &enabled,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := f.destinationRepo.Save(ctx, destination); err != nil {
		return nil, NewBusinessError("CREATE_DESTINATION_FAILED", "Failed to create destination", err)
	}
	resp := ToDestinationDTO(*destination)
	return &resp, nil
}

func (f *DatasetFlowImpl) SetDestinationEnabled(ctx context.Context, tenantID, destinationID string, enabled bool) (*dto.DestinationResponse, error) {
	id, err := uuid.Parse(destinationID)
	if err != nil {
		return nil, ErrDestinationNotFound
	}
	destination, err := f.destinationRepo.ByID(ctx, id)
	if err != nil {
		return nil, NewBusinessError("DESTINATION_LOOKUP_FAILED", "Failed to load destination", err)
	}
	if destination == nil {
		return nil, ErrDestinationNotFound
	}
	if _, err := loadOwnedDataset(ctx, f.datasetRepo, tenantID, destination.DatasetID.String()); err != nil {
		return nil, err
	}
	if enabled {
		if err := ValidateDestinationConfig(destination.Platform, destination.Config); err != nil {
			return nil, err
		}
	}

	if err := f.destinationRepo.SetEnabled(ctx, id, enabled); err != nil {
		return nil, NewBusinessError("UPDATE_DESTINATION_FAILED", "Failed to update destination", err)
	}
	destination.Enabled = &enabled
	destination.Status = models.DestinationStatusInactive
	if enabled {
		destination.Status = models.DestinationStatusActive
	}
	resp := ToDestinationDTO(*destination)
	return &resp, nil
}

// ValidateDestinationConfig checks the credentials an enabled destination needs
func ValidateDestinationConfig(platform string, config map[string]any) error {
	var required []string
	switch platform {
	case models.PlatformMeta:
		required = []string{destinations.MetaConfigPixelID, destinations.MetaConfigAPIToken}
	case models.PlatformTikTok:
		required = []string{destinations.TikTokConfigPixelID, destinations.TikTokConfigAccessToken}
	case models.PlatformGoogleAds:
		return nil
	default:
		return ErrUnsupportedPlatform
	}

	var missing []string
	for _, key := range required {
		if models.ConfigString(config, key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return NewBusinessErrorf("INVALID_DESTINATION_CONFIG", "missing %s", ErrInvalidDestinationConfig, strings.Join(missing, ", "))
	}
	return nil
}

func providerDisplayName(provider string) string {
	switch provider {
	case models.SourceProviderStripe:
		return "Stripe"
	case models.SourceProviderShopify:
		return "Shopify"
	}
	return provider
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
