package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ingest/pkg/crypto"
	"github.com/ekaya-inc/ekaya-ingest/pkg/logging"
	"github.com/ekaya-inc/ekaya-ingest/pkg/models"
	"github.com/ekaya-inc/ekaya-ingest/pkg/repositories"
)

var errCredentialsKeyMissing = errors.New("credentials key not configured")

// CreateDataSourceInput carries the fields accepted when registering a data source.
type CreateDataSourceInput struct {
	Provider   string
	SourceType models.SourceType
	URL        string
	Token      string
	APIKey     string
	ProjectIDs []uuid.UUID
}

// DataSourceService defines the interface for data source operations.
type DataSourceService interface {
	// Create validates the URL against the provider, encrypts credentials and
	// subscribes the given projects.
	Create(ctx context.Context, in CreateDataSourceInput) (*models.DataSource, error)

	// Get retrieves a data source with decrypted credentials.
	Get(ctx context.Context, id uuid.UUID) (*models.DataSource, error)

	// Subscribe links a project to a data source. Idempotent.
	Subscribe(ctx context.Context, dataSourceID, projectID uuid.UUID) error

	ListProjectIDs(ctx context.Context, dataSourceID uuid.UUID) ([]uuid.UUID, error)
}

type dataSourceService struct {
	repo     repositories.DataSourceRepository
	cipher   *crypto.TokenCipher
	crawlers CrawlerFactory
	logger   *zap.Logger
}

// NewDataSourceService creates a new data source service with dependencies.
func NewDataSourceService(
	repo repositories.DataSourceRepository,
	cipher *crypto.TokenCipher,
	crawlers CrawlerFactory,
	logger *zap.Logger,
) DataSourceService {
	return &dataSourceService{
		repo:     repo,
		cipher:   cipher,
		crawlers: crawlers,
		logger:   logger,
	}
}

var _ DataSourceService = (*dataSourceService)(nil)

func (s *dataSourceService) Create(ctx context.Context, in CreateDataSourceInput) (*models.DataSource, error) {
	ds := &models.DataSource{
		ID:         uuid.New(),
		Provider:   strings.ToLower(strings.TrimSpace(in.Provider)),
		SourceType: in.SourceType,
		URL:        strings.TrimRight(strings.TrimSpace(in.URL), "/"),
		Token:      in.Token,
		APIKey:     in.APIKey,
	}
	if ds.SourceType == "" {
		ds.SourceType = models.SourceTypeCode
	}

	crawler, err := s.crawlers.NewCrawler(ds)
	if err != nil {
		return nil, err
	}
	if err := crawler.Validate(ds.URL); err != nil {
		return nil, err
	}

	// Credentials are bound to the data source id, so the id is fixed before sealing.
	encryptedToken, err := s.seal(ds.ID, in.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt token: %w", err)
	}
	encryptedAPIKey, err := s.seal(ds.ID, in.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt api key: %w", err)
	}

	if err := s.repo.Create(ctx, ds, encryptedToken, encryptedAPIKey, in.ProjectIDs); err != nil {
		return nil, err
	}

	s.logger.Info("Created data source",
		zap.String("id", ds.ID.String()),
		zap.String("provider", ds.Provider),
		zap.String("url", logging.SanitizeURL(ds.URL)),
		zap.Int("projects", len(in.ProjectIDs)),
		zap.Bool("has_credentials", ds.HasCredentials()))
	return ds, nil
}

func (s *dataSourceService) Get(ctx context.Context, id uuid.UUID) (*models.DataSource, error) {
	ds, encryptedToken, encryptedAPIKey, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if ds.Token, err = s.open(ds.ID, encryptedToken); err != nil {
		return nil, fmt.Errorf("failed to decrypt token: %w", err)
	}
	if ds.APIKey, err = s.open(ds.ID, encryptedAPIKey); err != nil {
		return nil, fmt.Errorf("failed to decrypt api key: %w", err)
	}
	return ds, nil
}

func (s *dataSourceService) Subscribe(ctx context.Context, dataSourceID, projectID uuid.UUID) error {
	if err := s.repo.Subscribe(ctx, projectID, dataSourceID); err != nil {
		return err
	}
	s.logger.Info("Project subscribed to data source",
		zap.String("data_source_id", dataSourceID.String()),
		zap.String("project_id", projectID.String()))
	return nil
}

func (s *dataSourceService) ListProjectIDs(ctx context.Context, dataSourceID uuid.UUID) ([]uuid.UUID, error) {
	return s.repo.ListProjectIDs(ctx, dataSourceID)
}

func (s *dataSourceService) seal(id uuid.UUID, secret string) (string, error) {
	if secret == "" {
		return "", nil
	}
	if s.cipher == nil {
		return "", errCredentialsKeyMissing
	}
	return s.cipher.Seal(id, secret)
}

func (s *dataSourceService) open(id uuid.UUID, sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	if s.cipher == nil {
		return "", errCredentialsKeyMissing
	}
	return s.cipher.Open(id, sealed)
}
