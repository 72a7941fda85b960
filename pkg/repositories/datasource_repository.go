package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-ingest/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-ingest/pkg/database"
	"github.com/ekaya-inc/ekaya-ingest/pkg/models"
)

// DataSourceRepository defines data access for data sources and project subscriptions.
// Credentials are stored encrypted - encryption/decryption is handled by the service layer.
type DataSourceRepository interface {
	// Create inserts a new data source with its already-encrypted credentials and
	// subscribes projectIDs to it, all in one transaction.
	Create(ctx context.Context, ds *models.DataSource, encryptedToken, encryptedAPIKey string, projectIDs []uuid.UUID) error

	// GetByID returns the data source and its encrypted token and API key.
	GetByID(ctx context.Context, id uuid.UUID) (*models.DataSource, string, string, error)

	// Subscribe links a project to a data source. Subscribing twice is a no-op.
	Subscribe(ctx context.Context, projectID, dataSourceID uuid.UUID) error

	// ListProjectIDs returns the projects subscribed to a data source.
	ListProjectIDs(ctx context.Context, dataSourceID uuid.UUID) ([]uuid.UUID, error)
}

type dataSourceRepository struct{}

// NewDataSourceRepository creates a new data source repository.
func NewDataSourceRepository() DataSourceRepository {
	return &dataSourceRepository{}
}

var _ DataSourceRepository = (*dataSourceRepository)(nil)

func (r *dataSourceRepository) Create(ctx context.Context, ds *models.DataSource, encryptedToken, encryptedAPIKey string, projectIDs []uuid.UUID) error {
	if ds.ID == uuid.Nil {
		ds.ID = uuid.New()
	}
	if ds.SourceType == "" {
		ds.SourceType = models.SourceTypeCode
	}
	now := time.Now()
	ds.CreatedAt = now
	ds.UpdatedAt = now

	return database.WithTx(ctx, func(ctx context.Context) error {
		q, err := querier(ctx)
		if err != nil {
			return err
		}

		_, err = q.Exec(ctx, `
			INSERT INTO ingest_data_sources
				(id, provider, source_type, url, token_encrypted, api_key_encrypted, created_at, updated_at)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8)`,
			ds.ID, ds.Provider, ds.SourceType, ds.URL, encryptedToken, encryptedAPIKey, ds.CreatedAt, ds.UpdatedAt)
		if err != nil {
			if isPgError(err, pgUniqueViolation) {
				return apperrors.ErrConflict
			}
			return fmt.Errorf("failed to create data source: %w", err)
		}

		for _, projectID := range projectIDs {
			if err := r.Subscribe(ctx, projectID, ds.ID); err != nil {
				return fmt.Errorf("subscribe project %s: %w", projectID, err)
			}
		}
		return nil
	})
}

func (r *dataSourceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.DataSource, string, string, error) {
	q, err := querier(ctx)
	if err != nil {
		return nil, "", "", err
	}

	var ds models.DataSource
	var token, apiKey *string
	err = q.QueryRow(ctx, `
		SELECT id, provider, source_type, url, token_encrypted, api_key_encrypted, created_at, updated_at
		FROM ingest_data_sources
		WHERE id = $1`, id).Scan(
		&ds.ID,
		&ds.Provider,
		&ds.SourceType,
		&ds.URL,
		&token,
		&apiKey,
		&ds.CreatedAt,
		&ds.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", "", apperrors.ErrNotFound
		}
		return nil, "", "", fmt.Errorf("failed to get data source: %w", err)
	}

	return &ds, deref(token), deref(apiKey), nil
}

func (r *dataSourceRepository) Subscribe(ctx context.Context, projectID, dataSourceID uuid.UUID) error {
	q, err := querier(ctx)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, `
		INSERT INTO ingest_project_data_sources (project_id, data_source_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, projectID, dataSourceID)
	if err != nil {
		if isPgError(err, pgForeignKeyViolation) {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("failed to subscribe project: %w", err)
	}
	return nil
}

func (r *dataSourceRepository) ListProjectIDs(ctx context.Context, dataSourceID uuid.UUID) ([]uuid.UUID, error) {
	q, err := querier(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `
		SELECT project_id
		FROM ingest_project_data_sources
		WHERE data_source_id = $1
		ORDER BY created_at, project_id`, dataSourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribed projects: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("failed to scan subscribed projects: %w", err)
	}
	return ids, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
