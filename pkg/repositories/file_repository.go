package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-ingest/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-ingest/pkg/models"
)

// FileRepository defines data access for content-addressed file records.
type FileRepository interface {
	// GetByPath returns the live file at path within a data source.
	// Returns apperrors.ErrNotFound when there is none and
	// apperrors.ErrMultipleRecordsFound when the path is ambiguous.
	GetByPath(ctx context.Context, dataSourceID uuid.UUID, path string) (*models.File, error)

	// GetLatestByHash returns the most recently updated file with the given hash
	// in a data source, or apperrors.ErrNotFound.
	GetLatestByHash(ctx context.Context, dataSourceID uuid.UUID, hash string) (*models.File, error)

	Create(ctx context.Context, file *models.File) error

	// Update rewrites hash, size, path, name, extension and category.
	Update(ctx context.Context, file *models.File) error

	// StampLastSeen sets last_seen_job_id for every listed file.
	StampLastSeen(ctx context.Context, jobID uuid.UUID, fileIDs []uuid.UUID) (int64, error)

	// DeleteNotSeenBy removes every file of the data source whose last_seen_job_id
	// differs from jobID. Project links go with them.
	DeleteNotSeenBy(ctx context.Context, dataSourceID, jobID uuid.UUID) (int64, error)

	ListByDataSource(ctx context.Context, dataSourceID uuid.UUID) ([]*models.File, error)
}

type fileRepository struct{}

// NewFileRepository creates a new file repository.
func NewFileRepository() FileRepository {
	return &fileRepository{}
}

var _ FileRepository = (*fileRepository)(nil)

const fileColumns = `id, data_source_id, hash, size, path, name, extension, category, last_seen_job_id, created_at, updated_at`

func (r *fileRepository) GetByPath(ctx context.Context, dataSourceID uuid.UUID, path string) (*models.File, error) {
	q, err := querier(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `
		SELECT `+fileColumns+`
		FROM ingest_files
		WHERE data_source_id = $1 AND path = $2
		LIMIT 2`, dataSourceID, path)
	if err != nil {
		return nil, fmt.Errorf("failed to get file by path: %w", err)
	}

	files, err := pgx.CollectRows(rows, scanFile)
	if err != nil {
		return nil, fmt.Errorf("failed to scan file: %w", err)
	}

	switch len(files) {
	case 0:
		return nil, apperrors.ErrNotFound
	case 1:
		return files[0], nil
	default:
		return nil, fmt.Errorf("path %q: %w", path, apperrors.ErrMultipleRecordsFound)
	}
}

func (r *fileRepository) GetLatestByHash(ctx context.Context, dataSourceID uuid.UUID, hash string) (*models.File, error) {
	q, err := querier(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `
		SELECT `+fileColumns+`
		FROM ingest_files
		WHERE data_source_id = $1 AND hash = $2
		ORDER BY updated_at DESC, id
		LIMIT 1`, dataSourceID, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to get file by hash: %w", err)
	}

	file, err := pgx.CollectOneRow(rows, scanFile)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan file: %w", err)
	}
	return file, nil
}

func (r *fileRepository) Create(ctx context.Context, file *models.File) error {
	q, err := querier(ctx)
	if err != nil {
		return err
	}

	if file.ID == uuid.Nil {
		file.ID = uuid.New()
	}
	now := time.Now()
	file.CreatedAt = now
	file.UpdatedAt = now

	_, err = q.Exec(ctx, `
		INSERT INTO ingest_files
			(id, data_source_id, hash, size, path, name, extension, category, last_seen_job_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		file.ID, file.DataSourceID, file.Hash, file.Size, file.Path, file.Name,
		file.Extension, file.Category, file.LastSeenJobID, file.CreatedAt, file.UpdatedAt)
	if err != nil {
		if isPgError(err, pgUniqueViolation) {
			return fmt.Errorf("file %q: %w", file.Path, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to create file: %w", err)
	}
	return nil
}

func (r *fileRepository) Update(ctx context.Context, file *models.File) error {
	q, err := querier(ctx)
	if err != nil {
		return err
	}

	file.UpdatedAt = time.Now()
	tag, err := q.Exec(ctx, `
		UPDATE ingest_files
		SET hash = $2, size = $3, path = $4, name = $5, extension = $6, category = $7, updated_at = $8
		WHERE id = $1`,
		file.ID, file.Hash, file.Size, file.Path, file.Name, file.Extension, file.Category, file.UpdatedAt)
	if err != nil {
		if isPgError(err, pgUniqueViolation) {
			return fmt.Errorf("file %q: %w", file.Path, apperrors.ErrConflict)
		}
		return fmt.Errorf("failed to update file: %w", err)
	}

	switch tag.RowsAffected() {
	case 0:
		return apperrors.ErrNotFound
	case 1:
		return nil
	default:
		return fmt.Errorf("file %s: %w", file.ID, apperrors.ErrMultipleRecordsFound)
	}
}

func (r *fileRepository) StampLastSeen(ctx context.Context, jobID uuid.UUID, fileIDs []uuid.UUID) (int64, error) {
	if len(fileIDs) == 0 {
		return 0, nil
	}

	q, err := querier(ctx)
	if err != nil {
		return 0, err
	}

	tag, err := q.Exec(ctx, `
		UPDATE ingest_files
		SET last_seen_job_id = $1
		WHERE id = ANY($2)`, jobID, fileIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to stamp last seen job: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *fileRepository) DeleteNotSeenBy(ctx context.Context, dataSourceID, jobID uuid.UUID) (int64, error) {
	q, err := querier(ctx)
	if err != nil {
		return 0, err
	}

	tag, err := q.Exec(ctx, `
		DELETE FROM ingest_files
		WHERE data_source_id = $1
		  AND last_seen_job_id IS DISTINCT FROM $2`, dataSourceID, jobID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale files: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *fileRepository) ListByDataSource(ctx context.Context, dataSourceID uuid.UUID) ([]*models.File, error) {
	q, err := querier(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `
		SELECT `+fileColumns+`
		FROM ingest_files
		WHERE data_source_id = $1
		ORDER BY path`, dataSourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	files, err := pgx.CollectRows(rows, scanFile)
	if err != nil {
		return nil, fmt.Errorf("failed to scan files: %w", err)
	}
	return files, nil
}

func scanFile(row pgx.CollectableRow) (*models.File, error) {
	var f models.File
	err := row.Scan(
		&f.ID,
		&f.DataSourceID,
		&f.Hash,
		&f.Size,
		&f.Path,
		&f.Name,
		&f.Extension,
		&f.Category,
		&f.LastSeenJobID,
		&f.CreatedAt,
		&f.UpdatedAt,
	)
	return &f, err
}
