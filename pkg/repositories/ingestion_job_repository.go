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

// IngestionJobRepository defines data access for the ingestion job ledger.
type IngestionJobRepository interface {
	Create(ctx context.Context, job *models.IngestionJob) error

	// Finalize moves an IN_PROGRESS job to a terminal status.
	// Returns apperrors.ErrConflict if the job already finished and
	// apperrors.ErrNotFound if it does not exist.
	Finalize(ctx context.Context, job *models.IngestionJob) error

	Get(ctx context.Context, id uuid.UUID) (*models.IngestionJob, error)

	// ListByDataSource returns jobs newest first.
	ListByDataSource(ctx context.Context, dataSourceID uuid.UUID, limit int) ([]*models.IngestionJob, error)

	// FailInProgress finalizes every IN_PROGRESS job of a data source as FAILED.
	FailInProgress(ctx context.Context, dataSourceID uuid.UUID, reason string) (int64, error)
}

type ingestionJobRepository struct{}

// NewIngestionJobRepository creates a new ingestion job repository.
func NewIngestionJobRepository() IngestionJobRepository {
	return &ingestionJobRepository{}
}

var _ IngestionJobRepository = (*ingestionJobRepository)(nil)

const jobColumns = `id, data_source_id, project_id, status, start_time, end_time, duration_ms, error_message, created_at, updated_at`

func (r *ingestionJobRepository) Create(ctx context.Context, job *models.IngestionJob) error {
	q, err := querier(ctx)
	if err != nil {
		return err
	}

	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	now := time.Now()
	if job.StartTime.IsZero() {
		job.StartTime = now
	}
	job.Status = models.IngestionJobStatusInProgress
	job.CreatedAt = now
	job.UpdatedAt = now

	_, err = q.Exec(ctx, `
		INSERT INTO ingest_jobs (id, data_source_id, project_id, status, start_time, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		job.ID, job.DataSourceID, job.ProjectID, job.Status, job.StartTime, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isPgError(err, pgForeignKeyViolation) {
			return fmt.Errorf("data source %s: %w", job.DataSourceID, apperrors.ErrNotFound)
		}
		return fmt.Errorf("failed to create ingestion job: %w", err)
	}
	return nil
}

func (r *ingestionJobRepository) Finalize(ctx context.Context, job *models.IngestionJob) error {
	q, err := querier(ctx)
	if err != nil {
		return err
	}

	if !job.Status.IsTerminal() {
		return fmt.Errorf("cannot finalize job with status %s", job.Status)
	}
	if job.EndTime == nil || job.Duration == nil {
		return fmt.Errorf("cannot finalize job without end time and duration")
	}

	job.UpdatedAt = time.Now()
	tag, err := q.Exec(ctx, `
		UPDATE ingest_jobs
		SET status = $2, end_time = $3, duration_ms = $4, error_message = $5, updated_at = $6
		WHERE id = $1 AND status = 'IN_PROGRESS'`,
		job.ID, job.Status, *job.EndTime, job.Duration.Milliseconds(), job.ErrorMessage, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to finalize ingestion job: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	if _, err := r.Get(ctx, job.ID); err != nil {
		return err
	}
	return fmt.Errorf("job %s already finished: %w", job.ID, apperrors.ErrConflict)
}

func (r *ingestionJobRepository) Get(ctx context.Context, id uuid.UUID) (*models.IngestionJob, error) {
	q, err := querier(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `SELECT `+jobColumns+` FROM ingest_jobs WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get ingestion job: %w", err)
	}

	job, err := pgx.CollectOneRow(rows, scanJob)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan ingestion job: %w", err)
	}
	return job, nil
}

func (r *ingestionJobRepository) ListByDataSource(ctx context.Context, dataSourceID uuid.UUID, limit int) ([]*models.IngestionJob, error) {
	q, err := querier(ctx)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = 50
	}

	rows, err := q.Query(ctx, `
		SELECT `+jobColumns+`
		FROM ingest_jobs
		WHERE data_source_id = $1
		ORDER BY start_time DESC, id
		LIMIT $2`, dataSourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list ingestion jobs: %w", err)
	}

	jobs, err := pgx.CollectRows(rows, scanJob)
	if err != nil {
		return nil, fmt.Errorf("failed to scan ingestion jobs: %w", err)
	}
	return jobs, nil
}

func (r *ingestionJobRepository) FailInProgress(ctx context.Context, dataSourceID uuid.UUID, reason string) (int64, error) {
	q, err := querier(ctx)
	if err != nil {
		return 0, err
	}

	tag, err := q.Exec(ctx, `
		UPDATE ingest_jobs
		SET status = 'FAILED',
		    end_time = now(),
		    duration_ms = (EXTRACT(EPOCH FROM (now() - start_time)) * 1000)::BIGINT,
		    error_message = $2,
		    updated_at = now()
		WHERE data_source_id = $1 AND status = 'IN_PROGRESS'`, dataSourceID, reason)
	if err != nil {
		return 0, fmt.Errorf("failed to fail in-progress jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanJob(row pgx.CollectableRow) (*models.IngestionJob, error) {
	var j models.IngestionJob
	var durationMs *int64
	err := row.Scan(
		&j.ID,
		&j.DataSourceID,
		&j.ProjectID,
		&j.Status,
		&j.StartTime,
		&j.EndTime,
		&durationMs,
		&j.ErrorMessage,
		&j.CreatedAt,
		&j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if durationMs != nil {
		d := time.Duration(*durationMs) * time.Millisecond
		j.Duration = &d
	}
	return &j, nil
}
