package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ingest/pkg/models"
	"github.com/ekaya-inc/ekaya-ingest/pkg/repositories"
)

// JobLedger records the lifecycle of ingestion jobs.
// A job is created IN_PROGRESS and finalized exactly once.
type JobLedger interface {
	Create(ctx context.Context, dataSourceID uuid.UUID, projectID *uuid.UUID) (*models.IngestionJob, error)
	MarkSucceeded(ctx context.Context, job *models.IngestionJob) error
	MarkFailed(ctx context.Context, job *models.IngestionJob, reason string) error
	Get(ctx context.Context, jobID uuid.UUID) (*models.IngestionJob, error)
	ListByDataSource(ctx context.Context, dataSourceID uuid.UUID, limit int) ([]*models.IngestionJob, error)
}

type jobLedger struct {
	jobRepo repositories.IngestionJobRepository
	now     func() time.Time
	logger  *zap.Logger
}

// NewJobLedger creates a ledger backed by the ingestion job repository.
func NewJobLedger(jobRepo repositories.IngestionJobRepository, logger *zap.Logger) JobLedger {
	return &jobLedger{
		jobRepo: jobRepo,
		now:     time.Now,
		logger:  logger.Named("job-ledger"),
	}
}

var _ JobLedger = (*jobLedger)(nil)

func (l *jobLedger) Create(ctx context.Context, dataSourceID uuid.UUID, projectID *uuid.UUID) (*models.IngestionJob, error) {
	job := &models.IngestionJob{
		ID:           uuid.New(),
		DataSourceID: dataSourceID,
		ProjectID:    projectID,
		Status:       models.IngestionJobStatusInProgress,
		StartTime:    l.now().UTC(),
	}
	if err := l.jobRepo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create ingestion job: %w", err)
	}
	return job, nil
}

func (l *jobLedger) MarkSucceeded(ctx context.Context, job *models.IngestionJob) error {
	return l.finalize(ctx, job, models.IngestionJobStatusSuccess, nil)
}

func (l *jobLedger) MarkFailed(ctx context.Context, job *models.IngestionJob, reason string) error {
	return l.finalize(ctx, job, models.IngestionJobStatusFailed, &reason)
}

func (l *jobLedger) finalize(ctx context.Context, job *models.IngestionJob, status models.IngestionJobStatus, reason *string) error {
	if job.Status.IsTerminal() {
		return fmt.Errorf("job %s already %s", job.ID, job.Status)
	}

	end, elapsed := job.Finish(l.now().UTC())
	next := *job
	next.Status = status
	next.EndTime = &end
	next.Duration = &elapsed
	next.ErrorMessage = reason

	if err := l.jobRepo.Finalize(ctx, &next); err != nil {
		return fmt.Errorf("finalize job %s as %s: %w", job.ID, status, err)
	}
	*job = next

	l.logger.Info("Ingestion job finished",
		zap.String("job_id", job.ID.String()),
		zap.String("data_source_id", job.DataSourceID.String()),
		zap.String("status", string(status)),
		zap.Duration("duration", elapsed))
	return nil
}

func (l *jobLedger) Get(ctx context.Context, jobID uuid.UUID) (*models.IngestionJob, error) {
	return l.jobRepo.Get(ctx, jobID)
}

func (l *jobLedger) ListByDataSource(ctx context.Context, dataSourceID uuid.UUID, limit int) ([]*models.IngestionJob, error) {
	return l.jobRepo.ListByDataSource(ctx, dataSourceID, limit)
}
