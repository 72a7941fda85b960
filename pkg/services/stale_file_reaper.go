package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ingest/pkg/repositories"
)

// StaleFileReaper deletes file records a finished crawl did not see.
type StaleFileReaper interface {
	// Sweep removes every file of the data source whose last_seen_job_id is not jobID.
	// Running it again with the same job id deletes nothing.
	Sweep(ctx context.Context, dataSourceID, jobID uuid.UUID) (int64, error)
}

type staleFileReaper struct {
	fileRepo repositories.FileRepository
	logger   *zap.Logger
}

// NewStaleFileReaper creates a reaper backed by the file repository.
func NewStaleFileReaper(fileRepo repositories.FileRepository, logger *zap.Logger) StaleFileReaper {
	return &staleFileReaper{
		fileRepo: fileRepo,
		logger:   logger.Named("reaper"),
	}
}

var _ StaleFileReaper = (*staleFileReaper)(nil)

func (r *staleFileReaper) Sweep(ctx context.Context, dataSourceID, jobID uuid.UUID) (int64, error) {
	deleted, err := r.fileRepo.DeleteNotSeenBy(ctx, dataSourceID, jobID)
	if err != nil {
		return 0, fmt.Errorf("sweep stale files: %w", err)
	}

	if deleted > 0 {
		r.logger.Info("Removed stale files",
			zap.String("data_source_id", dataSourceID.String()),
			zap.String("job_id", jobID.String()),
			zap.Int64("deleted", deleted))
	}
	return deleted, nil
}
