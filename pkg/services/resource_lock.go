package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ingest/pkg/models"
	"github.com/ekaya-inc/ekaya-ingest/pkg/repositories"
)

// ForceUnlockReason is recorded on jobs failed by an operator unlock.
const ForceUnlockReason = "force-unlocked"

// ResourceLockService provides cross-process mutual exclusion over (resource id, type) pairs.
// Lock state lives in the database, so it holds across every running instance.
type ResourceLockService interface {
	// Acquire returns true iff the caller now holds the lock.
	Acquire(ctx context.Context, resourceID uuid.UUID, resourceType models.ResourceType) (bool, error)

	// Release unlocks unconditionally. Returns apperrors.ErrLockNotFound if
	// the lock was never created.
	Release(ctx context.Context, resourceID uuid.UUID, resourceType models.ResourceType) error

	// ForceUnlock is the operator recovery path for a lock stranded by a crashed worker.
	// For data sources it also fails any job left IN_PROGRESS. A job still running
	// in this process must be stopped first with IngestionService.CancelDataSource,
	// otherwise its own release would later clear a newer holder's lock.
	ForceUnlock(ctx context.Context, resourceID uuid.UUID, resourceType models.ResourceType) (*ForceUnlockResult, error)
}

// ForceUnlockResult reports what a forced unlock changed.
// JobsCancelled counts jobs of this process that were stopped before the unlock.
type ForceUnlockResult struct {
	JobsCancelled int   `json:"jobs_cancelled"`
	WasLocked     bool  `json:"was_locked"`
	JobsFailed    int64 `json:"jobs_failed"`
}

type resourceLockService struct {
	lockRepo repositories.ResourceLockRepository
	jobRepo  repositories.IngestionJobRepository
	logger   *zap.Logger
}

// NewResourceLockService creates the lock service.
func NewResourceLockService(
	lockRepo repositories.ResourceLockRepository,
	jobRepo repositories.IngestionJobRepository,
	logger *zap.Logger,
) ResourceLockService {
	return &resourceLockService{
		lockRepo: lockRepo,
		jobRepo:  jobRepo,
		logger:   logger.Named("resource-lock"),
	}
}

var _ ResourceLockService = (*resourceLockService)(nil)

// Acquire inserts the lock row if absent, then flips it with one conditional update.
// The two statements are separate; only the second decides ownership.
func (s *resourceLockService) Acquire(ctx context.Context, resourceID uuid.UUID, resourceType models.ResourceType) (bool, error) {
	if err := s.lockRepo.EnsureExists(ctx, resourceID, resourceType); err != nil {
		return false, fmt.Errorf("ensure lock row: %w", err)
	}

	acquired, err := s.lockRepo.TryLock(ctx, resourceID, resourceType)
	if err != nil {
		return false, fmt.Errorf("take lock: %w", err)
	}

	s.logger.Debug("Lock attempt",
		zap.String("resource_id", resourceID.String()),
		zap.String("resource_type", string(resourceType)),
		zap.Bool("acquired", acquired))
	return acquired, nil
}

func (s *resourceLockService) Release(ctx context.Context, resourceID uuid.UUID, resourceType models.ResourceType) error {
	if err := s.lockRepo.Unlock(ctx, resourceID, resourceType); err != nil {
		s.logger.Error("Failed to release lock",
			zap.String("resource_id", resourceID.String()),
			zap.String("resource_type", string(resourceType)),
			zap.Error(err))
		return fmt.Errorf("release lock %s/%s: %w", resourceType, resourceID, err)
	}
	return nil
}

func (s *resourceLockService) ForceUnlock(ctx context.Context, resourceID uuid.UUID, resourceType models.ResourceType) (*ForceUnlockResult, error) {
	lock, err := s.lockRepo.Get(ctx, resourceID, resourceType)
	if err != nil {
		return nil, fmt.Errorf("get lock %s/%s: %w", resourceType, resourceID, err)
	}

	result := &ForceUnlockResult{WasLocked: lock.Locked}

	if resourceType == models.ResourceTypeDataSource {
		failed, err := s.jobRepo.FailInProgress(ctx, resourceID, ForceUnlockReason)
		if err != nil {
			return nil, fmt.Errorf("fail in-progress jobs: %w", err)
		}
		result.JobsFailed = failed
	}

	if err := s.Release(ctx, resourceID, resourceType); err != nil {
		return nil, err
	}

	s.logger.Warn("Lock force-unlocked",
		zap.String("resource_id", resourceID.String()),
		zap.String("resource_type", string(resourceType)),
		zap.Bool("was_locked", result.WasLocked),
		zap.Int64("jobs_failed", result.JobsFailed))
	return result, nil
}
