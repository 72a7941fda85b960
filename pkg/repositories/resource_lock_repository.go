package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-ingest/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-ingest/pkg/models"
)

// ResourceLockRepository persists mutual-exclusion rows keyed by (resource id, type).
type ResourceLockRepository interface {
	// EnsureExists inserts an unlocked row if none exists. Never touches an existing row.
	EnsureExists(ctx context.Context, resourceID uuid.UUID, resourceType models.ResourceType) error

	// TryLock flips locked from false to true in a single conditional UPDATE.
	// Returns true iff this call took the lock.
	TryLock(ctx context.Context, resourceID uuid.UUID, resourceType models.ResourceType) (bool, error)

	// Unlock sets locked=false unconditionally. Returns apperrors.ErrLockNotFound
	// when no row exists for the key.
	Unlock(ctx context.Context, resourceID uuid.UUID, resourceType models.ResourceType) error

	Get(ctx context.Context, resourceID uuid.UUID, resourceType models.ResourceType) (*models.ResourceLock, error)
}

type resourceLockRepository struct{}

// NewResourceLockRepository creates a new resource lock repository.
func NewResourceLockRepository() ResourceLockRepository {
	return &resourceLockRepository{}
}

var _ ResourceLockRepository = (*resourceLockRepository)(nil)

func (r *resourceLockRepository) EnsureExists(ctx context.Context, resourceID uuid.UUID, resourceType models.ResourceType) error {
	q, err := querier(ctx)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, `
		INSERT INTO ingest_resource_locks (resource_id, resource_type, locked)
		VALUES ($1, $2, false)
		ON CONFLICT (resource_id, resource_type) DO NOTHING`, resourceID, resourceType)
	if err != nil {
		return fmt.Errorf("failed to ensure lock row: %w", err)
	}
	return nil
}

func (r *resourceLockRepository) TryLock(ctx context.Context, resourceID uuid.UUID, resourceType models.ResourceType) (bool, error) {
	q, err := querier(ctx)
	if err != nil {
		return false, err
	}

	tag, err := q.Exec(ctx, `
		UPDATE ingest_resource_locks
		SET locked = true, updated_at = now()
		WHERE resource_id = $1 AND resource_type = $2 AND locked = false`, resourceID, resourceType)
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *resourceLockRepository) Unlock(ctx context.Context, resourceID uuid.UUID, resourceType models.ResourceType) error {
	q, err := querier(ctx)
	if err != nil {
		return err
	}

	tag, err := q.Exec(ctx, `
		UPDATE ingest_resource_locks
		SET locked = false, updated_at = now()
		WHERE resource_id = $1 AND resource_type = $2`, resourceID, resourceType)
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %s: %w", resourceType, resourceID, apperrors.ErrLockNotFound)
	}
	return nil
}

func (r *resourceLockRepository) Get(ctx context.Context, resourceID uuid.UUID, resourceType models.ResourceType) (*models.ResourceLock, error) {
	q, err := querier(ctx)
	if err != nil {
		return nil, err
	}

	var l models.ResourceLock
	err = q.QueryRow(ctx, `
		SELECT resource_id, resource_type, locked, updated_at
		FROM ingest_resource_locks
		WHERE resource_id = $1 AND resource_type = $2`, resourceID, resourceType).
		Scan(&l.ResourceID, &l.ResourceType, &l.Locked, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrLockNotFound
		}
		return nil, fmt.Errorf("failed to get lock: %w", err)
	}
	return &l, nil
}
