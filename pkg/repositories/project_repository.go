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

// ProjectRepository defines data access for projects.
type ProjectRepository interface {
	Create(ctx context.Context, project *models.Project) error
	Get(ctx context.Context, id uuid.UUID) (*models.Project, error)
}

type projectRepository struct{}

// NewProjectRepository creates a new project repository.
func NewProjectRepository() ProjectRepository {
	return &projectRepository{}
}

var _ ProjectRepository = (*projectRepository)(nil)

// Create inserts a project. A zero ID is replaced with a new UUID.
func (r *projectRepository) Create(ctx context.Context, project *models.Project) error {
	q, err := querier(ctx)
	if err != nil {
		return err
	}

	if project.ID == uuid.Nil {
		project.ID = uuid.New()
	}
	now := time.Now()
	project.CreatedAt = now
	project.UpdatedAt = now

	_, err = q.Exec(ctx, `
		INSERT INTO ingest_projects (id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4)`,
		project.ID, project.Name, project.CreatedAt, project.UpdatedAt)
	if err != nil {
		if isPgError(err, pgUniqueViolation) {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

// Get retrieves a project by ID.
func (r *projectRepository) Get(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	q, err := querier(ctx)
	if err != nil {
		return nil, err
	}

	var p models.Project
	err = q.QueryRow(ctx, `
		SELECT id, name, created_at, updated_at
		FROM ingest_projects
		WHERE id = $1`, id).Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &p, nil
}
