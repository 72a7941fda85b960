package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ingest/pkg/models"
	"github.com/ekaya-inc/ekaya-ingest/pkg/repositories"
)

// ProjectService defines the interface for project operations.
type ProjectService interface {
	Create(ctx context.Context, name string) (*models.Project, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Project, error)
}

type projectService struct {
	repo   repositories.ProjectRepository
	logger *zap.Logger
}

// NewProjectService creates a new project service.
func NewProjectService(repo repositories.ProjectRepository, logger *zap.Logger) ProjectService {
	return &projectService{
		repo:   repo,
		logger: logger,
	}
}

var _ ProjectService = (*projectService)(nil)

func (s *projectService) Create(ctx context.Context, name string) (*models.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("project name is required")
	}

	project := &models.Project{Name: name}
	if err := s.repo.Create(ctx, project); err != nil {
		return nil, err
	}

	s.logger.Info("Created project",
		zap.String("id", project.ID.String()),
		zap.String("name", name))
	return project, nil
}

func (s *projectService) Get(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	return s.repo.Get(ctx, id)
}
