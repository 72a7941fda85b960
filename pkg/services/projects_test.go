package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ingest/pkg/models"
)

type mockProjectRepository struct {
	created []*models.Project
}

func (m *mockProjectRepository) Create(_ context.Context, project *models.Project) error {
	project.ID = uuid.New()
	m.created = append(m.created, project)
	return nil
}

func (m *mockProjectRepository) Get(_ context.Context, id uuid.UUID) (*models.Project, error) {
	return &models.Project{ID: id}, nil
}

func TestProjectService_Create(t *testing.T) {
	repo := &mockProjectRepository{}
	svc := NewProjectService(repo, zap.NewNop())

	project, err := svc.Create(context.Background(), "  docs  ")
	require.NoError(t, err)
	assert.Equal(t, "docs", project.Name)
	assert.Len(t, repo.created, 1)

	_, err = svc.Create(context.Background(), "   ")
	assert.Error(t, err)
	assert.Len(t, repo.created, 1)
}
