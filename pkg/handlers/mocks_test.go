package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-ingest/pkg/models"
	"github.com/ekaya-inc/ekaya-ingest/pkg/services"
)

// noScope stands in for the database scope middleware.
func noScope(next http.HandlerFunc) http.HandlerFunc { return next }

type mockProjectService struct {
	createFunc func(ctx context.Context, name string) (*models.Project, error)
	getFunc    func(ctx context.Context, id uuid.UUID) (*models.Project, error)
}

func (m *mockProjectService) Create(ctx context.Context, name string) (*models.Project, error) {
	return m.createFunc(ctx, name)
}

func (m *mockProjectService) Get(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	return m.getFunc(ctx, id)
}

type mockDataSourceService struct {
	createFunc         func(ctx context.Context, in services.CreateDataSourceInput) (*models.DataSource, error)
	getFunc            func(ctx context.Context, id uuid.UUID) (*models.DataSource, error)
	subscribeFunc      func(ctx context.Context, dataSourceID, projectID uuid.UUID) error
	listProjectIDsFunc func(ctx context.Context, dataSourceID uuid.UUID) ([]uuid.UUID, error)
}

func (m *mockDataSourceService) Create(ctx context.Context, in services.CreateDataSourceInput) (*models.DataSource, error) {
	return m.createFunc(ctx, in)
}

func (m *mockDataSourceService) Get(ctx context.Context, id uuid.UUID) (*models.DataSource, error) {
	return m.getFunc(ctx, id)
}

func (m *mockDataSourceService) Subscribe(ctx context.Context, dataSourceID, projectID uuid.UUID) error {
	return m.subscribeFunc(ctx, dataSourceID, projectID)
}

func (m *mockDataSourceService) ListProjectIDs(ctx context.Context, dataSourceID uuid.UUID) ([]uuid.UUID, error) {
	return m.listProjectIDsFunc(ctx, dataSourceID)
}

type mockIngestionService struct {
	triggerFunc  func(ctx context.Context, dataSourceID uuid.UUID, projectID *uuid.UUID) (*models.IngestionJob, error)
	runFunc      func(ctx context.Context, dataSourceID uuid.UUID, projectID *uuid.UUID) (*services.IngestionResult, error)
	getJobFunc   func(ctx context.Context, jobID uuid.UUID) (*models.IngestionJob, error)
	listJobsFunc func(ctx context.Context, dataSourceID uuid.UUID, limit int) ([]*models.IngestionJob, error)
	cancelFunc   func(ctx context.Context, dataSourceID uuid.UUID) (int, error)
}

func (m *mockIngestionService) Trigger(ctx context.Context, dataSourceID uuid.UUID, projectID *uuid.UUID) (*models.IngestionJob, error) {
	return m.triggerFunc(ctx, dataSourceID, projectID)
}

func (m *mockIngestionService) Run(ctx context.Context, dataSourceID uuid.UUID, projectID *uuid.UUID) (*services.IngestionResult, error) {
	return m.runFunc(ctx, dataSourceID, projectID)
}

func (m *mockIngestionService) GetJob(ctx context.Context, jobID uuid.UUID) (*models.IngestionJob, error) {
	return m.getJobFunc(ctx, jobID)
}

func (m *mockIngestionService) ListJobs(ctx context.Context, dataSourceID uuid.UUID, limit int) ([]*models.IngestionJob, error) {
	return m.listJobsFunc(ctx, dataSourceID, limit)
}

func (m *mockIngestionService) CancelDataSource(ctx context.Context, dataSourceID uuid.UUID) (int, error) {
	if m.cancelFunc == nil {
		return 0, nil
	}
	return m.cancelFunc(ctx, dataSourceID)
}

func (m *mockIngestionService) Shutdown(context.Context) error { return nil }

type mockResourceLockService struct {
	forceUnlockFunc func(ctx context.Context, id uuid.UUID, t models.ResourceType) (*services.ForceUnlockResult, error)
}

func (m *mockResourceLockService) Acquire(context.Context, uuid.UUID, models.ResourceType) (bool, error) {
	return false, nil
}

func (m *mockResourceLockService) Release(context.Context, uuid.UUID, models.ResourceType) error {
	return nil
}

func (m *mockResourceLockService) ForceUnlock(ctx context.Context, id uuid.UUID, t models.ResourceType) (*services.ForceUnlockResult, error) {
	return m.forceUnlockFunc(ctx, id, t)
}
