package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ingest/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-ingest/pkg/crypto"
	"github.com/ekaya-inc/ekaya-ingest/pkg/models"
)

type mockDataSourceRepository struct {
	createFunc         func(ctx context.Context, ds *models.DataSource, encryptedToken, encryptedAPIKey string, projectIDs []uuid.UUID) error
	getByIDFunc        func(ctx context.Context, id uuid.UUID) (*models.DataSource, string, string, error)
	subscribeFunc      func(ctx context.Context, projectID, dataSourceID uuid.UUID) error
	listProjectIDsFunc func(ctx context.Context, dataSourceID uuid.UUID) ([]uuid.UUID, error)
}

func (m *mockDataSourceRepository) Create(ctx context.Context, ds *models.DataSource, encryptedToken, encryptedAPIKey string, projectIDs []uuid.UUID) error {
	return m.createFunc(ctx, ds, encryptedToken, encryptedAPIKey, projectIDs)
}

func (m *mockDataSourceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.DataSource, string, string, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockDataSourceRepository) Subscribe(ctx context.Context, projectID, dataSourceID uuid.UUID) error {
	return m.subscribeFunc(ctx, projectID, dataSourceID)
}

func (m *mockDataSourceRepository) ListProjectIDs(ctx context.Context, dataSourceID uuid.UUID) ([]uuid.UUID, error) {
	return m.listProjectIDsFunc(ctx, dataSourceID)
}

func newTestCipher(t *testing.T) *crypto.TokenCipher {
	t.Helper()
	c, err := crypto.NewTokenCipher("test-credentials-key")
	require.NoError(t, err)
	return c
}

func TestDataSourceService_CreateSealsTokenAndRoundTrips(t *testing.T) {
	cipher := newTestCipher(t)
	var storedDS models.DataSource
	var storedToken string
	var storedProjects []uuid.UUID

	repo := &mockDataSourceRepository{
		createFunc: func(_ context.Context, ds *models.DataSource, encryptedToken, encryptedAPIKey string, projectIDs []uuid.UUID) error {
			storedDS = *ds
			storedToken = encryptedToken
			storedProjects = projectIDs
			assert.Empty(t, encryptedAPIKey)
			return nil
		},
		getByIDFunc: func(_ context.Context, id uuid.UUID) (*models.DataSource, string, string, error) {
			c := storedDS
			return &c, storedToken, "", nil
		},
	}
	svc := NewDataSourceService(repo, cipher, &fakeCrawlerFactory{crawler: &fakeCrawler{}}, zap.NewNop())

	projectID := uuid.New()
	ds, err := svc.Create(context.Background(), CreateDataSourceInput{
		Provider:   " GitHub ",
		URL:        "https://github.com/acme/repo/",
		Token:      "ghp_secret",
		ProjectIDs: []uuid.UUID{projectID},
	})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, ds.ID)
	assert.Equal(t, "github", ds.Provider)
	assert.Equal(t, "https://github.com/acme/repo", ds.URL)
	assert.Equal(t, models.SourceTypeCode, ds.SourceType)
	assert.Equal(t, []uuid.UUID{projectID}, storedProjects)
	assert.NotEmpty(t, storedToken)
	assert.NotContains(t, storedToken, "ghp_secret")

	got, err := svc.Get(context.Background(), ds.ID)
	require.NoError(t, err)
	assert.Equal(t, "ghp_secret", got.Token)
}

func TestDataSourceService_CreateRejectsInvalidURL(t *testing.T) {
	repo := &mockDataSourceRepository{
		createFunc: func(context.Context, *models.DataSource, string, string, []uuid.UUID) error {
			t.Fatal("must not persist an invalid data source")
			return nil
		},
	}
	svc := NewDataSourceService(repo, newTestCipher(t), &fakeCrawlerFactory{crawler: &fakeCrawler{}}, zap.NewNop())

	_, err := svc.Create(context.Background(), CreateDataSourceInput{Provider: "github", URL: "https://gitlab.com/acme/repo"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidSourceURL)
}

func TestDataSourceService_CreateRejectsUnknownProvider(t *testing.T) {
	svc := NewDataSourceService(&mockDataSourceRepository{}, newTestCipher(t),
		&fakeCrawlerFactory{err: apperrors.ErrUnknownProvider}, zap.NewNop())

	_, err := svc.Create(context.Background(), CreateDataSourceInput{Provider: "bitbucket", URL: "https://bitbucket.org/a/b"})
	assert.ErrorIs(t, err, apperrors.ErrUnknownProvider)
}

func TestDataSourceService_TokenRequiresCipher(t *testing.T) {
	svc := NewDataSourceService(&mockDataSourceRepository{}, nil, &fakeCrawlerFactory{crawler: &fakeCrawler{}}, zap.NewNop())

	_, err := svc.Create(context.Background(), CreateDataSourceInput{
		Provider: "github",
		URL:      "https://github.com/acme/repo",
		Token:    "ghp_secret",
	})
	assert.ErrorIs(t, err, errCredentialsKeyMissing)
}

func TestDataSourceService_GetRejectsTokenSealedForAnotherSource(t *testing.T) {
	cipher := newTestCipher(t)
	sealed, err := cipher.Seal(uuid.New(), "ghp_secret")
	require.NoError(t, err)

	repo := &mockDataSourceRepository{
		getByIDFunc: func(_ context.Context, id uuid.UUID) (*models.DataSource, string, string, error) {
			return &models.DataSource{ID: id}, sealed, "", nil
		},
	}
	svc := NewDataSourceService(repo, cipher, &fakeCrawlerFactory{}, zap.NewNop())

	_, err = svc.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, crypto.ErrDecryptionFailed)
}
