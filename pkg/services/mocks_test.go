package services

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-ingest/pkg/adapters/provider"
	"github.com/ekaya-inc/ekaya-ingest/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-ingest/pkg/config"
	"github.com/ekaya-inc/ekaya-ingest/pkg/models"
	"github.com/ekaya-inc/ekaya-ingest/pkg/repositories"
)

// fakeClock hands out strictly increasing timestamps.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// memFileRepo is an in-memory FileRepository. Deletes cascade to links.
type memFileRepo struct {
	mu    sync.Mutex
	files map[uuid.UUID]*models.File
	links *memLinkRepo
	clock *fakeClock

	createErr error
	updateErr error
}

func newMemFileRepo(links *memLinkRepo, clock *fakeClock) *memFileRepo {
	return &memFileRepo{files: make(map[uuid.UUID]*models.File), links: links, clock: clock}
}

var _ repositories.FileRepository = (*memFileRepo)(nil)

func (r *memFileRepo) GetByPath(_ context.Context, dataSourceID uuid.UUID, path string) (*models.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found []*models.File
	for _, f := range r.files {
		if f.DataSourceID == dataSourceID && f.Path == path {
			found = append(found, f)
		}
	}
	switch len(found) {
	case 0:
		return nil, apperrors.ErrNotFound
	case 1:
		c := *found[0]
		return &c, nil
	default:
		return nil, apperrors.ErrMultipleRecordsFound
	}
}

func (r *memFileRepo) GetLatestByHash(_ context.Context, dataSourceID uuid.UUID, hash string) (*models.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *models.File
	for _, f := range r.files {
		if f.DataSourceID != dataSourceID || f.Hash != hash {
			continue
		}
		if best == nil || f.UpdatedAt.After(best.UpdatedAt) {
			best = f
		}
	}
	if best == nil {
		return nil, apperrors.ErrNotFound
	}
	c := *best
	return &c, nil
}

func (r *memFileRepo) Create(_ context.Context, file *models.File) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.files {
		if f.DataSourceID == file.DataSourceID && f.Path == file.Path {
			return apperrors.ErrConflict
		}
	}
	if file.ID == uuid.Nil {
		file.ID = uuid.New()
	}
	now := r.clock.Now()
	file.CreatedAt = now
	file.UpdatedAt = now
	c := *file
	r.files[file.ID] = &c
	return nil
}

func (r *memFileRepo) Update(_ context.Context, file *models.File) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.files[file.ID]
	if !ok {
		return apperrors.ErrNotFound
	}
	file.UpdatedAt = r.clock.Now()
	existing.Hash = file.Hash
	existing.Size = file.Size
	existing.Path = file.Path
	existing.Name = file.Name
	existing.Extension = file.Extension
	existing.Category = file.Category
	existing.UpdatedAt = file.UpdatedAt
	return nil
}

func (r *memFileRepo) StampLastSeen(_ context.Context, jobID uuid.UUID, fileIDs []uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, id := range fileIDs {
		if f, ok := r.files[id]; ok {
			j := jobID
			f.LastSeenJobID = &j
			n++
		}
	}
	return n, nil
}

func (r *memFileRepo) DeleteNotSeenBy(_ context.Context, dataSourceID, jobID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, f := range r.files {
		if f.DataSourceID != dataSourceID {
			continue
		}
		if f.LastSeenJobID != nil && *f.LastSeenJobID == jobID {
			continue
		}
		delete(r.files, id)
		if r.links != nil {
			r.links.deleteFile(id)
		}
		n++
	}
	return n, nil
}

func (r *memFileRepo) ListByDataSource(_ context.Context, dataSourceID uuid.UUID) ([]*models.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.File
	for _, f := range r.files {
		if f.DataSourceID == dataSourceID {
			c := *f
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// memLinkRepo is an in-memory FileProjectLinkRepository.
type memLinkRepo struct {
	mu    sync.Mutex
	links map[uuid.UUID][]uuid.UUID // fileID -> projects in insertion order

	listErr error
}

func newMemLinkRepo() *memLinkRepo {
	return &memLinkRepo{links: make(map[uuid.UUID][]uuid.UUID)}
}

var _ repositories.FileProjectLinkRepository = (*memLinkRepo)(nil)

func (r *memLinkRepo) ListProjectIDs(_ context.Context, fileID uuid.UUID) ([]uuid.UUID, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uuid.UUID(nil), r.links[fileID]...), nil
}

func (r *memLinkRepo) CreateLinks(_ context.Context, fileID uuid.UUID, projectIDs []uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, p := range projectIDs {
		exists := false
		for _, have := range r.links[fileID] {
			if have == p {
				exists = true
				break
			}
		}
		if !exists {
			r.links[fileID] = append(r.links[fileID], p)
			n++
		}
	}
	return n, nil
}

func (r *memLinkRepo) deleteFile(fileID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.links, fileID)
}

func (r *memLinkRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ps := range r.links {
		n += len(ps)
	}
	return n
}

// memJobRepo is an in-memory IngestionJobRepository.
type memJobRepo struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*models.IngestionJob

	createErr   error
	finalizeErr error
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{jobs: make(map[uuid.UUID]*models.IngestionJob)}
}

var _ repositories.IngestionJobRepository = (*memJobRepo)(nil)

func (r *memJobRepo) Create(_ context.Context, job *models.IngestionJob) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *job
	r.jobs[job.ID] = &c
	return nil
}

func (r *memJobRepo) Finalize(_ context.Context, job *models.IngestionJob) error {
	if r.finalizeErr != nil {
		return r.finalizeErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.jobs[job.ID]
	if !ok {
		return apperrors.ErrNotFound
	}
	if existing.Status.IsTerminal() {
		return apperrors.ErrConflict
	}
	c := *job
	r.jobs[job.ID] = &c
	return nil
}

func (r *memJobRepo) Get(_ context.Context, id uuid.UUID) (*models.IngestionJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	c := *j
	return &c, nil
}

func (r *memJobRepo) ListByDataSource(_ context.Context, dataSourceID uuid.UUID, limit int) ([]*models.IngestionJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.IngestionJob
	for _, j := range r.jobs {
		if j.DataSourceID == dataSourceID {
			c := *j
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].StartTime.After(out[k].StartTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memJobRepo) FailInProgress(_ context.Context, dataSourceID uuid.UUID, reason string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	now := time.Now()
	for _, j := range r.jobs {
		if j.DataSourceID == dataSourceID && j.Status == models.IngestionJobStatusInProgress {
			j.Status = models.IngestionJobStatusFailed
			j.EndTime = &now
			msg := reason
			j.ErrorMessage = &msg
			n++
		}
	}
	return n, nil
}

func (r *memJobRepo) all() []*models.IngestionJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.IngestionJob
	for _, j := range r.jobs {
		c := *j
		out = append(out, &c)
	}
	return out
}

// memLockRepo is an in-memory ResourceLockRepository.
type memLockRepo struct {
	mu    sync.Mutex
	locks map[string]bool

	unlockCalls int
}

func newMemLockRepo() *memLockRepo {
	return &memLockRepo{locks: make(map[string]bool)}
}

var _ repositories.ResourceLockRepository = (*memLockRepo)(nil)

func lockKey(id uuid.UUID, t models.ResourceType) string {
	return string(t) + "/" + id.String()
}

func (r *memLockRepo) EnsureExists(_ context.Context, id uuid.UUID, t models.ResourceType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.locks[lockKey(id, t)]; !ok {
		r.locks[lockKey(id, t)] = false
	}
	return nil
}

func (r *memLockRepo) TryLock(_ context.Context, id uuid.UUID, t models.ResourceType) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	locked, ok := r.locks[lockKey(id, t)]
	if !ok || locked {
		return false, nil
	}
	r.locks[lockKey(id, t)] = true
	return true, nil
}

func (r *memLockRepo) Unlock(_ context.Context, id uuid.UUID, t models.ResourceType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unlockCalls++
	if _, ok := r.locks[lockKey(id, t)]; !ok {
		return apperrors.ErrLockNotFound
	}
	r.locks[lockKey(id, t)] = false
	return nil
}

func (r *memLockRepo) Get(_ context.Context, id uuid.UUID, t models.ResourceType) (*models.ResourceLock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	locked, ok := r.locks[lockKey(id, t)]
	if !ok {
		return nil, apperrors.ErrLockNotFound
	}
	return &models.ResourceLock{ResourceID: id, ResourceType: t, Locked: locked}, nil
}

func (r *memLockRepo) isLocked(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.locks[lockKey(id, models.ResourceTypeDataSource)]
}

// fakeCrawler serves a fixed tree of path -> content.
type fakeCrawler struct {
	mu        sync.Mutex
	files     map[string]string
	walkErr   error
	openErr   map[string]error
	sizes     map[string]int64 // listing size overrides; default is the content length
	panicWalk bool
	walks     int
}

var _ provider.Crawler = (*fakeCrawler)(nil)

func (c *fakeCrawler) Name() string { return "fake" }

func (c *fakeCrawler) Validate(rawURL string) error {
	if !strings.HasPrefix(rawURL, "https://github.com/") {
		return fmt.Errorf("%q: %w", rawURL, apperrors.ErrInvalidSourceURL)
	}
	return nil
}

func (c *fakeCrawler) AuthHeaders() map[string]string { return map[string]string{} }

func (c *fakeCrawler) set(files map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files = files
}

func (c *fakeCrawler) Walk(ctx context.Context, _ string, fn provider.WalkFunc) error {
	c.mu.Lock()
	c.walks++
	if c.panicWalk {
		c.mu.Unlock()
		panic("walk exploded")
	}
	if c.walkErr != nil {
		err := c.walkErr
		c.mu.Unlock()
		return err
	}
	paths := make([]string, 0, len(c.files))
	for p := range c.files {
		paths = append(paths, p)
	}
	files := c.files
	c.mu.Unlock()

	sort.Strings(paths)
	for _, p := range paths {
		content := files[p]
		openErr := c.openErr[p]
		size, ok := c.sizes[p]
		if !ok {
			size = int64(len(content))
		}
		name := p[strings.LastIndex(p, "/")+1:]
		ext := models.FileExtension(name)
		fd := provider.NewFileDescriptor(p, name, ext, config.FileCategoryDocs, size, "https://raw.example/"+p,
			func(context.Context) (io.ReadCloser, error) {
				if openErr != nil {
					return nil, openErr
				}
				return io.NopCloser(strings.NewReader(content)), nil
			})
		if err := fn(ctx, fd); err != nil {
			return err
		}
	}
	return nil
}

type fakeCrawlerFactory struct {
	crawler provider.Crawler
	err     error
}

func (f *fakeCrawlerFactory) NewCrawler(*models.DataSource) (provider.Crawler, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.crawler, nil
}

// mockDataSourceService serves one data source and a mutable subscription list.
type mockDataSourceService struct {
	mu       sync.Mutex
	ds       *models.DataSource
	projects []uuid.UUID

	createFunc func(ctx context.Context, in CreateDataSourceInput) (*models.DataSource, error)
}

var _ DataSourceService = (*mockDataSourceService)(nil)

func (m *mockDataSourceService) Create(ctx context.Context, in CreateDataSourceInput) (*models.DataSource, error) {
	if m.createFunc != nil {
		return m.createFunc(ctx, in)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockDataSourceService) Get(_ context.Context, id uuid.UUID) (*models.DataSource, error) {
	if m.ds == nil || m.ds.ID != id {
		return nil, apperrors.ErrNotFound
	}
	c := *m.ds
	return &c, nil
}

func (m *mockDataSourceService) Subscribe(_ context.Context, _, projectID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects = append(m.projects, projectID)
	return nil
}

func (m *mockDataSourceService) ListProjectIDs(_ context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	if m.ds == nil || m.ds.ID != id {
		return nil, apperrors.ErrNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uuid.UUID(nil), m.projects...), nil
}

// recordingIndexer captures every Index call.
type recordingIndexer struct {
	mu        sync.Mutex
	requests  []*IndexRequest
	indexFunc func(ctx context.Context, req *IndexRequest) error
}

func (i *recordingIndexer) Index(ctx context.Context, req *IndexRequest) error {
	i.mu.Lock()
	i.requests = append(i.requests, req)
	i.mu.Unlock()
	if i.indexFunc != nil {
		return i.indexFunc(ctx, req)
	}
	return nil
}

func (i *recordingIndexer) reset() []*IndexRequest {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := i.requests
	i.requests = nil
	return out
}

// recordingMetrics counts recorder calls.
type recordingMetrics struct {
	mu         sync.Mutex
	jobs       map[string]int
	classified map[string]int
	reaped     int64
	contended  int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{jobs: map[string]int{}, classified: map[string]int{}}
}

func (m *recordingMetrics) JobFinished(status string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[status]++
}

func (m *recordingMetrics) FileClassified(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classified[status]++
}

func (m *recordingMetrics) FilesReaped(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reaped += n
}

func (m *recordingMetrics) LockContended() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contended++
}
