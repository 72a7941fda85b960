package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ekaya-inc/ekaya-ingest/pkg/adapters/provider"
	"github.com/ekaya-inc/ekaya-ingest/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-ingest/pkg/config"
	"github.com/ekaya-inc/ekaya-ingest/pkg/hashing"
	"github.com/ekaya-inc/ekaya-ingest/pkg/logging"
	"github.com/ekaya-inc/ekaya-ingest/pkg/metrics"
	"github.com/ekaya-inc/ekaya-ingest/pkg/models"
	"github.com/ekaya-inc/ekaya-ingest/pkg/repositories"
)

// ErrShuttingDown is returned by Trigger once Shutdown has been called.
var ErrShuttingDown = errors.New("ingestion service is shutting down")

// IngestionService runs the incremental ingestion pipeline for data sources.
type IngestionService interface {
	// Trigger takes the data source lock, records an IN_PROGRESS job and returns it
	// immediately. The crawl runs in the background on its own connection.
	// Returns apperrors.ErrAlreadyRunning when another job holds the lock.
	Trigger(ctx context.Context, dataSourceID uuid.UUID, projectID *uuid.UUID) (*models.IngestionJob, error)

	// Run executes a full ingestion synchronously on the caller's scope.
	// The returned result carries the finalized job even when err is non-nil.
	Run(ctx context.Context, dataSourceID uuid.UUID, projectID *uuid.UUID) (*IngestionResult, error)

	GetJob(ctx context.Context, jobID uuid.UUID) (*models.IngestionJob, error)
	ListJobs(ctx context.Context, dataSourceID uuid.UUID, limit int) ([]*models.IngestionJob, error)

	// CancelDataSource cancels this process's background jobs for the data source
	// and waits until each has finalized FAILED and released its lock.
	// Returns the number of jobs cancelled.
	CancelDataSource(ctx context.Context, dataSourceID uuid.UUID) (int, error)

	// Shutdown cancels background jobs and waits for each to finalize and release its lock.
	Shutdown(ctx context.Context) error
}

// IngestionStats counts what one job did.
type IngestionStats struct {
	Crawled      int            `json:"crawled"`
	ByStatus     map[string]int `json:"by_status"`
	Dispatched   int            `json:"dispatched"`
	LinksCreated int64          `json:"links_created"`
	Stamped      int64          `json:"stamped"`
	Reaped       int64          `json:"reaped"`
}

// IngestionResult is the outcome of a synchronous Run.
type IngestionResult struct {
	Job   *models.IngestionJob `json:"job"`
	Stats IngestionStats       `json:"stats"`
}

type ingestionService struct {
	dataSources DataSourceService
	crawlers    CrawlerFactory
	classifier  FileClassifier
	linkage     LinkageResolver
	reaper      StaleFileReaper
	ledger      JobLedger
	locks       ResourceLockService
	fileRepo    repositories.FileRepository
	linkRepo    repositories.FileProjectLinkRepository
	indexer     Indexer
	metrics     metrics.Recorder

	chunkSize        int
	indexConcurrency int

	getScopeCtx ScopeContextFunc
	logger      *zap.Logger

	activeJobs sync.Map // jobID -> *activeJob
	wg         sync.WaitGroup
	closing    atomic.Bool
}

// NewIngestionService creates the ingestion orchestrator.
func NewIngestionService(
	dataSources DataSourceService,
	crawlers CrawlerFactory,
	classifier FileClassifier,
	linkage LinkageResolver,
	reaper StaleFileReaper,
	ledger JobLedger,
	locks ResourceLockService,
	fileRepo repositories.FileRepository,
	linkRepo repositories.FileProjectLinkRepository,
	indexer Indexer,
	recorder metrics.Recorder,
	cfg *config.IngestionConfig,
	getScopeCtx ScopeContextFunc,
	logger *zap.Logger,
) IngestionService {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	concurrency := cfg.IndexConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &ingestionService{
		dataSources:      dataSources,
		crawlers:         crawlers,
		classifier:       classifier,
		linkage:          linkage,
		reaper:           reaper,
		ledger:           ledger,
		locks:            locks,
		fileRepo:         fileRepo,
		linkRepo:         linkRepo,
		indexer:          indexer,
		metrics:          recorder,
		chunkSize:        cfg.DownloadChunkSize,
		indexConcurrency: concurrency,
		getScopeCtx:      getScopeCtx,
		logger:           logger.Named("ingestion"),
	}
}

var _ IngestionService = (*ingestionService)(nil)

// activeJob tracks a background job so it can be cancelled and awaited.
type activeJob struct {
	dataSourceID uuid.UUID
	cancel       context.CancelFunc
	done         chan struct{}
}

// ingestionRun is the state a job carries from the trigger into execution.
type ingestionRun struct {
	ds       *models.DataSource
	crawler  provider.Crawler
	projects []uuid.UUID // projects that receive content in this run
	job      *models.IngestionJob
}

func (s *ingestionService) Trigger(ctx context.Context, dataSourceID uuid.UUID, projectID *uuid.UUID) (*models.IngestionJob, error) {
	if s.closing.Load() {
		return nil, ErrShuttingDown
	}

	run, err := s.prepare(ctx, dataSourceID, projectID)
	if err != nil {
		return nil, err
	}

	// Copy before handing the run to the goroutine, which mutates the job on finalize.
	accepted := *run.job

	s.wg.Add(1)
	go s.executeInBackground(run)

	return &accepted, nil
}

func (s *ingestionService) Run(ctx context.Context, dataSourceID uuid.UUID, projectID *uuid.UUID) (*IngestionResult, error) {
	run, err := s.prepare(ctx, dataSourceID, projectID)
	if err != nil {
		return nil, err
	}

	stats, err := s.execute(ctx, run)
	return &IngestionResult{Job: run.job, Stats: stats}, err
}

func (s *ingestionService) GetJob(ctx context.Context, jobID uuid.UUID) (*models.IngestionJob, error) {
	return s.ledger.Get(ctx, jobID)
}

func (s *ingestionService) ListJobs(ctx context.Context, dataSourceID uuid.UUID, limit int) ([]*models.IngestionJob, error) {
	return s.ledger.ListByDataSource(ctx, dataSourceID, limit)
}

// Shutdown cancels all background jobs owned by this process.
func (s *ingestionService) Shutdown(ctx context.Context) error {
	s.closing.Store(true)
	s.logger.Info("Shutting down ingestion service")

	s.activeJobs.Range(func(key, value any) bool {
		jobID := key.(uuid.UUID)
		s.logger.Info("Cancelling ingestion job for shutdown", zap.String("job_id", jobID.String()))
		value.(*activeJob).cancel()
		return true
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for ingestion jobs: %w", ctx.Err())
	}
}

func (s *ingestionService) CancelDataSource(ctx context.Context, dataSourceID uuid.UUID) (int, error) {
	var cancelled []*activeJob
	s.activeJobs.Range(func(key, value any) bool {
		active := value.(*activeJob)
		if active.dataSourceID == dataSourceID {
			s.logger.Info("Cancelling ingestion job",
				zap.String("job_id", key.(uuid.UUID).String()),
				zap.String("data_source_id", dataSourceID.String()))
			active.cancel()
			cancelled = append(cancelled, active)
		}
		return true
	})

	for _, active := range cancelled {
		select {
		case <-active.done:
		case <-ctx.Done():
			return len(cancelled), fmt.Errorf("waiting for cancelled ingestion job: %w", ctx.Err())
		}
	}
	return len(cancelled), nil
}

// prepare runs everything that may reject a trigger before work starts.
// On success the caller owns the lock and an IN_PROGRESS job.
func (s *ingestionService) prepare(ctx context.Context, dataSourceID uuid.UUID, projectID *uuid.UUID) (*ingestionRun, error) {
	ds, err := s.dataSources.Get(ctx, dataSourceID)
	if err != nil {
		return nil, fmt.Errorf("load data source %s: %w", dataSourceID, err)
	}

	crawler, err := s.crawlers.NewCrawler(ds)
	if err != nil {
		return nil, err
	}
	if err := crawler.Validate(ds.URL); err != nil {
		return nil, err
	}

	subscribed, err := s.dataSources.ListProjectIDs(ctx, ds.ID)
	if err != nil {
		return nil, fmt.Errorf("list subscribed projects: %w", err)
	}
	projects := subscribed
	if projectID != nil {
		if !slices.Contains(subscribed, *projectID) {
			return nil, fmt.Errorf("project %s is not subscribed to data source %s: %w",
				*projectID, ds.ID, apperrors.ErrNotFound)
		}
		projects = []uuid.UUID{*projectID}
	}

	acquired, err := s.locks.Acquire(ctx, ds.ID, models.ResourceTypeDataSource)
	if err != nil {
		return nil, err
	}
	if !acquired {
		s.metrics.LockContended()
		s.logger.Info("Ingestion already running",
			zap.String("data_source_id", ds.ID.String()))
		return nil, fmt.Errorf("data source %s: %w", ds.ID, apperrors.ErrAlreadyRunning)
	}

	job, err := s.ledger.Create(ctx, ds.ID, projectID)
	if err != nil {
		s.releaseLock(context.WithoutCancel(ctx), ds.ID)
		return nil, err
	}

	s.logger.Info("Ingestion job started",
		zap.String("job_id", job.ID.String()),
		zap.String("data_source_id", ds.ID.String()),
		zap.String("provider", ds.Provider),
		zap.String("url", logging.SanitizeURL(ds.URL)),
		zap.Int("projects", len(projects)))

	return &ingestionRun{ds: ds, crawler: crawler, projects: projects, job: job}, nil
}

// executeInBackground gives the job its own cancellable context and connection.
func (s *ingestionService) executeInBackground(run *ingestionRun) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	active := &activeJob{dataSourceID: run.ds.ID, cancel: cancel, done: make(chan struct{})}
	s.activeJobs.Store(run.job.ID, active)
	defer func() {
		s.activeJobs.Delete(run.job.ID)
		close(active.done)
	}()

	scopedCtx, cleanup, err := s.getScopeCtx(ctx)
	if err != nil {
		s.logger.Error("Failed to acquire database scope for ingestion job",
			zap.String("job_id", run.job.ID.String()),
			zap.Error(err))
		s.abandon(run, fmt.Errorf("acquire database scope: %w", err))
		return
	}
	defer cleanup()

	_, _ = s.execute(scopedCtx, run)
}

// abandon finalizes a job that never got to run, on a fresh connection.
func (s *ingestionService) abandon(run *ingestionRun, cause error) {
	ctx, cleanup, err := s.getScopeCtx(context.Background())
	if err != nil {
		s.logger.Error("Ingestion job left IN_PROGRESS with lock held; force-unlock required",
			zap.String("job_id", run.job.ID.String()),
			zap.String("data_source_id", run.ds.ID.String()),
			zap.Error(err))
		return
	}
	defer cleanup()
	s.finish(ctx, run, cause)
}

// execute drives the crawl and always finalizes the job and releases the lock,
// including when ingest panics.
func (s *ingestionService) execute(ctx context.Context, run *ingestionRun) (stats IngestionStats, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Ingestion job panicked",
				zap.String("job_id", run.job.ID.String()),
				zap.String("data_source_id", run.ds.ID.String()),
				zap.Any("panic", r),
				zap.Stack("stack"))
			err = fmt.Errorf("panic during ingestion: %v", r)
		}
		err = s.finish(ctx, run, err)
	}()

	return s.ingest(ctx, run)
}

// finish writes the terminal job record, then releases the lock whatever happened.
// Cleanup ignores cancellation of ctx so a cancelled job still records FAILED.
func (s *ingestionService) finish(ctx context.Context, run *ingestionRun, cause error) error {
	ctx = context.WithoutCancel(ctx)
	defer s.releaseLock(ctx, run.ds.ID)

	if cause == nil {
		if err := s.ledger.MarkSucceeded(ctx, run.job); err != nil {
			s.logger.Error("Failed to mark ingestion job succeeded",
				zap.String("job_id", run.job.ID.String()),
				zap.Error(err))
			cause = fmt.Errorf("finalize job: %w", err)
		}
	}

	if cause != nil {
		reason := logging.SanitizeError(cause)
		s.logger.Error("Ingestion job failed",
			zap.String("job_id", run.job.ID.String()),
			zap.String("data_source_id", run.ds.ID.String()),
			zap.String("error", reason))
		if !run.job.Status.IsTerminal() {
			if err := s.ledger.MarkFailed(ctx, run.job, reason); err != nil {
				s.logger.Error("Failed to mark ingestion job failed",
					zap.String("job_id", run.job.ID.String()),
					zap.Error(err))
			}
		}
	}

	var elapsed time.Duration
	if run.job.Duration != nil {
		elapsed = *run.job.Duration
	}
	s.metrics.JobFinished(string(run.job.Status), elapsed)
	return cause
}

func (s *ingestionService) releaseLock(ctx context.Context, dataSourceID uuid.UUID) {
	if err := s.locks.Release(ctx, dataSourceID, models.ResourceTypeDataSource); err != nil {
		s.logger.Error("Data source lock not released; force-unlock required",
			zap.String("data_source_id", dataSourceID.String()),
			zap.Error(err))
	}
}

// ingest lists the whole upstream tree, then classifies, persists and dispatches
// each file in crawl order. Any per-file error aborts the job so no file goes
// unstamped into the sweep.
func (s *ingestionService) ingest(ctx context.Context, run *ingestionRun) (IngestionStats, error) {
	stats := IngestionStats{ByStatus: make(map[string]int)}

	var descriptors []*provider.FileDescriptor
	err := run.crawler.Walk(ctx, run.ds.URL, func(_ context.Context, fd *provider.FileDescriptor) error {
		descriptors = append(descriptors, fd)
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("crawl %s: %w", logging.SanitizeURL(run.ds.URL), err)
	}
	stats.Crawled = len(descriptors)

	paths := make([]string, 0, len(descriptors))
	for _, fd := range descriptors {
		paths = append(paths, fd.Path)
	}
	upstream := NewPathSet(paths...)

	var seen []uuid.UUID
	for _, fd := range descriptors {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		outcome, err := s.processFile(ctx, run, fd, upstream)
		if err != nil {
			return stats, fmt.Errorf("process %s: %w", fd.Path, err)
		}

		stats.ByStatus[string(outcome.status)]++
		stats.Dispatched += outcome.dispatched
		stats.LinksCreated += outcome.linksCreated
		if outcome.needsStamp {
			seen = append(seen, outcome.fileID)
		}
	}

	if len(seen) > 0 {
		stamped, err := s.fileRepo.StampLastSeen(ctx, run.job.ID, seen)
		if err != nil {
			return stats, fmt.Errorf("stamp seen files: %w", err)
		}
		stats.Stamped = stamped
	}

	reaped, err := s.reaper.Sweep(ctx, run.ds.ID, run.job.ID)
	if err != nil {
		return stats, err
	}
	stats.Reaped = reaped
	s.metrics.FilesReaped(reaped)

	s.logger.Info("Ingestion crawl complete",
		zap.String("job_id", run.job.ID.String()),
		zap.Int("crawled", stats.Crawled),
		zap.Any("by_status", stats.ByStatus),
		zap.Int("dispatched", stats.Dispatched),
		zap.Int64("reaped", stats.Reaped))
	return stats, nil
}

type fileOutcome struct {
	status       models.FileStatus
	fileID       uuid.UUID
	needsStamp   bool // created rows already carry the job id
	dispatched   int
	linksCreated int64
}

func (s *ingestionService) processFile(ctx context.Context, run *ingestionRun, fd *provider.FileDescriptor, upstream PathSet) (*fileOutcome, error) {
	content, hash, err := s.download(ctx, fd)
	if err != nil {
		return nil, err
	}

	cls, err := s.classifier.Classify(ctx, ClassifyInput{
		DataSourceID: run.ds.ID,
		Path:         fd.Path,
		Hash:         hash,
		Upstream:     upstream,
	})
	if err != nil {
		return nil, err
	}

	status := cls.Status
	var file *models.File
	var targets []uuid.UUID
	saveAfterDispatch := false

	switch cls.Status {
	case models.FileStatusNew, models.FileStatusCopied:
		jobID := run.job.ID
		file = &models.File{
			DataSourceID:  run.ds.ID,
			LastSeenJobID: &jobID,
		}
		applyDescriptor(file, fd, hash, len(content))
		if err := s.fileRepo.Create(ctx, file); err != nil {
			return nil, fmt.Errorf("create file record: %w", err)
		}
		targets = run.projects

	case models.FileStatusChanged:
		// The new hash is written only after every project has indexed it,
		// so a failed dispatch is classified CHANGED again on the next run.
		file = cls.File
		applyDescriptor(file, fd, hash, len(content))
		saveAfterDispatch = true
		targets = run.projects

	case models.FileStatusMoved:
		file = cls.File
		applyDescriptor(file, fd, hash, len(content))
		if err := s.fileRepo.Update(ctx, file); err != nil {
			return nil, fmt.Errorf("update moved file: %w", err)
		}
		fallthrough

	case models.FileStatusUnchanged:
		if file == nil {
			file = cls.File
		}
		targets, err = s.linkage.MissingProjects(ctx, file.ID, run.projects)
		if err != nil {
			return nil, err
		}
		if len(targets) > 0 {
			status = models.FileStatusMissingProjectLinks
		}

	default:
		return nil, fmt.Errorf("unexpected classification %q", cls.Status)
	}

	s.metrics.FileClassified(string(status))

	outcome := &fileOutcome{
		status:     status,
		fileID:     file.ID,
		needsStamp: !cls.Status.CreatesRecord(),
	}
	if len(targets) > 0 {
		if err := s.dispatch(ctx, run.ds, file, status, content, targets); err != nil {
			return nil, err
		}
		outcome.dispatched = len(targets)
	}

	if saveAfterDispatch {
		if err := s.fileRepo.Update(ctx, file); err != nil {
			return nil, fmt.Errorf("update changed file: %w", err)
		}
	}
	if len(targets) == 0 {
		return outcome, nil
	}

	created, err := s.linkRepo.CreateLinks(ctx, file.ID, targets)
	if err != nil {
		return nil, fmt.Errorf("link file to projects: %w", err)
	}
	outcome.linksCreated = created
	return outcome, nil
}

// maxDownloadPrealloc bounds the buffer reserved up front for one download.
const maxDownloadPrealloc int64 = 8 << 20

func (s *ingestionService) download(ctx context.Context, fd *provider.FileDescriptor) ([]byte, string, error) {
	rc, err := fd.Open(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("open: %w", err)
	}
	defer rc.Close()

	var buf bytes.Buffer
	if fd.Size > 0 {
		// Size comes from the provider listing and is only a hint.
		buf.Grow(int(min(fd.Size, maxDownloadPrealloc)))
	}
	hash, err := hashing.Sink(&buf, rc, s.chunkSize)
	if err != nil {
		return nil, "", fmt.Errorf("%w: download: %w", apperrors.ErrProviderFetchFailure, err)
	}
	return buf.Bytes(), hash, nil
}

// dispatch hands the content to the indexer once per target project.
// Indexer calls run concurrently; persistence stays on the caller's goroutine.
func (s *ingestionService) dispatch(ctx context.Context, ds *models.DataSource, file *models.File, status models.FileStatus, content []byte, targets []uuid.UUID) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.indexConcurrency)

	for _, projectID := range targets {
		g.Go(func() error {
			err := s.indexer.Index(gctx, &IndexRequest{
				DataSource: ds,
				ProjectID:  projectID,
				File:       file,
				Status:     status,
				Content:    content,
			})
			if err != nil {
				return fmt.Errorf("index %s for project %s: %w", file.Path, projectID, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func applyDescriptor(file *models.File, fd *provider.FileDescriptor, hash string, size int) {
	file.Hash = hash
	file.Size = int64(size)
	file.Path = fd.Path
	file.Name = fd.Name
	file.Extension = fd.Extension
	file.Category = string(fd.Category)
}
