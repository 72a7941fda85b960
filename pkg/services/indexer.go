package services

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ingest/pkg/models"
)

// IndexRequest is one file delivered to one project's downstream index.
type IndexRequest struct {
	DataSource *models.DataSource
	ProjectID  uuid.UUID
	File       *models.File
	Status     models.FileStatus
	Content    []byte
}

// Indexer is the downstream boundary that converts, chunks, embeds and stores content.
// Index is called once per (file, project) that needs (re)indexing.
type Indexer interface {
	Index(ctx context.Context, req *IndexRequest) error
}

// LoggingIndexer logs each request and discards the content.
type LoggingIndexer struct {
	logger *zap.Logger
}

// NewLoggingIndexer creates the default Indexer.
func NewLoggingIndexer(logger *zap.Logger) *LoggingIndexer {
	return &LoggingIndexer{logger: logger.Named("indexer")}
}

var _ Indexer = (*LoggingIndexer)(nil)

func (i *LoggingIndexer) Index(ctx context.Context, req *IndexRequest) error {
	i.logger.Info("Index request",
		zap.String("data_source_id", req.DataSource.ID.String()),
		zap.String("project_id", req.ProjectID.String()),
		zap.String("path", req.File.Path),
		zap.String("status", string(req.Status)),
		zap.String("category", req.File.Category),
		zap.Int("bytes", len(req.Content)))
	return nil
}
