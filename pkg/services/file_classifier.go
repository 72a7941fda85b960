package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ingest/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-ingest/pkg/models"
	"github.com/ekaya-inc/ekaya-ingest/pkg/repositories"
)

// PathSet is the set of paths present upstream in the current crawl.
type PathSet map[string]struct{}

// NewPathSet builds a PathSet from paths.
func NewPathSet(paths ...string) PathSet {
	set := make(PathSet, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return set
}

// Contains reports whether path is in the set.
func (s PathSet) Contains(path string) bool {
	_, ok := s[path]
	return ok
}

// ClassifyInput identifies one crawled file.
type ClassifyInput struct {
	DataSourceID uuid.UUID
	Path         string
	Hash         string

	// Upstream lists every path of the current crawl. When nil, an old path
	// counts as live whenever a File still exists there.
	Upstream PathSet
}

// Classification is the outcome for one crawled file.
// File is the matched persisted record, nil for NEW. For COPIED it is the
// source record, which stays where it is.
type Classification struct {
	Status models.FileStatus
	File   *models.File
}

// FileClassifier decides whether a crawled file is new, unchanged, changed, moved or copied.
type FileClassifier interface {
	Classify(ctx context.Context, in ClassifyInput) (*Classification, error)
}

type fileClassifier struct {
	fileRepo repositories.FileRepository
	logger   *zap.Logger
}

// NewFileClassifier creates a classifier backed by the file repository.
func NewFileClassifier(fileRepo repositories.FileRepository, logger *zap.Logger) FileClassifier {
	return &fileClassifier{
		fileRepo: fileRepo,
		logger:   logger.Named("classifier"),
	}
}

var _ FileClassifier = (*fileClassifier)(nil)

// Classify checks the path first, then the content hash. First match wins:
//
//	path match, same hash       -> UNCHANGED
//	path match, different hash  -> CHANGED
//	hash match, old path live   -> COPIED
//	hash match, old path gone   -> MOVED
//	no match                    -> NEW
//
// Hash matches are limited to the same data source. When several files share
// the hash, the most recently updated one is the candidate.
func (c *fileClassifier) Classify(ctx context.Context, in ClassifyInput) (*Classification, error) {
	byPath, err := c.fileRepo.GetByPath(ctx, in.DataSourceID, in.Path)
	switch {
	case err == nil:
		if byPath.Hash == in.Hash {
			return &Classification{Status: models.FileStatusUnchanged, File: byPath}, nil
		}
		c.logger.Debug("File content changed",
			zap.String("path", in.Path),
			zap.String("old_hash", byPath.Hash),
			zap.String("new_hash", in.Hash))
		return &Classification{Status: models.FileStatusChanged, File: byPath}, nil
	case !errors.Is(err, apperrors.ErrNotFound):
		return nil, fmt.Errorf("lookup by path: %w", err)
	}

	byHash, err := c.fileRepo.GetLatestByHash(ctx, in.DataSourceID, in.Hash)
	if errors.Is(err, apperrors.ErrNotFound) {
		return &Classification{Status: models.FileStatusNew}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup by hash: %w", err)
	}

	live, err := c.oldPathIsLive(ctx, byHash, in.Upstream)
	if err != nil {
		return nil, err
	}

	if live {
		c.logger.Debug("File content copied",
			zap.String("path", in.Path),
			zap.String("from", byHash.Path))
		return &Classification{Status: models.FileStatusCopied, File: byHash}, nil
	}

	c.logger.Debug("File moved",
		zap.String("path", in.Path),
		zap.String("from", byHash.Path))
	return &Classification{Status: models.FileStatusMoved, File: byHash}, nil
}

// oldPathIsLive re-reads the candidate's path from its own data source and,
// when an upstream listing is available, requires the path to still exist upstream.
func (c *fileClassifier) oldPathIsLive(ctx context.Context, candidate *models.File, upstream PathSet) (bool, error) {
	if candidate.Path == "" {
		return false, nil
	}

	_, err := c.fileRepo.GetByPath(ctx, candidate.DataSourceID, candidate.Path)
	if errors.Is(err, apperrors.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup old path: %w", err)
	}

	if upstream == nil {
		return true, nil
	}
	return upstream.Contains(candidate.Path), nil
}
