// Package provider defines the crawler capability every content provider implements
// and the registry that selects one by provider name.
package provider

import (
	"context"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ingest/pkg/config"
	"github.com/ekaya-inc/ekaya-ingest/pkg/retry"
)

// Crawler walks a provider's tree depth-first and reports every indexable file.
type Crawler interface {
	// Name returns the registry key, e.g. "github".
	Name() string

	// Validate returns an error wrapping apperrors.ErrInvalidSourceURL when
	// rawURL does not match the provider's expected pattern.
	Validate(rawURL string) error

	// Walk lists the tree under rootURL and calls fn once per indexable file.
	// Any listing failure aborts the walk with apperrors.ErrProviderFetchFailure.
	// Each call re-issues every request.
	Walk(ctx context.Context, rootURL string, fn WalkFunc) error

	// AuthHeaders returns the headers sent with every provider request.
	AuthHeaders() map[string]string
}

// WalkFunc receives each file found by a Crawler. Returning an error stops the walk
// and Walk returns that error unchanged.
type WalkFunc func(ctx context.Context, fd *FileDescriptor) error

// OpenFunc starts the download of one file.
type OpenFunc func(ctx context.Context) (io.ReadCloser, error)

// FileDescriptor describes one leaf node found during a walk.
// Content is not fetched until Open is called.
type FileDescriptor struct {
	Path      string
	Name      string
	Extension string
	Category  config.FileCategory
	Size      int64
	SourceURL string // where Open downloads from

	open OpenFunc
}

// NewFileDescriptor builds a descriptor whose content is fetched by open.
func NewFileDescriptor(path, name, ext string, category config.FileCategory, size int64, sourceURL string, open OpenFunc) *FileDescriptor {
	return &FileDescriptor{
		Path:      path,
		Name:      name,
		Extension: ext,
		Category:  category,
		Size:      size,
		SourceURL: sourceURL,
		open:      open,
	}
}

// Open downloads the file content. The caller must close the returned reader.
func (fd *FileDescriptor) Open(ctx context.Context) (io.ReadCloser, error) {
	if fd.open == nil {
		return nil, errors.New("file descriptor has no content source")
	}
	return fd.open(ctx)
}

// ExtensionClassifier decides which file extensions are indexable.
// *config.IngestionConfig satisfies it.
type ExtensionClassifier interface {
	ClassifyExtension(ext string) (config.FileCategory, bool)
}

// Options configures a crawler instance for one data source.
type Options struct {
	Token      string // provider access token; empty for public content
	APIBaseURL string
	Ref        string
	Extensions ExtensionClassifier
	HTTPClient *http.Client
	Retry      *retry.Config
	Logger     *zap.Logger
}
