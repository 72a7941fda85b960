package services

import (
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ingest/pkg/adapters/provider"
	"github.com/ekaya-inc/ekaya-ingest/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-ingest/pkg/config"
	"github.com/ekaya-inc/ekaya-ingest/pkg/models"
	"github.com/ekaya-inc/ekaya-ingest/pkg/retry"
)

// CrawlerFactory builds a crawler for a data source.
type CrawlerFactory interface {
	NewCrawler(ds *models.DataSource) (provider.Crawler, error)
}

type crawlerFactory struct {
	cfg        *config.Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewCrawlerFactory creates a factory that builds registry crawlers from cfg.
// All crawlers share one HTTP client.
func NewCrawlerFactory(cfg *config.Config, logger *zap.Logger) CrawlerFactory {
	return &crawlerFactory{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Ingestion.HTTPTimeout()},
		logger:     logger,
	}
}

var _ CrawlerFactory = (*crawlerFactory)(nil)

// NewCrawler returns apperrors.ErrUnknownProvider when the provider is not
// enabled in configuration or has no registered implementation.
func (f *crawlerFactory) NewCrawler(ds *models.DataSource) (provider.Crawler, error) {
	name := strings.ToLower(strings.TrimSpace(ds.Provider))
	if !f.cfg.Ingestion.IsValidProvider(name) {
		return nil, fmt.Errorf("provider %q is not enabled: %w", ds.Provider, apperrors.ErrUnknownProvider)
	}

	opts := provider.Options{
		Token:      ds.Token,
		Extensions: &f.cfg.Ingestion,
		HTTPClient: f.httpClient,
		Retry:      retry.WithMaxRetries(f.cfg.Ingestion.FetchMaxRetries),
		Logger:     f.logger,
	}

	switch name {
	case "github":
		opts.APIBaseURL = f.cfg.GitHub.APIBaseURL
		opts.Ref = f.cfg.GitHub.Ref
		if opts.Token == "" {
			opts.Token = f.cfg.GitHub.Token
		}
	}

	return provider.Get(name, opts)
}
