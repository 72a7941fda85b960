// Package github crawls repositories through the GitHub contents API.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ingest/pkg/adapters/provider"
	"github.com/ekaya-inc/ekaya-ingest/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-ingest/pkg/logging"
	"github.com/ekaya-inc/ekaya-ingest/pkg/models"
	"github.com/ekaya-inc/ekaya-ingest/pkg/retry"
)

// Name is the registry key for this provider.
const Name = "github"

const (
	defaultAPIBaseURL = "https://api.github.com"
	defaultRef        = "main"
	defaultTimeout    = 30 * time.Second

	// cap on error bodies kept for logs
	maxErrorBody = 512
)

var repoURLPattern = regexp.MustCompile(`^https://github\.com/([^/]+)/([^/]+)$`)

func init() {
	provider.Register(provider.Registration{
		Info: provider.Info{
			Name:        Name,
			DisplayName: "GitHub",
			Description: "Public or token-authorized GitHub repositories",
		},
		Factory: func(opts provider.Options) (provider.Crawler, error) {
			c, err := New(opts)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
	})
}

// node is one entry of a contents API directory listing.
type node struct {
	Type        string `json:"type"` // "file", "dir", "symlink", "submodule"
	Name        string `json:"name"`
	Path        string `json:"path"`
	Size        int64  `json:"size"`
	URL         string `json:"url"`
	DownloadURL string `json:"download_url"`
}

// Crawler implements provider.Crawler for GitHub.
type Crawler struct {
	httpClient *http.Client
	apiBaseURL string
	ref        string
	token      string
	extensions provider.ExtensionClassifier
	retry      *retry.Config
	logger     *zap.Logger
}

var _ provider.Crawler = (*Crawler)(nil)

// New creates a GitHub crawler.
func New(opts provider.Options) (*Crawler, error) {
	if opts.Extensions == nil {
		return nil, errors.New("github crawler requires an extension classifier")
	}

	c := &Crawler{
		httpClient: opts.HTTPClient,
		apiBaseURL: strings.TrimRight(opts.APIBaseURL, "/"),
		ref:        opts.Ref,
		token:      opts.Token,
		extensions: opts.Extensions,
		retry:      opts.Retry,
		logger:     opts.Logger,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if c.apiBaseURL == "" {
		c.apiBaseURL = defaultAPIBaseURL
	}
	if c.ref == "" {
		c.ref = defaultRef
	}
	if c.retry == nil {
		c.retry = retry.DefaultConfig()
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	c.logger = c.logger.Named("github")
	return c, nil
}

func (c *Crawler) Name() string { return Name }

// Validate checks that rawURL has the form https://github.com/<owner>/<repo>.
func (c *Crawler) Validate(rawURL string) error {
	_, _, err := parseRepoURL(rawURL)
	return err
}

// AuthHeaders returns the token header when a token is configured.
func (c *Crawler) AuthHeaders() map[string]string {
	if c.token == "" {
		return map[string]string{}
	}
	return map[string]string{"Authorization": "token " + c.token}
}

// Walk lists the repository contents at the configured ref depth-first.
func (c *Crawler) Walk(ctx context.Context, rootURL string, fn provider.WalkFunc) error {
	owner, repo, err := parseRepoURL(rootURL)
	if err != nil {
		return err
	}

	listURL := fmt.Sprintf("%s/repos/%s/%s/contents?ref=%s",
		c.apiBaseURL, url.PathEscape(owner), url.PathEscape(repo), url.QueryEscape(c.ref))

	c.logger.Info("Walking repository",
		zap.String("owner", owner),
		zap.String("repo", repo),
		zap.String("ref", c.ref))

	return c.walkDir(ctx, listURL, fn)
}

func (c *Crawler) walkDir(ctx context.Context, dirURL string, fn provider.WalkFunc) error {
	nodes, err := c.list(ctx, dirURL)
	if err != nil {
		return err
	}

	for _, n := range nodes {
		if err := ctx.Err(); err != nil {
			return err
		}

		switch n.Type {
		case "dir":
			if err := c.walkDir(ctx, n.URL, fn); err != nil {
				return err
			}
		case "file":
			fd, ok := c.describe(n)
			if !ok {
				continue
			}
			if err := fn(ctx, fd); err != nil {
				return err
			}
		default:
			c.logger.Debug("Skipping unsupported node",
				zap.String("path", n.Path),
				zap.String("type", n.Type))
		}
	}
	return nil
}

// describe builds a descriptor for a file node, or reports false for files
// whose extension is missing or not indexable.
func (c *Crawler) describe(n node) (*provider.FileDescriptor, bool) {
	ext := models.FileExtension(n.Name)
	if ext == "" {
		c.logger.Warn("Skipping file without extension", zap.String("path", n.Path))
		return nil, false
	}

	category, ok := c.extensions.ClassifyExtension(ext)
	if !ok {
		c.logger.Warn("Skipping file with unsupported extension",
			zap.String("path", n.Path),
			zap.String("extension", ext))
		return nil, false
	}

	if n.DownloadURL == "" {
		c.logger.Warn("Skipping file without download url", zap.String("path", n.Path))
		return nil, false
	}

	downloadURL := n.DownloadURL
	return provider.NewFileDescriptor(n.Path, n.Name, ext, category, n.Size, downloadURL,
		func(ctx context.Context) (io.ReadCloser, error) {
			return c.download(ctx, downloadURL)
		}), true
}

// list fetches one directory listing, retrying transient failures.
func (c *Crawler) list(ctx context.Context, dirURL string) ([]node, error) {
	nodes, err := retry.DoWithResult(ctx, c.retry, func() ([]node, error) {
		resp, err := c.get(ctx, dirURL, "application/vnd.github+json")
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		var out []node
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("failed to decode listing: %w", err)
		}
		return out, nil
	})
	if err != nil {
		c.logger.Error("Failed to list directory",
			zap.String("url", logging.SanitizeURL(dirURL)),
			zap.String("error", logging.SanitizeError(err)))
		return nil, fmt.Errorf("list %s: %w: %w", logging.SanitizeURL(dirURL), apperrors.ErrProviderFetchFailure, err)
	}
	return nodes, nil
}

// download opens a file body. The caller closes it.
func (c *Crawler) download(ctx context.Context, downloadURL string) (io.ReadCloser, error) {
	resp, err := retry.DoWithResult(ctx, c.retry, func() (*http.Response, error) {
		return c.get(ctx, downloadURL, "")
	})
	if err != nil {
		c.logger.Error("Failed to download file",
			zap.String("url", logging.SanitizeURL(downloadURL)),
			zap.String("error", logging.SanitizeError(err)))
		return nil, fmt.Errorf("download %s: %w: %w", logging.SanitizeURL(downloadURL), apperrors.ErrProviderFetchFailure, err)
	}
	return resp.Body, nil
}

// get issues one authorized GET. Non-2xx responses are returned as *StatusError
// with the body closed.
func (c *Crawler) get(ctx context.Context, target, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range c.AuthHeaders() {
		req.Header.Set(k, v)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return resp, nil
}

// StatusError is a non-2xx response from GitHub.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("github returned status %d: %s", e.StatusCode, e.Body)
}

// IsRetryable reports true for rate limiting and server errors.
func (e *StatusError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

func parseRepoURL(rawURL string) (owner, repo string, err error) {
	m := repoURLPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return "", "", fmt.Errorf("%w: %q is not in the form https://github.com/<owner>/<repository>",
			apperrors.ErrInvalidSourceURL, rawURL)
	}
	return m[1], m[2], nil
}
