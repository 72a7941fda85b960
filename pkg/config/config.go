package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config holds all configuration for ekaya-ingest.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, tokens, keys) must only come from environment variables.
//
// A Config is built once by Load and passed to constructors; nothing reads it globally.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3480"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Ingestion pipeline settings
	Ingestion IngestionConfig `yaml:"ingestion"`

	// GitHub provider settings
	GitHub GitHubConfig `yaml:"github"`

	// CredentialsKey encrypts data source tokens at rest.
	// Generate with: openssl rand -base64 32
	CredentialsKey string `yaml:"-" env:"CREDENTIALS_KEY"` // Secret - not in YAML
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"ekaya"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"ekaya_ingest"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	MinConnections int32  `yaml:"min_connections" env:"PGMIN_CONNECTIONS" env-default:"2"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// IngestionConfig controls crawling, classification and downstream dispatch.
type IngestionConfig struct {
	// ValidProvidersStr is a comma-separated list of enabled provider names.
	ValidProvidersStr string `yaml:"valid_providers" env:"INGEST_VALID_PROVIDERS" env-default:"github"`
	// CodeExtensionsStr lists extensions (without dot) treated as source code.
	CodeExtensionsStr string `yaml:"code_extensions" env:"INGEST_CODE_EXTENSIONS" env-default:"c,cpp,cs,java,js,jsx,ts,tsx,py,php,html,css,swift,rb,pl,sh,sql,xml,json,yaml,yml"`
	// DocsExtensionsStr lists extensions (without dot) treated as documentation.
	DocsExtensionsStr string `yaml:"docs_extensions" env:"INGEST_DOCS_EXTENSIONS" env-default:"docx,pdf,md"`

	DownloadChunkSize  int `yaml:"download_chunk_size" env:"INGEST_DOWNLOAD_CHUNK_SIZE" env-default:"8192"`
	IndexConcurrency   int `yaml:"index_concurrency" env:"INGEST_INDEX_CONCURRENCY" env-default:"4"`
	FetchMaxRetries    int `yaml:"fetch_max_retries" env:"INGEST_FETCH_MAX_RETRIES" env-default:"2"`
	HTTPTimeoutSeconds int `yaml:"http_timeout_seconds" env:"INGEST_HTTP_TIMEOUT_SECONDS" env-default:"30"`

	// Parsed forms of the string fields above (not from config file).
	ValidProviders []string            `yaml:"-"`
	CodeExtensions map[string]struct{} `yaml:"-"`
	DocsExtensions map[string]struct{} `yaml:"-"`
}

// GitHubConfig holds settings for the GitHub contents API crawler.
type GitHubConfig struct {
	APIBaseURL string `yaml:"api_base_url" env:"GITHUB_API_BASE_URL" env-default:"https://api.github.com"`
	Ref        string `yaml:"ref" env:"GITHUB_REF" env-default:"main"`
	Token      string `yaml:"-" env:"GITHUB_TOKEN"` // Secret - not in YAML
}

// FileCategory groups indexable extensions.
type FileCategory string

const (
	FileCategoryCode FileCategory = "CODE"
	FileCategoryDocs FileCategory = "DOCS"
)

// Load reads configuration from config.yaml with environment variable overrides.
// An optional .env file in the working directory is loaded into the process
// environment first; variables already set in the environment win.
// A missing config.yaml is not an error: env-default values apply.
func Load(version string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.parseComplexFields(); err != nil {
		return nil, fmt.Errorf("failed to parse config fields: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// parseComplexFields handles fields that need post-processing after loading.
func (c *Config) parseComplexFields() error {
	c.Ingestion.ValidProviders = parseList(c.Ingestion.ValidProvidersStr)
	c.Ingestion.CodeExtensions = parseSet(c.Ingestion.CodeExtensionsStr)
	c.Ingestion.DocsExtensions = parseSet(c.Ingestion.DocsExtensionsStr)
	return nil
}

// Validate checks the ingestion settings for values the pipeline cannot run with.
func (c *Config) Validate() error {
	if len(c.Ingestion.ValidProviders) == 0 {
		return fmt.Errorf("at least one valid provider must be configured")
	}
	if c.Ingestion.DownloadChunkSize <= 0 {
		return fmt.Errorf("download_chunk_size must be positive, got %d", c.Ingestion.DownloadChunkSize)
	}
	if c.Ingestion.IndexConcurrency <= 0 {
		return fmt.Errorf("index_concurrency must be positive, got %d", c.Ingestion.IndexConcurrency)
	}
	if c.Ingestion.FetchMaxRetries < 0 {
		return fmt.Errorf("fetch_max_retries must not be negative, got %d", c.Ingestion.FetchMaxRetries)
	}
	for ext := range c.Ingestion.CodeExtensions {
		if _, ok := c.Ingestion.DocsExtensions[ext]; ok {
			return fmt.Errorf("extension %q is listed as both code and docs", ext)
		}
	}
	if _, err := url.Parse(c.GitHub.APIBaseURL); err != nil {
		return fmt.Errorf("invalid github api_base_url: %w", err)
	}
	return nil
}

// IsValidProvider reports whether the provider name is enabled.
func (c *IngestionConfig) IsValidProvider(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, p := range c.ValidProviders {
		if p == name {
			return true
		}
	}
	return false
}

// ClassifyExtension maps a file extension (with or without leading dot, any case)
// to its category. Returns false when the extension is not indexable.
func (c *IngestionConfig) ClassifyExtension(ext string) (FileCategory, bool) {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "" {
		return "", false
	}
	if _, ok := c.CodeExtensions[ext]; ok {
		return FileCategoryCode, true
	}
	if _, ok := c.DocsExtensions[ext]; ok {
		return FileCategoryDocs, true
	}
	return "", false
}

// HTTPTimeout returns the provider HTTP client timeout.
func (c *IngestionConfig) HTTPTimeout() time.Duration {
	if c.HTTPTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// ConnectionString returns a PostgreSQL keyword/value connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		resolveHostForDocker(c.Host), c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// URL returns the connection settings as a postgres:// URL, as pgxpool expects.
func (c *DatabaseConfig) URL() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", resolveHostForDocker(c.Host), c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

// resolveHostForDocker rewrites loopback hosts to host.docker.internal when
// the process runs inside a container, so a database on the host stays reachable.
func resolveHostForDocker(host string) string {
	if host != "localhost" && host != "127.0.0.1" {
		return host
	}
	if _, err := os.Stat("/.dockerenv"); err != nil {
		return host
	}
	return "host.docker.internal"
}

func parseList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseSet(value string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, item := range parseList(value) {
		set[strings.TrimPrefix(item, ".")] = struct{}{}
	}
	return set
}
