package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a pgxpool connection pool shared by every request and background job.
type DB struct {
	*pgxpool.Pool
}

// Config holds database connection configuration.
type Config struct {
	URL            string
	MaxConnections int32
	// MinConnections are kept open so a triggered ingestion job can check out
	// its long-lived scope without waiting on a fresh dial.
	MinConnections  int32
	ApplicationName string
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

const defaultApplicationName = "ekaya-ingest"

// NewConnection creates a new database connection pool.
func NewConnection(ctx context.Context, cfg *Config) (*DB, error) {
	poolConfig, err := newPoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

func newPoolConfig(cfg *Config) (*pgxpool.Config, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConnections
	if poolConfig.MaxConns <= 0 {
		poolConfig.MaxConns = 25
	}
	poolConfig.MinConns = min(max(cfg.MinConnections, 0), poolConfig.MaxConns)

	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	if poolConfig.MaxConnLifetime == 0 {
		poolConfig.MaxConnLifetime = time.Hour
	}

	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	if poolConfig.MaxConnIdleTime == 0 {
		poolConfig.MaxConnIdleTime = time.Minute * 30
	}

	appName := cfg.ApplicationName
	if appName == "" {
		appName = defaultApplicationName
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = appName

	return poolConfig, nil
}

// Close closes the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}
