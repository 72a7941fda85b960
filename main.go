package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver for migrations
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "github.com/ekaya-inc/ekaya-ingest/pkg/adapters/provider/github"
	"github.com/ekaya-inc/ekaya-ingest/pkg/config"
	"github.com/ekaya-inc/ekaya-ingest/pkg/crypto"
	"github.com/ekaya-inc/ekaya-ingest/pkg/database"
	"github.com/ekaya-inc/ekaya-ingest/pkg/handlers"
	"github.com/ekaya-inc/ekaya-ingest/pkg/logging"
	"github.com/ekaya-inc/ekaya-ingest/pkg/metrics"
	"github.com/ekaya-inc/ekaya-ingest/pkg/middleware"
	"github.com/ekaya-inc/ekaya-ingest/pkg/repositories"
	"github.com/ekaya-inc/ekaya-ingest/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("ekaya-ingest exited", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" || env == "dev" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", logging.SanitizeURL(cfg.Database.URL())),
		zap.Strings("providers", cfg.Ingestion.ValidProviders),
	)

	if err := migrate(cfg, logger); err != nil {
		return err
	}

	db, err := database.NewConnection(ctx, &database.Config{
		URL:             cfg.Database.URL(),
		MaxConnections:  cfg.Database.MaxConnections,
		MinConnections:  cfg.Database.MinConnections,
		ApplicationName: "ekaya-ingest/" + cfg.Version,
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	var cipher *crypto.TokenCipher
	if cfg.CredentialsKey != "" {
		cipher, err = crypto.NewTokenCipher(cfg.CredentialsKey)
		if err != nil {
			return fmt.Errorf("credentials key: %w", err)
		}
	} else {
		logger.Warn("CREDENTIALS_KEY not set; data sources with tokens cannot be created")
	}

	recorder := metrics.New()

	projectRepo := repositories.NewProjectRepository()
	dataSourceRepo := repositories.NewDataSourceRepository()
	fileRepo := repositories.NewFileRepository()
	linkRepo := repositories.NewFileProjectLinkRepository()
	jobRepo := repositories.NewIngestionJobRepository()
	lockRepo := repositories.NewResourceLockRepository()

	crawlers := services.NewCrawlerFactory(cfg, logger)
	projectService := services.NewProjectService(projectRepo, logger)
	dataSourceService := services.NewDataSourceService(dataSourceRepo, cipher, crawlers, logger)
	lockService := services.NewResourceLockService(lockRepo, jobRepo, logger)
	ingestionService := services.NewIngestionService(
		dataSourceService,
		crawlers,
		services.NewFileClassifier(fileRepo, logger),
		services.NewLinkageResolver(linkRepo),
		services.NewStaleFileReaper(fileRepo, logger),
		services.NewJobLedger(jobRepo, logger),
		lockService,
		fileRepo,
		linkRepo,
		services.NewLoggingIndexer(logger),
		recorder,
		&cfg.Ingestion,
		services.NewScopeContextFunc(db),
		logger,
	)

	scope := database.WithScope(db, logger)
	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, db, logger).RegisterRoutes(mux)
	handlers.NewProjectsHandler(projectService, logger).RegisterRoutes(mux, scope)
	handlers.NewDataSourcesHandler(dataSourceService, logger).RegisterRoutes(mux, scope)
	handlers.NewIngestionHandler(ingestionService, logger).RegisterRoutes(mux, scope)
	handlers.NewAdminHandler(lockService, ingestionService, logger).RegisterRoutes(mux, scope)
	mux.Handle("GET /metrics", recorder.Handler())

	var handler http.Handler = mux
	handler = middleware.Recoverer(logger)(handler)
	handler = middleware.RequestLogger(logger)(handler)

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting ekaya-ingest", zap.String("addr", server.Addr), zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown failed", zap.Error(err))
		}
		// Background jobs finalize and release their locks before the pool closes.
		return ingestionService.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func migrate(cfg *config.Config, logger *zap.Logger) error {
	sqlDB, err := sql.Open("pgx", cfg.Database.URL())
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer sqlDB.Close()

	if err := database.RunMigrations(sqlDB, logger); err != nil {
		return err
	}
	return nil
}
