// force-unlock clears a resource lock left behind by a crashed ingestion worker.
//
// For data sources, any IN_PROGRESS ingestion job is marked FAILED with
// reason "force-unlocked" before the lock is released.
//
// Only use this when the worker holding the lock is gone. Against a live
// server, use POST /api/admin/locks/{type}/{id}/unlock, which stops the
// server's own job first.
//
// Usage: go run ./scripts/force-unlock [-type DATA_SOURCE] <resource-id>
//
// Database connection: Uses standard PG* environment variables
//
// Flags:
//
//	-type   Resource type of the lock (default: DATA_SOURCE)
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ingest/pkg/config"
	"github.com/ekaya-inc/ekaya-ingest/pkg/database"
	"github.com/ekaya-inc/ekaya-ingest/pkg/models"
	"github.com/ekaya-inc/ekaya-ingest/pkg/repositories"
	"github.com/ekaya-inc/ekaya-ingest/pkg/services"
)

func main() {
	typeFlag := flag.String("type", string(models.ResourceTypeDataSource), "Resource type of the lock")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s [-type DATA_SOURCE] <resource-id>\n", os.Args[0])
		os.Exit(1)
	}

	resourceID, err := uuid.Parse(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid resource ID: %v\n", err)
		os.Exit(1)
	}
	resourceType, err := models.ParseResourceType(*typeFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load("force-unlock")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := database.NewConnection(ctx, &database.Config{URL: cfg.Database.URL(), MaxConnections: 1})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	scope, err := db.Acquire(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to acquire connection: %v\n", err)
		os.Exit(1)
	}
	defer scope.Close()
	ctx = database.SetScope(ctx, scope)

	locks := services.NewResourceLockService(
		repositories.NewResourceLockRepository(),
		repositories.NewIngestionJobRepository(),
		zap.NewNop(),
	)

	result, err := locks.ForceUnlock(ctx, resourceID, resourceType)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to unlock %s %s: %v\n", resourceType, resourceID, err)
		os.Exit(1)
	}

	if !result.WasLocked {
		fmt.Printf("%s %s was not locked\n", resourceType, resourceID)
	} else {
		fmt.Printf("Unlocked %s %s\n", resourceType, resourceID)
	}
	if result.JobsFailed > 0 {
		fmt.Printf("Marked %d in-progress job(s) FAILED\n", result.JobsFailed)
	}
}
