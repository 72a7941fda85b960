package services

import (
	"context"

	"github.com/ekaya-inc/ekaya-ingest/pkg/database"
)

// ScopeContextFunc acquires a pooled database connection for work that outlives a request.
// Returns the scoped context, a cleanup function (MUST be called), and any error.
type ScopeContextFunc func(ctx context.Context) (context.Context, func(), error)

// NewScopeContextFunc creates a ScopeContextFunc that uses the given database.
// Every call checks out its own connection; concurrent jobs never share one.
func NewScopeContextFunc(db *database.DB) ScopeContextFunc {
	return func(ctx context.Context) (context.Context, func(), error) {
		scope, err := db.Acquire(ctx)
		if err != nil {
			return nil, nil, err
		}
		return database.SetScope(ctx, scope), scope.Close, nil
	}
}
