package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

// ScopeKey is the context key for storing the scoped database connection.
const ScopeKey contextKey = "dbScope"

// Querier is the subset of pgx shared by pooled connections and transactions.
// Repositories depend on it so they work unchanged inside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Scope holds one connection checked out of the pool for a request or a background job.
// Concurrent jobs never share a Scope.
type Scope struct {
	Conn *pgxpool.Conn
	tx   pgx.Tx
}

// Q returns the active transaction if one is open, otherwise the connection.
func (s *Scope) Q() Querier {
	if s.tx != nil {
		return s.tx
	}
	return s.Conn
}

// Close releases the connection back to the pool. Safe to call more than once.
func (s *Scope) Close() {
	if s.Conn == nil {
		return
	}
	if s.tx != nil {
		_ = s.tx.Rollback(context.Background())
		s.tx = nil
	}
	s.Conn.Release()
	s.Conn = nil
}

// Acquire checks a connection out of the pool.
// The returned Scope MUST be closed with defer scope.Close().
func (db *DB) Acquire(ctx context.Context) (*Scope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return &Scope{Conn: conn}, nil
}

// GetScope retrieves the scoped database connection from context.
// Returns nil and false if not present.
func GetScope(ctx context.Context) (*Scope, bool) {
	scope, ok := ctx.Value(ScopeKey).(*Scope)
	return scope, ok && scope != nil && scope.Conn != nil
}

// SetScope stores the scoped database connection in context.
func SetScope(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, ScopeKey, scope)
}

// WithTx runs fn inside a transaction on the scope carried by ctx.
// The transaction commits when fn returns nil and rolls back otherwise.
// Nested calls reuse the outer transaction.
func WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	scope, ok := GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}
	if scope.tx != nil {
		return fn(ctx)
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	scope.tx = tx
	defer func() {
		scope.tx = nil
		tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op
	}()

	if err := fn(ctx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
