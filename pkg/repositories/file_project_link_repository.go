package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// FileProjectLinkRepository records which projects have received a file.
// Links are never updated; they disappear only when their file is deleted.
type FileProjectLinkRepository interface {
	ListProjectIDs(ctx context.Context, fileID uuid.UUID) ([]uuid.UUID, error)

	// CreateLinks inserts links for fileID to each project, ignoring existing ones.
	// Returns the number of links actually created.
	CreateLinks(ctx context.Context, fileID uuid.UUID, projectIDs []uuid.UUID) (int64, error)
}

type fileProjectLinkRepository struct{}

// NewFileProjectLinkRepository creates a new file-project link repository.
func NewFileProjectLinkRepository() FileProjectLinkRepository {
	return &fileProjectLinkRepository{}
}

var _ FileProjectLinkRepository = (*fileProjectLinkRepository)(nil)

func (r *fileProjectLinkRepository) ListProjectIDs(ctx context.Context, fileID uuid.UUID) ([]uuid.UUID, error) {
	q, err := querier(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `
		SELECT project_id
		FROM ingest_file_project_links
		WHERE file_id = $1`, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to list file links: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("failed to scan file links: %w", err)
	}
	return ids, nil
}

func (r *fileProjectLinkRepository) CreateLinks(ctx context.Context, fileID uuid.UUID, projectIDs []uuid.UUID) (int64, error) {
	if len(projectIDs) == 0 {
		return 0, nil
	}

	q, err := querier(ctx)
	if err != nil {
		return 0, err
	}

	tag, err := q.Exec(ctx, `
		INSERT INTO ingest_file_project_links (file_id, project_id)
		SELECT $1, unnest($2::uuid[])
		ON CONFLICT DO NOTHING`, fileID, projectIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to create file links: %w", err)
	}
	return tag.RowsAffected(), nil
}
