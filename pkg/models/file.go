package models

import (
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// File is a content-addressable record of one piece of content seen in a data source.
// Within a data source a path resolves to at most one File; the same hash may
// appear at several paths when content was copied.
type File struct {
	ID            uuid.UUID  `json:"id"`
	DataSourceID  uuid.UUID  `json:"data_source_id"`
	Hash          string     `json:"hash"`
	Size          int64      `json:"size"`
	Path          string     `json:"path"`
	Name          string     `json:"name"`
	Extension     string     `json:"extension"`
	Category      string     `json:"category"` // CODE or DOCS
	LastSeenJobID *uuid.UUID `json:"last_seen_job_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// FileStatus is the outcome of comparing a crawled file with persisted state.
type FileStatus string

const (
	FileStatusNew                 FileStatus = "NEW"
	FileStatusUnchanged           FileStatus = "UNCHANGED"
	FileStatusChanged             FileStatus = "CHANGED"
	FileStatusMoved               FileStatus = "MOVED"
	FileStatusCopied              FileStatus = "COPIED"
	FileStatusMissingProjectLinks FileStatus = "MISSING_PROJECT_LINKS"
)

// CreatesRecord returns true for statuses that persist a brand new File row.
func (s FileStatus) CreatesRecord() bool {
	return s == FileStatusNew || s == FileStatusCopied
}

// FileProjectLink marks that a file's content has been delivered to a project's index.
type FileProjectLink struct {
	FileID    uuid.UUID `json:"file_id"`
	ProjectID uuid.UUID `json:"project_id"`
	CreatedAt time.Time `json:"created_at"`
}

// FileExtension returns the lower-cased extension of name without the dot,
// or "" when the name has none. Dotfiles such as ".gitignore" have no extension.
func FileExtension(name string) string {
	base := path.Base(name)
	idx := strings.LastIndex(base, ".")
	if idx <= 0 || idx == len(base)-1 {
		return ""
	}
	return strings.ToLower(base[idx+1:])
}
