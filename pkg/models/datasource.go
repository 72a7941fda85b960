package models

import (
	"time"

	"github.com/google/uuid"
)

// SourceType describes what kind of content a data source holds.
type SourceType string

const (
	SourceTypeCode          SourceType = "CODE"
	SourceTypeDocumentation SourceType = "DOCUMENTATION"
	SourceTypeMessages      SourceType = "MESSAGES"
)

// DataSource is an external content origin that ingestion pulls files from.
// Token and APIKey are decrypted by the service layer and never serialized.
type DataSource struct {
	ID         uuid.UUID  `json:"id"`
	Provider   string     `json:"provider"` // "github", later "bitbucket", "confluence"
	SourceType SourceType `json:"source_type"`
	URL        string     `json:"url"`
	Token      string     `json:"-"`
	APIKey     string     `json:"-"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// HasCredentials reports whether the data source carries a token for private content.
func (d *DataSource) HasCredentials() bool {
	return d.Token != "" || d.APIKey != ""
}
