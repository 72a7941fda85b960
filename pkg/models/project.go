// Package models contains domain types for ekaya-ingest.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Project is a downstream collection that indexes content from the data
// sources it subscribes to.
type Project struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
