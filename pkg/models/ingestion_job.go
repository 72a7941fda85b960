package models

import (
	"time"

	"github.com/google/uuid"
)

// IngestionJobStatus is the lifecycle state of an ingestion job.
// Jobs move IN_PROGRESS -> SUCCESS or IN_PROGRESS -> FAILED exactly once.
type IngestionJobStatus string

const (
	IngestionJobStatusInProgress IngestionJobStatus = "IN_PROGRESS"
	IngestionJobStatusSuccess    IngestionJobStatus = "SUCCESS"
	IngestionJobStatusFailed     IngestionJobStatus = "FAILED"
)

// IsTerminal returns true once the job has finished, successfully or not.
func (s IngestionJobStatus) IsTerminal() bool {
	return s == IngestionJobStatusSuccess || s == IngestionJobStatusFailed
}

// IngestionJob is one execution attempt against a data source. Rows are
// created at orchestration start, finalized once, and never deleted.
type IngestionJob struct {
	ID           uuid.UUID          `json:"id"`
	DataSourceID uuid.UUID          `json:"data_source_id"`
	ProjectID    *uuid.UUID         `json:"project_id,omitempty"` // set when ingestion was scoped to one project
	Status       IngestionJobStatus `json:"status"`
	StartTime    time.Time          `json:"start_time"`
	EndTime      *time.Time         `json:"end_time,omitempty"`
	Duration     *time.Duration     `json:"duration,omitempty"`
	ErrorMessage *string            `json:"error_message,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// Finish returns the end time and duration for a job completing at now.
func (j *IngestionJob) Finish(now time.Time) (time.Time, time.Duration) {
	return now, now.Sub(j.StartTime)
}
