package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ingest/pkg/models"
	"github.com/ekaya-inc/ekaya-ingest/pkg/services"
)

// TriggerResponse is returned as soon as an ingestion job is accepted.
type TriggerResponse struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	StartTime string `json:"start_time"`
}

// JobResponse is the public view of an ingestion job.
type JobResponse struct {
	JobID        string  `json:"job_id"`
	DataSourceID string  `json:"data_source_id"`
	ProjectID    *string `json:"project_id,omitempty"`
	Status       string  `json:"status"`
	StartTime    string  `json:"start_time"`
	EndTime      *string `json:"end_time,omitempty"`
	DurationMs   *int64  `json:"duration_ms,omitempty"`
	ErrorMessage *string `json:"error_message,omitempty"`
}

func toJobResponse(job *models.IngestionJob) JobResponse {
	resp := JobResponse{
		JobID:        job.ID.String(),
		DataSourceID: job.DataSourceID.String(),
		Status:       string(job.Status),
		StartTime:    job.StartTime.Format(time.RFC3339),
		ErrorMessage: job.ErrorMessage,
	}
	if job.ProjectID != nil {
		pid := job.ProjectID.String()
		resp.ProjectID = &pid
	}
	if job.EndTime != nil {
		end := job.EndTime.Format(time.RFC3339)
		resp.EndTime = &end
	}
	if job.Duration != nil {
		ms := job.Duration.Milliseconds()
		resp.DurationMs = &ms
	}
	return resp
}

// IngestionHandler exposes triggering and inspecting ingestion jobs.
type IngestionHandler struct {
	ingestionService services.IngestionService
	logger           *zap.Logger
}

// NewIngestionHandler creates a new ingestion handler.
func NewIngestionHandler(ingestionService services.IngestionService, logger *zap.Logger) *IngestionHandler {
	return &IngestionHandler{
		ingestionService: ingestionService,
		logger:           logger,
	}
}

// RegisterRoutes registers the ingestion handler's routes on the given mux.
func (h *IngestionHandler) RegisterRoutes(mux *http.ServeMux, scope ScopeMiddleware) {
	mux.HandleFunc("POST /api/ingestion/jobs/{dsid}", scope(h.Trigger))
	mux.HandleFunc("POST /api/ingestion/jobs/{dsid}/{pid}", scope(h.Trigger))
	mux.HandleFunc("GET /api/ingestion/jobs/{dsid}", scope(h.List))
	mux.HandleFunc("GET /api/ingestion/job/{jid}", scope(h.Get))
}

// Trigger handles POST /api/ingestion/jobs/{dsid}[/{pid}]
// Responds 202 with the IN_PROGRESS job; the crawl continues in the background.
func (h *IngestionHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	dataSourceID, ok := ParseDataSourceID(w, r, h.logger)
	if !ok {
		return
	}

	var projectID *uuid.UUID
	if r.PathValue("pid") != "" {
		pid, ok := ParseProjectID(w, r, h.logger)
		if !ok {
			return
		}
		projectID = &pid
	}

	job, err := h.ingestionService.Trigger(r.Context(), dataSourceID, projectID)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to start ingestion")
		return
	}

	resp := TriggerResponse{
		JobID:     job.ID.String(),
		Status:    string(job.Status),
		StartTime: job.StartTime.Format(time.RFC3339),
	}
	if err := WriteJSON(w, http.StatusAccepted, resp); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// List handles GET /api/ingestion/jobs/{dsid}?limit=N
func (h *IngestionHandler) List(w http.ResponseWriter, r *http.Request) {
	dataSourceID, ok := ParseDataSourceID(w, r, h.logger)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_limit", "limit must be between 1 and 500"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		limit = n
	}

	jobs, err := h.ingestionService.ListJobs(r.Context(), dataSourceID, limit)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to list ingestion jobs")
		return
	}

	data := make([]JobResponse, 0, len(jobs))
	for _, job := range jobs {
		data = append(data, toJobResponse(job))
	}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: data}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/ingestion/job/{jid}
func (h *IngestionHandler) Get(w http.ResponseWriter, r *http.Request) {
	jobID, ok := ParseJobID(w, r, h.logger)
	if !ok {
		return
	}

	job, err := h.ingestionService.GetJob(r.Context(), jobID)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to get ingestion job")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: toJobResponse(job)}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
