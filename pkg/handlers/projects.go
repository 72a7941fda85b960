package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ingest/pkg/services"
)

// ProjectsHandler handles project HTTP requests.
type ProjectsHandler struct {
	projectService services.ProjectService
	logger         *zap.Logger
}

// NewProjectsHandler creates a new projects handler.
func NewProjectsHandler(projectService services.ProjectService, logger *zap.Logger) *ProjectsHandler {
	return &ProjectsHandler{
		projectService: projectService,
		logger:         logger,
	}
}

// RegisterRoutes registers the projects handler's routes on the given mux.
func (h *ProjectsHandler) RegisterRoutes(mux *http.ServeMux, scope ScopeMiddleware) {
	mux.HandleFunc("POST /api/projects", scope(h.Create))
	mux.HandleFunc("GET /api/projects/{pid}", scope(h.Get))
}

// Create handles POST /api/projects
func (h *ProjectsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if !decodeJSON(w, r, &req, h.logger) || !validateRequest(w, req, h.logger) {
		return
	}

	project, err := h.projectService.Create(r.Context(), req.Name)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to create project")
		return
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: project}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/projects/{pid}
func (h *ProjectsHandler) Get(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	project, err := h.projectService.Get(r.Context(), projectID)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to get project")
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: project}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
