package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ingest/pkg/adapters/provider"
	"github.com/ekaya-inc/ekaya-ingest/pkg/models"
	"github.com/ekaya-inc/ekaya-ingest/pkg/services"
)

// DataSourceResponse is the public view of a data source. Credentials are
// reported only as present or absent.
type DataSourceResponse struct {
	DataSourceID   string   `json:"data_source_id"`
	Provider       string   `json:"provider"`
	SourceType     string   `json:"source_type"`
	URL            string   `json:"url"`
	HasCredentials bool     `json:"has_credentials"`
	ProjectIDs     []string `json:"project_ids,omitempty"`
	CreatedAt      string   `json:"created_at"`
	UpdatedAt      string   `json:"updated_at"`
}

func toDataSourceResponse(ds *models.DataSource, projectIDs []string) DataSourceResponse {
	return DataSourceResponse{
		DataSourceID:   ds.ID.String(),
		Provider:       ds.Provider,
		SourceType:     string(ds.SourceType),
		URL:            ds.URL,
		HasCredentials: ds.HasCredentials(),
		ProjectIDs:     projectIDs,
		CreatedAt:      ds.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:      ds.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// DataSourcesHandler handles data source HTTP requests.
type DataSourcesHandler struct {
	dataSourceService services.DataSourceService
	logger            *zap.Logger
}

// NewDataSourcesHandler creates a new data sources handler.
func NewDataSourcesHandler(dataSourceService services.DataSourceService, logger *zap.Logger) *DataSourcesHandler {
	return &DataSourcesHandler{
		dataSourceService: dataSourceService,
		logger:            logger,
	}
}

// RegisterRoutes registers the data sources handler's routes on the given mux.
func (h *DataSourcesHandler) RegisterRoutes(mux *http.ServeMux, scope ScopeMiddleware) {
	mux.HandleFunc("GET /api/providers", h.ListProviders)
	mux.HandleFunc("POST /api/datasources", scope(h.Create))
	mux.HandleFunc("GET /api/datasources/{dsid}", scope(h.Get))
	mux.HandleFunc("POST /api/datasources/{dsid}/projects/{pid}", scope(h.Subscribe))
}

// ListProviders handles GET /api/providers
func (h *DataSourcesHandler) ListProviders(w http.ResponseWriter, r *http.Request) {
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: provider.RegisteredProviders()}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Create handles POST /api/datasources
func (h *DataSourcesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateDataSourceRequest
	if !decodeJSON(w, r, &req, h.logger) || !validateRequest(w, req, h.logger) {
		return
	}

	ds, err := h.dataSourceService.Create(r.Context(), services.CreateDataSourceInput{
		Provider:   req.Provider,
		SourceType: models.SourceType(req.SourceType),
		URL:        req.URL,
		Token:      req.Token,
		APIKey:     req.APIKey,
		ProjectIDs: req.projectUUIDs(),
	})
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to create data source")
		return
	}

	resp := toDataSourceResponse(ds, req.ProjectIDs)
	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: resp}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Get handles GET /api/datasources/{dsid}
func (h *DataSourcesHandler) Get(w http.ResponseWriter, r *http.Request) {
	dataSourceID, ok := ParseDataSourceID(w, r, h.logger)
	if !ok {
		return
	}

	ds, err := h.dataSourceService.Get(r.Context(), dataSourceID)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to get data source")
		return
	}

	projectIDs, err := h.dataSourceService.ListProjectIDs(r.Context(), dataSourceID)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to list data source projects")
		return
	}
	ids := make([]string, 0, len(projectIDs))
	for _, id := range projectIDs {
		ids = append(ids, id.String())
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: toDataSourceResponse(ds, ids)}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Subscribe handles POST /api/datasources/{dsid}/projects/{pid}
// Subscribing an already-subscribed project succeeds.
func (h *DataSourcesHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	dataSourceID, ok := ParseDataSourceID(w, r, h.logger)
	if !ok {
		return
	}
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.dataSourceService.Subscribe(r.Context(), dataSourceID, projectID); err != nil {
		writeServiceError(w, h.logger, err, "Failed to subscribe project")
		return
	}

	resp := ApiResponse{Success: true, Message: "Project subscribed"}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
