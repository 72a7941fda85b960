package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ingest/pkg/models"
	"github.com/ekaya-inc/ekaya-ingest/pkg/services"
)

// AdminHandler exposes operator recovery endpoints.
type AdminHandler struct {
	lockService      services.ResourceLockService
	ingestionService services.IngestionService
	logger           *zap.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(lockService services.ResourceLockService, ingestionService services.IngestionService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		lockService:      lockService,
		ingestionService: ingestionService,
		logger:           logger,
	}
}

// RegisterRoutes registers the admin handler's routes on the given mux.
func (h *AdminHandler) RegisterRoutes(mux *http.ServeMux, scope ScopeMiddleware) {
	mux.HandleFunc("POST /api/admin/locks/{rtype}/{rid}/unlock", scope(h.Unlock))
}

// Unlock handles POST /api/admin/locks/{rtype}/{rid}/unlock
// Clears a stranded lock; for data sources any IN_PROGRESS job is failed too.
// Jobs this process is still running are cancelled and awaited first.
func (h *AdminHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	resourceType, resourceID, ok := ParseLockKey(w, r, h.logger)
	if !ok {
		return
	}

	cancelled := 0
	if resourceType == models.ResourceTypeDataSource {
		n, err := h.ingestionService.CancelDataSource(r.Context(), resourceID)
		if err != nil {
			writeServiceError(w, h.logger, err, "Failed to cancel running ingestion")
			return
		}
		cancelled = n
	}

	result, err := h.lockService.ForceUnlock(r.Context(), resourceID, resourceType)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to unlock resource")
		return
	}
	result.JobsCancelled = cancelled

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
