package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ingest/pkg/models"
)

// ParseProjectID extracts and validates the project ID from the request path.
// Returns the parsed UUID and true on success, or uuid.Nil and false on error
// (after writing an error response).
// Expects path parameter: pid
func ParseProjectID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "pid", "invalid_project_id", "Invalid project ID format", logger)
}

// ParseDataSourceID extracts the data source ID. Expects path parameter: dsid
func ParseDataSourceID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "dsid", "invalid_data_source_id", "Invalid data source ID format", logger)
}

// ParseJobID extracts the ingestion job ID. Expects path parameter: jid
func ParseJobID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "jid", "invalid_job_id", "Invalid job ID format", logger)
}

// ParseLockKey extracts the resource type and id of a lock.
// Expects path parameters: rtype, rid
func ParseLockKey(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (models.ResourceType, uuid.UUID, bool) {
	resourceType, err := models.ParseResourceType(r.PathValue("rtype"))
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_resource_type", err.Error()); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return "", uuid.Nil, false
	}

	resourceID, ok := parseUUID(w, r, "rid", "invalid_resource_id", "Invalid resource ID format", logger)
	if !ok {
		return "", uuid.Nil, false
	}
	return resourceType, resourceID, true
}

// parseUUID is the internal helper that does the actual parsing work.
func parseUUID(w http.ResponseWriter, r *http.Request, pathParam, errorCode, errorMessage string, logger *zap.Logger) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(pathParam))
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, errorCode, errorMessage); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return uuid.Nil, false
	}
	return id, true
}
