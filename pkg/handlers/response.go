package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ingest/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-ingest/pkg/crypto"
	"github.com/ekaya-inc/ekaya-ingest/pkg/services"
)

// ScopeMiddleware wraps a handler with a request-scoped database connection.
type ScopeMiddleware func(http.HandlerFunc) http.HandlerFunc

// ApiResponse wraps successful payloads.
type ApiResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// writeServiceError maps a service error onto an HTTP status.
// Unrecognized errors are logged and reported as 500 with a generic message.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error, fallback string) {
	status, code, message := http.StatusInternalServerError, "internal_error", fallback

	switch {
	case errors.Is(err, apperrors.ErrNotFound), errors.Is(err, apperrors.ErrLockNotFound):
		status, code, message = http.StatusNotFound, "not_found", err.Error()
	case errors.Is(err, apperrors.ErrAlreadyRunning):
		status, code, message = http.StatusConflict, "already_running", err.Error()
	case errors.Is(err, apperrors.ErrConflict):
		status, code, message = http.StatusConflict, "conflict", err.Error()
	case errors.Is(err, apperrors.ErrInvalidSourceURL):
		status, code, message = http.StatusBadRequest, "invalid_source_url", err.Error()
	case errors.Is(err, apperrors.ErrUnknownProvider):
		status, code, message = http.StatusBadRequest, "unknown_provider", err.Error()
	case errors.Is(err, services.ErrShuttingDown):
		status, code, message = http.StatusServiceUnavailable, "shutting_down", err.Error()
	case errors.Is(err, crypto.ErrDecryptionFailed):
		message = "Stored credentials could not be decrypted"
	}

	if status >= http.StatusInternalServerError {
		logger.Error(fallback, zap.Error(err))
	}
	if err := ErrorResponse(w, status, code, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}

// decodeJSON reads the request body into dst, writing a 400 on malformed input.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return false
	}
	return true
}
