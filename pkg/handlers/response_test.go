package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/ekaya-ingest/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-ingest/pkg/crypto"
	"github.com/ekaya-inc/ekaya-ingest/pkg/services"
)

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteJSON(rec, http.StatusCreated, map[string]int{"n": 1}))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"n":1}`, rec.Body.String())
}

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		err      error
		wantCode int
		wantErr  string
		wantLog  bool
	}{
		{fmt.Errorf("job: %w", apperrors.ErrNotFound), http.StatusNotFound, "not_found", false},
		{apperrors.ErrLockNotFound, http.StatusNotFound, "not_found", false},
		{apperrors.ErrAlreadyRunning, http.StatusConflict, "already_running", false},
		{apperrors.ErrConflict, http.StatusConflict, "conflict", false},
		{apperrors.ErrInvalidSourceURL, http.StatusBadRequest, "invalid_source_url", false},
		{apperrors.ErrUnknownProvider, http.StatusBadRequest, "unknown_provider", false},
		{services.ErrShuttingDown, http.StatusServiceUnavailable, "shutting_down", true},
		{crypto.ErrDecryptionFailed, http.StatusInternalServerError, "internal_error", true},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error", true},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			core, logs := observer.New(zap.ErrorLevel)
			rec := httptest.NewRecorder()
			writeServiceError(rec, zap.New(core), tt.err, "Failed to do it")

			assert.Equal(t, tt.wantCode, rec.Code)
			var body map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.wantErr, body["error"])
			assert.Equal(t, tt.wantLog, logs.Len() > 0)
		})
	}
}
