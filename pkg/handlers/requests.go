package handlers

import (
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ingest/pkg/models"
)

// CreateProjectRequest for POST /api/projects.
type CreateProjectRequest struct {
	Name string `json:"name"`
}

func (r CreateProjectRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
	)
}

// CreateDataSourceRequest for POST /api/datasources.
// Token is write-only; it is never returned.
type CreateDataSourceRequest struct {
	Provider   string   `json:"provider"`
	SourceType string   `json:"source_type"`
	URL        string   `json:"url"`
	Token      string   `json:"token,omitempty"`
	APIKey     string   `json:"api_key,omitempty"`
	ProjectIDs []string `json:"project_ids"`
}

func (r CreateDataSourceRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Provider, validation.Required, validation.Length(1, 50)),
		validation.Field(&r.SourceType, validation.In(
			string(models.SourceTypeCode),
			string(models.SourceTypeDocumentation),
			string(models.SourceTypeMessages),
		)),
		validation.Field(&r.URL, validation.Required, is.URL),
		validation.Field(&r.ProjectIDs, validation.Each(is.UUID)),
	)
}

// projectUUIDs converts validated project ids.
func (r CreateDataSourceRequest) projectUUIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(r.ProjectIDs))
	for _, s := range r.ProjectIDs {
		ids = append(ids, uuid.MustParse(strings.TrimSpace(s)))
	}
	return ids
}

// validateRequest writes a 400 listing the failing fields.
func validateRequest(w http.ResponseWriter, v validation.Validatable, logger *zap.Logger) bool {
	if err := v.Validate(); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "validation_failed", err.Error()); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return false
	}
	return true
}
