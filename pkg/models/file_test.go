package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFileExtension(t *testing.T) {
	tests := map[string]string{
		"README.md":            "md",
		"src/main.PY":          "py",
		"archive.tar.gz":       "gz",
		"Makefile":             "",
		".gitignore":           "",
		"trailing.":            "",
		"docs/guide/intro.pdf": "pdf",
	}
	for name, want := range tests {
		assert.Equal(t, want, FileExtension(name), name)
	}
}

func TestFileStatus_CreatesRecord(t *testing.T) {
	assert.True(t, FileStatusNew.CreatesRecord())
	assert.True(t, FileStatusCopied.CreatesRecord())
	assert.False(t, FileStatusMoved.CreatesRecord())
	assert.False(t, FileStatusChanged.CreatesRecord())
	assert.False(t, FileStatusUnchanged.CreatesRecord())
}

func TestParseResourceType(t *testing.T) {
	rt, err := ParseResourceType("DATA_SOURCE")
	assert.NoError(t, err)
	assert.Equal(t, ResourceTypeDataSource, rt)

	_, err = ParseResourceType("data_source")
	assert.Error(t, err)
}

func TestIngestionJobStatus_IsTerminal(t *testing.T) {
	assert.False(t, IngestionJobStatusInProgress.IsTerminal())
	assert.True(t, IngestionJobStatusSuccess.IsTerminal())
	assert.True(t, IngestionJobStatusFailed.IsTerminal())
}
