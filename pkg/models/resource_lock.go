package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ResourceType names the kind of record a resource lock protects.
type ResourceType string

const (
	ResourceTypeDataSource   ResourceType = "DATA_SOURCE"
	ResourceTypeConversation ResourceType = "CONVERSATION"
)

// ValidResourceTypes contains all valid resource type values.
var ValidResourceTypes = []ResourceType{
	ResourceTypeDataSource,
	ResourceTypeConversation,
}

// ParseResourceType validates a resource type string.
func ParseResourceType(s string) (ResourceType, error) {
	for _, v := range ValidResourceTypes {
		if string(v) == s {
			return v, nil
		}
	}
	return "", fmt.Errorf("invalid resource type %q", s)
}

// ResourceLock is the persisted mutual-exclusion row for one (resource id, type) pair.
// Rows are created lazily on first acquisition and reused forever after.
type ResourceLock struct {
	ResourceID   uuid.UUID    `json:"resource_id"`
	ResourceType ResourceType `json:"resource_type"`
	Locked       bool         `json:"locked"`
	UpdatedAt    time.Time    `json:"updated_at"`
}
