package provider

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ekaya-inc/ekaya-ingest/pkg/apperrors"
)

// Info describes a registered provider.
type Info struct {
	Name        string `json:"name"`         // "github"
	DisplayName string `json:"display_name"` // "GitHub"
	Description string `json:"description"`
}

// Registration pairs provider info with the factory that builds its crawler.
type Registration struct {
	Info    Info
	Factory func(opts Options) (Crawler, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Registration)
)

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register is called by each provider's init() function.
func Register(reg Registration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[normalize(reg.Info.Name)] = reg
}

// Get builds a crawler for the named provider.
// Returns apperrors.ErrUnknownProvider if nothing is registered under name.
func Get(name string, opts Options) (Crawler, error) {
	registryMu.RLock()
	reg, ok := registry[normalize(name)]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%q: %w", name, apperrors.ErrUnknownProvider)
	}
	return reg.Factory(opts)
}

// IsRegistered checks if a provider is available.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[normalize(name)]
	return ok
}

// RegisteredProviders returns info for all registered providers, sorted by name.
func RegisteredProviders() []Info {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]Info, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}
