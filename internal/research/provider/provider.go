// Package provider defines the interface and registry for marketplace
// search providers used by the market data acquisition selector.
package provider

import (
	"context"
	"sync"

	"github.com/sohag-chowwdhury/wisebuy-sub002/internal/model"
)

// Provider is a single marketplace search backend (one per platform).
type Provider interface {
	// Platform returns the platform identifier ("amazon", "ebay", ...).
	Platform() string
	// Configured reports whether API credentials are present. Unconfigured
	// providers are skipped; if no provider is configured the selector
	// falls back to AI estimation.
	Configured() bool
	// Search returns verified listings for the product query. A provider
	// that finds nothing returns an empty slice and no error.
	Search(ctx context.Context, query model.SearchQuery) ([]model.PlatformListing, error)
}

// Registry manages the available marketplace providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	order     []string
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider to the registry. Registration order is preserved
// for deterministic iteration.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[p.Platform()]; !exists {
		r.order = append(r.order, p.Platform())
	}
	r.providers[p.Platform()] = p
}

// Get returns a provider by platform name, or nil if not found.
func (r *Registry) Get(platform string) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providers[platform]
}

// List returns all registered providers in registration order.
func (r *Registry) List() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.providers[name])
	}
	return out
}

// AnyConfigured reports whether at least one registered provider has
// credentials. This is the policy input for real-vs-AI acquisition.
func (r *Registry) AnyConfigured() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.providers {
		if p.Configured() {
			return true
		}
	}
	return false
}
