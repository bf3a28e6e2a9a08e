// Package provider defines the narrow capability every enrichment provider
// adapter maps its responses into before the waterfall sees them.
package provider

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/sells-group/leadgen-cli/internal/model"
)

// Company identifies the business an address is looked up for.
type Company struct {
	Name    string
	Domain  string
	Website string
}

// Result is a normalized lookup result. Outcome is never OutcomeError;
// failures are returned as errors instead.
type Result struct {
	Outcome    model.AttemptOutcome `json:"outcome"`
	Email      string               `json:"email,omitempty"`
	Confidence int                  `json:"confidence,omitempty"`
	Raw        json.RawMessage      `json:"raw,omitempty"`
}

// NotFound is the empty lookup result.
func NotFound(raw json.RawMessage) *Result {
	return &Result{Outcome: model.OutcomeNotFound, Raw: raw}
}

// Verification is a normalized verifier verdict.
type Verification struct {
	Valid  bool            `json:"valid"`
	Status string          `json:"status"`
	Raw    json.RawMessage `json:"raw,omitempty"`
}

// Provider finds and verifies contact addresses for a company.
type Provider interface {
	// Name matches the provider's entry in the waterfall order.
	Name() string
	Lookup(ctx context.Context, company Company) (*Result, error)
	Verify(ctx context.Context, email string) (*Verification, error)
}

// Registry manages available enrichment providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates a registry holding ps.
func NewRegistry(ps ...Provider) *Registry {
	r := &Registry{
		providers: make(map[string]Provider),
	}
	for _, p := range ps {
		r.Register(p)
	}
	return r
}

// Register adds a provider to the registry.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns a provider by name, or nil if not found.
func (r *Registry) Get(name string) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providers[name]
}

// List returns all registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
