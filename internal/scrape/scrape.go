package scrape

import (
	"context"
	"fmt"

	"PromptHarvester/internal/domain"
)

// Strategy captures one source-specific way of discovering essay prompts.
// Scrape returns (nil, nil) when the strategy has no configured source for
// the institution or extraction yields zero candidates; that is a normal
// outcome, not a failure.
type Strategy interface {
	Name() string
	Kind() domain.SourceKind
	// Institutions lists the schools this strategy is configured for; the
	// batch catalog is the union across strategies. A strategy serving
	// every school indiscriminately returns nil.
	Institutions(ctx context.Context) ([]string, error)
	Scrape(ctx context.Context, institutionName string, year int) (*domain.SourceResult, error)
}

// Registry keeps strategies in registration order; the orchestrator iterates
// the list rather than switching on source kinds.
type Registry struct {
	strategies []Strategy
	byName     map[string]Strategy
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: map[string]Strategy{}}
}

// Register appends a strategy; re-registering a name replaces it in place.
func (r *Registry) Register(s Strategy) {
	if r.byName == nil {
		r.byName = map[string]Strategy{}
	}
	if _, ok := r.byName[s.Name()]; ok {
		for i, existing := range r.strategies {
			if existing.Name() == s.Name() {
				r.strategies[i] = s
				break
			}
		}
	} else {
		r.strategies = append(r.strategies, s)
	}
	r.byName[s.Name()] = s
}

// All returns strategies in registration order.
func (r *Registry) All() []Strategy {
	return r.strategies
}

// Resolve returns a strategy by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Strategy, error) {
	if s, ok := r.byName[name]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("strategy %s is not registered", name)
}
