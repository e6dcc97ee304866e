package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/alanyoungcy/hftbot/internal/domain"
)

// Built-in generator names.
const (
	NameHeuristic   = "heuristic"
	NameProbability = "probability"
)

// Factory builds a generator from its config. scorer is nil when no scoring
// service is configured.
type Factory func(cfg Config, scorer domain.ScoringService) (Generator, error)

// Registry maps generator names to factories so that runs can select and
// compare variants by name. It is safe for concurrent use.
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

// NewRegistry returns a Registry with the built-in generators registered.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register(NameHeuristic, func(cfg Config, _ domain.ScoringService) (Generator, error) {
		return NewHeuristic(cfg), nil
	})
	r.Register(NameProbability, func(cfg Config, scorer domain.ScoringService) (Generator, error) {
		if scorer == nil {
			return nil, fmt.Errorf("strategy %q: scoring service required", NameProbability)
		}
		return NewProbabilityGated(cfg, scorer), nil
	})
	return r
}

// Register adds a factory under name, replacing any existing one.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Build constructs the generator registered under cfg.Name.
func (r *Registry) Build(cfg Config, scorer domain.ScoringService) (Generator, error) {
	r.mu.RLock()
	f, ok := r.factories[cfg.Name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("strategy %q: not registered", cfg.Name)
	}
	return f(cfg, scorer)
}

// List returns the registered names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
