package application

import (
	"fmt"
	"slices"
	"sync"

	"github.com/ahrav/go-acj/infrastructure/selectors"
	"github.com/ahrav/go-acj/internal/ports"
)

// Verify interface compliance at compile time.
var _ ports.SelectorRegistry = (*SelectorRegistry)(nil)

// SelectorRegistry implements ports.SelectorRegistry, providing a factory
// for pair selectors keyed by policy name. It comes with the adaptive and
// exclusion policies registered and accepts custom policies at runtime.
type SelectorRegistry struct {
	// factories maps policy names to their factory functions.
	factories map[string]ports.SelectorFactory
	// mu protects concurrent access to the factories map.
	mu sync.RWMutex
}

// NewSelectorRegistry creates a registry with the built-in policies.
func NewSelectorRegistry() *SelectorRegistry {
	r := &SelectorRegistry{factories: make(map[string]ports.SelectorFactory)}
	r.registerBuiltinFactories()
	return r
}

func (r *SelectorRegistry) registerBuiltinFactories() {
	r.factories[selectors.PolicyAdaptive] = func(seed uint64) (ports.PairSelector, error) {
		return selectors.NewSeededAdaptiveSelector(seed), nil
	}
	// The exclusion policy is deterministic; the seed is unused.
	r.factories[selectors.PolicyExclusion] = func(uint64) (ports.PairSelector, error) {
		return selectors.NewExclusionSelector(), nil
	}
}

// CreateSelector instantiates the selector registered under policy.
func (r *SelectorRegistry) CreateSelector(policy string, seed uint64) (ports.PairSelector, error) {
	r.mu.RLock()
	factory, exists := r.factories[policy]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unsupported selection policy: %q", policy)
	}

	sel, err := factory(seed)
	if err != nil {
		return nil, fmt.Errorf("failed to create selector %q: %w", policy, err)
	}
	return sel, nil
}

// RegisterSelectorFactory registers a factory for policy, replacing any
// existing registration.
func (r *SelectorRegistry) RegisterSelectorFactory(policy string, factory ports.SelectorFactory) error {
	if policy == "" {
		return fmt.Errorf("policy name cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("factory function cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[policy] = factory
	return nil
}

// SupportedPolicies returns the registered policy names in sorted order.
func (r *SelectorRegistry) SupportedPolicies() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	policies := make([]string, 0, len(r.factories))
	for policy := range r.factories {
		policies = append(policies, policy)
	}
	slices.Sort(policies)
	return policies
}
