// Package ports defines the core interfaces that form the contract between
// the domain/application layers and the infrastructure layer.
// These interfaces enable dependency inversion and make the system testable.
package ports

import "github.com/ahrav/go-acj/internal/domain"

// SelectionState is the read-only view of engine state a PairSelector may
// consult. Implementations must not retain it beyond a single Select call.
type SelectionState interface {
	// Registry exposes the current item qualities.
	Registry() *domain.Registry

	// Log exposes the comparisons recorded so far.
	Log() *domain.ComparisonLog
}

// PairSelector decides which two items to compare next.
// Selectors are owned by a single engine and are called with the engine's
// lock held, so implementations need no synchronisation of their own.
type PairSelector interface {
	// Name returns the policy identifier, e.g. "adaptive" or "exclusion".
	Name() string

	// Select returns the next pair of distinct items.
	//
	// It returns domain.ErrInsufficientItems when fewer than two items exist,
	// and domain.ErrPairsExhausted when the policy has no pair left to offer.
	// The latter is a normal terminal condition.
	Select(state SelectionState) (domain.Pair, error)
}

// SelectorFactory creates a PairSelector from a random seed.
// The seed makes selection reproducible across runs.
type SelectorFactory func(seed uint64) (PairSelector, error)

// SelectorRegistry manages the creation of pair selectors by policy name.
type SelectorRegistry interface {
	// CreateSelector instantiates the named policy.
	CreateSelector(policy string, seed uint64) (PairSelector, error)

	// RegisterSelectorFactory adds or replaces the factory for a policy.
	RegisterSelectorFactory(policy string, factory SelectorFactory) error

	// SupportedPolicies lists every registered policy name.
	SupportedPolicies() []string
}
