package domain

import (
	"cmp"
	"slices"
)

// Registry holds the current quality score for every item in a fixed item
// set. The set is established at construction and never changes; every
// item has a defined quality from the moment the registry exists.
//
// Registry is not safe for concurrent use. The engine serialises access.
type Registry struct {
	order   []ItemID
	quality map[ItemID]float64
}

// NewRegistry creates a registry for the given items with every quality
// initialised to 0.0. Items must be non-empty and distinct. Fewer than two
// items is permitted here; pair selection reports ErrInsufficientItems.
func NewRegistry(items []ItemID) (*Registry, error) {
	r := &Registry{
		order:   make([]ItemID, 0, len(items)),
		quality: make(map[ItemID]float64, len(items)),
	}
	for _, id := range items {
		if id == "" {
			return nil, NewItemError(id, "NewRegistry", ErrEmptyItemID)
		}
		if _, dup := r.quality[id]; dup {
			return nil, NewItemError(id, "NewRegistry", ErrDuplicateItem)
		}
		r.quality[id] = 0.0
		r.order = append(r.order, id)
	}
	return r, nil
}

// Quality returns the current quality of id.
func (r *Registry) Quality(id ItemID) (float64, error) {
	q, ok := r.quality[id]
	if !ok {
		return 0, NewItemError(id, "Quality", ErrUnknownItem)
	}
	return q, nil
}

// SetQuality replaces the quality of id.
func (r *Registry) SetQuality(id ItemID, value float64) error {
	if _, ok := r.quality[id]; !ok {
		return NewItemError(id, "SetQuality", ErrUnknownItem)
	}
	r.quality[id] = value
	return nil
}

// Contains reports whether id belongs to the item set.
func (r *Registry) Contains(id ItemID) bool {
	_, ok := r.quality[id]
	return ok
}

// Len returns the number of items.
func (r *Registry) Len() int { return len(r.order) }

// Items returns the item identifiers in construction order.
func (r *Registry) Items() []ItemID { return slices.Clone(r.order) }

// Snapshot returns a copy of the quality table.
func (r *Registry) Snapshot() map[ItemID]float64 {
	out := make(map[ItemID]float64, len(r.quality))
	for id, q := range r.quality {
		out[id] = q
	}
	return out
}

// Ranking returns every item ordered by descending quality. Equal qualities
// are ordered by identifier so the ranking is reproducible.
func (r *Registry) Ranking() []ItemScore {
	out := make([]ItemScore, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, ItemScore{Item: id, Quality: r.quality[id]})
	}
	slices.SortFunc(out, func(a, b ItemScore) int {
		if c := cmp.Compare(b.Quality, a.Quality); c != 0 {
			return c
		}
		return cmp.Compare(a.Item, b.Item)
	})
	return out
}

// Ascending returns every item ordered by ascending quality with ties broken
// by identifier. Adaptive selectors scan this ordering for the closest pair.
func (r *Registry) Ascending() []ItemScore {
	out := r.Ranking()
	slices.SortFunc(out, func(a, b ItemScore) int {
		if c := cmp.Compare(a.Quality, b.Quality); c != 0 {
			return c
		}
		return cmp.Compare(a.Item, b.Item)
	})
	return out
}
