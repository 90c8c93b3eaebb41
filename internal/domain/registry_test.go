package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry(t *testing.T) {
	tests := []struct {
		name    string
		items   []ItemID
		wantErr error
		wantLen int
	}{
		{name: "three items", items: []ItemID{"a", "b", "c"}, wantLen: 3},
		{name: "single item is allowed", items: []ItemID{"a"}, wantLen: 1},
		{name: "empty set is allowed", items: nil, wantLen: 0},
		{name: "duplicate rejected", items: []ItemID{"a", "b", "a"}, wantErr: ErrDuplicateItem},
		{name: "empty id rejected", items: []ItemID{"a", ""}, wantErr: ErrEmptyItemID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRegistry(tt.items)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, r)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLen, r.Len())
			for _, id := range tt.items {
				q, err := r.Quality(id)
				require.NoError(t, err)
				assert.Zero(t, q, "quality starts at zero")
			}
		})
	}
}

func TestRegistryQuality(t *testing.T) {
	r, err := NewRegistry([]ItemID{"a", "b"})
	require.NoError(t, err)

	require.NoError(t, r.SetQuality("a", 1.25))
	q, err := r.Quality("a")
	require.NoError(t, err)
	assert.Equal(t, 1.25, q)

	_, err = r.Quality("zzz")
	assert.ErrorIs(t, err, ErrUnknownItem)

	err = r.SetQuality("zzz", 3)
	assert.ErrorIs(t, err, ErrUnknownItem)
	assert.False(t, r.Contains("zzz"))
	assert.True(t, r.Contains("b"))
}

func TestRegistryItemsAreCopies(t *testing.T) {
	r, err := NewRegistry([]ItemID{"a", "b"})
	require.NoError(t, err)

	items := r.Items()
	items[0] = "mutated"
	assert.Equal(t, []ItemID{"a", "b"}, r.Items())

	snap := r.Snapshot()
	snap["a"] = 99
	q, _ := r.Quality("a")
	assert.Zero(t, q)
}

func TestRegistryRanking(t *testing.T) {
	r, err := NewRegistry([]ItemID{"d", "c", "b", "a"})
	require.NoError(t, err)
	require.NoError(t, r.SetQuality("a", -1))
	require.NoError(t, r.SetQuality("b", 2))
	require.NoError(t, r.SetQuality("c", 0.5))
	require.NoError(t, r.SetQuality("d", 0.5))

	ranking := r.Ranking()
	got := make([]ItemID, len(ranking))
	for i, s := range ranking {
		got[i] = s.Item
	}
	assert.Equal(t, []ItemID{"b", "c", "d", "a"}, got, "descending with id tie-break")

	asc := r.Ascending()
	got = got[:0]
	for _, s := range asc {
		got = append(got, s.Item)
	}
	assert.Equal(t, []ItemID{"a", "c", "d", "b"}, got, "ascending with id tie-break")
}

func TestRegistryLookupScales(t *testing.T) {
	items := make([]ItemID, 500)
	for i := range items {
		items[i] = ItemID(fmt.Sprintf("img_%03d.png", i))
	}
	r, err := NewRegistry(items)
	require.NoError(t, err)
	assert.Equal(t, 500, r.Len())
	require.NoError(t, r.SetQuality("img_499.png", 4))
	q, err := r.Quality("img_499.png")
	require.NoError(t, err)
	assert.Equal(t, 4.0, q)
}
