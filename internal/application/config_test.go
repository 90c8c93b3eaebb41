package application

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-acj/infrastructure/selectors"
	"github.com/ahrav/go-acj/internal/domain"
)

var loaderClock = time.Date(2024, 1, 2, 3, 4, 5, 6, time.UTC)

func newTestLoader(t *testing.T) *ConfigLoader {
	t.Helper()
	cl, err := NewConfigLoader(NewSelectorRegistry())
	require.NoError(t, err)
	cl.now = func() time.Time { return loaderClock }
	return cl
}

func TestConfigLoader_Defaults(t *testing.T) {
	cl := newTestLoader(t)

	config, err := cl.LoadFromReader(strings.NewReader(`
version: "1.0.0"
session:
  name: pilot
items:
  list: [a.png, b.png, c.png]
`))
	require.NoError(t, err)

	assert.Equal(t, DefaultPolicy, config.Selection.Policy)
	assert.Equal(t, uint64(loaderClock.UnixNano()), config.Selection.Seed)
	assert.Equal(t, DefaultStep, config.Updater.Step)
	assert.Equal(t, DefaultPairRepeats, config.Trials.PairRepeats)
	assert.Equal(t, DefaultRoundType, config.Session.RoundType)
	assert.Equal(t, DefaultOutputDir, config.Output.Dir)
	assert.Equal(t, []string{"csv", "json"}, config.Output.Formats)
	assert.Empty(t, config.Items.Extensions, "extensions only default for directories")
}

func TestConfigLoader_FullConfig(t *testing.T) {
	cl := newTestLoader(t)

	config, err := cl.LoadFromReader(strings.NewReader(`
version: "2.1.0"
session:
  name: liking block
  participant_id: p042
  round_type: liking
items:
  list: [x.jpg, y.jpg]
selection:
  policy: exclusion
  seed: 77
updater:
  step: 0.25
trials:
  max_trials: 40
  pair_repeats: 3
  randomize_sides: true
  pace_per_second: 2.5
  response_timeout: 4s
output:
  dir: out
  formats: [csv]
`))
	require.NoError(t, err)

	assert.Equal(t, "liking block", config.Session.Name)
	assert.Equal(t, "p042", config.Session.ParticipantID)
	assert.Equal(t, domain.RoundLiking, config.Session.RoundType)
	assert.Equal(t, selectors.PolicyExclusion, config.Selection.Policy)
	assert.Equal(t, uint64(77), config.Selection.Seed)
	assert.Equal(t, 0.25, config.Updater.Step)
	assert.Equal(t, 40, config.Trials.MaxTrials)
	assert.Equal(t, 3, config.Trials.PairRepeats)
	assert.True(t, config.Trials.RandomizeSides)
	assert.Equal(t, 2.5, config.Trials.PacePerSecond)
	assert.Equal(t, 4*time.Second, config.Trials.ResponseTimeout)
	assert.Equal(t, "out", config.Output.Dir)
	assert.Equal(t, []string{"csv"}, config.Output.Formats)

	e, err := cl.BuildEngine(config)
	require.NoError(t, err)
	assert.Equal(t, selectors.PolicyExclusion, e.Policy())
	assert.Equal(t, 0.25, e.Step())
	assert.Equal(t, []domain.ItemID{"x.jpg", "y.jpg"}, e.Items())
}

func TestConfigLoader_DecodeErrors(t *testing.T) {
	cl := newTestLoader(t)

	_, err := cl.LoadFromReader(strings.NewReader(""))
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)

	_, err = cl.LoadFromReader(strings.NewReader(`
version: "1.0.0"
session: {name: s}
items: {list: [a, b]}
colour: blue
`))
	assert.ErrorContains(t, err, "field colour not found")

	_, err = cl.LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read file")
}

func TestConfigLoader_ValidationErrors(t *testing.T) {
	const base = `
version: "1.0.0"
session: {name: s}
`
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "bad version",
			yaml: "version: \"1.0\"\nsession: {name: s}\nitems: {list: [a, b]}\n",
			want: `SessionConfig.Version failed "semver"`,
		},
		{
			name: "missing session name",
			yaml: "version: \"1.0.0\"\nitems: {list: [a, b]}\n",
			want: `SessionConfig.Session.Name failed "required"`,
		},
		{
			name: "unknown policy",
			yaml: base + "items: {list: [a, b]}\nselection: {policy: round_robin}\n",
			want: `failed "policy"`,
		},
		{
			name: "neither list nor dir",
			yaml: base + "items: {}\n",
			want: `SessionConfig.Items.List failed "required_without"`,
		},
		{
			name: "both list and dir",
			yaml: base + "items: {list: [a, b], dir: imgs}\n",
			want: `SessionConfig.Items.List failed "excluded_with"`,
		},
		{
			name: "duplicate after normalisation",
			yaml: base + "items: {list: [\"caf\\u00e9\", \"cafe\\u0301\"]}\n",
			want: "more than once",
		},
		{
			name: "step out of range",
			yaml: base + "items: {list: [a, b]}\nupdater: {step: 50}\n",
			want: `SessionConfig.Updater.Step failed "lte"`,
		},
		{
			name: "negative step",
			yaml: base + "items: {list: [a, b]}\nupdater: {step: -1}\n",
			want: `SessionConfig.Updater.Step failed "gt"`,
		},
		{
			name: "unknown round type",
			yaml: "version: \"1.0.0\"\nsession: {name: s, round_type: warmup}\nitems: {list: [a, b]}\n",
			want: `failed "oneof"`,
		},
		{
			name: "participant id with path separator",
			yaml: "version: \"1.0.0\"\nsession: {name: s, participant_id: ../p1}\nitems: {list: [a, b]}\n",
			want: `failed "excludesall"`,
		},
		{
			name: "unknown output format",
			yaml: base + "items: {list: [a, b]}\noutput: {formats: [xml]}\n",
			want: `failed "oneof"`,
		},
		{
			name: "single item",
			yaml: base + "items: {list: [only.png]}\n",
			want: "items.list needs at least 2 distinct items, has 1",
		},
		{
			name: "two spellings of one item",
			yaml: base + "items: {list: [\"a.png\", \" a.png\"]}\n",
			want: "needs at least 2 distinct items",
		},
		{
			name: "extension without dot",
			yaml: base + "items: {dir: imgs, extensions: [png]}\n",
			want: `failed "startswith"`,
		},
	}

	cl := newTestLoader(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := cl.LoadFromReader(strings.NewReader(tt.yaml))
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)

			var verr *domain.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, "SessionConfig", verr.Entity)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConfigLoader_ItemsDirectory(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.jpg", "a.PNG", ".hidden.png", "notes.txt", "cafe\u0301.jpeg"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.png"), 0o700))

	cl := newTestLoader(t)
	config, err := cl.LoadFromReader(strings.NewReader(
		"version: \"1.0.0\"\nsession: {name: s}\nitems: {dir: " + dir + "}\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultImageExtensions, config.Items.Extensions)

	items, err := cl.ResolveItems(config)
	require.NoError(t, err)
	assert.Equal(t, []domain.ItemID{"a.PNG", "b.jpg", "caf\u00e9.jpeg"}, items)

	_, err = ListItemDir(dir, []string{".gif"})
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)

	_, err = ListItemDir(filepath.Join(dir, "absent"), nil)
	assert.ErrorContains(t, err, "failed to list items directory")
}

func TestConfigLoader_ResolveItemsTooFew(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "only.png"), []byte("x"), 0o600))

	cl := newTestLoader(t)
	config, err := cl.LoadFromReader(strings.NewReader(
		"version: \"1.0.0\"\nsession: {name: s}\nitems: {dir: " + dir + "}\n"))
	require.NoError(t, err, "directory contents are only known at resolve time")

	_, err = cl.ResolveItems(config)
	assert.ErrorIs(t, err, domain.ErrInsufficientItems)
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)

	_, err = cl.BuildEngine(config)
	assert.ErrorIs(t, err, domain.ErrInsufficientItems)

	// Validate is bypassed here, as when a config is built in code.
	_, err = cl.ResolveItems(&SessionConfig{Items: ItemsConfig{List: []string{"solo"}}})
	assert.ErrorIs(t, err, domain.ErrInsufficientItems)
}

func TestNormalizeItemID(t *testing.T) {
	assert.Equal(t, "caf\u00e9.png", NormalizeItemID("  cafe\u0301.png\t"))
	assert.Equal(t, "plain", NormalizeItemID("plain"))
	assert.Equal(t, "", NormalizeItemID("   "))
}

func TestSessionConfig_TrialBudget(t *testing.T) {
	tests := []struct {
		name   string
		trials TrialsConfig
		n      int
		want   int
	}{
		{name: "one per pair", trials: TrialsConfig{PairRepeats: 1}, n: 5, want: 10},
		{name: "repeats", trials: TrialsConfig{PairRepeats: 3}, n: 4, want: 18},
		{name: "zero repeats treated as one", trials: TrialsConfig{}, n: 3, want: 3},
		{name: "explicit cap wins", trials: TrialsConfig{MaxTrials: 7, PairRepeats: 3}, n: 10, want: 7},
		{name: "single item", trials: TrialsConfig{PairRepeats: 2}, n: 1, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := SessionConfig{Trials: tt.trials}
			assert.Equal(t, tt.want, c.TrialBudget(tt.n))
		})
	}
}

func TestConfigLoader_BuildEngineUnsupportedPolicy(t *testing.T) {
	cl := newTestLoader(t)
	config := &SessionConfig{
		Items:     ItemsConfig{List: []string{"a", "b"}},
		Selection: SelectionConfig{Policy: "nope"},
		Updater:   UpdaterConfig{Step: 1},
	}
	_, err := cl.BuildEngine(config)
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}
