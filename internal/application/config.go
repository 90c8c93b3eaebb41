package application

import (
	"time"

	"github.com/ahrav/go-acj/internal/domain"
)

// SessionConfig defines a complete judgement session: which items are
// compared, how pairs are chosen, how scores move and where trial data goes.
// It is the entry point for YAML configuration.
type SessionConfig struct {
	// Version is the configuration schema version (X.Y.Z).
	Version string `yaml:"version" validate:"required,semver"`
	// Session carries descriptive identifiers copied into every trial record.
	Session SessionMeta `yaml:"session" validate:"required"`
	// Items lists the stimuli explicitly or points at a directory of them.
	Items ItemsConfig `yaml:"items" validate:"required"`
	// Selection chooses the pair-selection policy.
	Selection SelectionConfig `yaml:"selection"`
	// Updater configures the quality update rule.
	Updater UpdaterConfig `yaml:"updater"`
	// Trials bounds and paces the trial loop.
	Trials TrialsConfig `yaml:"trials"`
	// Output configures the trial data manager.
	Output OutputConfig `yaml:"output"`
}

// SessionMeta identifies a session and the block of trials it runs.
type SessionMeta struct {
	// Name is a human-readable label for the session.
	Name string `yaml:"name" validate:"required,min=1,max=255"`
	// ParticipantID identifies the participant; it prefixes output files.
	ParticipantID string `yaml:"participant_id" validate:"omitempty,max=100,excludesall=/\\"`
	// RoundType names the trial block (practice, similarity or liking).
	RoundType domain.RoundType `yaml:"round_type" validate:"omitempty,oneof=practice similarity liking"`
}

// ItemsConfig lists the stimuli. Exactly one of List or Dir must be set.
type ItemsConfig struct {
	// List enumerates item identifiers explicitly.
	List []string `yaml:"list" validate:"required_without=Dir,excluded_with=Dir,dive,required"`
	// Dir is a directory whose files become items.
	Dir string `yaml:"dir" validate:"required_without=List"`
	// Extensions filters Dir listings by file extension (case-insensitive).
	Extensions []string `yaml:"extensions" validate:"dive,startswith=."`
}

// SelectionConfig chooses and seeds the pair-selection policy.
type SelectionConfig struct {
	// Policy is a registered selector name such as "adaptive" or "exclusion".
	Policy string `yaml:"policy" validate:"omitempty,policy"`
	// Seed makes random seeding draws reproducible. Zero picks a seed from
	// the clock at load time.
	Seed uint64 `yaml:"seed"`
}

// UpdaterConfig configures the Bradley-Terry update.
type UpdaterConfig struct {
	// Step is the learning rate; larger adapts faster but is noisier.
	Step float64 `yaml:"step" validate:"omitempty,gt=0,lte=10"`
}

// TrialsConfig bounds and paces the trial loop.
type TrialsConfig struct {
	// MaxTrials caps the number of trials presented. Zero means one trial
	// per distinct pair times PairRepeats.
	MaxTrials int `yaml:"max_trials" validate:"min=0,max=100000"`
	// PairRepeats multiplies the default trial budget.
	PairRepeats int `yaml:"pair_repeats" validate:"min=0,max=20"`
	// RandomizeSides swaps presentation sides at random.
	RandomizeSides bool `yaml:"randomize_sides"`
	// PacePerSecond limits how many trials start per second; zero disables
	// pacing.
	PacePerSecond float64 `yaml:"pace_per_second" validate:"min=0,max=1000"`
	// ResponseTimeout is the time a responder waits before reporting a
	// missed trial.
	ResponseTimeout time.Duration `yaml:"response_timeout"`
}

// OutputConfig configures where trial data is written.
type OutputConfig struct {
	// Dir is the data directory; it is created if missing.
	Dir string `yaml:"dir"`
	// Formats selects the writers to enable.
	Formats []string `yaml:"formats" validate:"dive,oneof=csv json"`
}

// Default values applied by the loader to omitted fields.
const (
	DefaultVersion     = "1.0.0"
	DefaultPolicy      = "adaptive"
	DefaultPairRepeats = 1
	DefaultOutputDir   = "data"
	DefaultRoundType   = domain.RoundSimilarity
)

// DefaultImageExtensions are the file types accepted from an items directory.
var DefaultImageExtensions = []string{".png", ".jpg", ".jpeg"}

// applyDefaults fills omitted optional fields.
func (c *SessionConfig) applyDefaults() {
	if c.Selection.Policy == "" {
		c.Selection.Policy = DefaultPolicy
	}
	if c.Updater.Step == 0 {
		c.Updater.Step = DefaultStep
	}
	if c.Trials.PairRepeats == 0 {
		c.Trials.PairRepeats = DefaultPairRepeats
	}
	if c.Session.RoundType == "" {
		c.Session.RoundType = DefaultRoundType
	}
	if c.Output.Dir == "" {
		c.Output.Dir = DefaultOutputDir
	}
	if len(c.Output.Formats) == 0 {
		c.Output.Formats = []string{"csv", "json"}
	}
	if c.Items.Dir != "" && len(c.Items.Extensions) == 0 {
		c.Items.Extensions = DefaultImageExtensions
	}
}

// TrialBudget returns the number of trials to run for n items.
func (c *SessionConfig) TrialBudget(n int) int {
	if c.Trials.MaxTrials > 0 {
		return c.Trials.MaxTrials
	}
	repeats := max(c.Trials.PairRepeats, 1)
	return n * (n - 1) / 2 * repeats
}
