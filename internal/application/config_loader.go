package application

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-acj/internal/domain"
	"github.com/ahrav/go-acj/internal/ports"
)

// ConfigLoader parses, defaults and validates session configuration and
// resolves the item set it describes.
type ConfigLoader struct {
	// validator performs struct tag validation plus the custom semver and
	// policy rules.
	validator *validator.Validate
	// selectors supplies the set of valid policy names and builds selectors.
	selectors ports.SelectorRegistry
	// now is the clock used to derive a seed when none is configured.
	now func() time.Time
}

// NewConfigLoader creates a loader that validates policies against reg.
// It returns an error if validator registration fails.
func NewConfigLoader(reg ports.SelectorRegistry) (*ConfigLoader, error) {
	v := validator.New()
	cl := &ConfigLoader{validator: v, selectors: reg, now: time.Now}

	if err := v.RegisterValidation("semver", validateSemver); err != nil {
		return nil, fmt.Errorf("failed to register semver validator: %w", err)
	}
	if err := v.RegisterValidation("policy", cl.validatePolicy); err != nil {
		return nil, fmt.Errorf("failed to register policy validator: %w", err)
	}
	return cl, nil
}

// LoadFromFile reads and validates a session configuration file.
func (cl *ConfigLoader) LoadFromFile(path string) (*SessionConfig, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return cl.load(data)
}

// LoadFromReader reads and validates a session configuration from r.
func (cl *ConfigLoader) LoadFromReader(r io.Reader) (*SessionConfig, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return cl.load(data)
}

func (cl *ConfigLoader) load(data []byte) (*SessionConfig, error) {
	var config SessionConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Strict mode - fail on unknown fields.
	if err := decoder.Decode(&config); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty configuration", domain.ErrInvalidConfiguration)
		}
		return nil, fmt.Errorf("YAML decode failed: %w", err)
	}

	config.applyDefaults()
	if config.Selection.Seed == 0 {
		config.Selection.Seed = uint64(cl.now().UnixNano())
	}
	if err := cl.Validate(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate runs struct validation and the cross-field rules that tags cannot
// express. Failures are reported as a *domain.ValidationError.
func (cl *ConfigLoader) Validate(config *SessionConfig) error {
	verr := domain.NewValidationError("SessionConfig")

	if err := cl.validator.Struct(config); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("struct validation failed: %w", err)
		}
		for _, fe := range fieldErrs {
			verr.AddError(fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
		}
	}

	seen := make(map[string]struct{}, len(config.Items.List))
	for _, raw := range config.Items.List {
		id := NormalizeItemID(raw)
		if _, dup := seen[id]; dup {
			verr.AddError(fmt.Sprintf("items.list contains %q more than once", id))
		}
		seen[id] = struct{}{}
	}
	if len(config.Items.List) > 0 && len(seen) < 2 {
		verr.AddError(fmt.Sprintf("items.list needs at least 2 distinct items, has %d", len(seen)))
	}

	if verr.HasErrors() {
		return verr
	}
	return nil
}

// ResolveItems returns the configured item identifiers. Directory listings
// are filtered by extension and sorted so the item order is stable across
// platforms. Every identifier is NFC-normalised. Fewer than two items is an
// error matching both domain.ErrInvalidConfiguration and
// domain.ErrInsufficientItems.
func (cl *ConfigLoader) ResolveItems(config *SessionConfig) ([]domain.ItemID, error) {
	var items []domain.ItemID
	if len(config.Items.List) > 0 {
		items = make([]domain.ItemID, 0, len(config.Items.List))
		for _, raw := range config.Items.List {
			items = append(items, domain.ItemID(NormalizeItemID(raw)))
		}
	} else {
		listed, err := ListItemDir(config.Items.Dir, config.Items.Extensions)
		if err != nil {
			return nil, err
		}
		items = listed
	}
	if len(items) < 2 {
		return nil, fmt.Errorf("%w: %w: need at least 2 items, have %d",
			domain.ErrInvalidConfiguration, domain.ErrInsufficientItems, len(items))
	}
	return items, nil
}

// BuildEngine constructs the engine described by config.
func (cl *ConfigLoader) BuildEngine(config *SessionConfig, opts ...EngineOption) (*Engine, error) {
	items, err := cl.ResolveItems(config)
	if err != nil {
		return nil, err
	}
	sel, err := cl.selectors.CreateSelector(config.Selection.Policy, config.Selection.Seed)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidConfiguration, err)
	}
	opts = append([]EngineOption{WithStep(config.Updater.Step), WithSelector(sel)}, opts...)
	return NewEngine(items, opts...)
}

// ListItemDir lists regular files in dir whose extension matches one of exts
// (case-insensitive). Hidden files are skipped.
func ListItemDir(dir string, exts []string) ([]domain.ItemID, error) {
	entries, err := os.ReadDir(filepath.Clean(dir))
	if err != nil {
		return nil, fmt.Errorf("failed to list items directory: %w", err)
	}

	var items []domain.ItemID
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		ext := strings.ToLower(filepath.Ext(name))
		if len(exts) > 0 && !slices.ContainsFunc(exts, func(e string) bool { return strings.ToLower(e) == ext }) {
			continue
		}
		items = append(items, domain.ItemID(NormalizeItemID(name)))
	}
	slices.Sort(items)

	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no items with extensions %v in %s",
			domain.ErrInvalidConfiguration, exts, dir)
	}
	return items, nil
}

// NormalizeItemID trims surrounding whitespace and converts id to Unicode
// NFC. macOS file systems report decomposed names, which would otherwise
// not match identifiers typed into a configuration or recorded on another
// platform.
func NormalizeItemID(id string) string {
	return norm.NFC.String(strings.TrimSpace(id))
}

// validateSemver validates that a string follows semantic versioning
// format (X.Y.Z where X, Y, Z are non-negative integers).
func validateSemver(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	var major, minor, patch int
	n, err := fmt.Sscanf(value, "%d.%d.%d", &major, &minor, &patch)
	return err == nil && n == 3 && major >= 0 && minor >= 0 && patch >= 0
}

// validatePolicy accepts any policy known to the selector registry.
func (cl *ConfigLoader) validatePolicy(fl validator.FieldLevel) bool {
	return slices.Contains(cl.selectors.SupportedPolicies(), fl.Field().String())
}
