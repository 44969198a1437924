// Package profile validates resource instances against published profiles. Profiles are
// expressed as JSON schemas keyed by profile URL.
package profile

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var builtin embed.FS

// ErrUnknownProfile is returned when validating against a profile that was never registered.
var ErrUnknownProfile = errors.New("unknown profile")

// IsUnknownProfile reports whether err is or wraps ErrUnknownProfile.
func IsUnknownProfile(err error) bool {
	return errors.Is(err, ErrUnknownProfile)
}

// Issue is one validation finding.
type Issue struct {
	Field       string `json:"field"`
	Description string `json:"description"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s", i.Field, i.Description)
}

// Validator checks a resource instance against a profile.
type Validator interface {
	Validate(resource map[string]any, profileURL string) ([]Issue, error)
}

// SchemaValidator is a Validator backed by compiled JSON schemas.
type SchemaValidator struct {
	mu      sync.RWMutex
	schemas map[string]*gojsonschema.Schema
	logger  *slog.Logger
}

// NewSchemaValidator returns an empty validator.
func NewSchemaValidator(logger *slog.Logger) *SchemaValidator {
	if logger == nil {
		logger = slog.Default()
	}

	return &SchemaValidator{
		schemas: make(map[string]*gojsonschema.Schema),
		logger:  logger.With("module", "profile_validator"),
	}
}

// NewDefaultValidator returns a validator preloaded with the bundled US Core profiles.
func NewDefaultValidator(logger *slog.Logger) (*SchemaValidator, error) {
	validator := NewSchemaValidator(logger)

	if _, err := validator.load(builtin, "schemas"); err != nil {
		return nil, err
	}

	return validator, nil
}

// Register compiles schema and stores it under profileURL, replacing any previous one.
func (v *SchemaValidator) Register(profileURL string, schema map[string]any) error {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
	if err != nil {
		return fmt.Errorf("failed to compile profile %s: %w", profileURL, err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.schemas[profileURL] = compiled

	return nil
}

// LoadDir registers every *.json schema found in dir. A schema is keyed by its "$id".
func (v *SchemaValidator) LoadDir(dir string) (int, error) {
	return v.load(os.DirFS(dir), ".")
}

// Profiles lists registered profile URLs, sorted.
func (v *SchemaValidator) Profiles() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	urls := make([]string, 0, len(v.schemas))
	for url := range v.schemas {
		urls = append(urls, url)
	}

	slices.Sort(urls)

	return urls
}

// Validate returns the issues found in resource. An unregistered profileURL is an error,
// not an issue.
func (v *SchemaValidator) Validate(resource map[string]any, profileURL string) ([]Issue, error) {
	v.mu.RLock()
	schema, ok := v.schemas[profileURL]
	v.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProfile, profileURL)
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(resource))
	if err != nil {
		return nil, fmt.Errorf("failed to validate against %s: %w", profileURL, err)
	}

	if result.Valid() {
		return nil, nil
	}

	issues := make([]Issue, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		issues = append(issues, Issue{Field: desc.Field(), Description: desc.Description()})
	}

	return issues, nil
}

func (v *SchemaValidator) load(fsys fs.FS, dir string) (int, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read profiles directory: %w", err)
	}

	loaded := 0

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := fs.ReadFile(fsys, filepath.ToSlash(filepath.Join(dir, entry.Name())))
		if err != nil {
			return loaded, fmt.Errorf("failed to read profile %s: %w", entry.Name(), err)
		}

		var schema map[string]any
		if err := json.Unmarshal(data, &schema); err != nil {
			return loaded, fmt.Errorf("failed to decode profile %s: %w", entry.Name(), err)
		}

		url, _ := schema["$id"].(string)
		if url == "" {
			v.logger.Warn("skipping profile without $id", "file", entry.Name())

			continue
		}

		if err := v.Register(url, schema); err != nil {
			return loaded, err
		}

		loaded++
	}

	v.logger.Debug("profiles loaded", "count", loaded)

	return loaded, nil
}
