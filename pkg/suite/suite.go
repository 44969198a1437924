// Package suite generates test sequences from a per-entity configuration table, so one
// generic builder replaces a hand-written module per entity type.
package suite

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/go-playground/validator/v10"

	"github.com/dukex/conformance/pkg/models"
	"github.com/dukex/conformance/pkg/sequence"
)

// ErrDuplicateEntity is returned when a table lists an entity type twice.
var ErrDuplicateEntity = errors.New("duplicate entity type")

// ErrInvalidDependency is returned when an entity depends on an entity type missing from
// the table or on itself.
var ErrInvalidDependency = errors.New("invalid dependency")

// ErrDependencyCycle is returned when entities depend on each other in a loop.
var ErrDependencyCycle = errors.New("dependency cycle")

// Suite is a validated entity table and the definitions generated from it.
type Suite struct {
	configs     []models.EntityConfig
	definitions []*sequence.Definition
}

// New validates configs, fills in default dependencies of delayed entities and builds
// one definition per entity, in table order. A delayed entity without declared
// dependencies waits for every patient-scoped entity and for the delayed entities listed
// before it that do not already wait for it, since any of them may discover references
// to it.
func New(configs []models.EntityConfig) (*Suite, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	seen := map[string]bool{}

	for _, config := range configs {
		if err := validate.Struct(config); err != nil {
			return nil, fmt.Errorf("invalid entity %q: %w", config.EntityType, err)
		}

		if seen[config.EntityType] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEntity, config.EntityType)
		}

		seen[config.EntityType] = true
	}

	dependsOn := make(map[string][]string, len(configs))

	for _, config := range configs {
		for _, dependency := range config.DependsOn {
			if !seen[dependency] || dependency == config.EntityType {
				return nil, fmt.Errorf("%w: %s depends on %s", ErrInvalidDependency, config.EntityType, dependency)
			}
		}

		dependsOn[config.EntityType] = config.DependsOn
	}

	resolved := slices.Clone(configs)

	for i := range resolved {
		if resolved[i].Delayed && len(resolved[i].DependsOn) == 0 {
			resolved[i].DependsOn = contributors(configs, i, dependsOn)
			dependsOn[resolved[i].EntityType] = resolved[i].DependsOn
		}
	}

	if err := checkCycles(resolved); err != nil {
		return nil, err
	}

	definitions := make([]*sequence.Definition, 0, len(resolved))

	for _, config := range resolved {
		definitions = append(definitions, Build(config, dependents(resolved, config.EntityType)))
	}

	return &Suite{configs: resolved, definitions: definitions}, nil
}

// Load reads an entity table from a JSON file and builds a Suite from it.
func Load(path string) (*Suite, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from operator configuration
	if err != nil {
		return nil, fmt.Errorf("failed to read entity table: %w", err)
	}

	var configs []models.EntityConfig
	if err := json.Unmarshal(data, &configs); err != nil {
		return nil, fmt.Errorf("failed to decode entity table: %w", err)
	}

	return New(configs)
}

// Configs returns the resolved entity table.
func (s *Suite) Configs() []models.EntityConfig {
	return s.configs
}

// Definitions returns every definition in table order.
func (s *Suite) Definitions() []*sequence.Definition {
	return s.definitions
}

// Definition returns the definition for entityType.
func (s *Suite) Definition(entityType string) (*sequence.Definition, bool) {
	for _, definition := range s.definitions {
		if definition.EntityType == entityType {
			return definition, true
		}
	}

	return nil, false
}

// EntityTypes lists the entity types of the table in order.
func (s *Suite) EntityTypes() []string {
	types := make([]string, 0, len(s.configs))
	for _, config := range s.configs {
		types = append(types, config.EntityType)
	}

	return types
}

// contributors lists every patient-scoped entity and every delayed entity before
// position i, leaving out those that already wait for the entity at i.
func contributors(configs []models.EntityConfig, i int, dependsOn map[string][]string) []string {
	var types []string

	for j, config := range configs {
		if j == i || (config.Delayed && j > i) {
			continue
		}

		if reaches(dependsOn, config.EntityType, configs[i].EntityType, map[string]bool{}) {
			continue
		}

		types = append(types, config.EntityType)
	}

	return types
}

// reaches reports whether from waits, directly or not, for to.
func reaches(dependsOn map[string][]string, from, to string, visited map[string]bool) bool {
	if visited[from] {
		return false
	}

	visited[from] = true

	for _, dependency := range dependsOn[from] {
		if dependency == to || reaches(dependsOn, dependency, to, visited) {
			return true
		}
	}

	return false
}

// dependents lists the delayed entity types that wait for entityType. Only references to
// them are recorded by entityType's sequence.
func dependents(configs []models.EntityConfig, entityType string) []string {
	var types []string

	for _, config := range configs {
		if config.Delayed && slices.Contains(config.DependsOn, entityType) {
			types = append(types, config.EntityType)
		}
	}

	return types
}

func checkCycles(configs []models.EntityConfig) error {
	dependsOn := make(map[string][]string, len(configs))
	for _, config := range configs {
		dependsOn[config.EntityType] = config.DependsOn
	}

	const (
		visiting = iota + 1
		done
	)

	marks := map[string]int{}

	var visit func(entityType string) error
	visit = func(entityType string) error {
		switch marks[entityType] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("%w: %s", ErrDependencyCycle, entityType)
		}

		marks[entityType] = visiting

		for _, dependency := range dependsOn[entityType] {
			if err := visit(dependency); err != nil {
				return err
			}
		}

		marks[entityType] = done

		return nil
	}

	for _, config := range configs {
		if err := visit(config.EntityType); err != nil {
			return err
		}
	}

	return nil
}
