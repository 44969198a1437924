package coordinator

import (
	"errors"
	"fmt"
	"slices"

	"github.com/dukex/conformance/pkg/sequence"
)

var (
	// ErrUnknownEntityType is returned when a run selects an entity type without a definition.
	ErrUnknownEntityType = errors.New("unknown entity type")
	// ErrDependencyCycle is returned when selected definitions depend on each other in a loop.
	ErrDependencyCycle = errors.New("dependency cycle")
)

// step is one selected definition. index is its position in the report; waitsFor holds
// the positions, in execution order, of the steps it waits for.
type step struct {
	definition *sequence.Definition
	index      int
	waitsFor   []int
}

// plan selects definitions for entityTypes, keeping definition order, and resolves the
// dependencies among them. An empty selection means every definition. Dependencies on
// entity types outside the selection are ignored: the delayed sequence then starts from
// whatever the reference store holds.
func plan(definitions []*sequence.Definition, entityTypes []string) ([]step, error) {
	selected := definitions

	if len(entityTypes) > 0 {
		known := make(map[string]bool, len(definitions))
		for _, definition := range definitions {
			known[definition.EntityType] = true
		}

		for _, entityType := range entityTypes {
			if !known[entityType] {
				return nil, fmt.Errorf("%w: %s", ErrUnknownEntityType, entityType)
			}
		}

		selected = nil

		for _, definition := range definitions {
			if slices.Contains(entityTypes, definition.EntityType) {
				selected = append(selected, definition)
			}
		}
	}

	position := make(map[string]int, len(selected))
	for i, definition := range selected {
		position[definition.EntityType] = i
	}

	steps := make([]step, len(selected))

	for i, definition := range selected {
		steps[i].definition = definition
		steps[i].index = i

		for _, dependency := range definition.DependsOn {
			if j, ok := position[dependency]; ok && j != i {
				steps[i].waitsFor = append(steps[i].waitsFor, j)
			}
		}
	}

	return order(steps)
}

// order sorts steps so every step comes after the steps it waits for, keeping the
// original order otherwise. waitsFor is remapped to the new positions.
func order(steps []step) ([]step, error) {
	const (
		unvisited = iota
		visiting
		done
	)

	marks := make([]int, len(steps))
	sorted := make([]int, 0, len(steps))

	var visit func(i int) error
	visit = func(i int) error {
		switch marks[i] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("%w: %s", ErrDependencyCycle, steps[i].definition.EntityType)
		}

		marks[i] = visiting

		for _, j := range steps[i].waitsFor {
			if err := visit(j); err != nil {
				return err
			}
		}

		marks[i] = done
		sorted = append(sorted, i)

		return nil
	}

	for i := range steps {
		if err := visit(i); err != nil {
			return nil, err
		}
	}

	newPosition := make([]int, len(steps))
	for to, from := range sorted {
		newPosition[from] = to
	}

	ordered := make([]step, len(steps))

	for to, from := range sorted {
		waitsFor := make([]int, 0, len(steps[from].waitsFor))
		for _, j := range steps[from].waitsFor {
			waitsFor = append(waitsFor, newPosition[j])
		}

		ordered[to] = step{definition: steps[from].definition, index: steps[from].index, waitsFor: waitsFor}
	}

	return ordered, nil
}
