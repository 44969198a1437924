// Package capability indexes a server's published capability document so gates can ask
// which entity types and interactions the server claims to support.
package capability

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/dukex/conformance/pkg/models"
)

// searchInteraction is the code a capability document uses for the logical "search" interaction.
const searchInteraction = "search-type"

type document struct {
	ResourceType string `json:"resourceType"`
	Rest         []struct {
		Mode     string `json:"mode"`
		Resource []struct {
			Type        string `json:"type"`
			Interaction []struct {
				Code string `json:"code"`
			} `json:"interaction"`
		} `json:"resource"`
	} `json:"rest"`
}

// Index maps entity type to the interaction codes the server declares. A nil *Index is
// valid and answers false for every question.
type Index struct {
	interactions map[string][]string
}

// Parse builds an Index from a raw capability document.
func Parse(raw []byte) (*Index, error) {
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode capability document: %w", err)
	}

	if doc.ResourceType != "" && doc.ResourceType != "CapabilityStatement" {
		return nil, fmt.Errorf("expected CapabilityStatement but found %s", doc.ResourceType)
	}

	index := &Index{interactions: map[string][]string{}}

	for _, rest := range doc.Rest {
		if rest.Mode != "" && rest.Mode != "server" {
			continue
		}

		for _, resource := range rest.Resource {
			for _, interaction := range resource.Interaction {
				if !slices.Contains(index.interactions[resource.Type], interaction.Code) {
					index.interactions[resource.Type] = append(index.interactions[resource.Type], interaction.Code)
				}
			}

			if _, ok := index.interactions[resource.Type]; !ok {
				index.interactions[resource.Type] = nil
			}
		}
	}

	return index, nil
}

// New builds an Index directly from a type to interactions map. Logical interaction
// names are accepted and translated.
func New(declared map[string][]string) *Index {
	index := &Index{interactions: make(map[string][]string, len(declared))}

	for entityType, interactions := range declared {
		codes := make([]string, 0, len(interactions))
		for _, interaction := range interactions {
			codes = append(codes, code(interaction))
		}

		index.interactions[entityType] = codes
	}

	return index
}

// Supports reports whether the server declares every listed interaction for entityType.
// With no interactions it reports whether the entity type is declared at all.
func (i *Index) Supports(entityType string, interactions ...string) bool {
	return len(i.Unsupported(entityType, interactions...)) == 0 && i.declares(entityType)
}

// Unsupported returns, in input order, the interactions the server does not declare for
// entityType. Every interaction is unsupported when the index is absent.
func (i *Index) Unsupported(entityType string, interactions ...string) []string {
	var missing []string

	for _, interaction := range interactions {
		if i == nil || !slices.Contains(i.interactions[entityType], code(interaction)) {
			missing = append(missing, interaction)
		}
	}

	return missing
}

// EntityTypes lists the declared entity types, sorted.
func (i *Index) EntityTypes() []string {
	if i == nil {
		return nil
	}

	types := make([]string, 0, len(i.interactions))
	for entityType := range i.interactions {
		types = append(types, entityType)
	}

	slices.Sort(types)

	return types
}

func (i *Index) declares(entityType string) bool {
	if i == nil {
		return false
	}

	_, ok := i.interactions[entityType]

	return ok
}

func code(interaction string) string {
	if interaction == models.InteractionSearch {
		return searchInteraction
	}

	return interaction
}
