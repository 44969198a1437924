package models

import "strings"

// Interaction names as they appear in a capability document.
const (
	InteractionRead    = "read"
	InteractionVRead   = "vread"
	InteractionHistory = "history"
	InteractionSearch  = "search"
)

// SearchParamKind selects how a search value is extracted from an instance and how a
// returned instance is matched against it.
type SearchParamKind string

const (
	SearchParamPatient   SearchParamKind = "patient"
	SearchParamToken     SearchParamKind = "token"
	SearchParamString    SearchParamKind = "string"
	SearchParamName      SearchParamKind = "name"
	SearchParamReference SearchParamKind = "reference"
	SearchParamDate      SearchParamKind = "date"
	SearchParamID        SearchParamKind = "id"
)

// SearchParam is one query parameter of a search combination. Values lists fixed
// candidates used when no value can be taken from instances already found.
type SearchParam struct {
	Name   string          `json:"name"             validate:"required"`
	Path   string          `json:"path"`
	Kind   SearchParamKind `json:"kind"             validate:"required,oneof=patient token string name reference date id"`
	Values []string        `json:"values,omitempty"`
}

// EntityConfig is the static description of one target entity type. The test suite for
// the entity is generated from it.
type EntityConfig struct {
	EntityType          string          `json:"entity_type"                    validate:"required"`
	Title               string          `json:"title"`
	Description         string          `json:"description,omitempty"`
	TestIDPrefix        string          `json:"test_id_prefix,omitempty"`
	ProfileURL          string          `json:"profile_url,omitempty"`
	Delayed             bool            `json:"delayed,omitempty"`
	DependsOn           []string        `json:"depends_on,omitempty"`
	RequiresToken       bool            `json:"requires_token,omitempty"`
	ConformanceSupports []string        `json:"conformance_supports,omitempty" validate:"dive,required"`
	Interactions        []string        `json:"interactions,omitempty"         validate:"dive,oneof=read vread history search"`
	SearchParams        [][]SearchParam `json:"search_params,omitempty"        validate:"dive,min=1,dive"`
	MustSupport         []string        `json:"must_support,omitempty"`
	RevIncludes         []string        `json:"rev_includes,omitempty"`
}

// DisplayTitle returns Title or a title derived from the entity type.
func (c EntityConfig) DisplayTitle() string {
	if c.Title != "" {
		return c.Title
	}

	return c.EntityType + " Tests"
}

// Supports reports whether the entity declares the interaction as testable.
// An empty Interactions list means every interaction is tested.
func (c EntityConfig) Supports(interaction string) bool {
	if len(c.Interactions) == 0 {
		return true
	}

	for _, candidate := range c.Interactions {
		if candidate == interaction {
			return true
		}
	}

	return false
}

// SearchKey joins the parameter names of a combination, e.g. "patient_category".
func SearchKey(params []SearchParam) string {
	names := make([]string, 0, len(params))
	for _, param := range params {
		names = append(names, strings.TrimPrefix(param.Name, "_"))
	}

	return strings.Join(names, "_")
}
