// Package fieldpath resolves dotted field paths against loosely typed instance trees
// (decoded JSON), fanning out across every element of array fields.
package fieldpath

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dukex/conformance/pkg/models"
)

// MatchFunc decides whether a resolved value satisfies a caller-supplied predicate.
type MatchFunc func(value any) bool

// Resolve returns every leaf value reached by path from root. root may be a single
// instance (map[string]any), a []map[string]any or a []any of instances. Arrays met
// along the way, including at the leaf, are flattened; nil leaves are dropped.
// Matches keep the discovery order of the instances.
func Resolve(root any, path string) []any {
	segments := split(path)
	current := flatten(root)

	for _, segment := range segments {
		var next []any

		for _, value := range current {
			object, ok := value.(map[string]any)
			if !ok {
				continue
			}

			child, exists := object[segment]
			if !exists || child == nil {
				continue
			}

			next = append(next, flatten(child)...)
		}

		current = next
	}

	return current
}

// Find returns the first value resolved by path that satisfies match. A nil match
// accepts the first non-empty value.
func Find(root any, path string, match MatchFunc) (any, bool) {
	if match == nil {
		match = NotEmpty
	}

	for _, value := range Resolve(root, path) {
		if match(value) {
			return value, true
		}
	}

	return nil, false
}

// CanResolve reports whether any value resolved by path satisfies match.
func CanResolve(root any, path string, match MatchFunc) bool {
	_, found := Find(root, path, match)

	return found
}

// TrimEntity strips a leading "<EntityType>." from a must-support style path.
func TrimEntity(path, entityType string) string {
	return strings.TrimPrefix(path, entityType+".")
}

// NotEmpty accepts any value other than nil, "", an empty slice or an empty object.
func NotEmpty(value any) bool {
	switch typed := value.(type) {
	case nil:
		return false
	case string:
		return typed != ""
	case []any:
		return len(typed) > 0
	case map[string]any:
		return len(typed) > 0
	default:
		return true
	}
}

// Representative picks the first usable search value for path from instances, scanning
// them in discovery order. The second result is false when no value could be resolved,
// in which case the dependent test has to skip.
func Representative(instances any, path string, kind models.SearchParamKind) (string, bool) {
	for _, value := range Resolve(instances, path) {
		if text, ok := SearchValue(value, kind); ok {
			return text, true
		}
	}

	return "", false
}

// SearchValue converts one resolved element into a query value for a search parameter kind.
func SearchValue(value any, kind models.SearchParamKind) (string, bool) {
	switch typed := value.(type) {
	case string:
		if typed == "" {
			return "", false
		}

		return typed, true
	case bool:
		return strconv.FormatBool(typed), true
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64), true
	case map[string]any:
		return complexSearchValue(typed, kind)
	default:
		if typed == nil {
			return "", false
		}

		return fmt.Sprint(typed), true
	}
}

func complexSearchValue(element map[string]any, kind models.SearchParamKind) (string, bool) {
	switch kind {
	case models.SearchParamName:
		if family, ok := element["family"].(string); ok && family != "" {
			return family, true
		}

		if given, ok := firstString(element["given"]); ok {
			return given, true
		}

		if text, ok := element["text"].(string); ok && text != "" {
			return text, true
		}
	case models.SearchParamReference, models.SearchParamPatient:
		if reference, ok := element["reference"].(string); ok && reference != "" {
			return reference, true
		}
	case models.SearchParamDate:
		for _, key := range []string{"start", "end"} {
			if bound, ok := element[key].(string); ok && bound != "" {
				return bound, true
			}
		}
	case models.SearchParamToken:
		if value, ok := element["value"].(string); ok && value != "" {
			return value, true
		}

		if code, ok := element["code"].(string); ok && code != "" {
			return code, true
		}

		if codings, ok := element["coding"].([]any); ok {
			for _, coding := range codings {
				if object, ok := coding.(map[string]any); ok {
					if code, ok := object["code"].(string); ok && code != "" {
						return code, true
					}
				}
			}
		}
	case models.SearchParamString, models.SearchParamID:
		for _, key := range []string{"value", "text", "display"} {
			if text, ok := element[key].(string); ok && text != "" {
				return text, true
			}
		}
	}

	return "", false
}

func firstString(value any) (string, bool) {
	for _, element := range flatten(value) {
		if text, ok := element.(string); ok && text != "" {
			return text, true
		}
	}

	return "", false
}

func split(path string) []string {
	if path == "" {
		return nil
	}

	return strings.Split(path, ".")
}

func flatten(value any) []any {
	switch typed := value.(type) {
	case nil:
		return nil
	case []any:
		out := make([]any, 0, len(typed))
		for _, element := range typed {
			if element != nil {
				out = append(out, element)
			}
		}

		return out
	case []map[string]any:
		out := make([]any, 0, len(typed))
		for _, element := range typed {
			if element != nil {
				out = append(out, element)
			}
		}

		return out
	default:
		return []any{typed}
	}
}
