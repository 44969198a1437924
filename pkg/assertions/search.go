package assertions

import (
	"strings"

	"github.com/dukex/conformance/pkg/client"
	"github.com/dukex/conformance/pkg/fieldpath"
	"github.com/dukex/conformance/pkg/models"
	"github.com/dukex/conformance/pkg/outcome"
)

// Criterion is one search parameter together with the value that was sent.
type Criterion struct {
	Param models.SearchParam
	Value string
}

// ExpectSearchResultsMatchParams fails when no returned entry of entityType satisfies every
// criterion. The message names the first criterion the first entry failed.
func ExpectSearchResultsMatchParams(response *client.Response, entityType string, criteria []Criterion) error {
	entries := response.EntriesOfType(entityType)
	if len(entries) == 0 {
		return nil
	}

	var firstMiss *Criterion

	for _, entry := range entries {
		miss := firstMismatch(entry, criteria)
		if miss == nil {
			return nil
		}

		if firstMiss == nil {
			firstMiss = miss
		}
	}

	name := strings.TrimPrefix(firstMiss.Param.Name, "_")

	return outcome.Failf("%s on resource does not match %s requested", name, name)
}

// matches reports whether instance satisfies a single criterion.
func matches(instance map[string]any, criterion Criterion) bool {
	return matcher(criterion.Param.Kind)(instance, criterion.Param.Path, criterion.Value)
}

func firstMismatch(instance map[string]any, criteria []Criterion) *Criterion {
	for i := range criteria {
		if !matches(instance, criteria[i]) {
			return &criteria[i]
		}
	}

	return nil
}

type matchFunc func(instance map[string]any, path, value string) bool

func matcher(kind models.SearchParamKind) matchFunc {
	switch kind {
	case models.SearchParamPatient:
		return matchPatient
	case models.SearchParamReference:
		return matchReference
	case models.SearchParamToken:
		return matchToken
	case models.SearchParamName:
		return matchName
	case models.SearchParamDate:
		return matchDate
	case models.SearchParamID:
		return matchID
	default:
		return matchString
	}
}

func matchPatient(instance map[string]any, path, value string) bool {
	if !strings.Contains(value, "/") {
		value = "Patient/" + value
	}

	return matchReference(instance, path, value)
}

func matchReference(instance map[string]any, path, value string) bool {
	return fieldpath.CanResolve(instance, path, func(element any) bool {
		reference, ok := element.(map[string]any)
		if !ok {
			return false
		}

		raw, _ := reference["reference"].(string)

		return raw == value || strings.HasSuffix(raw, "/"+value)
	})
}

func matchToken(instance map[string]any, path, value string) bool {
	if _, code, found := strings.Cut(value, "|"); found {
		value = code
	}

	return fieldpath.CanResolve(instance, path, func(element any) bool {
		switch typed := element.(type) {
		case string:
			return typed == value
		case map[string]any:
			if typed["value"] == value || typed["code"] == value {
				return true
			}

			return fieldpath.CanResolve(typed, "coding.code", func(code any) bool { return code == value })
		default:
			return false
		}
	})
}

func matchName(instance map[string]any, path, value string) bool {
	value = strings.ToLower(value)

	return fieldpath.CanResolve(instance, path, func(element any) bool {
		name, ok := element.(map[string]any)
		if !ok {
			text, isString := element.(string)

			return isString && strings.HasPrefix(strings.ToLower(text), value)
		}

		if text, ok := name["text"].(string); ok && strings.HasPrefix(strings.ToLower(text), value) {
			return true
		}

		if family, ok := name["family"].(string); ok && strings.Contains(strings.ToLower(family), value) {
			return true
		}

		for _, part := range []string{"given", "prefix", "suffix"} {
			if fieldpath.CanResolve(name, part, hasPrefixFold(value)) {
				return true
			}
		}

		return false
	})
}

func matchDate(instance map[string]any, path, value string) bool {
	return fieldpath.CanResolve(instance, path, func(element any) bool {
		switch typed := element.(type) {
		case string:
			return datePrefixMatch(typed, value)
		case map[string]any:
			start, _ := typed["start"].(string)
			end, _ := typed["end"].(string)

			return datePrefixMatch(start, value) || datePrefixMatch(end, value)
		default:
			return false
		}
	})
}

func datePrefixMatch(found, requested string) bool {
	if found == "" {
		return false
	}

	return strings.HasPrefix(found, requested) || strings.HasPrefix(requested, found)
}

func matchID(instance map[string]any, path, value string) bool {
	return fieldpath.CanResolve(instance, path, func(element any) bool { return element == value })
}

func matchString(instance map[string]any, path, value string) bool {
	return fieldpath.CanResolve(instance, path, hasPrefixFold(strings.ToLower(value)))
}

func hasPrefixFold(lowered string) fieldpath.MatchFunc {
	return func(element any) bool {
		text, ok := element.(string)

		return ok && strings.HasPrefix(strings.ToLower(text), lowered)
	}
}
