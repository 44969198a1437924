package fieldpath

import (
	"slices"
	"strings"
)

// Reference is a parsed relative reference to another instance.
type Reference struct {
	Raw        string
	EntityType string
	ID         string
}

// References walks the whole instance tree and returns every "reference" string it
// contains, parsed. Object keys are visited in sorted order so the result is stable.
// Contained ("#id") and unparseable references are left out.
func References(root any) []Reference {
	var found []Reference

	walk(root, func(object map[string]any) {
		raw, ok := object["reference"].(string)
		if !ok {
			return
		}

		if reference, ok := ParseReference(raw); ok {
			found = append(found, reference)
		}
	})

	return found
}

// ParseReference extracts entity type and id from "Type/id", "Type/id/_history/v"
// or an absolute URL ending with either form.
func ParseReference(raw string) (Reference, bool) {
	if raw == "" || strings.HasPrefix(raw, "#") || strings.HasPrefix(raw, "urn:") {
		return Reference{}, false
	}

	parts := strings.Split(strings.TrimSuffix(raw, "/"), "/")
	if len(parts) >= 4 && parts[len(parts)-2] == "_history" {
		parts = parts[:len(parts)-2]
	}

	if len(parts) < 2 {
		return Reference{}, false
	}

	entityType, id := parts[len(parts)-2], parts[len(parts)-1]
	if entityType == "" || id == "" || !isEntityType(entityType) {
		return Reference{}, false
	}

	return Reference{Raw: raw, EntityType: entityType, ID: id}, true
}

func isEntityType(name string) bool {
	first := name[0]

	return first >= 'A' && first <= 'Z'
}

func walk(value any, visit func(map[string]any)) {
	switch typed := value.(type) {
	case map[string]any:
		visit(typed)

		keys := make([]string, 0, len(typed))
		for key := range typed {
			keys = append(keys, key)
		}

		slices.Sort(keys)

		for _, key := range keys {
			walk(typed[key], visit)
		}
	case []any:
		for _, child := range typed {
			walk(child, visit)
		}
	case []map[string]any:
		for _, child := range typed {
			walk(child, visit)
		}
	}
}
