package fieldpath

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/conformance/pkg/models"
)

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &out))

	return out
}

const practitioner = `{
	"resourceType": "Practitioner",
	"id": "p1",
	"identifier": [
		{"system": "http://hl7.org/fhir/sid/us-npi", "value": "9941339108"}
	],
	"name": [
		{"given": ["Ronald"]},
		{"family": "Bone", "given": ["Ronald", "R"]}
	]
}`

func TestResolve_FansOutOverArrays(t *testing.T) {
	instance := decode(t, practitioner)

	assert.Equal(t, []any{"Ronald", "Ronald", "R"}, Resolve(instance, "name.given"))
	assert.Equal(t, []any{"Bone"}, Resolve(instance, "name.family"))
	assert.Empty(t, Resolve(instance, "name.prefix"))
	assert.Empty(t, Resolve(instance, "telecom.value"))
}

func TestResolve_AcrossInstances(t *testing.T) {
	first := decode(t, `{"id": "a", "status": "final"}`)
	second := decode(t, `{"id": "b"}`)

	assert.Equal(t, []any{"a", "b"}, Resolve([]map[string]any{first, second}, "id"))
	assert.Equal(t, []any{"final"}, Resolve([]any{first, second}, "status"))
}

func TestFind_WithPredicate(t *testing.T) {
	instance := decode(t, practitioner)

	value, found := Find(instance, "name.given", func(v any) bool { return v == "R" })
	require.True(t, found)
	assert.Equal(t, "R", value)

	_, found = Find(instance, "name.given", func(v any) bool { return v == "X" })
	assert.False(t, found)

	assert.True(t, CanResolve(instance, "identifier.value", nil))
	assert.False(t, CanResolve(instance, "address", nil))
}

func TestRepresentative(t *testing.T) {
	instance := decode(t, practitioner)

	tests := []struct {
		name  string
		path  string
		kind  models.SearchParamKind
		want  string
		found bool
	}{
		{name: "first non-empty human name", path: "name", kind: models.SearchParamName, want: "Ronald", found: true},
		{name: "identifier value", path: "identifier", kind: models.SearchParamToken, want: "9941339108", found: true},
		{name: "plain string", path: "id", kind: models.SearchParamID, want: "p1", found: true},
		{name: "missing element", path: "gender", kind: models.SearchParamToken, found: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := Representative(instance, tt.path, tt.kind)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSearchValue_ComplexTypes(t *testing.T) {
	concept := decode(t, `{"coding": [{"system": "http://loinc.org"}, {"code": "34133-9"}]}`)
	period := decode(t, `{"start": "2020-01-01"}`)
	reference := decode(t, `{"reference": "Patient/123"}`)

	got, ok := SearchValue(concept, models.SearchParamToken)
	require.True(t, ok)
	assert.Equal(t, "34133-9", got)

	got, ok = SearchValue(period, models.SearchParamDate)
	require.True(t, ok)
	assert.Equal(t, "2020-01-01", got)

	got, ok = SearchValue(reference, models.SearchParamReference)
	require.True(t, ok)
	assert.Equal(t, "Patient/123", got)

	_, ok = SearchValue("", models.SearchParamString)
	assert.False(t, ok)
}

func TestSearchValue_Fallbacks(t *testing.T) {
	tests := []struct {
		name  string
		value string
		kind  models.SearchParamKind
		want  string
	}{
		{name: "family first", value: `{"family": "Bone", "given": ["Ronald"], "text": "Dr Bone"}`, kind: models.SearchParamName, want: "Bone"},
		{name: "given before text", value: `{"given": ["Ronald", "R"], "text": "Dr Bone"}`, kind: models.SearchParamName, want: "Ronald"},
		{name: "text last", value: `{"text": "Dr Bone"}`, kind: models.SearchParamName, want: "Dr Bone"},
		{name: "period start", value: `{"start": "2020-01-01", "end": "2020-02-01"}`, kind: models.SearchParamDate, want: "2020-01-01"},
		{name: "open start period", value: `{"end": "2020-02-01"}`, kind: models.SearchParamDate, want: "2020-02-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SearchValue(decode(t, tt.value), tt.kind)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTrimEntity(t *testing.T) {
	assert.Equal(t, "name.family", TrimEntity("Practitioner.name.family", "Practitioner"))
	assert.Equal(t, "status", TrimEntity("status", "Practitioner"))
}
