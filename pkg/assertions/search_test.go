package assertions

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/conformance/pkg/models"
)

var (
	nameParam       = models.SearchParam{Name: "name", Path: "name", Kind: models.SearchParamName}
	identifierParam = models.SearchParam{Name: "identifier", Path: "identifier", Kind: models.SearchParamToken}
	patientParam    = models.SearchParam{Name: "patient", Path: "subject", Kind: models.SearchParamPatient}
)

const practitioners = `{"resourceType": "Bundle", "entry": [
	{"resource": {"resourceType": "Practitioner", "id": "1",
		"name": [{"family": "Bone", "given": ["Ronald"]}],
		"identifier": [{"system": "http://hl7.org/fhir/sid/us-npi", "value": "9941339108"}]}},
	{"resource": {"resourceType": "Provenance", "id": "2"}}
]}`

func TestExpectSearchResultsMatchParams(t *testing.T) {
	reply := response(http.StatusOK, practitioners)

	tests := []struct {
		name     string
		criteria []Criterion
		message  string
	}{
		{name: "family substring", criteria: []Criterion{{Param: nameParam, Value: "one"}}},
		{name: "given prefix ignores case", criteria: []Criterion{{Param: nameParam, Value: "ron"}}},
		{name: "identifier value", criteria: []Criterion{{Param: identifierParam, Value: "9941339108"}}},
		{name: "identifier with system", criteria: []Criterion{{Param: identifierParam, Value: "http://hl7.org/fhir/sid/us-npi|9941339108"}}},
		{
			name:     "name mismatch",
			criteria: []Criterion{{Param: nameParam, Value: "Smith"}},
			message:  "name on resource does not match name requested",
		},
		{
			name:     "identifier mismatch",
			criteria: []Criterion{{Param: nameParam, Value: "Bone"}, {Param: identifierParam, Value: "1"}},
			message:  "identifier on resource does not match identifier requested",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ExpectSearchResultsMatchParams(reply, "Practitioner", tt.criteria)
			if tt.message == "" {
				require.NoError(t, err)

				return
			}

			assert.Equal(t, tt.message, failMessage(t, err))
		})
	}
}

func TestExpectSearchResultsMatchParams_AnyEntryMayMatch(t *testing.T) {
	reply := response(http.StatusOK, `{"resourceType": "Bundle", "entry": [
		{"resource": {"resourceType": "CarePlan", "subject": {"reference": "Patient/999"}}},
		{"resource": {"resourceType": "CarePlan", "subject": {"reference": "http://www.example.com/fhir/Patient/123"}}}
	]}`)

	require.NoError(t, ExpectSearchResultsMatchParams(reply, "CarePlan", []Criterion{{Param: patientParam, Value: "123"}}))

	assert.Equal(t, "patient on resource does not match patient requested",
		failMessage(t, ExpectSearchResultsMatchParams(reply, "CarePlan", []Criterion{{Param: patientParam, Value: "42"}})))
}

func TestExpectSearchResultsMatchParams_NoEntries(t *testing.T) {
	reply := response(http.StatusOK, `{"resourceType": "Bundle"}`)

	require.NoError(t, ExpectSearchResultsMatchParams(reply, "CarePlan", []Criterion{{Param: patientParam, Value: "123"}}))
}

func TestMatches_OtherKinds(t *testing.T) {
	instance := map[string]any{
		"id":     "abc",
		"status": "active",
		"period": map[string]any{"start": "2020-01-01T00:00:00Z"},
		"category": []any{
			map[string]any{"coding": []any{map[string]any{"system": "http://loinc.org", "code": "assess-plan"}}},
		},
	}

	assert.True(t, matches(instance, Criterion{Param: models.SearchParam{Path: "id", Kind: models.SearchParamID}, Value: "abc"}))
	assert.True(t, matches(instance, Criterion{Param: models.SearchParam{Path: "status", Kind: models.SearchParamToken}, Value: "active"}))
	assert.True(t, matches(instance, Criterion{Param: models.SearchParam{Path: "category", Kind: models.SearchParamToken}, Value: "assess-plan"}))
	assert.True(t, matches(instance, Criterion{Param: models.SearchParam{Path: "period", Kind: models.SearchParamDate}, Value: "2020-01-01"}))
	assert.False(t, matches(instance, Criterion{Param: models.SearchParam{Path: "period", Kind: models.SearchParamDate}, Value: "2021"}))
	assert.True(t, matches(instance, Criterion{Param: models.SearchParam{Path: "status", Kind: models.SearchParamString}, Value: "ACT"}))
}
