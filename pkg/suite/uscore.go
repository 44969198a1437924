package suite

import "github.com/dukex/conformance/pkg/models"

const profileBase = "http://hl7.org/fhir/us/core/StructureDefinition/"

var (
	allInteractions = []string{
		models.InteractionRead,
		models.InteractionVRead,
		models.InteractionHistory,
		models.InteractionSearch,
	}
	provenanceTarget = []string{"Provenance:target"}
)

func patient(path string) models.SearchParam {
	return models.SearchParam{Name: "patient", Path: path, Kind: models.SearchParamPatient}
}

func carePlanCategory() models.SearchParam {
	category := param("category", "category", models.SearchParamToken)
	category.Values = []string{"assess-plan"}

	return category
}

func param(name, path string, kind models.SearchParamKind) models.SearchParam {
	return models.SearchParam{Name: name, Path: path, Kind: kind}
}

// USCore310 is the built-in entity table covering the US Core 3.1.0 sequences the engine
// ships with. Practitioner and Organization are only reachable through references found
// by the patient-scoped entities, so they run delayed.
func USCore310() []models.EntityConfig {
	return []models.EntityConfig{
		{
			EntityType:    "DocumentReference",
			Title:         "DocumentReference Tests",
			TestIDPrefix:  "USCDR",
			ProfileURL:    profileBase + "us-core-documentreference",
			RequiresToken: true,
			Interactions:  allInteractions,
			SearchParams: [][]models.SearchParam{
				{patient("subject")},
				{param("_id", "id", models.SearchParamID)},
				{patient("subject"), param("type", "type", models.SearchParamToken)},
				{patient("subject"), param("category", "category", models.SearchParamToken), param("date", "date", models.SearchParamDate)},
				{patient("subject"), param("category", "category", models.SearchParamToken)},
				{patient("subject"), param("type", "type", models.SearchParamToken), param("period", "context.period", models.SearchParamDate)},
				{patient("subject"), param("status", "status", models.SearchParamToken)},
			},
			MustSupport: []string{
				"DocumentReference.identifier",
				"DocumentReference.status",
				"DocumentReference.type",
				"DocumentReference.category",
				"DocumentReference.subject",
				"DocumentReference.date",
				"DocumentReference.author",
				"DocumentReference.custodian",
				"DocumentReference.content",
				"DocumentReference.content.attachment",
				"DocumentReference.content.attachment.contentType",
				"DocumentReference.content.format",
				"DocumentReference.context",
				"DocumentReference.context.encounter",
				"DocumentReference.context.period",
			},
			RevIncludes: provenanceTarget,
		},
		{
			EntityType:    "CarePlan",
			Title:         "CarePlan Tests",
			TestIDPrefix:  "USCCP",
			ProfileURL:    profileBase + "us-core-careplan",
			RequiresToken: true,
			Interactions:  allInteractions,
			SearchParams: [][]models.SearchParam{
				{patient("subject"), carePlanCategory()},
				{patient("subject"), param("category", "category", models.SearchParamToken), param("date", "period", models.SearchParamDate)},
				{
					patient("subject"),
					param("category", "category", models.SearchParamToken),
					param("status", "status", models.SearchParamToken),
					param("date", "period", models.SearchParamDate),
				},
				{patient("subject"), param("category", "category", models.SearchParamToken), param("status", "status", models.SearchParamToken)},
			},
			MustSupport: []string{
				"CarePlan.text",
				"CarePlan.text.status",
				"CarePlan.status",
				"CarePlan.intent",
				"CarePlan.category",
				"CarePlan.subject",
			},
			RevIncludes: provenanceTarget,
		},
		{
			EntityType:    "Condition",
			Title:         "Condition Tests",
			TestIDPrefix:  "USCC",
			ProfileURL:    profileBase + "us-core-condition",
			RequiresToken: true,
			Interactions:  allInteractions,
			SearchParams: [][]models.SearchParam{
				{patient("subject")},
				{patient("subject"), param("onset-date", "onsetDateTime", models.SearchParamDate)},
				{patient("subject"), param("category", "category", models.SearchParamToken)},
				{patient("subject"), param("clinical-status", "clinicalStatus", models.SearchParamToken)},
				{patient("subject"), param("code", "code", models.SearchParamToken)},
			},
			MustSupport: []string{
				"Condition.clinicalStatus",
				"Condition.verificationStatus",
				"Condition.category",
				"Condition.code",
				"Condition.subject",
			},
			RevIncludes: provenanceTarget,
		},
		{
			EntityType:    "Encounter",
			Title:         "Encounter Tests",
			TestIDPrefix:  "USCE",
			ProfileURL:    profileBase + "us-core-encounter",
			RequiresToken: true,
			Interactions:  allInteractions,
			SearchParams: [][]models.SearchParam{
				{patient("subject")},
				{param("_id", "id", models.SearchParamID)},
				{param("date", "period", models.SearchParamDate), patient("subject")},
				{param("identifier", "identifier", models.SearchParamToken)},
				{patient("subject"), param("status", "status", models.SearchParamToken)},
				{param("class", "class", models.SearchParamToken), patient("subject")},
				{patient("subject"), param("type", "type", models.SearchParamToken)},
			},
			MustSupport: []string{
				"Encounter.identifier",
				"Encounter.identifier.system",
				"Encounter.identifier.value",
				"Encounter.status",
				"Encounter.class",
				"Encounter.type",
				"Encounter.subject",
				"Encounter.participant",
				"Encounter.participant.type",
				"Encounter.participant.period",
				"Encounter.participant.individual",
				"Encounter.period",
				"Encounter.reasonCode",
				"Encounter.hospitalization",
				"Encounter.hospitalization.dischargeDisposition",
				"Encounter.location",
				"Encounter.location.location",
				"Encounter.serviceProvider",
			},
			RevIncludes: provenanceTarget,
		},
		{
			EntityType:    "Practitioner",
			Title:         "Practitioner Tests",
			TestIDPrefix:  "USCPR",
			ProfileURL:    profileBase + "us-core-practitioner",
			Delayed:       true,
			RequiresToken: true,
			Interactions:  allInteractions,
			SearchParams: [][]models.SearchParam{
				{param("name", "name", models.SearchParamName)},
				{param("identifier", "identifier", models.SearchParamToken)},
			},
			MustSupport: []string{
				"Practitioner.identifier",
				"Practitioner.identifier.system",
				"Practitioner.identifier.value",
				"Practitioner.name",
				"Practitioner.name.family",
			},
			RevIncludes: provenanceTarget,
		},
		{
			EntityType:    "Organization",
			Title:         "Organization Tests",
			TestIDPrefix:  "USCO",
			ProfileURL:    profileBase + "us-core-organization",
			Delayed:       true,
			RequiresToken: true,
			Interactions:  allInteractions,
			SearchParams: [][]models.SearchParam{
				{param("name", "name", models.SearchParamString)},
				{param("address", "address.city", models.SearchParamString)},
			},
			MustSupport: []string{
				"Organization.identifier",
				"Organization.identifier.system",
				"Organization.identifier.value",
				"Organization.active",
				"Organization.name",
				"Organization.telecom",
				"Organization.address",
				"Organization.address.line",
				"Organization.address.city",
				"Organization.address.state",
				"Organization.address.postalCode",
				"Organization.address.country",
			},
			RevIncludes: provenanceTarget,
		},
	}
}

// Default builds the suite from the built-in table.
func Default() *Suite {
	s, err := New(USCore310())
	if err != nil {
		panic(err)
	}

	return s
}
