package suite

import (
	"fmt"
	"strings"

	"github.com/dukex/conformance/pkg/models"
	"github.com/dukex/conformance/pkg/sequence"
)

const (
	capabilityLink  = "https://www.hl7.org/fhir/us/core/CapabilityStatement-us-core-server.html"
	behaviorLink    = capabilityLink + "#behavior"
	revincludeLink  = "https://www.hl7.org/fhir/search.html#revinclude"
	mustSupportLink = "http://www.hl7.org/fhir/us/core/general-guidance.html#must-support"
	referencesLink  = "http://hl7.org/fhir/references.html"
)

var r4 = []string{"r4"}

// builder accumulates the ordered tests of one entity and numbers them.
type builder struct {
	config    models.EntityConfig
	recordFor []string
	tests     []sequence.TestSpec
}

// Build generates the definition of one entity. recordFor lists the delayed entity types
// whose references, once discovered in returned instances, are recorded for their
// sequences; those sequences must wait for this one.
func Build(config models.EntityConfig, recordFor []string) *sequence.Definition {
	b := &builder{config: config, recordFor: recordFor}

	if config.Delayed {
		b.buildDelayed()
	} else {
		b.buildPatientScoped()
	}

	description := config.Description
	if description == "" {
		description = fmt.Sprintf("Verify that %s resources on the FHIR server follow the US Core Implementation Guide", config.EntityType)
	}

	supports := config.ConformanceSupports
	if len(supports) == 0 {
		supports = []string{config.EntityType}
	}

	return &sequence.Definition{
		EntityType:          config.EntityType,
		Title:               config.DisplayTitle(),
		Description:         description,
		TestIDPrefix:        config.TestIDPrefix,
		Delayed:             config.Delayed,
		DependsOn:           config.DependsOn,
		RequiresToken:       config.RequiresToken,
		ConformanceSupports: supports,
		Tests:               b.tests,
	}
}

func (b *builder) add(spec sequence.TestSpec) {
	spec.ID = fmt.Sprintf("%02d", len(b.tests)+1)
	spec.Versions = r4
	b.tests = append(b.tests, spec)
}

func (b *builder) entity() string {
	return b.config.EntityType
}

func (b *builder) gate(interactions ...string) *sequence.Gate {
	return &sequence.Gate{EntityType: b.entity(), Interactions: interactions}
}

func (b *builder) buildPatientScoped() {
	if b.config.Supports(models.InteractionSearch) && len(b.config.SearchParams) > 0 {
		b.addUnauthorizedSearch()
		b.addSearch(b.config.SearchParams[0], true)

		for _, params := range b.config.SearchParams[1:] {
			b.addSearch(params, false)
		}
	}

	if b.config.Supports(models.InteractionRead) {
		b.addRead()
	}

	b.addCommonTail()
}

func (b *builder) buildDelayed() {
	if b.config.Supports(models.InteractionRead) {
		b.addResourceRead()
	}

	if b.config.Supports(models.InteractionSearch) && len(b.config.SearchParams) > 0 {
		b.addUnauthorizedSearch()
		b.addSearch(b.config.SearchParams[0], true)

		for _, params := range b.config.SearchParams[1:] {
			b.addSearch(params, false)
		}
	}

	b.addCommonTail()
}

func (b *builder) addCommonTail() {
	if b.config.Supports(models.InteractionVRead) {
		b.addVRead()
	}

	if b.config.Supports(models.InteractionHistory) {
		b.addHistory()
	}

	if b.config.Supports(models.InteractionSearch) && len(b.config.SearchParams) > 0 {
		for _, revInclude := range b.config.RevIncludes {
			b.addRevInclude(revInclude)
		}
	}

	b.addProfileConformance()

	if len(b.config.MustSupport) > 0 {
		b.addMustSupport()
	}

	b.addReferenceResolution()
}

func (b *builder) addUnauthorizedSearch() {
	b.add(sequence.TestSpec{
		Key:         "unauthorized_search",
		Name:        fmt.Sprintf("Server rejects %s search without authorization", b.entity()),
		Link:        behaviorLink,
		Description: "A server SHALL reject any unauthorized requests by returning an HTTP 401 unauthorized response code.",
		Gate:        b.gate(models.InteractionSearch),
		Body:        b.unauthorizedSearch(b.unauthorizedParams()),
	})
}

// unauthorizedParams narrows the primary combination to its patient parameter, which is
// the only value known before any instance has been fetched.
func (b *builder) unauthorizedParams() []models.SearchParam {
	primary := b.config.SearchParams[0]

	for _, param := range primary {
		if param.Kind == models.SearchParamPatient {
			return []models.SearchParam{param}
		}
	}

	return primary
}

func (b *builder) addSearch(params []models.SearchParam, primary bool) {
	names := make([]string, 0, len(params))
	for _, param := range params {
		names = append(names, param.Name)
	}

	b.add(sequence.TestSpec{
		Key:         "search_by_" + models.SearchKey(params),
		Name:        fmt.Sprintf("Server returns expected results from %s search by %s", b.entity(), strings.Join(names, "+")),
		Link:        capabilityLink,
		Description: fmt.Sprintf("A server SHALL support searching by %s on the %s resource", strings.Join(names, "+"), b.entity()),
		Gate:        b.gate(models.InteractionSearch),
		Body:        b.search(params, primary),
	})
}

func (b *builder) addRead() {
	b.add(sequence.TestSpec{
		Key:         "read_interaction",
		Name:        fmt.Sprintf("Server returns correct %s resource from %s read interaction", b.entity(), b.entity()),
		Link:        capabilityLink,
		Description: fmt.Sprintf("A server SHALL support the %s read interaction.", b.entity()),
		Gate:        b.gate(models.InteractionRead),
		Body:        b.read(),
	})
}

func (b *builder) addResourceRead() {
	b.add(sequence.TestSpec{
		Key:         "resource_read",
		Name:        fmt.Sprintf("Can read %s from the server", b.entity()),
		Link:        capabilityLink,
		Description: fmt.Sprintf("Reference to %s can be resolved and read.", b.entity()),
		Gate:        b.gate(models.InteractionRead),
		Body:        b.resourceRead(),
	})
}

func (b *builder) addVRead() {
	b.add(sequence.TestSpec{
		Key:         "vread_interaction",
		Name:        fmt.Sprintf("%s vread interaction supported", b.entity()),
		Link:        capabilityLink,
		Description: fmt.Sprintf("A server SHOULD support the %s vread interaction.", b.entity()),
		Optional:    true,
		Gate:        b.gate(models.InteractionVRead),
		Body:        b.vread(),
	})
}

func (b *builder) addHistory() {
	b.add(sequence.TestSpec{
		Key:         "history_interaction",
		Name:        fmt.Sprintf("%s history interaction supported", b.entity()),
		Link:        capabilityLink,
		Description: fmt.Sprintf("A server SHOULD support the %s history interaction.", b.entity()),
		Optional:    true,
		Gate:        b.gate(models.InteractionHistory),
		Body:        b.history(),
	})
}

func (b *builder) addRevInclude(revInclude string) {
	b.add(sequence.TestSpec{
		Key:         "revinclude_" + strings.ToLower(strings.ReplaceAll(revInclude, ":", "_")),
		Name:        "Server returns the appropriate resources from the following _revincludes: " + revInclude,
		Link:        revincludeLink,
		Description: "A Server SHALL be capable of supporting the following _revincludes: " + revInclude,
		Body:        b.revInclude(b.config.SearchParams[0], revInclude),
	})
}

func (b *builder) addProfileConformance() {
	b.add(sequence.TestSpec{
		Key:  "profile_conformance",
		Name: fmt.Sprintf("%s resources associated with Patient conform to US Core R4 profiles", b.entity()),
		Link: b.config.ProfileURL,
		Description: "This test checks if the resources returned from prior searches conform to the US Core profiles. " +
			"This includes checking for missing data elements and valueset verification.",
		Body: b.profileConformance(),
	})
}

func (b *builder) addMustSupport() {
	b.add(sequence.TestSpec{
		Key:  "must_support",
		Name: fmt.Sprintf("At least one of every must support element is provided in any %s for this patient.", b.entity()),
		Link: mustSupportLink,
		Description: fmt.Sprintf("This will look through all %s resources returned from prior searches to see if any of them provide the following must support elements: %s",
			b.entity(), strings.Join(b.config.MustSupport, ", ")),
		Body: b.mustSupport(),
	})
}

func (b *builder) addReferenceResolution() {
	b.add(sequence.TestSpec{
		Key:         "reference_resolution",
		Name:        "All references can be resolved",
		Link:        referencesLink,
		Description: "This test checks if references found in resources from prior searches can be resolved.",
		Gate:        b.gate(models.InteractionSearch, models.InteractionRead),
		Body:        b.referenceResolution(),
	})
}
