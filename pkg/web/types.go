// Package web provides the REST API over conformance runs.
package web

import (
	"github.com/dukex/conformance/pkg/models"
	"github.com/dukex/conformance/pkg/sequence"
)

// CreateRunRequest represents the request body for starting a new run.
type CreateRunRequest struct {
	TargetID    string   `json:"target_id"              validate:"required"`
	Token       string   `json:"token,omitempty"`
	EntityTypes []string `json:"entity_types,omitempty" validate:"omitempty,dive,required"`
}

// RunSummary is the list form of a run; the report is left out.
type RunSummary struct {
	ID          string           `json:"id"`
	TargetID    string           `json:"target_id"`
	TokenSet    bool             `json:"token_set"`
	EntityTypes []string         `json:"entity_types"`
	Status      models.RunStatus `json:"status"`
	Outcome     models.Outcome   `json:"outcome,omitempty"`
	Summary     *models.Summary  `json:"summary,omitempty"`
	CreatedAt   string           `json:"created_at"`
	CompletedAt string           `json:"completed_at,omitempty"`
}

// TestResponse describes one test of a sequence.
type TestResponse struct {
	Key         string   `json:"key"`
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Link        string   `json:"link,omitempty"`
	Versions    []string `json:"versions,omitempty"`
	Optional    bool     `json:"optional,omitempty"`
}

// SequenceResponse describes one available sequence.
type SequenceResponse struct {
	EntityType          string         `json:"entity_type"`
	Title               string         `json:"title"`
	Description         string         `json:"description,omitempty"`
	Delayed             bool           `json:"delayed"`
	DependsOn           []string       `json:"depends_on,omitempty"`
	RequiresToken       bool           `json:"requires_token"`
	ConformanceSupports []string       `json:"conformance_supports"`
	Tests               []TestResponse `json:"tests"`
}

// TransformRunSummary drops the report of run, keeping its aggregate outcome.
func TransformRunSummary(run *models.Run) RunSummary {
	summary := RunSummary{
		ID:          run.ID,
		TargetID:    run.TargetID,
		TokenSet:    run.TokenSet,
		EntityTypes: run.EntityTypes,
		Status:      run.Status,
		CreatedAt:   run.CreatedAt.Format(timeFormat),
	}

	if run.CompletedAt != nil {
		summary.CompletedAt = run.CompletedAt.Format(timeFormat)
	}

	if run.Report != nil {
		counts := run.Report.Summary
		summary.Outcome = run.Report.Status
		summary.Summary = &counts
	}

	return summary
}

// TransformSequence lists the tests of definition with their full ids.
func TransformSequence(definition *sequence.Definition) SequenceResponse {
	tests := make([]TestResponse, 0, len(definition.Tests))
	for _, spec := range definition.Tests {
		tests = append(tests, TestResponse{
			Key:         spec.Key,
			ID:          definition.FullTestID(spec),
			Name:        spec.Name,
			Description: spec.Description,
			Link:        spec.Link,
			Versions:    spec.Versions,
			Optional:    spec.Optional,
		})
	}

	return SequenceResponse{
		EntityType:          definition.EntityType,
		Title:               definition.Title,
		Description:         definition.Description,
		Delayed:             definition.Delayed,
		DependsOn:           definition.DependsOn,
		RequiresToken:       definition.RequiresToken,
		ConformanceSupports: definition.ConformanceSupports,
		Tests:               tests,
	}
}
