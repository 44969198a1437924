package models

import "time"

// SequenceReport groups the ordered results of one sequence execution.
type SequenceReport struct {
	EntityType string       `json:"entity_type"`
	Title      string       `json:"title"`
	Delayed    bool         `json:"delayed,omitempty"`
	Status     Outcome      `json:"status"`
	Summary    Summary      `json:"summary"`
	Results    []TestResult `json:"results"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

// NewSequenceReport computes status and summary for results.
func NewSequenceReport(entityType, title string, delayed bool, results []TestResult) SequenceReport {
	return SequenceReport{
		EntityType: entityType,
		Title:      title,
		Delayed:    delayed,
		Status:     WorstOutcome(results),
		Summary:    Summarize(results),
		Results:    results,
	}
}

// RunReport is the final, ordered report of one conformance run.
type RunReport struct {
	RunID       string           `json:"run_id"`
	TargetID    string           `json:"target_id"`
	Status      Outcome          `json:"status"`
	Summary     Summary          `json:"summary"`
	Sequences   []SequenceReport `json:"sequences"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt time.Time        `json:"completed_at"`
}

// Finalize recomputes the aggregate status and summary from the sequence reports.
func (r *RunReport) Finalize() {
	r.Status = OutcomePass
	r.Summary = Summary{}

	for _, sequence := range r.Sequences {
		if sequence.Status.Rank() > r.Status.Rank() {
			r.Status = sequence.Status
		}

		r.Summary.Merge(sequence.Summary)
	}
}
