package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutcome_Rank(t *testing.T) {
	for i := 1; i < len(Outcomes); i++ {
		assert.Greater(t, Outcomes[i].Rank(), Outcomes[i-1].Rank(), Outcomes[i])
	}

	assert.False(t, Outcome("unknown").Valid())
	assert.True(t, OutcomeOmit.Valid())
}

func TestWorstOutcome(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []Outcome
		want     Outcome
	}{
		{name: "empty", want: OutcomePass},
		{name: "all pass", outcomes: []Outcome{OutcomePass, OutcomePass}, want: OutcomePass},
		{name: "omit beats skip", outcomes: []Outcome{OutcomeSkip, OutcomeOmit, OutcomePass}, want: OutcomeOmit},
		{name: "fail beats omit", outcomes: []Outcome{OutcomeOmit, OutcomeFail}, want: OutcomeFail},
		{name: "error beats everything", outcomes: []Outcome{OutcomeError, OutcomeFail, OutcomeSkip}, want: OutcomeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			results := make([]TestResult, 0, len(tt.outcomes))
			for _, outcome := range tt.outcomes {
				results = append(results, TestResult{Outcome: outcome})
			}

			assert.Equal(t, tt.want, WorstOutcome(results))
		})
	}
}

func TestRunReport_Finalize(t *testing.T) {
	report := RunReport{
		Sequences: []SequenceReport{
			NewSequenceReport("CarePlan", "CarePlan Tests", false, []TestResult{
				{Outcome: OutcomePass}, {Outcome: OutcomeSkip}, {Outcome: OutcomeFail},
			}),
			NewSequenceReport("Practitioner", "Practitioner Tests", true, []TestResult{
				{Outcome: OutcomeOmit}, {Outcome: OutcomeError},
			}),
		},
	}

	report.Finalize()

	assert.Equal(t, OutcomeFail, report.Sequences[0].Status)
	assert.Equal(t, OutcomeError, report.Status)
	assert.Equal(t, Summary{Total: 5, Pass: 1, Skip: 1, Omit: 1, Fail: 1, Error: 1}, report.Summary)
}
