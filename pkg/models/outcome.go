// Package models defines the core conformance run models shared by the engine, persistence and API.
package models

// Outcome is the terminal state of a single executed test.
type Outcome string

const (
	OutcomePass  Outcome = "pass"
	OutcomeSkip  Outcome = "skip"
	OutcomeOmit  Outcome = "omit"
	OutcomeFail  Outcome = "fail"
	OutcomeError Outcome = "error"
)

// Outcomes lists every outcome from least to most severe.
var Outcomes = []Outcome{OutcomePass, OutcomeSkip, OutcomeOmit, OutcomeFail, OutcomeError}

// Rank orders outcomes for aggregation: error > fail > omit > skip > pass.
func (o Outcome) Rank() int {
	switch o {
	case OutcomePass:
		return 0
	case OutcomeSkip:
		return 1
	case OutcomeOmit:
		return 2
	case OutcomeFail:
		return 3
	case OutcomeError:
		return 4
	default:
		return -1
	}
}

// Valid reports whether o is one of the known outcomes.
func (o Outcome) Valid() bool {
	return o.Rank() >= 0
}

// WorstOutcome returns the most severe outcome among results. An empty slice yields pass.
func WorstOutcome(results []TestResult) Outcome {
	worst := OutcomePass

	for _, result := range results {
		if result.Outcome.Rank() > worst.Rank() {
			worst = result.Outcome
		}
	}

	return worst
}
