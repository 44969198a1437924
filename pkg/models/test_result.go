package models

import "time"

// TestResult is the immutable record of one executed TestSpec.
type TestResult struct {
	TestKey   string    `json:"test_key"`
	TestID    string    `json:"test_id"`
	Name      string    `json:"name"`
	Optional  bool      `json:"optional,omitempty"`
	Outcome   Outcome   `json:"outcome"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Summary counts results per outcome.
type Summary struct {
	Total int `json:"total"`
	Pass  int `json:"pass"`
	Skip  int `json:"skip"`
	Omit  int `json:"omit"`
	Fail  int `json:"fail"`
	Error int `json:"error"`
}

// Add counts one more result with the given outcome.
func (s *Summary) Add(outcome Outcome) {
	s.Total++

	switch outcome {
	case OutcomePass:
		s.Pass++
	case OutcomeSkip:
		s.Skip++
	case OutcomeOmit:
		s.Omit++
	case OutcomeFail:
		s.Fail++
	case OutcomeError:
		s.Error++
	}
}

// Merge adds every count of other into s.
func (s *Summary) Merge(other Summary) {
	s.Total += other.Total
	s.Pass += other.Pass
	s.Skip += other.Skip
	s.Omit += other.Omit
	s.Fail += other.Fail
	s.Error += other.Error
}

// Summarize builds a Summary for a list of results.
func Summarize(results []TestResult) Summary {
	var summary Summary
	for _, result := range results {
		summary.Add(result.Outcome)
	}

	return summary
}
