// Package outcome implements the control signals a test body returns to end itself with a
// skip, omit or fail outcome, and the classification of whatever a body produced.
package outcome

import (
	"errors"
	"fmt"

	"github.com/dukex/conformance/pkg/models"
)

// Signal ends a test body with a specific outcome. It is returned as an error so that
// helpers can propagate it with a plain `return err`.
type Signal struct {
	Outcome models.Outcome
	Message string
}

func (s *Signal) Error() string {
	return fmt.Sprintf("%s: %s", s.Outcome, s.Message)
}

// Skip signals that a precondition for testing was not met.
func Skip(message string) error {
	return &Signal{Outcome: models.OutcomeSkip, Message: message}
}

// Skipf is Skip with formatting.
func Skipf(format string, args ...any) error {
	return Skip(fmt.Sprintf(format, args...))
}

// Omit signals that the test does not apply to the current configuration.
func Omit(message string) error {
	return &Signal{Outcome: models.OutcomeOmit, Message: message}
}

// Fail signals a violated expectation about server behavior.
func Fail(message string) error {
	return &Signal{Outcome: models.OutcomeFail, Message: message}
}

// Failf is Fail with formatting.
func Failf(format string, args ...any) error {
	return Fail(fmt.Sprintf(format, args...))
}

// Assert returns Fail(message) when condition is false and nil otherwise.
func Assert(condition bool, message string) error {
	if condition {
		return nil
	}

	return Fail(message)
}

// IsSkip reports whether err carries a skip signal.
func IsSkip(err error) bool {
	return is(err, models.OutcomeSkip)
}

// IsOmit reports whether err carries an omit signal.
func IsOmit(err error) bool {
	return is(err, models.OutcomeOmit)
}

// IsFail reports whether err carries a fail signal.
func IsFail(err error) bool {
	return is(err, models.OutcomeFail)
}

func is(err error, want models.Outcome) bool {
	var signal *Signal
	if errors.As(err, &signal) {
		return signal.Outcome == want
	}

	return false
}

// Classify converts the value returned by a test body into an outcome and message.
// nil is a pass; a Signal anywhere in the chain yields its outcome; anything else is an error.
func Classify(err error) (models.Outcome, string) {
	if err == nil {
		return models.OutcomePass, ""
	}

	var signal *Signal
	if errors.As(err, &signal) {
		return signal.Outcome, signal.Message
	}

	return models.OutcomeError, err.Error()
}

// FromPanic converts a recovered panic value into an error outcome message.
func FromPanic(recovered any) (models.Outcome, string) {
	if err, ok := recovered.(error); ok {
		return models.OutcomeError, "unexpected fault: " + err.Error()
	}

	return models.OutcomeError, fmt.Sprintf("unexpected fault: %v", recovered)
}
