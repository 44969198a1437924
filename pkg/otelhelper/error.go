package otelhelper

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/conformance/pkg/models"
)

const OutcomeMessageKey = "conformance.test.message"

func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.AddEvent("error_occurred", trace.WithAttributes(
		attrs...,
	))
}

// RecordOutcome tags span with a test outcome. Fail and error outcomes mark the span as
// failed; the other outcomes leave its status unset.
func RecordOutcome(span trace.Span, outcome models.Outcome, message string) {
	span.SetAttributes(attribute.String(OutcomeKey, string(outcome)))

	if outcome != models.OutcomeFail && outcome != models.OutcomeError {
		return
	}

	span.SetStatus(codes.Error, message)
	span.AddEvent("test_"+string(outcome), trace.WithAttributes(
		attribute.String(OutcomeMessageKey, message),
	))
}
