package sequence

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/conformance/pkg/client"
	"github.com/dukex/conformance/pkg/models"
	"github.com/dukex/conformance/pkg/otelhelper"
	"github.com/dukex/conformance/pkg/outcome"
)

// ResultFunc observes each result as soon as it is recorded.
type ResultFunc func(definition *Definition, result models.TestResult)

// Runner executes the tests of a Definition strictly in order.
type Runner struct {
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
	onResult ResultFunc
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithTracer sets the tracer used for per-test spans.
func WithTracer(tracer trace.Tracer) RunnerOption {
	return func(r *Runner) {
		r.tracer = tracer
	}
}

// WithClock overrides the result timestamp source.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		r.now = now
	}
}

// WithResultFunc registers an observer called after every recorded result.
func WithResultFunc(fn ResultFunc) RunnerOption {
	return func(r *Runner) {
		r.onResult = fn
	}
}

// NewRunner creates a runner.
func NewRunner(logger *slog.Logger, opts ...RunnerOption) *Runner {
	if logger == nil {
		logger = slog.Default()
	}

	runner := &Runner{
		logger: logger.With("module", "sequence_runner"),
		tracer: otelhelper.GlobalTracer("conformance/sequence"),
		now:    func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(runner)
	}

	return runner
}

// Run executes every test of definition against c and returns one result per executed test,
// in order. A nil state starts from an empty one. Cancellation of ctx is honored between
// tests only: a test body that has started always completes, and tests not started are not
// recorded.
func (r *Runner) Run(ctx context.Context, definition *Definition, run *RunContext, c client.Client, state *State) []models.TestResult {
	if state == nil {
		state = &State{}
	}

	logger := r.logger.With("run_id", run.RunID, "entity_type", definition.EntityType)
	t := &T{
		Definition: definition,
		Run:        run,
		State:      state,
		Client:     c,
		Logger:     logger,
	}

	results := make([]models.TestResult, 0, len(definition.Tests))

	for _, spec := range definition.Tests {
		if err := ctx.Err(); err != nil {
			logger.InfoContext(ctx, "sequence aborted", "remaining", len(definition.Tests)-len(results), "error", err)

			break
		}

		result := r.runTest(ctx, t, spec)
		results = append(results, result)

		if r.onResult != nil {
			r.onResult(definition, result)
		}
	}

	return results
}

func (r *Runner) runTest(ctx context.Context, t *T, spec TestSpec) models.TestResult {
	spanCtx, span := otelhelper.StartSpan(ctx, r.tracer, "sequence.test",
		attribute.String(otelhelper.RunIDKey, t.Run.RunID),
		attribute.String(otelhelper.EntityTypeKey, t.Definition.EntityType),
		attribute.String(otelhelper.TestKeyKey, spec.Key),
	)
	defer span.End()

	result := models.TestResult{
		TestKey:  spec.Key,
		TestID:   t.Definition.FullTestID(spec),
		Name:     spec.Name,
		Optional: spec.Optional,
	}

	result.Outcome, result.Message = r.execute(spanCtx, t, spec)
	result.Timestamp = r.now()

	otelhelper.RecordOutcome(span, result.Outcome, result.Message)

	t.Logger.InfoContext(ctx, "test completed",
		"test_key", spec.Key,
		"test_id", result.TestID,
		"outcome", result.Outcome,
		"message", result.Message)

	return result
}

func (r *Runner) execute(ctx context.Context, t *T, spec TestSpec) (result models.Outcome, message string) {
	if spec.Gate != nil && len(t.Run.Capabilities.Unsupported(spec.Gate.EntityType, spec.Gate.Interactions...)) > 0 {
		return models.OutcomeSkip, spec.Gate.SkipMessage()
	}

	if spec.Body == nil {
		return models.OutcomePass, ""
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			result, message = outcome.FromPanic(recovered)
		}
	}()

	return outcome.Classify(spec.Body(context.WithoutCancel(ctx), t))
}
