package coordinator

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/dukex/conformance/pkg/eventbus"
	"github.com/dukex/conformance/pkg/events"
	"github.com/dukex/conformance/pkg/models"
	"github.com/dukex/conformance/pkg/otelhelper"
	"github.com/dukex/conformance/pkg/sequence"
)

func (c *Coordinator) execute(ctx context.Context, run *models.Run, steps []step, token string) (*models.RunReport, error) {
	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "coordinator.run",
		attribute.String(otelhelper.RunIDKey, run.ID),
		attribute.String(otelhelper.TargetIDKey, run.TargetID),
	)
	defer span.End()

	logger := c.logger.With("run_id", run.ID)
	logger.InfoContext(ctx, "run started",
		"target_id", run.TargetID,
		"token_set", run.TokenSet,
		"entity_types", run.EntityTypes)

	c.publish(ctx, run.ID, events.RunStarted{
		BaseEvent:   events.NewBaseEvent(events.RunStartedEvent, run.ID),
		TargetID:    run.TargetID,
		EntityTypes: run.EntityTypes,
		TokenSet:    run.TokenSet,
	})

	runContext := &sequence.RunContext{
		RunID:        run.ID,
		TargetID:     run.TargetID,
		Token:        token,
		Capabilities: c.fetchCapabilities(ctx, token),
		References:   c.store(run.ID),
		Profiles:     c.profiles,
	}

	runner := sequence.NewRunner(c.baseLogger,
		sequence.WithTracer(c.tracer),
		sequence.WithClock(c.now),
		sequence.WithResultFunc(func(definition *sequence.Definition, result models.TestResult) {
			c.publish(ctx, run.ID, events.TestCompleted{
				BaseEvent:  events.NewBaseEvent(events.TestCompletedEvent, run.ID),
				EntityType: definition.EntityType,
				Result:     result,
			})
		}),
	)

	report := &models.RunReport{
		RunID:     run.ID,
		TargetID:  run.TargetID,
		Sequences: make([]models.SequenceReport, len(steps)),
		StartedAt: c.now(),
	}

	done := make([]chan struct{}, len(steps))
	for i := range done {
		done[i] = make(chan struct{})
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(c.concurrency)

	// Steps are launched in execution order, so the steps a goroutine waits for already
	// hold or have released a slot of the group.
	for i, s := range steps {
		group.Go(func() error {
			defer close(done[i])

			for _, j := range s.waitsFor {
				select {
				case <-done[j]:
				case <-groupCtx.Done():
				}
			}

			report.Sequences[s.index] = c.runSequence(groupCtx, runner, runContext, s.definition)

			return nil
		})
	}

	_ = group.Wait()

	report.CompletedAt = c.now()
	report.Finalize()

	run.Report = report
	run.CompletedAt = &report.CompletedAt
	run.Status = models.RunStatusCompleted

	runErr := ctx.Err()
	if runErr != nil {
		run.Status = models.RunStatusCancelled
		run.Error = runErr.Error()
	}

	logger.InfoContext(ctx, "run completed",
		"status", report.Status,
		"run_status", run.Status,
		"total", report.Summary.Total,
		"failures", report.Summary.Fail,
		"errors", report.Summary.Error)

	archiveCtx := context.WithoutCancel(ctx)

	c.publish(archiveCtx, run.ID, events.RunCompleted{
		BaseEvent:  events.NewBaseEvent(events.RunCompletedEvent, run.ID),
		RunStatus:  run.Status,
		Status:     report.Status,
		Summary:    report.Summary,
		DurationMs: report.CompletedAt.Sub(report.StartedAt).Milliseconds(),
		Error:      run.Error,
	})

	if c.persistence != nil {
		if err := c.persistence.SaveRun(archiveCtx, run); err != nil {
			logger.ErrorContext(ctx, "failed to archive run report", "error", err)

			return report, fmt.Errorf("failed to archive run report: %w", err)
		}
	}

	return report, runErr
}

func (c *Coordinator) runSequence(ctx context.Context, runner *sequence.Runner, run *sequence.RunContext, definition *sequence.Definition) models.SequenceReport {
	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "coordinator.sequence",
		attribute.String(otelhelper.RunIDKey, run.RunID),
		attribute.String(otelhelper.EntityTypeKey, definition.EntityType),
		attribute.Bool(otelhelper.DelayedKey, definition.Delayed),
	)
	defer span.End()

	logger := c.logger.With("run_id", run.RunID, "entity_type", definition.EntityType)

	if run.Capabilities != nil {
		for _, entityType := range definition.ConformanceSupports {
			if !run.Capabilities.Supports(entityType) {
				logger.WarnContext(ctx, "entity type not declared in capability document", "missing", entityType)
			}
		}
	}

	sequenceClient := c.client.Clone()
	sequenceClient.SetAuth(run.Token)

	state := &sequence.State{}

	if definition.Delayed {
		ids, err := run.References.IDs(ctx, definition.EntityType)
		if err != nil {
			logger.ErrorContext(ctx, "failed to read discovered references", "error", err)
			otelhelper.SetError(span, err)
		}

		state.SeededIDs = ids

		logger.InfoContext(ctx, "delayed sequence seeded", "seeded", len(ids))
	}

	startedAt := c.now()
	results := runner.Run(ctx, definition, run, sequenceClient, state)

	report := models.NewSequenceReport(definition.EntityType, definition.Title, definition.Delayed, results)
	report.StartedAt = startedAt
	report.FinishedAt = c.now()

	c.publish(ctx, run.RunID, events.SequenceCompleted{
		BaseEvent:  events.NewBaseEvent(events.SequenceCompletedEvent, run.RunID),
		EntityType: definition.EntityType,
		Delayed:    definition.Delayed,
		Status:     report.Status,
		Summary:    report.Summary,
		DurationMs: report.FinishedAt.Sub(report.StartedAt).Milliseconds(),
	})

	return report
}

// publish sends a lifecycle event. Delivery problems are logged and never affect the run.
func (c *Coordinator) publish(ctx context.Context, runID string, event eventbus.Event) {
	if c.publisher == nil {
		return
	}

	if err := c.publisher.Publish(ctx, runID, event); err != nil {
		c.logger.WarnContext(ctx, "failed to publish event", "run_id", runID, "event_type", event.GetType(), "error", err)
	}
}
