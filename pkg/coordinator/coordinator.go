// Package coordinator runs the selected sequences of one conformance run against a
// server, feeds references discovered by patient-scoped sequences to delayed ones, and
// archives the resulting report.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/conformance/pkg/capability"
	"github.com/dukex/conformance/pkg/client"
	"github.com/dukex/conformance/pkg/eventbus"
	"github.com/dukex/conformance/pkg/models"
	"github.com/dukex/conformance/pkg/otelhelper"
	"github.com/dukex/conformance/pkg/persistence"
	"github.com/dukex/conformance/pkg/profile"
	"github.com/dukex/conformance/pkg/references"
	"github.com/dukex/conformance/pkg/sequence"
)

// ErrNoTargetID is returned when a run is started without a target identifier.
var ErrNoTargetID = errors.New("target id is required")

const defaultConcurrency = 4

// Coordinator starts runs. It is safe for concurrent use; every run gets its own
// reference store, capability snapshot and client clones.
type Coordinator struct {
	definitions []*sequence.Definition
	client      client.Client
	logger      *slog.Logger
	baseLogger  *slog.Logger

	persistence   persistence.Persistence
	referenceRepo persistence.ReferenceRepository
	publisher     eventbus.EventPublisher
	profiles      profile.Validator
	capabilities  *capability.Index
	concurrency   int
	tracer        trace.Tracer
	now           func() time.Time
	newID         func() string

	wg sync.WaitGroup
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithPersistence archives every run and, unless WithReferenceRepository is given, keeps
// discovered references in the persistence's reference repository.
func WithPersistence(p persistence.Persistence) Option {
	return func(c *Coordinator) {
		c.persistence = p
	}
}

// WithReferenceRepository stores discovered references in repo.
func WithReferenceRepository(repo persistence.ReferenceRepository) Option {
	return func(c *Coordinator) {
		c.referenceRepo = repo
	}
}

// WithPublisher publishes run lifecycle events.
func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(c *Coordinator) {
		c.publisher = publisher
	}
}

// WithProfiles sets the validator used by profile conformance tests.
func WithProfiles(validator profile.Validator) Option {
	return func(c *Coordinator) {
		c.profiles = validator
	}
}

// WithCapabilities uses a fixed capability index instead of fetching the server's
// capability document at the start of every run.
func WithCapabilities(index *capability.Index) Option {
	return func(c *Coordinator) {
		c.capabilities = index
	}
}

// WithConcurrency bounds how many sequences of one run execute at the same time.
func WithConcurrency(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(c *Coordinator) {
		c.tracer = tracer
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(c *Coordinator) {
		c.newID = newID
	}
}

// New creates a coordinator for definitions. c is the prototype client; it is cloned for
// every sequence and never used directly.
func New(definitions []*sequence.Definition, c client.Client, logger *slog.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}

	coordinator := &Coordinator{
		definitions: definitions,
		client:      c,
		logger:      logger.With("module", "coordinator"),
		baseLogger:  logger,
		concurrency: defaultConcurrency,
		tracer:      otelhelper.GlobalTracer("conformance/coordinator"),
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}

	for _, opt := range opts {
		opt(coordinator)
	}

	return coordinator
}

// Definitions returns the definitions a run can select from.
func (c *Coordinator) Definitions() []*sequence.Definition {
	return c.definitions
}

// StartRun executes a run synchronously and returns its report. Sequences are reported in
// definition order. When ctx is cancelled the run stops between tests; the partial report
// is returned together with the context error.
func (c *Coordinator) StartRun(ctx context.Context, targetID, token string, entityTypes []string) (*models.RunReport, error) {
	run, steps, err := c.prepare(ctx, targetID, token, entityTypes)
	if err != nil {
		return nil, err
	}

	return c.execute(ctx, run, steps, token)
}

// Submit archives a new run and executes it in the background. The returned record is
// in the running state; the report becomes available through persistence once the run
// completes. Cancelling ctx does not stop a submitted run.
func (c *Coordinator) Submit(ctx context.Context, targetID, token string, entityTypes []string) (*models.Run, error) {
	run, steps, err := c.prepare(ctx, targetID, token, entityTypes)
	if err != nil {
		return nil, err
	}

	submitted := *run
	background := context.WithoutCancel(ctx)

	c.wg.Add(1)

	go func() {
		defer c.wg.Done()

		if _, err := c.execute(background, run, steps, token); err != nil {
			c.logger.ErrorContext(background, "submitted run finished with error", "run_id", run.ID, "error", err)
		}
	}()

	return &submitted, nil
}

// Wait blocks until every submitted run has finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) prepare(ctx context.Context, targetID, token string, entityTypes []string) (*models.Run, []step, error) {
	if targetID == "" {
		return nil, nil, ErrNoTargetID
	}

	steps, err := plan(c.definitions, entityTypes)
	if err != nil {
		return nil, nil, err
	}

	selected := make([]string, len(steps))
	for _, s := range steps {
		selected[s.index] = s.definition.EntityType
	}

	run := &models.Run{
		ID:          c.newID(),
		TargetID:    targetID,
		TokenSet:    token != "",
		EntityTypes: selected,
		Status:      models.RunStatusRunning,
		CreatedAt:   c.now(),
	}

	if c.persistence != nil {
		if err := c.persistence.SaveRun(ctx, run); err != nil {
			return nil, nil, fmt.Errorf("failed to archive run: %w", err)
		}
	}

	return run, steps, nil
}

func (c *Coordinator) store(runID string) references.Store {
	switch {
	case c.referenceRepo != nil:
		return references.NewRepository(runID, c.referenceRepo)
	case c.persistence != nil:
		return references.NewRepository(runID, c.persistence.ReferenceRepository())
	default:
		return references.NewMemory()
	}
}

// fetchCapabilities returns the configured index or the server's declared capabilities.
// A capability document that cannot be fetched leaves the index absent, which closes
// every gate.
func (c *Coordinator) fetchCapabilities(ctx context.Context, token string) *capability.Index {
	if c.capabilities != nil {
		return c.capabilities
	}

	metadataClient := c.client.Clone()
	metadataClient.SetAuth(token)

	index, err := client.FetchCapabilities(ctx, metadataClient)
	if err != nil {
		c.logger.WarnContext(ctx, "capability document unavailable, gated tests will skip", "error", err)

		return nil
	}

	c.logger.DebugContext(ctx, "capability document loaded", "entity_types", index.EntityTypes())

	return index
}
