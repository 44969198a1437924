// Package scheduler re-runs conformance runs on cron expressions.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	"github.com/dukex/conformance/pkg/models"
)

var (
	ErrDuplicateSchedule = errors.New("schedule already registered")
	ErrScheduleNotFound  = errors.New("schedule not found")
)

// RunStarter executes one run synchronously.
type RunStarter interface {
	StartRun(ctx context.Context, targetID, token string, entityTypes []string) (*models.RunReport, error)
}

type entry struct {
	schedule *models.RunSchedule
	token    string
	cronID   cron.EntryID
}

// Scheduler triggers a run for every registered schedule when its cron expression fires.
// A schedule whose previous run is still executing is skipped for that activation.
type Scheduler struct {
	runs     RunStarter
	logger   *slog.Logger
	validate *validator.Validate
	cron     *cron.Cron
	now      func() time.Time

	mu      sync.Mutex
	ctx     context.Context
	entries map[string]*entry
}

func New(runs RunStarter, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}

	logger = logger.With("module", "scheduler")
	cronLogger := &cronLogger{logger: logger}

	return &Scheduler{
		runs:     runs,
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		cron: cron.New(cron.WithLogger(cronLogger), cron.WithChain(
			cron.SkipIfStillRunning(cronLogger),
			cron.Recover(cronLogger),
		)),
		now:     func() time.Time { return time.Now().UTC() },
		ctx:     context.Background(),
		entries: make(map[string]*entry),
	}
}

// Add registers schedule. token is used for every run the schedule triggers and is kept
// in memory only.
func (s *Scheduler) Add(schedule *models.RunSchedule, token string) error {
	if err := s.validate.Struct(schedule); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[schedule.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateSchedule, schedule.ID)
	}

	if err := schedule.UpdateNextDueAt(s.now()); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", schedule.CronExpression, err)
	}

	id := schedule.ID

	cronID, err := s.cron.AddJob(schedule.CronExpression, cron.FuncJob(func() {
		s.trigger(id)
	}))
	if err != nil {
		return fmt.Errorf("failed to add cron job for schedule %s: %w", id, err)
	}

	s.entries[id] = &entry{schedule: schedule, token: token, cronID: cronID}

	s.logger.Info("schedule added",
		"schedule_id", id,
		"cron", schedule.CronExpression,
		"target_id", schedule.TargetID,
		"next_due_at", schedule.NextDueAt)

	return nil
}

func (s *Scheduler) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrScheduleNotFound, id)
	}

	s.cron.Remove(e.cronID)
	delete(s.entries, id)

	return nil
}

// Schedules returns copies of the registered schedules ordered by id.
func (s *Scheduler) Schedules() []models.RunSchedule {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedules := make([]models.RunSchedule, 0, len(s.entries))
	for _, e := range s.entries {
		schedules = append(schedules, *e.schedule)
	}

	slices.SortFunc(schedules, func(a, b models.RunSchedule) int {
		return strings.Compare(a.ID, b.ID)
	})

	return schedules
}

// Start begins firing schedules. Triggered runs use ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "scheduler started", "schedules", len(s.Schedules()))
	s.cron.Start()
}

// Stop stops firing schedules and waits for running runs to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()

	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) trigger(id string) {
	if _, err := s.RunNow(id); err != nil {
		s.logger.Error("scheduled run failed", "schedule_id", id, "error", err)
	}
}

// RunNow executes the run of schedule id immediately and moves its next due time.
func (s *Scheduler) RunNow(id string) (*models.RunReport, error) {
	s.mu.Lock()
	e, ok := s.entries[id]
	ctx := s.ctx
	s.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrScheduleNotFound, id)
	}

	schedule := e.schedule
	logger := s.logger.With("schedule_id", id)

	logger.InfoContext(ctx, "scheduled run triggered", "target_id", schedule.TargetID, "token_set", e.token != "")

	report, err := s.runs.StartRun(ctx, schedule.TargetID, e.token, schedule.EntityTypes)

	s.mu.Lock()
	nextErr := schedule.UpdateNextDueAt(s.now())
	nextDueAt := schedule.NextDueAt
	s.mu.Unlock()

	if nextErr != nil {
		logger.ErrorContext(ctx, "failed to compute next due time", "error", nextErr)
	}

	if err != nil {
		return report, err
	}

	logger.InfoContext(ctx, "scheduled run finished",
		"run_id", report.RunID,
		"status", report.Status,
		"next_due_at", nextDueAt)

	return report, nil
}

// cronLogger routes cron's own logging to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
