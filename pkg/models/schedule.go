package models

import (
	"time"

	"github.com/robfig/cron/v3"
)

// RunSchedule describes a recurring conformance run.
// NextDueAt is precomputed from the cron expression so callers can list upcoming runs
// without consulting the scheduler.
type RunSchedule struct {
	ID string `json:"id" validate:"required"`

	// CronExpression uses the standard 5-field format (minute hour day month weekday).
	CronExpression string `json:"cron_expression" validate:"required"`

	TargetID    string   `json:"target_id"    validate:"required"`
	EntityTypes []string `json:"entity_types"`

	NextDueAt time.Time `json:"next_due_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Active    bool      `json:"active"`
}

// NewRunSchedule creates an active schedule with the first due time calculated.
func NewRunSchedule(id, cronExpression, targetID string, entityTypes []string) (*RunSchedule, error) {
	now := time.Now().UTC()
	schedule := &RunSchedule{
		ID:             id,
		CronExpression: cronExpression,
		TargetID:       targetID,
		EntityTypes:    entityTypes,
		CreatedAt:      now,
		UpdatedAt:      now,
		Active:         true,
	}

	if err := schedule.calculateNextDueAt(now); err != nil {
		return nil, err
	}

	return schedule, nil
}

// UpdateNextDueAt moves NextDueAt to the next activation after reference.
func (s *RunSchedule) UpdateNextDueAt(reference time.Time) error {
	return s.calculateNextDueAt(reference)
}

func (s *RunSchedule) calculateNextDueAt(reference time.Time) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

	cronSchedule, err := parser.Parse(s.CronExpression)
	if err != nil {
		return err
	}

	s.NextDueAt = cronSchedule.Next(reference)
	s.UpdatedAt = time.Now().UTC()

	return nil
}
