// Package events defines the run lifecycle notifications published while a conformance
// run executes.
package events

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dukex/conformance/pkg/models"
)

type EventType string

// Topic carries every run lifecycle event.
const Topic = "conformance.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	RunStartedEvent        EventType = "run.started"
	TestCompletedEvent     EventType = "test.completed"
	SequenceCompletedEvent EventType = "sequence.completed"
	RunCompletedEvent      EventType = "run.completed"
)

var (
	ErrMissingRunID = errors.New("run_id is required")
	ErrUnknownEvent = errors.New("unknown event type")
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"run_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Validate checks the fields every event carries.
func (b BaseEvent) Validate() error {
	if b.RunID == "" {
		return ErrMissingRunID
	}

	return nil
}

type RunStarted struct {
	BaseEvent

	TargetID    string   `json:"target_id"`
	EntityTypes []string `json:"entity_types"`
	TokenSet    bool     `json:"token_set"`
}

func (r RunStarted) GetType() EventType {
	return RunStartedEvent
}

// TestCompleted is published once per executed test, in execution order within a sequence.
type TestCompleted struct {
	BaseEvent

	EntityType string            `json:"entity_type"`
	Result     models.TestResult `json:"result"`
}

func (t TestCompleted) GetType() EventType {
	return TestCompletedEvent
}

type SequenceCompleted struct {
	BaseEvent

	EntityType string         `json:"entity_type"`
	Delayed    bool           `json:"delayed,omitempty"`
	Status     models.Outcome `json:"status"`
	Summary    models.Summary `json:"summary"`
	DurationMs int64          `json:"duration_ms"`
}

func (s SequenceCompleted) GetType() EventType {
	return SequenceCompletedEvent
}

type RunCompleted struct {
	BaseEvent

	RunStatus  models.RunStatus `json:"run_status"`
	Status     models.Outcome   `json:"status"`
	Summary    models.Summary   `json:"summary"`
	DurationMs int64            `json:"duration_ms"`
	Error      string           `json:"error,omitempty"`
}

func (r RunCompleted) GetType() EventType {
	return RunCompletedEvent
}

func NewBaseEvent(eventType EventType, runID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		RunID:     runID,
		Metadata:  make(map[string]any),
	}
}

// New returns an empty event of eventType, ready to be decoded into.
func New(eventType EventType) (any, error) {
	switch eventType {
	case RunStartedEvent:
		return &RunStarted{}, nil
	case TestCompletedEvent:
		return &TestCompleted{}, nil
	case SequenceCompletedEvent:
		return &SequenceCompleted{}, nil
	case RunCompletedEvent:
		return &RunCompleted{}, nil
	default:
		return nil, ErrUnknownEvent
	}
}
