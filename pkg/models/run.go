package models

import "time"

// RunStatus is the lifecycle state of an archived run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusCancelled RunStatus = "cancelled"
	RunStatusFailed    RunStatus = "failed"
)

// Run is the archived form of a run context. The bearer token itself is never stored.
type Run struct {
	ID          string     `json:"id"                     validate:"required"`
	TargetID    string     `json:"target_id"              validate:"required"`
	TokenSet    bool       `json:"token_set"`
	EntityTypes []string   `json:"entity_types"`
	Status      RunStatus  `json:"status"                 validate:"required"`
	Error       string     `json:"error,omitempty"`
	Report      *RunReport `json:"report,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ReferenceRecord identifies one discovered instance within a run.
type ReferenceRecord struct {
	RunID      string    `json:"run_id"      validate:"required"`
	EntityType string    `json:"entity_type" validate:"required"`
	InstanceID string    `json:"instance_id" validate:"required"`
	CreatedAt  time.Time `json:"created_at"`
}
