// Package persistence provides the storage abstraction for run archives and the
// references discovered while a run executes.
package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/dukex/conformance/pkg/models"
)

// Persistence archives runs and owns a reference repository.
type Persistence interface {
	SaveRun(ctx context.Context, run *models.Run) error
	RunByID(ctx context.Context, id string) (*models.Run, error)
	Runs(ctx context.Context) ([]*models.Run, error)
	ReferenceRepository() ReferenceRepository
	HealthCheck(ctx context.Context) error

	Close(ctx context.Context) error
}

// ReferenceRepository stores discovered instance ids per run and entity type.
// SaveReference is idempotent; References returns ids in first-insertion order.
type ReferenceRepository interface {
	SaveReference(ctx context.Context, runID, entityType, instanceID string) error
	References(ctx context.Context, runID, entityType string) ([]string, error)
	ReferencesByRun(ctx context.Context, runID string) ([]models.ReferenceRecord, error)
}

// ValidateRunID rejects ids that cannot be used safely as storage keys.
func ValidateRunID(runID string) error {
	if runID == "" {
		return fmt.Errorf("%w: empty", ErrInvalidRunID)
	}

	if strings.Contains(runID, "..") || strings.ContainsAny(runID, `/\`) {
		return fmt.Errorf("%w: %q contains invalid characters", ErrInvalidRunID, runID)
	}

	return nil
}

// ValidateReference checks the arguments of SaveReference.
func ValidateReference(runID, entityType, instanceID string) error {
	if err := ValidateRunID(runID); err != nil {
		return err
	}

	if entityType == "" || instanceID == "" {
		return ErrInvalidReference
	}

	return nil
}
