package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dukex/conformance/pkg/models"
	"github.com/dukex/conformance/pkg/persistence"
)

// ReferenceRepository keeps one JSON file per run holding its reference records in
// insertion order.
type ReferenceRepository struct {
	root string
	mu   sync.Mutex
}

// NewReferenceRepository creates a new reference repository.
func NewReferenceRepository(root string) *ReferenceRepository {
	return &ReferenceRepository{root: root}
}

func (rr *ReferenceRepository) path(runID string) string {
	return filepath.Join(rr.root, "references", runID+".json")
}

// SaveReference appends a record unless the same entity type and id is already stored.
func (rr *ReferenceRepository) SaveReference(_ context.Context, runID, entityType, instanceID string) error {
	if err := persistence.ValidateReference(runID, entityType, instanceID); err != nil {
		return err
	}

	rr.mu.Lock()
	defer rr.mu.Unlock()

	records, err := rr.read(runID)
	if err != nil {
		return err
	}

	for _, record := range records {
		if record.EntityType == entityType && record.InstanceID == instanceID {
			return nil
		}
	}

	records = append(records, models.ReferenceRecord{
		RunID:      runID,
		EntityType: entityType,
		InstanceID: instanceID,
		CreatedAt:  time.Now().UTC(),
	})

	return rr.write(runID, records)
}

// References returns the ids recorded for entityType in insertion order.
func (rr *ReferenceRepository) References(_ context.Context, runID, entityType string) ([]string, error) {
	if err := persistence.ValidateRunID(runID); err != nil {
		return nil, err
	}

	rr.mu.Lock()
	defer rr.mu.Unlock()

	records, err := rr.read(runID)
	if err != nil {
		return nil, err
	}

	ids := []string{}

	for _, record := range records {
		if record.EntityType == entityType {
			ids = append(ids, record.InstanceID)
		}
	}

	return ids, nil
}

// ReferencesByRun returns every record of the run in insertion order.
func (rr *ReferenceRepository) ReferencesByRun(_ context.Context, runID string) ([]models.ReferenceRecord, error) {
	if err := persistence.ValidateRunID(runID); err != nil {
		return nil, err
	}

	rr.mu.Lock()
	defer rr.mu.Unlock()

	return rr.read(runID)
}

func (rr *ReferenceRepository) read(runID string) ([]models.ReferenceRecord, error) {
	data, err := os.ReadFile(rr.path(runID)) // #nosec G304 -- runID is validated
	if err != nil {
		if os.IsNotExist(err) {
			return []models.ReferenceRecord{}, nil
		}

		return nil, fmt.Errorf("failed to read references of run %s: %w", runID, err)
	}

	var records []models.ReferenceRecord

	err = json.Unmarshal(data, &records)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal references of run %s: %w", runID, err)
	}

	return records, nil
}

func (rr *ReferenceRepository) write(runID string, records []models.ReferenceRecord) error {
	err := os.MkdirAll(filepath.Join(rr.root, "references"), 0750)
	if err != nil {
		return fmt.Errorf("failed to create references directory: %w", err)
	}

	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to marshal references of run %s: %w", runID, err)
	}

	err = os.WriteFile(rr.path(runID), data, 0600)
	if err != nil {
		return fmt.Errorf("failed to write references of run %s: %w", runID, err)
	}

	return nil
}
