package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dukex/conformance/pkg/models"
	"github.com/dukex/conformance/pkg/persistence"
)

// RunRepository handles run-related file operations.
type RunRepository struct {
	root string
}

// NewRunRepository creates a new run repository.
func NewRunRepository(root string) *RunRepository {
	return &RunRepository{root: root}
}

func (rr *RunRepository) dir() string {
	return filepath.Join(rr.root, "runs")
}

// Save writes a run to the file system, replacing a previous version.
func (rr *RunRepository) Save(_ context.Context, run *models.Run) error {
	if err := persistence.ValidateRunID(run.ID); err != nil {
		return persistence.NewRunError("SaveRun", run.ID, err)
	}

	err := os.MkdirAll(rr.dir(), 0750)
	if err != nil {
		return fmt.Errorf("failed to create runs directory: %w", err)
	}

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run %s: %w", run.ID, err)
	}

	err = os.WriteFile(filepath.Join(rr.dir(), run.ID+".json"), data, 0600)
	if err != nil {
		return fmt.Errorf("failed to write run %s: %w", run.ID, err)
	}

	return nil
}

// GetByID retrieves a run by its ID from the file system.
func (rr *RunRepository) GetByID(_ context.Context, id string) (*models.Run, error) {
	if err := persistence.ValidateRunID(id); err != nil {
		return nil, persistence.NewRunError("RunByID", id, err)
	}

	filePath := filepath.Join(rr.dir(), id+".json")

	data, err := os.ReadFile(filePath) // #nosec G304 -- id is validated and filePath constructed safely
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewRunError("RunByID", id, persistence.ErrRunNotFound)
		}

		return nil, fmt.Errorf("failed to read run %s: %w", id, err)
	}

	var run models.Run

	err = json.Unmarshal(data, &run)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal run %s: %w", id, err)
	}

	return &run, nil
}

// GetAll retrieves every run, newest first.
func (rr *RunRepository) GetAll(ctx context.Context) ([]*models.Run, error) {
	files, err := os.ReadDir(rr.dir())
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.Run{}, nil
		}

		return nil, fmt.Errorf("failed to read runs directory: %w", err)
	}

	runs := make([]*models.Run, 0, len(files))

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".json") {
			continue
		}

		run, err := rr.GetByID(ctx, strings.TrimSuffix(file.Name(), ".json"))
		if err != nil {
			return nil, err
		}

		runs = append(runs, run)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})

	return runs, nil
}
