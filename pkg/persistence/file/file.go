// Package file provides file-based persistence for run archives and reference records.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/dukex/conformance/pkg/models"
	"github.com/dukex/conformance/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root          string
	runRepo       *RunRepository
	referenceRepo *ReferenceRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:          cleanRoot,
		runRepo:       NewRunRepository(cleanRoot),
		referenceRepo: NewReferenceRepository(cleanRoot),
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// SaveRun writes the run archive.
func (fp *Persistence) SaveRun(ctx context.Context, run *models.Run) error {
	return fp.runRepo.Save(ctx, run)
}

// RunByID reads one run archive.
func (fp *Persistence) RunByID(ctx context.Context, id string) (*models.Run, error) {
	return fp.runRepo.GetByID(ctx, id)
}

// Runs lists every archived run, newest first.
func (fp *Persistence) Runs(ctx context.Context) ([]*models.Run, error) {
	return fp.runRepo.GetAll(ctx)
}

// ReferenceRepository returns the reference repository implementation for file persistence.
func (fp *Persistence) ReferenceRepository() persistence.ReferenceRepository {
	return fp.referenceRepo
}
