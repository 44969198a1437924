// Package references holds the run-scoped store of instance ids discovered by sequences,
// read back by delayed sequences of the same run.
package references

import (
	"context"
	"sync"

	"github.com/dukex/conformance/pkg/persistence"
)

// Store records discovered ids. Record is idempotent and safe for concurrent writers;
// IDs returns ids in first-insertion order.
type Store interface {
	Record(ctx context.Context, entityType, id string) error
	IDs(ctx context.Context, entityType string) ([]string, error)
}

// Memory is an in-process Store for a single run.
type Memory struct {
	mu   sync.RWMutex
	ids  map[string][]string
	seen map[string]map[string]struct{}
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		ids:  make(map[string][]string),
		seen: make(map[string]map[string]struct{}),
	}
}

// Record appends id under entityType unless it is already present.
func (m *Memory) Record(_ context.Context, entityType, id string) error {
	if entityType == "" || id == "" {
		return persistence.ErrInvalidReference
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	seen, ok := m.seen[entityType]
	if !ok {
		seen = make(map[string]struct{})
		m.seen[entityType] = seen
	}

	if _, exists := seen[id]; exists {
		return nil
	}

	seen[id] = struct{}{}
	m.ids[entityType] = append(m.ids[entityType], id)

	return nil
}

// IDs returns a copy of the ids recorded for entityType.
func (m *Memory) IDs(_ context.Context, entityType string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]string{}, m.ids[entityType]...), nil
}

// Repository adapts a persistence.ReferenceRepository to a Store bound to one run.
type Repository struct {
	runID string
	repo  persistence.ReferenceRepository
}

// NewRepository binds repo to runID.
func NewRepository(runID string, repo persistence.ReferenceRepository) *Repository {
	return &Repository{runID: runID, repo: repo}
}

// Record stores the reference in the backing repository.
func (r *Repository) Record(ctx context.Context, entityType, id string) error {
	return r.repo.SaveReference(ctx, r.runID, entityType, id)
}

// IDs reads the references of the bound run.
func (r *Repository) IDs(ctx context.Context, entityType string) ([]string, error) {
	return r.repo.References(ctx, r.runID, entityType)
}
