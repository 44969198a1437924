package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/dukex/conformance/pkg/models"
	"github.com/dukex/conformance/pkg/persistence"
)

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock

	References *MockReferenceRepository
}

// NewMockPersistence returns a mock whose ReferenceRepository is References.
func NewMockPersistence() *MockPersistence {
	return &MockPersistence{References: &MockReferenceRepository{}}
}

func (m *MockPersistence) SaveRun(ctx context.Context, run *models.Run) error {
	args := m.Called(ctx, run)

	return args.Error(0)
}

func (m *MockPersistence) RunByID(ctx context.Context, id string) (*models.Run, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Run), args.Error(1)
}

func (m *MockPersistence) Runs(ctx context.Context) ([]*models.Run, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Run), args.Error(1)
}

//nolint:ireturn
func (m *MockPersistence) ReferenceRepository() persistence.ReferenceRepository {
	return m.References
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

// MockReferenceRepository is a mock implementation of persistence.ReferenceRepository interface.
type MockReferenceRepository struct {
	mock.Mock
}

func (m *MockReferenceRepository) SaveReference(ctx context.Context, runID, entityType, instanceID string) error {
	args := m.Called(ctx, runID, entityType, instanceID)

	return args.Error(0)
}

func (m *MockReferenceRepository) References(ctx context.Context, runID, entityType string) ([]string, error) {
	args := m.Called(ctx, runID, entityType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]string), args.Error(1)
}

func (m *MockReferenceRepository) ReferencesByRun(ctx context.Context, runID string) ([]models.ReferenceRecord, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]models.ReferenceRecord), args.Error(1)
}
