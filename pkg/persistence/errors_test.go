package persistence_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dukex/conformance/pkg/persistence"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("error checking functions work correctly", func(t *testing.T) {
		runErr := persistence.NewRunError("RunByID", "run-123", persistence.ErrRunNotFound)

		assert.True(t, persistence.IsRunNotFound(runErr))
		assert.False(t, persistence.IsInvalidRunID(runErr))
		assert.True(t, errors.Is(runErr, persistence.ErrRunNotFound))
		assert.ErrorIs(t, errors.Unwrap(runErr), persistence.ErrRunNotFound)
	})

	t.Run("run error contains context", func(t *testing.T) {
		err := persistence.NewRunError("SaveRun", "run-123", persistence.ErrInvalidRunID)

		assert.Contains(t, err.Error(), "SaveRun")
		assert.Contains(t, err.Error(), "run-123")
		assert.Contains(t, err.Error(), "invalid run id")
	})
}

func TestValidateRunID(t *testing.T) {
	t.Parallel()

	assert.NoError(t, persistence.ValidateRunID("2f1c7a0e-run"))

	for _, id := range []string{"", "../etc", "a/b", `a\b`} {
		assert.True(t, persistence.IsInvalidRunID(persistence.ValidateRunID(id)), id)
	}
}

func TestValidateReference(t *testing.T) {
	t.Parallel()

	assert.NoError(t, persistence.ValidateReference("run-1", "Practitioner", "p1"))
	assert.ErrorIs(t, persistence.ValidateReference("run-1", "", "p1"), persistence.ErrInvalidReference)
	assert.ErrorIs(t, persistence.ValidateReference("run-1", "Practitioner", ""), persistence.ErrInvalidReference)
	assert.ErrorIs(t, persistence.ValidateReference("", "Practitioner", "p1"), persistence.ErrInvalidRunID)
}
