package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dukex/conformance/pkg/coordinator"
	"github.com/dukex/conformance/pkg/mocks"
	"github.com/dukex/conformance/pkg/models"
	"github.com/dukex/conformance/pkg/persistence/file"
	"github.com/dukex/conformance/pkg/sequence"
	"github.com/dukex/conformance/pkg/suite"
	"github.com/dukex/conformance/pkg/web"
)

type mockRunSubmitter struct {
	mock.Mock
}

func (m *mockRunSubmitter) Submit(ctx context.Context, targetID, token string, entityTypes []string) (*models.Run, error) {
	args := m.Called(ctx, targetID, token, entityTypes)

	run, _ := args.Get(0).(*models.Run)

	return run, args.Error(1)
}

func (m *mockRunSubmitter) Definitions() []*sequence.Definition {
	return suite.Default().Definitions()
}

func setupTestApp(t *testing.T) (*fiber.App, *mockRunSubmitter, *file.Persistence) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())
	runs := &mockRunSubmitter{}
	handlers := web.NewAPIHandlers(runs, store, validator.New(validator.WithRequiredStructEnabled()), nil)

	app := fiber.New()
	handlers.Register(app)

	return app, runs, store
}

func do(t *testing.T, app *fiber.App, method, target string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader = http.NoBody

	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewBuffer(encoded)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, data
}

func archivedRun(t *testing.T, store *file.Persistence, id string) *models.Run {
	t.Helper()

	createdAt := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	completedAt := createdAt.Add(time.Minute)

	run := &models.Run{
		ID:          id,
		TargetID:    "123",
		TokenSet:    true,
		EntityTypes: []string{"CarePlan"},
		Status:      models.RunStatusCompleted,
		CreatedAt:   createdAt,
		CompletedAt: &completedAt,
		Report: &models.RunReport{
			RunID:    id,
			TargetID: "123",
			Status:   models.OutcomeFail,
			Summary:  models.Summary{Total: 2, Pass: 1, Fail: 1},
		},
	}

	require.NoError(t, store.SaveRun(context.Background(), run))

	return run
}

func TestAPIHandlers_CreateRun(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		body           any
		submit         bool
		submitErr      error
		expectedStatus int
		expectedDetail string
	}{
		{
			name:           "accepted",
			body:           web.CreateRunRequest{TargetID: "123", Token: "ABC", EntityTypes: []string{"CarePlan"}},
			submit:         true,
			expectedStatus: http.StatusAccepted,
		},
		{
			name:           "missing target",
			body:           web.CreateRunRequest{Token: "ABC"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "blank entity type",
			body:           web.CreateRunRequest{TargetID: "123", EntityTypes: []string{""}},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "unknown entity type",
			body:           web.CreateRunRequest{TargetID: "123", EntityTypes: []string{"Observation"}},
			submit:         true,
			submitErr:      coordinator.ErrUnknownEntityType,
			expectedStatus: http.StatusBadRequest,
			expectedDetail: coordinator.ErrUnknownEntityType.Error(),
		},
		{
			name:           "invalid json",
			body:           "{",
			expectedStatus: http.StatusBadRequest,
			expectedDetail: "Invalid JSON format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app, runs, _ := setupTestApp(t)

			if tt.submit {
				req := tt.body.(web.CreateRunRequest)

				var run *models.Run
				if tt.submitErr == nil {
					run = &models.Run{ID: "run-1", TargetID: req.TargetID, TokenSet: req.Token != "", Status: models.RunStatusRunning}
				}

				runs.On("Submit", mock.Anything, req.TargetID, req.Token, req.EntityTypes).Return(run, tt.submitErr)
			}

			resp, body := do(t, app, http.MethodPost, "/runs", tt.body)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode, string(body))

			var decoded map[string]any
			require.NoError(t, json.Unmarshal(body, &decoded))

			if tt.expectedStatus == http.StatusAccepted {
				assert.Equal(t, "run-1", decoded["id"])
				assert.Equal(t, "running", decoded["status"])
				assert.Equal(t, true, decoded["token_set"])
				assert.Equal(t, "/runs/run-1", resp.Header.Get("Location"))
			}

			if tt.expectedDetail != "" {
				assert.Contains(t, decoded["detail"], tt.expectedDetail)
			}

			runs.AssertExpectations(t)
		})
	}
}

func TestAPIHandlers_GetRuns(t *testing.T) {
	t.Parallel()

	app, _, store := setupTestApp(t)
	archivedRun(t, store, "run-1")

	resp, body := do(t, app, http.MethodGet, "/runs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var decoded struct {
		Runs       []web.RunSummary `json:"runs"`
		TotalCount int              `json:"total_count"`
	}
	require.NoError(t, json.Unmarshal(body, &decoded))

	require.Equal(t, 1, decoded.TotalCount)
	assert.Equal(t, "run-1", decoded.Runs[0].ID)
	assert.Equal(t, models.OutcomeFail, decoded.Runs[0].Outcome)
	require.NotNil(t, decoded.Runs[0].Summary)
	assert.Equal(t, 2, decoded.Runs[0].Summary.Total)
	assert.Equal(t, "2024-05-01T10:01:00Z", decoded.Runs[0].CompletedAt)
}

func TestAPIHandlers_GetRun(t *testing.T) {
	t.Parallel()

	app, _, store := setupTestApp(t)
	archivedRun(t, store, "run-1")

	resp, body := do(t, app, http.MethodGet, "/runs/run-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var run models.Run
	require.NoError(t, json.Unmarshal(body, &run))
	assert.Equal(t, "run-1", run.ID)
	require.NotNil(t, run.Report)
	assert.Equal(t, models.OutcomeFail, run.Report.Status)

	resp, body = do(t, app, http.MethodGet, "/runs/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "run not found")
}

func TestAPIHandlers_GetRunReferences(t *testing.T) {
	t.Parallel()

	app, _, store := setupTestApp(t)
	archivedRun(t, store, "run-1")

	repo := store.ReferenceRepository()
	require.NoError(t, repo.SaveReference(context.Background(), "run-1", "CarePlan", "456"))
	require.NoError(t, repo.SaveReference(context.Background(), "run-1", "Practitioner", "p1"))

	resp, body := do(t, app, http.MethodGet, "/runs/run-1/references", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var decoded struct {
		RunID      string                   `json:"run_id"`
		References []models.ReferenceRecord `json:"references"`
	}
	require.NoError(t, json.Unmarshal(body, &decoded))

	assert.Equal(t, "run-1", decoded.RunID)
	require.Len(t, decoded.References, 2)
	assert.Equal(t, "Practitioner", decoded.References[1].EntityType)
	assert.Equal(t, "p1", decoded.References[1].InstanceID)

	resp, _ = do(t, app, http.MethodGet, "/runs/missing/references", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIHandlers_GetSequences(t *testing.T) {
	t.Parallel()

	app, _, _ := setupTestApp(t)

	resp, body := do(t, app, http.MethodGet, "/sequences", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var decoded struct {
		Sequences []web.SequenceResponse `json:"sequences"`
	}
	require.NoError(t, json.Unmarshal(body, &decoded))

	require.Len(t, decoded.Sequences, len(suite.Default().Definitions()))

	for _, listed := range decoded.Sequences {
		if listed.EntityType != "Practitioner" {
			continue
		}

		assert.True(t, listed.Delayed)
		assert.True(t, listed.RequiresToken)
		assert.NotEmpty(t, listed.DependsOn)
		assert.Equal(t, []string{"Practitioner"}, listed.ConformanceSupports)
		require.NotEmpty(t, listed.Tests)
		assert.Equal(t, "resource_read", listed.Tests[0].Key)
		assert.Equal(t, "USCPR-01", listed.Tests[0].ID)
	}
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	t.Parallel()

	app, _, _ := setupTestApp(t)

	resp, body := do(t, app, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"status":"healthy"`)
}

func TestAPIHandlers_HealthCheckUnhealthy(t *testing.T) {
	t.Parallel()

	store := mocks.NewMockPersistence()
	store.On("HealthCheck", mock.Anything).Return(errors.New("connection refused"))

	handlers := web.NewAPIHandlers(&mockRunSubmitter{}, store, validator.New(), nil)
	app := fiber.New()
	handlers.Register(app)

	resp, body := do(t, app, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, string(body), "connection refused")
	store.AssertExpectations(t)
}

func TestAPIHandlers_GetRunsFailure(t *testing.T) {
	t.Parallel()

	store := mocks.NewMockPersistence()
	store.On("Runs", mock.Anything).Return(nil, errors.New("connection refused"))

	handlers := web.NewAPIHandlers(&mockRunSubmitter{}, store, validator.New(), nil)
	app := fiber.New()
	handlers.Register(app)

	resp, body := do(t, app, http.MethodGet, "/runs", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, string(body), "internal_error")
}
