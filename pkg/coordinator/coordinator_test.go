package coordinator

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dukex/conformance/pkg/client"
	"github.com/dukex/conformance/pkg/eventbus"
	"github.com/dukex/conformance/pkg/events"
	"github.com/dukex/conformance/pkg/mocks"
	"github.com/dukex/conformance/pkg/models"
	"github.com/dukex/conformance/pkg/persistence/file"
	"github.com/dukex/conformance/pkg/suite"
)

const capabilityStatement = `{
	"resourceType": "CapabilityStatement",
	"rest": [{"mode": "server", "resource": [
		{"type": "CarePlan", "interaction": [{"code": "read"}, {"code": "vread"}, {"code": "history"}, {"code": "search-type"}]},
		{"type": "Practitioner", "interaction": [{"code": "read"}, {"code": "search-type"}]}
	]}]
}`

const carePlanBundle = `{"resourceType": "Bundle", "type": "searchset", "entry": [{"resource": {
	"resourceType": "CarePlan",
	"id": "456",
	"status": "active",
	"category": [{"coding": [{"code": "assess-plan"}]}],
	"subject": {"reference": "Patient/123"},
	"author": {"reference": "Practitioner/p1"}
}}]}`

type request struct {
	key           string
	authorization string
}

type server struct {
	*httptest.Server

	mu       sync.Mutex
	requests []request
	delays   map[string]time.Duration
}

func newServer(t *testing.T, routes map[string]string) *server {
	t.Helper()

	s := &server{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		if r.URL.RawQuery != "" {
			key += "?" + r.URL.Query().Encode()
		}

		s.mu.Lock()
		s.requests = append(s.requests, request{key: key, authorization: r.Header.Get("Authorization")})
		delay := s.delays[key]
		s.mu.Unlock()

		time.Sleep(delay)

		body, ok := routes[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)

			return
		}

		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(s.Close)

	return s
}

// delay holds every reply to key for d.
func (s *server) delay(key string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.delays == nil {
		s.delays = map[string]time.Duration{}
	}

	s.delays[key] = d
}

func (s *server) recorded() []request {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]request{}, s.requests...)
}

func (s *server) keys() []string {
	keys := make([]string, 0)
	for _, r := range s.recorded() {
		keys = append(keys, r.key)
	}

	return keys
}

func newCoordinator(t *testing.T, s *server, opts ...Option) *Coordinator {
	t.Helper()

	c, err := client.NewHTTPClient(client.Config{BaseURL: s.URL + "/fhir", Timeout: 5 * time.Second}, nil)
	require.NoError(t, err)

	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	opts = append([]Option{
		WithIDGenerator(func() string { return "run-1" }),
		WithClock(func() time.Time { return fixed }),
	}, opts...)

	return New(suite.Default().Definitions(), c, nil, opts...)
}

func resultFor(t *testing.T, report models.SequenceReport, key string) models.TestResult {
	t.Helper()

	for _, result := range report.Results {
		if result.TestKey == key {
			return result
		}
	}

	require.Failf(t, "missing result", "no result for %s", key)

	return models.TestResult{}
}

func fullRoutes() map[string]string {
	return map[string]string{
		"/fhir/metadata": capabilityStatement,
		"/fhir/CarePlan?category=assess-plan&patient=123": carePlanBundle,
		"/fhir/Practitioner/p1": `{"resourceType": "Practitioner", "id": "p1", "name": [{"family": "Smith"}]}`,
	}
}

func TestStartRun_FeedsDelayedSequence(t *testing.T) {
	s := newServer(t, fullRoutes())
	coordinator := newCoordinator(t, s)

	report, err := coordinator.StartRun(context.Background(), "123", "ABC", []string{"Practitioner", "CarePlan"})
	require.NoError(t, err)

	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, "123", report.TargetID)
	require.Len(t, report.Sequences, 2)
	assert.Equal(t, "CarePlan", report.Sequences[0].EntityType)
	assert.Equal(t, "Practitioner", report.Sequences[1].EntityType)
	assert.True(t, report.Sequences[1].Delayed)

	search := resultFor(t, report.Sequences[0], "search_by_patient_category")
	assert.Equal(t, models.OutcomePass, search.Outcome, search.Message)
	assert.Equal(t, "USCCP-02", search.TestID)

	read := resultFor(t, report.Sequences[1], "resource_read")
	assert.Equal(t, models.OutcomePass, read.Outcome, read.Message)

	for _, r := range s.recorded() {
		if r.key == "/fhir/CarePlan?category=assess-plan&patient=123" {
			assert.Equal(t, "Bearer ABC", r.authorization)
		}
	}

	assert.Equal(t, report.Sequences[0].Summary.Total+report.Sequences[1].Summary.Total, report.Summary.Total)
}

func TestStartRun_DelayedWithoutReferencesNeverSearches(t *testing.T) {
	s := newServer(t, fullRoutes())
	coordinator := newCoordinator(t, s)

	report, err := coordinator.StartRun(context.Background(), "123", "ABC", []string{"Practitioner"})
	require.NoError(t, err)
	require.Len(t, report.Sequences, 1)

	sequence := report.Sequences[0]
	read := resultFor(t, sequence, "resource_read")
	assert.Equal(t, models.OutcomeSkip, read.Outcome)
	assert.Equal(t, "No Practitioner references found from the prior searches", read.Message)

	for _, result := range sequence.Results {
		assert.NotEqual(t, models.OutcomePass, result.Outcome, result.TestKey)
	}

	assert.Equal(t, []string{"/fhir/metadata"}, s.keys())
}

func TestStartRun_WithoutCapabilityDocument(t *testing.T) {
	s := newServer(t, map[string]string{})
	coordinator := newCoordinator(t, s)

	report, err := coordinator.StartRun(context.Background(), "123", "ABC", []string{"CarePlan"})
	require.NoError(t, err)

	unauthorized := resultFor(t, report.Sequences[0], "unauthorized_search")
	assert.Equal(t, models.OutcomeSkip, unauthorized.Outcome)
	assert.Equal(t, "This server does not support CarePlan search operation(s) according to conformance statement.", unauthorized.Message)
}

func TestStartRun_Validation(t *testing.T) {
	s := newServer(t, fullRoutes())
	coordinator := newCoordinator(t, s)

	_, err := coordinator.StartRun(context.Background(), "", "ABC", nil)
	require.ErrorIs(t, err, ErrNoTargetID)

	_, err = coordinator.StartRun(context.Background(), "123", "ABC", []string{"Observation"})
	require.ErrorIs(t, err, ErrUnknownEntityType)

	assert.Empty(t, s.recorded())
}

func TestStartRun_Cancelled(t *testing.T) {
	s := newServer(t, fullRoutes())
	coordinator := newCoordinator(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := coordinator.StartRun(ctx, "123", "ABC", []string{"CarePlan", "Practitioner"})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)

	for _, sequence := range report.Sequences {
		assert.Empty(t, sequence.Results, sequence.EntityType)
	}
}

func TestStartRun_PublishesLifecycleEvents(t *testing.T) {
	s := newServer(t, fullRoutes())
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, "run-1", mock.Anything).Return(nil)

	coordinator := newCoordinator(t, s, WithPublisher(bus))

	report, err := coordinator.StartRun(context.Background(), "123", "", []string{"CarePlan", "Practitioner"})
	require.NoError(t, err)

	counts := map[events.EventType]int{}
	var order []events.EventType

	for _, call := range bus.Calls {
		eventType := call.Arguments.Get(2).(eventbus.Event).GetType()
		counts[eventType]++
		order = append(order, eventType)
	}

	require.NotEmpty(t, order)
	assert.Equal(t, events.RunStartedEvent, order[0])
	assert.Equal(t, events.RunCompletedEvent, order[len(order)-1])
	assert.Equal(t, 2, counts[events.SequenceCompletedEvent])
	assert.Equal(t, report.Summary.Total, counts[events.TestCompletedEvent])

	completed := bus.Calls[len(bus.Calls)-1].Arguments.Get(2).(events.RunCompleted)
	assert.Equal(t, models.RunStatusCompleted, completed.RunStatus)
	assert.Equal(t, report.Status, completed.Status)
}

func TestStartRun_ArchivesRunAndReferences(t *testing.T) {
	s := newServer(t, fullRoutes())
	store := file.NewPersistence(t.TempDir())
	coordinator := newCoordinator(t, s, WithPersistence(store))

	_, err := coordinator.StartRun(context.Background(), "123", "ABC", []string{"CarePlan", "Practitioner"})
	require.NoError(t, err)

	run, err := store.RunByID(context.Background(), "run-1")
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.True(t, run.TokenSet)
	assert.Equal(t, []string{"CarePlan", "Practitioner"}, run.EntityTypes)
	require.NotNil(t, run.Report)
	assert.Len(t, run.Report.Sequences, 2)
	assert.NotNil(t, run.CompletedAt)

	practitioners, err := store.ReferenceRepository().References(context.Background(), "run-1", "Practitioner")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, practitioners)

	carePlans, err := store.ReferenceRepository().References(context.Background(), "run-1", "CarePlan")
	require.NoError(t, err)
	assert.Equal(t, []string{"456"}, carePlans)
}

func TestSubmit(t *testing.T) {
	s := newServer(t, fullRoutes())
	store := file.NewPersistence(t.TempDir())
	coordinator := newCoordinator(t, s, WithPersistence(store), WithConcurrency(1))

	run, err := coordinator.Submit(context.Background(), "123", "ABC", []string{"CarePlan"})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, run.Status)
	assert.Nil(t, run.Report)

	coordinator.Wait()

	archived, err := store.RunByID(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, archived.Status)
	require.NotNil(t, archived.Report)
	assert.Equal(t, "CarePlan", archived.Report.Sequences[0].EntityType)
}

func TestStartRun_ArchiveFailures(t *testing.T) {
	t.Run("before the run starts", func(t *testing.T) {
		s := newServer(t, fullRoutes())
		store := mocks.NewMockPersistence()
		store.On("SaveRun", mock.Anything, mock.Anything).Return(errors.New("disk full"))

		coordinator := newCoordinator(t, s, WithPersistence(store))

		report, err := coordinator.StartRun(context.Background(), "123", "ABC", []string{"CarePlan"})
		require.ErrorContains(t, err, "failed to archive run: disk full")
		assert.Nil(t, report)
		assert.Empty(t, s.recorded())
	})

	t.Run("after the run completes", func(t *testing.T) {
		s := newServer(t, fullRoutes())
		store := mocks.NewMockPersistence()
		store.On("SaveRun", mock.Anything, mock.Anything).Return(nil).Once()
		store.On("SaveRun", mock.Anything, mock.Anything).Return(errors.New("disk full")).Once()
		store.References.On("SaveReference", mock.Anything, "run-1", mock.Anything, mock.Anything).Return(nil).Maybe()

		coordinator := newCoordinator(t, s, WithPersistence(store))

		report, err := coordinator.StartRun(context.Background(), "123", "ABC", []string{"CarePlan"})
		require.ErrorContains(t, err, "failed to archive run report: disk full")
		require.NotNil(t, report)
		assert.Len(t, report.Sequences, 1)

		store.AssertNumberOfCalls(t, "SaveRun", 2)
		store.References.AssertCalled(t, "SaveReference", mock.Anything, "run-1", "CarePlan", "456")
		store.References.AssertCalled(t, "SaveReference", mock.Anything, "run-1", "Practitioner", "p1")
	})
}

func TestStartRun_DelayedSequenceWaitsForDelayedContributor(t *testing.T) {
	routes := fullRoutes()
	routes["/fhir/metadata"] = `{
		"resourceType": "CapabilityStatement",
		"rest": [{"mode": "server", "resource": [
			{"type": "CarePlan", "interaction": [{"code": "read"}, {"code": "search-type"}]},
			{"type": "Practitioner", "interaction": [{"code": "read"}, {"code": "search-type"}]},
			{"type": "Organization", "interaction": [{"code": "read"}]}
		]}]
	}`
	routes["/fhir/Practitioner?name=Smith"] = `{"resourceType": "Bundle", "type": "searchset", "entry": [{"resource": {
		"resourceType": "Practitioner",
		"id": "p1",
		"name": [{"family": "Smith"}],
		"qualification": [{"issuer": {"reference": "Organization/o1"}}]
	}}]}`
	routes["/fhir/Organization/o1"] = `{"resourceType": "Organization", "id": "o1", "name": "Acme"}`

	s := newServer(t, routes)
	s.delay("/fhir/Practitioner?name=Smith", 300*time.Millisecond)

	coordinator := newCoordinator(t, s, WithConcurrency(4))

	report, err := coordinator.StartRun(context.Background(), "123", "ABC", []string{"CarePlan", "Practitioner", "Organization"})
	require.NoError(t, err)
	require.Len(t, report.Sequences, 3)

	search := resultFor(t, report.Sequences[1], "search_by_name")
	assert.Equal(t, models.OutcomePass, search.Outcome, search.Message)

	read := resultFor(t, report.Sequences[2], "resource_read")
	assert.Equal(t, models.OutcomePass, read.Outcome, read.Message)
	assert.Contains(t, s.keys(), "/fhir/Organization/o1")
}

func TestStartRun_RunnerLogsCarryOneModule(t *testing.T) {
	var buf bytes.Buffer

	s := newServer(t, fullRoutes())
	c, err := client.NewHTTPClient(client.Config{BaseURL: s.URL + "/fhir", Timeout: 5 * time.Second}, nil)
	require.NoError(t, err)

	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	coordinator := New(suite.Default().Definitions(), c, logger)

	_, err = coordinator.StartRun(context.Background(), "123", "ABC", []string{"CarePlan"})
	require.NoError(t, err)

	runnerLines := 0

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		assert.LessOrEqual(t, strings.Count(line, `"module":`), 1, line)

		if strings.Contains(line, `"module":"sequence_runner"`) {
			runnerLines++
		}
	}

	assert.Positive(t, runnerLines)
}
