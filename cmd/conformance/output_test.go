package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/conformance/pkg/cmd"
	"github.com/dukex/conformance/pkg/models"
	"github.com/dukex/conformance/pkg/suite"
)

func sampleReport() *models.RunReport {
	results := []models.TestResult{
		{TestKey: "resource_read", TestID: "USCPR-01", Name: "Can read Practitioner from the server", Outcome: models.OutcomePass},
		{TestKey: "unauthorized_search", TestID: "USCPR-02", Name: "Server rejects Practitioner search without authorization", Outcome: models.OutcomeOmit, Message: "Do not test if no bearer token set"},
	}

	report := &models.RunReport{
		RunID:     "run-1",
		TargetID:  "123",
		Sequences: []models.SequenceReport{models.NewSequenceReport("Practitioner", "Practitioner Tests", true, results)},
	}
	report.Finalize()

	return report
}

func TestWriteReport_Text(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, sampleReport(), "text"))

	out := buf.String()
	assert.Contains(t, out, "Run run-1")
	assert.Contains(t, out, "status OMIT")
	assert.Contains(t, out, "Practitioner Tests")
	assert.Contains(t, out, "USCPR-02")
	assert.Contains(t, out, "Do not test if no bearer token set")
	assert.Contains(t, out, "2 tests: 1 pass, 0 fail, 0 error, 0 skip, 1 omit")
}

func TestWriteReport_JSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, sampleReport(), "json"))

	var decoded models.RunReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, models.OutcomeOmit, decoded.Status)
	assert.Equal(t, 2, decoded.Summary.Total)
}

func TestWriteSequences(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, writeSequences(&buf, suite.Default().Definitions(), nil, "text"))

	out := buf.String()
	assert.Contains(t, out, "CarePlan Tests")
	assert.Contains(t, out, "USCCP-01")
	assert.Contains(t, out, "delayed after")
	assert.Contains(t, out, "requires token")
	assert.Contains(t, out, "supports CarePlan")
	assert.Contains(t, out, "profile not loaded")
}

func TestWriteSequences_LoadedProfiles(t *testing.T) {
	t.Parallel()

	profiles, err := cmd.NewProfiles(slog.Default(), "")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writeSequences(&buf, suite.Default().Definitions(), profiles.Profiles(), "text"))

	assert.NotContains(t, buf.String(), "profile not loaded")
}
