package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, server *httptest.Server, retries int) *HTTPClient {
	t.Helper()

	c, err := NewHTTPClient(Config{
		BaseURL:    server.URL + "/fhir/",
		Token:      "ABC",
		Timeout:    5 * time.Second,
		Retries:    retries,
		RetryDelay: time.Millisecond,
	}, nil)
	require.NoError(t, err)

	return c
}

func TestNewHTTPClient_RequiresBaseURL(t *testing.T) {
	_, err := NewHTTPClient(Config{}, nil)
	require.ErrorIs(t, err, ErrNoBaseURL)
}

func TestHTTPClient_Get(t *testing.T) {
	var captured *http.Request

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r
		w.Header().Set("Content-Type", fhirJSON)
		_, _ = w.Write([]byte(`{"resourceType": "Bundle", "entry": [
			{"resource": {"resourceType": "CarePlan", "id": "1"}},
			{"resource": {"resourceType": "Provenance", "id": "2"}}
		], "link": [{"relation": "next", "url": "http://next"}]}`))
	}))
	defer server.Close()

	c := newTestClient(t, server, 1)

	response, err := c.Get(context.Background(), "CarePlan", url.Values{"patient": {"123"}}, map[string]string{"X-Test": "yes"})
	require.NoError(t, err)

	assert.Equal(t, "/fhir/CarePlan", captured.URL.Path)
	assert.Equal(t, "123", captured.URL.Query().Get("patient"))
	assert.Equal(t, "Bearer ABC", captured.Header.Get("Authorization"))
	assert.Equal(t, fhirJSON, captured.Header.Get("Accept"))
	assert.Equal(t, "yes", captured.Header.Get("X-Test"))

	assert.Equal(t, http.StatusOK, response.Status)
	assert.Equal(t, "Bundle", response.ResourceType())
	assert.Len(t, response.Entries(), 2)
	assert.Len(t, response.EntriesOfType("CarePlan"), 1)
	assert.Equal(t, "http://next", response.NextLink())
}

func TestHTTPClient_SetAuthAndClone(t *testing.T) {
	var authorization atomic.Value

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization.Store(r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c := newTestClient(t, server, 1)
	clone := c.Clone()

	clone.SetAuth("")

	response, err := clone.Get(context.Background(), "CarePlan", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, response.Status)
	assert.Equal(t, "", authorization.Load())
	assert.Nil(t, response.Resource)

	assert.Equal(t, "ABC", c.Token())

	_, err = c.Get(context.Background(), "CarePlan", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "Bearer ABC", authorization.Load())
}

func TestHTTPClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)

			return
		}

		_, _ = w.Write([]byte(`{"resourceType": "CarePlan", "id": "456"}`))
	}))
	defer server.Close()

	response, err := newTestClient(t, server, 3).Get(context.Background(), "CarePlan/456", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, response.Status)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	response, err := newTestClient(t, server, 3).Get(context.Background(), "CarePlan/missing", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, response.Status)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPClient_ReturnsLastServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	response, err := newTestClient(t, server, 2).Get(context.Background(), "metadata", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, response.Status)
}

func TestFetchCapabilities(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fhir/metadata" {
			w.WriteHeader(http.StatusNotFound)

			return
		}

		_, _ = w.Write([]byte(`{"resourceType": "CapabilityStatement", "rest": [{"mode": "server",
			"resource": [{"type": "CarePlan", "interaction": [{"code": "read"}, {"code": "search-type"}]}]}]}`))
	}))
	defer server.Close()

	index, err := FetchCapabilities(context.Background(), newTestClient(t, server, 1))
	require.NoError(t, err)
	assert.True(t, index.Supports("CarePlan", "read", "search"))
}
