package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"psmcli/internal/report"
)

func TestGetResultsNotFound(t *testing.T) {
	handler := NewResultsHandler(t.TempDir(), nil)
	srv := httptest.NewServer(handler.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/results")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "RESULTS_NOT_FOUND", body["error_code"])
}

func TestGetResults(t *testing.T) {
	dir := t.TempDir()
	summary := report.Summary{
		RunID:   "run-1",
		Study:   "tank-winrate",
		Units:   20,
		Primary: "nearest",
		ATE:     0.023,
	}
	data, err := json.Marshal(summary)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, report.SummaryFileName), data, 0o644))

	handler := NewResultsHandler(dir, nil)
	srv := httptest.NewServer(handler.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/results")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")

	var got report.Summary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, 20, got.Units)
	assert.InDelta(t, 0.023, got.ATE, 1e-12)
}

func TestGetResultsCorruptSummary(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, report.SummaryFileName), []byte("{not json"), 0o644))

	handler := NewResultsHandler(dir, nil)
	srv := httptest.NewServer(handler.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/results")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	handler := NewResultsHandler(t.TempDir(), nil)
	srv := httptest.NewServer(handler.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	handler := NewResultsHandler(t.TempDir(), nil)
	srv := httptest.NewServer(handler.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
