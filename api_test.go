package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAPIServer(t *testing.T) (*httptest.Server, *Controller, *Aggregator) {
	t.Helper()
	c, agg := newTestController(t)

	presets, err := NewPresetStore(filepath.Join(t.TempDir(), "presets.json"))
	require.NoError(t, err)

	mux := http.NewServeMux()
	NewAPI(c, agg, c.logBuf, presets).Register(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, c, agg
}

func getJSON(t *testing.T, url string, out interface{}) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

func TestAPIStatus(t *testing.T) {
	srv, _, _ := newTestAPIServer(t)

	var snap Snapshot
	resp := getJSON(t, srv.URL+"/api/status", &snap)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "idle", snap.State)
}

func TestAPIStatusMethodNotAllowed(t *testing.T) {
	srv, _, _ := newTestAPIServer(t)

	resp := postJSON(t, srv.URL+"/api/status", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestAPIRadioStartStop(t *testing.T) {
	srv, _, agg := newTestAPIServer(t)

	resp := postJSON(t, srv.URL+"/api/radio/start", radioStartRequest{Frequency: 99.5, Program: 0})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool {
		return agg.Snapshot().State == "active"
	}, 5*time.Second, 50*time.Millisecond)

	resp = postJSON(t, srv.URL+"/api/radio/stop", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "idle", agg.Snapshot().State)
}

func TestAPIRadioStartInvalid(t *testing.T) {
	srv, _, _ := newTestAPIServer(t)

	resp := postJSON(t, srv.URL+"/api/radio/start", radioStartRequest{Frequency: -1})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIPresetsCRUD(t *testing.T) {
	srv, _, _ := newTestAPIServer(t)

	resp := postJSON(t, srv.URL+"/api/presets", Preset{Name: "The Spy", Frequency: 99.5, Program: 0})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var presets []Preset
	getJSON(t, srv.URL+"/api/presets", &presets)
	require.Len(t, presets, 1)
	assert.Equal(t, "The Spy", presets[0].Name)

	resp = postJSON(t, srv.URL+"/api/presets", Preset{Frequency: 0})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/presets/0", nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	delResp.Body.Close()
	assert.Equal(t, http.StatusOK, delResp.StatusCode)

	getJSON(t, srv.URL+"/api/presets", &presets)
	assert.Empty(t, presets)
}

func TestAPIPresetMove(t *testing.T) {
	srv, _, _ := newTestAPIServer(t)

	for _, p := range []Preset{
		{Name: "A", Frequency: 99.5},
		{Name: "B", Frequency: 101.1},
		{Name: "C", Frequency: 104.9},
	} {
		resp := postJSON(t, srv.URL+"/api/presets", p)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp := postJSON(t, srv.URL+"/api/presets/2/move", map[string]int{"to": 0})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var presets []Preset
	getJSON(t, srv.URL+"/api/presets", &presets)
	require.Len(t, presets, 3)
	assert.Equal(t, "C", presets[0].Name)
	assert.Equal(t, "A", presets[1].Name)
	assert.Equal(t, "B", presets[2].Name)

	resp = postJSON(t, srv.URL+"/api/presets/9/move", map[string]int{"to": 0})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/api/presets/0/banana", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPILog(t *testing.T) {
	srv, c, _ := newTestAPIServer(t)
	c.logBuf.Append("Title: Something")

	var out struct {
		Lines []string `json:"lines"`
	}
	resp := getJSON(t, srv.URL+"/api/log", &out)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"Title: Something"}, out.Lines)
}
