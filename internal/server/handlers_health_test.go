package server

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innkeep/innkeep/internal/realtime"
)

func TestHandleLiveness(t *testing.T) {
	_, url := testServer(t)

	resp, err := http.Get(url + "/health/live")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body, "uptime")
}

func TestHandleReadiness_ReportsConnectionCount(t *testing.T) {
	srv, url := testServer(t)

	dialWS(t, url, "branch-a")
	waitForStats(t, srv, func(s realtime.Stats) bool { return s.Connections == 1 })

	resp, err := http.Get(url + "/health/ready")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ready", body["status"])
	assert.Equal(t, float64(1), body["connections"])
}

func TestMetricsEndpointExposed(t *testing.T) {
	_, url := testServer(t)

	resp, err := http.Get(url + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
