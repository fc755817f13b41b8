package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymesh/backend/internal/config"
	"github.com/relaymesh/backend/internal/events"
	"github.com/relaymesh/backend/internal/hooks"
	"github.com/relaymesh/backend/internal/machine"
	"github.com/relaymesh/backend/internal/metrics"
	"github.com/relaymesh/backend/internal/relayer"
)

func testServer(t *testing.T, launched bool) *httptest.Server {
	t.Helper()
	cfg := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	bus := events.NewBus()

	rel := relayer.New(relayer.Options{Metrics: m, Bus: bus})
	if launched {
		rel.Launch()
	}
	mach := machine.New(cfg, hooks.Defaults())

	srv := httptest.NewServer(NewServer(mach, rel, bus, registry).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthz(t *testing.T) {
	srv := testServer(t, true)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatusReflectsRelayerReadiness(t *testing.T) {
	for _, launched := range []bool{false, true} {
		srv := testServer(t, launched)

		resp, err := http.Get(srv.URL + "/api/status")
		require.NoError(t, err)

		var status map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
		resp.Body.Close()

		assert.Equal(t, launched, status["relayer_ready"], "launched=%v", launched)
	}
}

func TestNodesEmpty(t *testing.T) {
	srv := testServer(t, true)

	resp, err := http.Get(srv.URL + "/api/nodes")
	require.NoError(t, err)
	defer resp.Body.Close()

	var nodes []map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&nodes))
	assert.Empty(t, nodes)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := testServer(t, true)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
