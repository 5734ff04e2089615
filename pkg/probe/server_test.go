package probe_test

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Phillezi/lifeline/pkg/lifecycle"
	"github.com/Phillezi/lifeline/pkg/probe"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return rec.Code, string(body)
}

func TestServer_ProbeLifecycle(t *testing.T) {
	l := lifecycle.NewLifecycle(lifecycle.WithOrchestrated(false))
	h := probe.NewServer(l).Handler()

	code, body := get(t, h, "/ready")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, lifecycle.ReasonNotReady, body)

	code, body = get(t, h, "/health")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, lifecycle.ReasonNotReady, body)

	code, body = get(t, h, "/live")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, lifecycle.ReasonNotShuttingDown, body)

	require.NoError(t, l.SetReady(t.Context(), true))

	code, body = get(t, h, "/ready")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, lifecycle.ReasonReady, body)

	require.NoError(t, l.Shutdown(t.Context()))

	for _, path := range []string{"/health", "/live", "/ready"} {
		code, body = get(t, h, path)
		assert.Equal(t, http.StatusInternalServerError, code, path)
		assert.Equal(t, lifecycle.ReasonShuttingDown, body, path)
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	l := lifecycle.NewLifecycle(lifecycle.WithOrchestrated(false))
	h := probe.NewServer(l).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ready", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	l := lifecycle.NewLifecycle(lifecycle.WithOrchestrated(false), lifecycle.WithMetrics(reg))
	h := probe.NewServer(l, probe.WithMetrics(reg)).Handler()

	_, _ = get(t, h, "/ready")
	code, body := get(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `lifeline_probe_checks_total{probe="ready",reason="SERVER_IS_NOT_READY"} 1`)
	assert.Contains(t, body, "lifeline_beacons_live 0")
}

func TestServer_NoMetricsRoute(t *testing.T) {
	l := lifecycle.NewLifecycle(lifecycle.WithOrchestrated(false))
	h := probe.NewServer(l).Handler()

	code, _ := get(t, h, "/metrics")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestServer_ListenAndServe(t *testing.T) {
	l := lifecycle.NewLifecycle(lifecycle.WithOrchestrated(false))
	require.NoError(t, l.SetReady(t.Context(), true))

	s := probe.NewServer(l)
	require.Error(t, s.Serve(), "Serve before Listen must fail")
	require.Nil(t, s.Addr())

	require.NoError(t, s.Listen(t.Context(), "127.0.0.1:0"))

	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve() }()

	resp, err := http.Get(fmt.Sprintf("http://%s/ready", s.Addr()))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(string(body), lifecycle.ReasonReady))

	require.NoError(t, s.Shutdown(t.Context()))
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}
}
