package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devtab-sh/secure-dev-manager/internal/config"
	"github.com/devtab-sh/secure-dev-manager/internal/dispatch"
)

func newTestDispatcher(t *testing.T) *dispatch.Dispatcher {
	t.Helper()
	d := dispatch.New(config.Default(), nil)
	t.Cleanup(d.Close)
	return d
}

func TestHealthz_ReturnsOK(t *testing.T) {
	d := newTestDispatcher(t)
	router := NewRouter(d)

	req := httptest.NewRequest(http.MethodGet, "/debug/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestRecentDispatch_EmptyBeforeAnyOperations(t *testing.T) {
	d := newTestDispatcher(t)
	router := NewRouter(d)

	req := httptest.NewRequest(http.MethodGet, "/debug/dispatch", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"envelopes":[]`)
}

func TestRecentDispatch_ReflectsCompletedOperation(t *testing.T) {
	d := newTestDispatcher(t)
	d.FindProcess(dispatch.FindProcessRequest{Name: "9999999", Mode: "instant"})

	router := NewRouter(d)
	req := httptest.NewRequest(http.MethodGet, "/debug/dispatch", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"operation":"find_process"`)
}

func TestMetrics_ServesPrometheusFormat(t *testing.T) {
	d := newTestDispatcher(t)
	router := NewRouter(d)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}
