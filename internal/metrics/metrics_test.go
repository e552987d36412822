package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_RecordRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRequest(http.MethodPost, "/api/auth/login", http.StatusOK, 20*time.Millisecond)
	c.RecordRequest(http.MethodPost, "/api/auth/login", http.StatusOK, 30*time.Millisecond)
	c.RecordRequest(http.MethodPost, "/api/auth/login", http.StatusUnauthorized, time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(c.requests.WithLabelValues(http.MethodPost, "/api/auth/login", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.requests.WithLabelValues(http.MethodPost, "/api/auth/login", "401")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.duration))
}

func TestCollector_RecordAuthEvent(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAuthEvent("login", OutcomeSuccess)
	c.RecordAuthEvent("login", OutcomeFailure)
	c.RecordAuthEvent("login", OutcomeFailure)

	assert.Equal(t, float64(1), testutil.ToFloat64(c.authEvents.WithLabelValues("login", OutcomeSuccess)))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.authEvents.WithLabelValues("login", OutcomeFailure)))
}

func TestNewCollector_DoubleRegisterPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)

	assert.Panics(t, func() { NewCollector(reg) })
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordAuthEvent("register", OutcomeSuccess)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `panel_auth_events_total{operation="register",outcome="success"} 1`)
}
