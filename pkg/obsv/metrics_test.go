package obsv

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoOp(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ForkStarted()
		m.ForkFinished()
		m.SetEventQueueDepth("ready", 3)
		m.CacheHit()
		m.CacheMiss()
		m.Retried()
		m.ObserveOperation("Summarize", 0.2)
		m.RecordOperationError("Summarize", "timeout")
	})
}

func TestNilMetricsHandlerReturns503(t *testing.T) {
	var m *Metrics
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsExposesCountersAfterUse(t *testing.T) {
	m := New()
	m.ForkStarted()
	m.CacheHit()
	m.ObserveOperation("Summarize", 0.05)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "orchid_fork_branches_total")
	assert.Contains(t, body, "orchid_cache_hits_total")
	assert.Contains(t, body, "orchid_operation_duration_seconds")
}
