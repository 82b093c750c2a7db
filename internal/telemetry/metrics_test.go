package telemetry

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := New()
	m.ObserveDocument("OK", "")
	m.ObserveDocument("OK", "")
	m.ObserveDocument("FAILED", "parse")
	m.ObserveStage("extract", 120*time.Millisecond)
	m.ObserveHTTP("/api/analyze", "200", time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.documents.WithLabelValues("OK", "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.documents.WithLabelValues("FAILED", "parse")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("/api/analyze", "200")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveDocument("OK", "")
		m.ObserveStage("parse", time.Second)
		m.ObserveBatch(3)
		m.ObserveHTTP("/healthz", "200", time.Millisecond)
		m.ObserveGRPC("/x", "OK")
	})
	assert.Nil(t, m.Registry())
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveBatch(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "illustrations_batch_documents_count 1")
	assert.Contains(t, string(body), "go_goroutines")
}
