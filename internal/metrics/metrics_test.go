// internal/metrics/metrics_test.go
package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewPrometheusRecorder(reg)

	r.ObserveStage("fetch", time.Second, nil)
	r.ObserveStage("fetch", time.Second, errors.New("boom"))
	r.ObserveRun(OutcomeCompleted, time.Minute)
	r.SetPackageCount("central", 12)
	r.IncJobRetry("index")

	assert.Equal(t, 1.0, testutil.ToFloat64(r.stageResults.WithLabelValues("fetch", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.stageResults.WithLabelValues("fetch", "error")))
	assert.Equal(t, 12.0, testutil.ToFloat64(r.packages.WithLabelValues("central")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.jobRetries.WithLabelValues("index")))

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "maven_indexer_repository_packages")
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NoopRecorder{}
	assert.NotPanics(t, func() {
		r.ObserveStage("fetch", time.Second, nil)
		r.ObserveRun(OutcomeFailed, time.Second)
		r.SetPackageCount("central", 1)
		r.IncJobRetry("sync")
	})
}
