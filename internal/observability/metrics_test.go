package observability_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/serroba/tg-dispatch/internal/delivery"
	"github.com/serroba/tg-dispatch/internal/observability"
	"github.com/serroba/tg-dispatch/internal/ratelimit"
	"github.com/serroba/tg-dispatch/internal/sender"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ ratelimit.Recorder = (*observability.Metrics)(nil)
	_ sender.JobRecorder = (*observability.Metrics)(nil)
)

func TestMetrics_ObserveAcquire(t *testing.T) {
	m := observability.NewMetrics()

	m.ObserveAcquire("global", ratelimit.OutcomeAcquired, 0)
	m.ObserveAcquire("global", ratelimit.OutcomeAcquired, 50*time.Millisecond)
	m.ObserveAcquire("chat", ratelimit.OutcomeTimeout, 65*time.Second)

	count, err := testutil.GatherAndCount(m.Registry(), "tgdispatch_ratelimit_acquire_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series per window/outcome pair")

	count, err = testutil.GatherAndCount(m.Registry(), "tgdispatch_ratelimit_wait_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMetrics_ObserveJob(t *testing.T) {
	m := observability.NewMetrics()

	m.ObserveJob(delivery.StatusSent)
	m.ObserveJob(delivery.StatusSent)
	m.ObserveJob(delivery.StatusFailed)

	count, err := testutil.GatherAndCount(m.Registry(), "tgdispatch_jobs_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMetrics_Handler(t *testing.T) {
	m := observability.NewMetrics()
	m.ObserveJob(delivery.StatusSkipped)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(body), `tgdispatch_jobs_total{status="skipped"} 1`)
}
