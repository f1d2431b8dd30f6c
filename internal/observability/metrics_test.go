package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics("")

	m.RecordAnnouncement("save", nil)
	m.RecordAnnouncement("save", errors.New("boom"))
	m.RecordPriceFetch(nil)
	m.RecordRun("daily", 2*time.Second, nil)
	m.DaysRecorded.Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Announcements.WithLabelValues("save", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Announcements.WithLabelValues("save", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PriceFetches.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("daily", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DaysRecorded))
	assert.Greater(t, testutil.ToFloat64(m.LastSuccessTime), 0.0)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordAnnouncement("save", nil)
		m.RecordPriceFetch(nil)
		m.RecordRun("init", time.Second, nil)
		m.ObserveNodeCall("metadata", time.Now())
	})
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a := NewMetrics("")
	b := NewMetrics("")
	a.DaysRecorded.Inc()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.DaysRecorded))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics("test")
	m.DaysSkipped.Add(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "test_ledger_days_skipped_total 3")
}

func TestMetrics_Push(t *testing.T) {
	var gotPath, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	m := NewMetrics("")
	m.DaysRecorded.Inc()

	require.NoError(t, m.Push(context.Background(), server.URL, "recorder", "daily"))
	assert.True(t, strings.HasPrefix(gotPath, "/metrics/job/recorder"), gotPath)
	assert.Contains(t, gotPath, "mode/daily")
	assert.NotEmpty(t, gotBody)
}
