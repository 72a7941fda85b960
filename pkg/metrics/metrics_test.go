package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.JobFinished("SUCCESS", 2*time.Second)
	m.JobFinished("FAILED", time.Second)
	m.JobFinished("SUCCESS", time.Second)
	m.FileClassified("NEW")
	m.FileClassified("UNCHANGED")
	m.FileClassified("NEW")
	m.FilesReaped(3)
	m.FilesReaped(0)
	m.LockContended()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.jobsTotal.WithLabelValues("SUCCESS")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobsTotal.WithLabelValues("FAILED")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.filesTotal.WithLabelValues("NEW")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.filesReaped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lockContention))
	assert.Equal(t, 1, testutil.CollectAndCount(m.jobDuration))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.FileClassified("CHANGED")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `ingest_files_classified_total{status="CHANGED"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestNop(t *testing.T) {
	var r Recorder = Nop{}
	r.JobFinished("SUCCESS", time.Second)
	r.FileClassified("NEW")
	r.FilesReaped(1)
	r.LockContended()
}
