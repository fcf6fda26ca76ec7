package observability

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	m.RecordProcessed("simpleTransfer", []string{"increase", "decrease"})
	m.RecordProcessed("complexTransfer", []string{"increase", "increase", "nochange"})
	m.RecordSkipped(SkipNotFound)
	m.RecordRun("success", 2*time.Second)
	m.RecordDBQuery("postgres", "insert", time.Millisecond, errors.New("boom"))
	m.RecordDBQuery("postgres", "insert", time.Millisecond, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransactionsProcessed.WithLabelValues("simpleTransfer")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.DeltasEmitted.WithLabelValues("increase")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransactionsSkipped.WithLabelValues(SkipNotFound)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DBQueryErrors.WithLabelValues("postgres", "insert")))
	assert.Greater(t, testutil.ToFloat64(m.LastSuccessfulRun), 0.0)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordProcessed("simpleTransfer", []string{"increase"})
		m.RecordSkipped(SkipMalformed)
		m.ObserveFetch(time.Second)
		m.RecordRun("failure", time.Second)
		m.RecordDBQuery("clickhouse", "insert", time.Second, nil)
	})
}

func TestNewServeMux(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)
	m.RecordSkipped(SkipMalformed)

	server := httptest.NewServer(NewServeMux(reg))
	defer server.Close()

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `test_pipeline_transactions_skipped_total{reason="malformed"} 1`))
}
