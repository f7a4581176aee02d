package prompush

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybernetics/pgslice/internal/metrics"
)

func summaryOf(t *testing.T, v *prometheus.SummaryVec, labels ...string) *dto.Summary {
	t.Helper()
	var m dto.Metric
	require.NoError(t, v.WithLabelValues(labels...).(prometheus.Metric).Write(&m))
	require.NotNil(t, m.GetSummary())
	return m.GetSummary()
}

func TestNewBackend(t *testing.T) {
	_, err := NewBackend("nightly", "")
	require.Error(t, err)

	b, err := NewBackend("", "http://pushgateway:9091")
	require.NoError(t, err)
	assert.Equal(t, "pgslice", b.jobName)

	b, err = NewBackend("nightly", "http://pushgateway:9091")
	require.NoError(t, err)
	assert.Equal(t, "nightly", b.jobName)
	assert.Equal(t, "http://pushgateway:9091", b.gatewayURL)
}

func TestCountersUseTableLabel(t *testing.T) {
	b, err := NewBackend("", "http://example.com")
	require.NoError(t, err)

	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"job": "public.events", "step": "fill", "status": "success"})
	b.IncCounter(metrics.RowsTotal, 500, metrics.Labels{"job": "public.events", "kind": "copied"})
	b.IncCounter(metrics.RowsTotal, 250, metrics.Labels{"job": "public.events", "kind": "copied"})
	b.IncCounter(metrics.BatchesTotal, 2, metrics.Labels{"job": "public.events"})
	b.IncCounter("pgslice_unknown_total", 10, metrics.Labels{"job": "public.events"})

	assert.Equal(t, float64(1), testutil.ToFloat64(b.stepCounter.WithLabelValues("public.events", "fill", "success")))
	assert.Equal(t, float64(750), testutil.ToFloat64(b.rowCounter.WithLabelValues("public.events", "copied")))
	assert.Equal(t, float64(2), testutil.ToFloat64(b.batchCounter.WithLabelValues("public.events")))
}

func TestStepDurationSummary(t *testing.T) {
	b, err := NewBackend("", "http://example.com")
	require.NoError(t, err)
	lbls := metrics.Labels{"job": "public.events", "step": "swap", "status": "success"}

	b.ObserveHistogram(metrics.StepDurationSeconds, 1.5, lbls)
	b.ObserveHistogram("pgslice_other_seconds", 2, lbls)

	s := summaryOf(t, b.stepDuration, "public.events", "swap", "success")
	assert.Equal(t, uint64(1), s.GetSampleCount())
	assert.Equal(t, 1.5, s.GetSampleSum())
}

func TestZeroBackendIgnoresCalls(t *testing.T) {
	b := &Backend{}
	assert.NotPanics(t, func() {
		b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "prep", "status": "success"})
		b.IncCounter(metrics.RowsTotal, 1, metrics.Labels{"kind": "copied"})
		b.IncCounter(metrics.BatchesTotal, 1, nil)
		b.ObserveHistogram(metrics.StepDurationSeconds, 1, nil)
	})
}

func TestFlushPushesToGateway(t *testing.T) {
	type request struct {
		method, path string
		size         int
	}
	got := make(chan request, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- request{r.Method, r.URL.Path, len(body)}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	b, err := NewBackend("nightly", srv.URL)
	require.NoError(t, err)
	b.IncCounter(metrics.BatchesTotal, 1, metrics.Labels{"job": "public.events"})
	require.NoError(t, b.Flush())

	select {
	case req := <-got:
		assert.Equal(t, http.MethodPut, req.method)
		assert.Contains(t, req.path, "/job/nightly")
		assert.Positive(t, req.size)
	default:
		t.Fatal("no request reached the gateway")
	}
}

func TestFlushReportsGatewayErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	b, err := NewBackend("nightly", srv.URL)
	require.NoError(t, err)
	assert.Error(t, b.Flush())
}
