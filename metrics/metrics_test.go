package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// remoteWriteSink decodes remote write requests for assertions.
func remoteWriteSink(t *testing.T, received chan<- []prompb.TimeSeries) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "snappy", r.Header.Get("Content-Encoding"))
		assert.Equal(t, "application/x-protobuf", r.Header.Get("Content-Type"))
		assert.Equal(t, "0.1.0", r.Header.Get("X-Prometheus-Remote-Write-Version"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		decoded, err := snappy.Decode(nil, body)
		require.NoError(t, err)

		var writeReq prompb.WriteRequest
		require.NoError(t, proto.Unmarshal(decoded, &writeReq))
		received <- writeReq.Timeseries
		w.WriteHeader(http.StatusNoContent)
	}))
}

func findLabel(labels []prompb.Label, name string) string {
	for _, l := range labels {
		if l.Name == name {
			return l.Value
		}
	}
	return ""
}

func TestPushRegistryFlushEmpty(t *testing.T) {
	registry := NewPushRegistry(PushConfig{URL: "http://localhost:8428"})
	// No samples buffered, no request sent.
	assert.NoError(t, registry.Flush(context.Background()))
}

func TestPushRegistryFlushSingleRequest(t *testing.T) {
	received := make(chan []prompb.TimeSeries, 1)
	server := remoteWriteSink(t, received)
	defer server.Close()

	registry := NewPushRegistry(PushConfig{
		URL:      server.URL,
		Prefix:   "connectome",
		Job:      "goconnectome",
		Instance: "node-1",
	})

	gauge, err := registry.NewGauge(prometheus.GaugeOpts{
		Name: "run_duration_seconds",
		Help: "help",
	})
	require.NoError(t, err)
	gauge.Set(42.0)

	counter, err := registry.NewCounter(prometheus.CounterOpts{
		Name: "runs_total",
		Help: "help",
	})
	require.NoError(t, err)
	counter.Inc()

	require.NoError(t, registry.Flush(context.Background()))

	select {
	case series := <-received:
		require.Len(t, series, 2)

		assert.Equal(t, "connectome_run_duration_seconds", findLabel(series[0].Labels, "__name__"))
		assert.Equal(t, "goconnectome", findLabel(series[0].Labels, "job"))
		assert.Equal(t, "node-1", findLabel(series[0].Labels, "instance"))
		require.Len(t, series[0].Samples, 1)
		assert.Equal(t, 42.0, series[0].Samples[0].Value)

		assert.Equal(t, "connectome_runs_total", findLabel(series[1].Labels, "__name__"))
		assert.Equal(t, 1.0, series[1].Samples[0].Value)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for remote write request")
	}

	// The buffer is cleared by Flush.
	assert.NoError(t, registry.Flush(context.Background()))
}

func TestPushRegistryGaugeVecLabels(t *testing.T) {
	received := make(chan []prompb.TimeSeries, 1)
	server := remoteWriteSink(t, received)
	defer server.Close()

	registry := NewPushRegistry(PushConfig{URL: server.URL})

	gaugeVec, err := registry.NewGaugeVec(prometheus.GaugeOpts{
		Name: "stage_duration_seconds",
		Help: "help",
	}, []string{"variant", "stage"})
	require.NoError(t, err)

	gaugeVec.With(prometheus.Labels{"variant": "preregistered", "stage": "tracks"}).Set(123.0)
	require.NoError(t, registry.Flush(context.Background()))

	select {
	case series := <-received:
		require.Len(t, series, 1)
		assert.Equal(t, "stage_duration_seconds", findLabel(series[0].Labels, "__name__"))
		assert.Equal(t, "preregistered", findLabel(series[0].Labels, "variant"))
		assert.Equal(t, "tracks", findLabel(series[0].Labels, "stage"))
		assert.Equal(t, 123.0, series[0].Samples[0].Value)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for remote write request")
	}
}

func TestPushCounterVecAccumulates(t *testing.T) {
	registry := NewPushRegistry(PushConfig{URL: "http://localhost:8428"})

	counterVec, err := registry.NewCounterVec(prometheus.CounterOpts{
		Name: "runs_total",
		Help: "help",
	}, []string{"variant", "status"})
	require.NoError(t, err)

	labels := prometheus.Labels{"variant": "freesurfer", "status": "completed"}
	counterVec.With(labels).Inc()
	counterVec.With(labels).Inc()

	registry.mu.Lock()
	samples := registry.samples
	registry.mu.Unlock()
	require.Len(t, samples, 2)
	assert.Equal(t, 1.0, samples[0].Samples[0].Value)
	assert.Equal(t, 2.0, samples[1].Samples[0].Value)
}

func TestPushRegistryFlushBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "out of disk", http.StatusInternalServerError)
	}))
	defer server.Close()

	registry := NewPushRegistry(PushConfig{URL: server.URL})
	gauge, err := registry.NewGauge(prometheus.GaugeOpts{Name: "run_success", Help: "help"})
	require.NoError(t, err)
	gauge.Set(1)

	err = registry.Flush(context.Background())
	assert.ErrorContains(t, err, "unexpected status 500")
}

func TestScrapeRegistry(t *testing.T) {
	registry, err := NewScrapeRegistry()
	require.NoError(t, err)

	gauge, err := registry.NewGauge(prometheus.GaugeOpts{
		Name: "run_duration_seconds",
		Help: "help",
	})
	require.NoError(t, err)
	gauge.Set(42.0)

	counter, err := registry.NewCounter(prometheus.CounterOpts{
		Name: "runs_started_total",
		Help: "help",
	})
	require.NoError(t, err)
	counter.Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	registry.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "run_duration_seconds 42")
	assert.Contains(t, body, "runs_started_total 1")
}

func TestScrapeRegistryDuplicateName(t *testing.T) {
	registry, err := NewScrapeRegistry()
	require.NoError(t, err)

	_, err = registry.NewGauge(prometheus.GaugeOpts{Name: "run_success", Help: "help"})
	require.NoError(t, err)
	_, err = registry.NewGauge(prometheus.GaugeOpts{Name: "run_success", Help: "help"})
	assert.Error(t, err)
}

func TestRunMetricsObserveRun(t *testing.T) {
	registry := NewPushRegistry(PushConfig{URL: "http://localhost:8428"})

	runMetrics, err := NewRunMetrics(registry)
	require.NoError(t, err)

	runMetrics.ObserveRun("preregistered", true, 1800.5, map[string]float64{
		"tracks": 1200.0,
		"sift":   400.0,
	})

	registry.mu.Lock()
	samples := registry.samples
	registry.mu.Unlock()

	// duration + success + runs_total + two stage durations
	require.Len(t, samples, 5)

	byName := map[string]float64{}
	for _, ts := range samples {
		byName[findLabel(ts.Labels, "__name__")+"/"+findLabel(ts.Labels, "stage")] = ts.Samples[0].Value
	}
	assert.Equal(t, 1800.5, byName["run_duration_seconds/"])
	assert.Equal(t, 1.0, byName["run_success/"])
	assert.Equal(t, 1.0, byName["runs_total/"])
	assert.Equal(t, 1200.0, byName["stage_duration_seconds/tracks"])
	assert.Equal(t, 400.0, byName["stage_duration_seconds/sift"])
}
