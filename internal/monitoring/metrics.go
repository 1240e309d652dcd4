// Package monitoring exposes Prometheus metrics for the batch job and the
// HTTP API.
package monitoring

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the service exports. Each Metrics owns its
// registry so tests can create as many as they like.
type Metrics struct {
	Registry *prometheus.Registry

	BatchPairs         prometheus.Counter
	BatchRecords       prometheus.Counter
	BatchFailedBatches prometheus.Counter
	BatchDegradedAreas prometheus.Counter
	BatchDuration      prometheus.Histogram

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewMetrics registers the collectors on a fresh registry, along with the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		BatchPairs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "equitee_batch_pairs_total",
			Help: "Area/facility pairs scored by the batch job.",
		}),
		BatchRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "equitee_batch_records_written_total",
			Help: "Score records persisted by the batch job.",
		}),
		BatchFailedBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "equitee_batch_failed_batches_total",
			Help: "Record batches that could not be written after retries.",
		}),
		BatchDegradedAreas: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "equitee_batch_degraded_areas_total",
			Help: "Areas whose centroid came from a county or region default.",
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "equitee_batch_duration_seconds",
			Help:    "Wall time of batch runs.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "equitee_http_requests_total",
			Help: "HTTP requests by route pattern and status code.",
		}, []string{"route", "code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "equitee_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(
		m.BatchPairs, m.BatchRecords, m.BatchFailedBatches, m.BatchDegradedAreas, m.BatchDuration,
		m.HTTPRequests, m.HTTPDuration,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveRequest records one served request.
func (m *Metrics) ObserveRequest(route string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// Snapshot gathers the current value of every metric whose name starts with
// prefix. Histograms contribute their _count and _sum. Labelled series are
// summed under the family name. One-shot commands use it to report what a
// scrape would have seen.
func (m *Metrics) Snapshot(prefix string) (map[string]float64, error) {
	out := make(map[string]float64)
	if m == nil {
		return out, nil
	}
	families, err := m.Registry.Gather()
	if err != nil {
		return nil, err
	}
	for _, mf := range families {
		name := mf.GetName()
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				out[name] += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				out[name] += metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				out[name+"_count"] += float64(metric.GetHistogram().GetSampleCount())
				out[name+"_sum"] += metric.GetHistogram().GetSampleSum()
			}
		}
	}
	return out, nil
}
