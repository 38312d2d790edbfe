// Package metrics exposes Prometheus metrics for extraction runs and the
// HTTP API.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hurttlocker/rescuelog/internal/record"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds the rescuelog collectors.
type Metrics struct {
	RunsTotal     prometheus.Counter
	RunDuration   prometheus.Histogram
	RecordsTotal  *prometheus.CounterVec
	ItemsTotal    *prometheus.CounterVec
	EstimatedLbs  prometheus.Counter
	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec
}

// NewMetrics creates and registers the collectors on the default registry.
// Registration happens once per process; later calls return the same set.
//
// Metrics:
//   - rescuelog_extract_runs_total
//   - rescuelog_extract_duration_seconds
//   - rescuelog_records_total{direction}
//   - rescuelog_items_total{subcategory}
//   - rescuelog_estimated_lbs_total
//   - rescuelog_http_requests_total{route,code}
//   - rescuelog_http_request_duration_seconds{route}
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			RunsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "rescuelog_extract_runs_total",
				Help: "Total number of extraction runs",
			}),
			RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "rescuelog_extract_duration_seconds",
				Help:    "Duration of extraction runs in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
			}),
			RecordsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "rescuelog_records_total",
					Help: "Total number of extracted records by direction",
				},
				[]string{"direction"},
			),
			ItemsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "rescuelog_items_total",
					Help: "Total number of parsed items by subcategory",
				},
				[]string{"subcategory"}, // "" is reported as "none"
			),
			EstimatedLbs: promauto.NewCounter(prometheus.CounterOpts{
				Name: "rescuelog_estimated_lbs_total",
				Help: "Sum of estimated pounds over parsed items",
			}),
			HTTPRequests: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "rescuelog_http_requests_total",
					Help: "Total number of HTTP API requests",
				},
				[]string{"route", "code"},
			),
			HTTPDurations: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "rescuelog_http_request_duration_seconds",
					Help:    "Duration of HTTP API requests in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"route"},
			),
		}
	})
	return globalMetrics
}

// ObserveRun records one extraction run and its output.
func (m *Metrics) ObserveRun(records []record.Record, elapsed time.Duration) {
	m.RunsTotal.Inc()
	m.RunDuration.Observe(elapsed.Seconds())
	for _, rec := range records {
		m.RecordsTotal.WithLabelValues(string(rec.Direction)).Inc()
		for _, it := range rec.Items {
			cat := string(it.Subcategory)
			if cat == "" {
				cat = "none"
			}
			m.ItemsTotal.WithLabelValues(cat).Inc()
			if it.EstimatedLbs != nil && *it.EstimatedLbs > 0 {
				m.EstimatedLbs.Add(*it.EstimatedLbs)
			}
		}
	}
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(route, code string, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(route, code).Inc()
	m.HTTPDurations.WithLabelValues(route).Observe(elapsed.Seconds())
}
