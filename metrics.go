package couchbase

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts key-value traffic and config churn.  One instance is
// shared per process; registering the same collectors twice panics, so
// construction is guarded by a sync.Once.
type Metrics struct {
	operationCount    *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	configUpdateCount *prometheus.CounterVec
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			operationCount: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "cbkv_operations_total",
				Help: "Number of key-value operations dispatched.",
			}, []string{"operation", "status"}),
			operationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "cbkv_operation_duration_seconds",
				Help:    "Key-value operation latency.",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
			}, []string{"operation"}),
			configUpdateCount: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "cbkv_config_updates_total",
				Help: "Cluster config pushes, by whether the revision was accepted.",
			}, []string{"result"}),
		}
	})
	return metricsInstance
}

func (m *Metrics) IncOperation(operation, status string) {
	m.operationCount.WithLabelValues(operation, status).Inc()
}

func (m *Metrics) ObserveOperationDuration(operation string, seconds float64) {
	m.operationDuration.WithLabelValues(operation).Observe(seconds)
}

func (m *Metrics) IncConfigUpdate(accepted bool) {
	result := "accepted"
	if !accepted {
		result = "stale"
	}
	m.configUpdateCount.WithLabelValues(result).Inc()
}
