// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus collectors for the dispatcher. A nil *Metrics is valid and
// records nothing, so callers never branch on whether metrics are enabled.

package control

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "hioload_pim"

// Request outcome labels.
const (
	ResultOK          = "ok"
	ResultCorrupt     = "corrupt"
	ResultTooSmall    = "buffer_too_small"
	ResultDeviceFault = "device_fault"
	ResultClosed      = "closed"
	ResultRejected    = "rejected"
)

// Metrics holds the dispatcher collectors.
type Metrics struct {
	requests   *prometheus.CounterVec
	dispatches *prometheus.CounterVec
	batchSize  prometheus.Histogram
	faults     *prometheus.CounterVec
	occupied   prometheus.Gauge
	waiting    prometheus.Gauge
	healthy    prometheus.Gauge
	copySecs   prometheus.Counter
}

// NewMetrics registers the collectors on reg. A nil reg returns nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}
	return &Metrics{
		requests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "requests_total",
				Help:      "Decompression requests by outcome",
			},
			[]string{"result"},
		),
		dispatches: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "dispatches_total",
				Help:      "Batches launched per cluster",
			},
			[]string{"cluster"},
		),
		batchSize: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "batch_size",
				Help:      "Requests per launched batch",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
		faults: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "cluster_faults_total",
				Help:      "Clusters taken out of service after a fault",
			},
			[]string{"cluster"},
		),
		occupied: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "slots_occupied",
				Help:      "Slots holding a request not yet retired",
			},
		),
		waiting: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "slots_waiting",
				Help:      "Slots waiting for dispatch",
			},
		),
		healthy: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "clusters_healthy",
				Help:      "Clusters available for dispatch",
			},
		),
		copySecs: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "staging_copy_seconds_total",
				Help:      "Time spent copying inputs into staging buffers",
			},
		),
	}
}

// RecordRequest counts one finished request.
func (m *Metrics) RecordRequest(result string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(result).Inc()
}

// RecordDispatch counts a launched batch of n requests on cluster.
func (m *Metrics) RecordDispatch(cluster, n int) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(strconv.Itoa(cluster)).Inc()
	m.batchSize.Observe(float64(n))
}

// RecordFault counts a cluster leaving service.
func (m *Metrics) RecordFault(cluster int) {
	if m == nil {
		return
	}
	m.faults.WithLabelValues(strconv.Itoa(cluster)).Inc()
}

// SetSlots publishes the slot table counters.
func (m *Metrics) SetSlots(occupied, waiting int) {
	if m == nil {
		return
	}
	m.occupied.Set(float64(occupied))
	m.waiting.Set(float64(waiting))
}

// SetHealthyClusters publishes the number of usable clusters.
func (m *Metrics) SetHealthyClusters(n int) {
	if m == nil {
		return
	}
	m.healthy.Set(float64(n))
}

// AddCopySeconds accumulates staging copy time.
func (m *Metrics) AddCopySeconds(s float64) {
	if m == nil {
		return
	}
	m.copySecs.Add(s)
}
