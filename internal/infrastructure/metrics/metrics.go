// Package metrics holds the Prometheus series exported by the bridge.
//
// A nil *Collector is valid and records nothing, so components can take
// one unconditionally and tests can leave it out.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultNamespace prefixes every series when no namespace is configured.
const DefaultNamespace = "graylogic_miot"

// Collector owns the bridge's Prometheus series.
type Collector struct {
	registry prometheus.Gatherer

	entities         prometheus.Gauge
	devices          prometheus.Gauge
	stateWrites      *prometheus.CounterVec
	writeErrors      *prometheus.CounterVec
	writesCoalesced  prometheus.Counter
	writesDropped    prometheus.Counter
	restoreSnapshots prometheus.Counter
	historyPruned    prometheus.Counter
	deviceUpdates    *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	websocketClients prometheus.Gauge
	jobRuns          *prometheus.CounterVec
}

// New registers the series with reg. A nil reg uses a fresh registry.
func New(namespace string, reg *prometheus.Registry) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		entities: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entities",
			Help:      "Number of attached entities",
		}),
		devices: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "devices",
			Help:      "Number of registered devices",
		}),
		stateWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_writes_total",
			Help:      "Entity state writes, by domain",
		}, []string{"domain"}),
		writeErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_errors_total",
			Help:      "Failed state writes, by sink",
		}, []string{"sink"}),
		writesCoalesced: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_writes_coalesced_total",
			Help:      "State write requests merged into a pending write",
		}),
		writesDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_writes_dropped_total",
			Help:      "State write requests dropped because the queue was full",
		}),
		restoreSnapshots: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restore_snapshots_total",
			Help:      "Entity restore data rows persisted",
		}),
		historyPruned: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_pruned_total",
			Help:      "State history rows deleted by retention",
		}),
		deviceUpdates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_updates_total",
			Help:      "Inbound device updates, by result",
		}, []string{"result"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by method and status",
		}, []string{"method", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		websocketClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected websocket clients",
		}),
		jobRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduled maintenance job runs, by job and result",
		}, []string{"job", "result"}),
	}
}

// Gatherer returns the registry the series live in, for promhttp.
func (c *Collector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return prometheus.NewRegistry()
	}
	return c.registry
}

// SetEntities records the attached entity count.
func (c *Collector) SetEntities(n int) {
	if c != nil {
		c.entities.Set(float64(n))
	}
}

// SetDevices records the registered device count.
func (c *Collector) SetDevices(n int) {
	if c != nil {
		c.devices.Set(float64(n))
	}
}

// StateWritten counts a completed state write.
func (c *Collector) StateWritten(domain string) {
	if c != nil {
		c.stateWrites.WithLabelValues(domain).Inc()
	}
}

// WriteFailed counts a failed write to sink ("mqtt", "history", "influxdb").
func (c *Collector) WriteFailed(sink string) {
	if c != nil {
		c.writeErrors.WithLabelValues(sink).Inc()
	}
}

// WriteCoalesced counts a write request merged into a pending one.
func (c *Collector) WriteCoalesced() {
	if c != nil {
		c.writesCoalesced.Inc()
	}
}

// WriteDropped counts a write request rejected by a full queue.
func (c *Collector) WriteDropped() {
	if c != nil {
		c.writesDropped.Inc()
	}
}

// RestoreSaved counts persisted restore rows.
func (c *Collector) RestoreSaved(n int) {
	if c != nil {
		c.restoreSnapshots.Add(float64(n))
	}
}

// HistoryPruned counts deleted history rows.
func (c *Collector) HistoryPruned(n int64) {
	if c != nil {
		c.historyPruned.Add(float64(n))
	}
}

// DeviceUpdate counts an inbound update. result is "dispatched",
// "unknown_device" or "invalid".
func (c *Collector) DeviceUpdate(result string) {
	if c != nil {
		c.deviceUpdates.WithLabelValues(result).Inc()
	}
}

// HTTPRequest records one served request.
func (c *Collector) HTTPRequest(method string, status int, took time.Duration) {
	if c != nil {
		c.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
		c.httpDuration.WithLabelValues(method).Observe(took.Seconds())
	}
}

// SetWebsocketClients records the connected client count.
func (c *Collector) SetWebsocketClients(n int) {
	if c != nil {
		c.websocketClients.Set(float64(n))
	}
}

// JobRun counts a scheduled job run.
func (c *Collector) JobRun(job string, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.jobRuns.WithLabelValues(job, result).Inc()
}
