package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gather returns the value of the series name whose labels include want.
func gather(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, want) {
				switch {
				case m.GetCounter() != nil:
					return m.GetCounter().GetValue()
				case m.GetGauge() != nil:
					return m.GetGauge().GetValue()
				case m.GetHistogram() != nil:
					return float64(m.GetHistogram().GetSampleCount())
				}
			}
		}
	}
	t.Fatalf("series %s %v not found", name, want)
	return 0
}

func labelsMatch(m *dto.Metric, want map[string]string) bool {
	got := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestCollector_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New("test", reg)

	c.SetEntities(3)
	c.StateWritten("sensor")
	c.StateWritten("sensor")
	c.StateWritten("switch")
	c.WriteFailed("mqtt")
	c.DeviceUpdate("dispatched")
	c.HistoryPruned(7)
	c.JobRun("prune", nil)
	c.JobRun("prune", errors.New("boom"))
	c.HTTPRequest("GET", 200, 5*time.Millisecond)

	assert.Equal(t, 3.0, gather(t, reg, "test_entities", nil))
	assert.Equal(t, 2.0, gather(t, reg, "test_state_writes_total", map[string]string{"domain": "sensor"}))
	assert.Equal(t, 1.0, gather(t, reg, "test_state_writes_total", map[string]string{"domain": "switch"}))
	assert.Equal(t, 1.0, gather(t, reg, "test_write_errors_total", map[string]string{"sink": "mqtt"}))
	assert.Equal(t, 1.0, gather(t, reg, "test_device_updates_total", map[string]string{"result": "dispatched"}))
	assert.Equal(t, 7.0, gather(t, reg, "test_history_pruned_total", nil))
	assert.Equal(t, 1.0, gather(t, reg, "test_job_runs_total", map[string]string{"job": "prune", "result": "error"}))
	assert.Equal(t, 1.0, gather(t, reg, "test_http_requests_total", map[string]string{"method": "GET", "status": "200"}))
	assert.Equal(t, 1.0, gather(t, reg, "test_http_request_duration_seconds", map[string]string{"method": "GET"}))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.SetEntities(1)
		c.StateWritten("sensor")
		c.WriteDropped()
		c.JobRun("restore", nil)
		_ = c.Gatherer()
	})
}

func TestNew_DefaultNamespace(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New("", reg)
	c.WriteCoalesced()

	assert.Equal(t, 1.0, gather(t, reg, DefaultNamespace+"_state_writes_coalesced_total", nil))
	assert.Same(t, reg, c.Gatherer())
}
