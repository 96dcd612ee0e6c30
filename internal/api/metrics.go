package api

import (
	"context"
	"net/http"
	"path/filepath"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// hostStatsTimeout bounds the gopsutil probes for one /system request.
const hostStatsTimeout = 2 * time.Second

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Runtime       RuntimeMetrics  `json:"runtime"`
	Host          *HostMetrics    `json:"host,omitempty"`
	WebSocket     WSMetrics       `json:"websocket"`
	MQTT          MQTTMetrics     `json:"mqtt"`
	InfluxDB      *InfluxMetrics  `json:"influxdb,omitempty"`
	Bridge        *BridgeMetrics  `json:"bridge,omitempty"`
	Devices       DeviceMetrics   `json:"devices"`
	Entities      EntityMetrics   `json:"entities"`
	Database      DatabaseMetrics `json:"database"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// HostMetrics contains machine level statistics.
type HostMetrics struct {
	Hostname        string  `json:"hostname,omitempty"`
	Platform        string  `json:"platform,omitempty"`
	UptimeSeconds   uint64  `json:"uptime_seconds,omitempty"`
	CPUPercent      float64 `json:"cpu_percent"`
	MemoryUsedPct   float64 `json:"memory_used_percent"`
	DiskUsedPct     float64 `json:"disk_used_percent"`
	DiskFreeBytes   uint64  `json:"disk_free_bytes"`
	MemoryTotalByte uint64  `json:"memory_total_bytes"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// InfluxMetrics contains InfluxDB client statistics.
type InfluxMetrics struct {
	Connected bool `json:"connected"`
}

// BridgeMetrics contains MQTT state bridge statistics.
type BridgeMetrics struct {
	Connected        bool   `json:"connected"`
	Status           string `json:"status"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesDropped  uint64 `json:"messages_dropped"`
}

// DeviceMetrics contains device registry statistics.
type DeviceMetrics struct {
	Total     int            `json:"total"`
	Listeners int            `json:"listeners"`
	ByModel   map[string]int `json:"by_model"`
}

// EntityMetrics contains host runtime statistics.
type EntityMetrics struct {
	Total     int            `json:"total"`
	Available int            `json:"available"`
	ByDomain  map[string]int `json:"by_domain"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleSystemMetrics returns comprehensive system metrics.
func (s *Server) handleSystemMetrics(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.Hub().ClientCount(),
		},
	}

	if r.URL.Query().Get("host") != "false" {
		metrics.Host = s.hostMetrics(r.Context())
	}

	if s.mqtt != nil {
		metrics.MQTT = MQTTMetrics{Connected: s.mqtt.IsConnected()}
	}
	if s.influx != nil {
		metrics.InfluxDB = &InfluxMetrics{Connected: s.influx.IsConnected()}
	}

	if s.bridge != nil {
		st := s.bridge.GetStats()
		metrics.Bridge = &BridgeMetrics{
			Connected:        st.Connected,
			Status:           string(st.Status),
			MessagesReceived: st.MessagesReceived,
			MessagesDropped:  st.MessagesDropped,
		}
	}

	regStats := s.devices.GetStats()
	metrics.Devices = DeviceMetrics{
		Total:     regStats.TotalDevices,
		Listeners: regStats.TotalListeners,
		ByModel:   regStats.ByModel,
	}

	metrics.Entities = EntityMetrics{ByDomain: make(map[string]int)}
	for _, e := range s.runtime.Entities() {
		snap := e.Snapshot()
		metrics.Entities.Total++
		metrics.Entities.ByDomain[snap.Domain]++
		if snap.Available {
			metrics.Entities.Available++
		}
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}

// hostMetrics samples machine stats. Probes that fail are left at zero.
func (s *Server) hostMetrics(ctx context.Context) *HostMetrics {
	ctx, cancel := context.WithTimeout(ctx, hostStatsTimeout)
	defer cancel()

	hm := &HostMetrics{}
	if info, err := host.InfoWithContext(ctx); err == nil {
		hm.Hostname = info.Hostname
		hm.Platform = info.Platform
		hm.UptimeSeconds = info.Uptime
	} else {
		s.logger.Debug("host info unavailable", "error", err)
	}
	// Zero interval compares against the previous call instead of blocking.
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		hm.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		hm.MemoryUsedPct = vm.UsedPercent
		hm.MemoryTotalByte = vm.Total
	}
	path := "/"
	if s.db != nil {
		path = filepath.Dir(s.db.Path())
	}
	if usage, err := disk.UsageWithContext(ctx, path); err == nil {
		hm.DiskUsedPct = usage.UsedPercent
		hm.DiskFreeBytes = usage.Free
	}
	return hm
}
