package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/gray-logic-midi/internal/infrastructure/influxdb"
)

const bytesPerMiB = 1 << 20

// SystemMetrics is the body of GET /system. Optional sections are omitted
// when their component is not running.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	WebSocket     WSMetrics        `json:"websocket"`
	Device        DeviceStatus     `json:"device"`
	MQTT          *MQTTMetrics     `json:"mqtt,omitempty"`
	Journal       *JournalMetrics  `json:"journal,omitempty"`
	Recorder      *RecorderMetrics `json:"recorder,omitempty"`
	Database      *DatabaseMetrics `json:"database,omitempty"`
}

type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// JournalMetrics counts events the journal could not store.
type JournalMetrics struct {
	Overflow int64 `json:"overflow"`
	Failures int64 `json:"failures"`
}

// RecorderMetrics describes the time series sink.
type RecorderMetrics struct {
	Connected bool `json:"connected"`
	influxdb.Stats
}

type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

func readRuntime() RuntimeMetrics {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return RuntimeMetrics{
		Goroutines:    runtime.NumGoroutine(),
		MemoryAllocMB: float64(mem.Alloc) / bytesPerMiB,
		MemoryTotalMB: float64(mem.TotalAlloc) / bytesPerMiB,
		NumGC:         mem.NumGC,
	}
}

// handleMetrics returns a JSON snapshot of the service. Prometheus metrics
// are served separately.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	snap := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime:       readRuntime(),
		Device:        s.deviceStatus(),
	}
	if s.hub != nil {
		snap.WebSocket.ConnectedClients = s.hub.ClientCount()
	}
	if s.mqtt != nil {
		snap.MQTT = &MQTTMetrics{Connected: s.mqtt.IsConnected()}
	}
	if s.journal != nil {
		overflow, failures := s.journal.Stats()
		snap.Journal = &JournalMetrics{Overflow: overflow, Failures: failures}
	}
	if s.recorder != nil {
		snap.Recorder = &RecorderMetrics{Connected: s.recorder.IsConnected(), Stats: s.recorder.Stats()}
	}
	if s.db != nil {
		st := s.db.Stats()
		snap.Database = &DatabaseMetrics{
			OpenConnections: st.OpenConnections,
			InUse:           st.InUse,
			Idle:            st.Idle,
			WaitCount:       st.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, snap)
}
