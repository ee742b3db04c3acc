package api

import (
	"net/http"
	"runtime"
	"time"
)

// Metrics is the body of GET /metrics.
type Metrics struct {
	Version string        `json:"version"`
	Uptime  string        `json:"uptime"`
	Hub     HubMetrics    `json:"hub"`
	Process ProcessMetric `json:"process"`
}

// HubMetrics describes the hub's link to the cloud and the UI.
type HubMetrics struct {
	Registered   bool `json:"registered"`
	IoTConnected bool `json:"iot_connected"`
	UIClients    int  `json:"ui_clients"`
}

// ProcessMetric holds Go runtime figures.
type ProcessMetric struct {
	Goroutines int    `json:"goroutines"`
	HeapBytes  uint64 `json:"heap_bytes"`
	GCCycles   uint32 `json:"gc_cycles"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	writeJSON(w, http.StatusOK, Metrics{
		Version: s.version,
		Uptime:  time.Since(s.started).Truncate(time.Second).String(),
		Hub: HubMetrics{
			Registered:   s.docs.Snapshot().Registered(),
			IoTConnected: s.accounts.IoTConnected(),
			UIClients:    s.hub.ClientCount(),
		},
		Process: ProcessMetric{
			Goroutines: runtime.NumGoroutine(),
			HeapBytes:  mem.HeapAlloc,
			GCCycles:   mem.NumGC,
		},
	})
}
