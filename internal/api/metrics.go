package api

import (
	"net/http"
	"runtime"
	"sort"
	"time"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Runtime       RuntimeMetrics  `json:"runtime"`
	WebSocket     WSMetrics       `json:"websocket"`
	Store         StoreMetrics    `json:"store"`
	Bus           BusMetrics      `json:"bus"`
	Database      DatabaseMetrics `json:"database"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains live session statistics.
type WSMetrics struct {
	Sessions  int      `json:"sessions"`
	Resources []string `json:"resources"`
}

// StoreMetrics contains active observer counts per served collection.
type StoreMetrics struct {
	Observers map[string]int `json:"observers"`
}

// BusMetrics contains bus subscription statistics.
type BusMetrics struct {
	Enabled   bool `json:"enabled"`
	Local     bool `json:"local"`
	Connected bool `json:"connected"`
	Filters   int  `json:"filters"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns comprehensive system metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
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
			Sessions:  s.hub.Count(),
			Resources: s.dispatcher.Registry().Names(),
		},
		Store: StoreMetrics{Observers: make(map[string]int, len(s.collections))},
	}

	names := make([]string, 0, len(s.collections))
	for c := range s.collections {
		names = append(names, c)
	}
	sort.Strings(names)
	for _, c := range names {
		metrics.Store.Observers[c] = s.store.ObserverCount(c)
	}

	if s.bus != nil {
		metrics.Bus = BusMetrics{
			Enabled:   true,
			Local:     s.mqtt == nil,
			Connected: s.mqtt == nil || s.mqtt.IsConnected(),
			Filters:   s.bus.FilterCount(),
		}
	}

	// Database stats (if available)
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
