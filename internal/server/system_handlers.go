package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/niveshlabs/folio/internal/clients/stream"
	"github.com/niveshlabs/folio/internal/database"
)

// SystemHandlers serves process and dependency health.
type SystemHandlers struct {
	log         zerolog.Logger
	startupTime time.Time
	portfolioDB *database.DB
	snapshotsDB *database.DB
	stream      *stream.Client
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(log zerolog.Logger, portfolioDB, snapshotsDB *database.DB, streamClient *stream.Client) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		startupTime: time.Now(),
		portfolioDB: portfolioDB,
		snapshotsDB: snapshotsDB,
		stream:      streamClient,
	}
}

// HandleHealth reports process stats, database reachability and stream state.
// GET /api/system/health
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	cpuPct, memPct := h.getSystemStats()

	databases := map[string]bool{
		"portfolio": h.portfolioDB.Conn().Ping() == nil,
		"snapshots": h.snapshotsDB.Conn().Ping() == nil,
	}

	streamStatus := h.stream.Status()
	healthy := databases["portfolio"] && databases["snapshots"]
	status := "ok"
	if !healthy {
		status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	if !healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	resp := map[string]interface{}{
		"status":         status,
		"uptime_seconds": int(time.Since(h.startupTime).Seconds()),
		"cpu_percent":    cpuPct,
		"memory_percent": memPct,
		"databases":      databases,
		"stream": map[string]interface{}{
			"connected": h.stream.IsConnected(),
			"source":    streamStatus.Source,
		},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode health response")
	}
}

// getSystemStats samples CPU and RAM usage. The 100ms CPU window keeps the
// endpoint fast enough for dashboard polling.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}
	return cpuAvg, memStat.UsedPercent
}
