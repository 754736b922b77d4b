package server

import (
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/aristath/sentinel-insights/internal/database"
	"github.com/aristath/sentinel-insights/internal/di"
	"github.com/aristath/sentinel-insights/internal/modules/insights"
	"github.com/aristath/sentinel-insights/internal/scheduler"
)

// SystemHandlers serves monitoring health, process status and manual job triggers
type SystemHandlers struct {
	container *di.Container
	jobs      map[string]scheduler.Job
	hub       *StreamHub
	startedAt time.Time
	log       zerolog.Logger
}

// NewSystemHandlers creates system handlers. Nil jobs are ignored.
func NewSystemHandlers(container *di.Container, jobs []scheduler.Job, hub *StreamHub, log zerolog.Logger) *SystemHandlers {
	byName := make(map[string]scheduler.Job, len(jobs))
	for _, job := range jobs {
		if job != nil {
			byName[job.Name()] = job
		}
	}
	return &SystemHandlers{
		container: container,
		jobs:      byName,
		hub:       hub,
		startedAt: time.Now(),
		log:       log.With().Str("handler", "system").Logger(),
	}
}

// ProcessStats describes the running process
type ProcessStats struct {
	PID           int     `json:"pid"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	RSSBytes      uint64  `json:"rss_bytes"`
	CPUPercent    float64 `json:"cpu_percent"`
	HostRAMPct    float64 `json:"host_ram_percent"`
}

// StatusResponse is the body of GET /api/status
type StatusResponse struct {
	Monitor       scheduler.Status           `json:"monitor"`
	Broker        string                     `json:"broker"`
	Provider      string                     `json:"provider"`
	Cache         insights.CacheStats        `json:"cache"`
	Databases     map[string]*database.Stats `json:"databases"`
	Process       ProcessStats               `json:"process"`
	StreamClients int                        `json:"stream_clients"`
}

// HandleHealth handles GET /api/health. Degraded monitoring answers 503.
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	st := h.container.State.Snapshot()
	status := http.StatusOK
	if st.Degraded {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, envelope(map[string]interface{}{
		"status":          st.Health,
		"degraded_reason": st.DegradedReason,
		"last_success_at": st.LastSuccessAt,
	}), h.log)
}

// HandleStatus handles GET /api/status
func (h *SystemHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Monitor:       h.container.State.Snapshot(),
		Broker:        h.container.Fetcher.Name(),
		Provider:      h.container.Generator.Provider(),
		Cache:         h.container.Generator.CacheStats(),
		Databases:     make(map[string]*database.Stats),
		Process:       h.processStats(r),
		StreamClients: h.hub.Clients(),
	}

	for name, db := range h.container.Databases() {
		stats, err := db.GetStats()
		if err != nil {
			h.log.Warn().Err(err).Str("database", name).Msg("Failed to get database stats")
			continue
		}
		resp.Databases[name] = stats
	}

	writeJSON(w, http.StatusOK, envelope(resp), h.log)
}

// processStats reads process and host memory figures. Failures leave fields zero.
func (h *SystemHandlers) processStats(r *http.Request) ProcessStats {
	ctx := r.Context()
	stats := ProcessStats{
		PID:           os.Getpid(),
		UptimeSeconds: time.Since(h.startedAt).Seconds(),
	}

	if proc, err := process.NewProcessWithContext(ctx, int32(stats.PID)); err != nil {
		h.log.Warn().Err(err).Msg("Failed to open process handle")
	} else {
		if info, err := proc.MemoryInfoWithContext(ctx); err == nil {
			stats.RSSBytes = info.RSS
		}
		if pct, err := proc.CPUPercentWithContext(ctx); err == nil {
			stats.CPUPercent = pct
		}
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
	} else {
		stats.HostRAMPct = vm.UsedPercent
	}
	return stats
}

// HandleJobs handles GET /api/jobs
func (h *SystemHandlers) HandleJobs(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.jobs))
	for name := range h.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	writeJSON(w, http.StatusOK, envelope(names), h.log)
}

// HandleTriggerJob handles POST /api/jobs/{name}
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	job, ok := h.jobs[name]
	if !ok {
		http.Error(w, "Unknown job", http.StatusNotFound)
		return
	}

	start := time.Now()
	if err := job.Run(r.Context()); err != nil {
		h.log.Error().Err(err).Str("job", name).Msg("Manual job run failed")
		writeJSON(w, http.StatusInternalServerError, envelope(map[string]interface{}{
			"job":   name,
			"error": err.Error(),
		}), h.log)
		return
	}

	h.log.Info().Str("job", name).Dur("duration_ms", time.Since(start)).Msg("Manual job run completed")
	writeJSON(w, http.StatusOK, envelope(map[string]interface{}{
		"job":    name,
		"status": "completed",
	}), h.log)
}
