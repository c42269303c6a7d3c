package server

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/autotrader/internal/database"
	"github.com/aristath/autotrader/internal/domain"
	"github.com/aristath/autotrader/internal/modules/ledger"
	"github.com/aristath/autotrader/internal/reliability"
	"github.com/aristath/autotrader/internal/scheduler"
	"github.com/aristath/autotrader/internal/utils"
)

// LedgerReader is the read side of the ledger the status endpoint reports on
type LedgerReader interface {
	Account(ctx context.Context) (*domain.Account, error)
	Positions(ctx context.Context) ([]domain.Position, error)
	Orders(ctx context.Context, filter ledger.OrderFilter) ([]domain.Order, error)
}

// JobRunner lists and triggers scheduled jobs
type JobRunner interface {
	Jobs() []scheduler.JobStatus
	RunNow(name string) error
}

// QueueReporter reports signal intake backlog
type QueueReporter interface {
	QueueDepth() int
}

// BackupLister lists stored ledger backups
type BackupLister interface {
	ListBackups(ctx context.Context) ([]reliability.BackupInfo, error)
}

// SystemDeps groups what the system handlers read from
type SystemDeps struct {
	DB        *database.DB
	Accounts  LedgerReader
	Jobs      JobRunner
	Queue     QueueReporter
	Backups   BackupLister
	DataDir   string
	StartedAt time.Time
}

// SystemHandlers handles system monitoring and operations endpoints
type SystemHandlers struct {
	deps SystemDeps
	log  zerolog.Logger
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(deps SystemDeps, log zerolog.Logger) *SystemHandlers {
	if deps.StartedAt.IsZero() {
		deps.StartedAt = time.Now()
	}
	return &SystemHandlers{
		deps: deps,
		log:  log.With().Str("handler", "system").Logger(),
	}
}

// RegisterRoutes registers system routes
func (h *SystemHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/system", func(r chi.Router) {
		r.Get("/status", h.HandleSystemStatus)
		r.Get("/database", h.HandleDatabaseStats)
		r.Get("/disk", h.HandleDiskUsage)
		r.Get("/backups", h.HandleListBackups)

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", h.HandleListJobs)
			r.Post("/{name}/run", h.HandleRunJob)
		})
	})
}

// SystemStatusResponse is the payload of GET /api/system/status
type SystemStatusResponse struct {
	Status           string                `json:"status"`
	UptimeSeconds    int64                 `json:"uptime_seconds"`
	CPUPercent       float64               `json:"cpu_percent"`
	MemoryPercent    float64               `json:"memory_percent"`
	Cash             string                `json:"cash,omitempty"`
	TotalValue       string                `json:"total_value,omitempty"`
	OpenPositions    int                   `json:"open_positions"`
	PendingOrders    int                   `json:"pending_orders"`
	SignalQueueDepth int                   `json:"signal_queue_depth"`
	Jobs             []scheduler.JobStatus `json:"jobs"`
}

// HandleSystemStatus returns process, ledger and job status
// GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cpuPercent, memPercent := h.getSystemStats()
	response := SystemStatusResponse{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(h.deps.StartedAt).Seconds()),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
	}

	if h.deps.Accounts != nil {
		account, err := h.deps.Accounts.Account(ctx)
		if err != nil {
			h.log.Warn().Err(err).Msg("Failed to read account")
			response.Status = "degraded"
		} else {
			response.Cash = account.Cash.String()
			response.TotalValue = account.TotalValue.String()
		}

		if positions, err := h.deps.Accounts.Positions(ctx); err == nil {
			response.OpenPositions = len(positions)
		}
		if pending, err := h.deps.Accounts.Orders(ctx, ledger.OrderFilter{Status: domain.StatusPending}); err == nil {
			response.PendingOrders = len(pending)
		}
	}
	if h.deps.Queue != nil {
		response.SignalQueueDepth = h.deps.Queue.QueueDepth()
	}
	if h.deps.Jobs != nil {
		response.Jobs = h.deps.Jobs.Jobs()
	}

	utils.WriteData(w, h.log, http.StatusOK, response)
}

// HandleDatabaseStats returns ledger database size and page statistics
// GET /api/system/database
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	if h.deps.DB == nil {
		utils.WriteError(w, h.log, http.StatusServiceUnavailable, "database not available")
		return
	}

	stats, err := h.deps.DB.GetStats(r.Context())
	if err != nil {
		utils.WriteErr(w, h.log, err)
		return
	}

	utils.WriteData(w, h.log, http.StatusOK, map[string]interface{}{
		"name":  h.deps.DB.Name(),
		"path":  h.deps.DB.Path(),
		"stats": stats,
	})
}

// DiskUsageResponse reports data directory and filesystem usage
type DiskUsageResponse struct {
	DataDirMB   float64 `json:"data_dir_mb"`
	BackupsMB   float64 `json:"backups_mb"`
	FreeMB      float64 `json:"free_mb"`
	UsedPercent float64 `json:"used_percent"`
}

// HandleDiskUsage returns disk usage statistics
// GET /api/system/disk
func (h *SystemHandlers) HandleDiskUsage(w http.ResponseWriter, r *http.Request) {
	response := DiskUsageResponse{
		DataDirMB: h.getDirSize(h.deps.DataDir),
		BackupsMB: h.getDirSize(filepath.Join(h.deps.DataDir, "backups")),
	}

	if usage, err := disk.UsageWithContext(r.Context(), h.deps.DataDir); err != nil {
		h.log.Warn().Err(err).Msg("Failed to read filesystem usage")
	} else {
		response.FreeMB = float64(usage.Free) / 1024 / 1024
		response.UsedPercent = usage.UsedPercent
	}

	utils.WriteData(w, h.log, http.StatusOK, response)
}

// HandleListBackups lists stored ledger backups, newest first
// GET /api/system/backups
func (h *SystemHandlers) HandleListBackups(w http.ResponseWriter, r *http.Request) {
	if h.deps.Backups == nil {
		utils.WriteData(w, h.log, http.StatusOK, []reliability.BackupInfo{})
		return
	}

	backups, err := h.deps.Backups.ListBackups(r.Context())
	if err != nil {
		utils.WriteErr(w, h.log, err)
		return
	}
	utils.WriteData(w, h.log, http.StatusOK, backups)
}

// HandleListJobs lists scheduled jobs with their next run
// GET /api/system/jobs
func (h *SystemHandlers) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	if h.deps.Jobs == nil {
		utils.WriteData(w, h.log, http.StatusOK, []scheduler.JobStatus{})
		return
	}
	utils.WriteData(w, h.log, http.StatusOK, h.deps.Jobs.Jobs())
}

// HandleRunJob runs a scheduled job immediately and waits for it
// POST /api/system/jobs/{name}/run
func (h *SystemHandlers) HandleRunJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if h.deps.Jobs == nil || !h.hasJob(name) {
		utils.WriteError(w, h.log, http.StatusNotFound, "unknown job: "+name)
		return
	}

	start := time.Now()
	if err := h.deps.Jobs.RunNow(name); err != nil {
		h.log.Error().Err(err).Str("job", name).Msg("Manual job run failed")
		utils.WriteError(w, h.log, http.StatusInternalServerError, err.Error())
		return
	}

	utils.WriteData(w, h.log, http.StatusOK, map[string]interface{}{
		"job":         name,
		"status":      "completed",
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

func (h *SystemHandlers) hasJob(name string) bool {
	for _, job := range h.deps.Jobs.Jobs() {
		if job.Name == name {
			return true
		}
	}
	return false
}

// getSystemStats returns CPU and RAM usage percentages.
// CPU is sampled over 100ms to keep the endpoint fast.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil || len(cpuPercent) == 0 {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return cpuPercent[0], 0
	}

	return cpuPercent[0], memStat.UsedPercent
}

// getDirSize calculates total size of a directory in MB
func (h *SystemHandlers) getDirSize(dirPath string) float64 {
	if dirPath == "" {
		return 0
	}

	var totalSize int64
	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip unreadable entries
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})
	if err != nil {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}
