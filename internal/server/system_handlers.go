// Package server provides the HTTP server and routing for Lotwise.
package server

import (
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/lotwise/lotwise/internal/api"
	"github.com/lotwise/lotwise/internal/database"
)

// SystemHandlers handles the monitoring endpoints under /api/system.
type SystemHandlers struct {
	log         zerolog.Logger
	dataDir     string
	startupTime time.Time
	databases   map[string]*database.DB
}

// NewSystemHandlers creates a new system handlers instance.
func NewSystemHandlers(dataDir string, databases map[string]*database.DB, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		dataDir:     dataDir,
		startupTime: time.Now(),
		databases:   databases,
	}
}

// SystemStatusResponse represents the system status response.
type SystemStatusResponse struct {
	Status      string          `json:"status"` // "healthy" or "degraded"
	UptimeHours float64         `json:"uptime_hours"`
	CPUPercent  float64         `json:"cpu_percent"`
	RAMPercent  float64         `json:"ram_percent"`
	Databases   map[string]bool `json:"databases"`
}

// DatabaseStatsResponse represents database statistics.
type DatabaseStatsResponse struct {
	Databases   []DBInfo `json:"databases"`
	TotalSizeMB float64  `json:"total_size_mb"`
	LastChecked string   `json:"last_checked"`
}

// DBInfo represents information about a single database.
type DBInfo struct {
	Name       string  `json:"name"`
	Path       string  `json:"path"`
	SizeMB     float64 `json:"size_mb"`
	TableCount int     `json:"table_count"`
}

// DiskUsageResponse represents disk usage statistics.
type DiskUsageResponse struct {
	DataDirMB   float64 `json:"data_dir_mb"`
	AvailableGB float64 `json:"available_gb"`
}

// HandleSystemStatus returns process uptime, host load and database health.
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, ramPercent := h.getSystemStats()

	status := "healthy"
	dbHealth := make(map[string]bool, len(h.databases))
	for name, db := range h.databases {
		err := db.QuickCheck(r.Context())
		dbHealth[name] = err == nil
		if err != nil {
			status = "degraded"
			h.log.Warn().Err(err).Str("database", name).Msg("Database ping failed")
		}
	}

	api.JSON(w, http.StatusOK, SystemStatusResponse{
		Status:      status,
		UptimeHours: time.Since(h.startupTime).Hours(),
		CPUPercent:  cpuPercent,
		RAMPercent:  ramPercent,
		Databases:   dbHealth,
	})
}

// HandleDatabaseStats returns per-database file sizes and table counts.
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting database stats")

	databases := []DBInfo{}
	totalSizeMB := 0.0

	for _, name := range h.sortedNames() {
		db := h.databases[name]

		info, err := os.Stat(db.Path())
		if err != nil {
			h.log.Warn().Err(err).Str("database", name).Msg("Failed to stat database file")
			continue
		}
		sizeMB := float64(info.Size()) / 1024 / 1024
		totalSizeMB += sizeMB

		tableCount := 0
		row := db.QueryRowContext(r.Context(), "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table'")
		if err := row.Scan(&tableCount); err != nil {
			h.log.Warn().Err(err).Str("database", name).Msg("Failed to count tables")
		}

		databases = append(databases, DBInfo{
			Name:       name,
			Path:       db.Path(),
			SizeMB:     sizeMB,
			TableCount: tableCount,
		})
	}

	api.JSON(w, http.StatusOK, DatabaseStatsResponse{
		Databases:   databases,
		TotalSizeMB: totalSizeMB,
		LastChecked: time.Now().Format(time.RFC3339),
	})
}

// HandleDiskUsage returns the data directory size and the free space left
// on its filesystem.
func (h *SystemHandlers) HandleDiskUsage(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting disk usage")

	availableGB := 0.0
	stat := syscall.Statfs_t{}
	if err := syscall.Statfs(h.dataDir, &stat); err != nil {
		h.log.Warn().Err(err).Str("data_dir", h.dataDir).Msg("Failed to read filesystem stats")
	} else {
		availableGB = float64(stat.Bavail*uint64(stat.Bsize)) / 1e9
	}

	api.JSON(w, http.StatusOK, DiskUsageResponse{
		DataDirMB:   h.getDirSize(h.dataDir),
		AvailableGB: availableGB,
	})
}

// getDirSize calculates total size of a directory in MB.
func (h *SystemHandlers) getDirSize(dirPath string) float64 {
	var totalSize int64

	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
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

// getSystemStats calculates CPU and RAM usage percentages.
// Uses a 100ms sampling interval so the handler answers quickly.
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

func (h *SystemHandlers) sortedNames() []string {
	names := make([]string, 0, len(h.databases))
	for name := range h.databases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
