// MIT License
//
// Copyright (c) 2026 Kolin
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//
package handlers

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"redirector/internal/database/repositories"
	"redirector/internal/version"

	"github.com/gin-gonic/gin"
	"github.com/pterm/pterm"
)

// SystemHandler reports liveness and process health
type SystemHandler struct {
	logRepo   repositories.LogEntryRepository
	logger    *pterm.Logger
	startTime time.Time
	serverID  string
	campaign  string
	dbPath    string
}

// NewSystemHandler creates a new system handler
func NewSystemHandler(
	logRepo repositories.LogEntryRepository,
	serverID string,
	campaign string,
	dbPath string,
	logger *pterm.Logger,
) *SystemHandler {
	return &SystemHandler{
		logRepo:   logRepo,
		logger:    logger,
		startTime: time.Now().UTC(),
		serverID:  serverID,
		campaign:  campaign,
		dbPath:    dbPath,
	}
}

// Health is the unauthenticated liveness probe. It names the instance so a
// probe against a shared load balancer can tell which process answered.
func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"server_id": h.serverID,
		"version":   version.Version,
		"campaign":  h.campaign,
		"uptime":    repositories.FormatUptime(time.Since(h.startTime)),
	})
}

// SystemStats reports process and storage health for the dashboard
func (h *SystemHandler) SystemStats(c *gin.Context) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	totalRecords, err := h.logRepo.Count(repositories.LogFilter{})
	if err != nil {
		h.logger.Debug("System stats record count failed", h.logger.Args("error", err))
		totalRecords = -1
	}

	dbSizeMB := 0.0
	if info, err := os.Stat(h.dbPath); err == nil {
		dbSizeMB = float64(info.Size()) / (1024 * 1024)
	}

	c.JSON(http.StatusOK, gin.H{
		"app_version":      version.Version,
		"campaign":         h.campaign,
		"uptime":           repositories.FormatUptime(time.Since(h.startTime)),
		"uptime_seconds":   int64(time.Since(h.startTime).Seconds()),
		"start_time":       h.startTime.Format(time.RFC3339),
		"go_version":       runtime.Version(),
		"num_cpu":          runtime.NumCPU(),
		"num_goroutines":   runtime.NumGoroutine(),
		"memory_alloc_mb":  float64(memStats.Alloc) / (1024 * 1024),
		"memory_sys_mb":    float64(memStats.Sys) / (1024 * 1024),
		"total_records":    totalRecords,
		"database_path":    h.dbPath,
		"database_size_mb": dbSizeMB,
	})
}
