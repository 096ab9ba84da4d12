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
	"strconv"
	"time"

	"redirector/internal/database/models"
	"redirector/internal/database/repositories"

	"github.com/gin-gonic/gin"
	"github.com/pterm/pterm"
)

// ServerHandler serves the instance registry
type ServerHandler struct {
	serverRepo repositories.ServerRepository
	logger     *pterm.Logger
}

// NewServerHandler creates a new server handler
func NewServerHandler(serverRepo repositories.ServerRepository, logger *pterm.Logger) *ServerHandler {
	return &ServerHandler{serverRepo: serverRepo, logger: logger}
}

func serverView(instance *models.ServerInstance, now time.Time) gin.H {
	view := gin.H{
		"server_id":            instance.ServerID,
		"campaign":             instance.Campaign,
		"redirect_url":         instance.RedirectURL,
		"redirect_port":        instance.RedirectPort,
		"dashboard_port":       instance.DashboardPort,
		"host":                 instance.Host,
		"process_id":           instance.ProcessID,
		"status":               instance.Status,
		"is_active":            instance.IsActive(now),
		"started_at":           instance.StartedAt.UTC().Format(time.RFC3339),
		"last_seen":            instance.LastSeen.UTC().Format(time.RFC3339),
		"uptime":               repositories.FormatUptime(now.Sub(instance.StartedAt)),
		"total_requests":       instance.TotalRequests,
		"requests_per_minute":  instance.RequestsPerMinute,
		"avg_response_time_ms": instance.AvgResponseTimeMs,
		"tunnel_enabled":       instance.TunnelEnabled,
		"tunnel_url":           instance.TunnelURL,
		"version":              instance.Version,
		"go_version":           instance.GoVersion,
		"platform":             instance.Platform,
	}
	if instance.LastRequestAt != nil {
		view["last_request_at"] = instance.LastRequestAt.UTC().Format(time.RFC3339)
	} else {
		view["last_request_at"] = nil
	}
	return view
}

// ListServers returns recently seen instances; ?include_inactive=true lifts
// the 24-hour window
func (h *ServerHandler) ListServers(c *gin.Context) {
	instances, err := h.serverRepo.ListAll(c.Query("include_inactive") == "true")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list servers"})
		return
	}

	now := time.Now().UTC()
	result := make([]gin.H, len(instances))
	for i, instance := range instances {
		result[i] = serverView(instance, now)
	}
	c.JSON(http.StatusOK, gin.H{"servers": result})
}

// ListActiveServers returns live instances, optionally for one campaign
func (h *ServerHandler) ListActiveServers(c *gin.Context) {
	instances, err := h.serverRepo.ListActive(c.Query("campaign"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list active servers"})
		return
	}

	now := time.Now().UTC()
	result := make([]gin.H, len(instances))
	for i, instance := range instances {
		result[i] = serverView(instance, now)
	}
	c.JSON(http.StatusOK, gin.H{"servers": result})
}

// GetFleetStats summarizes the whole registry
func (h *ServerHandler) GetFleetStats(c *gin.Context) {
	stats, err := h.serverRepo.FleetStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute fleet stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// CleanupServers drops registry rows not seen for ?max_age_hours (default one week)
func (h *ServerHandler) CleanupServers(c *gin.Context) {
	maxAgeHours := 0
	if raw := c.Query("max_age_hours"); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil || val < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "max_age_hours must be a non-negative integer"})
			return
		}
		maxAgeHours = val
	}

	deleted, err := h.serverRepo.Cleanup(maxAgeHours)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clean up server registry"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}
