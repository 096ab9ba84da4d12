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
package repositories

import (
	"errors"
	"fmt"
	"time"

	"redirector/internal/database/models"

	"github.com/pterm/pterm"
	"gorm.io/gorm"
)

const (
	// RecentServerWindow bounds ListAll when inactive rows are excluded
	RecentServerWindow = 24 * time.Hour
	// DefaultCleanupAgeHours is the default garbage-collection threshold
	DefaultCleanupAgeHours = 168
)

// RegisterParams carries the mutable identity of one redirect instance
type RegisterParams struct {
	ServerID      string
	Campaign      string
	RedirectURL   string
	RedirectPort  int
	DashboardPort int
	Host          string
	ProcessID     int
	TunnelEnabled bool
	TunnelURL     string
	Version       string
	GoVersion     string
	Platform      string
}

// HeartbeatParams carries the optional fields of one heartbeat. Nil fields
// leave the stored value untouched; last_seen is always bumped.
type HeartbeatParams struct {
	TotalRequests     *int64
	RequestsPerMinute *int64
	AvgResponseTimeMs *float64
	LastRequestAt     *time.Time
	TunnelURL         *string
}

// FleetStats summarizes the whole registry
type FleetStats struct {
	ActiveServers int64  `json:"active_servers"`
	RecentServers int64  `json:"recent_servers"`
	TotalRequests int64  `json:"total_requests"`
	AvgUptime     string `json:"avg_uptime"`
}

// ServerRepository tracks the liveness of redirect instances sharing one store
type ServerRepository interface {
	Register(params RegisterParams) error
	Heartbeat(serverID string, params HeartbeatParams) error
	MarkInactive(serverID string) error
	FindByServerID(serverID string) (*models.ServerInstance, error)
	ListActive(campaign string) ([]*models.ServerInstance, error)
	ListAll(includeInactive bool) ([]*models.ServerInstance, error)
	Cleanup(maxAgeHours int) (int64, error)
	FleetStats() (*FleetStats, error)
}

type serverRepo struct {
	db     *gorm.DB
	logger *pterm.Logger
}

// NewServerRepository creates a new server registry repository
func NewServerRepository(db *gorm.DB, logger *pterm.Logger) ServerRepository {
	return &serverRepo{db: db, logger: logger}
}

// Register upserts the row for params.ServerID. Re-registering an existing
// instance overwrites mutable fields and reactivates it without resetting
// started_at, so retries are idempotent.
func (r *serverRepo) Register(params RegisterParams) error {
	now := time.Now().UTC()

	var existing models.ServerInstance
	err := r.db.Where("server_id = ?", params.ServerID).First(&existing).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		r.logger.WithCaller().Error("Failed to look up server instance",
			r.logger.Args("server_id", params.ServerID, "error", err))
		return err
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		instance := &models.ServerInstance{
			ServerID:      params.ServerID,
			Campaign:      params.Campaign,
			RedirectURL:   params.RedirectURL,
			RedirectPort:  params.RedirectPort,
			DashboardPort: params.DashboardPort,
			Host:          params.Host,
			ProcessID:     params.ProcessID,
			Status:        models.ServerStatusActive,
			StartedAt:     now,
			LastSeen:      now,
			TunnelEnabled: params.TunnelEnabled,
			TunnelURL:     params.TunnelURL,
			Version:       params.Version,
			GoVersion:     params.GoVersion,
			Platform:      params.Platform,
		}
		if err := r.db.Create(instance).Error; err != nil {
			r.logger.WithCaller().Error("Failed to register server instance",
				r.logger.Args("server_id", params.ServerID, "error", err))
			return err
		}
		r.logger.Debug("Registered server instance",
			r.logger.Args("server_id", params.ServerID, "campaign", params.Campaign))
		return nil
	}

	updates := map[string]interface{}{
		"campaign":       params.Campaign,
		"redirect_url":   params.RedirectURL,
		"redirect_port":  params.RedirectPort,
		"dashboard_port": params.DashboardPort,
		"host":           params.Host,
		"process_id":     params.ProcessID,
		"status":         models.ServerStatusActive,
		"last_seen":      now,
		"tunnel_enabled": params.TunnelEnabled,
		"tunnel_url":     params.TunnelURL,
		"version":        params.Version,
		"go_version":     params.GoVersion,
		"platform":       params.Platform,
	}
	if err := r.db.Model(&models.ServerInstance{}).
		Where("server_id = ?", params.ServerID).
		Updates(updates).Error; err != nil {
		r.logger.WithCaller().Error("Failed to re-register server instance",
			r.logger.Args("server_id", params.ServerID, "error", err))
		return err
	}

	r.logger.Debug("Re-registered server instance", r.logger.Args("server_id", params.ServerID))
	return nil
}

// Heartbeat bumps last_seen plus any provided counters. A heartbeat for an
// unknown server id is silently dropped, not an error.
func (r *serverRepo) Heartbeat(serverID string, params HeartbeatParams) error {
	updates := map[string]interface{}{
		"last_seen": time.Now().UTC(),
	}
	if params.TotalRequests != nil {
		updates["total_requests"] = *params.TotalRequests
	}
	if params.RequestsPerMinute != nil {
		updates["requests_per_minute"] = *params.RequestsPerMinute
	}
	if params.AvgResponseTimeMs != nil {
		updates["avg_response_time_ms"] = *params.AvgResponseTimeMs
	}
	if params.LastRequestAt != nil {
		updates["last_request_at"] = *params.LastRequestAt
	}
	if params.TunnelURL != nil {
		updates["tunnel_url"] = *params.TunnelURL
	}

	result := r.db.Model(&models.ServerInstance{}).
		Where("server_id = ?", serverID).
		Updates(updates)
	if result.Error != nil {
		r.logger.WithCaller().Error("Failed to record heartbeat",
			r.logger.Args("server_id", serverID, "error", result.Error))
		return result.Error
	}
	if result.RowsAffected == 0 {
		r.logger.Trace("Heartbeat for unknown server skipped", r.logger.Args("server_id", serverID))
	}
	return nil
}

// MarkInactive flags a graceful shutdown
func (r *serverRepo) MarkInactive(serverID string) error {
	result := r.db.Model(&models.ServerInstance{}).
		Where("server_id = ?", serverID).
		Updates(map[string]interface{}{
			"status":    models.ServerStatusInactive,
			"last_seen": time.Now().UTC(),
		})
	if result.Error != nil {
		r.logger.WithCaller().Error("Failed to mark server inactive",
			r.logger.Args("server_id", serverID, "error", result.Error))
		return result.Error
	}

	r.logger.Debug("Marked server inactive", r.logger.Args("server_id", serverID))
	return nil
}

// FindByServerID retrieves one registry row
func (r *serverRepo) FindByServerID(serverID string) (*models.ServerInstance, error) {
	var instance models.ServerInstance
	if err := r.db.Where("server_id = ?", serverID).First(&instance).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("server %q: %w", serverID, ErrNotFound)
		}
		r.logger.WithCaller().Error("Failed to find server instance",
			r.logger.Args("server_id", serverID, "error", err))
		return nil, err
	}
	return &instance, nil
}

// ListActive returns instances heartbeated within the staleness window,
// optionally filtered by campaign, newest started first.
func (r *serverRepo) ListActive(campaign string) ([]*models.ServerInstance, error) {
	cutoff := time.Now().UTC().Add(-models.ActiveWindow)
	query := r.db.Where("last_seen > ?", cutoff).Order("started_at DESC")
	if campaign != "" {
		query = query.Where("campaign = ?", campaign)
	}

	var instances []*models.ServerInstance
	if err := query.Find(&instances).Error; err != nil {
		r.logger.WithCaller().Error("Failed to list active servers", r.logger.Args("error", err))
		return nil, err
	}
	return instances, nil
}

// ListAll returns every instance, or only those seen in the last 24 hours
// when includeInactive is false. Newest started first.
func (r *serverRepo) ListAll(includeInactive bool) ([]*models.ServerInstance, error) {
	query := r.db.Order("started_at DESC")
	if !includeInactive {
		cutoff := time.Now().UTC().Add(-RecentServerWindow)
		query = query.Where("last_seen > ?", cutoff)
	}

	var instances []*models.ServerInstance
	if err := query.Find(&instances).Error; err != nil {
		r.logger.WithCaller().Error("Failed to list servers", r.logger.Args("error", err))
		return nil, err
	}
	return instances, nil
}

// Cleanup deletes rows whose last heartbeat is older than maxAgeHours
// (default 168). Returns the number of rows removed.
func (r *serverRepo) Cleanup(maxAgeHours int) (int64, error) {
	if maxAgeHours <= 0 {
		maxAgeHours = DefaultCleanupAgeHours
	}
	cutoff := time.Now().UTC().Add(-time.Duration(maxAgeHours) * time.Hour)

	result := r.db.Where("last_seen < ?", cutoff).Delete(&models.ServerInstance{})
	if result.Error != nil {
		r.logger.WithCaller().Error("Failed to clean up server registry",
			r.logger.Args("error", result.Error))
		return 0, result.Error
	}

	r.logger.Debug("Cleaned up server registry",
		r.logger.Args("deleted", result.RowsAffected, "max_age_hours", maxAgeHours))
	return result.RowsAffected, nil
}

// FleetStats aggregates the registry: live instance count, instances seen in
// the last hour, total requests across all rows, and the average uptime of
// the live set as a human-readable duration.
func (r *serverRepo) FleetStats() (*FleetStats, error) {
	now := time.Now().UTC()
	stats := &FleetStats{}

	if err := r.db.Model(&models.ServerInstance{}).
		Where("last_seen > ?", now.Add(-models.ActiveWindow)).
		Count(&stats.ActiveServers).Error; err != nil {
		r.logger.WithCaller().Error("Failed to count active servers", r.logger.Args("error", err))
		return nil, err
	}

	if err := r.db.Model(&models.ServerInstance{}).
		Where("last_seen > ?", now.Add(-time.Hour)).
		Count(&stats.RecentServers).Error; err != nil {
		r.logger.WithCaller().Error("Failed to count recent servers", r.logger.Args("error", err))
		return nil, err
	}

	var totals []int64
	if err := r.db.Model(&models.ServerInstance{}).
		Pluck("total_requests", &totals).Error; err != nil {
		r.logger.WithCaller().Error("Failed to sum fleet requests", r.logger.Args("error", err))
		return nil, err
	}
	for _, total := range totals {
		stats.TotalRequests += total
	}

	var active []*models.ServerInstance
	if err := r.db.Where("last_seen > ?", now.Add(-models.ActiveWindow)).
		Find(&active).Error; err != nil {
		r.logger.WithCaller().Error("Failed to load active servers", r.logger.Args("error", err))
		return nil, err
	}

	var totalUptime time.Duration
	for _, instance := range active {
		totalUptime += now.Sub(instance.StartedAt)
	}
	if len(active) > 0 {
		stats.AvgUptime = FormatUptime(totalUptime / time.Duration(len(active)))
	} else {
		stats.AvgUptime = FormatUptime(0)
	}

	return stats, nil
}

// FormatUptime renders a duration the way the fleet dashboard shows it:
// "45s", "3m 20s", "2h 5m" or "1d 4h".
func FormatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}

	seconds := int64(d.Seconds())
	switch {
	case seconds < 60:
		return fmt.Sprintf("%ds", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
	case seconds < 86400:
		return fmt.Sprintf("%dh %dm", seconds/3600, (seconds%3600)/60)
	default:
		return fmt.Sprintf("%dd %dh", seconds/86400, (seconds%86400)/3600)
	}
}
