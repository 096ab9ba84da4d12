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
	"math"
	"time"

	"redirector/internal/database/models"

	"github.com/pterm/pterm"
	"gorm.io/gorm"
)

const (
	// RecentWindow is the lookback for "recent" request counts
	RecentWindow = 24 * time.Hour
	// TopUserAgentLimit caps the user-agent leaderboard in campaign stats
	TopUserAgentLimit = 10
	// TopMethodLimit caps the method leaderboard on campaign cards
	TopMethodLimit = 3
)

// MethodCount is one row of a method→count breakdown, ordered by count
type MethodCount struct {
	Method string `json:"method"`
	Count  int64  `json:"count"`
}

// UserAgentCount is one row of the user-agent leaderboard
type UserAgentCount struct {
	UserAgent string `json:"user_agent"`
	Count     int64  `json:"count"`
}

// CampaignStats summarizes captured traffic, globally or for one campaign
type CampaignStats struct {
	Campaign       string           `json:"campaign,omitempty"`
	TotalRequests  int64            `json:"total_requests"`
	RecentRequests int64            `json:"recent_requests"`
	Methods        []MethodCount    `json:"methods"`
	TopUserAgents  []UserAgentCount `json:"top_user_agents"`
}

// CampaignCard is the dashboard summary for one active campaign
type CampaignCard struct {
	ID               uint          `json:"id"`
	Name             string        `json:"name"`
	Description      string        `json:"description"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
	IsActive         bool          `json:"is_active"`
	RequestCount     int64         `json:"request_count"`
	RecentCount      int64         `json:"recent_count"`
	TunnelRequests   int64         `json:"tunnel_requests"`
	TunnelPercentage float64       `json:"tunnel_percentage"`
	LatestRequest    *time.Time    `json:"latest_request"`
	TopMethods       []MethodCount `json:"top_methods"`
	TunnelURL        string        `json:"tunnel_url,omitempty"`
}

// StatsRepository provides aggregate views over captured requests
type StatsRepository interface {
	CampaignStats(campaign string) (*CampaignStats, error)
	CampaignCards(limit int, offset int) ([]*CampaignCard, error)
	ActiveCampaignCount() (int64, error)
}

type statsRepo struct {
	db     *gorm.DB
	logger *pterm.Logger
}

// NewStatsRepository creates a new stats repository
func NewStatsRepository(db *gorm.DB, logger *pterm.Logger) StatsRepository {
	return &statsRepo{db: db, logger: logger}
}

// CampaignStats computes totals, the trailing-24h count, the method breakdown
// and the top user agents, scoped to campaign when non-empty, global otherwise.
func (r *statsRepo) CampaignStats(campaign string) (*CampaignStats, error) {
	stats := &CampaignStats{Campaign: campaign}

	base := r.db.Model(&models.LogEntry{})
	if campaign != "" {
		base = base.Where("campaign = ?", campaign)
	}

	if err := base.Session(&gorm.Session{}).Count(&stats.TotalRequests).Error; err != nil {
		r.logger.WithCaller().Error("Failed to count requests", r.logger.Args("error", err))
		return nil, err
	}

	cutoff := time.Now().UTC().Add(-RecentWindow)
	if err := base.Session(&gorm.Session{}).
		Where("timestamp >= ?", cutoff).
		Count(&stats.RecentRequests).Error; err != nil {
		r.logger.WithCaller().Error("Failed to count recent requests", r.logger.Args("error", err))
		return nil, err
	}

	if err := base.Session(&gorm.Session{}).
		Select("method, COUNT(id) AS count").
		Group("method").
		Order("count DESC").
		Scan(&stats.Methods).Error; err != nil {
		r.logger.WithCaller().Error("Failed to aggregate methods", r.logger.Args("error", err))
		return nil, err
	}

	if err := base.Session(&gorm.Session{}).
		Select("user_agent, COUNT(id) AS count").
		Group("user_agent").
		Order("count DESC").
		Limit(TopUserAgentLimit).
		Scan(&stats.TopUserAgents).Error; err != nil {
		r.logger.WithCaller().Error("Failed to aggregate user agents", r.logger.Args("error", err))
		return nil, err
	}

	for i := range stats.TopUserAgents {
		if stats.TopUserAgents[i].UserAgent == "" {
			stats.TopUserAgents[i].UserAgent = "Unknown"
		}
	}

	r.logger.Trace("Computed campaign stats",
		r.logger.Args("campaign", campaign, "total", stats.TotalRequests))
	return stats, nil
}

// CampaignCards builds dashboard cards for active campaigns ordered by most
// recent update, one page at a time.
func (r *statsRepo) CampaignCards(limit int, offset int) ([]*CampaignCard, error) {
	var campaigns []*models.Campaign
	query := r.db.Where("is_active = ?", true).Order("updated_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if err := query.Find(&campaigns).Error; err != nil {
		r.logger.WithCaller().Error("Failed to load campaigns for cards", r.logger.Args("error", err))
		return nil, err
	}

	cutoff := time.Now().UTC().Add(-RecentWindow)
	cards := make([]*CampaignCard, 0, len(campaigns))

	for _, campaign := range campaigns {
		card := &CampaignCard{
			ID:          campaign.ID,
			Name:        campaign.Name,
			Description: campaign.Description,
			CreatedAt:   campaign.CreatedAt,
			UpdatedAt:   campaign.UpdatedAt,
			IsActive:    campaign.IsActive,
			TopMethods:  []MethodCount{},
		}

		scoped := r.db.Model(&models.LogEntry{}).Where("campaign = ?", campaign.Name)

		if err := scoped.Session(&gorm.Session{}).Count(&card.RequestCount).Error; err != nil {
			return nil, err
		}
		if err := scoped.Session(&gorm.Session{}).
			Where("timestamp >= ?", cutoff).
			Count(&card.RecentCount).Error; err != nil {
			return nil, err
		}
		if err := scoped.Session(&gorm.Session{}).
			Where("via_tunnel = ?", true).
			Count(&card.TunnelRequests).Error; err != nil {
			return nil, err
		}

		card.TunnelPercentage = roundPercentage(card.TunnelRequests, card.RequestCount)

		var latest models.LogEntry
		err := r.db.Where("campaign = ?", campaign.Name).
			Order("timestamp DESC, id DESC").
			First(&latest).Error
		if err == nil {
			ts := latest.Timestamp
			card.LatestRequest = &ts
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}

		if err := scoped.Session(&gorm.Session{}).
			Select("method, COUNT(id) AS count").
			Group("method").
			Order("count DESC").
			Limit(TopMethodLimit).
			Scan(&card.TopMethods).Error; err != nil {
			return nil, err
		}

		cards = append(cards, card)
	}

	r.logger.Trace("Built campaign cards", r.logger.Args("count", len(cards)))
	return cards, nil
}

// ActiveCampaignCount returns the total number of active campaigns, used by
// callers to compute page counts for the cards view.
func (r *statsRepo) ActiveCampaignCount() (int64, error) {
	var count int64
	if err := r.db.Model(&models.Campaign{}).Where("is_active = ?", true).Count(&count).Error; err != nil {
		r.logger.WithCaller().Error("Failed to count active campaigns", r.logger.Args("error", err))
		return 0, err
	}
	return count, nil
}

// roundPercentage computes part/total as a percentage rounded to one decimal.
// An empty total yields 0, not an error.
func roundPercentage(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*1000) / 10
}
