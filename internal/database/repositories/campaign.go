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
	"redirector/internal/database/models"

	"github.com/pterm/pterm"
	"gorm.io/gorm"
)

// CampaignRepository handles CRUD operations for campaigns
type CampaignRepository interface {
	EnsureExists(name string, description string) error
	Create(name string, description string) (*models.Campaign, error)
	FindByName(name string) (*models.Campaign, error)
	FindAll(activeOnly bool) ([]*models.Campaign, error)
	Delete(id uint) error
	DeleteWithLogs(id uint) (int64, error)
}

type campaignRepo struct {
	db     *gorm.DB
	logger *pterm.Logger
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(db *gorm.DB, logger *pterm.Logger) CampaignRepository {
	return &campaignRepo{db: db, logger: logger}
}

// EnsureExists creates the campaign if it is not already present. Calling it
// for an existing name is a no-op.
func (r *campaignRepo) EnsureExists(name string, description string) error {
	var existing models.Campaign
	err := r.db.Where("name = ?", name).First(&existing).Error
	if err == nil {
		r.logger.Trace("Campaign already exists", r.logger.Args("name", name))
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		r.logger.WithCaller().Error("Failed to look up campaign", r.logger.Args("name", name, "error", err))
		return err
	}

	if description == "" {
		description = "Auto-created campaign: " + name
	}

	campaign := &models.Campaign{
		Name:        name,
		Description: description,
		IsActive:    true,
	}
	if err := r.db.Create(campaign).Error; err != nil {
		r.logger.WithCaller().Error("Failed to create campaign", r.logger.Args("name", name, "error", err))
		return err
	}

	r.logger.Debug("Created campaign", r.logger.Args("name", name, "id", campaign.ID))
	return nil
}

// Create inserts a new campaign, failing with ErrConflict if the name is taken
func (r *campaignRepo) Create(name string, description string) (*models.Campaign, error) {
	var existing models.Campaign
	err := r.db.Where("name = ?", name).First(&existing).Error
	if err == nil {
		return nil, fmt.Errorf("campaign %q: %w", name, ErrConflict)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		r.logger.WithCaller().Error("Failed to look up campaign", r.logger.Args("name", name, "error", err))
		return nil, err
	}

	campaign := &models.Campaign{
		Name:        name,
		Description: description,
		IsActive:    true,
	}
	if err := r.db.Create(campaign).Error; err != nil {
		r.logger.WithCaller().Error("Failed to create campaign", r.logger.Args("name", name, "error", err))
		return nil, err
	}

	r.logger.Debug("Created campaign", r.logger.Args("name", name, "id", campaign.ID))
	return campaign, nil
}

// FindByName retrieves a campaign by its unique name
func (r *campaignRepo) FindByName(name string) (*models.Campaign, error) {
	var campaign models.Campaign
	if err := r.db.Where("name = ?", name).First(&campaign).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("campaign %q: %w", name, ErrNotFound)
		}
		r.logger.WithCaller().Error("Failed to find campaign", r.logger.Args("name", name, "error", err))
		return nil, err
	}
	return &campaign, nil
}

// FindAll retrieves campaigns ordered by most-recently-created first
func (r *campaignRepo) FindAll(activeOnly bool) ([]*models.Campaign, error) {
	var campaigns []*models.Campaign
	query := r.db.Order("created_at DESC")
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	if err := query.Find(&campaigns).Error; err != nil {
		r.logger.WithCaller().Error("Failed to find campaigns", r.logger.Args("error", err))
		return nil, err
	}
	return campaigns, nil
}

// Delete removes the campaign row only. Its log entries are untouched;
// callers that want both must use DeleteWithLogs.
func (r *campaignRepo) Delete(id uint) error {
	result := r.db.Delete(&models.Campaign{}, id)
	if result.Error != nil {
		r.logger.WithCaller().Error("Failed to delete campaign", r.logger.Args("id", id, "error", result.Error))
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("campaign id %d: %w", id, ErrNotFound)
	}

	r.logger.Debug("Deleted campaign", r.logger.Args("id", id))
	return nil
}

// DeleteWithLogs removes the campaign and all of its log entries inside a
// single transaction, so a crash cannot leave orphaned logs behind a missing
// campaign. Returns the number of log entries deleted.
func (r *campaignRepo) DeleteWithLogs(id uint) (int64, error) {
	var logsDeleted int64

	err := r.db.Transaction(func(tx *gorm.DB) error {
		var campaign models.Campaign
		if err := tx.First(&campaign, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("campaign id %d: %w", id, ErrNotFound)
			}
			return err
		}

		result := tx.Where("campaign = ?", campaign.Name).Delete(&models.LogEntry{})
		if result.Error != nil {
			return result.Error
		}
		logsDeleted = result.RowsAffected

		return tx.Delete(&models.Campaign{}, id).Error
	})

	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			r.logger.WithCaller().Error("Failed to delete campaign with logs",
				r.logger.Args("id", id, "error", err))
		}
		return 0, err
	}

	r.logger.Debug("Deleted campaign with logs",
		r.logger.Args("id", id, "logs_deleted", logsDeleted))
	return logsDeleted, nil
}
