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
	"errors"
	"net/http"
	"strconv"
	"time"

	"redirector/internal/database/models"
	"redirector/internal/database/repositories"

	"github.com/gin-gonic/gin"
	"github.com/pterm/pterm"
)

// CampaignHandler manages campaign lifecycle over the API
type CampaignHandler struct {
	campaignRepo repositories.CampaignRepository
	logger       *pterm.Logger
}

// NewCampaignHandler creates a new campaign handler
func NewCampaignHandler(campaignRepo repositories.CampaignRepository, logger *pterm.Logger) *CampaignHandler {
	return &CampaignHandler{campaignRepo: campaignRepo, logger: logger}
}

type createCampaignRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

func campaignView(campaign *models.Campaign) gin.H {
	return gin.H{
		"id":          campaign.ID,
		"name":        campaign.Name,
		"description": campaign.Description,
		"created_at":  campaign.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at":  campaign.UpdatedAt.UTC().Format(time.RFC3339),
		"is_active":   campaign.IsActive,
	}
}

// ListCampaigns returns all campaigns, optionally only the active ones
func (h *CampaignHandler) ListCampaigns(c *gin.Context) {
	campaigns, err := h.campaignRepo.FindAll(c.Query("active") == "true")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list campaigns"})
		return
	}

	result := make([]gin.H, len(campaigns))
	for i, campaign := range campaigns {
		result[i] = campaignView(campaign)
	}
	c.JSON(http.StatusOK, gin.H{"campaigns": result})
}

// CreateCampaign registers a new campaign name
func (h *CampaignHandler) CreateCampaign(c *gin.Context) {
	var req createCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	campaign, err := h.campaignRepo.Create(req.Name, req.Description)
	if err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": "campaign already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create campaign"})
		return
	}

	c.JSON(http.StatusCreated, campaignView(campaign))
}

// DeleteCampaign removes a campaign; with ?purge=true its logs go with it
func (h *CampaignHandler) DeleteCampaign(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid campaign id"})
		return
	}

	if c.Query("purge") == "true" {
		logsDeleted, err := h.campaignRepo.DeleteWithLogs(uint(id))
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete campaign"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": true, "logs_deleted": logsDeleted})
		return
	}

	if err := h.campaignRepo.Delete(uint(id)); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete campaign"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true, "logs_deleted": 0})
}
