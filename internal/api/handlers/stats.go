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

	"redirector/internal/database/repositories"

	"github.com/gin-gonic/gin"
	"github.com/pterm/pterm"
)

const (
	defaultCardsPerPage = 20
	maxCardsPerPage     = 100
)

// StatsHandler serves traffic aggregates for the dashboard
type StatsHandler struct {
	statsRepo repositories.StatsRepository
	logger    *pterm.Logger
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(statsRepo repositories.StatsRepository, logger *pterm.Logger) *StatsHandler {
	return &StatsHandler{statsRepo: statsRepo, logger: logger}
}

// GetStats returns traffic aggregates, scoped with ?campaign=
func (h *StatsHandler) GetStats(c *gin.Context) {
	stats, err := h.statsRepo.CampaignStats(c.Query("campaign"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetCampaignCards returns one page of dashboard cards for active campaigns
func (h *StatsHandler) GetCampaignCards(c *gin.Context) {
	page, ok := positiveIntParam(c, "page", 1, 0)
	if !ok {
		return
	}
	perPage, ok := positiveIntParam(c, "per_page", defaultCardsPerPage, maxCardsPerPage)
	if !ok {
		return
	}

	total, err := h.statsRepo.ActiveCampaignCount()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count campaigns"})
		return
	}

	cards, err := h.statsRepo.CampaignCards(perPage, (page-1)*perPage)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build campaign cards"})
		return
	}

	pages := int64(0)
	if total > 0 {
		pages = (total + int64(perPage) - 1) / int64(perPage)
	}

	c.JSON(http.StatusOK, gin.H{
		"campaigns": cards,
		"total":     total,
		"page":      page,
		"per_page":  perPage,
		"pages":     pages,
	})
}
