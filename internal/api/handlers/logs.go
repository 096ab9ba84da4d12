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

const (
	defaultPerPage = 50
	maxPerPage     = 1000
)

// LogHandler serves the captured request log
type LogHandler struct {
	logRepo repositories.LogEntryRepository
	logger  *pterm.Logger
}

// NewLogHandler creates a new log handler
func NewLogHandler(logRepo repositories.LogEntryRepository, logger *pterm.Logger) *LogHandler {
	return &LogHandler{logRepo: logRepo, logger: logger}
}

// parseLogFilter reads the shared filter params used by listing and export.
// Returns false after writing a 400 when a time bound does not parse.
func parseLogFilter(c *gin.Context) (repositories.LogFilter, bool) {
	filter := repositories.LogFilter{
		Campaign:          c.Query("campaign"),
		IPContains:        c.Query("ip"),
		UserAgentContains: c.Query("user_agent"),
		Method:            c.Query("method"),
		PathContains:      c.Query("path"),
	}

	if raw := c.Query("start_time"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "start_time must be RFC3339"})
			return filter, false
		}
		filter.StartTime = &ts
	}
	if raw := c.Query("end_time"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "end_time must be RFC3339"})
			return filter, false
		}
		filter.EndTime = &ts
	}

	return filter, true
}

// positiveIntParam parses a query param that must be a positive integer when
// present, defaulting when absent. max == 0 means unbounded. Returns false
// after writing a 400: bad pagination is an error, never silently corrected.
func positiveIntParam(c *gin.Context, name string, def, max int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 1 || (max > 0 && val > max) {
		msg := name + " must be a positive integer"
		if max > 0 {
			msg = name + " must be an integer between 1 and " + strconv.Itoa(max)
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return 0, false
	}
	return val, true
}

// ListLogs returns one page of entries matching the filter params
func (h *LogHandler) ListLogs(c *gin.Context) {
	filter, ok := parseLogFilter(c)
	if !ok {
		return
	}

	page, ok := positiveIntParam(c, "page", 1, 0)
	if !ok {
		return
	}
	perPage, ok := positiveIntParam(c, "per_page", defaultPerPage, maxPerPage)
	if !ok {
		return
	}

	total, err := h.logRepo.Count(filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count logs"})
		return
	}

	entries, err := h.logRepo.Search(filter, repositories.LogPage{
		Limit:   perPage,
		Offset:  (page - 1) * perPage,
		SortAsc: c.Query("sort") == "asc",
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to search logs"})
		return
	}

	logs := make([]gin.H, len(entries))
	for i, entry := range entries {
		logs[i] = logSummary(entry)
	}

	pages := int64(0)
	if total > 0 {
		pages = (total + int64(perPage) - 1) / int64(perPage)
	}

	c.JSON(http.StatusOK, gin.H{
		"logs":     logs,
		"total":    total,
		"page":     page,
		"per_page": perPage,
		"pages":    pages,
	})
}

// GetLog returns the full detail of one entry, headers and body included
func (h *LogHandler) GetLog(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid log id"})
		return
	}

	entry, err := h.logRepo.FindByID(uint(id))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "log entry not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load log entry"})
		return
	}

	detail := logSummary(entry)
	headers, err := entry.HeaderMap()
	if err != nil {
		h.logger.Warn("Stored headers are unreadable", h.logger.Args("id", entry.ID, "error", err))
		headers = map[string]string{}
	}
	detail["headers"] = headers
	detail["body_digest"] = entry.BodyDigest
	detail["body"] = entry.BodyContent

	c.JSON(http.StatusOK, detail)
}

// DeleteLogs clears the store, scoped to one campaign when given
func (h *LogHandler) DeleteLogs(c *gin.Context) {
	var deleted int64
	var err error

	campaign := c.Query("campaign")
	if campaign != "" {
		deleted, err = h.logRepo.DeleteByCampaign(campaign)
	} else {
		deleted, err = h.logRepo.DeleteAll()
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete logs"})
		return
	}

	h.logger.Info("Deleted logs via API", h.logger.Args("campaign", campaign, "deleted", deleted))
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// logSummary is the list-view shape of one entry
func logSummary(entry *models.LogEntry) gin.H {
	userAgent := entry.UserAgent
	if userAgent == "" {
		userAgent = "Unknown"
	}

	return gin.H{
		"id":               entry.ID,
		"timestamp":        entry.Timestamp.UTC().Format(time.RFC3339),
		"client_ip":        entry.ClientIP,
		"x_forwarded_for":  entry.XForwardedFor,
		"user_agent":       userAgent,
		"method":           entry.Method,
		"url":              entry.URL,
		"path":             entry.Path,
		"query_string":     entry.QueryString,
		"referer":          entry.Referer,
		"accept_language":  entry.AcceptLanguage,
		"geo_country":      entry.GeoCountry,
		"geo_city":         entry.GeoCity,
		"campaign":         entry.Campaign,
		"response_time_ms": entry.ResponseTimeMs,
		"via_tunnel":       entry.ViaTunnel,
		"has_body":         entry.HasBody(),
	}
}
