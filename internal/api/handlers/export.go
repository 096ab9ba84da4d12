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
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"redirector/internal/database/models"
	"redirector/internal/database/repositories"

	"github.com/gin-gonic/gin"
	"github.com/pterm/pterm"
)

// exportRowCap bounds a single export download
const exportRowCap = 10000

var csvHeader = []string{
	"id", "timestamp", "client_ip", "x_forwarded_for", "user_agent", "method",
	"url", "path", "query_string", "referer", "accept_language",
	"geo_country", "geo_city", "campaign", "response_time_ms", "via_tunnel",
}

// ExportHandler streams log downloads
type ExportHandler struct {
	logRepo repositories.LogEntryRepository
	logger  *pterm.Logger
}

// NewExportHandler creates a new export handler
func NewExportHandler(logRepo repositories.LogEntryRepository, logger *pterm.Logger) *ExportHandler {
	return &ExportHandler{logRepo: logRepo, logger: logger}
}

func (h *ExportHandler) fetch(c *gin.Context) ([]*models.LogEntry, bool) {
	filter, ok := parseLogFilter(c)
	if !ok {
		return nil, false
	}

	entries, err := h.logRepo.Search(filter, repositories.LogPage{Limit: exportRowCap})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load logs for export"})
		return nil, false
	}
	return entries, true
}

func exportFilename(campaign, ext string) string {
	scope := campaign
	if scope == "" {
		scope = "all"
	}
	return fmt.Sprintf("redirector_logs_%s_%s.%s", scope, time.Now().UTC().Format("20060102_150405"), ext)
}

// ExportCSV downloads matching entries as CSV, newest first, capped
func (h *ExportHandler) ExportCSV(c *gin.Context) {
	entries, ok := h.fetch(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", exportFilename(c.Query("campaign"), "csv")))

	writer := csv.NewWriter(c.Writer)
	if err := writer.Write(csvHeader); err != nil {
		h.logger.Warn("CSV export aborted", h.logger.Args("error", err))
		return
	}
	for _, entry := range entries {
		record := []string{
			strconv.FormatUint(uint64(entry.ID), 10),
			entry.Timestamp.UTC().Format(time.RFC3339),
			entry.ClientIP,
			entry.XForwardedFor,
			entry.UserAgent,
			entry.Method,
			entry.URL,
			entry.Path,
			entry.QueryString,
			entry.Referer,
			entry.AcceptLanguage,
			entry.GeoCountry,
			entry.GeoCity,
			entry.Campaign,
			strconv.FormatInt(entry.ResponseTimeMs, 10),
			strconv.FormatBool(entry.ViaTunnel),
		}
		if err := writer.Write(record); err != nil {
			h.logger.Warn("CSV export aborted", h.logger.Args("error", err))
			return
		}
	}
	writer.Flush()

	h.logger.Debug("Exported logs as CSV",
		h.logger.Args("rows", len(entries), "campaign", c.Query("campaign")))
}

// ExportJSONL downloads matching entries as one JSON object per line
func (h *ExportHandler) ExportJSONL(c *gin.Context) {
	entries, ok := h.fetch(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", exportFilename(c.Query("campaign"), "jsonl")))

	encoder := json.NewEncoder(c.Writer)
	for _, entry := range entries {
		row := logSummary(entry)
		if headers, err := entry.HeaderMap(); err == nil {
			row["headers"] = headers
		}
		if err := encoder.Encode(row); err != nil {
			h.logger.Warn("JSONL export aborted", h.logger.Args("error", err))
			return
		}
	}

	h.logger.Debug("Exported logs as JSONL",
		h.logger.Args("rows", len(entries), "campaign", c.Query("campaign")))
}
