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

// LogFilter narrows a log search. All fields are optional and conjunctive;
// the IP filter is a substring match applied to both the transport IP and
// the forwarded-for field, OR'd together.
type LogFilter struct {
	Campaign          string
	StartTime         *time.Time
	EndTime           *time.Time
	IPContains        string
	UserAgentContains string
	Method            string
	PathContains      string
}

// LogPage controls pagination and sort order for a log search.
// The default (zero value) sorts by timestamp descending.
type LogPage struct {
	Limit   int
	Offset  int
	SortAsc bool
}

// LogEntryRepository handles storage and retrieval of captured requests
type LogEntryRepository interface {
	Append(entry *models.LogEntry) error
	FindByID(id uint) (*models.LogEntry, error)
	Search(filter LogFilter, page LogPage) ([]*models.LogEntry, error)
	Count(filter LogFilter) (int64, error)
	DeleteByCampaign(name string) (int64, error)
	DeleteAll() (int64, error)
}

type logEntryRepo struct {
	db     *gorm.DB
	logger *pterm.Logger
}

// NewLogEntryRepository creates a new log entry repository
func NewLogEntryRepository(db *gorm.DB, logger *pterm.Logger) LogEntryRepository {
	return &logEntryRepo{db: db, logger: logger}
}

// Append inserts one log entry. Entries are immutable once written.
func (r *logEntryRepo) Append(entry *models.LogEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if err := r.db.Create(entry).Error; err != nil {
		r.logger.WithCaller().Error("Failed to append log entry",
			r.logger.Args("campaign", entry.Campaign, "error", err))
		return err
	}
	r.logger.Trace("Appended log entry", r.logger.Args("id", entry.ID, "campaign", entry.Campaign))
	return nil
}

// FindByID retrieves a single log entry
func (r *logEntryRepo) FindByID(id uint) (*models.LogEntry, error) {
	var entry models.LogEntry
	if err := r.db.First(&entry, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("log entry %d: %w", id, ErrNotFound)
		}
		r.logger.WithCaller().Error("Failed to find log entry", r.logger.Args("id", id, "error", err))
		return nil, err
	}
	return &entry, nil
}

// applyFilter applies the shared filter semantics used by Search and Count
func (r *logEntryRepo) applyFilter(query *gorm.DB, filter LogFilter) *gorm.DB {
	if filter.Campaign != "" {
		query = query.Where("campaign = ?", filter.Campaign)
	}
	if filter.StartTime != nil {
		query = query.Where("timestamp >= ?", *filter.StartTime)
	}
	if filter.EndTime != nil {
		query = query.Where("timestamp <= ?", *filter.EndTime)
	}
	if filter.IPContains != "" {
		pattern := "%" + filter.IPContains + "%"
		query = query.Where("client_ip LIKE ? OR x_forwarded_for LIKE ?", pattern, pattern)
	}
	if filter.UserAgentContains != "" {
		query = query.Where("user_agent LIKE ?", "%"+filter.UserAgentContains+"%")
	}
	if filter.Method != "" {
		query = query.Where("method = ?", filter.Method)
	}
	if filter.PathContains != "" {
		query = query.Where("path LIKE ?", "%"+filter.PathContains+"%")
	}
	return query
}

// Search returns the page of entries matching the filter. Timestamp ties are
// broken by insertion id so pagination is stable under concurrent writers.
func (r *logEntryRepo) Search(filter LogFilter, page LogPage) ([]*models.LogEntry, error) {
	if page.Offset < 0 || page.Limit < 0 {
		return nil, fmt.Errorf("negative offset or limit: %w", ErrValidation)
	}

	var entries []*models.LogEntry
	query := r.applyFilter(r.db.Model(&models.LogEntry{}), filter)

	if page.SortAsc {
		query = query.Order("timestamp ASC, id ASC")
	} else {
		query = query.Order("timestamp DESC, id DESC")
	}

	if page.Limit > 0 {
		query = query.Limit(page.Limit)
	}
	if page.Offset > 0 {
		query = query.Offset(page.Offset)
	}

	if err := query.Find(&entries).Error; err != nil {
		r.logger.WithCaller().Error("Failed to search log entries", r.logger.Args("error", err))
		return nil, err
	}

	r.logger.Trace("Searched log entries",
		r.logger.Args("count", len(entries), "limit", page.Limit, "offset", page.Offset))
	return entries, nil
}

// Count returns the total number of entries matching the filter
func (r *logEntryRepo) Count(filter LogFilter) (int64, error) {
	var count int64
	query := r.applyFilter(r.db.Model(&models.LogEntry{}), filter)
	if err := query.Count(&count).Error; err != nil {
		r.logger.WithCaller().Error("Failed to count log entries", r.logger.Args("error", err))
		return 0, err
	}
	return count, nil
}

// DeleteByCampaign removes every entry recorded under the campaign name.
// The campaign row itself is untouched.
func (r *logEntryRepo) DeleteByCampaign(name string) (int64, error) {
	result := r.db.Where("campaign = ?", name).Delete(&models.LogEntry{})
	if result.Error != nil {
		r.logger.WithCaller().Error("Failed to delete log entries by campaign",
			r.logger.Args("campaign", name, "error", result.Error))
		return 0, result.Error
	}

	r.logger.Debug("Deleted log entries by campaign",
		r.logger.Args("campaign", name, "deleted", result.RowsAffected))
	return result.RowsAffected, nil
}

// DeleteAll removes every stored entry across all campaigns
func (r *logEntryRepo) DeleteAll() (int64, error) {
	result := r.db.Where("1 = 1").Delete(&models.LogEntry{})
	if result.Error != nil {
		r.logger.WithCaller().Error("Failed to delete all log entries", r.logger.Args("error", result.Error))
		return 0, result.Error
	}

	r.logger.Debug("Deleted all log entries", r.logger.Args("deleted", result.RowsAffected))
	return result.RowsAffected, nil
}
