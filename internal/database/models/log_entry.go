package models

import (
	"encoding/json"
	"time"
)

type LogEntry struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Timestamp time.Time `gorm:"not null;index:idx_timestamp_campaign,priority:1"`

	// Client info
	ClientIP      string `gorm:"size:64;index:idx_ip_campaign,priority:1"`
	XForwardedFor string `gorm:"size:255"` // As reported by a proxy/tunnel, never trusted
	UserAgent     string `gorm:"type:text"`

	// Request info
	Method      string `gorm:"size:10;index:idx_method_campaign,priority:1"`
	URL         string `gorm:"type:text;not null"`
	Path        string `gorm:"size:2048;index:idx_path_campaign,priority:1"`
	QueryString string `gorm:"type:text"`

	// Headers and body
	Headers     string `gorm:"type:text"` // JSON object, sensitive names stripped before storage
	BodyDigest  string `gorm:"size:64"`   // SHA256 hex
	BodyContent string `gorm:"type:text"` // Base64, only populated when body storage is enabled

	// Additional tracking
	Referer        string `gorm:"type:text"`
	AcceptLanguage string `gorm:"size:255"`

	// GeoIP enrichment (optional)
	GeoCountry string `gorm:"size:8"`
	GeoCity    string

	// Campaign association by name, not a foreign key
	Campaign string `gorm:"size:255;not null;index:idx_timestamp_campaign,priority:2;index:idx_ip_campaign,priority:2;index:idx_path_campaign,priority:2;index:idx_method_campaign,priority:2"`

	// Capture-to-redirect latency
	ResponseTimeMs int64

	// Heuristic: request arrived through the public tunnel
	ViaTunnel bool
}

func (LogEntry) TableName() string {
	return "logs"
}

// SetHeaders serializes the captured header map into the stored JSON column.
func (e *LogEntry) SetHeaders(headers map[string]string) error {
	data, err := json.Marshal(headers)
	if err != nil {
		return err
	}
	e.Headers = string(data)
	return nil
}

// HeaderMap deserializes the stored JSON header column. An empty column
// yields an empty map, not an error.
func (e *LogEntry) HeaderMap() (map[string]string, error) {
	headers := make(map[string]string)
	if e.Headers == "" {
		return headers, nil
	}
	if err := json.Unmarshal([]byte(e.Headers), &headers); err != nil {
		return nil, err
	}
	return headers, nil
}

// HasBody reports whether a request body was stored with this entry.
func (e *LogEntry) HasBody() bool {
	return e.BodyContent != ""
}
