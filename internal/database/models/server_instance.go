package models

import (
	"time"
)

const (
	// ServerStatusActive marks an instance that is running (or was, until it
	// stopped heartbeating).
	ServerStatusActive = "active"
	// ServerStatusInactive marks an instance that shut down gracefully.
	ServerStatusInactive = "inactive"

	// ActiveWindow is the staleness threshold for the derived liveness flag:
	// a row not heartbeated within this window is no longer considered live,
	// whatever its stored status says.
	ActiveWindow = 2 * time.Minute
)

// ServerInstance is one row per running redirect process, upserted by its
// own heartbeat reporter. server_id is generated at process start and is
// stable for that process's lifetime.
type ServerInstance struct {
	ID       uint   `gorm:"primaryKey;autoIncrement"`
	ServerID string `gorm:"uniqueIndex;size:64;not null"`
	Campaign string `gorm:"size:255;index"`

	RedirectURL   string `gorm:"type:text"`
	RedirectPort  int
	DashboardPort int
	Host          string `gorm:"size:255"`
	ProcessID     int

	Status        string    `gorm:"size:16;not null;default:active"`
	StartedAt     time.Time `gorm:"not null;index"`
	LastSeen      time.Time `gorm:"not null;index"`
	LastRequestAt *time.Time

	// Aggregate counters pushed by the heartbeat reporter
	TotalRequests     int64
	RequestsPerMinute int64
	AvgResponseTimeMs float64

	TunnelEnabled bool
	TunnelURL     string `gorm:"size:512"`

	// Static metadata
	Version   string `gorm:"size:32"`
	GoVersion string `gorm:"size:32"`
	Platform  string `gorm:"size:64"`
}

func (ServerInstance) TableName() string {
	return "server_instances"
}

// IsActive derives liveness at read time: stored status must be active AND
// the last heartbeat must be fresher than the staleness window. Never stored.
func (s *ServerInstance) IsActive(now time.Time) bool {
	return s.Status == ServerStatusActive && now.Sub(s.LastSeen) < ActiveWindow
}
