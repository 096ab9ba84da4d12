package repositories

import (
	"testing"

	"redirector/internal/database"
	"redirector/internal/database/models"

	"github.com/glebarez/sqlite"
	"github.com/pterm/pterm"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}

	// A pool of connections would each see its own empty in-memory database
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to access underlying connection: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return db
}

func testLogger() *pterm.Logger {
	logger := pterm.DefaultLogger.WithLevel(pterm.LogLevelFatal)
	return logger
}

func seedLog(t *testing.T, repo LogEntryRepository, entry *models.LogEntry) {
	t.Helper()
	if err := repo.Append(entry); err != nil {
		t.Fatalf("Failed to append log entry: %v", err)
	}
}
