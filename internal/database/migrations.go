package database

import (
	"redirector/internal/database/models"

	"gorm.io/gorm"
)

func RunMigrations(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Campaign{},
		&models.LogEntry{},
		&models.ServerInstance{},
	)
}
