package database

import (
	"fmt"
	"time"

	"feedback-bot/internal/database/models"

	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenPostgres opens the relational store. SQL statements are logged only in debug mode.
func OpenPostgres(dsn string, debug bool) (*gorm.DB, error) {
	level := logger.Warn
	if debug {
		level = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.New(log.StandardLogger(), logger.Config{
			SlowThreshold: 500 * time.Millisecond,
			LogLevel:      level,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	return db, nil
}

// Migrate creates or updates the users, feedback and attachments tables.
func Migrate(db *gorm.DB) error {
	for _, model := range []interface{}{&models.User{}, &models.Feedback{}, &models.Attachment{}} {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", model, err)
		}
	}
	log.Info("Database schema is up to date")
	return nil
}
