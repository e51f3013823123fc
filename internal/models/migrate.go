package models

import (
	"log"

	"gorm.io/gorm"
)

// AutoMigrate creates or updates all tables
func AutoMigrate(db *gorm.DB) error {
	log.Println("Running database migrations...")

	if err := db.AutoMigrate(
		&User{},
		&Notification{},
		&DeviceEndpoint{},
		&NotificationAudit{},
	); err != nil {
		return err
	}

	log.Println("Database migrations completed")
	return nil
}
