package store

import (
	"encoding/json"
	"log"

	"gorm.io/gorm"

	"github.com/crewops/backend/internal/models"
)

// AuditStore appends notification audit facts. Audit writes never fail the
// operation they describe; errors are logged and swallowed.
type AuditStore struct {
	db *gorm.DB
}

// NewAuditStore creates an audit store
func NewAuditStore(db *gorm.DB) *AuditStore {
	return &AuditStore{db: db}
}

// Record appends an audit fact for a notification (or SystemNotificationID)
func (s *AuditStore) Record(notificationID, workerID uint, event models.AuditEvent, metadata map[string]interface{}) {
	meta := "{}"
	if len(metadata) > 0 {
		if data, err := json.Marshal(metadata); err == nil {
			meta = string(data)
		} else {
			log.Printf("Audit: Failed to marshal metadata for %s: %v", event, err)
		}
	}

	entry := models.NotificationAudit{
		NotificationID: notificationID,
		WorkerID:       workerID,
		Event:          event,
		Metadata:       meta,
	}
	if err := s.db.Create(&entry).Error; err != nil {
		log.Printf("Audit: Failed to record %s for notification %d: %v", event, notificationID, err)
	}
}
