// Package store holds the GORM-backed persistence layer for the notification
// engine. Services talk to these types through narrow interfaces they declare
// themselves, so tests can substitute in-memory fakes.
package store

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/crewops/backend/internal/models"
)

// ErrNotFound is returned when a notification does not exist
var ErrNotFound = errors.New("notification not found")

// NotificationStore persists notifications in Postgres
type NotificationStore struct {
	db *gorm.DB
}

// NewNotificationStore creates a notification store
func NewNotificationStore(db *gorm.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

// Create inserts a new notification row
func (s *NotificationStore) Create(n *models.Notification) error {
	return s.db.Create(n).Error
}

// GetByID fetches a notification by id
func (s *NotificationStore) GetByID(id uint) (*models.Notification, error) {
	var n models.Notification
	if err := s.db.First(&n, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}

// CountCreatedSince counts notifications created for a recipient since the
// given instant. Used as the quota fallback when Redis is unavailable.
func (s *NotificationStore) CountCreatedSince(recipientID uint, since time.Time) (int64, error) {
	var count int64
	err := s.db.Model(&models.Notification{}).
		Where("recipient_id = ? AND created_at >= ?", recipientID, since).
		Count(&count).Error
	return count, err
}

// UpdateStatus applies a guarded status transition. The WHERE clause on the
// current status makes the read-modify-write atomic: a concurrent writer that
// moved the row first causes this update to match zero rows.
func (s *NotificationStore) UpdateStatus(id uint, from, to models.NotificationStatus, fields map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{"status": to}
	for k, v := range fields {
		updates[k] = v
	}

	result := s.db.Model(&models.Notification{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// IncrementDeliveryAttempts bumps the monotonic attempt counter
func (s *NotificationStore) IncrementDeliveryAttempts(id uint, at time.Time) error {
	return s.db.Model(&models.Notification{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"delivery_attempts": gorm.Expr("delivery_attempts + 1"),
			"last_attempt_at":   at,
		}).Error
}

// ClaimEscalation atomically flips the escalated flag. Returns true only for
// the caller that actually performed the false->true transition, so two
// concurrent sweeps can never both escalate the same notification.
func (s *NotificationStore) ClaimEscalation(id uint, at time.Time) (bool, error) {
	result := s.db.Model(&models.Notification{}).
		Where("id = ? AND escalated = ?", id, false).
		Updates(map[string]interface{}{
			"escalated":    true,
			"escalated_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// SetEscalationOutcome records the terminal result of an escalation attempt
func (s *NotificationStore) SetEscalationOutcome(id uint, status models.EscalationStatus, reason string) error {
	return s.db.Model(&models.Notification{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"escalation_status": status,
			"escalation_reason": reason,
		}).Error
}

// FindEscalationCandidates selects CRITICAL notifications that are still
// unread (SENT or DELIVERED), older than the cutoff, and not yet escalated.
func (s *NotificationStore) FindEscalationCandidates(cutoff time.Time) ([]models.Notification, error) {
	var candidates []models.Notification
	err := s.db.
		Where("priority = ? AND status IN ? AND created_at < ? AND escalated = ?",
			models.PriorityCritical,
			[]models.NotificationStatus{models.StatusSent, models.StatusDelivered},
			cutoff, false).
		Order("created_at ASC").
		Find(&candidates).Error
	return candidates, err
}

// FindChangedSince returns all of a worker's notifications whose last-modified
// time exceeds the watermark, so offline clients learn about server-side changes.
func (s *NotificationStore) FindChangedSince(recipientID uint, since time.Time) ([]models.Notification, error) {
	var notifications []models.Notification
	err := s.db.
		Where("recipient_id = ? AND updated_at > ?", recipientID, since).
		Order("updated_at ASC").
		Find(&notifications).Error
	return notifications, err
}

// FindByRecipient lists a worker's notifications, newest first, optionally
// filtered by status
func (s *NotificationStore) FindByRecipient(recipientID uint, status models.NotificationStatus, limit int) ([]models.Notification, error) {
	query := s.db.Where("recipient_id = ?", recipientID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var notifications []models.Notification
	err := query.Order("created_at DESC").Limit(limit).Find(&notifications).Error
	return notifications, err
}

// FindRetryable selects notifications awaiting a delivery pass: FAILED rows
// with attempts left whose backoff has elapsed, PENDING rows old enough that
// their original async dispatch was evidently lost, and scheduled rows that
// have come due.
func (s *NotificationStore) FindRetryable(now time.Time, backoff time.Duration, maxAttempts int) ([]models.Notification, error) {
	cutoff := now.Add(-backoff)

	var notifications []models.Notification
	err := s.db.
		Where("(status = ? AND delivery_attempts < ? AND last_attempt_at IS NOT NULL AND last_attempt_at < ?)"+
			" OR (status = ? AND delivery_attempts = 0 AND (scheduled_at <= ? OR (scheduled_at IS NULL AND created_at < ?)))",
			models.StatusFailed, maxAttempts, cutoff,
			models.StatusPending, now, cutoff).
		Order("created_at ASC").
		Limit(100).
		Find(&notifications).Error
	return notifications, err
}

// ExpireOverdue marks EXPIRED every notification whose expiry has passed and
// whose current status still admits the transition
func (s *NotificationStore) ExpireOverdue(now time.Time) ([]models.Notification, error) {
	var overdue []models.Notification
	err := s.db.
		Where("expires_at IS NOT NULL AND expires_at < ? AND status IN ?", now, models.ExpirableStatuses()).
		Find(&overdue).Error
	if err != nil {
		return nil, err
	}

	var expired []models.Notification
	for i := range overdue {
		applied, err := s.UpdateStatus(overdue[i].ID, overdue[i].Status, models.StatusExpired, nil)
		if err != nil || !applied {
			continue
		}
		overdue[i].Status = models.StatusExpired
		expired = append(expired, overdue[i])
	}
	return expired, nil
}
