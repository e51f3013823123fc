package services

import (
	"errors"
	"log"
	"time"

	"github.com/crewops/backend/internal/models"
	"github.com/crewops/backend/internal/store"
)

// ErrValidation is returned when a creation request fails validation.
// The accompanying CreateResult carries the full error list.
var ErrValidation = errors.New("validation failed")

// notificationStore is the persistence surface the services consume.
// Implemented by store.NotificationStore; tests substitute fakes.
type notificationStore interface {
	Create(n *models.Notification) error
	GetByID(id uint) (*models.Notification, error)
	CountCreatedSince(recipientID uint, since time.Time) (int64, error)
	UpdateStatus(id uint, from, to models.NotificationStatus, fields map[string]interface{}) (bool, error)
	IncrementDeliveryAttempts(id uint, at time.Time) error
	ClaimEscalation(id uint, at time.Time) (bool, error)
	SetEscalationOutcome(id uint, status models.EscalationStatus, reason string) error
	FindEscalationCandidates(cutoff time.Time) ([]models.Notification, error)
	FindChangedSince(recipientID uint, since time.Time) ([]models.Notification, error)
	FindByRecipient(recipientID uint, status models.NotificationStatus, limit int) ([]models.Notification, error)
	FindRetryable(now time.Time, backoff time.Duration, maxAttempts int) ([]models.Notification, error)
	ExpireOverdue(now time.Time) ([]models.Notification, error)
}

// deviceDirectory resolves and maintains a worker's push endpoints
type deviceDirectory interface {
	FindActiveByWorker(workerID uint) ([]models.DeviceEndpoint, error)
	Deactivate(token string) error
	RecordSuccess(token string) error
	RecordFailure(token string, at time.Time) error
}

// auditSink appends audit facts; it never fails the calling operation
type auditSink interface {
	Record(notificationID, workerID uint, event models.AuditEvent, metadata map[string]interface{})
}

// supervisorResolver looks up the escalation target for a worker
type supervisorResolver interface {
	ResolveSupervisor(workerID uint) (*store.SupervisorInfo, error)
}

// dispatcher hands freshly created notifications to the delivery pipeline
// without blocking the creating caller
type dispatcher interface {
	DeliverAsync(n models.Notification)
}

// SkippedRecipient reports a recipient dropped from a fan-out
type SkippedRecipient struct {
	RecipientID uint   `json:"recipient_id"`
	Reason      string `json:"reason"`
	DailyCount  int    `json:"daily_count"`
}

// CreateResult is the per-recipient outcome of a creation request
type CreateResult struct {
	Created []models.Notification `json:"created"`
	Skipped []SkippedRecipient    `json:"skipped"`
	Errors  []string              `json:"errors,omitempty"`
}

// NotificationService runs the creation pipeline:
// validate -> classify -> format -> quota gate -> persist -> async delivery.
type NotificationService struct {
	store      notificationStore
	quota      *QuotaGate
	audit      auditSink
	dispatcher dispatcher
	now        func() time.Time
}

// NewNotificationService creates the notification creation service
func NewNotificationService(st notificationStore, quota *QuotaGate, audit auditSink, d dispatcher) *NotificationService {
	return &NotificationService{
		store:      st,
		quota:      quota,
		audit:      audit,
		dispatcher: d,
		now:        time.Now,
	}
}

// Create validates and classifies the request, then fans it out into one row
// per recipient. Validation failures reject the whole request before any
// persistence. Quota rejections skip individual recipients without affecting
// the rest of the batch. Delivery is dispatched asynchronously.
func (s *NotificationService) Create(req *CreateNotificationRequest) (*CreateResult, error) {
	if errs := ValidateCreateRequest(req); len(errs) > 0 {
		return &CreateResult{Errors: errs}, ErrValidation
	}

	priority := ClassifyPriority(req)
	title, message := FormatContent(req.Title, req.Message)

	result := &CreateResult{}

	for _, recipientID := range req.RecipientIDs {
		quota := s.quota.CheckAndConsume(recipientID, priority)
		if !quota.Allowed {
			log.Printf("NotificationService: Skipping worker %d: %s (count %d)",
				recipientID, quota.Reason, quota.DailyCount)
			result.Skipped = append(result.Skipped, SkippedRecipient{
				RecipientID: recipientID,
				Reason:      quota.Reason,
				DailyCount:  quota.DailyCount,
			})
			continue
		}

		n := models.Notification{
			Type:                   req.Type,
			Priority:               priority,
			Title:                  title,
			Message:                message,
			ActionData:             req.ActionData,
			SenderID:               req.SenderID,
			RecipientID:            recipientID,
			Status:                 models.StatusPending,
			RequiresAcknowledgment: req.RequiresAcknowledgment,
			ScheduledAt:            req.ScheduledAt,
			ExpiresAt:              req.ExpiresAt,
		}

		if err := s.store.Create(&n); err != nil {
			log.Printf("NotificationService: Failed to create notification for worker %d: %v", recipientID, err)
			s.quota.Release(recipientID)
			result.Skipped = append(result.Skipped, SkippedRecipient{
				RecipientID: recipientID,
				Reason:      "CREATE_FAILED",
			})
			continue
		}

		s.audit.Record(n.ID, recipientID, models.AuditEventCreated, map[string]interface{}{
			"type":        string(n.Type),
			"priority":    string(n.Priority),
			"sender_id":   n.SenderID,
			"daily_count": quota.DailyCount,
		})

		result.Created = append(result.Created, n)
		s.dispatcher.DeliverAsync(n)
	}

	return result, nil
}

// GetForRecipient lists a worker's notifications for in-app display
func (s *NotificationService) GetForRecipient(recipientID uint, status models.NotificationStatus, limit int) ([]models.Notification, error) {
	return s.store.FindByRecipient(recipientID, status, limit)
}
