package models

import (
	"time"
)

// AuditEvent represents the kind of notification audit fact
type AuditEvent string

const (
	AuditEventCreated          AuditEvent = "created"
	AuditEventDelivered        AuditEvent = "delivered"
	AuditEventFailed           AuditEvent = "failed"
	AuditEventPartialFailure   AuditEvent = "partial_failure"
	AuditEventQuotaExceeded    AuditEvent = "quota_exceeded"
	AuditEventEscalated        AuditEvent = "escalated"
	AuditEventEscalationFailed AuditEvent = "escalation_failed"
	AuditEventSyncApplied      AuditEvent = "sync_applied"
	AuditEventSyncConflict     AuditEvent = "sync_conflict"
	AuditEventExpired          AuditEvent = "expired"
)

// SystemNotificationID is used for audit facts not tied to a single notification
const SystemNotificationID uint = 0

// NotificationAudit is an append-only fact about a notification's lifecycle.
// Rows are written by every service as a side effect and never mutated.
type NotificationAudit struct {
	ID             uint       `gorm:"column:id;primaryKey" json:"id"`
	NotificationID uint       `gorm:"column:notification_id;index" json:"notification_id"` // 0 = system-level
	WorkerID       uint       `gorm:"column:worker_id;index" json:"worker_id"`
	Event          AuditEvent `gorm:"column:event;size:50;not null;index" json:"event"`
	Metadata       string     `gorm:"column:metadata;type:jsonb" json:"metadata"`
	CreatedAt      time.Time  `gorm:"column:created_at;index" json:"created_at"`
}

func (NotificationAudit) TableName() string {
	return "notification_audits"
}
