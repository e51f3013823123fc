package models

import (
	"encoding/json"
	"time"
)

// NotificationType represents the kind of operational event a notification carries
type NotificationType string

const (
	NotificationTypeSiteChange      NotificationType = "site_change"
	NotificationTypeAttendanceAlert NotificationType = "attendance_alert"
	NotificationTypeTaskUpdate      NotificationType = "task_update"
	NotificationTypeApprovalUpdate  NotificationType = "approval_update"
	NotificationTypeEscalationAlert NotificationType = "escalation_alert"
	NotificationTypeGeneral         NotificationType = "general"
)

// NotificationPriority represents the urgency class of a notification
type NotificationPriority string

const (
	PriorityCritical NotificationPriority = "CRITICAL"
	PriorityHigh     NotificationPriority = "HIGH"
	PriorityNormal   NotificationPriority = "NORMAL"
	PriorityLow      NotificationPriority = "LOW"
)

// ValidPriority reports whether p is one of the recognized priority classes
func ValidPriority(p NotificationPriority) bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// NotificationStatus represents a notification's lifecycle state
type NotificationStatus string

const (
	StatusPending      NotificationStatus = "PENDING"
	StatusSent         NotificationStatus = "SENT"
	StatusDelivered    NotificationStatus = "DELIVERED"
	StatusRead         NotificationStatus = "READ"
	StatusAcknowledged NotificationStatus = "ACKNOWLEDGED"
	StatusFailed       NotificationStatus = "FAILED"
	StatusExpired      NotificationStatus = "EXPIRED"
)

// EscalationStatus records the terminal outcome of an escalation attempt
type EscalationStatus string

const (
	EscalationSuccess EscalationStatus = "SUCCESS"
	EscalationFailed  EscalationStatus = "FAILED"
)

// Escalation reasons
const (
	EscalationReasonSupervisor   = "ESCALATED_TO_SUPERVISOR"
	EscalationReasonNoSupervisor = "NO_SUPERVISOR"
	EscalationReasonFailed       = "ESCALATION_FAILED"
)

// statusTransitions is the single transition table shared by the delivery
// dispatcher and the sync reconciler. Any pair not listed is invalid.
var statusTransitions = map[NotificationStatus][]NotificationStatus{
	StatusPending:      {StatusSent, StatusFailed, StatusExpired},
	StatusSent:         {StatusDelivered, StatusRead, StatusFailed, StatusExpired},
	StatusDelivered:    {StatusRead, StatusAcknowledged, StatusExpired},
	StatusRead:         {StatusAcknowledged, StatusExpired},
	StatusAcknowledged: {StatusExpired},
	StatusFailed:       {StatusSent},
	StatusExpired:      {},
}

// CanTransition reports whether a notification may move from one status to another
func CanTransition(from, to NotificationStatus) bool {
	for _, allowed := range statusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ExpirableStatuses returns the statuses from which a notification can still
// expire. FAILED is excluded: a failed notification only moves back to SENT.
func ExpirableStatuses() []NotificationStatus {
	return []NotificationStatus{
		StatusPending, StatusSent, StatusDelivered, StatusRead, StatusAcknowledged,
	}
}

// Notification represents a single-recipient notification row.
// Multi-recipient requests fan out into one row per recipient.
type Notification struct {
	ID         uint                 `gorm:"column:id;primaryKey" json:"id"`
	Type       NotificationType     `gorm:"column:type;size:50;not null;index" json:"type"`
	Priority   NotificationPriority `gorm:"column:priority;size:20;not null;index" json:"priority"`
	Title      string               `gorm:"column:title;size:100;not null" json:"title"`
	Message    string               `gorm:"column:message;size:500;not null" json:"message"`
	ActionData json.RawMessage      `gorm:"column:action_data;type:jsonb" json:"action_data,omitempty"`

	SenderID    uint `gorm:"column:sender_id;not null" json:"sender_id"`
	RecipientID uint `gorm:"column:recipient_id;not null;index" json:"recipient_id"`

	Status                 NotificationStatus `gorm:"column:status;size:20;not null;default:'PENDING';index" json:"status"`
	RequiresAcknowledgment bool               `gorm:"column:requires_acknowledgment;default:false" json:"requires_acknowledgment"`
	ScheduledAt            *time.Time         `gorm:"column:scheduled_at" json:"scheduled_at,omitempty"`
	ExpiresAt              *time.Time         `gorm:"column:expires_at;index" json:"expires_at,omitempty"`
	DeliveryAttempts       int                `gorm:"column:delivery_attempts;default:0" json:"delivery_attempts"`
	LastAttemptAt          *time.Time         `gorm:"column:last_attempt_at" json:"last_attempt_at,omitempty"`
	ReadAt                 *time.Time         `gorm:"column:read_at" json:"read_at,omitempty"`
	AcknowledgedAt         *time.Time         `gorm:"column:acknowledged_at" json:"acknowledged_at,omitempty"`

	Escalated        bool             `gorm:"column:escalated;default:false;index" json:"escalated"`
	EscalatedAt      *time.Time       `gorm:"column:escalated_at" json:"escalated_at,omitempty"`
	EscalationStatus EscalationStatus `gorm:"column:escalation_status;size:20" json:"escalation_status,omitempty"`
	EscalationReason string           `gorm:"column:escalation_reason;size:100" json:"escalation_reason,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;index" json:"updated_at"`
}

// SiteChangeData is the payload for site_change notifications.
// Workers being relocated need the new site name plus GPS coordinates.
type SiteChangeData struct {
	NewLocation string  `json:"new_location"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

// TaskUpdateData is the payload for task_update notifications.
// Either a task or an overtime reference must be present.
type TaskUpdateData struct {
	TaskID          uint   `json:"task_id,omitempty"`
	OvertimeID      uint   `json:"overtime_id,omitempty"`
	SupervisorName  string `json:"supervisor_name"`
	SupervisorPhone string `json:"supervisor_phone"`
}

// ApprovalData is the payload for approval_update notifications
type ApprovalData struct {
	Status    string `json:"status"` // approved, rejected
	NextSteps string `json:"next_steps,omitempty"`
}

// AttendanceData is the payload for attendance_alert notifications
type AttendanceData struct {
	AlertType string `json:"alert_type"` // geofence_violation, missed_check_in, missed_check_out, late_arrival
}

func (Notification) TableName() string {
	return "notifications"
}
