package services

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/crewops/backend/internal/models"
)

// Content length limits. FormatContent is the single place where content
// enters the persisted row; localization hooks attach here.
const (
	MaxTitleLength   = 100
	MaxMessageLength = 500
)

var validate = validator.New()

// CreateNotificationRequest is the input to the notification creation pipeline.
// Multi-recipient requests fan out into one notification row per recipient.
type CreateNotificationRequest struct {
	Type         models.NotificationType     `json:"type" validate:"required"`
	Title        string                      `json:"title" validate:"required"`
	Message      string                      `json:"message" validate:"required"`
	Priority     models.NotificationPriority `json:"priority,omitempty"`
	SenderID     uint                        `json:"sender_id" validate:"required,gt=0"`
	RecipientIDs []uint                      `json:"recipient_ids" validate:"required,min=1,dive,gt=0"`
	ActionData   json.RawMessage             `json:"action_data,omitempty"`

	RequiresAcknowledgment bool       `json:"requires_acknowledgment,omitempty"`
	ScheduledAt            *time.Time `json:"scheduled_at,omitempty"`
	ExpiresAt              *time.Time `json:"expires_at,omitempty"`
}

// ValidateCreateRequest checks required fields, length bounds and the
// type-specific action data payload. All violations accumulate into one list;
// the caller must reject the whole request if any error exists.
func ValidateCreateRequest(req *CreateNotificationRequest) []string {
	var errs []string

	if err := validate.Struct(req); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range fieldErrs {
				switch fe.Field() {
				case "Type":
					errs = append(errs, "type is required")
				case "Title":
					errs = append(errs, "title is required")
				case "Message":
					errs = append(errs, "message is required")
				case "SenderID":
					errs = append(errs, "sender_id is required")
				case "RecipientIDs":
					if fe.Tag() == "gt" {
						errs = append(errs, "recipient_ids must all be positive")
					} else {
						errs = append(errs, "recipient_ids must not be empty")
					}
				default:
					errs = append(errs, fmt.Sprintf("%s is invalid", fe.Field()))
				}
			}
		} else {
			errs = append(errs, err.Error())
		}
	}

	if title := strings.TrimSpace(req.Title); req.Title != "" {
		if title == "" {
			errs = append(errs, "title must not be blank")
		} else if utf8.RuneCountInString(title) > MaxTitleLength {
			errs = append(errs, fmt.Sprintf("title must be at most %d characters", MaxTitleLength))
		}
	}

	if message := strings.TrimSpace(req.Message); req.Message != "" {
		if message == "" {
			errs = append(errs, "message must not be blank")
		} else if utf8.RuneCountInString(message) > MaxMessageLength {
			errs = append(errs, fmt.Sprintf("message must be at most %d characters", MaxMessageLength))
		}
	}

	errs = append(errs, validateActionData(req.Type, req.ActionData)...)

	return errs
}

// validateActionData matches the payload against the variant required by the
// notification type. Unknown types carry no payload requirements.
func validateActionData(notifType models.NotificationType, data json.RawMessage) []string {
	switch notifType {
	case models.NotificationTypeSiteChange:
		return validateSiteChangeData(data)
	case models.NotificationTypeTaskUpdate:
		return validateTaskUpdateData(data)
	case models.NotificationTypeApprovalUpdate:
		return validateApprovalData(data)
	case models.NotificationTypeAttendanceAlert:
		return validateAttendanceData(data)
	}
	return nil
}

func validateSiteChangeData(data json.RawMessage) []string {
	if len(data) == 0 {
		return []string{"action_data is required for site_change notifications"}
	}

	// Pointer fields distinguish absent coordinates from coordinate zero
	var payload struct {
		NewLocation string   `json:"new_location"`
		Latitude    *float64 `json:"latitude"`
		Longitude   *float64 `json:"longitude"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return []string{"action_data is not valid JSON"}
	}

	var errs []string
	if strings.TrimSpace(payload.NewLocation) == "" {
		errs = append(errs, "site_change action_data requires new_location")
	}
	if payload.Latitude == nil || payload.Longitude == nil {
		errs = append(errs, "site_change action_data requires latitude and longitude")
	} else {
		if *payload.Latitude < -90 || *payload.Latitude > 90 {
			errs = append(errs, "latitude must be between -90 and 90")
		}
		if *payload.Longitude < -180 || *payload.Longitude > 180 {
			errs = append(errs, "longitude must be between -180 and 180")
		}
	}
	return errs
}

func validateTaskUpdateData(data json.RawMessage) []string {
	if len(data) == 0 {
		return []string{"action_data is required for task_update notifications"}
	}

	var payload models.TaskUpdateData
	if err := json.Unmarshal(data, &payload); err != nil {
		return []string{"action_data is not valid JSON"}
	}

	var errs []string
	if payload.TaskID == 0 && payload.OvertimeID == 0 {
		errs = append(errs, "task_update action_data requires task_id or overtime_id")
	}
	if strings.TrimSpace(payload.SupervisorPhone) == "" {
		errs = append(errs, "task_update action_data requires supervisor_phone")
	}
	return errs
}

func validateApprovalData(data json.RawMessage) []string {
	if len(data) == 0 {
		return []string{"action_data is required for approval_update notifications"}
	}

	var payload models.ApprovalData
	if err := json.Unmarshal(data, &payload); err != nil {
		return []string{"action_data is not valid JSON"}
	}

	var errs []string
	switch payload.Status {
	case "approved":
		if strings.TrimSpace(payload.NextSteps) == "" {
			errs = append(errs, "approved approval_update action_data requires next_steps")
		}
	case "rejected":
	default:
		errs = append(errs, "approval_update action_data status must be approved or rejected")
	}
	return errs
}

func validateAttendanceData(data json.RawMessage) []string {
	if len(data) == 0 {
		return []string{"action_data is required for attendance_alert notifications"}
	}

	var payload models.AttendanceData
	if err := json.Unmarshal(data, &payload); err != nil {
		return []string{"action_data is not valid JSON"}
	}

	if strings.TrimSpace(payload.AlertType) == "" {
		return []string{"attendance_alert action_data requires alert_type"}
	}
	return nil
}

// urgentMarkers flag task updates that need attention before end of shift
var urgentMarkers = []string{"overtime", "urgent", "emergency"}

// highAttendanceAlerts are attendance sub-types treated as HIGH priority
var highAttendanceAlerts = map[string]bool{
	"geofence_violation": true,
	"missed_check_in":    true,
	"missed_check_out":   true,
}

// ClassifyPriority returns the caller's priority when it is a recognized
// class, otherwise infers one from the type and payload content.
func ClassifyPriority(req *CreateNotificationRequest) models.NotificationPriority {
	if models.ValidPriority(req.Priority) {
		return req.Priority
	}

	switch req.Type {
	case models.NotificationTypeSiteChange:
		// Site relocations are always critical regardless of content
		return models.PriorityCritical

	case models.NotificationTypeEscalationAlert:
		return models.PriorityCritical

	case models.NotificationTypeAttendanceAlert:
		var payload models.AttendanceData
		if err := json.Unmarshal(req.ActionData, &payload); err == nil && highAttendanceAlerts[payload.AlertType] {
			return models.PriorityHigh
		}
		return models.PriorityNormal

	case models.NotificationTypeTaskUpdate:
		message := strings.ToLower(req.Message)
		for _, marker := range urgentMarkers {
			if strings.Contains(message, marker) {
				return models.PriorityHigh
			}
		}
		return models.PriorityNormal

	case models.NotificationTypeApprovalUpdate:
		var payload models.ApprovalData
		if err := json.Unmarshal(req.ActionData, &payload); err == nil && payload.Status == "rejected" {
			return models.PriorityHigh
		}
		return models.PriorityNormal
	}

	return models.PriorityNormal
}

// FormatContent trims and hard-truncates title and message to their length
// limits. Applying it to its own output is a no-op.
func FormatContent(title, message string) (string, string) {
	return truncate(title, MaxTitleLength), truncate(message, MaxMessageLength)
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit]))
}
