package models

import (
	"strconv"
	"strings"
	"time"
)

// DevicePlatform represents the mobile platform of a device endpoint
type DevicePlatform string

const (
	PlatformAndroid DevicePlatform = "android"
	PlatformIOS     DevicePlatform = "ios"
)

// DeviceEndpoint represents a push-capable destination owned by a worker.
// A worker can have several active endpoints (phone + tablet).
type DeviceEndpoint struct {
	ID       uint           `gorm:"column:id;primaryKey" json:"id"`
	WorkerID uint           `gorm:"column:worker_id;not null;index" json:"worker_id"`
	Token    string         `gorm:"column:token;size:512;not null;uniqueIndex" json:"token"`
	Platform DevicePlatform `gorm:"column:platform;size:20;not null" json:"platform"`
	Active   bool           `gorm:"column:active;default:true;index" json:"active"`

	// Delivery preferences. CRITICAL notifications cannot be opted out.
	QuietHoursStart string `gorm:"column:quiet_hours_start;size:10" json:"quiet_hours_start"` // "22:00", empty = no quiet hours
	QuietHoursEnd   string `gorm:"column:quiet_hours_end;size:10" json:"quiet_hours_end"`    // "07:00"
	AllowHigh       bool   `gorm:"column:allow_high;default:true" json:"allow_high"`
	AllowNormal     bool   `gorm:"column:allow_normal;default:true" json:"allow_normal"`
	AllowLow        bool   `gorm:"column:allow_low;default:true" json:"allow_low"`

	SuccessCount  int        `gorm:"column:success_count;default:0" json:"success_count"`
	FailureCount  int        `gorm:"column:failure_count;default:0" json:"failure_count"`
	LastFailureAt *time.Time `gorm:"column:last_failure_at" json:"last_failure_at,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// CanReceiveNotification reports whether this endpoint accepts a notification
// of the given priority at the given wall-clock time. CRITICAL bypasses both
// the per-priority opt-outs and quiet hours.
func (d *DeviceEndpoint) CanReceiveNotification(priority NotificationPriority, at time.Time) bool {
	if priority == PriorityCritical {
		return true
	}

	switch priority {
	case PriorityHigh:
		if !d.AllowHigh {
			return false
		}
	case PriorityNormal:
		if !d.AllowNormal {
			return false
		}
	case PriorityLow:
		if !d.AllowLow {
			return false
		}
	}

	return !d.inQuietHours(at)
}

// inQuietHours checks whether at falls inside the configured quiet window.
// Windows may span midnight (22:00-07:00).
func (d *DeviceEndpoint) inQuietHours(at time.Time) bool {
	start, okStart := parseClock(d.QuietHoursStart)
	end, okEnd := parseClock(d.QuietHoursEnd)
	if !okStart || !okEnd || start == end {
		return false
	}

	minute := at.Hour()*60 + at.Minute()
	if start < end {
		return minute >= start && minute < end
	}
	// Window spans midnight
	return minute >= start || minute < end
}

// parseClock converts "HH:MM" into minutes since midnight
func parseClock(s string) (int, bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, false
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, false
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, false
	}
	return hour*60 + minute, true
}

func (DeviceEndpoint) TableName() string {
	return "device_endpoints"
}
