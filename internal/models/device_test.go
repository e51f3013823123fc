package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func at(hour, minute int) time.Time {
	return time.Date(2026, 3, 10, hour, minute, 0, 0, time.UTC)
}

func TestCanReceiveNotificationPriorityOptOuts(t *testing.T) {
	d := DeviceEndpoint{AllowHigh: false, AllowNormal: true, AllowLow: false}

	assert.False(t, d.CanReceiveNotification(PriorityHigh, at(12, 0)))
	assert.True(t, d.CanReceiveNotification(PriorityNormal, at(12, 0)))
	assert.False(t, d.CanReceiveNotification(PriorityLow, at(12, 0)))
}

func TestCanReceiveNotificationCriticalBypassesEverything(t *testing.T) {
	d := DeviceEndpoint{
		AllowHigh:       false,
		AllowNormal:     false,
		AllowLow:        false,
		QuietHoursStart: "00:00",
		QuietHoursEnd:   "23:59",
	}

	assert.True(t, d.CanReceiveNotification(PriorityCritical, at(3, 0)))
}

func TestQuietHoursSameDayWindow(t *testing.T) {
	d := DeviceEndpoint{
		AllowNormal:     true,
		QuietHoursStart: "12:00",
		QuietHoursEnd:   "14:00",
	}

	assert.True(t, d.CanReceiveNotification(PriorityNormal, at(11, 59)))
	assert.False(t, d.CanReceiveNotification(PriorityNormal, at(12, 0)))
	assert.False(t, d.CanReceiveNotification(PriorityNormal, at(13, 30)))
	assert.True(t, d.CanReceiveNotification(PriorityNormal, at(14, 0)))
}

func TestQuietHoursMidnightSpanningWindow(t *testing.T) {
	d := DeviceEndpoint{
		AllowNormal:     true,
		QuietHoursStart: "22:00",
		QuietHoursEnd:   "07:00",
	}

	assert.False(t, d.CanReceiveNotification(PriorityNormal, at(23, 30)))
	assert.False(t, d.CanReceiveNotification(PriorityNormal, at(2, 0)))
	assert.False(t, d.CanReceiveNotification(PriorityNormal, at(6, 59)))
	assert.True(t, d.CanReceiveNotification(PriorityNormal, at(7, 0)))
	assert.True(t, d.CanReceiveNotification(PriorityNormal, at(12, 0)))
	assert.True(t, d.CanReceiveNotification(PriorityNormal, at(21, 59)))
}

func TestQuietHoursMalformedWindowIsIgnored(t *testing.T) {
	tests := []struct {
		name  string
		start string
		end   string
	}{
		{"empty", "", ""},
		{"garbage start", "nope", "07:00"},
		{"hour out of range", "25:00", "07:00"},
		{"minute out of range", "22:61", "07:00"},
		{"equal bounds", "08:00", "08:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := DeviceEndpoint{AllowNormal: true, QuietHoursStart: tt.start, QuietHoursEnd: tt.end}
			assert.True(t, d.CanReceiveNotification(PriorityNormal, at(3, 0)))
		})
	}
}
