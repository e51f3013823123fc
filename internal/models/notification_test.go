package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    NotificationStatus
		to      NotificationStatus
		allowed bool
	}{
		{"pending to sent", StatusPending, StatusSent, true},
		{"pending to failed", StatusPending, StatusFailed, true},
		{"pending to expired", StatusPending, StatusExpired, true},
		{"pending to delivered skips sent", StatusPending, StatusDelivered, false},
		{"sent to delivered", StatusSent, StatusDelivered, true},
		{"sent to read", StatusSent, StatusRead, true},
		{"delivered to read", StatusDelivered, StatusRead, true},
		{"delivered to acknowledged", StatusDelivered, StatusAcknowledged, true},
		{"read to acknowledged", StatusRead, StatusAcknowledged, true},
		{"read back to delivered", StatusRead, StatusDelivered, false},
		{"acknowledged to read regresses", StatusAcknowledged, StatusRead, false},
		{"acknowledged to expired", StatusAcknowledged, StatusExpired, true},
		{"failed retries to sent", StatusFailed, StatusSent, true},
		{"failed cannot expire", StatusFailed, StatusExpired, false},
		{"expired is terminal", StatusExpired, StatusSent, false},
		{"expired cannot be read", StatusExpired, StatusRead, false},
		{"self transition", StatusSent, StatusSent, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, CanTransition(tt.from, tt.to))
		})
	}
}

func TestExpirableStatusesExcludesFailed(t *testing.T) {
	for _, status := range ExpirableStatuses() {
		assert.NotEqual(t, StatusFailed, status)
		assert.True(t, CanTransition(status, StatusExpired), "status %s should admit expiry", status)
	}
}

func TestValidPriority(t *testing.T) {
	assert.True(t, ValidPriority(PriorityCritical))
	assert.True(t, ValidPriority(PriorityLow))
	assert.False(t, ValidPriority(""))
	assert.False(t, ValidPriority("URGENT"))
	assert.False(t, ValidPriority("critical"))
}
