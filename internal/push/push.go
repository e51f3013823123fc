// Package push wraps the mobile push provider behind a small interface so the
// delivery dispatcher can be tested without talking to FCM.
package push

import (
	"context"

	"github.com/crewops/backend/internal/models"
)

// SendResult is the outcome of a single-device send
type SendResult struct {
	Success               bool   `json:"success"`
	Platform              string `json:"platform"`
	MessageID             string `json:"message_id"`
	ShouldRetry           bool   `json:"should_retry"`
	ShouldDeactivateToken bool   `json:"should_deactivate_token"`
	AttemptNumber         int    `json:"attempt_number"`
	FinalAttempt          bool   `json:"final_attempt"`
}

// MulticastResult is the outcome of a multi-device send. ExpiredTokens carry
// provider-confirmed permanent rejections (unregistered tokens); FailedTokens
// carry transient failures worth retrying later.
type MulticastResult struct {
	Success       bool     `json:"success"`
	SuccessCount  int      `json:"success_count"`
	FailureCount  int      `json:"failure_count"`
	FailedTokens  []string `json:"failed_tokens"`
	ExpiredTokens []string `json:"expired_tokens"`
	BlockedCount  int      `json:"blocked_count"`
	InvalidCount  int      `json:"invalid_count"`
}

// Provider delivers notifications to device tokens
type Provider interface {
	SendToDevice(ctx context.Context, token string, n *models.Notification) (*SendResult, error)
	SendToMultipleDevices(ctx context.Context, tokens []string, n *models.Notification) (*MulticastResult, error)
}
