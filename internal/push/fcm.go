package push

import (
	"context"
	"fmt"
	"log"
	"strconv"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/errorutils"
	"firebase.google.com/go/v4/messaging"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	"github.com/crewops/backend/internal/models"
)

// FCM call pacing. FCM tolerates far more, but bursts from a single backend
// instance get throttled with QUOTA_EXCEEDED.
const (
	fcmRatePerSecond = 100
	fcmBurst         = 200
)

// FCMProvider sends notifications through Firebase Cloud Messaging
type FCMProvider struct {
	client      *messaging.Client
	limiter     *rate.Limiter
	maxAttempts int
}

// NewFCMProvider initializes the FCM client from a service account credentials file
func NewFCMProvider(ctx context.Context, credentialsFile string, maxAttempts int) (*FCMProvider, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize messaging client: %w", err)
	}

	log.Println("FCM provider initialized")

	return &FCMProvider{
		client:      client,
		limiter:     rate.NewLimiter(rate.Limit(fcmRatePerSecond), fcmBurst),
		maxAttempts: maxAttempts,
	}, nil
}

// SendToDevice sends a notification to a single device token
func (p *FCMProvider) SendToDevice(ctx context.Context, token string, n *models.Notification) (*SendResult, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	attempt := n.DeliveryAttempts + 1
	result := &SendResult{
		AttemptNumber: attempt,
		FinalAttempt:  attempt >= p.maxAttempts,
	}

	msg := p.buildMessage(n)
	msg.Token = token

	messageID, err := p.client.Send(ctx, msg)
	if err != nil {
		result.ShouldDeactivateToken = messaging.IsUnregistered(err)
		result.ShouldRetry = !result.ShouldDeactivateToken &&
			(errorutils.IsUnavailable(err) || errorutils.IsInternal(err) || messaging.IsQuotaExceeded(err))
		return result, err
	}

	result.Success = true
	result.MessageID = messageID
	return result, nil
}

// SendToMultipleDevices sends one multicast to all given tokens and partitions
// the per-token responses into succeeded, transiently failed and expired.
func (p *FCMProvider) SendToMultipleDevices(ctx context.Context, tokens []string, n *models.Notification) (*MulticastResult, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	base := p.buildMessage(n)
	msg := &messaging.MulticastMessage{
		Tokens:       tokens,
		Notification: base.Notification,
		Data:         base.Data,
		Android:      base.Android,
	}

	batch, err := p.client.SendEachForMulticast(ctx, msg)
	if err != nil {
		return nil, err
	}

	result := &MulticastResult{
		SuccessCount: batch.SuccessCount,
		FailureCount: batch.FailureCount,
		Success:      batch.SuccessCount > 0,
	}

	for i, resp := range batch.Responses {
		if resp.Success {
			continue
		}
		switch {
		case messaging.IsUnregistered(resp.Error):
			result.ExpiredTokens = append(result.ExpiredTokens, tokens[i])
		case messaging.IsThirdPartyAuthError(resp.Error):
			result.BlockedCount++
			result.FailedTokens = append(result.FailedTokens, tokens[i])
		case errorutils.IsInvalidArgument(resp.Error):
			result.InvalidCount++
			result.FailedTokens = append(result.FailedTokens, tokens[i])
		default:
			result.FailedTokens = append(result.FailedTokens, tokens[i])
		}
	}

	return result, nil
}

// buildMessage maps a notification row onto an FCM message. The data payload
// lets the mobile client reconcile state without a separate fetch.
func (p *FCMProvider) buildMessage(n *models.Notification) *messaging.Message {
	androidPriority := "normal"
	if n.Priority == models.PriorityCritical || n.Priority == models.PriorityHigh {
		androidPriority = "high"
	}

	return &messaging.Message{
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Message,
		},
		Data: map[string]string{
			"notification_id": strconv.FormatUint(uint64(n.ID), 10),
			"type":            string(n.Type),
			"priority":        string(n.Priority),
			"requires_ack":    strconv.FormatBool(n.RequiresAcknowledgment),
		},
		Android: &messaging.AndroidConfig{
			Priority: androidPriority,
		},
	}
}
