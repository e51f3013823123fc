package services

import (
	"context"
	"log"
	"time"

	"github.com/crewops/backend/internal/models"
	"github.com/crewops/backend/internal/push"
)

// retryBackoff is how long a notification with a transient failure waits
// before the retry sweep picks it up again
const retryBackoff = 5 * time.Minute

// DeliveryService pushes notifications to a recipient's devices and updates
// notification and endpoint state from the outcome. Deliver never propagates
// an error past a single notification; a bad row cannot block a batch.
type DeliveryService struct {
	store       notificationStore
	devices     deviceDirectory
	audit       auditSink
	provider    push.Provider
	timeout     time.Duration
	maxAttempts int
	now         func() time.Time
}

// NewDeliveryService creates the delivery dispatcher
func NewDeliveryService(st notificationStore, devices deviceDirectory, audit auditSink, provider push.Provider, timeout time.Duration, maxAttempts int) *DeliveryService {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &DeliveryService{
		store:       st,
		devices:     devices,
		audit:       audit,
		provider:    provider,
		timeout:     timeout,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// DeliverAsync dispatches delivery without blocking the creating caller
func (s *DeliveryService) DeliverAsync(n models.Notification) {
	go s.Deliver(n)
}

// Deliver resolves the recipient's endpoints, applies delivery preferences and
// pushes through the provider. CRITICAL notifications ignore preference
// filtering entirely.
func (s *DeliveryService) Deliver(n models.Notification) {
	if s.provider == nil {
		log.Printf("Delivery: Provider not configured, leaving notification %d undelivered", n.ID)
		return
	}

	// Scheduled notifications stay PENDING until due; the retry sweep picks
	// them up once the scheduled time passes.
	if n.ScheduledAt != nil && n.ScheduledAt.After(s.now()) {
		return
	}

	devices, err := s.devices.FindActiveByWorker(n.RecipientID)
	if err != nil {
		log.Printf("Delivery: Device lookup failed for notification %d: %v", n.ID, err)
		s.recordAttempt(&n)
		s.markFailed(&n)
		s.audit.Record(n.ID, n.RecipientID, models.AuditEventFailed, map[string]interface{}{
			"reason": "DEVICE_LOOKUP_FAILED",
			"error":  err.Error(),
		})
		return
	}

	if len(devices) == 0 {
		s.markFailed(&n)
		s.audit.Record(n.ID, n.RecipientID, models.AuditEventFailed, map[string]interface{}{
			"reason": "NO_DEVICES",
		})
		return
	}

	eligible := s.filterByPreferences(devices, n.Priority)
	if len(eligible) == 0 {
		if n.Priority != models.PriorityCritical {
			// Silently deferred to respect preferences; no failure recorded
			return
		}
		eligible = devices
	}

	s.markSent(&n)

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if len(eligible) == 1 {
		s.deliverSingle(ctx, &n, &eligible[0])
	} else {
		s.deliverMulticast(ctx, &n, eligible)
	}
}

// RetryStalled re-dispatches notifications stuck mid-delivery: transient
// failures past their backoff and PENDING rows whose async dispatch was lost.
func (s *DeliveryService) RetryStalled() {
	notifications, err := s.store.FindRetryable(s.now(), retryBackoff, s.maxAttempts)
	if err != nil {
		log.Printf("Delivery: Retry query failed: %v", err)
		return
	}

	if len(notifications) == 0 {
		return
	}

	log.Printf("Delivery: Retrying %d stalled notifications", len(notifications))
	for _, n := range notifications {
		s.Deliver(n)
	}
}

func (s *DeliveryService) filterByPreferences(devices []models.DeviceEndpoint, priority models.NotificationPriority) []models.DeviceEndpoint {
	at := s.now()
	var eligible []models.DeviceEndpoint
	for _, d := range devices {
		if d.CanReceiveNotification(priority, at) {
			eligible = append(eligible, d)
		}
	}
	return eligible
}

func (s *DeliveryService) deliverSingle(ctx context.Context, n *models.Notification, device *models.DeviceEndpoint) {
	result, err := s.provider.SendToDevice(ctx, device.Token, n)
	if err != nil {
		s.recordAttempt(n)

		meta := map[string]interface{}{
			"token_suffix": tokenSuffix(device.Token),
			"error":        err.Error(),
		}

		if result != nil {
			meta["attempt"] = result.AttemptNumber
			meta["should_retry"] = result.ShouldRetry
			meta["final_attempt"] = result.FinalAttempt

			if result.ShouldDeactivateToken {
				if derr := s.devices.Deactivate(device.Token); derr != nil {
					log.Printf("Delivery: Failed to deactivate token for device %d: %v", device.ID, derr)
				}
			} else {
				s.devices.RecordFailure(device.Token, s.now())
			}
		} else {
			s.devices.RecordFailure(device.Token, s.now())
		}

		// Transient or final, the row parks at FAILED. The retry sweep moves
		// it back to SENT while attempts remain; exhausted rows stay FAILED.
		s.markFailed(n)

		s.audit.Record(n.ID, n.RecipientID, models.AuditEventFailed, meta)
		return
	}

	if applied, _ := s.store.UpdateStatus(n.ID, n.Status, models.StatusDelivered, nil); applied {
		n.Status = models.StatusDelivered
	}
	s.devices.RecordSuccess(device.Token)

	s.audit.Record(n.ID, n.RecipientID, models.AuditEventDelivered, map[string]interface{}{
		"message_id": result.MessageID,
		"attempt":    result.AttemptNumber,
		"platform":   string(device.Platform),
	})
}

func (s *DeliveryService) deliverMulticast(ctx context.Context, n *models.Notification, devices []models.DeviceEndpoint) {
	tokens := make([]string, len(devices))
	for i, d := range devices {
		tokens[i] = d.Token
	}

	result, err := s.provider.SendToMultipleDevices(ctx, tokens, n)
	if err != nil {
		s.recordAttempt(n)
		s.markFailed(n)
		s.audit.Record(n.ID, n.RecipientID, models.AuditEventFailed, map[string]interface{}{
			"reason":       "MULTICAST_ERROR",
			"error":        err.Error(),
			"device_count": len(tokens),
		})
		return
	}

	failed := toSet(result.FailedTokens)
	expired := toSet(result.ExpiredTokens)

	if result.SuccessCount > 0 {
		if applied, _ := s.store.UpdateStatus(n.ID, n.Status, models.StatusDelivered, nil); applied {
			n.Status = models.StatusDelivered
		}
		for _, token := range tokens {
			if !failed[token] && !expired[token] {
				s.devices.RecordSuccess(token)
			}
		}
		s.audit.Record(n.ID, n.RecipientID, models.AuditEventDelivered, map[string]interface{}{
			"success_count": result.SuccessCount,
			"device_count":  len(tokens),
		})
	} else {
		s.recordAttempt(n)
		s.markFailed(n)
	}

	for _, token := range result.ExpiredTokens {
		if derr := s.devices.Deactivate(token); derr != nil {
			log.Printf("Delivery: Failed to deactivate expired token: %v", derr)
		}
	}
	for _, token := range result.FailedTokens {
		s.devices.RecordFailure(token, s.now())
	}

	if result.FailureCount > 0 {
		s.audit.Record(n.ID, n.RecipientID, models.AuditEventPartialFailure, map[string]interface{}{
			"success_count": result.SuccessCount,
			"failure_count": result.FailureCount,
			"expired_count": len(result.ExpiredTokens),
			"blocked_count": result.BlockedCount,
			"invalid_count": result.InvalidCount,
		})
	}
}

// markSent moves the notification into SENT before the provider call.
// Rows already SENT (a retry) pass through unchanged.
func (s *DeliveryService) markSent(n *models.Notification) {
	if n.Status == models.StatusSent {
		return
	}
	if applied, _ := s.store.UpdateStatus(n.ID, n.Status, models.StatusSent, nil); applied {
		n.Status = models.StatusSent
	}
}

func (s *DeliveryService) markFailed(n *models.Notification) {
	if applied, _ := s.store.UpdateStatus(n.ID, n.Status, models.StatusFailed, nil); applied {
		n.Status = models.StatusFailed
	}
}

func (s *DeliveryService) recordAttempt(n *models.Notification) {
	if err := s.store.IncrementDeliveryAttempts(n.ID, s.now()); err != nil {
		log.Printf("Delivery: Failed to record attempt for notification %d: %v", n.ID, err)
	}
	n.DeliveryAttempts++
}

func tokenSuffix(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[len(token)-8:]
}

func toSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}
