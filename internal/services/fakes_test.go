package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/crewops/backend/internal/models"
	"github.com/crewops/backend/internal/push"
	"github.com/crewops/backend/internal/store"
)

// fakeStore is an in-memory notificationStore with the same guarded-update
// semantics as the real one
type fakeStore struct {
	mu            sync.Mutex
	notifications map[uint]*models.Notification
	nextID        uint

	createErr error
	getErr    error
	updateErr error
	countVal  int64
	countErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{notifications: map[uint]*models.Notification{}}
}

func (f *fakeStore) add(n models.Notification) *models.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n.ID == 0 {
		f.nextID++
		n.ID = f.nextID
	} else if n.ID > f.nextID {
		f.nextID = n.ID
	}
	f.notifications[n.ID] = &n
	return f.notifications[n.ID]
}

func (f *fakeStore) Create(n *models.Notification) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	n.ID = f.nextID
	n.CreatedAt = time.Now()
	copied := *n
	f.notifications[n.ID] = &copied
	return nil
}

func (f *fakeStore) GetByID(id uint) (*models.Notification, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.notifications[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *n
	return &copied, nil
}

func (f *fakeStore) CountCreatedSince(recipientID uint, since time.Time) (int64, error) {
	return f.countVal, f.countErr
}

func (f *fakeStore) UpdateStatus(id uint, from, to models.NotificationStatus, fields map[string]interface{}) (bool, error) {
	if f.updateErr != nil {
		return false, f.updateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.notifications[id]
	if !ok || n.Status != from {
		return false, nil
	}
	n.Status = to
	for k, v := range fields {
		t, ok := v.(time.Time)
		if !ok {
			continue
		}
		switch k {
		case "read_at":
			ts := t
			n.ReadAt = &ts
		case "acknowledged_at":
			ts := t
			n.AcknowledgedAt = &ts
		}
	}
	return true, nil
}

func (f *fakeStore) IncrementDeliveryAttempts(id uint, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := f.notifications[id]; ok {
		n.DeliveryAttempts++
		ts := at
		n.LastAttemptAt = &ts
	}
	return nil
}

func (f *fakeStore) ClaimEscalation(id uint, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.notifications[id]
	if !ok || n.Escalated {
		return false, nil
	}
	n.Escalated = true
	ts := at
	n.EscalatedAt = &ts
	return true, nil
}

func (f *fakeStore) SetEscalationOutcome(id uint, status models.EscalationStatus, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := f.notifications[id]; ok {
		n.EscalationStatus = status
		n.EscalationReason = reason
	}
	return nil
}

func (f *fakeStore) FindEscalationCandidates(cutoff time.Time) ([]models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Notification
	for _, n := range f.notifications {
		if n.Priority != models.PriorityCritical || n.Escalated {
			continue
		}
		if n.Status != models.StatusSent && n.Status != models.StatusDelivered {
			continue
		}
		if !n.CreatedAt.Before(cutoff) {
			continue
		}
		out = append(out, *n)
	}
	return out, nil
}

func (f *fakeStore) FindChangedSince(recipientID uint, since time.Time) ([]models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Notification
	for _, n := range f.notifications {
		if n.RecipientID == recipientID && n.UpdatedAt.After(since) {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (f *fakeStore) FindByRecipient(recipientID uint, status models.NotificationStatus, limit int) ([]models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Notification
	for _, n := range f.notifications {
		if n.RecipientID != recipientID {
			continue
		}
		if status != "" && n.Status != status {
			continue
		}
		out = append(out, *n)
	}
	return out, nil
}

func (f *fakeStore) FindRetryable(now time.Time, backoff time.Duration, maxAttempts int) ([]models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cutoff := now.Add(-backoff)
	var out []models.Notification
	for _, n := range f.notifications {
		if n.Status == models.StatusFailed && n.DeliveryAttempts < maxAttempts &&
			n.LastAttemptAt != nil && n.LastAttemptAt.Before(cutoff) {
			out = append(out, *n)
		}
		if n.Status == models.StatusPending && n.DeliveryAttempts == 0 {
			if n.ScheduledAt != nil {
				if !n.ScheduledAt.After(now) {
					out = append(out, *n)
				}
			} else if n.CreatedAt.Before(cutoff) {
				out = append(out, *n)
			}
		}
	}
	return out, nil
}

func (f *fakeStore) ExpireOverdue(now time.Time) ([]models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Notification
	for _, n := range f.notifications {
		if n.ExpiresAt == nil || !n.ExpiresAt.Before(now) {
			continue
		}
		if !models.CanTransition(n.Status, models.StatusExpired) {
			continue
		}
		n.Status = models.StatusExpired
		out = append(out, *n)
	}
	return out, nil
}

// auditRecord is one captured audit fact
type auditRecord struct {
	NotificationID uint
	WorkerID       uint
	Event          models.AuditEvent
	Metadata       map[string]interface{}
}

type fakeAudit struct {
	mu      sync.Mutex
	records []auditRecord
}

func (f *fakeAudit) Record(notificationID, workerID uint, event models.AuditEvent, metadata map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, auditRecord{notificationID, workerID, event, metadata})
}

func (f *fakeAudit) eventsOf(kind models.AuditEvent) []auditRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []auditRecord
	for _, r := range f.records {
		if r.Event == kind {
			out = append(out, r)
		}
	}
	return out
}

type fakeDevices struct {
	mu          sync.Mutex
	devices     []models.DeviceEndpoint
	findErr     error
	deactivated []string
	successes   []string
	failures    []string
}

func (f *fakeDevices) FindActiveByWorker(workerID uint) ([]models.DeviceEndpoint, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	var out []models.DeviceEndpoint
	for _, d := range f.devices {
		if d.WorkerID == workerID && d.Active {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDevices) Deactivate(token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deactivated = append(f.deactivated, token)
	return nil
}

func (f *fakeDevices) RecordSuccess(token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.successes = append(f.successes, token)
	return nil
}

func (f *fakeDevices) RecordFailure(token string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, token)
	return nil
}

type fakeOrg struct {
	supervisor *store.SupervisorInfo
	err        error
}

func (f *fakeOrg) ResolveSupervisor(workerID uint) (*store.SupervisorInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.supervisor, nil
}

type fakeDispatcher struct {
	mu        sync.Mutex
	delivered []models.Notification
}

func (f *fakeDispatcher) DeliverAsync(n models.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, n)
}

// fakeCounter mimics the Redis daily counter
type fakeCounter struct {
	mu     sync.Mutex
	counts map[uint]int64
	err    error
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{counts: map[uint]int64{}}
}

func (f *fakeCounter) Incr(workerID uint, day time.Time) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[workerID]++
	return f.counts[workerID], nil
}

func (f *fakeCounter) Decr(workerID uint, day time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[workerID]--
}

// fakeProvider scripts push outcomes per token
type fakeProvider struct {
	mu          sync.Mutex
	singleErr   error
	single      *push.SendResult
	multi       *push.MulticastResult
	multiErr    error
	sentTokens  []string
	multiCalled bool
}

func (f *fakeProvider) SendToDevice(ctx context.Context, token string, n *models.Notification) (*push.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentTokens = append(f.sentTokens, token)
	if f.singleErr != nil {
		return f.single, f.singleErr
	}
	if f.single != nil {
		return f.single, nil
	}
	return &push.SendResult{Success: true, MessageID: "msg-1", AttemptNumber: 1}, nil
}

func (f *fakeProvider) SendToMultipleDevices(ctx context.Context, tokens []string, n *models.Notification) (*push.MulticastResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.multiCalled = true
	f.sentTokens = append(f.sentTokens, tokens...)
	if f.multiErr != nil {
		return nil, f.multiErr
	}
	if f.multi != nil {
		return f.multi, nil
	}
	return &push.MulticastResult{Success: true, SuccessCount: len(tokens)}, nil
}

var errBoom = errors.New("boom")
