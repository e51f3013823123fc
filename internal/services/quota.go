package services

import (
	"log"
	"time"

	"github.com/crewops/backend/internal/models"
)

// Quota gate skip reason
const ReasonDailyLimitExceeded = "DAILY_LIMIT_EXCEEDED"

// dailyCounter is the atomic per-recipient daily counter (Redis in production)
type dailyCounter interface {
	Incr(workerID uint, day time.Time) (int64, error)
	Decr(workerID uint, day time.Time)
}

// quotaStore is the slice of the notification store the gate needs for its
// database fallback
type quotaStore interface {
	CountCreatedSince(recipientID uint, since time.Time) (int64, error)
}

// QuotaResult is the outcome of a quota check
type QuotaResult struct {
	Allowed    bool
	DailyCount int
	Reason     string
}

// QuotaGate enforces the per-recipient daily creation cap. CRITICAL
// notifications always pass and still count toward the day's total.
//
// The counter path reserves a slot with an atomic increment before the insert,
// so concurrent creations for one recipient cannot overshoot the limit. When
// the counter is unavailable the gate falls back to counting rows created
// since local midnight, which tolerates a small overshoot under concurrency.
type QuotaGate struct {
	counter dailyCounter
	store   quotaStore
	audit   auditSink
	limit   int
	now     func() time.Time
}

// NewQuotaGate creates a quota gate with the given daily limit
func NewQuotaGate(counter dailyCounter, store quotaStore, audit auditSink, limit int) *QuotaGate {
	if limit <= 0 {
		limit = 10
	}
	return &QuotaGate{
		counter: counter,
		store:   store,
		audit:   audit,
		limit:   limit,
		now:     time.Now,
	}
}

// CheckAndConsume reserves a creation slot for the recipient. A rejected
// reservation is handed back immediately; an accepted one must be released
// with Release if the subsequent insert fails.
func (g *QuotaGate) CheckAndConsume(recipientID uint, priority models.NotificationPriority) *QuotaResult {
	now := g.now()

	count, err := g.counter.Incr(recipientID, now)
	if err != nil {
		return g.checkFromStore(recipientID, priority, now)
	}

	if priority != models.PriorityCritical && count > int64(g.limit) {
		g.counter.Decr(recipientID, now)
		observed := int(count - 1)
		g.rejected(recipientID, observed)
		return &QuotaResult{Allowed: false, DailyCount: observed, Reason: ReasonDailyLimitExceeded}
	}

	return &QuotaResult{Allowed: true, DailyCount: int(count)}
}

// Release hands back a slot reserved by CheckAndConsume
func (g *QuotaGate) Release(recipientID uint) {
	g.counter.Decr(recipientID, g.now())
}

// checkFromStore is the fallback when the counter is unavailable: count rows
// created since local midnight. Not atomic with the insert, so concurrent
// creations can overshoot the limit by a small margin.
func (g *QuotaGate) checkFromStore(recipientID uint, priority models.NotificationPriority, now time.Time) *QuotaResult {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	count, err := g.store.CountCreatedSince(recipientID, midnight)
	if err != nil {
		// Fail open for delivery-critical traffic rather than dropping alerts
		log.Printf("QuotaGate: Count query failed for worker %d: %v", recipientID, err)
		return &QuotaResult{Allowed: true, DailyCount: 0}
	}

	if priority != models.PriorityCritical && count >= int64(g.limit) {
		g.rejected(recipientID, int(count))
		return &QuotaResult{Allowed: false, DailyCount: int(count), Reason: ReasonDailyLimitExceeded}
	}

	return &QuotaResult{Allowed: true, DailyCount: int(count) + 1}
}

func (g *QuotaGate) rejected(recipientID uint, observed int) {
	g.audit.Record(models.SystemNotificationID, recipientID, models.AuditEventQuotaExceeded, map[string]interface{}{
		"daily_count": observed,
		"limit":       g.limit,
	})
}
