package services

import (
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/crewops/backend/internal/models"
)

// retrier re-dispatches notifications stuck mid-delivery
type retrier interface {
	RetryStalled()
}

// RetentionService runs the scheduled maintenance jobs: an hourly expiry reap
// that moves overdue notifications to EXPIRED, and a frequent retry pass for
// deliveries that failed transiently.
type RetentionService struct {
	store   notificationStore
	audit   auditSink
	retrier retrier
	now     func() time.Time

	cron      *cron.Cron
	mu        sync.Mutex
	isRunning bool
}

// NewRetentionService creates the maintenance scheduler
func NewRetentionService(st notificationStore, audit auditSink, r retrier) *RetentionService {
	return &RetentionService{
		store:   st,
		audit:   audit,
		retrier: r,
		now:     time.Now,
		cron:    cron.New(),
	}
}

// Start schedules and launches the maintenance jobs
func (s *RetentionService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	if _, err := s.cron.AddFunc("@hourly", func() { s.ReapExpired() }); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("@every 5m", s.retrier.RetryStalled); err != nil {
		return err
	}

	s.cron.Start()
	s.isRunning = true
	log.Println("RetentionService started (expiry: hourly, retry: every 5m)")
	return nil
}

// Stop halts the scheduler and waits for in-flight jobs
func (s *RetentionService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.isRunning = false
	log.Println("RetentionService stopped")
}

// ReapExpired runs one expiry pass immediately and returns how many
// notifications it expired
func (s *RetentionService) ReapExpired() int {
	expired, err := s.store.ExpireOverdue(s.now())
	if err != nil {
		log.Printf("Retention: Expiry sweep failed: %v", err)
		return 0
	}

	for _, n := range expired {
		s.audit.Record(n.ID, n.RecipientID, models.AuditEventExpired, map[string]interface{}{
			"expired_at": n.ExpiresAt,
		})
	}

	if len(expired) > 0 {
		log.Printf("Retention: Expired %d overdue notifications", len(expired))
	}
	return len(expired)
}
