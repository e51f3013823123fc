package services

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/crewops/backend/internal/models"
	"github.com/crewops/backend/internal/store"
)

// ErrAlreadyEscalated is returned by ForceEscalate when the notification was
// escalated before the call
var ErrAlreadyEscalated = errors.New("notification already escalated")

// notificationCreator submits escalation notifications through the ordinary
// creation path so they get the same quota, persistence and delivery handling
type notificationCreator interface {
	Create(req *CreateNotificationRequest) (*CreateResult, error)
}

// EscalationService periodically sweeps for CRITICAL notifications that
// stayed unacknowledged past the timeout and escalates them to the worker's
// supervisor. The escalated flag is claimed with an atomic check-and-set, so
// overlapping sweeps never double-escalate.
type EscalationService struct {
	store   notificationStore
	org     supervisorResolver
	creator notificationCreator
	audit   auditSink

	interval time.Duration
	timeout  time.Duration
	now      func() time.Time

	stopChan  chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewEscalationService creates the escalation monitor
func NewEscalationService(st notificationStore, org supervisorResolver, creator notificationCreator, audit auditSink, interval, timeout time.Duration) *EscalationService {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if timeout <= 0 {
		timeout = 2 * time.Hour
	}
	return &EscalationService{
		store:    st,
		org:      org,
		creator:  creator,
		audit:    audit,
		interval: interval,
		timeout:  timeout,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

// Start begins the periodic sweep. A stopped service can be started again.
func (s *EscalationService) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	stop := s.stopChan
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(stop)

	log.Printf("EscalationService started (timeout: %v, interval: %v)", s.timeout, s.interval)
}

// Stop stops the periodic sweep
func (s *EscalationService) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	close(s.stopChan)
	s.wg.Wait()
	log.Println("EscalationService stopped")
}

func (s *EscalationService) run(stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.TriggerSweep()
		}
	}
}

// TriggerSweep runs one sweep immediately. Safe to call concurrently with the
// periodic sweep; the escalation claim keeps candidates from double-firing.
func (s *EscalationService) TriggerSweep() int {
	cutoff := s.now().Add(-s.timeout)

	candidates, err := s.store.FindEscalationCandidates(cutoff)
	if err != nil {
		log.Printf("Escalation: Candidate query failed: %v", err)
		return 0
	}

	if len(candidates) == 0 {
		return 0
	}

	log.Printf("Escalation: Found %d overdue critical notifications", len(candidates))

	escalated := 0
	for i := range candidates {
		if s.escalate(&candidates[i]) {
			escalated++
		}
	}
	return escalated
}

// ForceEscalate escalates a single notification immediately, bypassing the
// timeout check. Used by operators for alerts that cannot wait for the sweep.
func (s *EscalationService) ForceEscalate(notificationID uint) error {
	n, err := s.store.GetByID(notificationID)
	if err != nil {
		return err
	}

	if n.Escalated {
		return ErrAlreadyEscalated
	}

	if !s.escalate(n) {
		return ErrAlreadyEscalated
	}
	return nil
}

// escalate claims and escalates one candidate. Returns true when this call
// performed the escalation (successful or terminally failed), false when a
// concurrent sweep claimed it first.
func (s *EscalationService) escalate(n *models.Notification) bool {
	claimed, err := s.store.ClaimEscalation(n.ID, s.now())
	if err != nil {
		log.Printf("Escalation: Claim failed for notification %d: %v", n.ID, err)
		return false
	}
	if !claimed {
		return false
	}

	supervisor, err := s.org.ResolveSupervisor(n.RecipientID)
	if err != nil {
		reason := models.EscalationReasonFailed
		if errors.Is(err, store.ErrNoSupervisor) {
			reason = models.EscalationReasonNoSupervisor
		}
		s.fail(n, reason, err)
		return true
	}

	hoursUnread := int(s.now().Sub(n.CreatedAt).Hours())

	// The summary embeds the original title and message, so it can exceed the
	// creation length limits; truncate before the ordinary creation path.
	title, message := FormatContent("Unacknowledged critical alert",
		fmt.Sprintf("%s has not acknowledged a critical alert for %d hours. %s: %s",
			supervisor.WorkerName, hoursUnread, n.Title, n.Message))

	req := &CreateNotificationRequest{
		Type:                   models.NotificationTypeEscalationAlert,
		Priority:               models.PriorityCritical,
		Title:                  title,
		Message:                message,
		SenderID:               n.SenderID,
		RecipientIDs:           []uint{supervisor.SupervisorID},
		RequiresAcknowledgment: true,
	}

	result, err := s.creator.Create(req)
	if err != nil || len(result.Created) == 0 {
		s.fail(n, models.EscalationReasonFailed, err)
		return true
	}

	if err := s.store.SetEscalationOutcome(n.ID, models.EscalationSuccess, models.EscalationReasonSupervisor); err != nil {
		log.Printf("Escalation: Failed to record outcome for notification %d: %v", n.ID, err)
	}

	s.audit.Record(n.ID, n.RecipientID, models.AuditEventEscalated, map[string]interface{}{
		"escalation_notification_id": result.Created[0].ID,
		"supervisor_id":              supervisor.SupervisorID,
		"hours_unread":               hoursUnread,
	})

	log.Printf("Escalation: Notification %d escalated to supervisor %d (%dh unread)",
		n.ID, supervisor.SupervisorID, hoursUnread)
	return true
}

// fail records a terminal escalation failure. Terminal means exactly that:
// the claimed flag stays set and the notification is not retried; operators
// follow up from the audit trail.
func (s *EscalationService) fail(n *models.Notification, reason string, cause error) {
	if err := s.store.SetEscalationOutcome(n.ID, models.EscalationFailed, reason); err != nil {
		log.Printf("Escalation: Failed to record failure for notification %d: %v", n.ID, err)
	}

	meta := map[string]interface{}{"reason": reason}
	if cause != nil {
		meta["error"] = cause.Error()
	}
	s.audit.Record(n.ID, n.RecipientID, models.AuditEventEscalationFailed, meta)

	log.Printf("Escalation: Notification %d escalation failed: %s", n.ID, reason)
}
