package services

import (
	"errors"
	"log"
	"time"

	"github.com/crewops/backend/internal/models"
	"github.com/crewops/backend/internal/store"
)

// Sync failure codes
const (
	SyncErrNotFound          = "NOT_FOUND"
	SyncErrConcurrentUpdate  = "CONCURRENT_UPDATE"
	SyncErrInvalidTransition = "INVALID_STATUS_TRANSITION"
)

// Conflict kinds and resolutions
const (
	ConflictTimestamp         = "TIMESTAMP_CONFLICT"
	ConflictInvalidTransition = "INVALID_STATUS_TRANSITION"

	ResolutionClientApplied   = "client_applied"
	ResolutionServerPreserved = "server_preserved"
)

// SyncUpdate is a client-reported status change produced while the mobile
// device operated offline. Never persisted verbatim.
type SyncUpdate struct {
	NotificationID uint                      `json:"notification_id"`
	Status         models.NotificationStatus `json:"status"`
	Timestamp      time.Time                 `json:"timestamp"`
	DeviceInfo     string                    `json:"device_info,omitempty"`
}

// ReadReceipt is the lighter read-only sync record
type ReadReceipt struct {
	NotificationID uint      `json:"notification_id"`
	Timestamp      time.Time `json:"timestamp"`
}

// SyncError reports a per-item failure inside a batch
type SyncError struct {
	NotificationID uint   `json:"notification_id"`
	Code           string `json:"code"`
	Message        string `json:"message"`
}

// ConflictResolution describes how one conflicting update was settled
type ConflictResolution struct {
	NotificationID uint                      `json:"notification_id"`
	ConflictType   string                    `json:"conflict_type"`
	Resolution     string                    `json:"resolution"`
	ServerStatus   models.NotificationStatus `json:"server_status"`
	ClientStatus   models.NotificationStatus `json:"client_status"`
}

// SyncResult summarizes a reconciled batch
type SyncResult struct {
	Processed   int                  `json:"processed"`
	Conflicts   int                  `json:"conflicts"`
	Resolved    int                  `json:"resolved"`
	Failed      int                  `json:"failed"`
	Duplicates  int                  `json:"duplicates"`
	Errors      []SyncError          `json:"errors,omitempty"`
	Resolutions []ConflictResolution `json:"resolutions,omitempty"`
}

// SyncService reconciles offline client updates against server state using
// the shared status transition table. Conflicts resolve deterministically:
// identical (server state, client update) pairs always settle the same way.
type SyncService struct {
	store     notificationStore
	audit     auditSink
	batchSize int
}

// NewSyncService creates the sync reconciler
func NewSyncService(st notificationStore, audit auditSink, batchSize int) *SyncService {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &SyncService{
		store:     st,
		audit:     audit,
		batchSize: batchSize,
	}
}

// Reconcile applies a batch of client updates for one worker, processing in
// fixed-size chunks to bound resource use. A bad update never aborts the batch.
func (s *SyncService) Reconcile(workerID uint, updates []SyncUpdate) *SyncResult {
	result := &SyncResult{}

	for start := 0; start < len(updates); start += s.batchSize {
		end := start + s.batchSize
		if end > len(updates) {
			end = len(updates)
		}
		for _, update := range updates[start:end] {
			s.reconcileOne(workerID, update, result)
			result.Processed++
		}
	}

	if result.Conflicts > 0 || result.Failed > 0 {
		log.Printf("Sync: Worker %d reconciled %d updates (%d conflicts, %d resolved, %d failed)",
			workerID, result.Processed, result.Conflicts, result.Resolved, result.Failed)
	}

	return result
}

func (s *SyncService) reconcileOne(workerID uint, update SyncUpdate, result *SyncResult) {
	n, err := s.store.GetByID(update.NotificationID)
	if err != nil {
		result.Failed++
		code := SyncErrNotFound
		if !errors.Is(err, store.ErrNotFound) {
			code = SyncErrConcurrentUpdate
		}
		result.Errors = append(result.Errors, SyncError{
			NotificationID: update.NotificationID,
			Code:           code,
			Message:        err.Error(),
		})
		return
	}

	if n.RecipientID != workerID {
		result.Failed++
		result.Errors = append(result.Errors, SyncError{
			NotificationID: update.NotificationID,
			Code:           SyncErrNotFound,
			Message:        "notification does not belong to worker",
		})
		return
	}

	// A client replaying an update it already applied is a duplicate, not a
	// conflict. Same final state either way.
	if n.Status == update.Status {
		result.Duplicates++
		return
	}

	serverTime := relevantServerTime(n, update.Status)

	if serverTime != nil && serverTime.After(update.Timestamp) {
		// Server state is newer than the client's report
		result.Conflicts++

		if models.CanTransition(n.Status, update.Status) {
			// The stale update still moves the row forward; client wins
			serverStatus := n.Status
			if s.apply(n, update, result) {
				result.Resolved++
				s.resolved(n, serverStatus, update, result, ConflictTimestamp, ResolutionClientApplied)
			}
			return
		}

		// Keep server state; the conflict is settled, not applied
		result.Resolved++
		s.resolved(n, n.Status, update, result, ConflictTimestamp, ResolutionServerPreserved)
		return
	}

	if !models.CanTransition(n.Status, update.Status) {
		// Unresolvable: server state preserved, reported as a per-item outcome
		result.Conflicts++
		result.Errors = append(result.Errors, SyncError{
			NotificationID: update.NotificationID,
			Code:           SyncErrInvalidTransition,
			Message:        string(n.Status) + " cannot move to " + string(update.Status),
		})
		s.resolved(n, n.Status, update, result, ConflictInvalidTransition, ResolutionServerPreserved)
		return
	}

	if s.apply(n, update, result) {
		s.audit.Record(n.ID, workerID, models.AuditEventSyncApplied, map[string]interface{}{
			"status":      string(update.Status),
			"device_info": update.DeviceInfo,
			"conflict":    false,
		})
	}
}

// apply performs the guarded status write plus the timestamps the new status
// implies. Acknowledgment backfills the read timestamp: acknowledging implies
// having read.
func (s *SyncService) apply(n *models.Notification, update SyncUpdate, result *SyncResult) bool {
	fields := map[string]interface{}{}

	switch update.Status {
	case models.StatusRead:
		fields["read_at"] = update.Timestamp
	case models.StatusAcknowledged:
		fields["acknowledged_at"] = update.Timestamp
		if n.ReadAt == nil {
			fields["read_at"] = update.Timestamp
		}
	}

	applied, err := s.store.UpdateStatus(n.ID, n.Status, update.Status, fields)
	if err != nil {
		result.Failed++
		result.Errors = append(result.Errors, SyncError{
			NotificationID: n.ID,
			Code:           SyncErrConcurrentUpdate,
			Message:        err.Error(),
		})
		return false
	}
	if !applied {
		// A concurrent writer moved the row between our read and write.
		// Safe to report and move on; the client re-syncs from the watermark.
		result.Failed++
		result.Errors = append(result.Errors, SyncError{
			NotificationID: n.ID,
			Code:           SyncErrConcurrentUpdate,
			Message:        "notification changed concurrently",
		})
		return false
	}

	n.Status = update.Status
	return true
}

// relevantServerTime picks the server timestamp that competes with the client
// update: the read time for READ, the acknowledgment time for ACKNOWLEDGED,
// the row's last modification otherwise.
func relevantServerTime(n *models.Notification, requested models.NotificationStatus) *time.Time {
	switch requested {
	case models.StatusRead:
		if n.ReadAt != nil {
			return n.ReadAt
		}
	case models.StatusAcknowledged:
		if n.AcknowledgedAt != nil {
			return n.AcknowledgedAt
		}
	}
	if n.UpdatedAt.IsZero() {
		return nil
	}
	t := n.UpdatedAt
	return &t
}

func (s *SyncService) resolved(n *models.Notification, serverStatus models.NotificationStatus, update SyncUpdate, result *SyncResult, conflictType, resolution string) {
	result.Resolutions = append(result.Resolutions, ConflictResolution{
		NotificationID: n.ID,
		ConflictType:   conflictType,
		Resolution:     resolution,
		ServerStatus:   serverStatus,
		ClientStatus:   update.Status,
	})

	s.audit.Record(n.ID, n.RecipientID, models.AuditEventSyncConflict, map[string]interface{}{
		"conflict_type": conflictType,
		"resolution":    resolution,
		"server_status": string(serverStatus),
		"client_status": string(update.Status),
		"device_info":   update.DeviceInfo,
	})
}

// MarkRead is the light read-receipt path. Receipts at or before the recorded
// read time are duplicates: counted, not persisted, not separately audited.
func (s *SyncService) MarkRead(workerID uint, receipts []ReadReceipt) *SyncResult {
	result := &SyncResult{}

	for _, receipt := range receipts {
		result.Processed++

		n, err := s.store.GetByID(receipt.NotificationID)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, SyncError{
				NotificationID: receipt.NotificationID,
				Code:           SyncErrNotFound,
				Message:        err.Error(),
			})
			continue
		}

		if n.RecipientID != workerID {
			result.Failed++
			result.Errors = append(result.Errors, SyncError{
				NotificationID: receipt.NotificationID,
				Code:           SyncErrNotFound,
				Message:        "notification does not belong to worker",
			})
			continue
		}

		if n.ReadAt != nil && !receipt.Timestamp.After(*n.ReadAt) {
			result.Duplicates++
			continue
		}

		if !models.CanTransition(n.Status, models.StatusRead) {
			result.Failed++
			result.Errors = append(result.Errors, SyncError{
				NotificationID: receipt.NotificationID,
				Code:           SyncErrInvalidTransition,
				Message:        string(n.Status) + " cannot move to READ",
			})
			continue
		}

		applied, err := s.store.UpdateStatus(n.ID, n.Status, models.StatusRead, map[string]interface{}{
			"read_at": receipt.Timestamp,
		})
		if err != nil || !applied {
			result.Failed++
			continue
		}

		s.audit.Record(n.ID, workerID, models.AuditEventSyncApplied, map[string]interface{}{
			"status": string(models.StatusRead),
		})
	}

	return result
}

// GetChangesSince returns every notification of the worker modified after the
// watermark, so clients learn about server-originated changes since their
// last sync.
func (s *SyncService) GetChangesSince(workerID uint, since time.Time) ([]models.Notification, error) {
	return s.store.FindChangedSince(workerID, since)
}
