package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewops/backend/internal/models"
)

func deliveredNotification(st *fakeStore, updatedAt time.Time) *models.Notification {
	return st.add(models.Notification{
		RecipientID: 5,
		Priority:    models.PriorityNormal,
		Status:      models.StatusDelivered,
		UpdatedAt:   updatedAt,
		CreatedAt:   updatedAt.Add(-time.Hour),
	})
}

func TestReconcileAppliesValidOfflineUpdate(t *testing.T) {
	st := newFakeStore()
	audit := &fakeAudit{}
	svc := NewSyncService(st, audit, 50)

	base := time.Now().Add(-2 * time.Hour)
	n := deliveredNotification(st, base)
	readAt := base.Add(30 * time.Minute)

	result := svc.Reconcile(5, []SyncUpdate{
		{NotificationID: n.ID, Status: models.StatusRead, Timestamp: readAt},
	})

	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 0, result.Conflicts)
	assert.Equal(t, 0, result.Failed)

	stored, _ := st.GetByID(n.ID)
	assert.Equal(t, models.StatusRead, stored.Status)
	require.NotNil(t, stored.ReadAt)
	assert.True(t, stored.ReadAt.Equal(readAt))

	assert.Len(t, audit.eventsOf(models.AuditEventSyncApplied), 1)
}

func TestReconcileAcknowledgeBackfillsReadAt(t *testing.T) {
	st := newFakeStore()
	svc := NewSyncService(st, &fakeAudit{}, 50)

	base := time.Now().Add(-2 * time.Hour)
	n := deliveredNotification(st, base)
	ackAt := base.Add(time.Hour)

	result := svc.Reconcile(5, []SyncUpdate{
		{NotificationID: n.ID, Status: models.StatusAcknowledged, Timestamp: ackAt},
	})

	assert.Equal(t, 0, result.Failed)

	stored, _ := st.GetByID(n.ID)
	assert.Equal(t, models.StatusAcknowledged, stored.Status)
	require.NotNil(t, stored.AcknowledgedAt)
	require.NotNil(t, stored.ReadAt, "acknowledging implies having read")
	assert.True(t, stored.ReadAt.Equal(ackAt))
}

func TestReconcileSameStatusIsDuplicate(t *testing.T) {
	st := newFakeStore()
	audit := &fakeAudit{}
	svc := NewSyncService(st, audit, 50)

	n := deliveredNotification(st, time.Now().Add(-time.Hour))

	result := svc.Reconcile(5, []SyncUpdate{
		{NotificationID: n.ID, Status: models.StatusDelivered, Timestamp: time.Now()},
	})

	assert.Equal(t, 1, result.Duplicates)
	assert.Equal(t, 0, result.Conflicts)
	assert.Empty(t, audit.records)
}

func TestReconcileInvalidTransitionPreservesServerState(t *testing.T) {
	st := newFakeStore()
	audit := &fakeAudit{}
	svc := NewSyncService(st, audit, 50)

	base := time.Now().Add(-2 * time.Hour)
	n := st.add(models.Notification{
		RecipientID: 5,
		Status:      models.StatusExpired,
		UpdatedAt:   base,
	})

	result := svc.Reconcile(5, []SyncUpdate{
		{NotificationID: n.ID, Status: models.StatusRead, Timestamp: time.Now()},
	})

	assert.Equal(t, 1, result.Conflicts)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, SyncErrInvalidTransition, result.Errors[0].Code)

	require.Len(t, result.Resolutions, 1)
	assert.Equal(t, ResolutionServerPreserved, result.Resolutions[0].Resolution)
	assert.Equal(t, models.StatusExpired, result.Resolutions[0].ServerStatus)

	stored, _ := st.GetByID(n.ID)
	assert.Equal(t, models.StatusExpired, stored.Status)
	assert.Len(t, audit.eventsOf(models.AuditEventSyncConflict), 1)
}

func TestReconcileTimestampConflictClientWinsOnValidTransition(t *testing.T) {
	st := newFakeStore()
	svc := NewSyncService(st, &fakeAudit{}, 50)

	// Server row was touched after the client's offline update was produced
	serverTime := time.Now().Add(-10 * time.Minute)
	clientTime := time.Now().Add(-30 * time.Minute)
	n := deliveredNotification(st, serverTime)

	result := svc.Reconcile(5, []SyncUpdate{
		{NotificationID: n.ID, Status: models.StatusRead, Timestamp: clientTime},
	})

	assert.Equal(t, 1, result.Conflicts)
	assert.Equal(t, 1, result.Resolved)
	require.Len(t, result.Resolutions, 1)
	assert.Equal(t, ResolutionClientApplied, result.Resolutions[0].Resolution)
	assert.Equal(t, models.StatusDelivered, result.Resolutions[0].ServerStatus)

	stored, _ := st.GetByID(n.ID)
	assert.Equal(t, models.StatusRead, stored.Status)
}

func TestReconcileTimestampConflictServerWinsOnInvalidTransition(t *testing.T) {
	st := newFakeStore()
	svc := NewSyncService(st, &fakeAudit{}, 50)

	serverAck := time.Now().Add(-10 * time.Minute)
	clientRead := time.Now().Add(-30 * time.Minute)
	n := st.add(models.Notification{
		RecipientID:    5,
		Status:         models.StatusAcknowledged,
		AcknowledgedAt: &serverAck,
		UpdatedAt:      serverAck,
	})

	result := svc.Reconcile(5, []SyncUpdate{
		{NotificationID: n.ID, Status: models.StatusRead, Timestamp: clientRead},
	})

	assert.Equal(t, 1, result.Conflicts)
	assert.Equal(t, 1, result.Resolved)
	require.Len(t, result.Resolutions, 1)
	assert.Equal(t, ResolutionServerPreserved, result.Resolutions[0].Resolution)

	stored, _ := st.GetByID(n.ID)
	assert.Equal(t, models.StatusAcknowledged, stored.Status)
}

func TestReconcileIsDeterministic(t *testing.T) {
	// The same (server state, client update) pair must settle identically on
	// every replay
	for i := 0; i < 3; i++ {
		st := newFakeStore()
		svc := NewSyncService(st, &fakeAudit{}, 50)

		serverAck := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
		n := st.add(models.Notification{
			RecipientID:    5,
			Status:         models.StatusAcknowledged,
			AcknowledgedAt: &serverAck,
			UpdatedAt:      serverAck,
		})

		result := svc.Reconcile(5, []SyncUpdate{
			{NotificationID: n.ID, Status: models.StatusRead, Timestamp: serverAck.Add(-time.Hour)},
		})

		require.Len(t, result.Resolutions, 1)
		assert.Equal(t, ResolutionServerPreserved, result.Resolutions[0].Resolution)
	}
}

func TestReconcileUnknownNotification(t *testing.T) {
	svc := NewSyncService(newFakeStore(), &fakeAudit{}, 50)

	result := svc.Reconcile(5, []SyncUpdate{
		{NotificationID: 999, Status: models.StatusRead, Timestamp: time.Now()},
	})

	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, SyncErrNotFound, result.Errors[0].Code)
}

func TestReconcileRejectsForeignNotification(t *testing.T) {
	st := newFakeStore()
	svc := NewSyncService(st, &fakeAudit{}, 50)

	n := deliveredNotification(st, time.Now().Add(-time.Hour)) // belongs to worker 5

	result := svc.Reconcile(99, []SyncUpdate{
		{NotificationID: n.ID, Status: models.StatusRead, Timestamp: time.Now()},
	})

	assert.Equal(t, 1, result.Failed)
	stored, _ := st.GetByID(n.ID)
	assert.Equal(t, models.StatusDelivered, stored.Status)
}

func TestReconcileBadItemDoesNotAbortBatch(t *testing.T) {
	st := newFakeStore()
	svc := NewSyncService(st, &fakeAudit{}, 2) // small batch size to exercise chunking

	base := time.Now().Add(-2 * time.Hour)
	good1 := deliveredNotification(st, base)
	good2 := deliveredNotification(st, base)
	good3 := deliveredNotification(st, base)

	result := svc.Reconcile(5, []SyncUpdate{
		{NotificationID: good1.ID, Status: models.StatusRead, Timestamp: time.Now()},
		{NotificationID: 999, Status: models.StatusRead, Timestamp: time.Now()},
		{NotificationID: good2.ID, Status: models.StatusRead, Timestamp: time.Now()},
		{NotificationID: good3.ID, Status: models.StatusAcknowledged, Timestamp: time.Now()},
	})

	assert.Equal(t, 4, result.Processed)
	assert.Equal(t, 1, result.Failed)

	for _, id := range []uint{good1.ID, good2.ID} {
		stored, _ := st.GetByID(id)
		assert.Equal(t, models.StatusRead, stored.Status)
	}
	stored, _ := st.GetByID(good3.ID)
	assert.Equal(t, models.StatusAcknowledged, stored.Status)
}

func TestMarkReadDuplicateReceiptsNotPersisted(t *testing.T) {
	st := newFakeStore()
	audit := &fakeAudit{}
	svc := NewSyncService(st, audit, 50)

	firstRead := time.Now().Add(-time.Hour)
	n := st.add(models.Notification{
		RecipientID: 5,
		Status:      models.StatusRead,
		ReadAt:      &firstRead,
		UpdatedAt:   firstRead,
	})

	result := svc.MarkRead(5, []ReadReceipt{
		{NotificationID: n.ID, Timestamp: firstRead.Add(-10 * time.Minute)},
		{NotificationID: n.ID, Timestamp: firstRead},
	})

	assert.Equal(t, 2, result.Duplicates)
	assert.Equal(t, 0, result.Failed)
	assert.Empty(t, audit.records)

	stored, _ := st.GetByID(n.ID)
	assert.True(t, stored.ReadAt.Equal(firstRead), "original read time kept")
}

func TestMarkReadAppliesReceipt(t *testing.T) {
	st := newFakeStore()
	svc := NewSyncService(st, &fakeAudit{}, 50)

	n := deliveredNotification(st, time.Now().Add(-time.Hour))
	readAt := time.Now().Add(-5 * time.Minute)

	result := svc.MarkRead(5, []ReadReceipt{{NotificationID: n.ID, Timestamp: readAt}})

	assert.Equal(t, 0, result.Failed)
	stored, _ := st.GetByID(n.ID)
	assert.Equal(t, models.StatusRead, stored.Status)
	require.NotNil(t, stored.ReadAt)
	assert.True(t, stored.ReadAt.Equal(readAt))
}

func TestGetChangesSinceUsesWatermark(t *testing.T) {
	st := newFakeStore()
	svc := NewSyncService(st, &fakeAudit{}, 50)

	old := time.Now().Add(-3 * time.Hour)
	recent := time.Now().Add(-10 * time.Minute)
	st.add(models.Notification{RecipientID: 5, Status: models.StatusDelivered, UpdatedAt: old})
	changed := st.add(models.Notification{RecipientID: 5, Status: models.StatusRead, UpdatedAt: recent})
	st.add(models.Notification{RecipientID: 6, Status: models.StatusRead, UpdatedAt: recent})

	got, err := svc.GetChangesSince(5, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, changed.ID, got[0].ID)
}
