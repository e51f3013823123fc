package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewops/backend/internal/models"
)

func TestReapExpiredMarksOverdueRows(t *testing.T) {
	st := newFakeStore()
	audit := &fakeAudit{}
	svc := NewRetentionService(st, audit, &fakeRetrier{})

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	overdue := st.add(models.Notification{
		RecipientID: 5,
		Status:      models.StatusDelivered,
		ExpiresAt:   &past,
	})
	fresh := st.add(models.Notification{
		RecipientID: 5,
		Status:      models.StatusDelivered,
		ExpiresAt:   &future,
	})
	st.add(models.Notification{
		RecipientID: 5,
		Status:      models.StatusDelivered,
	})

	assert.Equal(t, 1, svc.ReapExpired())

	stored, _ := st.GetByID(overdue.ID)
	assert.Equal(t, models.StatusExpired, stored.Status)
	stored, _ = st.GetByID(fresh.ID)
	assert.Equal(t, models.StatusDelivered, stored.Status)

	events := audit.eventsOf(models.AuditEventExpired)
	require.Len(t, events, 1)
	assert.Equal(t, overdue.ID, events[0].NotificationID)
}

func TestReapExpiredSkipsFailedRows(t *testing.T) {
	st := newFakeStore()
	svc := NewRetentionService(st, &fakeAudit{}, &fakeRetrier{})

	past := time.Now().Add(-time.Hour)
	failed := st.add(models.Notification{
		RecipientID: 5,
		Status:      models.StatusFailed,
		ExpiresAt:   &past,
	})

	assert.Equal(t, 0, svc.ReapExpired())

	// FAILED only moves back to SENT, never to EXPIRED
	stored, _ := st.GetByID(failed.ID)
	assert.Equal(t, models.StatusFailed, stored.Status)
}

func TestRetentionStartStop(t *testing.T) {
	st := newFakeStore()
	svc := NewRetentionService(st, &fakeAudit{}, &fakeRetrier{})

	require.NoError(t, svc.Start())
	require.NoError(t, svc.Start()) // idempotent
	svc.Stop()
	svc.Stop()
}

type fakeRetrier struct {
	calls int
}

func (f *fakeRetrier) RetryStalled() {
	f.calls++
}
