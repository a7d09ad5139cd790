package appointment

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/notify"
)

func TestSendReminders_TomorrowScheduledOnly(t *testing.T) {
	f := newFixture(t)
	f.book(t, f.alice, at(10, 0))
	confirmed := f.book(t, f.bob, at(11, 0))
	_, err := f.svc.UpdateStatus(f.ctx, confirmed.ID, f.providerActor(), StatusConfirmedByProvider)
	require.NoError(t, err)
	f.notes.reset()

	// Saturday: Monday is two days out
	n, err := f.svc.SendReminders(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.now = time.Date(2025, 3, 9, 18, 0, 0, 0, time.UTC)
	n, err = f.svc.SendReminders(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	sent := f.notes.ofKind(notify.KindReminder)
	require.Len(t, sent, 1)
	assert.Equal(t, *f.alice.Email, sent[0].Recipient)
	assert.Equal(t, "10:00", sent[0].Fields["time"])
}

func TestSendReminder_Manual(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, f.alice, at(10, 0))
	f.notes.reset()

	require.NoError(t, f.svc.SendReminder(f.ctx, f.providerActor(), appt.ID))
	assert.Len(t, f.notes.ofKind(notify.KindReminder), 1)

	err := f.svc.SendReminder(f.ctx, patientActor(f.alice), appt.ID)
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.svc.CancelAppointment(f.ctx, appt.ID, f.alice.ID)
	require.NoError(t, err)
	err = f.svc.SendReminder(f.ctx, clinicActor, appt.ID)
	require.ErrorIs(t, err, ErrInvalidStateTransition)

	err = f.svc.SendReminder(f.ctx, clinicActor, uuid.New())
	require.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestNotifications_SkipMissingEmail(t *testing.T) {
	f := newFixture(t)
	noEmail := &Patient{Name: "Dan"}
	require.NoError(t, f.repo.CreatePatient(f.ctx, noEmail))

	_, err := f.svc.BookAppointment(f.ctx, noEmail.ID, f.provider.ID, at(10, 0))
	require.NoError(t, err)
	assert.Empty(t, f.notes.all())
}
