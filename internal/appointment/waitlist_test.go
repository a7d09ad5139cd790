package appointment

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/notify"
)

func TestJoinWaitlist_IsIdempotentPerDay(t *testing.T) {
	f := newFixture(t)

	first, err := f.svc.JoinWaitlist(f.ctx, f.bob.ID, f.provider.ID, monday)
	require.NoError(t, err)
	again, err := f.svc.JoinWaitlist(f.ctx, f.bob.ID, f.provider.ID, monday.Add(15*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, first.ID, again.ID)
	assert.Len(t, f.waitlist(t), 1)
}

func TestJoinWaitlist_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.JoinWaitlist(f.ctx, f.bob.ID, f.provider.ID, fixtureNow.AddDate(0, 0, -1))
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.JoinWaitlist(f.ctx, uuid.New(), f.provider.ID, monday)
	require.ErrorIs(t, err, ErrPatientNotFound)

	_, err = f.svc.JoinWaitlist(f.ctx, f.bob.ID, uuid.New(), monday)
	require.ErrorIs(t, err, ErrProviderNotFound)

	// today is still allowed
	_, err = f.svc.JoinWaitlist(f.ctx, f.bob.ID, f.provider.ID, fixtureNow)
	require.NoError(t, err)
}

func TestListWaitlist_Access(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.JoinWaitlist(f.ctx, f.bob.ID, f.provider.ID, monday)
	require.NoError(t, err)
	_, err = f.svc.JoinWaitlist(f.ctx, f.carol.ID, f.provider.ID, monday)
	require.NoError(t, err)

	entries, err := f.svc.ListWaitlist(f.ctx, f.providerActor(), f.provider.ID, monday)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, f.bob.ID, entries[0].PatientID)

	entries, err = f.svc.ListWaitlist(f.ctx, clinicActor, f.provider.ID, monday)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	_, err = f.svc.ListWaitlist(f.ctx, patientActor(f.bob), f.provider.ID, monday)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestNotifyWaitlistEntry(t *testing.T) {
	f := newFixture(t)
	entry, err := f.svc.JoinWaitlist(f.ctx, f.bob.ID, f.provider.ID, monday)
	require.NoError(t, err)

	err = f.svc.NotifyWaitlistEntry(f.ctx, Actor{ID: uuid.New(), Role: RoleProvider}, entry.ID)
	require.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, f.svc.NotifyWaitlistEntry(f.ctx, f.providerActor(), entry.ID))
	assert.Empty(t, f.waitlist(t))

	sent := f.notes.ofKind(notify.KindWaitlistOpening)
	require.Len(t, sent, 1)
	assert.Equal(t, *f.bob.Email, sent[0].Recipient)
	assert.Equal(t, "2025-03-10", sent[0].Fields["date"])

	err = f.svc.NotifyWaitlistEntry(f.ctx, f.providerActor(), entry.ID)
	require.ErrorIs(t, err, ErrWaitlistEntryNotFound)
}
