package appointment

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAppointment_Access(t *testing.T) {
	f := newFixture(t)
	appt := f.book(t, f.alice, at(10, 0))

	detail, err := f.svc.GetAppointment(f.ctx, patientActor(f.alice), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appt.ID, detail.ID)
	assert.Equal(t, "Alice", detail.Patient.Name)
	assert.Equal(t, "Gregory House", detail.Provider.Name)

	_, err = f.svc.GetAppointment(f.ctx, f.providerActor(), appt.ID)
	require.NoError(t, err)
	_, err = f.svc.GetAppointment(f.ctx, clinicActor, appt.ID)
	require.NoError(t, err)

	_, err = f.svc.GetAppointment(f.ctx, patientActor(f.bob), appt.ID)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.svc.GetAppointment(f.ctx, Actor{ID: uuid.New(), Role: RoleProvider}, appt.ID)
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.svc.GetAppointment(f.ctx, clinicActor, uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListPatientAppointments_NewestFirst(t *testing.T) {
	f := newFixture(t)
	f.book(t, f.alice, at(9, 0))
	f.book(t, f.alice, at(11, 0))
	f.book(t, f.bob, at(10, 0))

	list, err := f.svc.ListPatientAppointments(f.ctx, f.alice.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].ScheduledAt.Equal(at(11, 0)))

	list, err = f.svc.ListPatientAppointments(f.ctx, f.alice.ID, 1, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].ScheduledAt.Equal(at(9, 0)))
}

func TestListProviderAppointments(t *testing.T) {
	f := newFixture(t)
	f.book(t, f.alice, at(9, 0))
	f.book(t, f.bob, at(11, 0))

	list, err := f.svc.ListProviderAppointments(f.ctx, f.provider.ID, false, 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].ScheduledAt.Equal(at(9, 0)))

	f.now = at(10, 0)
	list, err = f.svc.ListProviderAppointments(f.ctx, f.provider.ID, true, 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, f.bob.ID, list[0].PatientID)

	_, err = f.svc.ListProviderAppointments(f.ctx, uuid.New(), false, 0, 0)
	require.ErrorIs(t, err, ErrProviderNotFound)
}

func TestClampPage(t *testing.T) {
	limit, offset := clampPage(0, -3)
	assert.Equal(t, defaultPageSize, limit)
	assert.Zero(t, offset)

	limit, _ = clampPage(1000, 0)
	assert.Equal(t, maxPageSize, limit)
}
