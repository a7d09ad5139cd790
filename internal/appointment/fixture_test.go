package appointment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/notify"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

type recordingNotifier struct {
	mu  sync.Mutex
	got []notify.Notification
}

func (r *recordingNotifier) Notify(n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
}

func (r *recordingNotifier) all() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Notification(nil), r.got...)
}

func (r *recordingNotifier) ofKind(kind notify.Kind) []notify.Notification {
	var out []notify.Notification
	for _, n := range r.all() {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

func (r *recordingNotifier) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = nil
}

// Saturday 2025-03-08 08:00 UTC; the provider works Mondays 09:00-12:00 in
// 30 minute slots, so 2025-03-10 is the first working day.
var (
	fixtureNow = time.Date(2025, 3, 8, 8, 0, 0, 0, time.UTC)
	monday     = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
)

func at(hour, minute int) time.Time {
	return time.Date(2025, 3, 10, hour, minute, 0, 0, time.UTC)
}

type fixture struct {
	ctx      context.Context
	repo     *MemoryRepository
	svc      *Service
	notes    *recordingNotifier
	now      time.Time
	provider *Provider
	alice    *Patient
	bob      *Patient
	carol    *Patient
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	log, _ := test.NewNullLogger()
	f := &fixture{
		ctx:   context.Background(),
		repo:  NewMemoryRepository(),
		notes: &recordingNotifier{},
		now:   fixtureNow,
	}

	opts = append([]Option{WithClock(func() time.Time { return f.now })}, opts...)
	f.svc = NewService(
		f.repo,
		redisclient.NewLocalProviderLocker(5*time.Second),
		f.notes,
		log,
		config.Config{ClinicTimezone: "UTC", SlotWindowDays: 7},
		opts...,
	)

	f.provider = f.newProvider(t, "Gregory House", "dr.house@clinic.test")
	f.alice = f.newPatient(t, "Alice")
	f.bob = f.newPatient(t, "Bob")
	f.carol = f.newPatient(t, "Carol")

	_, err := f.svc.SetWeeklyAvailability(f.ctx, f.providerActor(), f.provider.ID, 30, []AvailabilityRule{
		{Weekday: time.Monday, Start: 9 * 60, End: 12 * 60},
	})
	require.NoError(t, err)

	f.notes.reset()
	return f
}

func (f *fixture) newPatient(t *testing.T, name string) *Patient {
	t.Helper()
	email := name + "@patients.test"
	p := &Patient{Name: name, Email: &email}
	require.NoError(t, f.repo.CreatePatient(f.ctx, p))
	return p
}

func (f *fixture) newProvider(t *testing.T, name, email string) *Provider {
	t.Helper()
	p := &Provider{Name: name, Email: &email}
	require.NoError(t, f.repo.CreateProvider(f.ctx, p))
	return p
}

func (f *fixture) providerActor() Actor {
	return Actor{ID: f.provider.ID, Role: RoleProvider}
}

func (f *fixture) book(t *testing.T, patient *Patient, when time.Time) *Appointment {
	t.Helper()
	appt, err := f.svc.BookAppointment(f.ctx, patient.ID, f.provider.ID, when)
	require.NoError(t, err)
	return appt
}

func (f *fixture) waitlist(t *testing.T) []WaitlistEntry {
	t.Helper()
	entries, err := f.repo.ListWaitlist(f.ctx, f.provider.ID, monday)
	require.NoError(t, err)
	return entries
}

func patientActor(p *Patient) Actor {
	return Actor{ID: p.ID, Role: RolePatient}
}

var clinicActor = Actor{ID: uuid.MustParse("00000000-0000-0000-0000-0000000000c1"), Role: RoleClinic}
