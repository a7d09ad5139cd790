package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/notify"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

// Saturday; the provider is configured for Mondays in setup.
var testNow = time.Date(2025, 3, 8, 8, 0, 0, 0, time.UTC)

type testServer struct {
	t        *testing.T
	handler  http.Handler
	repo     *appointment.MemoryRepository
	provider *appointment.Provider
	alice    *appointment.Patient
	bob      *appointment.Patient
}

func newTestServer(t *testing.T, locker redisclient.Locker) *testServer {
	t.Helper()

	if locker == nil {
		locker = redisclient.NewLocalProviderLocker(5 * time.Second)
	}
	log, _ := test.NewNullLogger()
	repo := appointment.NewMemoryRepository()
	svc := appointment.NewService(
		repo,
		locker,
		notify.Discard{},
		log,
		config.Config{ClinicTimezone: "UTC", SlotWindowDays: 7},
		appointment.WithClock(func() time.Time { return testNow }),
	)

	ts := &testServer{
		t:       t,
		handler: NewRouter(RouterConfig{Service: svc, Logger: log, Env: "test", Version: "v-test"}),
		repo:    repo,
	}

	ctx := context.Background()
	ts.provider = &appointment.Provider{Name: "Gregory House"}
	require.NoError(t, repo.CreateProvider(ctx, ts.provider))
	ts.alice = &appointment.Patient{Name: "Alice"}
	require.NoError(t, repo.CreatePatient(ctx, ts.alice))
	ts.bob = &appointment.Patient{Name: "Bob"}
	require.NoError(t, repo.CreatePatient(ctx, ts.bob))
	return ts
}

func (ts *testServer) do(method, path string, actor *appointment.Actor, body any) *httptest.ResponseRecorder {
	ts.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(ts.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		req.Header.Set(headerActorID, actor.ID.String())
		req.Header.Set(headerActorRole, string(actor.Role))
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) patient(p *appointment.Patient) *appointment.Actor {
	return &appointment.Actor{ID: p.ID, Role: appointment.RolePatient}
}

func (ts *testServer) providerActor() *appointment.Actor {
	return &appointment.Actor{ID: ts.provider.ID, Role: appointment.RoleProvider}
}

func (ts *testServer) configureMondays() {
	ts.t.Helper()
	rec := ts.do(http.MethodPut, "/providers/"+ts.provider.ID.String()+"/availability", ts.providerActor(), SetAvailabilityRequest{
		SlotDurationMinutes: 30,
		Rules:               []AvailabilityRuleDTO{{DayOfWeek: "MONDAY", StartTime: "09:00", EndTime: "12:00"}},
	})
	require.Equal(ts.t, http.StatusOK, rec.Code, rec.Body.String())
}

func (ts *testServer) book(p *appointment.Patient, when string) *httptest.ResponseRecorder {
	return ts.do(http.MethodPost, "/appointments", ts.patient(p), BookAppointmentRequest{
		ProviderID:          ts.provider.ID.String(),
		AppointmentDateTime: when,
	})
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type failingLocker struct{ err error }

func (l failingLocker) WithProviderLock(context.Context, uuid.UUID, func(ctx context.Context) error) error {
	return l.err
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/health/live", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "v-test", decode[LivenessResponse](t, rec).Version)

	rec = ts.do(http.MethodGet, "/health/ready", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ready := decode[ReadinessResponse](t, rec)
	assert.Equal(t, depNotConfigured, ready.Dependencies["postgres"])
	assert.Equal(t, depNotConfigured, ready.Dependencies["redis"])
}

func TestRequestIDEchoed(t *testing.T) {
	ts := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestActorRequired(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodPost, "/appointments", nil, BookAppointmentRequest{})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(http.MethodPost, "/appointments", &appointment.Actor{ID: uuid.New(), Role: "admin"}, BookAppointmentRequest{})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAvailabilityAndSlots(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.configureMondays()

	rec := ts.do(http.MethodGet, "/providers/"+ts.provider.ID.String()+"/availability", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	avail := decode[AvailabilityResponse](t, rec)
	require.NotNil(t, avail.SlotDurationMinutes)
	assert.Equal(t, 30, *avail.SlotDurationMinutes)
	assert.Equal(t, []AvailabilityRuleDTO{{DayOfWeek: "MONDAY", StartTime: "09:00", EndTime: "12:00"}}, avail.Rules)

	require.Equal(t, http.StatusCreated, ts.book(ts.alice, "2025-03-10T10:00:00").Code)

	rec = ts.do(http.MethodGet, "/providers/"+ts.provider.ID.String()+"/slots?days=7", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	days := decode[[]DaySlotsResponse](t, rec)
	require.Len(t, days, 1)
	assert.Equal(t, "2025-03-10", days[0].Date)
	require.Len(t, days[0].Slots, 6)
	assert.Equal(t, string(appointment.SlotBooked), days[0].Slots[2].Status)
	assert.Equal(t, string(appointment.SlotAvailable), days[0].Slots[0].Status)
}

func TestSetAvailability_Rejected(t *testing.T) {
	ts := newTestServer(t, nil)
	path := "/providers/" + ts.provider.ID.String() + "/availability"

	rec := ts.do(http.MethodPut, path, ts.patient(ts.alice), SetAvailabilityRequest{SlotDurationMinutes: 30})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(http.MethodPut, path, ts.providerActor(), SetAvailabilityRequest{SlotDurationMinutes: 5})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Fields, "slot_duration_minutes")

	rec = ts.do(http.MethodPut, path, ts.providerActor(), SetAvailabilityRequest{
		SlotDurationMinutes: 30,
		Rules:               []AvailabilityRuleDTO{{DayOfWeek: "FUNDAY", StartTime: "09:00", EndTime: "12:00"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSlots_WindowTooLarge(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(http.MethodGet, "/providers/"+ts.provider.ID.String()+"/slots?days=90", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodGet, "/providers/"+ts.provider.ID.String()+"/slots?days=x", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBookAppointment(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.configureMondays()

	rec := ts.book(ts.alice, "2025-03-10T10:00:00")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	appt := decode[AppointmentResponse](t, rec)
	assert.Equal(t, ts.alice.ID, appt.PatientID)
	assert.Equal(t, string(appointment.StatusScheduled), appt.Status)
	assert.True(t, appt.ScheduledAt.Equal(time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)))

	rec = ts.book(ts.bob, "2025-03-10T10:00:00Z")
	require.Equal(t, http.StatusConflict, rec.Code)
	conflict := decode[ErrorResponse](t, rec)
	assert.Equal(t, "slot_conflict", conflict.Error)
	assert.True(t, conflict.WaitlistAvailable)

	rec = ts.book(ts.alice, "2025-03-10T10:00")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "duplicate_booking", decode[ErrorResponse](t, rec).Error)
}

func TestBookAppointment_Rejections(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.configureMondays()

	tests := []struct {
		name string
		when string
		code int
	}{
		{"outside hours", "2025-03-10T13:00:00", http.StatusUnprocessableEntity},
		{"misaligned", "2025-03-10T09:10:00", http.StatusUnprocessableEntity},
		{"past", "2025-03-01T10:00:00", http.StatusBadRequest},
		{"garbage", "next monday", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, ts.book(ts.alice, tt.when).Code)
		})
	}

	rec := ts.do(http.MethodPost, "/appointments", ts.patient(ts.alice), BookAppointmentRequest{ProviderID: "nope"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	fields := decode[ErrorResponse](t, rec).Fields
	assert.Contains(t, fields, "provider_id")
	assert.Contains(t, fields, "appointment_date_time")

	rec = ts.do(http.MethodPost, "/appointments", ts.providerActor(), BookAppointmentRequest{
		ProviderID:          ts.provider.ID.String(),
		AppointmentDateTime: "2025-03-10T10:00:00",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestBookAppointment_ClinicOnBehalf(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.configureMondays()
	clinic := &appointment.Actor{ID: uuid.New(), Role: appointment.RoleClinic}

	rec := ts.do(http.MethodPost, "/appointments", clinic, BookAppointmentRequest{
		ProviderID:          ts.provider.ID.String(),
		AppointmentDateTime: "2025-03-10T09:00:00",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPost, "/appointments", clinic, BookAppointmentRequest{
		ProviderID:          ts.provider.ID.String(),
		AppointmentDateTime: "2025-03-10T09:00:00",
		PatientID:           ts.bob.ID.String(),
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, ts.bob.ID, decode[AppointmentResponse](t, rec).PatientID)
}

func TestCancelPromotesWaitlist(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.configureMondays()
	appt := decode[AppointmentResponse](t, ts.book(ts.alice, "2025-03-10T10:00:00"))

	rec := ts.do(http.MethodPost, "/waitlist", ts.patient(ts.bob), JoinWaitlistRequest{
		ProviderID:    ts.provider.ID.String(),
		PreferredDate: "2025-03-10",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(http.MethodGet, "/providers/"+ts.provider.ID.String()+"/waitlist?date=2025-03-10", ts.providerActor(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[[]WaitlistEntryResponse](t, rec), 1)

	rec = ts.do(http.MethodPost, "/appointments/"+appt.ID.String()+"/cancel", ts.patient(ts.bob), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(http.MethodPost, "/appointments/"+appt.ID.String()+"/cancel", ts.patient(ts.alice), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	change := decode[StatusChangeResponse](t, rec)
	assert.Equal(t, string(appointment.StatusCancelledByPatient), change.Appointment.Status)
	assert.Equal(t, string(appointment.StatusScheduled), change.PreviousStatus)
	require.NotNil(t, change.Promoted)
	assert.Equal(t, ts.bob.ID, change.Promoted.PatientID)
	assert.True(t, change.Promoted.ScheduledAt.Equal(appt.ScheduledAt))

	rec = ts.do(http.MethodGet, "/providers/"+ts.provider.ID.String()+"/waitlist?date=2025-03-10", ts.providerActor(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]WaitlistEntryResponse](t, rec))
}

func TestUpdateStatus(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.configureMondays()
	appt := decode[AppointmentResponse](t, ts.book(ts.alice, "2025-03-10T10:00:00"))
	path := "/appointments/" + appt.ID.String() + "/status"

	rec := ts.do(http.MethodPatch, path, ts.patient(ts.alice), UpdateStatusRequest{Status: "confirmed_by_provider"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(http.MethodPatch, path, ts.providerActor(), UpdateStatusRequest{Status: "SCHEDULED"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPatch, path, ts.providerActor(), UpdateStatusRequest{Status: "confirmed_by_provider"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, string(appointment.StatusConfirmedByProvider), decode[StatusChangeResponse](t, rec).Appointment.Status)

	rec = ts.do(http.MethodPost, "/appointments/"+appt.ID.String()+"/cancel", ts.patient(ts.alice), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestReschedule(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.configureMondays()
	appt := decode[AppointmentResponse](t, ts.book(ts.alice, "2025-03-10T10:00:00"))
	ts.book(ts.bob, "2025-03-10T11:00:00")
	path := "/appointments/" + appt.ID.String() + "/reschedule"

	rec := ts.do(http.MethodPut, path, ts.patient(ts.alice), RescheduleRequest{NewDateTime: "2025-03-10T11:00:00"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(http.MethodPut, path, ts.patient(ts.alice), RescheduleRequest{NewDateTime: "2025-03-10T09:30:00"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	moved := decode[AppointmentResponse](t, rec)
	assert.Equal(t, appt.ID, moved.ID)
	assert.True(t, moved.ScheduledAt.Equal(time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)))
}

func TestGetAndListAppointments(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.configureMondays()
	appt := decode[AppointmentResponse](t, ts.book(ts.alice, "2025-03-10T10:00:00"))

	rec := ts.do(http.MethodGet, "/appointments/"+appt.ID.String(), ts.patient(ts.alice), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[AppointmentDetailResponse](t, rec)
	assert.Equal(t, "Alice", detail.PatientName)
	assert.Equal(t, "Gregory House", detail.ProviderName)

	rec = ts.do(http.MethodGet, "/appointments/"+appt.ID.String(), ts.patient(ts.bob), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = ts.do(http.MethodGet, "/appointments/"+uuid.NewString(), ts.providerActor(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = ts.do(http.MethodGet, "/appointments/not-a-uuid", ts.providerActor(), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodGet, "/appointments", ts.patient(ts.alice), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]AppointmentResponse](t, rec), 1)

	rec = ts.do(http.MethodGet, "/appointments?upcoming=true", ts.providerActor(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]AppointmentResponse](t, rec), 1)

	clinic := &appointment.Actor{ID: uuid.New(), Role: appointment.RoleClinic}
	rec = ts.do(http.MethodGet, "/appointments", clinic, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(http.MethodGet, "/appointments?patient_id="+ts.bob.ID.String(), clinic, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]AppointmentResponse](t, rec))
}

func TestConsultationNotes(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.configureMondays()
	appt := decode[AppointmentResponse](t, ts.book(ts.alice, "2025-03-10T10:00:00"))
	path := "/appointments/" + appt.ID.String() + "/notes"
	body := AddConsultationNoteRequest{Diagnosis: "migraine", Prescription: "ibuprofen 400mg"}

	rec := ts.do(http.MethodPost, path, ts.providerActor(), body)
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	for _, status := range []string{"confirmed_by_provider", "completed"} {
		rec = ts.do(http.MethodPatch, "/appointments/"+appt.ID.String()+"/status", ts.providerActor(), UpdateStatusRequest{Status: status})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec = ts.do(http.MethodPost, path, ts.providerActor(), AddConsultationNoteRequest{Diagnosis: "migraine"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Fields, "prescription")

	rec = ts.do(http.MethodPost, path, ts.patient(ts.alice), body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(http.MethodPost, path, ts.providerActor(), body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	note := decode[ConsultationNoteResponse](t, rec)
	assert.Equal(t, appt.ID, note.AppointmentID)
	assert.Equal(t, "migraine", note.Diagnosis)

	rec = ts.do(http.MethodPost, path, ts.providerActor(), body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_state_transition", decode[ErrorResponse](t, rec).Error)

	rec = ts.do(http.MethodGet, path, ts.patient(ts.alice), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, note.ID, decode[ConsultationNoteResponse](t, rec).ID)

	rec = ts.do(http.MethodGet, path, ts.patient(ts.bob), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(http.MethodGet, "/appointments/"+appt.ID.String(), ts.patient(ts.alice), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[AppointmentDetailResponse](t, rec)
	require.NotNil(t, detail.ConsultationNoteID)
	assert.Equal(t, note.ID, *detail.ConsultationNoteID)
}

func TestScheduleBusy(t *testing.T) {
	ts := newTestServer(t, failingLocker{err: redisclient.ErrLockNotAcquired})

	rec := ts.book(ts.alice, "2025-03-10T10:00:00")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code, rec.Body.String())
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, "schedule_busy", decode[ErrorResponse](t, rec).Error)
}

func TestWriteServiceError_HidesInternalDetail(t *testing.T) {
	log, hook := test.NewNullLogger()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	writeServiceError(rec, req, log, errors.New("pq: connection refused"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "request failed", hook.LastEntry().Message)
}

func TestParseDateTime(t *testing.T) {
	plus2 := time.FixedZone("UTC+2", 2*60*60)

	got, err := parseDateTime("2025-03-10T10:00:00", plus2)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)))

	got, err = parseDateTime("2025-03-10T10:00:00Z", plus2)
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)))

	_, err = parseDateTime("10/03/2025 10:00", plus2)
	assert.Error(t, err)
}
