package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/notify"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

const (
	EventAppointmentBooked      = "APPOINTMENT_BOOKED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentStatus      = "APPOINTMENT_STATUS_CHANGED"
	EventWaitlistJoined         = "WAITLIST_JOINED"
	EventWaitlistPromoted       = "WAITLIST_PROMOTED"
	EventWaitlistNotified       = "WAITLIST_NOTIFIED"
	EventReminderSent           = "REMINDER_SENT"
	EventAvailabilityReplaced   = "AVAILABILITY_REPLACED"
	EventConsultationNoteAdded  = "CONSULTATION_NOTE_ADDED"
)

const (
	MinSlotDurationMinutes = 10
	MaxSlotWindowDays      = 31

	defaultPageSize = 20
	maxPageSize     = 100
)

type Service struct {
	repo     Repository
	locker   redisclient.Locker
	notifier notify.Notifier
	log      *logrus.Logger
	loc      *time.Location
	window   int
	now      func() time.Time
}

type Option func(*Service)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation overrides the clinic time zone from config.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.loc = loc }
}

func NewService(repo Repository, locker redisclient.Locker, notifier notify.Notifier, log *logrus.Logger, cfg config.Config, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		locker:   locker,
		notifier: notifier,
		log:      log,
		loc:      cfg.Location(),
		window:   cfg.SlotWindowDays,
		now:      time.Now,
	}
	if s.window <= 0 {
		s.window = 7
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location is the clinic time zone used for weekdays and opening hours.
func (s *Service) Location() *time.Location {
	return s.loc
}

// withProviderSchedule runs fn holding the provider's schedule lock, inside
// one repository transaction.
func (s *Service) withProviderSchedule(ctx context.Context, providerID uuid.UUID, fn func(ctx context.Context) error) error {
	err := s.locker.WithProviderLock(ctx, providerID, func(lockCtx context.Context) error {
		return s.repo.WithTx(lockCtx, func(txCtx context.Context) error {
			if err := s.repo.LockProvider(txCtx, providerID); err != nil {
				return err
			}
			return fn(txCtx)
		})
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return fmt.Errorf("%w: provider %s", ErrScheduleBusy, providerID)
	}
	return err
}

// checkSlot verifies that at is free for patientID on the provider's
// schedule and aligned to an availability slot. self is excluded from the
// occupancy check so an appointment never conflicts with itself.
func (s *Service) checkSlot(ctx context.Context, providerID, patientID, self uuid.UUID, at time.Time) error {
	existing, err := s.repo.FindOccupyingAppointment(ctx, providerID, at)
	if err != nil {
		return fmt.Errorf("check slot: %w", err)
	}
	if existing != nil && existing.ID != self {
		if existing.PatientID == patientID {
			return fmt.Errorf("%w: appointment %s at %s", ErrDuplicateBooking, existing.ID, s.formatTime(at))
		}
		return &SlotConflictError{ProviderID: providerID, At: at, WaitlistOffered: true}
	}

	avail, err := s.repo.GetWeeklyAvailability(ctx, providerID)
	if err != nil {
		return fmt.Errorf("load availability: %w", err)
	}
	if !IsBookableStart(*avail, at, s.loc) {
		return fmt.Errorf("%w: %s is not an open slot", ErrOutsideAvailability, s.formatTime(at))
	}
	return nil
}

func (s *Service) formatTime(t time.Time) string {
	return t.In(s.loc).Format("2006-01-02 15:04")
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.WithError(err).Warnf("failed to marshal event payload for %s", eventType)
		data = nil
	}

	ev := EventLog{
		EventType: eventType,
		Payload:   data,
		CreatedAt: s.now().UTC(),
	}
	if appointmentID != uuid.Nil {
		apptID := appointmentID
		ev.AppointmentID = &apptID
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.WithError(err).Warnf("failed to insert event log %s for appointment %s", eventType, appointmentID)
	}
}

type audience int

const (
	toPatient audience = iota
	toProvider
)

// send builds and enqueues one notification. Missing contact data is logged
// and skipped; it never fails the calling operation.
func (s *Service) send(ctx context.Context, kind notify.Kind, to audience, appt *Appointment, extra map[string]string) {
	patient, err := s.repo.GetPatientByID(ctx, appt.PatientID)
	if err != nil {
		s.log.WithError(err).Warnf("notification %s: load patient %s", kind, appt.PatientID)
		return
	}
	provider, err := s.repo.GetProviderByID(ctx, appt.ProviderID)
	if err != nil {
		s.log.WithError(err).Warnf("notification %s: load provider %s", kind, appt.ProviderID)
		return
	}

	recipient := patient.Email
	if to == toProvider {
		recipient = provider.Email
	}
	if recipient == nil || *recipient == "" {
		s.log.WithFields(logrus.Fields{
			"kind":           kind,
			"appointment_id": appt.ID,
		}).Debug("no recipient address, skipping notification")
		return
	}

	local := appt.ScheduledAt.In(s.loc)
	fields := map[string]string{
		"patient_name":  patient.Name,
		"provider_name": provider.Name,
		"date":          local.Format("2006-01-02"),
		"time":          local.Format("15:04"),
	}
	for k, v := range extra {
		fields[k] = v
	}

	s.notifier.Notify(notify.Notification{
		Kind:          kind,
		Recipient:     *recipient,
		AppointmentID: appt.ID,
		Fields:        fields,
		CreatedAt:     s.now().UTC(),
	})
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
