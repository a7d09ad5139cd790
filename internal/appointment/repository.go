package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains all DB interactions needed by the service.
//
// Writes that must be atomic run inside WithTx; every method called with the
// context passed to fn joins that transaction.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	// LockProvider takes a transaction-scoped lock on the provider's schedule.
	// It is a second line of defence behind the distributed Locker.
	LockProvider(ctx context.Context, providerID uuid.UUID) error

	CreatePatient(ctx context.Context, p *Patient) error
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	CreateProvider(ctx context.Context, p *Provider) error
	GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error)

	GetWeeklyAvailability(ctx context.Context, providerID uuid.UUID) (*WeeklyAvailability, error)
	// ReplaceWeeklyAvailability sets the slot duration and swaps all rules.
	ReplaceWeeklyAvailability(ctx context.Context, providerID uuid.UUID, slotMinutes int, rules []AvailabilityRule) error

	// For conflict checks. Returns nil, nil when no occupying appointment
	// starts at that instant.
	FindOccupyingAppointment(ctx context.Context, providerID uuid.UUID, at time.Time) (*Appointment, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// ErrSlotConflict is returned when the storage-level uniqueness check on
	// (provider, start) rejects the write.
	CreateAppointment(ctx context.Context, a *Appointment) error
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)
	// Moves the appointment only if it belongs to providerID.
	UpdateAppointmentTime(ctx context.Context, id, providerID uuid.UUID, at time.Time) (*Appointment, error)

	ListOccupyingAppointments(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Appointment, error)
	ListPatientAppointments(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListProviderAppointments(ctx context.Context, providerID uuid.UUID, from *time.Time, limit, offset int) ([]Appointment, error)
	ListAppointmentsByStatusBetween(ctx context.Context, status Status, from, to time.Time) ([]Appointment, error)

	// Waitlist, oldest first.
	CreateWaitlistEntry(ctx context.Context, e *WaitlistEntry) error
	GetWaitlistEntry(ctx context.Context, id uuid.UUID) (*WaitlistEntry, error)
	ListWaitlist(ctx context.Context, providerID uuid.UUID, date time.Time) ([]WaitlistEntry, error)
	DeleteWaitlistEntry(ctx context.Context, id uuid.UUID) error

	// CreateConsultationNote stores n and links it from its appointment.
	// ErrNoteExists is returned when the appointment already has a note.
	CreateConsultationNote(ctx context.Context, n *ConsultationNote) error
	GetConsultationNote(ctx context.Context, appointmentID uuid.UUID) (*ConsultationNote, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
