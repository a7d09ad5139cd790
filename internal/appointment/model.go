package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RolePatient  Role = "patient"
	RoleProvider Role = "provider"
	// RoleClinic is front-desk staff acting on behalf of the clinic.
	RoleClinic Role = "clinic"
)

func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleProvider, RoleClinic:
		return true
	}
	return false
}

// Actor is the resolved identity supplied by the caller. It is trusted as-is;
// only ownership is checked here.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

type SlotStatus string

const (
	SlotAvailable SlotStatus = "AVAILABLE"
	SlotBooked    SlotStatus = "BOOKED"
)

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Provider struct {
	ID                  uuid.UUID
	Name                string
	Specialty           *string
	Email               *string
	SlotDurationMinutes *int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// AvailabilityRule is one recurring weekly open-hours interval.
type AvailabilityRule struct {
	ID         uuid.UUID
	ProviderID uuid.UUID
	Weekday    time.Weekday
	Start      TimeOfDay
	End        TimeOfDay
}

// WeeklyAvailability is the full schedule configuration of a provider.
// A nil SlotDurationMinutes means the provider has not configured a schedule.
type WeeklyAvailability struct {
	ProviderID          uuid.UUID
	SlotDurationMinutes *int
	Rules               []AvailabilityRule
}

type Appointment struct {
	ID                 uuid.UUID
	PatientID          uuid.UUID
	ProviderID         uuid.UUID
	ScheduledAt        time.Time
	Status             Status
	ConsultationNoteID *uuid.UUID
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ConsultationNote is the provider's record of a completed visit. An
// appointment has at most one.
type ConsultationNote struct {
	ID               uuid.UUID
	AppointmentID    uuid.UUID
	ProviderID       uuid.UUID
	Diagnosis        string
	Prescription     string
	TreatmentDetails *string
	Remarks          *string
	CreatedAt        time.Time
}

// WaitlistEntry is ordered FIFO by CreatedAt within a (provider, date) group.
// PreferredDate is a civil date stored as midnight UTC.
type WaitlistEntry struct {
	ID            uuid.UUID
	PatientID     uuid.UUID
	ProviderID    uuid.UUID
	PreferredDate time.Time
	CreatedAt     time.Time
}

// Slot is computed on demand and never stored.
type Slot struct {
	Start  time.Time
	End    time.Time
	Status SlotStatus
}

type DaySlots struct {
	Date  time.Time
	Slots []Slot
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// AppointmentDetail is an appointment hydrated with its parties.
type AppointmentDetail struct {
	Appointment
	Patient  *Patient
	Provider *Provider
}

// StatusChange reports the appointment after a status change and, when the
// change freed the slot and the waitlist had a candidate, the appointment
// created for the promoted patient.
type StatusChange struct {
	Appointment *Appointment
	From        Status
	Promoted    *Appointment
}
