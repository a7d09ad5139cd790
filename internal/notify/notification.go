package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindBookingConfirmation Kind = "booking_confirmation"
	KindReschedule          Kind = "reschedule"
	KindCancellation        Kind = "cancellation"
	KindProviderConfirmed   Kind = "provider_confirmed"
	KindProviderDeclined    Kind = "provider_declined"
	KindWaitlistPromotion   Kind = "waitlist_promotion"
	KindWaitlistOpening     Kind = "waitlist_opening"
	KindReminder            Kind = "reminder"
)

// Notification is a patient or provider facing message produced by a
// scheduling operation. Fields carries the template values (names, date,
// time, previous date/time for reschedules).
type Notification struct {
	Kind          Kind              `json:"kind"`
	Recipient     string            `json:"recipient"`
	AppointmentID uuid.UUID         `json:"appointment_id"`
	Fields        map[string]string `json:"fields,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// Notifier accepts notifications without blocking the caller. Delivery is
// best effort.
type Notifier interface {
	Notify(n Notification)
}

// Sender delivers one notification to a concrete channel.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// Discard drops everything. Used by tools that don't deliver messages.
type Discard struct{}

func (Discard) Notify(Notification) {}
