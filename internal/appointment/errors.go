package appointment

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Error kinds. Every error returned by the Service wraps exactly one of these
// so the request layer can map it with errors.Is.
var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrSlotConflict           = errors.New("slot is already booked by another patient")
	ErrDuplicateBooking       = errors.New("patient already holds this slot")
	ErrOutsideAvailability    = errors.New("requested time is outside the provider's availability")
	ErrNotFound               = errors.New("not found")
	ErrUnauthorized           = errors.New("not allowed for this requester")
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrScheduleBusy is transient: the provider's schedule lock could not be
	// obtained in time. Callers may retry.
	ErrScheduleBusy = errors.New("provider schedule is busy, please retry")
)

var (
	ErrPatientNotFound       = fmt.Errorf("patient %w", ErrNotFound)
	ErrProviderNotFound      = fmt.Errorf("provider %w", ErrNotFound)
	ErrAppointmentNotFound   = fmt.Errorf("appointment %w", ErrNotFound)
	ErrWaitlistEntryNotFound = fmt.Errorf("waitlist entry %w", ErrNotFound)
	ErrNoteNotFound          = fmt.Errorf("consultation note %w", ErrNotFound)

	ErrNoteExists = fmt.Errorf("%w: a consultation note already exists for this appointment", ErrInvalidStateTransition)
)

// SlotConflictError is returned when another patient holds the requested
// slot. WaitlistOffered tells the caller it may join the waitlist for that day.
type SlotConflictError struct {
	ProviderID      uuid.UUID
	At              time.Time
	WaitlistOffered bool
}

func (e *SlotConflictError) Error() string {
	return fmt.Sprintf("slot %s for provider %s is already booked", e.At.Format(time.RFC3339), e.ProviderID)
}

func (e *SlotConflictError) Unwrap() error {
	return ErrSlotConflict
}

// TransitionError describes a rejected status change.
type TransitionError struct {
	From   Status
	To     Status
	Reason string
}

func (e *TransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot move appointment from %s to %s: %s", e.From, e.To, e.Reason)
	}
	return fmt.Sprintf("cannot move appointment from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidStateTransition
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// IsClientError returns true if the error is caused by the request rather
// than by the system.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrSlotConflict) ||
		errors.Is(err, ErrDuplicateBooking) ||
		errors.Is(err, ErrOutsideAvailability) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrInvalidStateTransition) ||
		errors.Is(err, ErrNotFound)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsRetryable(err error) bool {
	return errors.Is(err, ErrScheduleBusy)
}
