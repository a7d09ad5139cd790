package appointment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/clinic-scheduling/internal/notify"
)

// CancelAppointment is the patient cancellation path. Only appointments the
// provider has not confirmed yet can be cancelled this way. The freed slot is
// offered to the waitlist in the same critical section.
func (s *Service) CancelAppointment(ctx context.Context, appointmentID, patientID uuid.UUID) (*StatusChange, error) {
	return s.UpdateStatus(ctx, appointmentID, Actor{ID: patientID, Role: RolePatient}, StatusCancelledByPatient)
}

// UpdateStatus moves an appointment through its lifecycle on behalf of actor.
// A move into a cancelled status promotes the oldest waitlist entry for the
// provider and day into the freed slot.
func (s *Service) UpdateStatus(ctx context.Context, appointmentID uuid.UUID, actor Actor, to Status) (*StatusChange, error) {
	if !to.Valid() {
		return nil, invalidInput("unknown appointment status %q", to)
	}

	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if err := authorizeTransition(appt, actor, to); err != nil {
		return nil, err
	}

	change := &StatusChange{}
	var entry *WaitlistEntry

	err = s.withProviderSchedule(ctx, appt.ProviderID, func(txCtx context.Context) error {
		current, err := s.repo.GetAppointmentByID(txCtx, appointmentID)
		if err != nil {
			return err
		}
		if err := authorizeTransition(current, actor, to); err != nil {
			return err
		}

		updated, err := s.repo.UpdateAppointmentStatus(txCtx, current.ID, current.Status, to)
		if err != nil {
			return err
		}
		change.Appointment = updated
		change.From = current.Status

		if to.IsCancelled() {
			change.Promoted, entry, err = s.promote(txCtx, updated)
			if err != nil {
				return fmt.Errorf("promote waitlist: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	updated := change.Appointment
	s.log.WithFields(logrus.Fields{
		"appointment_id": updated.ID,
		"actor_role":     actor.Role,
		"from":           change.From,
		"to":             updated.Status,
	}).Info("appointment status changed")

	s.logEvent(ctx, updated.ID, EventAppointmentStatus, map[string]any{
		"actor_id":   actor.ID.String(),
		"actor_role": string(actor.Role),
		"from":       string(change.From),
		"to":         string(updated.Status),
	})

	switch to {
	case StatusConfirmedByProvider:
		s.send(ctx, notify.KindProviderConfirmed, toPatient, updated, nil)
	case StatusCancelledByPatient:
		s.send(ctx, notify.KindCancellation, toProvider, updated, nil)
	case StatusCancelledByProvider:
		kind := notify.KindCancellation
		if change.From == StatusScheduled {
			kind = notify.KindProviderDeclined
		}
		s.send(ctx, kind, toPatient, updated, nil)
	}

	if change.Promoted != nil {
		s.log.WithFields(logrus.Fields{
			"appointment_id":   change.Promoted.ID,
			"patient_id":       change.Promoted.PatientID,
			"waitlist_entry":   entry.ID,
			"freed_from":       updated.ID,
			"scheduled_at":     change.Promoted.ScheduledAt,
			"waitlist_created": entry.CreatedAt,
		}).Info("waitlist entry promoted")

		s.logEvent(ctx, change.Promoted.ID, EventWaitlistPromoted, map[string]any{
			"waitlist_entry_id": entry.ID.String(),
			"freed_from":        updated.ID.String(),
		})
		s.send(ctx, notify.KindWaitlistPromotion, toPatient, change.Promoted, nil)
	}

	return change, nil
}

// promote hands the slot freed by cancelled to the oldest waitlist entry for
// that provider and day. It must run inside the provider's critical section.
// Slots in the past are not handed out, and the patient who held the slot is
// passed over; their entry stays queued for other openings that day.
func (s *Service) promote(ctx context.Context, cancelled *Appointment) (*Appointment, *WaitlistEntry, error) {
	if !cancelled.ScheduledAt.After(s.now()) {
		return nil, nil, nil
	}

	date := DateOf(cancelled.ScheduledAt, s.loc)
	entries, err := s.repo.ListWaitlist(ctx, cancelled.ProviderID, date)
	if err != nil {
		return nil, nil, err
	}
	next := -1
	for i := range entries {
		if entries[i].PatientID != cancelled.PatientID {
			next = i
			break
		}
	}
	if next < 0 {
		return nil, nil, nil
	}

	holder, err := s.repo.FindOccupyingAppointment(ctx, cancelled.ProviderID, cancelled.ScheduledAt)
	if err != nil {
		return nil, nil, err
	}
	if holder != nil {
		s.log.WithFields(logrus.Fields{
			"provider_id":  cancelled.ProviderID,
			"scheduled_at": cancelled.ScheduledAt,
			"holder":       holder.ID,
		}).Warn("freed slot already taken, skipping waitlist promotion")
		return nil, nil, nil
	}

	entry := entries[next]
	promoted := &Appointment{
		PatientID:   entry.PatientID,
		ProviderID:  cancelled.ProviderID,
		ScheduledAt: cancelled.ScheduledAt,
		Status:      StatusScheduled,
	}
	if err := s.repo.CreateAppointment(ctx, promoted); err != nil {
		return nil, nil, err
	}
	if err := s.repo.DeleteWaitlistEntry(ctx, entry.ID); err != nil {
		return nil, nil, err
	}
	return promoted, &entry, nil
}
