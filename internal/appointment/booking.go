package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/clinic-scheduling/internal/notify"
)

// BookAppointment reserves the slot starting at at for the patient.
//
// Checks run in a fixed order: the time must be in the future, then the
// (provider, at) pair must be free (ErrDuplicateBooking when the same patient
// already holds it, *SlotConflictError otherwise), then at must start a slot
// of the provider's weekly availability. The check and the insert happen
// under the provider's schedule lock so two requests for one slot cannot
// both succeed.
func (s *Service) BookAppointment(ctx context.Context, patientID, providerID uuid.UUID, at time.Time) (*Appointment, error) {
	if !at.After(s.now()) {
		return nil, invalidInput("appointment time must be in the future")
	}

	if _, err := s.repo.GetPatientByID(ctx, patientID); err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}
	if _, err := s.repo.GetProviderByID(ctx, providerID); err != nil {
		return nil, fmt.Errorf("load provider: %w", err)
	}

	var created *Appointment

	err := s.withProviderSchedule(ctx, providerID, func(txCtx context.Context) error {
		if err := s.checkSlot(txCtx, providerID, patientID, uuid.Nil, at); err != nil {
			return err
		}

		appt := &Appointment{
			PatientID:   patientID,
			ProviderID:  providerID,
			ScheduledAt: at.UTC(),
			Status:      StatusScheduled,
		}
		if err := s.repo.CreateAppointment(txCtx, appt); err != nil {
			return err
		}
		created = appt
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"appointment_id": created.ID,
		"patient_id":     patientID,
		"provider_id":    providerID,
		"scheduled_at":   created.ScheduledAt,
	}).Info("appointment booked")

	s.logEvent(ctx, created.ID, EventAppointmentBooked, map[string]any{
		"patient_id":   patientID.String(),
		"provider_id":  providerID.String(),
		"scheduled_at": created.ScheduledAt,
	})
	s.send(ctx, notify.KindBookingConfirmation, toPatient, created, nil)

	return created, nil
}

// authorizeReschedule applies ownership and status rules for moving an
// appointment. Patients may only move appointments the provider has not
// confirmed yet.
func authorizeReschedule(appt *Appointment, actor Actor) error {
	switch actor.Role {
	case RolePatient:
		if appt.PatientID != actor.ID {
			return ErrUnauthorized
		}
		if appt.Status != StatusScheduled {
			return fmt.Errorf("%w: cannot reschedule a %s appointment, please contact the clinic", ErrInvalidStateTransition, appt.Status)
		}
	case RoleProvider, RoleClinic:
		if actor.Role == RoleProvider && appt.ProviderID != actor.ID {
			return ErrUnauthorized
		}
		if appt.Status != StatusScheduled && appt.Status != StatusConfirmedByProvider {
			return fmt.Errorf("%w: cannot reschedule a %s appointment", ErrInvalidStateTransition, appt.Status)
		}
	default:
		return ErrUnauthorized
	}
	return nil
}

// RescheduleAppointment moves an appointment to newAt with the same provider.
// The appointment keeps its identity and status. Moving it to its current
// start is a successful no-op.
func (s *Service) RescheduleAppointment(ctx context.Context, appointmentID uuid.UUID, actor Actor, newAt time.Time) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if err := authorizeReschedule(appt, actor); err != nil {
		return nil, err
	}

	var (
		updated *Appointment
		oldAt   time.Time
		moved   bool
	)

	err = s.withProviderSchedule(ctx, appt.ProviderID, func(txCtx context.Context) error {
		current, err := s.repo.GetAppointmentByID(txCtx, appointmentID)
		if err != nil {
			return err
		}
		if err := authorizeReschedule(current, actor); err != nil {
			return err
		}
		if current.ScheduledAt.Equal(newAt) {
			updated = current
			return nil
		}
		if !newAt.After(s.now()) {
			return invalidInput("new appointment time must be in the future")
		}
		if err := s.checkSlot(txCtx, current.ProviderID, current.PatientID, current.ID, newAt); err != nil {
			return err
		}

		oldAt = current.ScheduledAt
		updated, err = s.repo.UpdateAppointmentTime(txCtx, current.ID, current.ProviderID, newAt.UTC())
		if err != nil {
			return err
		}
		moved = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !moved {
		return updated, nil
	}

	s.log.WithFields(logrus.Fields{
		"appointment_id": updated.ID,
		"actor_role":     actor.Role,
		"from":           oldAt,
		"to":             updated.ScheduledAt,
	}).Info("appointment rescheduled")

	s.logEvent(ctx, updated.ID, EventAppointmentRescheduled, map[string]any{
		"actor_id":   actor.ID.String(),
		"actor_role": string(actor.Role),
		"from":       oldAt,
		"to":         updated.ScheduledAt,
	})

	old := oldAt.In(s.loc)
	extra := map[string]string{
		"old_date": old.Format("2006-01-02"),
		"old_time": old.Format("15:04"),
	}
	if actor.Role == RolePatient {
		s.send(ctx, notify.KindReschedule, toProvider, updated, extra)
	} else {
		s.send(ctx, notify.KindReschedule, toPatient, updated, extra)
	}

	return updated, nil
}
