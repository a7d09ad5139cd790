package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/notify"
)

// SendReminders queues a reminder for every scheduled appointment on the next
// civil day in the clinic zone. It returns how many were queued.
func (s *Service) SendReminders(ctx context.Context) (int, error) {
	local := s.now().In(s.loc)
	from := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, s.loc)
	to := time.Date(local.Year(), local.Month(), local.Day()+2, 0, 0, 0, 0, s.loc)

	due, err := s.repo.ListAppointmentsByStatusBetween(ctx, StatusScheduled, from, to)
	if err != nil {
		return 0, fmt.Errorf("find appointments due tomorrow: %w", err)
	}

	for i := range due {
		appt := &due[i]
		s.send(ctx, notify.KindReminder, toPatient, appt, nil)
		s.logEvent(ctx, appt.ID, EventReminderSent, map[string]any{"reason": "worker"})
	}

	s.log.WithField("count", len(due)).Info("appointment reminders queued")
	return len(due), nil
}

// SendReminder queues a reminder for one scheduled appointment on request of
// its provider or clinic staff.
func (s *Service) SendReminder(ctx context.Context, actor Actor, appointmentID uuid.UUID) error {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return fmt.Errorf("load appointment: %w", err)
	}
	if err := authorizeProviderAccess(actor, appt.ProviderID); err != nil {
		return err
	}
	if appt.Status != StatusScheduled {
		return fmt.Errorf("%w: reminders are only sent for scheduled appointments, this one is %s", ErrInvalidStateTransition, appt.Status)
	}

	s.send(ctx, notify.KindReminder, toPatient, appt, nil)
	s.logEvent(ctx, appt.ID, EventReminderSent, map[string]any{
		"reason":   "manual",
		"actor_id": actor.ID.String(),
	})
	return nil
}
