package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/clinic-scheduling/internal/notify"
)

// JoinWaitlist queues the patient for any slot of the provider that frees up
// on date. Joining twice for the same provider and day returns the existing
// entry and keeps its place in the queue.
func (s *Service) JoinWaitlist(ctx context.Context, patientID, providerID uuid.UUID, date time.Time) (*WaitlistEntry, error) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	if day.Before(DateOf(s.now(), s.loc)) {
		return nil, invalidInput("preferred date %s is in the past", day.Format("2006-01-02"))
	}

	if _, err := s.repo.GetPatientByID(ctx, patientID); err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}
	if _, err := s.repo.GetProviderByID(ctx, providerID); err != nil {
		return nil, fmt.Errorf("load provider: %w", err)
	}

	var (
		entry  *WaitlistEntry
		joined bool
	)
	err := s.withProviderSchedule(ctx, providerID, func(txCtx context.Context) error {
		queue, err := s.repo.ListWaitlist(txCtx, providerID, day)
		if err != nil {
			return err
		}
		for i := range queue {
			if queue[i].PatientID == patientID {
				entry = &queue[i]
				return nil
			}
		}

		entry = &WaitlistEntry{
			PatientID:     patientID,
			ProviderID:    providerID,
			PreferredDate: day,
		}
		joined = true
		return s.repo.CreateWaitlistEntry(txCtx, entry)
	})
	if err != nil {
		return nil, err
	}

	if joined {
		s.log.WithFields(logrus.Fields{
			"waitlist_entry": entry.ID,
			"patient_id":     patientID,
			"provider_id":    providerID,
			"date":           day.Format("2006-01-02"),
		}).Info("patient joined waitlist")

		s.logEvent(ctx, uuid.Nil, EventWaitlistJoined, map[string]any{
			"waitlist_entry_id": entry.ID.String(),
			"patient_id":        patientID.String(),
			"provider_id":       providerID.String(),
			"date":              day.Format("2006-01-02"),
		})
	}
	return entry, nil
}

// ListWaitlist returns the queue for one provider and day, oldest first.
func (s *Service) ListWaitlist(ctx context.Context, actor Actor, providerID uuid.UUID, date time.Time) ([]WaitlistEntry, error) {
	if err := authorizeProviderAccess(actor, providerID); err != nil {
		return nil, err
	}
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)

	entries, err := s.repo.ListWaitlist(ctx, providerID, day)
	if err != nil {
		return nil, fmt.Errorf("list waitlist: %w", err)
	}
	return entries, nil
}

// NotifyWaitlistEntry lets a provider tell a waitlisted patient about an
// opening by hand. The entry leaves the queue once the message is queued.
func (s *Service) NotifyWaitlistEntry(ctx context.Context, actor Actor, entryID uuid.UUID) error {
	entry, err := s.repo.GetWaitlistEntry(ctx, entryID)
	if err != nil {
		return fmt.Errorf("load waitlist entry: %w", err)
	}
	if err := authorizeProviderAccess(actor, entry.ProviderID); err != nil {
		return err
	}

	err = s.withProviderSchedule(ctx, entry.ProviderID, func(txCtx context.Context) error {
		return s.repo.DeleteWaitlistEntry(txCtx, entry.ID)
	})
	if err != nil {
		return err
	}

	patient, err := s.repo.GetPatientByID(ctx, entry.PatientID)
	if err != nil {
		return fmt.Errorf("load patient: %w", err)
	}
	provider, err := s.repo.GetProviderByID(ctx, entry.ProviderID)
	if err != nil {
		return fmt.Errorf("load provider: %w", err)
	}

	s.logEvent(ctx, uuid.Nil, EventWaitlistNotified, map[string]any{
		"waitlist_entry_id": entry.ID.String(),
		"patient_id":        entry.PatientID.String(),
	})

	if patient.Email == nil || *patient.Email == "" {
		s.log.WithField("patient_id", patient.ID).Warn("waitlisted patient has no email, opening not sent")
		return nil
	}
	s.notifier.Notify(notify.Notification{
		Kind:      notify.KindWaitlistOpening,
		Recipient: *patient.Email,
		Fields: map[string]string{
			"patient_name":  patient.Name,
			"provider_name": provider.Name,
			"date":          entry.PreferredDate.Format("2006-01-02"),
		},
		CreatedAt: s.now().UTC(),
	})
	return nil
}

// authorizeProviderAccess allows the provider themself and clinic staff.
func authorizeProviderAccess(actor Actor, providerID uuid.UUID) error {
	switch actor.Role {
	case RoleClinic:
		return nil
	case RoleProvider:
		if actor.ID == providerID {
			return nil
		}
	}
	return ErrUnauthorized
}
