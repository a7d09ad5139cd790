package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SetWeeklyAvailability replaces the provider's slot duration and all weekly
// rules. Existing appointments are left untouched even when they no longer
// fall inside the new hours.
func (s *Service) SetWeeklyAvailability(ctx context.Context, actor Actor, providerID uuid.UUID, slotMinutes int, rules []AvailabilityRule) (*WeeklyAvailability, error) {
	if err := authorizeProviderAccess(actor, providerID); err != nil {
		return nil, err
	}
	if err := validateRules(slotMinutes, rules); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetProviderByID(ctx, providerID); err != nil {
		return nil, fmt.Errorf("load provider: %w", err)
	}

	var avail *WeeklyAvailability
	err := s.withProviderSchedule(ctx, providerID, func(txCtx context.Context) error {
		if err := s.repo.ReplaceWeeklyAvailability(txCtx, providerID, slotMinutes, rules); err != nil {
			return err
		}
		var err error
		avail, err = s.repo.GetWeeklyAvailability(txCtx, providerID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"provider_id":  providerID,
		"slot_minutes": slotMinutes,
		"rules":        len(rules),
	}).Info("weekly availability replaced")

	s.logEvent(ctx, uuid.Nil, EventAvailabilityReplaced, map[string]any{
		"provider_id":  providerID.String(),
		"slot_minutes": slotMinutes,
		"rules":        len(rules),
	})
	return avail, nil
}

func (s *Service) GetWeeklyAvailability(ctx context.Context, providerID uuid.UUID) (*WeeklyAvailability, error) {
	avail, err := s.repo.GetWeeklyAvailability(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("get availability: %w", err)
	}
	return avail, nil
}

// GetAvailableSlots projects the provider's availability over the next days
// civil dates, starting today in the clinic zone. days <= 0 means the
// configured default window.
func (s *Service) GetAvailableSlots(ctx context.Context, providerID uuid.UUID, days int) ([]DaySlots, error) {
	if days <= 0 {
		days = s.window
	}
	if days > MaxSlotWindowDays {
		return nil, invalidInput("window must be at most %d days", MaxSlotWindowDays)
	}

	avail, err := s.repo.GetWeeklyAvailability(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("get availability: %w", err)
	}

	now := s.now()
	local := now.In(s.loc)
	from := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)
	to := time.Date(local.Year(), local.Month(), local.Day()+days, 0, 0, 0, 0, s.loc)

	booked, err := s.repo.ListOccupyingAppointments(ctx, providerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list booked appointments: %w", err)
	}

	return ProjectSlots(*avail, booked, now, days, s.loc), nil
}
