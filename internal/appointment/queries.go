package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GetAppointment returns the appointment with its patient and provider. Only
// the two parties and clinic staff may read it.
func (s *Service) GetAppointment(ctx context.Context, actor Actor, id uuid.UUID) (*AppointmentDetail, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}

	if err := authorizeParty(actor, appt); err != nil {
		return nil, err
	}

	detail := &AppointmentDetail{Appointment: *appt}
	if detail.Patient, err = s.repo.GetPatientByID(ctx, appt.PatientID); err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}
	if detail.Provider, err = s.repo.GetProviderByID(ctx, appt.ProviderID); err != nil {
		return nil, fmt.Errorf("load provider: %w", err)
	}
	return detail, nil
}

// authorizeParty admits the appointment's patient, its provider and clinic
// staff.
func authorizeParty(actor Actor, appt *Appointment) error {
	switch actor.Role {
	case RolePatient:
		if appt.PatientID == actor.ID {
			return nil
		}
	case RoleProvider:
		if appt.ProviderID == actor.ID {
			return nil
		}
	case RoleClinic:
		return nil
	}
	return ErrUnauthorized
}

// ListPatientAppointments returns the patient's appointments, newest first.
func (s *Service) ListPatientAppointments(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	limit, offset = clampPage(limit, offset)

	appointments, err := s.repo.ListPatientAppointments(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appointments, nil
}

// ListProviderAppointments returns the provider's appointments in start
// order. With upcomingOnly set, appointments that already started are left out.
func (s *Service) ListProviderAppointments(ctx context.Context, providerID uuid.UUID, upcomingOnly bool, limit, offset int) ([]Appointment, error) {
	limit, offset = clampPage(limit, offset)

	if _, err := s.repo.GetProviderByID(ctx, providerID); err != nil {
		return nil, fmt.Errorf("load provider: %w", err)
	}

	var from *time.Time
	if upcomingOnly {
		now := s.now()
		from = &now
	}

	appointments, err := s.repo.ListProviderAppointments(ctx, providerID, from, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by provider: %w", err)
	}
	return appointments, nil
}
