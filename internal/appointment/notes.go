package appointment

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const maxNoteFieldLength = 10000

// NoteInput is the provider's consultation record. Diagnosis and prescription
// are required.
type NoteInput struct {
	Diagnosis        string
	Prescription     string
	TreatmentDetails string
	Remarks          string
}

func (in NoteInput) validate() error {
	if strings.TrimSpace(in.Diagnosis) == "" {
		return invalidInput("diagnosis cannot be blank")
	}
	if strings.TrimSpace(in.Prescription) == "" {
		return invalidInput("prescription cannot be blank")
	}
	for name, v := range map[string]string{
		"diagnosis":         in.Diagnosis,
		"prescription":      in.Prescription,
		"treatment details": in.TreatmentDetails,
		"remarks":           in.Remarks,
	} {
		if len(v) > maxNoteFieldLength {
			return invalidInput("%s must be at most %d characters", name, maxNoteFieldLength)
		}
	}
	return nil
}

func optionalText(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// AddConsultationNote records the provider's note for a completed
// appointment. Only the appointment's own provider may write it, and only
// once.
func (s *Service) AddConsultationNote(ctx context.Context, actor Actor, appointmentID uuid.UUID, in NoteInput) (*ConsultationNote, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if actor.Role != RoleProvider || appt.ProviderID != actor.ID {
		return nil, ErrUnauthorized
	}

	var note *ConsultationNote
	err = s.withProviderSchedule(ctx, appt.ProviderID, func(txCtx context.Context) error {
		current, err := s.repo.GetAppointmentByID(txCtx, appointmentID)
		if err != nil {
			return err
		}
		if current.Status != StatusCompleted {
			return fmt.Errorf("%w: consultation notes can only be added to completed appointments, this one is %s",
				ErrInvalidStateTransition, current.Status)
		}
		if current.ConsultationNoteID != nil {
			return ErrNoteExists
		}

		note = &ConsultationNote{
			AppointmentID:    current.ID,
			ProviderID:       current.ProviderID,
			Diagnosis:        strings.TrimSpace(in.Diagnosis),
			Prescription:     strings.TrimSpace(in.Prescription),
			TreatmentDetails: optionalText(in.TreatmentDetails),
			Remarks:          optionalText(in.Remarks),
		}
		return s.repo.CreateConsultationNote(txCtx, note)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"appointment_id": appointmentID,
		"provider_id":    appt.ProviderID,
		"note_id":        note.ID,
	}).Info("consultation note added")

	s.logEvent(ctx, appointmentID, EventConsultationNoteAdded, map[string]any{
		"note_id":     note.ID.String(),
		"provider_id": appt.ProviderID.String(),
	})
	return note, nil
}

// GetConsultationNote returns the note of an appointment to either party or
// clinic staff.
func (s *Service) GetConsultationNote(ctx context.Context, actor Actor, appointmentID uuid.UUID) (*ConsultationNote, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if err := authorizeParty(actor, appt); err != nil {
		return nil, err
	}

	note, err := s.repo.GetConsultationNote(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("get consultation note: %w", err)
	}
	return note, nil
}
