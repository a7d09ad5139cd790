package api

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

// Requests

type BookAppointmentRequest struct {
	ProviderID          string `json:"provider_id" validate:"required,uuid"`
	AppointmentDateTime string `json:"appointment_date_time" validate:"required"`
	// PatientID is only used by clinic staff booking on a patient's behalf.
	PatientID string `json:"patient_id,omitempty" validate:"omitempty,uuid"`
}

type RescheduleRequest struct {
	NewDateTime string `json:"new_date_time" validate:"required"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=confirmed_by_provider completed cancelled_by_patient cancelled_by_provider no_show"`
}

type JoinWaitlistRequest struct {
	ProviderID    string `json:"provider_id" validate:"required,uuid"`
	PreferredDate string `json:"preferred_date" validate:"required,datetime=2006-01-02"`
	PatientID     string `json:"patient_id,omitempty" validate:"omitempty,uuid"`
}

type AddConsultationNoteRequest struct {
	Diagnosis        string `json:"diagnosis" validate:"required,max=10000"`
	Prescription     string `json:"prescription" validate:"required,max=10000"`
	TreatmentDetails string `json:"treatment_details,omitempty" validate:"max=10000"`
	Remarks          string `json:"remarks,omitempty" validate:"max=10000"`
}

type AvailabilityRuleDTO struct {
	DayOfWeek string `json:"day_of_week" validate:"required"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
}

type SetAvailabilityRequest struct {
	SlotDurationMinutes int                   `json:"slot_duration_minutes" validate:"required,gte=10,lte=1440"`
	Rules               []AvailabilityRuleDTO `json:"rules" validate:"dive"`
}

// Responses

type AppointmentResponse struct {
	ID                 uuid.UUID  `json:"id"`
	PatientID          uuid.UUID  `json:"patient_id"`
	ProviderID         uuid.UUID  `json:"provider_id"`
	ScheduledAt        time.Time  `json:"scheduled_at"`
	Status             string     `json:"status"`
	ConsultationNoteID *uuid.UUID `json:"consultation_note_id,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

type AppointmentDetailResponse struct {
	AppointmentResponse
	PatientName  string  `json:"patient_name"`
	ProviderName string  `json:"provider_name"`
	Specialty    *string `json:"specialty,omitempty"`
}

type StatusChangeResponse struct {
	Appointment    AppointmentResponse  `json:"appointment"`
	PreviousStatus string               `json:"previous_status"`
	Promoted       *AppointmentResponse `json:"promoted_from_waitlist,omitempty"`
}

type SlotResponse struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Status string    `json:"status"`
}

type DaySlotsResponse struct {
	Date  string         `json:"date"`
	Slots []SlotResponse `json:"slots"`
}

type AvailabilityResponse struct {
	ProviderID          uuid.UUID             `json:"provider_id"`
	SlotDurationMinutes *int                  `json:"slot_duration_minutes"`
	Rules               []AvailabilityRuleDTO `json:"rules"`
}

type ConsultationNoteResponse struct {
	ID               uuid.UUID `json:"id"`
	AppointmentID    uuid.UUID `json:"appointment_id"`
	ProviderID       uuid.UUID `json:"provider_id"`
	Diagnosis        string    `json:"diagnosis"`
	Prescription     string    `json:"prescription"`
	TreatmentDetails *string   `json:"treatment_details,omitempty"`
	Remarks          *string   `json:"remarks,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

type WaitlistEntryResponse struct {
	ID            uuid.UUID `json:"id"`
	PatientID     uuid.UUID `json:"patient_id"`
	ProviderID    uuid.UUID `json:"provider_id"`
	PreferredDate string    `json:"preferred_date"`
	CreatedAt     time.Time `json:"created_at"`
}

type ErrorResponse struct {
	Error             string            `json:"error"`
	Details           string            `json:"details,omitempty"`
	Fields            map[string]string `json:"fields,omitempty"`
	WaitlistAvailable bool              `json:"waitlist_available,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                 a.ID,
		PatientID:          a.PatientID,
		ProviderID:         a.ProviderID,
		ScheduledAt:        a.ScheduledAt,
		Status:             string(a.Status),
		ConsultationNoteID: a.ConsultationNoteID,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
}

func toAppointmentList(list []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(list))
	for i := range list {
		out = append(out, toAppointmentResponse(&list[i]))
	}
	return out
}

func toStatusChangeResponse(c *appointment.StatusChange) StatusChangeResponse {
	resp := StatusChangeResponse{
		Appointment:    toAppointmentResponse(c.Appointment),
		PreviousStatus: string(c.From),
	}
	if c.Promoted != nil {
		promoted := toAppointmentResponse(c.Promoted)
		resp.Promoted = &promoted
	}
	return resp
}

func toDaySlotsResponse(days []appointment.DaySlots, loc *time.Location) []DaySlotsResponse {
	out := make([]DaySlotsResponse, 0, len(days))
	for _, d := range days {
		day := DaySlotsResponse{Date: d.Date.Format("2006-01-02")}
		for _, s := range d.Slots {
			day.Slots = append(day.Slots, SlotResponse{
				Start:  s.Start.In(loc),
				End:    s.End.In(loc),
				Status: string(s.Status),
			})
		}
		out = append(out, day)
	}
	return out
}

func toAvailabilityResponse(a *appointment.WeeklyAvailability) AvailabilityResponse {
	resp := AvailabilityResponse{
		ProviderID:          a.ProviderID,
		SlotDurationMinutes: a.SlotDurationMinutes,
		Rules:               make([]AvailabilityRuleDTO, 0, len(a.Rules)),
	}
	for _, r := range a.Rules {
		resp.Rules = append(resp.Rules, AvailabilityRuleDTO{
			DayOfWeek: strings.ToUpper(r.Weekday.String()),
			StartTime: r.Start.String(),
			EndTime:   r.End.String(),
		})
	}
	return resp
}

func toWaitlistEntryResponse(e *appointment.WaitlistEntry) WaitlistEntryResponse {
	return WaitlistEntryResponse{
		ID:            e.ID,
		PatientID:     e.PatientID,
		ProviderID:    e.ProviderID,
		PreferredDate: e.PreferredDate.Format("2006-01-02"),
		CreatedAt:     e.CreatedAt,
	}
}

func toConsultationNoteResponse(n *appointment.ConsultationNote) ConsultationNoteResponse {
	return ConsultationNoteResponse{
		ID:               n.ID,
		AppointmentID:    n.AppointmentID,
		ProviderID:       n.ProviderID,
		Diagnosis:        n.Diagnosis,
		Prescription:     n.Prescription,
		TreatmentDetails: n.TreatmentDetails,
		Remarks:          n.Remarks,
		CreatedAt:        n.CreatedAt,
	}
}
