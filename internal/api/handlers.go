package api

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

type handlers struct {
	svc      *appointment.Service
	validate *requestValidator
	log      *logrus.Logger
}

// bind decodes and validates a JSON body, writing the 400 itself on failure.
func (h *handlers) bind(w http.ResponseWriter, r *http.Request, dst any) bool {
	if !decodeJSON(w, r, dst) {
		return false
	}
	if err := h.validate.Validate(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:  "validation_failed",
			Fields: h.validate.FormatValidationErrors(err),
		})
		return false
	}
	return true
}

// onBehalfOf resolves which patient a patient-scoped request is for. Patients
// act for themselves; clinic staff name the patient explicitly.
func onBehalfOf(w http.ResponseWriter, actor appointment.Actor, rawPatientID string) (uuid.UUID, bool) {
	switch actor.Role {
	case appointment.RolePatient:
		if rawPatientID != "" && rawPatientID != actor.ID.String() {
			writeError(w, http.StatusForbidden, "forbidden", "patients may only act for themselves")
			return uuid.Nil, false
		}
		return actor.ID, true
	case appointment.RoleClinic:
		id, err := uuid.Parse(rawPatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id is required when acting for the clinic")
			return uuid.Nil, false
		}
		return id, true
	default:
		writeError(w, http.StatusForbidden, "forbidden", "only patients or clinic staff may do this")
		return uuid.Nil, false
	}
}

func (h *handlers) bookAppointment(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())

	var req BookAppointmentRequest
	if !h.bind(w, r, &req) {
		return
	}
	patientID, ok := onBehalfOf(w, actor, req.PatientID)
	if !ok {
		return
	}
	at, err := parseDateTime(req.AppointmentDateTime, h.svc.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_date_time", err.Error())
		return
	}

	appt, err := h.svc.BookAppointment(r.Context(), patientID, uuid.MustParse(req.ProviderID), at)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *handlers) rescheduleAppointment(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var req RescheduleRequest
	if !h.bind(w, r, &req) {
		return
	}
	at, err := parseDateTime(req.NewDateTime, h.svc.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_new_date_time", err.Error())
		return
	}

	appt, err := h.svc.RescheduleAppointment(r.Context(), id, actor, at)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *handlers) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	if actor.Role != appointment.RolePatient {
		writeError(w, http.StatusForbidden, "forbidden", "use the status endpoint to cancel as provider or clinic")
		return
	}

	change, err := h.svc.CancelAppointment(r.Context(), id, actor.ID)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatusChangeResponse(change))
}

func (h *handlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if !h.bind(w, r, &req) {
		return
	}

	change, err := h.svc.UpdateStatus(r.Context(), id, actor, appointment.Status(req.Status))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatusChangeResponse(change))
}

func (h *handlers) getAppointment(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	detail, err := h.svc.GetAppointment(r.Context(), actor, id)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	resp := AppointmentDetailResponse{AppointmentResponse: toAppointmentResponse(&detail.Appointment)}
	if detail.Patient != nil {
		resp.PatientName = detail.Patient.Name
	}
	if detail.Provider != nil {
		resp.ProviderName = detail.Provider.Name
		resp.Specialty = detail.Provider.Specialty
	}
	writeJSON(w, http.StatusOK, resp)
}

// listAppointments lists the caller's own appointments. Clinic staff pick the
// subject with patient_id or provider_id.
func (h *handlers) listAppointments(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	q := r.URL.Query()

	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_limit", err.Error())
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_offset", err.Error())
		return
	}
	upcoming, _ := strconv.ParseBool(q.Get("upcoming"))

	var (
		list []appointment.Appointment
		subj uuid.UUID
	)
	switch actor.Role {
	case appointment.RolePatient:
		list, err = h.svc.ListPatientAppointments(r.Context(), actor.ID, limit, offset)
	case appointment.RoleProvider:
		list, err = h.svc.ListProviderAppointments(r.Context(), actor.ID, upcoming, limit, offset)
	case appointment.RoleClinic:
		if raw := q.Get("provider_id"); raw != "" {
			if subj, err = uuid.Parse(raw); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
				return
			}
			list, err = h.svc.ListProviderAppointments(r.Context(), subj, upcoming, limit, offset)
			break
		}
		if subj, err = uuid.Parse(q.Get("patient_id")); err != nil {
			writeError(w, http.StatusBadRequest, "missing_subject", "patient_id or provider_id is required")
			return
		}
		list, err = h.svc.ListPatientAppointments(r.Context(), subj, limit, offset)
	}
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentList(list))
}

func (h *handlers) sendReminder(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.svc.SendReminder(r.Context(), actor, id); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *handlers) addConsultationNote(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var req AddConsultationNoteRequest
	if !h.bind(w, r, &req) {
		return
	}

	note, err := h.svc.AddConsultationNote(r.Context(), actor, id, appointment.NoteInput{
		Diagnosis:        req.Diagnosis,
		Prescription:     req.Prescription,
		TreatmentDetails: req.TreatmentDetails,
		Remarks:          req.Remarks,
	})
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toConsultationNoteResponse(note))
}

func (h *handlers) getConsultationNote(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	note, err := h.svc.GetConsultationNote(r.Context(), actor, id)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toConsultationNoteResponse(note))
}

func (h *handlers) getSlots(w http.ResponseWriter, r *http.Request) {
	providerID, ok := uuidParam(w, r, "providerID")
	if !ok {
		return
	}
	days, err := queryInt(r, "days", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_days", err.Error())
		return
	}

	slots, err := h.svc.GetAvailableSlots(r.Context(), providerID, days)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toDaySlotsResponse(slots, h.svc.Location()))
}

func (h *handlers) getAvailability(w http.ResponseWriter, r *http.Request) {
	providerID, ok := uuidParam(w, r, "providerID")
	if !ok {
		return
	}

	avail, err := h.svc.GetWeeklyAvailability(r.Context(), providerID)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toAvailabilityResponse(avail))
}

func (h *handlers) setAvailability(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	providerID, ok := uuidParam(w, r, "providerID")
	if !ok {
		return
	}

	var req SetAvailabilityRequest
	if !h.bind(w, r, &req) {
		return
	}

	rules := make([]appointment.AvailabilityRule, 0, len(req.Rules))
	for i, dto := range req.Rules {
		rule, err := toAvailabilityRule(dto)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_rule", "rules["+strconv.Itoa(i)+"]: "+err.Error())
			return
		}
		rules = append(rules, rule)
	}

	avail, err := h.svc.SetWeeklyAvailability(r.Context(), actor, providerID, req.SlotDurationMinutes, rules)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toAvailabilityResponse(avail))
}

func toAvailabilityRule(dto AvailabilityRuleDTO) (appointment.AvailabilityRule, error) {
	day, err := appointment.ParseWeekday(dto.DayOfWeek)
	if err != nil {
		return appointment.AvailabilityRule{}, err
	}
	start, err := appointment.ParseTimeOfDay(dto.StartTime)
	if err != nil {
		return appointment.AvailabilityRule{}, err
	}
	end, err := appointment.ParseTimeOfDay(dto.EndTime)
	if err != nil {
		return appointment.AvailabilityRule{}, err
	}
	return appointment.AvailabilityRule{Weekday: day, Start: start, End: end}, nil
}

func (h *handlers) joinWaitlist(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())

	var req JoinWaitlistRequest
	if !h.bind(w, r, &req) {
		return
	}
	patientID, ok := onBehalfOf(w, actor, req.PatientID)
	if !ok {
		return
	}
	date, err := parseDate(req.PreferredDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_preferred_date", err.Error())
		return
	}

	entry, err := h.svc.JoinWaitlist(r.Context(), patientID, uuid.MustParse(req.ProviderID), date)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWaitlistEntryResponse(entry))
}

func (h *handlers) listWaitlist(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	providerID, ok := uuidParam(w, r, "providerID")
	if !ok {
		return
	}
	date, err := parseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
		return
	}

	entries, err := h.svc.ListWaitlist(r.Context(), actor, providerID, date)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	out := make([]WaitlistEntryResponse, 0, len(entries))
	for i := range entries {
		out = append(out, toWaitlistEntryResponse(&entries[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) notifyWaitlistEntry(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.svc.NotifyWaitlistEntry(r.Context(), actor, id); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
