package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-scheduling/internal/db"
)

const (
	activeSlotIndex   = "appointments_provider_slot_active_uq"
	noteAppointmentUq = "consultation_notes_appointment_id_key"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) conn(ctx context.Context) db.Queryable {
	return db.Conn(ctx, r.pool)
}

func (r *PgRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.WithTx(ctx, r.pool, fn)
}

func (r *PgRepository) LockProvider(ctx context.Context, providerID uuid.UUID) error {
	tx := db.TxFromContext(ctx)
	if tx == nil {
		return nil
	}
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, providerID.String()); err != nil {
		return fmt.Errorf("advisory lock provider %s: %w", providerID, err)
	}
	return nil
}

// Helpers

const appointmentCols = `id, patient_id, provider_id, scheduled_at, status, consultation_note_id, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient

	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	var slot *int32

	err := row.Scan(&p.ID, &p.Name, &p.Specialty, &p.Email, &slot, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}

	if slot != nil {
		v := int(*slot)
		p.SlotDurationMinutes = &v
	}
	return &p, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.ProviderID,
		&a.ScheduledAt,
		&a.Status,
		&a.ConsultationNoteID,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

func scanWaitlistEntry(row pgx.Row) (*WaitlistEntry, error) {
	var e WaitlistEntry

	err := row.Scan(&e.ID, &e.PatientID, &e.ProviderID, &e.PreferredDate, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWaitlistEntryNotFound
		}
		return nil, err
	}
	e.PreferredDate = time.Date(e.PreferredDate.Year(), e.PreferredDate.Month(), e.PreferredDate.Day(), 0, 0, 0, 0, time.UTC)
	return &e, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Patients and providers

func (r *PgRepository) CreatePatient(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (id, name, email)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at
	`, p.ID, p.Name, p.Email).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) CreateProvider(ctx context.Context, p *Provider) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO providers (id, name, specialty, email, slot_duration_minutes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, p.ID, p.Name, p.Specialty, p.Email, p.SlotDurationMinutes).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert provider: %w", err)
	}
	return nil
}

func (r *PgRepository) GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT id, name, specialty, email, slot_duration_minutes, created_at, updated_at
		FROM providers
		WHERE id = $1
	`, id)
	return scanProvider(row)
}

// Availability

func (r *PgRepository) GetWeeklyAvailability(ctx context.Context, providerID uuid.UUID) (*WeeklyAvailability, error) {
	p, err := r.GetProviderByID(ctx, providerID)
	if err != nil {
		return nil, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, weekday, start_minute, end_minute
		FROM availability_rules
		WHERE provider_id = $1
		ORDER BY weekday, start_minute
	`, providerID)
	if err != nil {
		return nil, fmt.Errorf("query availability: %w", err)
	}
	defer rows.Close()

	avail := &WeeklyAvailability{ProviderID: providerID, SlotDurationMinutes: p.SlotDurationMinutes}
	for rows.Next() {
		var id uuid.UUID
		var weekday, start, end int16
		if err := rows.Scan(&id, &weekday, &start, &end); err != nil {
			return nil, err
		}
		avail.Rules = append(avail.Rules, AvailabilityRule{
			ID:         id,
			ProviderID: providerID,
			Weekday:    time.Weekday(weekday),
			Start:      TimeOfDay(start),
			End:        TimeOfDay(end),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return avail, nil
}

func (r *PgRepository) ReplaceWeeklyAvailability(ctx context.Context, providerID uuid.UUID, slotMinutes int, rules []AvailabilityRule) error {
	q := r.conn(ctx)

	tag, err := q.Exec(ctx, `
		UPDATE providers
		SET slot_duration_minutes = $2,
		    updated_at = now()
		WHERE id = $1
	`, providerID, slotMinutes)
	if err != nil {
		return fmt.Errorf("update slot duration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProviderNotFound
	}

	if _, err := q.Exec(ctx, `DELETE FROM availability_rules WHERE provider_id = $1`, providerID); err != nil {
		return fmt.Errorf("clear availability: %w", err)
	}

	for _, rule := range rules {
		id := rule.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		_, err := q.Exec(ctx, `
			INSERT INTO availability_rules (id, provider_id, weekday, start_minute, end_minute)
			VALUES ($1, $2, $3, $4, $5)
		`, id, providerID, int16(rule.Weekday), int16(rule.Start), int16(rule.End))
		if err != nil {
			return fmt.Errorf("insert availability rule: %w", err)
		}
	}
	return nil
}

// Appointments

func (r *PgRepository) FindOccupyingAppointment(ctx context.Context, providerID uuid.UUID, at time.Time) (*Appointment, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments
		WHERE provider_id = $1
		  AND scheduled_at = $2
		  AND status NOT IN ('cancelled_by_patient', 'cancelled_by_provider')
	`, providerID, at)
	a, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, nil
	}
	return a, err
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, provider_id, scheduled_at, status, consultation_note_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, a.ID, a.PatientID, a.ProviderID, a.ScheduledAt, a.Status, a.ConsultationNoteID).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if conflict, ok := slotConflict(err, a.ProviderID, a.ScheduledAt); ok {
			return conflict
		}
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentCols, id, to, from)

	a, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, &TransitionError{From: from, To: to, Reason: "appointment is no longer " + string(from)}
	}
	return a, err
}

func (r *PgRepository) UpdateAppointmentTime(ctx context.Context, id, providerID uuid.UUID, at time.Time) (*Appointment, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointments
		SET scheduled_at = $2,
		    updated_at = now()
		WHERE id = $1
		  AND provider_id = $3
		RETURNING `+appointmentCols, id, at, providerID)

	a, err := scanAppointment(row)
	if err != nil {
		if conflict, ok := slotConflict(err, providerID, at); ok {
			return nil, conflict
		}
		return nil, err
	}
	return a, nil
}

// slotConflict reports whether err is a violation of the active slot index.
// The failed statement aborts the transaction, so the caller supplies the
// provider and start for the error.
func slotConflict(err error, providerID uuid.UUID, at time.Time) (*SlotConflictError, bool) {
	if !db.IsUniqueViolation(err, activeSlotIndex) {
		return nil, false
	}
	return &SlotConflictError{ProviderID: providerID, At: at, WaitlistOffered: true}, true
}

func (r *PgRepository) ListOccupyingAppointments(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments
		WHERE provider_id = $1
		  AND scheduled_at >= $2
		  AND scheduled_at < $3
		  AND status NOT IN ('cancelled_by_patient', 'cancelled_by_provider')
		ORDER BY scheduled_at
	`, providerID, from, to)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListPatientAppointments(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY scheduled_at DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListProviderAppointments(ctx context.Context, providerID uuid.UUID, from *time.Time, limit, offset int) ([]Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments
		WHERE provider_id = $1
		  AND ($2::timestamptz IS NULL OR scheduled_at >= $2)
		ORDER BY scheduled_at
		LIMIT $3 OFFSET $4
	`, providerID, from, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListAppointmentsByStatusBetween(ctx context.Context, status Status, from, to time.Time) ([]Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments
		WHERE status = $1
		  AND scheduled_at >= $2
		  AND scheduled_at < $3
		ORDER BY scheduled_at
	`, status, from, to)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

// Waitlist

const waitlistCols = `id, patient_id, provider_id, preferred_date, created_at`

func (r *PgRepository) CreateWaitlistEntry(ctx context.Context, e *WaitlistEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO waitlist_entries (id, patient_id, provider_id, preferred_date)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, e.ID, e.PatientID, e.ProviderID, e.PreferredDate).Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert waitlist entry: %w", err)
	}
	return nil
}

func (r *PgRepository) GetWaitlistEntry(ctx context.Context, id uuid.UUID) (*WaitlistEntry, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT `+waitlistCols+`
		FROM waitlist_entries
		WHERE id = $1
	`, id)
	return scanWaitlistEntry(row)
}

func (r *PgRepository) ListWaitlist(ctx context.Context, providerID uuid.UUID, date time.Time) ([]WaitlistEntry, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+waitlistCols+`
		FROM waitlist_entries
		WHERE provider_id = $1
		  AND preferred_date = $2
		ORDER BY created_at, seq
	`, providerID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []WaitlistEntry
	for rows.Next() {
		e, err := scanWaitlistEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) DeleteWaitlistEntry(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM waitlist_entries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete waitlist entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrWaitlistEntryNotFound
	}
	return nil
}

// Consultation notes

const noteCols = `id, appointment_id, provider_id, diagnosis, prescription, treatment_details, remarks, created_at`

func (r *PgRepository) CreateConsultationNote(ctx context.Context, n *ConsultationNote) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return r.WithTx(ctx, func(ctx context.Context) error {
		err := r.conn(ctx).QueryRow(ctx, `
			INSERT INTO consultation_notes (id, appointment_id, provider_id, diagnosis, prescription, treatment_details, remarks)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING created_at
		`, n.ID, n.AppointmentID, n.ProviderID, n.Diagnosis, n.Prescription, n.TreatmentDetails, n.Remarks).Scan(&n.CreatedAt)
		if err != nil {
			if db.IsUniqueViolation(err, noteAppointmentUq) {
				return ErrNoteExists
			}
			return fmt.Errorf("insert consultation note: %w", err)
		}

		tag, err := r.conn(ctx).Exec(ctx, `
			UPDATE appointments
			SET consultation_note_id = $2,
			    updated_at = now()
			WHERE id = $1
		`, n.AppointmentID, n.ID)
		if err != nil {
			return fmt.Errorf("link consultation note: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrAppointmentNotFound
		}
		return nil
	})
}

func (r *PgRepository) GetConsultationNote(ctx context.Context, appointmentID uuid.UUID) (*ConsultationNote, error) {
	var n ConsultationNote
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT `+noteCols+`
		FROM consultation_notes
		WHERE appointment_id = $1
	`, appointmentID).Scan(
		&n.ID,
		&n.AppointmentID,
		&n.ProviderID,
		&n.Diagnosis,
		&n.Prescription,
		&n.TreatmentDetails,
		&n.Remarks,
		&n.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoteNotFound
		}
		return nil, err
	}
	return &n, nil
}

// Events

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
