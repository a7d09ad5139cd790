package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-process Repository for tests and the load
// simulator. WithTx serializes transactions and rolls back by restoring a
// snapshot. Event inserts made outside a transaction wait for the running one
// so a rollback cannot drop them; other writes outside WithTx must not run
// concurrently with a transaction.
type MemoryRepository struct {
	txMu sync.Mutex

	mu           sync.RWMutex
	patients     map[uuid.UUID]Patient
	providers    map[uuid.UUID]Provider
	rules        map[uuid.UUID][]AvailabilityRule
	appointments map[uuid.UUID]Appointment
	notes        map[uuid.UUID]ConsultationNote
	waitlist     []WaitlistEntry
	events       []EventLog
	nextEventID  int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		patients:     make(map[uuid.UUID]Patient),
		providers:    make(map[uuid.UUID]Provider),
		rules:        make(map[uuid.UUID][]AvailabilityRule),
		appointments: make(map[uuid.UUID]Appointment),
		notes:        make(map[uuid.UUID]ConsultationNote),
	}
}

type memTxKey struct{}

type memorySnapshot struct {
	patients     map[uuid.UUID]Patient
	providers    map[uuid.UUID]Provider
	rules        map[uuid.UUID][]AvailabilityRule
	appointments map[uuid.UUID]Appointment
	notes        map[uuid.UUID]ConsultationNote
	waitlist     []WaitlistEntry
	events       []EventLog
}

func (m *MemoryRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}

	m.txMu.Lock()
	defer m.txMu.Unlock()

	snap := m.snapshot()
	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

// LockProvider is a no-op: WithTx already serializes every transaction.
func (m *MemoryRepository) LockProvider(context.Context, uuid.UUID) error {
	return nil
}

func (m *MemoryRepository) snapshot() memorySnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := memorySnapshot{
		patients:     make(map[uuid.UUID]Patient, len(m.patients)),
		providers:    make(map[uuid.UUID]Provider, len(m.providers)),
		rules:        make(map[uuid.UUID][]AvailabilityRule, len(m.rules)),
		appointments: make(map[uuid.UUID]Appointment, len(m.appointments)),
		notes:        make(map[uuid.UUID]ConsultationNote, len(m.notes)),
		waitlist:     append([]WaitlistEntry(nil), m.waitlist...),
		events:       append([]EventLog(nil), m.events...),
	}
	for k, v := range m.patients {
		s.patients[k] = v
	}
	for k, v := range m.providers {
		s.providers[k] = v
	}
	for k, v := range m.rules {
		s.rules[k] = append([]AvailabilityRule(nil), v...)
	}
	for k, v := range m.appointments {
		s.appointments[k] = v
	}
	for k, v := range m.notes {
		s.notes[k] = v
	}
	return s
}

func (m *MemoryRepository) restore(s memorySnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.patients = s.patients
	m.providers = s.providers
	m.rules = s.rules
	m.appointments = s.appointments
	m.notes = s.notes
	m.waitlist = s.waitlist
	m.events = s.events
}

// Patients and providers

func (m *MemoryRepository) CreatePatient(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	m.patients[p.ID] = *p
	return nil
}

func (m *MemoryRepository) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (m *MemoryRepository) CreateProvider(_ context.Context, p *Provider) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	m.providers[p.ID] = *p
	return nil
}

func (m *MemoryRepository) GetProviderByID(_ context.Context, id uuid.UUID) (*Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.providers[id]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return &p, nil
}

// Availability

func (m *MemoryRepository) GetWeeklyAvailability(_ context.Context, providerID uuid.UUID) (*WeeklyAvailability, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.providers[providerID]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return &WeeklyAvailability{
		ProviderID:          providerID,
		SlotDurationMinutes: p.SlotDurationMinutes,
		Rules:               sortedRules(m.rules[providerID]),
	}, nil
}

func (m *MemoryRepository) ReplaceWeeklyAvailability(_ context.Context, providerID uuid.UUID, slotMinutes int, rules []AvailabilityRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.providers[providerID]
	if !ok {
		return ErrProviderNotFound
	}
	p.SlotDurationMinutes = &slotMinutes
	p.UpdatedAt = time.Now().UTC()
	m.providers[providerID] = p

	stored := make([]AvailabilityRule, 0, len(rules))
	for _, r := range rules {
		if r.ID == uuid.Nil {
			r.ID = uuid.New()
		}
		r.ProviderID = providerID
		stored = append(stored, r)
	}
	m.rules[providerID] = stored
	return nil
}

// Appointments

func (m *MemoryRepository) findOccupyingLocked(providerID uuid.UUID, at time.Time, except uuid.UUID) *Appointment {
	for _, a := range m.appointments {
		if a.ID != except && a.ProviderID == providerID && a.ScheduledAt.Equal(at) && a.Status.Occupies() {
			a := a
			return &a
		}
	}
	return nil
}

func (m *MemoryRepository) FindOccupyingAppointment(_ context.Context, providerID uuid.UUID, at time.Time) (*Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findOccupyingLocked(providerID, at, uuid.Nil), nil
}

func (m *MemoryRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (m *MemoryRepository) CreateAppointment(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// same guarantee as the partial unique index in Postgres
	if a.Status.Occupies() && m.findOccupyingLocked(a.ProviderID, a.ScheduledAt, uuid.Nil) != nil {
		return &SlotConflictError{ProviderID: a.ProviderID, At: a.ScheduledAt, WaitlistOffered: true}
	}

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	m.appointments[a.ID] = *a
	return nil
}

func (m *MemoryRepository) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if a.Status != from {
		return nil, &TransitionError{From: from, To: to, Reason: "appointment is no longer " + string(from)}
	}
	a.Status = to
	a.UpdatedAt = time.Now().UTC()
	m.appointments[id] = a
	return &a, nil
}

func (m *MemoryRepository) UpdateAppointmentTime(_ context.Context, id, providerID uuid.UUID, at time.Time) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appointments[id]
	if !ok || a.ProviderID != providerID {
		return nil, ErrAppointmentNotFound
	}
	if a.Status.Occupies() && m.findOccupyingLocked(a.ProviderID, at, a.ID) != nil {
		return nil, &SlotConflictError{ProviderID: a.ProviderID, At: at, WaitlistOffered: true}
	}
	a.ScheduledAt = at
	a.UpdatedAt = time.Now().UTC()
	m.appointments[id] = a
	return &a, nil
}

func (m *MemoryRepository) filterAppointments(keep func(Appointment) bool, desc bool) []Appointment {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Appointment
	for _, a := range m.appointments {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if desc {
			return out[i].ScheduledAt.After(out[j].ScheduledAt)
		}
		return out[i].ScheduledAt.Before(out[j].ScheduledAt)
	})
	return out
}

func page(list []Appointment, limit, offset int) []Appointment {
	if offset >= len(list) {
		return nil
	}
	list = list[offset:]
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	return list
}

func (m *MemoryRepository) ListOccupyingAppointments(_ context.Context, providerID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	return m.filterAppointments(func(a Appointment) bool {
		return a.ProviderID == providerID && a.Status.Occupies() &&
			!a.ScheduledAt.Before(from) && a.ScheduledAt.Before(to)
	}, false), nil
}

func (m *MemoryRepository) ListPatientAppointments(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	all := m.filterAppointments(func(a Appointment) bool { return a.PatientID == patientID }, true)
	return page(all, limit, offset), nil
}

func (m *MemoryRepository) ListProviderAppointments(_ context.Context, providerID uuid.UUID, from *time.Time, limit, offset int) ([]Appointment, error) {
	all := m.filterAppointments(func(a Appointment) bool {
		return a.ProviderID == providerID && (from == nil || !a.ScheduledAt.Before(*from))
	}, false)
	return page(all, limit, offset), nil
}

func (m *MemoryRepository) ListAppointmentsByStatusBetween(_ context.Context, status Status, from, to time.Time) ([]Appointment, error) {
	return m.filterAppointments(func(a Appointment) bool {
		return a.Status == status && !a.ScheduledAt.Before(from) && a.ScheduledAt.Before(to)
	}, false), nil
}

// Waitlist

func (m *MemoryRepository) CreateWaitlistEntry(_ context.Context, e *WaitlistEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.CreatedAt = time.Now().UTC()
	m.waitlist = append(m.waitlist, *e)
	return nil
}

func (m *MemoryRepository) GetWaitlistEntry(_ context.Context, id uuid.UUID) (*WaitlistEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.waitlist {
		if e.ID == id {
			e := e
			return &e, nil
		}
	}
	return nil, ErrWaitlistEntryNotFound
}

// ListWaitlist relies on m.waitlist being kept in insertion order.
func (m *MemoryRepository) ListWaitlist(_ context.Context, providerID uuid.UUID, date time.Time) ([]WaitlistEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []WaitlistEntry
	for _, e := range m.waitlist {
		if e.ProviderID == providerID && e.PreferredDate.Equal(date) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryRepository) DeleteWaitlistEntry(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, e := range m.waitlist {
		if e.ID == id {
			m.waitlist = append(m.waitlist[:i:i], m.waitlist[i+1:]...)
			return nil
		}
	}
	return ErrWaitlistEntryNotFound
}

// Consultation notes

func (m *MemoryRepository) CreateConsultationNote(_ context.Context, n *ConsultationNote) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appointments[n.AppointmentID]
	if !ok {
		return ErrAppointmentNotFound
	}
	if _, exists := m.notes[n.AppointmentID]; exists || a.ConsultationNoteID != nil {
		return ErrNoteExists
	}
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	n.CreatedAt = time.Now().UTC()
	m.notes[n.AppointmentID] = *n

	noteID := n.ID
	a.ConsultationNoteID = &noteID
	a.UpdatedAt = n.CreatedAt
	m.appointments[a.ID] = a
	return nil
}

func (m *MemoryRepository) GetConsultationNote(_ context.Context, appointmentID uuid.UUID) (*ConsultationNote, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, ok := m.notes[appointmentID]
	if !ok {
		return nil, ErrNoteNotFound
	}
	return &n, nil
}

// Events

func (m *MemoryRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	if ctx.Value(memTxKey{}) == nil {
		m.txMu.Lock()
		defer m.txMu.Unlock()
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextEventID++
	ev.ID = m.nextEventID
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	m.events = append(m.events, ev)
	return nil
}

// Events returns a copy of the recorded event log.
func (m *MemoryRepository) Events() []EventLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]EventLog(nil), m.events...)
}
