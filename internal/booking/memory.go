package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-memory Repository used by tests and the local
// simulator. InTx serializes transactions under one mutex and restores a
// snapshot when fn fails, so rollback semantics match the Postgres
// implementation closely enough for the state-machine and concurrency tests.
type MemoryRepository struct {
	mu sync.Mutex
	st *memoryState
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{st: newMemoryState()}
}

func (m *MemoryRepository) InTx(ctx context.Context, fn func(Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	if err := fn(&memTx{st: m.st}); err != nil {
		*m.st = *snapshot
		return err
	}
	return nil
}

func (m *MemoryRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.getPatient(id)
}

func (m *MemoryRepository) GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.getProvider(id)
}

func (m *MemoryRepository) GetServiceByID(ctx context.Context, id uuid.UUID) (*ProviderService, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.getService(id)
}

func (m *MemoryRepository) CreatePatient(ctx context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.createPatient(p)
}

func (m *MemoryRepository) CreateProvider(ctx context.Context, p *Provider) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.createProvider(p)
}

func (m *MemoryRepository) CreateService(ctx context.Context, s *ProviderService) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.createService(s)
}

func (m *MemoryRepository) CreateAvailability(ctx context.Context, a *Availability) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.createAvailability(a)
}

func (m *MemoryRepository) GetAvailabilityByID(ctx context.Context, id uuid.UUID) (*Availability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.getAvailability(id)
}

func (m *MemoryRepository) ListAvailabilitiesByProvider(ctx context.Context, providerID uuid.UUID, from time.Time) ([]Availability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.listAvailabilitiesByProvider(providerID, from)
}

func (m *MemoryRepository) DeleteAvailability(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.deleteAvailability(id)
}

func (m *MemoryRepository) ReserveSlot(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.reserveSlot(id)
}

func (m *MemoryRepository) ReleaseSlot(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.releaseSlot(id)
}

func (m *MemoryRepository) CreateAppointment(ctx context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.createAppointment(a)
}

func (m *MemoryRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.getAppointment(id)
}

func (m *MemoryRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.listAppointmentsByPatient(patientID, limit, offset)
}

func (m *MemoryRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from []AppointmentStatus, to AppointmentStatus, reason *string) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.updateAppointmentStatus(id, from, to, reason)
}

func (m *MemoryRepository) CreatePayment(ctx context.Context, p *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.createPayment(p)
}

func (m *MemoryRepository) GetPaymentByIntentID(ctx context.Context, intentID string) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.getPaymentByIntent(intentID)
}

func (m *MemoryRepository) GetPaymentByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.getPaymentByAppointment(appointmentID)
}

func (m *MemoryRepository) UpdatePaymentStatus(ctx context.Context, intentID string, from, to PaymentStatus) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.updatePaymentStatus(intentID, from, to)
}

func (m *MemoryRepository) InsertWebhookEvent(ctx context.Context, externalEventID, eventType string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.insertWebhookEvent(externalEventID, eventType)
}

// memTx is the transaction-bound view: the MemoryRepository holds the mutex
// for the whole transaction, so memTx touches state without locking.
type memTx struct {
	st *memoryState
}

func (t *memTx) InTx(ctx context.Context, fn func(Repository) error) error {
	return fn(t)
}

func (t *memTx) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return t.st.getPatient(id)
}

func (t *memTx) GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	return t.st.getProvider(id)
}

func (t *memTx) GetServiceByID(ctx context.Context, id uuid.UUID) (*ProviderService, error) {
	return t.st.getService(id)
}

func (t *memTx) CreatePatient(ctx context.Context, p *Patient) error    { return t.st.createPatient(p) }
func (t *memTx) CreateProvider(ctx context.Context, p *Provider) error  { return t.st.createProvider(p) }
func (t *memTx) CreateService(ctx context.Context, s *ProviderService) error {
	return t.st.createService(s)
}

func (t *memTx) CreateAvailability(ctx context.Context, a *Availability) error {
	return t.st.createAvailability(a)
}

func (t *memTx) GetAvailabilityByID(ctx context.Context, id uuid.UUID) (*Availability, error) {
	return t.st.getAvailability(id)
}

func (t *memTx) ListAvailabilitiesByProvider(ctx context.Context, providerID uuid.UUID, from time.Time) ([]Availability, error) {
	return t.st.listAvailabilitiesByProvider(providerID, from)
}

func (t *memTx) DeleteAvailability(ctx context.Context, id uuid.UUID) error {
	return t.st.deleteAvailability(id)
}

func (t *memTx) ReserveSlot(ctx context.Context, id uuid.UUID) error { return t.st.reserveSlot(id) }
func (t *memTx) ReleaseSlot(ctx context.Context, id uuid.UUID) error { return t.st.releaseSlot(id) }

func (t *memTx) CreateAppointment(ctx context.Context, a *Appointment) error {
	return t.st.createAppointment(a)
}

func (t *memTx) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return t.st.getAppointment(id)
}

func (t *memTx) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	return t.st.listAppointmentsByPatient(patientID, limit, offset)
}

func (t *memTx) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from []AppointmentStatus, to AppointmentStatus, reason *string) (*Appointment, error) {
	return t.st.updateAppointmentStatus(id, from, to, reason)
}

func (t *memTx) CreatePayment(ctx context.Context, p *Payment) error { return t.st.createPayment(p) }

func (t *memTx) GetPaymentByIntentID(ctx context.Context, intentID string) (*Payment, error) {
	return t.st.getPaymentByIntent(intentID)
}

func (t *memTx) GetPaymentByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*Payment, error) {
	return t.st.getPaymentByAppointment(appointmentID)
}

func (t *memTx) UpdatePaymentStatus(ctx context.Context, intentID string, from, to PaymentStatus) (*Payment, error) {
	return t.st.updatePaymentStatus(intentID, from, to)
}

func (t *memTx) InsertWebhookEvent(ctx context.Context, externalEventID, eventType string) (bool, error) {
	return t.st.insertWebhookEvent(externalEventID, eventType)
}

// State

type memoryState struct {
	patients       map[uuid.UUID]Patient
	providers      map[uuid.UUID]Provider
	services       map[uuid.UUID]ProviderService
	availabilities map[uuid.UUID]Availability
	appointments   map[uuid.UUID]Appointment
	payments       map[string]Payment // keyed by external intent id
	intentByAppt   map[uuid.UUID]string
	webhookEvents  map[string]string
}

func newMemoryState() *memoryState {
	return &memoryState{
		patients:       make(map[uuid.UUID]Patient),
		providers:      make(map[uuid.UUID]Provider),
		services:       make(map[uuid.UUID]ProviderService),
		availabilities: make(map[uuid.UUID]Availability),
		appointments:   make(map[uuid.UUID]Appointment),
		payments:       make(map[string]Payment),
		intentByAppt:   make(map[uuid.UUID]string),
		webhookEvents:  make(map[string]string),
	}
}

func (s *memoryState) clone() *memoryState {
	c := newMemoryState()
	for k, v := range s.patients {
		c.patients[k] = v
	}
	for k, v := range s.providers {
		c.providers[k] = v
	}
	for k, v := range s.services {
		c.services[k] = v
	}
	for k, v := range s.availabilities {
		c.availabilities[k] = v
	}
	for k, v := range s.appointments {
		c.appointments[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.intentByAppt {
		c.intentByAppt[k] = v
	}
	for k, v := range s.webhookEvents {
		c.webhookEvents[k] = v
	}
	return c
}

func (s *memoryState) getPatient(id uuid.UUID) (*Patient, error) {
	p, ok := s.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (s *memoryState) getProvider(id uuid.UUID) (*Provider, error) {
	p, ok := s.providers[id]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return &p, nil
}

func (s *memoryState) getService(id uuid.UUID) (*ProviderService, error) {
	svc, ok := s.services[id]
	if !ok {
		return nil, ErrServiceNotFound
	}
	return &svc, nil
}

func (s *memoryState) createPatient(p *Patient) error {
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	s.patients[p.ID] = *p
	return nil
}

func (s *memoryState) createProvider(p *Provider) error {
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	s.providers[p.ID] = *p
	return nil
}

func (s *memoryState) createService(svc *ProviderService) error {
	now := time.Now()
	svc.CreatedAt, svc.UpdatedAt = now, now
	s.services[svc.ID] = *svc
	return nil
}

func (s *memoryState) createAvailability(a *Availability) error {
	now := time.Now()
	a.IsBooked = false
	a.CreatedAt, a.UpdatedAt = now, now
	s.availabilities[a.ID] = *a
	return nil
}

func (s *memoryState) getAvailability(id uuid.UUID) (*Availability, error) {
	a, ok := s.availabilities[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	return &a, nil
}

func (s *memoryState) listAvailabilitiesByProvider(providerID uuid.UUID, from time.Time) ([]Availability, error) {
	var result []Availability
	for _, a := range s.availabilities {
		if a.ProviderID == providerID && !a.StartTime.Before(from) {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartTime.Before(result[j].StartTime) })
	return result, nil
}

func (s *memoryState) deleteAvailability(id uuid.UUID) error {
	a, ok := s.availabilities[id]
	if !ok {
		return ErrSlotNotFound
	}
	if a.IsBooked {
		return ErrSlotBooked
	}
	delete(s.availabilities, id)
	return nil
}

func (s *memoryState) reserveSlot(id uuid.UUID) error {
	a, ok := s.availabilities[id]
	if !ok {
		return ErrSlotNotFound
	}
	if a.IsBooked {
		return ErrSlotUnavailable
	}
	a.IsBooked = true
	a.UpdatedAt = time.Now()
	s.availabilities[id] = a
	return nil
}

func (s *memoryState) releaseSlot(id uuid.UUID) error {
	a, ok := s.availabilities[id]
	if !ok {
		return nil
	}
	a.IsBooked = false
	a.UpdatedAt = time.Now()
	s.availabilities[id] = a
	return nil
}

func (s *memoryState) createAppointment(a *Appointment) error {
	now := time.Now()
	a.CreatedAt, a.UpdatedAt = now, now
	s.appointments[a.ID] = *a
	return nil
}

func (s *memoryState) getAppointment(id uuid.UUID) (*Appointment, error) {
	a, ok := s.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (s *memoryState) listAppointmentsByPatient(patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	var all []Appointment
	for _, a := range s.appointments {
		if a.PatientID == patientID {
			all = append(all, a)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].StartTime.After(all[j].StartTime) })

	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (s *memoryState) updateAppointmentStatus(id uuid.UUID, from []AppointmentStatus, to AppointmentStatus, reason *string) (*Appointment, error) {
	a, ok := s.appointments[id]
	if !ok {
		return nil, ErrStatusConflict
	}

	matched := false
	for _, f := range from {
		if a.Status == f {
			matched = true
			break
		}
	}
	if !matched {
		return nil, ErrStatusConflict
	}

	a.Status = to
	if reason != nil {
		a.CancellationReason = reason
	}
	a.UpdatedAt = time.Now()
	s.appointments[id] = a
	return &a, nil
}

func (s *memoryState) createPayment(p *Payment) error {
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	s.payments[p.ExternalIntentID] = *p
	s.intentByAppt[p.AppointmentID] = p.ExternalIntentID
	return nil
}

func (s *memoryState) getPaymentByIntent(intentID string) (*Payment, error) {
	p, ok := s.payments[intentID]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	return &p, nil
}

func (s *memoryState) getPaymentByAppointment(appointmentID uuid.UUID) (*Payment, error) {
	intentID, ok := s.intentByAppt[appointmentID]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	return s.getPaymentByIntent(intentID)
}

func (s *memoryState) updatePaymentStatus(intentID string, from, to PaymentStatus) (*Payment, error) {
	p, ok := s.payments[intentID]
	if !ok || p.Status != from {
		return nil, ErrStatusConflict
	}

	now := time.Now()
	p.Status = to
	switch to {
	case PaymentSucceeded:
		p.PaidAt = &now
	case PaymentRefunded:
		p.RefundedAt = &now
	}
	p.UpdatedAt = now
	s.payments[intentID] = p
	return &p, nil
}

func (s *memoryState) insertWebhookEvent(externalEventID, eventType string) (bool, error) {
	if _, ok := s.webhookEvents[externalEventID]; ok {
		return false, nil
	}
	s.webhookEvents[externalEventID] = eventType
	return true, nil
}
