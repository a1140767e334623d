package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrProviderNotFound    = errors.New("provider not found")
	ErrServiceNotFound     = errors.New("service not found")
	ErrSlotNotFound        = errors.New("slot not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrPaymentNotFound     = errors.New("payment not found")

	// ErrSlotUnavailable is the conditional-reserve loss: the slot exists but
	// is already booked.
	ErrSlotUnavailable = errors.New("slot is no longer available")

	// ErrSlotBooked guards availability deletion.
	ErrSlotBooked = errors.New("slot has an appointment and cannot be deleted")

	// ErrStatusConflict is returned by the conditional status updates when the
	// row is not in any of the expected from-states. Callers reload and decide
	// whether that means a benign no-op or a real conflict.
	ErrStatusConflict = errors.New("status changed concurrently")
)

// Repository contains all DB interactions needed by the booking core.
//
// InTx runs fn against a Repository bound to one transaction; every
// multi-entity mutation (booking, webhook application, cancellation) goes
// through it so the slot, appointment and payment writes commit or roll back
// as one unit.
type Repository interface {
	InTx(ctx context.Context, fn func(Repository) error) error

	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error)
	GetServiceByID(ctx context.Context, id uuid.UUID) (*ProviderService, error)
	CreatePatient(ctx context.Context, p *Patient) error
	CreateProvider(ctx context.Context, p *Provider) error
	CreateService(ctx context.Context, s *ProviderService) error

	// Slot store: is_booked toggles only through these two.
	CreateAvailability(ctx context.Context, a *Availability) error
	GetAvailabilityByID(ctx context.Context, id uuid.UUID) (*Availability, error)
	ListAvailabilitiesByProvider(ctx context.Context, providerID uuid.UUID, from time.Time) ([]Availability, error)
	DeleteAvailability(ctx context.Context, id uuid.UUID) error
	ReserveSlot(ctx context.Context, id uuid.UUID) error
	ReleaseSlot(ctx context.Context, id uuid.UUID) error

	CreateAppointment(ctx context.Context, a *Appointment) error
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)
	// UpdateAppointmentStatus is a conditional update: it succeeds only when
	// the current status is one of from, otherwise ErrStatusConflict.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from []AppointmentStatus, to AppointmentStatus, reason *string) (*Appointment, error)

	CreatePayment(ctx context.Context, p *Payment) error
	GetPaymentByIntentID(ctx context.Context, intentID string) (*Payment, error)
	GetPaymentByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*Payment, error)
	// UpdatePaymentStatus is the ledger's conditional edge. paid_at/refunded_at
	// are stamped by the store when to is succeeded/refunded.
	UpdatePaymentStatus(ctx context.Context, intentID string, from, to PaymentStatus) (*Payment, error)

	// InsertWebhookEvent records an external event id for deduplication.
	// It reports false when the id was already recorded.
	InsertWebhookEvent(ctx context.Context, externalEventID, eventType string) (bool, error)
}
