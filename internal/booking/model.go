package booking

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AppointmentStatus string

const (
	StatusPaymentPending      AppointmentStatus = "payment_pending"
	StatusScheduled           AppointmentStatus = "scheduled"
	StatusCompleted           AppointmentStatus = "completed"
	StatusCancelledByPatient  AppointmentStatus = "cancelled_by_patient"
	StatusCancelledByProvider AppointmentStatus = "cancelled_by_provider"
	StatusCancelledBySystem   AppointmentStatus = "cancelled_by_system"
	StatusNoShow              AppointmentStatus = "no_show"
)

// Cancelled reports whether the status is one of the cancelled_* variants.
func (s AppointmentStatus) Cancelled() bool {
	switch s {
	case StatusCancelledByPatient, StatusCancelledByProvider, StatusCancelledBySystem:
		return true
	}
	return false
}

// Terminal reports whether no further transition is permitted from s.
func (s AppointmentStatus) Terminal() bool {
	return s.Cancelled() || s == StatusCompleted || s == StatusNoShow
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

type ActorRole string

const (
	RolePatient  ActorRole = "patient"
	RoleProvider ActorRole = "provider"
)

// CancelledStatus maps the cancelling actor to the resulting appointment status.
func (r ActorRole) CancelledStatus() AppointmentStatus {
	if r == RoleProvider {
		return StatusCancelledByProvider
	}
	return StatusCancelledByPatient
}

type RefundType string

const (
	RefundFull    RefundType = "full"
	RefundPartial RefundType = "partial"
)

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Provider struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type ProviderService struct {
	ID              uuid.UUID
	ProviderID      uuid.UUID
	Name            string
	Price           decimal.Decimal
	Currency        string
	DurationMinutes int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Availability struct {
	ID         uuid.UUID
	ProviderID uuid.UUID
	StartTime  time.Time
	EndTime    time.Time
	IsBooked   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Appointment struct {
	ID                 uuid.UUID
	PatientID          uuid.UUID
	ProviderID         uuid.UUID
	ServiceID          uuid.UUID
	AvailabilityID     uuid.UUID
	StartTime          time.Time
	EndTime            time.Time
	Status             AppointmentStatus
	CancellationReason *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type Payment struct {
	ID               uuid.UUID
	PayerID          uuid.UUID
	AppointmentID    uuid.UUID
	Amount           decimal.Decimal
	Currency         string
	Status           PaymentStatus
	ExternalIntentID string
	PaidAt           *time.Time
	RefundedAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// EffectKind identifies a notification to dispatch after a transaction commits.
type EffectKind string

const (
	EffectAppointmentBooked EffectKind = "appointment_booked"
	EffectPaymentFailed     EffectKind = "payment_failed"
	EffectRefundProcessed   EffectKind = "refund_processed"
)

// Effect is a post-commit side effect produced by a lifecycle transition.
// Transitions return effects instead of firing notifications inline so that a
// rolled-back transaction never notifies anyone.
type Effect struct {
	Kind        EffectKind
	Appointment *Appointment
	Payment     *Payment
	RefundType  RefundType
}
