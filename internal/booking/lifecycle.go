package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kojjob/wellness-connect-sub000/internal/gateway"
	redisclient "github.com/kojjob/wellness-connect-sub000/internal/redis"
)

var (
	ErrSlotInPast              = errors.New("slot start time is in the past")
	ErrPatientIsProvider       = errors.New("patient and provider must be different users")
	ErrServiceProviderMismatch = errors.New("service does not belong to the slot's provider")

	// Cancellation conflicts carry distinct messages so callers can tell a
	// repeat cancel from an attempt to cancel a finished appointment.
	ErrAlreadyCancelled      = errors.New("appointment is already cancelled")
	ErrCannotCancelCompleted = errors.New("cannot cancel a completed appointment")
	ErrCannotCancelNoShow    = errors.New("cannot cancel a no-show appointment")
)

// Service owns the appointment state machine. Booking is the sole creation
// path for appointments; payment-driven transitions are exposed as
// repository-parameterized functions so the webhook ingestor and the
// cancellation engine can run them inside their own transactions.
type Service struct {
	repo           Repository
	locker         redisclient.Locker
	gateway        gateway.Client
	log            *zap.Logger
	gatewayTimeout time.Duration
}

func NewService(repo Repository, locker redisclient.Locker, gw gateway.Client, log *zap.Logger, gatewayTimeout time.Duration) *Service {
	return &Service{
		repo:           repo,
		locker:         locker,
		gateway:        gw,
		log:            log,
		gatewayTimeout: gatewayTimeout,
	}
}

type BookRequest struct {
	PatientID      uuid.UUID
	ServiceID      uuid.UUID
	AvailabilityID uuid.UUID
}

type BookResult struct {
	Appointment  *Appointment
	Payment      *Payment
	ClientSecret string
}

// Book atomically reserves the slot, creates the appointment in
// payment_pending and opens a payment intent, all in one transaction. Any
// failure past the reserve, the intent call included, rolls the whole booking
// back so no appointment or payment row survives a lost race or a gateway
// timeout.
func (s *Service) Book(ctx context.Context, req BookRequest) (*BookResult, error) {
	patient, err := s.repo.GetPatientByID(ctx, req.PatientID)
	if err != nil {
		return nil, err
	}

	svc, err := s.repo.GetServiceByID(ctx, req.ServiceID)
	if err != nil {
		return nil, err
	}

	slot, err := s.repo.GetAvailabilityByID(ctx, req.AvailabilityID)
	if err != nil {
		return nil, err
	}

	if svc.ProviderID != slot.ProviderID {
		return nil, ErrServiceProviderMismatch
	}
	if patient.ID == slot.ProviderID {
		return nil, ErrPatientIsProvider
	}
	if !slot.StartTime.After(time.Now()) {
		return nil, ErrSlotInPast
	}
	if slot.IsBooked {
		return nil, ErrSlotUnavailable
	}

	var result *BookResult

	// The per-slot lock keeps concurrent bookers from burning gateway calls;
	// the conditional ReserveSlot update below is what actually decides the
	// race.
	err = s.locker.WithSlotLock(ctx, slot.ID, func(lockCtx context.Context) error {
		return s.repo.InTx(lockCtx, func(r Repository) error {
			if err := r.ReserveSlot(lockCtx, slot.ID); err != nil {
				return err
			}

			appt := &Appointment{
				ID:             uuid.New(),
				PatientID:      patient.ID,
				ProviderID:     slot.ProviderID,
				ServiceID:      svc.ID,
				AvailabilityID: slot.ID,
				StartTime:      slot.StartTime,
				EndTime:        slot.EndTime,
				Status:         StatusPaymentPending,
			}
			if err := r.CreateAppointment(lockCtx, appt); err != nil {
				return err
			}

			intentCtx, cancel := context.WithTimeout(lockCtx, s.gatewayTimeout)
			defer cancel()

			intent, err := s.gateway.CreateIntent(intentCtx, MinorUnits(svc.Price, svc.Currency), svc.Currency, map[string]string{
				"appointment_id": appt.ID.String(),
			})
			if err != nil {
				return fmt.Errorf("create payment intent: %w", err)
			}

			pay := &Payment{
				ID:               uuid.New(),
				PayerID:          patient.ID,
				AppointmentID:    appt.ID,
				Amount:           svc.Price,
				Currency:         svc.Currency,
				Status:           PaymentPending,
				ExternalIntentID: intent.ID,
			}
			if err := r.CreatePayment(lockCtx, pay); err != nil {
				return err
			}

			result = &BookResult{
				Appointment:  appt,
				Payment:      pay,
				ClientSecret: intent.ClientSecret,
			}
			return nil
		})
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotUnavailable
		}
		return nil, err
	}

	s.log.Info("appointment booked",
		zap.String("appointment_id", result.Appointment.ID.String()),
		zap.String("intent_id", result.Payment.ExternalIntentID),
		zap.String("amount", FormatAmount(result.Payment.Amount, result.Payment.Currency)),
	)

	return result, nil
}

// GetAppointment retrieves an appointment by ID.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointmentByID(ctx, id)
}

// ListAppointmentsByPatient retrieves appointments for a specific patient.
func (s *Service) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListAppointmentsByPatient(ctx, patientID, limit, offset)
}

// CreateAvailability registers a provider-owned bookable slot.
func (s *Service) CreateAvailability(ctx context.Context, providerID uuid.UUID, start, end time.Time) (*Availability, error) {
	if _, err := s.repo.GetProviderByID(ctx, providerID); err != nil {
		return nil, err
	}
	if !end.After(start) {
		return nil, errors.New("end_time must be after start_time")
	}
	if !start.After(time.Now()) {
		return nil, ErrSlotInPast
	}

	a := &Availability{
		ID:         uuid.New(),
		ProviderID: providerID,
		StartTime:  start,
		EndTime:    end,
	}
	if err := s.repo.CreateAvailability(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// ListAvailabilities returns a provider's upcoming slots.
func (s *Service) ListAvailabilities(ctx context.Context, providerID uuid.UUID) ([]Availability, error) {
	return s.repo.ListAvailabilitiesByProvider(ctx, providerID, time.Now())
}

// DeleteAvailability removes an unbooked slot.
func (s *Service) DeleteAvailability(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteAvailability(ctx, id)
}

// ConfirmPayment moves payment_pending -> scheduled. Idempotent: an already
// scheduled appointment is a silent no-op, and a late success event for a
// terminal appointment is logged and dropped rather than resurrecting it.
func ConfirmPayment(ctx context.Context, r Repository, log *zap.Logger, appointmentID uuid.UUID) ([]Effect, error) {
	appt, err := r.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	if appt.Status == StatusScheduled {
		return nil, nil
	}
	if appt.Status.Terminal() {
		log.Warn("ignoring payment confirmation for terminal appointment",
			zap.String("appointment_id", appt.ID.String()),
			zap.String("status", string(appt.Status)),
		)
		return nil, nil
	}

	updated, err := r.UpdateAppointmentStatus(ctx, appt.ID, []AppointmentStatus{StatusPaymentPending}, StatusScheduled, nil)
	if err != nil {
		if errors.Is(err, ErrStatusConflict) {
			// Lost a race with another transition; the other writer decided.
			return nil, nil
		}
		return nil, err
	}

	return []Effect{{Kind: EffectAppointmentBooked, Appointment: updated}}, nil
}

// FailPayment moves payment_pending -> cancelled_by_system and releases the
// slot. Stale failure events against a scheduled or terminal appointment are
// no-ops.
func FailPayment(ctx context.Context, r Repository, log *zap.Logger, appointmentID uuid.UUID, reason string) ([]Effect, error) {
	appt, err := r.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	if appt.Status != StatusPaymentPending {
		log.Info("ignoring payment failure for appointment not awaiting payment",
			zap.String("appointment_id", appt.ID.String()),
			zap.String("status", string(appt.Status)),
		)
		return nil, nil
	}

	updated, err := r.UpdateAppointmentStatus(ctx, appt.ID, []AppointmentStatus{StatusPaymentPending}, StatusCancelledBySystem, &reason)
	if err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return nil, nil
		}
		return nil, err
	}

	if err := r.ReleaseSlot(ctx, appt.AvailabilityID); err != nil {
		return nil, err
	}

	return []Effect{{Kind: EffectPaymentFailed, Appointment: updated}}, nil
}

// Cancel moves payment_pending or scheduled to the actor's cancelled variant
// and releases the slot. Terminal states are rejected with distinct errors.
func Cancel(ctx context.Context, r Repository, appointmentID uuid.UUID, role ActorRole, reason string) (*Appointment, error) {
	appt, err := r.GetAppointmentByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	if conflictErr := cancelConflict(appt.Status); conflictErr != nil {
		return nil, conflictErr
	}

	updated, err := r.UpdateAppointmentStatus(ctx, appt.ID,
		[]AppointmentStatus{StatusPaymentPending, StatusScheduled},
		role.CancelledStatus(), &reason)
	if err != nil {
		if errors.Is(err, ErrStatusConflict) {
			// Re-read to report the state that beat us.
			current, readErr := r.GetAppointmentByID(ctx, appt.ID)
			if readErr != nil {
				return nil, readErr
			}
			if conflictErr := cancelConflict(current.Status); conflictErr != nil {
				return nil, conflictErr
			}
		}
		return nil, err
	}

	if err := r.ReleaseSlot(ctx, appt.AvailabilityID); err != nil {
		return nil, err
	}

	return updated, nil
}

func cancelConflict(status AppointmentStatus) error {
	switch {
	case status.Cancelled():
		return ErrAlreadyCancelled
	case status == StatusCompleted:
		return ErrCannotCancelCompleted
	case status == StatusNoShow:
		return ErrCannotCancelNoShow
	}
	return nil
}
