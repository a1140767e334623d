package policy

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kojjob/wellness-connect-sub000/internal/booking"
	"github.com/kojjob/wellness-connect-sub000/internal/gateway"
	"github.com/kojjob/wellness-connect-sub000/internal/notify"
	"github.com/kojjob/wellness-connect-sub000/internal/payment"
)

// Engine applies a cancellation and, when the decision grants one, a refund.
// The two outcomes are deliberately decoupled: once the cancellation commits
// it stands, even if the refund call to the gateway fails afterwards.
type Engine struct {
	repo           booking.Repository
	gateway        gateway.Client
	trigger        notify.Trigger
	log            *zap.Logger
	refundCutoff   time.Duration
	gatewayTimeout time.Duration
	now            func() time.Time
}

func NewEngine(repo booking.Repository, gw gateway.Client, trigger notify.Trigger, log *zap.Logger, refundCutoff, gatewayTimeout time.Duration) *Engine {
	return &Engine{
		repo:           repo,
		gateway:        gw,
		trigger:        trigger,
		log:            log,
		refundCutoff:   refundCutoff,
		gatewayTimeout: gatewayTimeout,
		now:            time.Now,
	}
}

type CancelResult struct {
	Appointment  *booking.Appointment
	RefundIssued bool
	// RefundErr is set when the cancellation committed but the gateway refund
	// call failed; the caller retries the refund out of band.
	RefundErr error
}

// Cancel cancels an appointment on behalf of an actor and issues a refund
// when the policy grants one. A terminal appointment aborts the whole
// operation before any refund is attempted.
func (e *Engine) Cancel(ctx context.Context, appointmentID uuid.UUID, role booking.ActorRole, reason string) (*CancelResult, error) {
	var (
		cancelled    *booking.Appointment
		refundIntent string
	)

	err := e.repo.InTx(ctx, func(r booking.Repository) error {
		appt, err := r.GetAppointmentByID(ctx, appointmentID)
		if err != nil {
			return err
		}

		decision := Decide(role, appt.StartTime, e.now(), e.refundCutoff)

		cancelled, err = booking.Cancel(ctx, r, appointmentID, role, reason)
		if err != nil {
			return err
		}

		if !decision.RefundEligible {
			e.log.Info("cancellation without refund",
				zap.String("appointment_id", appointmentID.String()),
				zap.String("actor_role", string(role)),
				zap.String("reason", decision.Reason),
			)
			return nil
		}

		p, err := r.GetPaymentByAppointmentID(ctx, appointmentID)
		if err != nil {
			if errors.Is(err, booking.ErrPaymentNotFound) {
				// Nothing was ever charged; cancellation alone is the outcome.
				return nil
			}
			return err
		}

		switch p.Status {
		case booking.PaymentSucceeded:
			refundIntent = p.ExternalIntentID
		case booking.PaymentRefunded:
			// Already handled; do not refund or notify twice.
			e.log.Info("payment already refunded, skipping refund",
				zap.String("intent_id", p.ExternalIntentID),
			)
		default:
			// pending or failed: there is nothing to refund.
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &CancelResult{Appointment: cancelled}
	if refundIntent == "" {
		return result, nil
	}

	refundCtx, cancel := context.WithTimeout(ctx, e.gatewayTimeout)
	defer cancel()

	if _, err := e.gateway.Refund(refundCtx, refundIntent); err != nil {
		// The slot is released and the appointment cancelled; surfacing the
		// gateway failure must not undo either.
		e.log.Error("refund call failed after cancellation",
			zap.String("appointment_id", appointmentID.String()),
			zap.String("intent_id", refundIntent),
			zap.Error(err),
		)
		result.RefundErr = err
		return result, nil
	}

	var effects []booking.Effect
	err = e.repo.InTx(ctx, func(r booking.Repository) error {
		p, err := r.GetPaymentByIntentID(ctx, refundIntent)
		if err != nil {
			return err
		}
		effects, err = payment.ApplyRefunded(ctx, r, e.log, refundIntent, booking.MinorUnits(p.Amount, p.Currency))
		return err
	})
	if err != nil {
		// The gateway refund went through; the ledger catches up when the
		// processor's charge_refunded webhook lands.
		e.log.Error("recording refund failed, awaiting webhook reconciliation",
			zap.String("intent_id", refundIntent),
			zap.Error(err),
		)
		result.RefundErr = err
		return result, nil
	}

	notify.Dispatch(ctx, e.trigger, effects)
	result.RefundIssued = true
	return result, nil
}
