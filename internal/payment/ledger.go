// Package payment owns the payment state machine. The machine is monotone —
// pending -> succeeded, pending -> failed, succeeded -> refunded — and every
// illegal edge is a silent no-op, because an illegal edge is the normal shape
// of a duplicate or out-of-order processor event, not a bug.
package payment

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/kojjob/wellness-connect-sub000/internal/booking"
)

// ApplySucceeded records a confirmed charge and schedules the appointment.
// Runs on the caller's transaction-bound repository so the ledger write and
// the appointment transition commit together.
func ApplySucceeded(ctx context.Context, r booking.Repository, log *zap.Logger, intentID string) ([]booking.Effect, error) {
	p, err := r.GetPaymentByIntentID(ctx, intentID)
	if err != nil {
		if errors.Is(err, booking.ErrPaymentNotFound) {
			log.Warn("success event for unknown intent", zap.String("intent_id", intentID))
			return nil, nil
		}
		return nil, err
	}

	switch p.Status {
	case booking.PaymentSucceeded:
		// Duplicate delivery; first apply already ran the side effects.
		return nil, nil
	case booking.PaymentFailed, booking.PaymentRefunded:
		// refunded is further along the legal chain; a late success must not
		// rewind it. failed means the appointment is already cancelled.
		log.Info("ignoring success event for settled payment",
			zap.String("intent_id", intentID),
			zap.String("status", string(p.Status)),
		)
		return nil, nil
	}

	if _, err := r.UpdatePaymentStatus(ctx, intentID, booking.PaymentPending, booking.PaymentSucceeded); err != nil {
		if errors.Is(err, booking.ErrStatusConflict) {
			return nil, nil
		}
		return nil, err
	}

	return booking.ConfirmPayment(ctx, r, log, p.AppointmentID)
}

// ApplyFailed records a failed charge, cancels the appointment and releases
// its slot. Only a pending payment can fail; anything else is a stale event.
func ApplyFailed(ctx context.Context, r booking.Repository, log *zap.Logger, intentID, reason string) ([]booking.Effect, error) {
	p, err := r.GetPaymentByIntentID(ctx, intentID)
	if err != nil {
		if errors.Is(err, booking.ErrPaymentNotFound) {
			log.Warn("failure event for unknown intent", zap.String("intent_id", intentID))
			return nil, nil
		}
		return nil, err
	}

	if p.Status != booking.PaymentPending {
		return nil, nil
	}

	if _, err := r.UpdatePaymentStatus(ctx, intentID, booking.PaymentPending, booking.PaymentFailed); err != nil {
		if errors.Is(err, booking.ErrStatusConflict) {
			return nil, nil
		}
		return nil, err
	}

	if reason == "" {
		reason = "payment failed"
	}
	return booking.FailPayment(ctx, r, log, p.AppointmentID, reason)
}

// ApplyRefunded records a processor refund. amountRefundedMinor is what the
// processor reports, in integer minor units; the full/partial classification
// compares minor units against the original amount so no float is involved.
func ApplyRefunded(ctx context.Context, r booking.Repository, log *zap.Logger, intentID string, amountRefundedMinor int64) ([]booking.Effect, error) {
	p, err := r.GetPaymentByIntentID(ctx, intentID)
	if err != nil {
		if errors.Is(err, booking.ErrPaymentNotFound) {
			log.Warn("refund event for unknown intent", zap.String("intent_id", intentID))
			return nil, nil
		}
		return nil, err
	}

	switch p.Status {
	case booking.PaymentRefunded:
		return nil, nil
	case booking.PaymentPending, booking.PaymentFailed:
		log.Info("ignoring refund event for unsettled payment",
			zap.String("intent_id", intentID),
			zap.String("status", string(p.Status)),
		)
		return nil, nil
	}

	updated, err := r.UpdatePaymentStatus(ctx, intentID, booking.PaymentSucceeded, booking.PaymentRefunded)
	if err != nil {
		if errors.Is(err, booking.ErrStatusConflict) {
			return nil, nil
		}
		return nil, err
	}

	refundType := booking.RefundPartial
	if amountRefundedMinor == booking.MinorUnits(p.Amount, p.Currency) {
		refundType = booking.RefundFull
	}

	return []booking.Effect{{
		Kind:       booking.EffectRefundProcessed,
		Payment:    updated,
		RefundType: refundType,
	}}, nil
}
