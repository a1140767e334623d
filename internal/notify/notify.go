// Package notify is the outbound notification boundary. Lifecycle transitions
// return booking.Effect values from inside their transactions; callers hand
// the committed effects to Dispatch. The core never waits on or inspects the
// outcome, and runs correctly with the Noop trigger wired in.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/kojjob/wellness-connect-sub000/internal/booking"
)

type Trigger interface {
	NotifyAppointmentBooked(ctx context.Context, appt *booking.Appointment)
	NotifyPaymentFailed(ctx context.Context, appt *booking.Appointment)
	NotifyRefundProcessed(ctx context.Context, p *booking.Payment, refundType booking.RefundType)
}

// Dispatch fires the trigger call for each committed effect.
func Dispatch(ctx context.Context, t Trigger, effects []booking.Effect) {
	for _, e := range effects {
		switch e.Kind {
		case booking.EffectAppointmentBooked:
			t.NotifyAppointmentBooked(ctx, e.Appointment)
		case booking.EffectPaymentFailed:
			t.NotifyPaymentFailed(ctx, e.Appointment)
		case booking.EffectRefundProcessed:
			t.NotifyRefundProcessed(ctx, e.Payment, e.RefundType)
		}
	}
}

// LogTrigger records notifications in the service log. It stands in for the
// real delivery pipeline, which lives outside this core.
type LogTrigger struct {
	Log *zap.Logger
}

func (t *LogTrigger) NotifyAppointmentBooked(ctx context.Context, appt *booking.Appointment) {
	t.Log.Info("notify: appointment booked",
		zap.String("appointment_id", appt.ID.String()),
		zap.String("patient_id", appt.PatientID.String()),
		zap.Time("start_time", appt.StartTime),
	)
}

func (t *LogTrigger) NotifyPaymentFailed(ctx context.Context, appt *booking.Appointment) {
	t.Log.Info("notify: payment failed",
		zap.String("appointment_id", appt.ID.String()),
		zap.String("patient_id", appt.PatientID.String()),
	)
}

func (t *LogTrigger) NotifyRefundProcessed(ctx context.Context, p *booking.Payment, refundType booking.RefundType) {
	t.Log.Info("notify: refund processed",
		zap.String("intent_id", p.ExternalIntentID),
		zap.String("refund_type", string(refundType)),
		zap.String("amount", booking.FormatAmount(p.Amount, p.Currency)),
	)
}

// Noop discards all notifications.
type Noop struct{}

func (Noop) NotifyAppointmentBooked(context.Context, *booking.Appointment) {}

func (Noop) NotifyPaymentFailed(context.Context, *booking.Appointment) {}

func (Noop) NotifyRefundProcessed(context.Context, *booking.Payment, booking.RefundType) {}
