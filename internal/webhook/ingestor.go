package webhook

import (
	"context"

	"go.uber.org/zap"

	"github.com/kojjob/wellness-connect-sub000/internal/booking"
	"github.com/kojjob/wellness-connect-sub000/internal/notify"
	"github.com/kojjob/wellness-connect-sub000/internal/payment"
)

// Event types the processor delivers. Anything else is acknowledged and
// dropped so new gateway event types never bounce.
const (
	EventPaymentSucceeded = "payment_succeeded"
	EventPaymentFailed    = "payment_failed"
	EventChargeRefunded   = "charge_refunded"
)

// Event is the decoded processor envelope.
type Event struct {
	ID   string    `json:"id"`
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

type EventData struct {
	PaymentIntentID string `json:"payment_intent_id"`
	AmountRefunded  int64  `json:"amount_refunded"`
	FailureReason   string `json:"failure_reason"`
}

// Ingestor applies verified processor events exactly once. The dedup insert
// and the full ledger/appointment/slot cascade run in one transaction: either
// everything commits or the processor gets an error and redelivers.
type Ingestor struct {
	repo    booking.Repository
	trigger notify.Trigger
	log     *zap.Logger
}

func NewIngestor(repo booking.Repository, trigger notify.Trigger, log *zap.Logger) *Ingestor {
	return &Ingestor{repo: repo, trigger: trigger, log: log}
}

// Process applies one event. It reports applied=false for duplicates, which
// the handler acknowledges with success so the processor stops retrying.
func (i *Ingestor) Process(ctx context.Context, ev Event) (applied bool, err error) {
	var effects []booking.Effect

	err = i.repo.InTx(ctx, func(r booking.Repository) error {
		inserted, err := r.InsertWebhookEvent(ctx, ev.ID, ev.Type)
		if err != nil {
			return err
		}
		if !inserted {
			i.log.Info("duplicate webhook event skipped",
				zap.String("event_id", ev.ID),
				zap.String("event_type", ev.Type),
			)
			return nil
		}
		applied = true

		switch ev.Type {
		case EventPaymentSucceeded:
			effects, err = payment.ApplySucceeded(ctx, r, i.log, ev.Data.PaymentIntentID)
		case EventPaymentFailed:
			effects, err = payment.ApplyFailed(ctx, r, i.log, ev.Data.PaymentIntentID, ev.Data.FailureReason)
		case EventChargeRefunded:
			effects, err = payment.ApplyRefunded(ctx, r, i.log, ev.Data.PaymentIntentID, ev.Data.AmountRefunded)
		default:
			i.log.Info("unrecognized webhook event type acknowledged",
				zap.String("event_id", ev.ID),
				zap.String("event_type", ev.Type),
			)
		}
		return err
	})
	if err != nil {
		return false, err
	}

	// Only after commit; a rolled-back cascade must not notify anyone.
	notify.Dispatch(ctx, i.trigger, effects)

	return applied, nil
}
