// Command simulate exercises the booking core end to end, fully in process:
// concurrent bookings racing for one slot, duplicate and out-of-order webhook
// delivery, and cancellation with refund. It needs no Postgres, Redis or
// processor account.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kojjob/wellness-connect-sub000/internal/booking"
	"github.com/kojjob/wellness-connect-sub000/internal/gateway"
	"github.com/kojjob/wellness-connect-sub000/internal/notify"
	"github.com/kojjob/wellness-connect-sub000/internal/policy"
	redisclient "github.com/kojjob/wellness-connect-sub000/internal/redis"
	"github.com/kojjob/wellness-connect-sub000/internal/webhook"
)

const concurrentBookers = 16

func main() {
	log.SetFlags(log.LstdFlags)

	zlog, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer zlog.Sync()

	ctx := context.Background()

	repo := booking.NewMemoryRepository()
	gw := gateway.NewFake()
	trigger := &notify.LogTrigger{Log: zlog}

	bookings := booking.NewService(repo, redisclient.NoopLocker{}, gw, zlog, 5*time.Second)
	cancellations := policy.NewEngine(repo, gw, trigger, zlog, 24*time.Hour, 5*time.Second)
	ingestor := webhook.NewIngestor(repo, trigger, zlog)

	provider := &booking.Provider{ID: uuid.New(), Name: "Dana Wells"}
	if err := repo.CreateProvider(ctx, provider); err != nil {
		log.Fatalf("create provider: %v", err)
	}

	svc := &booking.ProviderService{
		ID:              uuid.New(),
		ProviderID:      provider.ID,
		Name:            "Deep Tissue Massage",
		Price:           decimal.NewFromInt(150),
		Currency:        "USD",
		DurationMinutes: 60,
	}
	if err := repo.CreateService(ctx, svc); err != nil {
		log.Fatalf("create service: %v", err)
	}

	slot := &booking.Availability{
		ID:         uuid.New(),
		ProviderID: provider.ID,
		StartTime:  time.Now().Add(72 * time.Hour),
		EndTime:    time.Now().Add(73 * time.Hour),
	}
	if err := repo.CreateAvailability(ctx, slot); err != nil {
		log.Fatalf("create availability: %v", err)
	}

	patients := make([]*booking.Patient, concurrentBookers)
	for i := range patients {
		patients[i] = &booking.Patient{ID: uuid.New(), Name: fmt.Sprintf("Patient %02d", i)}
		if err := repo.CreatePatient(ctx, patients[i]); err != nil {
			log.Fatalf("create patient: %v", err)
		}
	}

	// Phase 1: concurrent bookings for one slot.
	fmt.Printf("\n--- %d concurrent bookings for one slot ---\n", concurrentBookers)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		won       *booking.BookResult
		conflicts int
	)

	for _, p := range patients {
		wg.Add(1)
		go func(patientID uuid.UUID) {
			defer wg.Done()
			res, err := bookings.Book(ctx, booking.BookRequest{
				PatientID:      patientID,
				ServiceID:      svc.ID,
				AvailabilityID: slot.ID,
			})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won = res
			case errors.Is(err, booking.ErrSlotUnavailable):
				conflicts++
			default:
				log.Fatalf("unexpected booking error: %v", err)
			}
		}(p.ID)
	}
	wg.Wait()

	if won == nil || conflicts != concurrentBookers-1 {
		log.Fatalf("expected exactly one winner, got winner=%v conflicts=%d", won != nil, conflicts)
	}
	fmt.Printf("one winner (%s), %d slot_unavailable conflicts\n", won.Appointment.ID, conflicts)

	intentID := won.Payment.ExternalIntentID

	// Phase 2: success webhook delivered twice.
	fmt.Printf("\n--- duplicate payment_succeeded delivery ---\n")
	deliver(ctx, ingestor, webhook.Event{
		ID:   "evt_success_1",
		Type: webhook.EventPaymentSucceeded,
		Data: webhook.EventData{PaymentIntentID: intentID},
	})
	deliver(ctx, ingestor, webhook.Event{
		ID:   "evt_success_1",
		Type: webhook.EventPaymentSucceeded,
		Data: webhook.EventData{PaymentIntentID: intentID},
	})
	printState(ctx, repo, won.Appointment.ID, intentID, slot.ID)

	// Phase 3: patient cancels with >24h notice; refund issues.
	fmt.Printf("\n--- patient cancellation with refund ---\n")
	res, err := cancellations.Cancel(ctx, won.Appointment.ID, booking.RolePatient, "schedule conflict")
	if err != nil {
		log.Fatalf("cancel: %v", err)
	}
	fmt.Printf("status=%s refund_issued=%t\n", res.Appointment.Status, res.RefundIssued)

	// Phase 4: a late success event after the refund is a no-op.
	fmt.Printf("\n--- late payment_succeeded after refund ---\n")
	deliver(ctx, ingestor, webhook.Event{
		ID:   "evt_success_2",
		Type: webhook.EventPaymentSucceeded,
		Data: webhook.EventData{PaymentIntentID: intentID},
	})
	printState(ctx, repo, won.Appointment.ID, intentID, slot.ID)

	fmt.Printf("\nsimulation complete: refunds issued via gateway = %d\n", gw.RefundCount())
}

func deliver(ctx context.Context, ingestor *webhook.Ingestor, ev webhook.Event) {
	applied, err := ingestor.Process(ctx, ev)
	if err != nil {
		log.Fatalf("process %s: %v", ev.ID, err)
	}
	fmt.Printf("event %s (%s): applied=%t\n", ev.ID, ev.Type, applied)
}

func printState(ctx context.Context, repo booking.Repository, apptID uuid.UUID, intentID string, slotID uuid.UUID) {
	appt, err := repo.GetAppointmentByID(ctx, apptID)
	if err != nil {
		log.Fatalf("get appointment: %v", err)
	}
	pay, err := repo.GetPaymentByIntentID(ctx, intentID)
	if err != nil {
		log.Fatalf("get payment: %v", err)
	}
	slot, err := repo.GetAvailabilityByID(ctx, slotID)
	if err != nil {
		log.Fatalf("get slot: %v", err)
	}
	fmt.Printf("appointment=%s payment=%s slot_booked=%t\n", appt.Status, pay.Status, slot.IsBooked)
}
