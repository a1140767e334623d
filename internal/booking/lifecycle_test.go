package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kojjob/wellness-connect-sub000/internal/gateway"
	redisclient "github.com/kojjob/wellness-connect-sub000/internal/redis"
)

type fixture struct {
	repo     *MemoryRepository
	gw       *gateway.Fake
	svc      *Service
	patient  *Patient
	provider *Provider
	service  *ProviderService
	slot     *Availability
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		repo: NewMemoryRepository(),
		gw:   gateway.NewFake(),
	}
	f.svc = NewService(f.repo, redisclient.NoopLocker{}, f.gw, zap.NewNop(), time.Second)

	f.patient = &Patient{ID: uuid.New(), Name: "Test Patient"}
	require.NoError(t, f.repo.CreatePatient(ctx, f.patient))

	f.provider = &Provider{ID: uuid.New(), Name: "Test Provider"}
	require.NoError(t, f.repo.CreateProvider(ctx, f.provider))

	f.service = &ProviderService{
		ID:              uuid.New(),
		ProviderID:      f.provider.ID,
		Name:            "Consultation",
		Price:           decimal.NewFromInt(120),
		Currency:        "USD",
		DurationMinutes: 60,
	}
	require.NoError(t, f.repo.CreateService(ctx, f.service))

	f.slot = &Availability{
		ID:         uuid.New(),
		ProviderID: f.provider.ID,
		StartTime:  time.Now().Add(48 * time.Hour),
		EndTime:    time.Now().Add(49 * time.Hour),
	}
	require.NoError(t, f.repo.CreateAvailability(ctx, f.slot))

	return f
}

func (f *fixture) book(t *testing.T) *BookResult {
	t.Helper()
	res, err := f.svc.Book(context.Background(), BookRequest{
		PatientID:      f.patient.ID,
		ServiceID:      f.service.ID,
		AvailabilityID: f.slot.ID,
	})
	require.NoError(t, err)
	return res
}

func TestBook(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := f.book(t)

	assert.Equal(t, StatusPaymentPending, res.Appointment.Status)
	assert.Equal(t, f.slot.StartTime, res.Appointment.StartTime)
	assert.Equal(t, PaymentPending, res.Payment.Status)
	assert.True(t, res.Payment.Amount.Equal(f.service.Price))
	assert.NotEmpty(t, res.Payment.ExternalIntentID)
	assert.NotEmpty(t, res.ClientSecret)

	slot, err := f.repo.GetAvailabilityByID(ctx, f.slot.ID)
	require.NoError(t, err)
	assert.True(t, slot.IsBooked)
}

func TestBookValidation(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown patient", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Book(ctx, BookRequest{
			PatientID:      uuid.New(),
			ServiceID:      f.service.ID,
			AvailabilityID: f.slot.ID,
		})
		assert.ErrorIs(t, err, ErrPatientNotFound)
	})

	t.Run("slot in the past", func(t *testing.T) {
		f := newFixture(t)
		past := &Availability{
			ID:         uuid.New(),
			ProviderID: f.provider.ID,
			StartTime:  time.Now().Add(-time.Hour),
			EndTime:    time.Now().Add(-30 * time.Minute),
		}
		require.NoError(t, f.repo.CreateAvailability(ctx, past))

		_, err := f.svc.Book(ctx, BookRequest{
			PatientID:      f.patient.ID,
			ServiceID:      f.service.ID,
			AvailabilityID: past.ID,
		})
		assert.ErrorIs(t, err, ErrSlotInPast)
	})

	t.Run("service from another provider", func(t *testing.T) {
		f := newFixture(t)
		other := &Provider{ID: uuid.New(), Name: "Other Provider"}
		require.NoError(t, f.repo.CreateProvider(ctx, other))
		foreign := &ProviderService{
			ID:         uuid.New(),
			ProviderID: other.ID,
			Name:       "Foreign Service",
			Price:      decimal.NewFromInt(10),
			Currency:   "USD",
		}
		require.NoError(t, f.repo.CreateService(ctx, foreign))

		_, err := f.svc.Book(ctx, BookRequest{
			PatientID:      f.patient.ID,
			ServiceID:      foreign.ID,
			AvailabilityID: f.slot.ID,
		})
		assert.ErrorIs(t, err, ErrServiceProviderMismatch)
	})

	t.Run("already booked slot", func(t *testing.T) {
		f := newFixture(t)
		f.book(t)

		second := &Patient{ID: uuid.New(), Name: "Second Patient"}
		require.NoError(t, f.repo.CreatePatient(ctx, second))

		_, err := f.svc.Book(ctx, BookRequest{
			PatientID:      second.ID,
			ServiceID:      f.service.ID,
			AvailabilityID: f.slot.ID,
		})
		assert.ErrorIs(t, err, ErrSlotUnavailable)
	})
}

func TestBookConcurrentOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const bookers = 20
	patients := make([]uuid.UUID, bookers)
	for i := range patients {
		p := &Patient{ID: uuid.New(), Name: fmt.Sprintf("Patient %d", i)}
		require.NoError(t, f.repo.CreatePatient(ctx, p))
		patients[i] = p.ID
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for _, id := range patients {
		wg.Add(1)
		go func(patientID uuid.UUID) {
			defer wg.Done()
			_, err := f.svc.Book(ctx, BookRequest{
				PatientID:      patientID,
				ServiceID:      f.service.ID,
				AvailabilityID: f.slot.ID,
			})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrSlotUnavailable):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, bookers-1, conflicts)
	// One winner means one intent and one payment row.
	slot, err := f.repo.GetAvailabilityByID(ctx, f.slot.ID)
	require.NoError(t, err)
	assert.True(t, slot.IsBooked)
}

func TestBookGatewayFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gw.CreateIntentErr = &gateway.Error{StatusCode: 503, Message: "gateway down"}

	_, err := f.svc.Book(ctx, BookRequest{
		PatientID:      f.patient.ID,
		ServiceID:      f.service.ID,
		AvailabilityID: f.slot.ID,
	})
	require.Error(t, err)

	var gwErr *gateway.Error
	assert.ErrorAs(t, err, &gwErr)

	// Nothing survives the rollback: the slot is free and bookable again.
	slot, err := f.repo.GetAvailabilityByID(ctx, f.slot.ID)
	require.NoError(t, err)
	assert.False(t, slot.IsBooked)

	appts, err := f.repo.ListAppointmentsByPatient(ctx, f.patient.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, appts)

	f.gw.CreateIntentErr = nil
	f.book(t)
}

func TestConfirmPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	log := zap.NewNop()
	res := f.book(t)

	effects, err := ConfirmPayment(ctx, f.repo, log, res.Appointment.ID)
	require.NoError(t, err)
	require.Len(t, effects, 1)
	assert.Equal(t, EffectAppointmentBooked, effects[0].Kind)
	assert.Equal(t, StatusScheduled, effects[0].Appointment.Status)

	// Confirming a scheduled appointment again changes nothing and emits
	// nothing, so a duplicate delivery cannot re-notify.
	effects, err = ConfirmPayment(ctx, f.repo, log, res.Appointment.ID)
	require.NoError(t, err)
	assert.Empty(t, effects)
}

func TestConfirmPaymentAfterCancellationIsDropped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	log := zap.NewNop()
	res := f.book(t)

	_, err := Cancel(ctx, f.repo, res.Appointment.ID, RolePatient, "changed my mind")
	require.NoError(t, err)

	effects, err := ConfirmPayment(ctx, f.repo, log, res.Appointment.ID)
	require.NoError(t, err)
	assert.Empty(t, effects)

	appt, err := f.repo.GetAppointmentByID(ctx, res.Appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelledByPatient, appt.Status)
}

func TestFailPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	log := zap.NewNop()
	res := f.book(t)

	effects, err := FailPayment(ctx, f.repo, log, res.Appointment.ID, "card declined")
	require.NoError(t, err)
	require.Len(t, effects, 1)
	assert.Equal(t, EffectPaymentFailed, effects[0].Kind)

	appt, err := f.repo.GetAppointmentByID(ctx, res.Appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelledBySystem, appt.Status)
	require.NotNil(t, appt.CancellationReason)
	assert.Equal(t, "card declined", *appt.CancellationReason)

	slot, err := f.repo.GetAvailabilityByID(ctx, f.slot.ID)
	require.NoError(t, err)
	assert.False(t, slot.IsBooked)
}

func TestFailPaymentIgnoredOnceScheduled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	log := zap.NewNop()
	res := f.book(t)

	_, err := ConfirmPayment(ctx, f.repo, log, res.Appointment.ID)
	require.NoError(t, err)

	effects, err := FailPayment(ctx, f.repo, log, res.Appointment.ID, "late failure")
	require.NoError(t, err)
	assert.Empty(t, effects)

	appt, err := f.repo.GetAppointmentByID(ctx, res.Appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, appt.Status)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.book(t)

	appt, err := Cancel(ctx, f.repo, res.Appointment.ID, RoleProvider, "emergency")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelledByProvider, appt.Status)

	slot, err := f.repo.GetAvailabilityByID(ctx, f.slot.ID)
	require.NoError(t, err)
	assert.False(t, slot.IsBooked)

	_, err = Cancel(ctx, f.repo, res.Appointment.ID, RoleProvider, "again")
	assert.ErrorIs(t, err, ErrAlreadyCancelled)
}

func TestCancelTerminalStates(t *testing.T) {
	ctx := context.Background()

	t.Run("completed", func(t *testing.T) {
		f := newFixture(t)
		res := f.book(t)
		_, err := f.repo.UpdateAppointmentStatus(ctx, res.Appointment.ID,
			[]AppointmentStatus{StatusPaymentPending}, StatusCompleted, nil)
		require.NoError(t, err)

		_, err = Cancel(ctx, f.repo, res.Appointment.ID, RolePatient, "too late")
		assert.ErrorIs(t, err, ErrCannotCancelCompleted)
	})

	t.Run("no-show", func(t *testing.T) {
		f := newFixture(t)
		res := f.book(t)
		_, err := f.repo.UpdateAppointmentStatus(ctx, res.Appointment.ID,
			[]AppointmentStatus{StatusPaymentPending}, StatusNoShow, nil)
		require.NoError(t, err)

		_, err = Cancel(ctx, f.repo, res.Appointment.ID, RolePatient, "too late")
		assert.ErrorIs(t, err, ErrCannotCancelNoShow)
	})
}

func TestCreateAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	start := time.Now().Add(24 * time.Hour)
	a, err := f.svc.CreateAvailability(ctx, f.provider.ID, start, start.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, f.provider.ID, a.ProviderID)
	assert.False(t, a.IsBooked)

	_, err = f.svc.CreateAvailability(ctx, f.provider.ID, start, start.Add(-time.Hour))
	assert.Error(t, err)

	_, err = f.svc.CreateAvailability(ctx, uuid.New(), start, start.Add(time.Hour))
	assert.ErrorIs(t, err, ErrProviderNotFound)
}

func TestDeleteAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.DeleteAvailability(ctx, f.slot.ID))
	_, err := f.repo.GetAvailabilityByID(ctx, f.slot.ID)
	assert.ErrorIs(t, err, ErrSlotNotFound)

	assert.ErrorIs(t, f.svc.DeleteAvailability(ctx, uuid.New()), ErrSlotNotFound)
}

func TestDeleteBookedAvailabilityRefused(t *testing.T) {
	f := newFixture(t)
	f.book(t)

	err := f.svc.DeleteAvailability(context.Background(), f.slot.ID)
	assert.ErrorIs(t, err, ErrSlotBooked)
}
