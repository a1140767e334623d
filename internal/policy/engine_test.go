package policy

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kojjob/wellness-connect-sub000/internal/booking"
	"github.com/kojjob/wellness-connect-sub000/internal/gateway"
)

type spyTrigger struct {
	booked   int
	failed   int
	refunded int
}

func (s *spyTrigger) NotifyAppointmentBooked(ctx context.Context, appt *booking.Appointment) {
	s.booked++
}

func (s *spyTrigger) NotifyPaymentFailed(ctx context.Context, appt *booking.Appointment) {
	s.failed++
}

func (s *spyTrigger) NotifyRefundProcessed(ctx context.Context, p *booking.Payment, refundType booking.RefundType) {
	s.refunded++
}

type engineFixture struct {
	repo    *booking.MemoryRepository
	gw      *gateway.Fake
	trigger *spyTrigger
	engine  *Engine
	now     time.Time
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	f := &engineFixture{
		repo:    booking.NewMemoryRepository(),
		gw:      gateway.NewFake(),
		trigger: &spyTrigger{},
		now:     time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	f.engine = NewEngine(f.repo, f.gw, f.trigger, zap.NewNop(), 24*time.Hour, time.Second)
	f.engine.now = func() time.Time { return f.now }
	return f
}

// seed plants a booked slot, an appointment starting at f.now+notice and a
// payment in the given status.
func (f *engineFixture) seed(t *testing.T, notice time.Duration, apptStatus booking.AppointmentStatus, payStatus booking.PaymentStatus) (*booking.Appointment, string) {
	t.Helper()
	ctx := context.Background()

	slot := &booking.Availability{
		ID:         uuid.New(),
		ProviderID: uuid.New(),
		StartTime:  f.now.Add(notice),
		EndTime:    f.now.Add(notice + time.Hour),
	}
	require.NoError(t, f.repo.CreateAvailability(ctx, slot))
	require.NoError(t, f.repo.ReserveSlot(ctx, slot.ID))

	appt := &booking.Appointment{
		ID:             uuid.New(),
		PatientID:      uuid.New(),
		ProviderID:     slot.ProviderID,
		ServiceID:      uuid.New(),
		AvailabilityID: slot.ID,
		StartTime:      slot.StartTime,
		EndTime:        slot.EndTime,
		Status:         apptStatus,
	}
	require.NoError(t, f.repo.CreateAppointment(ctx, appt))

	intentID := "pi_engine_" + appt.ID.String()[:8]
	pay := &booking.Payment{
		ID:               uuid.New(),
		PayerID:          appt.PatientID,
		AppointmentID:    appt.ID,
		Amount:           decimal.NewFromInt(200),
		Currency:         "USD",
		Status:           payStatus,
		ExternalIntentID: intentID,
	}
	require.NoError(t, f.repo.CreatePayment(ctx, pay))

	return appt, intentID
}

func TestCancelWithRefund(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	appt, intentID := f.seed(t, 72*time.Hour, booking.StatusScheduled, booking.PaymentSucceeded)

	res, err := f.engine.Cancel(ctx, appt.ID, booking.RolePatient, "schedule conflict")
	require.NoError(t, err)
	require.NoError(t, res.RefundErr)
	assert.True(t, res.RefundIssued)
	assert.Equal(t, booking.StatusCancelledByPatient, res.Appointment.Status)

	assert.Equal(t, 1, f.gw.RefundCount())
	assert.Equal(t, []string{intentID}, f.gw.RefundCalls)
	assert.Equal(t, 1, f.trigger.refunded)

	p, err := f.repo.GetPaymentByIntentID(ctx, intentID)
	require.NoError(t, err)
	assert.Equal(t, booking.PaymentRefunded, p.Status)

	slot, err := f.repo.GetAvailabilityByID(ctx, appt.AvailabilityID)
	require.NoError(t, err)
	assert.False(t, slot.IsBooked)
}

func TestCancelInsideCutoffNoRefund(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	appt, intentID := f.seed(t, 23*time.Hour, booking.StatusScheduled, booking.PaymentSucceeded)

	res, err := f.engine.Cancel(ctx, appt.ID, booking.RolePatient, "last minute")
	require.NoError(t, err)
	assert.False(t, res.RefundIssued)
	assert.Equal(t, booking.StatusCancelledByPatient, res.Appointment.Status)

	// The cancellation stands; the money stays.
	assert.Equal(t, 0, f.gw.RefundCount())
	p, err := f.repo.GetPaymentByIntentID(ctx, intentID)
	require.NoError(t, err)
	assert.Equal(t, booking.PaymentSucceeded, p.Status)

	slot, err := f.repo.GetAvailabilityByID(ctx, appt.AvailabilityID)
	require.NoError(t, err)
	assert.False(t, slot.IsBooked)
}

func TestCancelExactlyAtCutoffRefunds(t *testing.T) {
	f := newEngineFixture(t)
	appt, _ := f.seed(t, 24*time.Hour, booking.StatusScheduled, booking.PaymentSucceeded)

	res, err := f.engine.Cancel(context.Background(), appt.ID, booking.RolePatient, "on the line")
	require.NoError(t, err)
	assert.True(t, res.RefundIssued)
}

func TestProviderCancelAlwaysRefunds(t *testing.T) {
	f := newEngineFixture(t)
	appt, _ := f.seed(t, time.Hour, booking.StatusScheduled, booking.PaymentSucceeded)

	res, err := f.engine.Cancel(context.Background(), appt.ID, booking.RoleProvider, "emergency")
	require.NoError(t, err)
	assert.True(t, res.RefundIssued)
	assert.Equal(t, booking.StatusCancelledByProvider, res.Appointment.Status)
	assert.Equal(t, 1, f.gw.RefundCount())
}

func TestCancelPendingPaymentNothingToRefund(t *testing.T) {
	f := newEngineFixture(t)
	appt, intentID := f.seed(t, 72*time.Hour, booking.StatusPaymentPending, booking.PaymentPending)

	res, err := f.engine.Cancel(context.Background(), appt.ID, booking.RolePatient, "changed my mind")
	require.NoError(t, err)
	assert.False(t, res.RefundIssued)
	assert.Equal(t, 0, f.gw.RefundCount())

	p, err := f.repo.GetPaymentByIntentID(context.Background(), intentID)
	require.NoError(t, err)
	assert.Equal(t, booking.PaymentPending, p.Status)
}

func TestCancelAlreadyRefundedSkipsGateway(t *testing.T) {
	f := newEngineFixture(t)
	appt, _ := f.seed(t, 72*time.Hour, booking.StatusScheduled, booking.PaymentRefunded)

	res, err := f.engine.Cancel(context.Background(), appt.ID, booking.RolePatient, "redundant")
	require.NoError(t, err)
	assert.False(t, res.RefundIssued)
	assert.Equal(t, 0, f.gw.RefundCount())
	assert.Equal(t, 0, f.trigger.refunded)
}

func TestCancelRefundGatewayFailure(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	appt, intentID := f.seed(t, 72*time.Hour, booking.StatusScheduled, booking.PaymentSucceeded)
	f.gw.RefundErr = &gateway.Error{StatusCode: 503, Message: "gateway down"}

	res, err := f.engine.Cancel(ctx, appt.ID, booking.RolePatient, "schedule conflict")
	require.NoError(t, err)
	require.Error(t, res.RefundErr)
	assert.False(t, res.RefundIssued)

	// The cancellation committed before the gateway call and must survive it.
	got, err := f.repo.GetAppointmentByID(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCancelledByPatient, got.Status)

	// The ledger still says succeeded; the refund is retried out of band.
	p, err := f.repo.GetPaymentByIntentID(ctx, intentID)
	require.NoError(t, err)
	assert.Equal(t, booking.PaymentSucceeded, p.Status)
}

func TestCancelTwice(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	appt, _ := f.seed(t, 72*time.Hour, booking.StatusScheduled, booking.PaymentSucceeded)

	_, err := f.engine.Cancel(ctx, appt.ID, booking.RolePatient, "first")
	require.NoError(t, err)

	_, err = f.engine.Cancel(ctx, appt.ID, booking.RolePatient, "second")
	assert.ErrorIs(t, err, booking.ErrAlreadyCancelled)
	assert.Equal(t, 1, f.gw.RefundCount())
}

func TestCancelUnknownAppointment(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.engine.Cancel(context.Background(), uuid.New(), booking.RolePatient, "nope")
	assert.ErrorIs(t, err, booking.ErrAppointmentNotFound)
}
