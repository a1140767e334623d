package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so the same queries
// run inside or outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	pool *pgxpool.Pool // nil when bound to a transaction
	q    querier
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool, q: pool}
}

func (r *PgRepository) InTx(ctx context.Context, fn func(Repository) error) error {
	if r.pool == nil {
		// Already transaction-bound; nested calls join the outer transaction.
		return fn(r)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&PgRepository{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Scan helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	err := row.Scan(&p.ID, &p.Name, &p.Specialty, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanService(row pgx.Row) (*ProviderService, error) {
	var s ProviderService
	err := row.Scan(&s.ID, &s.ProviderID, &s.Name, &s.Price, &s.Currency, &s.DurationMinutes, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}
	return &s, nil
}

func scanAvailability(row pgx.Row) (*Availability, error) {
	var a Availability
	err := row.Scan(&a.ID, &a.ProviderID, &a.StartTime, &a.EndTime, &a.IsBooked, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}
	return &a, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID, &a.PatientID, &a.ProviderID, &a.ServiceID, &a.AvailabilityID,
		&a.StartTime, &a.EndTime, &a.Status, &a.CancellationReason,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	err := row.Scan(
		&p.ID, &p.PayerID, &p.AppointmentID, &p.Amount, &p.Currency,
		&p.Status, &p.ExternalIntentID, &p.PaidAt, &p.RefundedAt,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Patients, providers, services

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, name, specialty, created_at, updated_at
		FROM providers
		WHERE id = $1
	`, id)
	return scanProvider(row)
}

func (r *PgRepository) GetServiceByID(ctx context.Context, id uuid.UUID) (*ProviderService, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, provider_id, name, price, currency, duration_minutes, created_at, updated_at
		FROM services
		WHERE id = $1
	`, id)
	return scanService(row)
}

func (r *PgRepository) CreatePatient(ctx context.Context, p *Patient) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO patients (id, name, email, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
	`, p.ID, p.Name, p.Email)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *PgRepository) CreateProvider(ctx context.Context, p *Provider) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO providers (id, name, specialty, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
	`, p.ID, p.Name, p.Specialty)
	if err != nil {
		return fmt.Errorf("insert provider: %w", err)
	}
	return nil
}

func (r *PgRepository) CreateService(ctx context.Context, s *ProviderService) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO services (id, provider_id, name, price, currency, duration_minutes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
	`, s.ID, s.ProviderID, s.Name, s.Price, s.Currency, s.DurationMinutes)
	if err != nil {
		return fmt.Errorf("insert service: %w", err)
	}
	return nil
}

// Slot store

func (r *PgRepository) CreateAvailability(ctx context.Context, a *Availability) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO availabilities (id, provider_id, start_time, end_time, is_booked, created_at, updated_at)
		VALUES ($1, $2, $3, $4, false, now(), now())
	`, a.ID, a.ProviderID, a.StartTime, a.EndTime)
	if err != nil {
		return fmt.Errorf("insert availability: %w", err)
	}
	return nil
}

func (r *PgRepository) GetAvailabilityByID(ctx context.Context, id uuid.UUID) (*Availability, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, provider_id, start_time, end_time, is_booked, created_at, updated_at
		FROM availabilities
		WHERE id = $1
	`, id)
	return scanAvailability(row)
}

func (r *PgRepository) ListAvailabilitiesByProvider(ctx context.Context, providerID uuid.UUID, from time.Time) ([]Availability, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, provider_id, start_time, end_time, is_booked, created_at, updated_at
		FROM availabilities
		WHERE provider_id = $1 AND start_time >= $2
		ORDER BY start_time
	`, providerID, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Availability
	for rows.Next() {
		a, err := scanAvailability(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func (r *PgRepository) DeleteAvailability(ctx context.Context, id uuid.UUID) error {
	tag, err := r.q.Exec(ctx, `
		DELETE FROM availabilities
		WHERE id = $1 AND is_booked = false
	`, id)
	if err != nil {
		return fmt.Errorf("delete availability: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := r.GetAvailabilityByID(ctx, id); getErr != nil {
			return getErr
		}
		return ErrSlotBooked
	}
	return nil
}

// ReserveSlot flips is_booked false -> true in a single conditional update.
// Under concurrent reservations exactly one caller sees an affected row.
func (r *PgRepository) ReserveSlot(ctx context.Context, id uuid.UUID) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE availabilities
		SET is_booked = true,
		    updated_at = now()
		WHERE id = $1
		  AND is_booked = false
	`, id)
	if err != nil {
		return fmt.Errorf("reserve slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := r.GetAvailabilityByID(ctx, id); getErr != nil {
			return getErr
		}
		return ErrSlotUnavailable
	}
	return nil
}

// ReleaseSlot is idempotent: releasing an already-open slot affects zero rows
// and is not an error.
func (r *PgRepository) ReleaseSlot(ctx context.Context, id uuid.UUID) error {
	_, err := r.q.Exec(ctx, `
		UPDATE availabilities
		SET is_booked = false,
		    updated_at = now()
		WHERE id = $1
		  AND is_booked = true
	`, id)
	if err != nil {
		return fmt.Errorf("release slot: %w", err)
	}
	return nil
}

// Appointments

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) error {
	row := r.q.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, provider_id, service_id, availability_id,
		                          start_time, end_time, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING created_at, updated_at
	`, a.ID, a.PatientID, a.ProviderID, a.ServiceID, a.AvailabilityID, a.StartTime, a.EndTime, a.Status)
	if err := row.Scan(&a.CreatedAt, &a.UpdatedAt); err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, patient_id, provider_id, service_id, availability_id,
		       start_time, end_time, status, cancellation_reason, created_at, updated_at
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, patient_id, provider_id, service_id, availability_id,
		       start_time, end_time, status, cancellation_reason, created_at, updated_at
		FROM appointments
		WHERE patient_id = $1
		ORDER BY start_time DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from []AppointmentStatus, to AppointmentStatus, reason *string) (*Appointment, error) {
	froms := make([]string, len(from))
	for i, f := range from {
		froms[i] = string(f)
	}

	row := r.q.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    cancellation_reason = COALESCE($3, cancellation_reason),
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($4)
		RETURNING id, patient_id, provider_id, service_id, availability_id,
		          start_time, end_time, status, cancellation_reason, created_at, updated_at
	`, id, to, reason, froms)

	appt, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrStatusConflict
		}
		return nil, err
	}
	return appt, nil
}

// Payments

func (r *PgRepository) CreatePayment(ctx context.Context, p *Payment) error {
	row := r.q.QueryRow(ctx, `
		INSERT INTO payments (id, payer_id, appointment_id, amount, currency, status,
		                      external_intent_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING created_at, updated_at
	`, p.ID, p.PayerID, p.AppointmentID, p.Amount, p.Currency, p.Status, p.ExternalIntentID)
	if err := row.Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *PgRepository) GetPaymentByIntentID(ctx context.Context, intentID string) (*Payment, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, payer_id, appointment_id, amount, currency, status,
		       external_intent_id, paid_at, refunded_at, created_at, updated_at
		FROM payments
		WHERE external_intent_id = $1
	`, intentID)
	return scanPayment(row)
}

func (r *PgRepository) GetPaymentByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*Payment, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, payer_id, appointment_id, amount, currency, status,
		       external_intent_id, paid_at, refunded_at, created_at, updated_at
		FROM payments
		WHERE appointment_id = $1
	`, appointmentID)
	return scanPayment(row)
}

func (r *PgRepository) UpdatePaymentStatus(ctx context.Context, intentID string, from, to PaymentStatus) (*Payment, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE payments
		SET status = $2,
		    paid_at = CASE WHEN $2::text = 'succeeded' THEN now() ELSE paid_at END,
		    refunded_at = CASE WHEN $2::text = 'refunded' THEN now() ELSE refunded_at END,
		    updated_at = now()
		WHERE external_intent_id = $1
		  AND status = $3
		RETURNING id, payer_id, appointment_id, amount, currency, status,
		          external_intent_id, paid_at, refunded_at, created_at, updated_at
	`, intentID, to, from)

	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			return nil, ErrStatusConflict
		}
		return nil, err
	}
	return p, nil
}

// Webhook dedup ledger

func (r *PgRepository) InsertWebhookEvent(ctx context.Context, externalEventID, eventType string) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		INSERT INTO webhook_events (external_event_id, event_type, received_at)
		VALUES ($1, $2, now())
		ON CONFLICT (external_event_id) DO NOTHING
	`, externalEventID, eventType)
	if err != nil {
		return false, fmt.Errorf("insert webhook event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
