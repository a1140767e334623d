package api

import (
	"time"

	"github.com/google/uuid"
)

type CreateBookingRequest struct {
	PatientID      string `json:"patient_id" validate:"required,uuid"`
	ServiceID      string `json:"service_id" validate:"required,uuid"`
	AvailabilityID string `json:"availability_id" validate:"required,uuid"`
}

type BookingResponse struct {
	Appointment AppointmentResponse `json:"appointment"`
	Payment     PaymentResponse     `json:"payment"`
}

type AppointmentResponse struct {
	ID                 uuid.UUID `json:"id"`
	PatientID          uuid.UUID `json:"patient_id"`
	ProviderID         uuid.UUID `json:"provider_id"`
	ServiceID          uuid.UUID `json:"service_id"`
	AvailabilityID     uuid.UUID `json:"availability_id"`
	StartTime          time.Time `json:"start_time"`
	EndTime            time.Time `json:"end_time"`
	Status             string    `json:"status"`
	CancellationReason *string   `json:"cancellation_reason,omitempty"`
}

type PaymentResponse struct {
	IntentID     string `json:"intent_id"`
	ClientSecret string `json:"client_secret,omitempty"`
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
}

type CancelAppointmentRequest struct {
	ActorRole string `json:"actor_role" validate:"required,oneof=patient provider"`
	Reason    string `json:"reason" validate:"max=500"`
}

type CancelAppointmentResponse struct {
	Appointment  AppointmentResponse `json:"appointment"`
	RefundIssued bool                `json:"refund_issued"`
	RefundError  string              `json:"refund_error,omitempty"`
}

type CreateAvailabilityRequest struct {
	ProviderID string    `json:"provider_id" validate:"required,uuid"`
	StartTime  time.Time `json:"start_time" validate:"required"`
	EndTime    time.Time `json:"end_time" validate:"required"`
}

type AvailabilityResponse struct {
	ID         uuid.UUID `json:"id"`
	ProviderID uuid.UUID `json:"provider_id"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	IsBooked   bool      `json:"is_booked"`
}

type ErrorResponse struct {
	Error   string            `json:"error"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}
