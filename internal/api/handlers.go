package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kojjob/wellness-connect-sub000/internal/booking"
	"github.com/kojjob/wellness-connect-sub000/internal/gateway"
	"github.com/kojjob/wellness-connect-sub000/internal/policy"
)

func createBookingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateBookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeValidationError(w, err)
			return
		}

		patientID, _ := uuid.Parse(req.PatientID)
		serviceID, _ := uuid.Parse(req.ServiceID)
		availabilityID, _ := uuid.Parse(req.AvailabilityID)

		result, err := svc.Book(r.Context(), booking.BookRequest{
			PatientID:      patientID,
			ServiceID:      serviceID,
			AvailabilityID: availabilityID,
		})
		if err != nil {
			handleBookError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, BookingResponse{
			Appointment: toAppointmentResponse(result.Appointment),
			Payment: PaymentResponse{
				IntentID:     result.Payment.ExternalIntentID,
				ClientSecret: result.ClientSecret,
				Amount:       result.Payment.Amount.String(),
				Currency:     result.Payment.Currency,
				Status:       string(result.Payment.Status),
			},
		})
	}
}

func cancelAppointmentHandler(engine *policy.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req CancelAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeValidationError(w, err)
			return
		}

		result, err := engine.Cancel(r.Context(), id, booking.ActorRole(req.ActorRole), req.Reason)
		if err != nil {
			handleCancelError(w, err)
			return
		}

		resp := CancelAppointmentResponse{
			Appointment:  toAppointmentResponse(result.Appointment),
			RefundIssued: result.RefundIssued,
		}
		if result.RefundErr != nil {
			resp.RefundError = result.RefundErr.Error()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			if errors.Is(err, booking.ErrAppointmentNotFound) {
				writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, err := uuid.Parse(r.URL.Query().Get("patient_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		limit := queryInt(r, "limit", 20)
		offset := queryInt(r, "offset", 0)

		appts, err := svc.ListAppointmentsByPatient(r.Context(), patientID, limit, offset)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			resp = append(resp, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func createAvailabilityHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAvailabilityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeValidationError(w, err)
			return
		}

		providerID, _ := uuid.Parse(req.ProviderID)

		a, err := svc.CreateAvailability(r.Context(), providerID, req.StartTime, req.EndTime)
		if err != nil {
			switch {
			case errors.Is(err, booking.ErrProviderNotFound):
				writeError(w, http.StatusNotFound, "provider_not_found", err.Error())
			case errors.Is(err, booking.ErrSlotInPast):
				writeError(w, http.StatusUnprocessableEntity, "slot_in_past", err.Error())
			default:
				writeError(w, http.StatusUnprocessableEntity, "invalid_availability", err.Error())
			}
			return
		}

		writeJSON(w, http.StatusCreated, toAvailabilityResponse(a))
	}
}

func listAvailabilitiesHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, err := uuid.Parse(r.URL.Query().Get("provider_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}

		slots, err := svc.ListAvailabilities(r.Context(), providerID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]AvailabilityResponse, 0, len(slots))
		for i := range slots {
			resp = append(resp, toAvailabilityResponse(&slots[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func deleteAvailabilityHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_availability_id", "id must be a valid UUID")
			return
		}

		if err := svc.DeleteAvailability(r.Context(), id); err != nil {
			switch {
			case errors.Is(err, booking.ErrSlotNotFound):
				writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
			case errors.Is(err, booking.ErrSlotBooked):
				writeError(w, http.StatusConflict, "slot_booked", err.Error())
			default:
				writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			}
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func handleBookError(w http.ResponseWriter, err error) {
	var gwErr *gateway.Error
	switch {
	case errors.Is(err, booking.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, booking.ErrServiceNotFound):
		writeError(w, http.StatusNotFound, "service_not_found", err.Error())
	case errors.Is(err, booking.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, booking.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, booking.ErrSlotInPast),
		errors.Is(err, booking.ErrPatientIsProvider),
		errors.Is(err, booking.ErrServiceProviderMismatch):
		writeError(w, http.StatusUnprocessableEntity, "invalid_booking", err.Error())
	case errors.As(err, &gwErr):
		writeError(w, http.StatusBadGateway, "payment_gateway_error", "payment processor unavailable, please retry")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleCancelError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, booking.ErrAlreadyCancelled):
		writeError(w, http.StatusConflict, "already_cancelled", err.Error())
	case errors.Is(err, booking.ErrCannotCancelCompleted):
		writeError(w, http.StatusConflict, "appointment_completed", err.Error())
	case errors.Is(err, booking.ErrCannotCancelNoShow):
		writeError(w, http.StatusConflict, "appointment_no_show", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
