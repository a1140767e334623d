package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kojjob/wellness-connect-sub000/internal/booking"
)

func newTestHandler(t *testing.T) (*Handler, *booking.MemoryRepository) {
	t.Helper()
	repo := booking.NewMemoryRepository()
	ing := NewIngestor(repo, &spyTrigger{}, zap.NewNop())
	return NewHandler(NewVerifier(testSecret, false), ing, zap.NewNop()), repo
}

func postEvent(h *Handler, body []byte, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", bytes.NewReader(body))
	if header != "" {
		req.Header.Set(SignatureHeader, header)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerSignedDelivery(t *testing.T) {
	h, repo := newTestHandler(t)
	appt := seedBooking(t, repo)

	body, err := json.Marshal(Event{
		ID:   "evt_http_1",
		Type: EventPaymentSucceeded,
		Data: EventData{PaymentIntentID: testIntent},
	})
	require.NoError(t, err)

	rec := postEvent(h, body, SignatureFor(testSecret, body))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp webhookResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Received)
	assert.False(t, resp.Duplicate)

	got, err := repo.GetAppointmentByID(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusScheduled, got.Status)
}

func TestHandlerDuplicateAcknowledged(t *testing.T) {
	h, repo := newTestHandler(t)
	seedBooking(t, repo)

	body, err := json.Marshal(Event{
		ID:   "evt_http_dup",
		Type: EventPaymentSucceeded,
		Data: EventData{PaymentIntentID: testIntent},
	})
	require.NoError(t, err)

	first := postEvent(h, body, SignatureFor(testSecret, body))
	require.Equal(t, http.StatusOK, first.Code)

	second := postEvent(h, body, SignatureFor(testSecret, body))
	assert.Equal(t, http.StatusOK, second.Code)

	var resp webhookResponse
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &resp))
	assert.True(t, resp.Received)
	assert.True(t, resp.Duplicate)
}

func TestHandlerRejectsBadRequests(t *testing.T) {
	h, _ := newTestHandler(t)

	valid, err := json.Marshal(Event{ID: "evt_x", Type: EventPaymentFailed})
	require.NoError(t, err)

	t.Run("missing signature", func(t *testing.T) {
		rec := postEvent(h, valid, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		rec := postEvent(h, valid, SignatureFor("whsec_wrong", valid))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unparseable body", func(t *testing.T) {
		body := []byte("{not json")
		rec := postEvent(h, body, SignatureFor(testSecret, body))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing id and type", func(t *testing.T) {
		body := []byte(`{"data":{}}`)
		rec := postEvent(h, body, SignatureFor(testSecret, body))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
