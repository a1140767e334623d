package webhook

import (
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// Handler terminates the processor's webhook endpoint: verify, decode,
// ingest. 2xx means applied or already applied; 4xx means the request never
// reached the dedup ledger; 5xx asks the processor to retry.
type Handler struct {
	verifier *Verifier
	ingestor *Ingestor
	log      *zap.Logger
}

func NewHandler(verifier *Verifier, ingestor *Ingestor, log *zap.Logger) *Handler {
	return &Handler{verifier: verifier, ingestor: ingestor, log: log}
}

type webhookResponse struct {
	Received  bool `json:"received"`
	Duplicate bool `json:"duplicate,omitempty"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "could not read request body", http.StatusBadRequest)
		return
	}

	if err := h.verifier.Verify(body, r.Header.Get(SignatureHeader)); err != nil {
		h.log.Warn("webhook signature rejected", zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		http.Error(w, "could not parse event payload", http.StatusBadRequest)
		return
	}
	if ev.ID == "" || ev.Type == "" {
		http.Error(w, "event id and type are required", http.StatusBadRequest)
		return
	}

	applied, err := h.ingestor.Process(r.Context(), ev)
	if err != nil {
		// Transient: the processor retries with the same event id, which hits
		// the dedup ledger only after a successful apply.
		h.log.Error("webhook processing failed",
			zap.String("event_id", ev.ID),
			zap.String("event_type", ev.Type),
			zap.Error(err),
		)
		http.Error(w, "event processing failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(webhookResponse{Received: true, Duplicate: !applied})
}
