package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jusdhrv/Trequer-Dashboard/pkg/apperror"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/config"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/httpx"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/logging"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/reading"
	"github.com/jusdhrv/Trequer-Dashboard/pkg/storage"
)

// Handler handles reading ingestion from the rover
type Handler struct {
	store  storage.ReadingStore
	hub    *ReadingsHub
	now    func() time.Time
	logger *logging.Logger
}

// NewHandler creates a new ingest handler. hub may be nil.
func NewHandler(store storage.ReadingStore, hub *ReadingsHub) *Handler {
	return &Handler{
		store:  store,
		hub:    hub,
		now:    time.Now,
		logger: logging.With("component", "ingest"),
	}
}

// IngestRequest represents the request payload of POST /v1/readings
type IngestRequest struct {
	Readings []reading.Reading `json:"readings"`
}

// IngestResponse represents the response payload
type IngestResponse struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// ReadingsEvent is what websocket clients receive for each accepted batch
type ReadingsEvent struct {
	Type      string            `json:"type"`
	DataClass reading.DataClass `json:"data_class"`
	Readings  []reading.Reading `json:"readings"`
}

// HandleReadings handles POST /v1/readings
func (h *Handler) HandleReadings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.RespondMethodNotAllowed(w)
		return
	}

	var req IngestRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes)).Decode(&req); err != nil {
		httpx.RespondErrorString(w, apperror.KindInvalidRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if req.Readings == nil {
		httpx.RespondErrorString(w, apperror.KindInvalidRequest, "expected an array of readings")
		return
	}
	if len(req.Readings) > MaxReadingsPerRequest {
		httpx.RespondErrorString(w, apperror.KindInvalidRequest, ErrTooManyReadings.Error())
		return
	}

	now := h.now()
	for i, rd := range req.Readings {
		if err := ValidateReading(rd, now); err != nil {
			httpx.RespondErrorString(w, apperror.KindInvalidRequest, fmt.Sprintf("invalid reading %d: %v", i, err))
			return
		}
	}

	if err := h.write(r.Context(), reading.ClassSensor, req.Readings); err != nil {
		httpx.RespondError(w, err)
		return
	}

	httpx.RespondJSON(w, http.StatusOK, IngestResponse{Status: "success", Count: len(req.Readings)})
}

// HandleDiagnostics handles POST /v1/diagnostics. The body carries every
// diagnostic field plus a timestamp.
func (h *Handler) HandleDiagnostics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.RespondMethodNotAllowed(w)
		return
	}

	var body map[string]json.RawMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes)).Decode(&body); err != nil {
		httpx.RespondErrorString(w, apperror.KindInvalidRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	diag, err := parseDiagnostic(body)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	readings := diag.Readings()
	now := h.now()
	for _, rd := range readings {
		if err := ValidateReading(rd, now); err != nil {
			httpx.RespondErrorString(w, apperror.KindInvalidRequest, err.Error())
			return
		}
	}

	if err := h.write(r.Context(), reading.ClassDiagnostic, readings); err != nil {
		httpx.RespondError(w, err)
		return
	}

	httpx.RespondJSON(w, http.StatusOK, IngestResponse{Status: "success", Count: len(readings)})
}

func parseDiagnostic(body map[string]json.RawMessage) (reading.Diagnostic, error) {
	diag := reading.Diagnostic{Values: make(map[string]float64, len(reading.DiagnosticFields))}

	for _, field := range append(append([]string{}, reading.DiagnosticFields...), "timestamp") {
		if _, ok := body[field]; !ok {
			return diag, apperror.New(apperror.KindInvalidRequest, "missing required field: "+field)
		}
	}

	for _, field := range reading.DiagnosticFields {
		var v float64
		if err := json.Unmarshal(body[field], &v); err != nil {
			return diag, apperror.New(apperror.KindInvalidRequest, field+" must be a number")
		}
		diag.Values[field] = v
	}

	if err := json.Unmarshal(body["timestamp"], &diag.Timestamp); err != nil {
		return diag, apperror.New(apperror.KindInvalidRequest, "timestamp must be an RFC3339 string")
	}
	return diag, nil
}

// write stores readings in batches and broadcasts them. Writes are not
// retried.
func (h *Handler) write(ctx context.Context, class reading.DataClass, readings []reading.Reading) error {
	ctx, cancel := context.WithTimeout(ctx, config.IngestTimeout)
	defer cancel()

	for i := 0; i < len(readings); i += config.IngestWriteBatchSize {
		end := i + config.IngestWriteBatchSize
		if end > len(readings) {
			end = len(readings)
		}

		if err := h.store.WriteReadings(ctx, class, readings[i:end]); err != nil {
			h.logger.Error("Failed to store readings",
				"data_class", class,
				"batch_start", i,
				"error", err)
			return apperror.Wrap(apperror.KindGatewayUnavailable, "failed to store readings", err)
		}
	}

	if h.hub != nil {
		if err := h.hub.Broadcast(ReadingsEvent{Type: "readings", DataClass: class, Readings: readings}); err != nil {
			h.logger.Warn("Failed to broadcast readings", "error", err)
		}
	}
	return nil
}
