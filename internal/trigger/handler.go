// Package trigger adapts external invocations (scheduler ticks, HTTP calls,
// one-shot CLI runs) to a reconciliation cycle.
package trigger

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/Proton-105/slotwatch/internal/reconcile"
	"github.com/Proton-105/slotwatch/pkg/logger"
)

const (
	messageCompleted = "Poll cycle completed"
	messagePartial   = "Poll cycle partially completed"
	messageFailed    = "Poll cycle failed"

	maxEventSize = 64 << 10
)

// CycleRunner runs one reconciliation cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) (reconcile.Report, error)
}

// Body is the response payload; Input echoes the triggering event.
type Body struct {
	Message string          `json:"message"`
	Input   json.RawMessage `json:"input"`
}

// Response mirrors a serverless invocation result.
type Response struct {
	StatusCode int  `json:"statusCode"`
	Body       Body `json:"body"`
}

// Handler runs a cycle per invocation under a deadline.
type Handler struct {
	runner  CycleRunner
	timeout time.Duration
	log     *slog.Logger
}

// NewHandler builds a Handler; timeout bounds each cycle.
func NewHandler(runner CycleRunner, timeout time.Duration, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}

	return &Handler{
		runner:  runner,
		timeout: timeout,
		log:     log.With(slog.String("component", "trigger")),
	}
}

// Handle runs one cycle for event and reports 200 on (partial) success, 500 otherwise.
func (h *Handler) Handle(ctx context.Context, event json.RawMessage) Response {
	if len(event) == 0 || !json.Valid(event) {
		event = json.RawMessage("{}")
	}

	if logger.CorrelationIDFromContext(ctx) == "" {
		ctx = logger.WithCorrelationID(ctx, "")
	}

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	report, err := h.runner.RunCycle(ctx)
	if err != nil {
		h.log.Error("poll cycle failed",
			slog.String("correlation_id", logger.CorrelationIDFromContext(ctx)),
			slog.Any("error", err),
		)
		return Response{
			StatusCode: http.StatusInternalServerError,
			Body:       Body{Message: messageFailed + ": " + err.Error(), Input: event},
		}
	}

	message := messageCompleted
	if report.Partial() {
		message = messagePartial
	}

	return Response{StatusCode: http.StatusOK, Body: Body{Message: message, Input: event}}
}

// ServeHTTP exposes Handle as POST /trigger.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var event json.RawMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventSize)).Decode(&event); err != nil {
		event = nil
	}

	resp := h.Handle(r.Context(), event)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	_ = json.NewEncoder(w).Encode(resp)
}
