// Package handlers contains asynq task handlers.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hibiken/asynq"

	"github.com/Proton-105/slotwatch/internal/trigger"
	"github.com/Proton-105/slotwatch/pkg/logger"
)

// Invoker runs a cycle for a triggering event.
type Invoker interface {
	Handle(ctx context.Context, event json.RawMessage) trigger.Response
}

// PollCycleHandler processes poll:cycle tasks.
type PollCycleHandler struct {
	invoker Invoker
	log     *slog.Logger
}

func NewPollCycleHandler(invoker Invoker, log *slog.Logger) *PollCycleHandler {
	if log == nil {
		log = slog.Default()
	}
	return &PollCycleHandler{invoker: invoker, log: log}
}

func (h *PollCycleHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	if !json.Valid(t.Payload()) {
		h.log.ErrorContext(ctx, "poll cycle: invalid payload", slog.String("task_type", t.Type()))
		return fmt.Errorf("decode %s payload: %w", t.Type(), asynq.SkipRetry)
	}

	taskID, _ := asynq.GetTaskID(ctx)
	ctx = logger.WithCorrelationID(ctx, taskID)

	resp := h.invoker.Handle(ctx, t.Payload())
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("poll cycle returned %d (%s): %w", resp.StatusCode, resp.Body.Message, asynq.SkipRetry)
	}

	h.log.InfoContext(ctx, "poll cycle task done",
		slog.String("task_id", taskID),
		slog.String("result", resp.Body.Message),
	)

	return nil
}
