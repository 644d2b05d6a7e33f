package notifier

import (
	"context"
	"log/slog"
	"time"

	errors "github.com/Proton-105/slotwatch/internal/errors"
	"github.com/Proton-105/slotwatch/internal/idempotency"
	"github.com/Proton-105/slotwatch/pkg/metrics"
)

const dedupKeyPrefix = "notify:"

// Notifier delivers a message to a user.
type Notifier interface {
	Send(ctx context.Context, userID, message string) error
}

// Dedup suppresses an identical message to the same user within window.
// The window is kept shorter than the poll interval, so only overlapping
// cycles are collapsed; the next regular cycle notifies again.
type Dedup struct {
	next    Notifier
	manager idempotency.Manager
	window  time.Duration
	log     *slog.Logger
}

// NewDedup wraps next.
func NewDedup(next Notifier, manager idempotency.Manager, window time.Duration, log *slog.Logger) *Dedup {
	if log == nil {
		log = slog.Default()
	}

	return &Dedup{
		next:    next,
		manager: manager,
		window:  window,
		log:     log.With(slog.String("component", "notifier_dedup")),
	}
}

// Send forwards to the wrapped notifier unless the same message was already
// delivered to userID within the window. If the dedup store is unavailable
// the message is sent anyway.
func (d *Dedup) Send(ctx context.Context, userID, message string) error {
	if d.manager == nil || d.window <= 0 {
		return d.next.Send(ctx, userID, message)
	}

	key := dedupKeyPrefix + idempotency.GenerateKey(userID, message)

	var (
		attempted bool
		sendErr   error
	)
	result, err := d.manager.Execute(ctx, key, d.window, func(execCtx context.Context) (interface{}, error) {
		attempted = true
		sendErr = d.next.Send(execCtx, userID, message)
		return nil, sendErr
	})

	switch {
	case sendErr != nil:
		return sendErr
	case errors.Is(err, idempotency.ErrRequestInProgress):
		metrics.RecordNotification("duplicate")
		d.log.Debug("notification in flight elsewhere", slog.String("user_id", userID))
		return nil
	case err != nil && attempted:
		// delivered, but the record was not stored
		d.log.Warn("failed to record notification", slog.String("user_id", userID), slog.Any("error", err))
		return nil
	case err != nil:
		d.log.Warn("dedup store unavailable, sending without dedup", slog.String("user_id", userID), slog.Any("error", err))
		return d.next.Send(ctx, userID, message)
	case result != nil && result.FromCache:
		metrics.RecordNotification("duplicate")
		d.log.Debug("duplicate notification suppressed", slog.String("user_id", userID))
		return nil
	}

	return nil
}
