package state

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Cleaner resets dialogs that were abandoned half-way, so a user who comes
// back much later starts from the main menu instead of being asked for a date.
type Cleaner struct {
	storage  Storage
	log      *slog.Logger
	maxAge   time.Duration
	interval time.Duration
}

// NewCleaner constructs a Cleaner that clears sessions not updated for maxAge.
func NewCleaner(storage Storage, log *slog.Logger, maxAge, interval time.Duration) *Cleaner {
	if log == nil {
		log = slog.Default()
	}

	return &Cleaner{
		storage:  storage,
		log:      log,
		maxAge:   maxAge,
		interval: interval,
	}
}

// Run starts the cleanup loop until the context is cancelled.
func (c *Cleaner) Run(ctx context.Context) {
	if c.storage == nil || c.interval <= 0 || c.maxAge <= 0 {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("state cleaner stopped", slog.Any("reason", ctx.Err()))
			return
		case <-ticker.C:
			if n := c.cleanup(ctx); n > 0 {
				c.log.Info("stale dialog sessions cleared", slog.Int("count", n))
			}
		}
	}
}

func (c *Cleaner) cleanup(ctx context.Context) int {
	states, err := c.storage.GetAllStates(ctx)
	if err != nil {
		c.log.Error("state cleaner failed to list states", slog.Any("error", err))
		return 0
	}

	cleared := 0
	for _, st := range states {
		if st == nil || time.Since(st.UpdatedAt) <= c.maxAge {
			continue
		}

		if err := c.storage.ClearState(ctx, st.UserID); err != nil && !errors.Is(err, ErrStateNotFound) {
			c.log.Error("state cleaner failed to clear state", slog.Int64("user_id", st.UserID), slog.Any("error", err))
			continue
		}
		cleared++
	}

	return cleared
}
