// Package reconcile runs the poll cycle: it matches bookable slots against
// subscriptions and notifies users who can move their appointment earlier.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Proton-105/slotwatch/internal/domain"
	errors "github.com/Proton-105/slotwatch/internal/errors"
	"github.com/Proton-105/slotwatch/pkg/logger"
	"github.com/Proton-105/slotwatch/pkg/metrics"
)

const defaultWorkers = 4

// ErrAllLocationsFailed is returned when every location failed upstream.
var ErrAllLocationsFailed = errors.New("slot lookup failed for every location")

// SettingsStore is the read side of the subscription store used by a cycle.
type SettingsStore interface {
	ListDistinctLocations(ctx context.Context) ([]string, error)
	ListUsersInterested(ctx context.Context, locationID string, threshold time.Time) ([]domain.Interest, error)
}

// SlotProvider returns active slots for a location.
type SlotProvider interface {
	FetchActiveSlots(ctx context.Context, locationID string) ([]domain.Slot, error)
}

// Notifier delivers a text message to a user.
type Notifier interface {
	Send(ctx context.Context, userID, message string) error
}

// Report summarises one cycle.
type Report struct {
	Locations        int
	Checked          int
	Empty            int
	Failed           int
	Abandoned        int
	Notified         int
	DeliveryFailures int
}

// Partial reports whether the deadline cut the cycle short.
func (r Report) Partial() bool {
	return r.Abandoned > 0
}

// Engine orchestrates a poll cycle.
type Engine struct {
	store    SettingsStore
	slots    SlotProvider
	notifier Notifier
	workers  int
	log      *slog.Logger
}

// NewEngine wires an engine; workers bounds concurrent locations.
func NewEngine(store SettingsStore, slots SlotProvider, notifier Notifier, workers int, log *slog.Logger) *Engine {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if log == nil {
		log = slog.Default()
	}

	return &Engine{
		store:    store,
		slots:    slots,
		notifier: notifier,
		workers:  workers,
		log:      log.With(slog.String("component", "reconcile")),
	}
}

// RunCycle performs one full reconciliation. A store failure aborts the cycle.
// Upstream failures are isolated per location; if all of them fail the cycle
// fails. Locations that had not started dispatching when ctx expires are
// abandoned and the report is marked partial.
func (e *Engine) RunCycle(ctx context.Context) (Report, error) {
	started := time.Now()
	log := e.log.With(slog.String("correlation_id", logger.CorrelationIDFromContext(ctx)))

	report, err := e.run(ctx, log)

	outcome := "success"
	switch {
	case err != nil:
		outcome = "failed"
	case report.Partial():
		outcome = "partial"
	}
	metrics.RecordCycle(outcome, time.Since(started))

	log.Info("poll cycle finished",
		slog.String("outcome", outcome),
		slog.Int("locations", report.Locations),
		slog.Int("checked", report.Checked),
		slog.Int("failed", report.Failed),
		slog.Int("abandoned", report.Abandoned),
		slog.Int("notified", report.Notified),
		slog.Duration("duration", time.Since(started)),
	)

	return report, err
}

func (e *Engine) run(ctx context.Context, log *slog.Logger) (Report, error) {
	var report Report

	locations, err := e.store.ListDistinctLocations(ctx)
	if err != nil {
		return report, fmt.Errorf("list locations: %w", err)
	}

	report.Locations = len(locations)
	if len(locations) == 0 {
		log.Debug("no subscriptions, nothing to check")
		return report, nil
	}

	var mu sync.Mutex
	record := func(apply func(r *Report)) {
		mu.Lock()
		apply(&report)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for _, locationID := range locations {
		if gctx.Err() != nil {
			if ctx.Err() != nil {
				record(func(r *Report) { r.Abandoned++ })
				metrics.RecordLocation("abandoned")
			}
			continue
		}

		g.Go(func() error {
			return e.processLocation(ctx, gctx, locationID, log, record)
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}

	if report.Failed == report.Locations {
		return report, ErrAllLocationsFailed
	}

	return report, nil
}

// processLocation handles one location. cycleCtx carries the trigger deadline;
// gctx is additionally cancelled when another location hits a store error.
func (e *Engine) processLocation(
	cycleCtx, gctx context.Context,
	locationID string,
	log *slog.Logger,
	record func(func(*Report)),
) error {
	log = log.With(slog.String("location_id", locationID))

	abandon := func() error {
		record(func(r *Report) { r.Abandoned++ })
		metrics.RecordLocation("abandoned")
		log.Warn("location abandoned, cycle deadline reached")
		return nil
	}

	if gctx.Err() != nil {
		if cycleCtx.Err() != nil {
			return abandon()
		}
		return nil
	}

	slots, err := e.slots.FetchActiveSlots(gctx, locationID)
	if err != nil {
		if cycleCtx.Err() != nil {
			return abandon()
		}
		if gctx.Err() != nil {
			return nil
		}

		record(func(r *Report) { r.Failed++ })
		metrics.RecordLocation("failed")
		log.Error("slot lookup failed", slog.Any("error", err))
		return nil
	}

	threshold, ok := Threshold(slots)
	if !ok {
		record(func(r *Report) {
			r.Checked++
			r.Empty++
		})
		metrics.RecordLocation("empty")
		log.Debug("no active slots")
		return nil
	}

	interests, err := e.store.ListUsersInterested(gctx, locationID, threshold)
	if err != nil {
		if cycleCtx.Err() != nil {
			return abandon()
		}
		if gctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("list users for location %s: %w", locationID, err)
	}

	jobs := BuildJobs(locationID, slots, interests)

	if cycleCtx.Err() != nil {
		return abandon()
	}

	record(func(r *Report) { r.Checked++ })
	metrics.RecordLocation("checked")

	// Once dispatch starts every job of the location is delivered.
	dispatchCtx := context.WithoutCancel(cycleCtx)
	for _, job := range jobs {
		if err := e.notifier.Send(dispatchCtx, job.UserID, FormatMessage(job)); err != nil {
			record(func(r *Report) { r.DeliveryFailures++ })
			log.Warn("notification failed", slog.String("user_id", job.UserID), slog.Any("error", err))
			continue
		}
		record(func(r *Report) { r.Notified++ })
	}

	log.Info("location checked",
		slog.Int("slots", len(slots)),
		slog.Int("candidates", len(interests)),
		slog.Int("jobs", len(jobs)),
	)

	return nil
}
