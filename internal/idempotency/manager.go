// Package idempotency runs an operation at most once per key within a TTL,
// coordinating concurrent callers through a shared store.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"
)

const (
	defaultLockTTL = 5 * time.Minute
	pollInterval   = 100 * time.Millisecond
)

// ErrRequestInProgress is returned when another caller holds the key.
var ErrRequestInProgress = errors.New("operation with this key is already in progress")

// Operation is the unit of work guarded by a key.
type Operation func(ctx context.Context) (interface{}, error)

// Result carries the operation response; FromCache is set when the operation
// had already completed under the same key.
type Result struct {
	Response  interface{}
	FromCache bool
}

// Manager executes operations idempotently.
type Manager interface {
	Execute(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error)
}

type manager struct {
	store   Store
	lockTTL time.Duration
	log     *slog.Logger
}

// NewManager builds a Manager on top of store. lockTTL bounds how long a
// crashed caller can block the key; zero selects five minutes.
func NewManager(store Store, lockTTL time.Duration, log *slog.Logger) Manager {
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}
	if log == nil {
		log = slog.Default()
	}

	return &manager{
		store:   store,
		lockTTL: lockTTL,
		log:     log,
	}
}

// Execute runs fn unless a completed record for key exists. While fn runs the
// key carries a processing marker and concurrent callers get
// ErrRequestInProgress. A failed fn leaves no record, so a later call retries it.
func (m *manager) Execute(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if fn == nil {
		return nil, errors.New("operation fn cannot be nil")
	}

	for {
		locked, err := m.store.Lock(ctx, key, m.lockTTL)
		if err != nil {
			return nil, err
		}

		if locked {
			return m.run(ctx, key, ttl, fn)
		}

		record, err := m.store.Get(ctx, key)
		if err != nil {
			return nil, err
		}

		if record != nil {
			switch record.Status {
			case StatusProcessing:
				return nil, ErrRequestInProgress
			case StatusCompleted:
				return cachedResult(record)
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (m *manager) run(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error) {
	// A completed record may exist from a caller whose lock already expired.
	record, err := m.store.Get(ctx, key)
	if err != nil {
		m.release(ctx, key)
		return nil, err
	}
	if record != nil && record.Status == StatusCompleted {
		m.release(ctx, key)
		return cachedResult(record)
	}

	defer m.release(ctx, key)

	// other callers see the marker and stop waiting
	if err := m.store.Set(ctx, key, &Record{Status: StatusProcessing}, m.lockTTL); err != nil {
		return nil, err
	}

	result, err := fn(ctx)
	if err != nil {
		if delErr := m.store.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			m.log.Warn("failed to clear idempotency marker", slog.String("key", key), slog.Any("error", delErr))
		}
		return nil, err
	}

	responseBytes, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}

	if err := m.store.Set(ctx, key, &Record{Status: StatusCompleted, Response: responseBytes}, ttl); err != nil {
		return nil, err
	}

	return &Result{Response: result}, nil
}

func (m *manager) release(ctx context.Context, key string) {
	if err := m.store.ReleaseLock(context.WithoutCancel(ctx), key); err != nil {
		m.log.Warn("failed to release idempotency lock", slog.String("key", key), slog.Any("error", err))
	}
}

func cachedResult(record *Record) (*Result, error) {
	var response interface{}
	if len(record.Response) > 0 {
		if err := json.Unmarshal(record.Response, &response); err != nil {
			return nil, err
		}
	}

	return &Result{Response: response, FromCache: true}, nil
}
