// Package slots fetches bookable appointment slots from the scheduling API.
package slots

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Proton-105/slotwatch/internal/domain"
	errors "github.com/Proton-105/slotwatch/internal/errors"
	"github.com/Proton-105/slotwatch/pkg/config"
	"github.com/Proton-105/slotwatch/pkg/metrics"
)

const (
	apiName         = "slot_api"
	maxResponseSize = 1 << 20
)

// Upstream timestamps carry no zone; they are read as wall-clock time in UTC.
var timestampLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// Provider returns active slots for a location, soonest first.
type Provider interface {
	FetchActiveSlots(ctx context.Context, locationID string) ([]domain.Slot, error)
}

type slotPayload struct {
	StartTimestamp string `json:"startTimestamp"`
	Active         bool   `json:"active"`
}

// Client is the HTTP implementation of Provider.
type Client struct {
	baseURL  string
	pageSize int
	http     *http.Client
	limiter  *rate.Limiter
	retry    func(ctx context.Context, fn func() error) error
	log      *slog.Logger

	// breakers is keyed by location id.
	mu       sync.Mutex
	breakers map[string]*errors.CircuitBreaker
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithoutRetry makes every request a single attempt.
func WithoutRetry() Option {
	return func(cl *Client) {
		cl.retry = func(_ context.Context, fn func() error) error { return fn() }
	}
}

// NewClient builds a throttled, breaker-guarded client for the scheduling API.
func NewClient(cfg config.SlotAPIConfig, log *slog.Logger, opts ...Option) *Client {
	if log == nil {
		log = slog.Default()
	}

	limit := rate.Inf
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 3
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		pageSize: pageSize,
		http:     &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(limit, burst),
		retry:    errors.WithRetry,
		log:      log.With(slog.String("component", "slot_client")),
		breakers: make(map[string]*errors.CircuitBreaker),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// FetchActiveSlots queries the soonest slots of locationID and keeps the active ones.
// An empty or null body yields no slots and no error.
func (c *Client) FetchActiveSlots(ctx context.Context, locationID string) ([]domain.Slot, error) {
	var result []domain.Slot
	breaker := c.breakerFor(locationID)

	err := c.retry(ctx, func() error {
		return breaker.Call(func() error {
			slots, fetchErr := c.fetch(ctx, locationID)
			if fetchErr != nil {
				return fetchErr
			}
			result = slots
			return nil
		})
	})
	if err != nil {
		var appErr *errors.AppError
		if !errors.As(err, &appErr) {
			// breaker rejections and context expiry
			return nil, errors.NewUpstreamError(apiName, err)
		}
		return nil, err
	}

	metrics.AddSlotsFetched(len(result))
	return result, nil
}

// BreakerState reports the circuit state kept for locationID.
func (c *Client) BreakerState(locationID string) errors.State {
	return c.breakerFor(locationID).State()
}

func (c *Client) breakerFor(locationID string) *errors.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()

	cb, ok := c.breakers[locationID]
	if !ok {
		cb = errors.NewCircuitBreaker()
		c.breakers[locationID] = cb
	}
	return cb
}

func (c *Client) fetch(ctx context.Context, locationID string) ([]domain.Slot, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, permanent(errors.NewUpstreamError(apiName, err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.slotsURL(locationID), nil)
	if err != nil {
		return nil, permanent(errors.NewUpstreamError(apiName, err))
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveSlotAPI("error", time.Since(start))
		c.log.Warn("slot request failed", slog.String("location_id", locationID), slog.Any("error", err))
		return nil, errors.NewUpstreamError(apiName, err)
	}
	defer resp.Body.Close()

	metrics.ObserveSlotAPI(strconv.Itoa(resp.StatusCode), time.Since(start))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, errors.NewUpstreamError(apiName, fmt.Errorf("read body: %w", err))
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		statusErr := errors.NewUpstreamError(apiName, fmt.Errorf("unexpected status %d", resp.StatusCode))
		if resp.StatusCode < http.StatusInternalServerError && resp.StatusCode != http.StatusTooManyRequests {
			return nil, permanent(statusErr)
		}
		return nil, statusErr
	}

	return decodeSlots(locationID, body)
}

func (c *Client) slotsURL(locationID string) string {
	q := url.Values{}
	q.Set("orderBy", "soonest")
	q.Set("limit", strconv.Itoa(c.pageSize))
	q.Set("locationId", locationID)
	q.Set("minimum", "1")

	return c.baseURL + "/slots?" + q.Encode()
}

func decodeSlots(locationID string, body []byte) ([]domain.Slot, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []domain.Slot{}, nil
	}

	var payload []slotPayload
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return nil, permanent(errors.NewUpstreamError(apiName, fmt.Errorf("decode slots: %w", err)))
	}

	slots := make([]domain.Slot, 0, len(payload))
	for _, p := range payload {
		if !p.Active {
			continue
		}

		start, err := parseTimestamp(p.StartTimestamp)
		if err != nil {
			return nil, permanent(errors.NewUpstreamError(apiName, err))
		}

		slots = append(slots, domain.Slot{
			LocationID: locationID,
			Start:      start,
			Active:     true,
		})
	}

	return slots, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			if layout == time.RFC3339 {
				y, m, d := t.Date()
				return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), 0, time.UTC), nil
			}
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("invalid slot timestamp %q", raw)
}

// permanent marks an upstream error as not worth retrying within the cycle.
func permanent(err *errors.AppError) *errors.AppError {
	err.Retryable = false
	return err
}
