// Package subscription implements the write path of the configuration dialog
// and the read-back used by /status.
package subscription

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/Proton-105/slotwatch/internal/dateparse"
	"github.com/Proton-105/slotwatch/internal/domain"
	errors "github.com/Proton-105/slotwatch/internal/errors"
	"github.com/Proton-105/slotwatch/internal/repository"
)

var locationPattern = regexp.MustCompile(`^[0-9]{1,10}$`)

var (
	// ErrInvalidLocation is returned for location IDs that are not numeric.
	ErrInvalidLocation = stdErrors.New("invalid location id")
	// ErrNotFound is returned by Get when the user has no subscription.
	ErrNotFound = repository.ErrSubscriptionNotFound
)

// Store is the persistence used by the service.
type Store interface {
	UpsertSubscription(ctx context.Context, sub domain.Subscription) error
	GetSubscription(ctx context.Context, userID string) (*domain.Subscription, error)
}

// Service validates and persists subscriptions.
type Service struct {
	store Store
	cache *Cache
	log   *slog.Logger
}

// NewService constructs a Service. cache may be nil.
func NewService(store Store, cache *Cache, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, cache: cache, log: log}
}

// NormalizeLocation trims and validates a location ID.
func NormalizeLocation(raw string) (string, error) {
	location := strings.TrimSpace(raw)
	if !locationPattern.MatchString(location) {
		return "", errors.NewInputError("location id must be numeric", ErrInvalidLocation)
	}
	return location, nil
}

// ParseAppointmentDate normalizes user input to a calendar date.
func ParseAppointmentDate(raw string) (time.Time, error) {
	date, err := dateparse.Parse(raw)
	if err != nil {
		return time.Time{}, errors.NewInputError("unrecognised date", err)
	}
	return date, nil
}

// Subscribe validates input and upserts the user's single subscription,
// replacing location and date together. Transient store errors are retried.
func (s *Service) Subscribe(ctx context.Context, userID, rawLocation, rawDate string) (*domain.Subscription, error) {
	location, err := NormalizeLocation(rawLocation)
	if err != nil {
		return nil, err
	}

	date, err := ParseAppointmentDate(rawDate)
	if err != nil {
		return nil, err
	}

	sub := domain.Subscription{
		UserID:                 userID,
		LocationID:             location,
		CurrentAppointmentDate: date,
	}

	if err := errors.WithRetry(ctx, func() error {
		return s.store.UpsertSubscription(ctx, sub)
	}); err != nil {
		s.log.Error("subscribe failed", slog.String("user_id", userID), slog.Any("error", err))
		return nil, err
	}

	if err := s.cache.Set(ctx, &sub); err != nil {
		s.log.Warn("failed to refresh subscription cache", slog.String("user_id", userID), slog.Any("error", err))
		_ = s.cache.Invalidate(ctx, userID)
	}

	s.log.Info("subscription saved",
		slog.String("user_id", userID),
		slog.String("location_id", location),
		slog.String("current_appointment_date", sub.CurrentAppointmentDate.Format(domain.DateLayout)),
	)

	return &sub, nil
}

// Get returns the user's subscription or ErrNotFound.
func (s *Service) Get(ctx context.Context, userID string) (*domain.Subscription, error) {
	if cached, err := s.cache.Get(ctx, userID); err != nil {
		s.log.Warn("subscription cache read failed", slog.String("user_id", userID), slog.Any("error", err))
	} else if cached != nil {
		return cached, nil
	}

	sub, err := s.store.GetSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, sub); err != nil {
		s.log.Warn("failed to cache subscription", slog.String("user_id", userID), slog.Any("error", err))
	}

	return sub, nil
}
