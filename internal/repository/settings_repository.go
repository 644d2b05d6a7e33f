// Package repository implements PostgreSQL persistence for subscriptions.
package repository

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Proton-105/slotwatch/internal/domain"
	errors "github.com/Proton-105/slotwatch/internal/errors"
)

// ErrSubscriptionNotFound is returned when the user has no stored subscription.
var ErrSubscriptionNotFound = stdErrors.New("subscription not found")

// SettingsRepository defines persistence operations for subscriptions.
type SettingsRepository interface {
	UpsertSubscription(ctx context.Context, sub domain.Subscription) error
	GetSubscription(ctx context.Context, userID string) (*domain.Subscription, error)
	ListDistinctLocations(ctx context.Context) ([]string, error)
	ListUsersInterested(ctx context.Context, locationID string, threshold time.Time) ([]domain.Interest, error)
}

type settingsRepository struct {
	db  *sql.DB
	log *slog.Logger
}

// NewSettingsRepository creates a new SQL-backed settings repository.
func NewSettingsRepository(db *sql.DB, log *slog.Logger) SettingsRepository {
	if log == nil {
		log = slog.Default()
	}

	return &settingsRepository{
		db:  db,
		log: log,
	}
}

// UpsertSubscription inserts the subscription or replaces location and date of the existing row in one statement.
func (r *settingsRepository) UpsertSubscription(ctx context.Context, sub domain.Subscription) error {
	const query = `
		INSERT INTO settings (userId, locationId, currentAppointmentDate)
		VALUES ($1, $2, $3)
		ON CONFLICT (userId) DO UPDATE
		SET locationId = excluded.locationId,
		    currentAppointmentDate = excluded.currentAppointmentDate
	`

	date := domain.DateOnly(sub.CurrentAppointmentDate)
	if _, err := r.db.ExecContext(ctx, query, sub.UserID, sub.LocationID, date); err != nil {
		r.log.Error("failed to upsert subscription",
			slog.String("user_id", sub.UserID),
			slog.String("location_id", sub.LocationID),
			slog.Any("error", err),
		)
		return errors.NewStoreError("upsert subscription", err)
	}

	return nil
}

// GetSubscription returns the stored subscription for userID.
func (r *settingsRepository) GetSubscription(ctx context.Context, userID string) (*domain.Subscription, error) {
	const query = `
		SELECT userId, locationId, currentAppointmentDate
		FROM settings
		WHERE userId = $1
	`

	var sub domain.Subscription
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&sub.UserID,
		&sub.LocationID,
		&sub.CurrentAppointmentDate,
	); err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}

		r.log.Error("failed to fetch subscription", slog.String("user_id", userID), slog.Any("error", err))
		return nil, errors.NewStoreError("get subscription", err)
	}

	sub.CurrentAppointmentDate = domain.DateOnly(sub.CurrentAppointmentDate)
	return &sub, nil
}

// ListDistinctLocations returns every location with at least one subscriber.
func (r *settingsRepository) ListDistinctLocations(ctx context.Context) ([]string, error) {
	const query = `
		SELECT DISTINCT locationId
		FROM settings
		ORDER BY locationId
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		r.log.Error("failed to list locations", slog.Any("error", err))
		return nil, errors.NewStoreError("list locations", err)
	}
	defer rows.Close()

	var locations []string
	for rows.Next() {
		var location string
		if err := rows.Scan(&location); err != nil {
			return nil, errors.NewStoreError("scan location", err)
		}
		locations = append(locations, location)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreError("iterate locations", err)
	}

	return locations, nil
}

// ListUsersInterested returns subscribers of locationID whose appointment is strictly after threshold.
func (r *settingsRepository) ListUsersInterested(ctx context.Context, locationID string, threshold time.Time) ([]domain.Interest, error) {
	const query = `
		SELECT userId, currentAppointmentDate
		FROM settings
		WHERE locationId = $1 AND currentAppointmentDate > $2
	`

	rows, err := r.db.QueryContext(ctx, query, locationID, domain.DateOnly(threshold))
	if err != nil {
		r.log.Error("failed to list interested users", slog.String("location_id", locationID), slog.Any("error", err))
		return nil, errors.NewStoreError(fmt.Sprintf("list users for location %s", locationID), err)
	}
	defer rows.Close()

	var interests []domain.Interest
	for rows.Next() {
		var interest domain.Interest
		if err := rows.Scan(&interest.UserID, &interest.CurrentAppointmentDate); err != nil {
			return nil, errors.NewStoreError("scan interested user", err)
		}
		interest.CurrentAppointmentDate = domain.DateOnly(interest.CurrentAppointmentDate)
		interests = append(interests, interest)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreError("iterate interested users", err)
	}

	return interests, nil
}
