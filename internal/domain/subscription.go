// Package domain holds the records shared by the store, the slot client and the reconciliation engine.
package domain

import "time"

// DateLayout is the canonical calendar date representation.
const DateLayout = "2006-01-02"

// Subscription is a user's monitoring configuration. There is at most one per user.
type Subscription struct {
	UserID                 string
	LocationID             string
	CurrentAppointmentDate time.Time
}

// Interest is a subscriber row returned by the coarse location filter.
type Interest struct {
	UserID                 string
	CurrentAppointmentDate time.Time
}

// Slot is a bookable appointment time reported by the scheduling service.
type Slot struct {
	LocationID string
	Start      time.Time
	Active     bool
}

// NotificationJob lists the slots strictly earlier than a user's booked date.
type NotificationJob struct {
	UserID                 string
	LocationID             string
	CurrentAppointmentDate time.Time
	MatchedDates           []time.Time
}

// DateOnly truncates t to midnight UTC of its wall-clock calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
