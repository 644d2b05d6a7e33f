package reconcile

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Proton-105/slotwatch/internal/domain"
)

// SlotDisplayLayout renders a slot as "Tuesday, August 15 @ 09:00 am".
const SlotDisplayLayout = "Monday, January 02 @ 03:04 pm"

const appointmentDisplayLayout = "January 02, 2006"

// Threshold returns the calendar date of the earliest active slot. Only
// subscribers booked strictly after it can possibly benefit.
func Threshold(slots []domain.Slot) (time.Time, bool) {
	var (
		earliest time.Time
		found    bool
	)

	for _, slot := range slots {
		if !slot.Active {
			continue
		}
		if !found || slot.Start.Before(earliest) {
			earliest = slot.Start
			found = true
		}
	}

	if !found {
		return time.Time{}, false
	}

	return domain.DateOnly(earliest), true
}

// EarlierSlots returns the start times of active slots strictly before
// midnight of appointment, soonest first.
func EarlierSlots(slots []domain.Slot, appointment time.Time) []time.Time {
	cutoff := domain.DateOnly(appointment)

	var matched []time.Time
	for _, slot := range slots {
		if slot.Active && slot.Start.Before(cutoff) {
			matched = append(matched, slot.Start)
		}
	}

	slices.SortStableFunc(matched, func(a, b time.Time) int { return a.Compare(b) })
	return matched
}

// BuildJobs joins the location's slots with its candidate subscribers. Users
// without an earlier slot get no job.
func BuildJobs(locationID string, slots []domain.Slot, interests []domain.Interest) []domain.NotificationJob {
	jobs := make([]domain.NotificationJob, 0, len(interests))

	for _, interest := range interests {
		matched := EarlierSlots(slots, interest.CurrentAppointmentDate)
		if len(matched) == 0 {
			continue
		}

		jobs = append(jobs, domain.NotificationJob{
			UserID:                 interest.UserID,
			LocationID:             locationID,
			CurrentAppointmentDate: domain.DateOnly(interest.CurrentAppointmentDate),
			MatchedDates:           matched,
		})
	}

	return jobs
}

// FormatMessage renders the chat text for a job, one bullet per slot.
func FormatMessage(job domain.NotificationJob) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Earlier appointment(s) found at location %s (your current appointment is on %s):\n",
		job.LocationID, job.CurrentAppointmentDate.Format(appointmentDisplayLayout))

	for _, slot := range job.MatchedDates {
		b.WriteString("• ")
		b.WriteString(slot.Format(SlotDisplayLayout))
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n")
}
