package reconcile

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/slotwatch/internal/domain"
)

func TestThreshold(t *testing.T) {
	_, ok := Threshold(nil)
	assert.False(t, ok)

	_, ok = Threshold([]domain.Slot{slot("5020", at(2023, time.August, 1, 9, 0), false)})
	assert.False(t, ok)

	got, ok := Threshold([]domain.Slot{
		slot("5020", at(2023, time.August, 9, 9, 0), true),
		slot("5020", at(2023, time.August, 2, 23, 30), true),
		slot("5020", at(2023, time.July, 1, 9, 0), false),
	})
	require.True(t, ok)
	assert.Equal(t, day(2023, time.August, 2), got)
}

func TestEarlierSlots_StrictlyBeforeAppointmentDay(t *testing.T) {
	slots := []domain.Slot{
		slot("5020", at(2023, time.August, 31, 0, 0), true),
		slot("5020", at(2023, time.August, 30, 23, 59), true),
		slot("5020", at(2023, time.August, 10, 8, 0), true),
		slot("5020", at(2023, time.August, 5, 8, 0), false),
	}

	got := EarlierSlots(slots, day(2023, time.August, 31))
	assert.Equal(t, []time.Time{
		at(2023, time.August, 10, 8, 0),
		at(2023, time.August, 30, 23, 59),
	}, got)
}

func TestFormatMessage(t *testing.T) {
	msg := FormatMessage(domain.NotificationJob{
		UserID:                 "U1",
		LocationID:             "5020",
		CurrentAppointmentDate: day(2023, time.August, 31),
		MatchedDates:           []time.Time{at(2023, time.August, 20, 9, 0), at(2023, time.August, 21, 15, 30)},
	})

	assert.Equal(t, "Earlier appointment(s) found at location 5020 (your current appointment is on August 31, 2023):\n"+
		"• Sunday, August 20 @ 09:00 am\n"+
		"• Monday, August 21 @ 03:30 pm", msg)
}

// coarse mirrors the SQL predicate of the subscriber query.
func coarse(interests []domain.Interest, threshold time.Time) []domain.Interest {
	var out []domain.Interest
	for _, in := range interests {
		if in.CurrentAppointmentDate.After(threshold) {
			out = append(out, in)
		}
	}
	return out
}

func randomInput(rng *rand.Rand) ([]domain.Slot, []domain.Interest) {
	base := day(2023, time.August, 1)

	slots := make([]domain.Slot, rng.Intn(6))
	for i := range slots {
		start := base.Add(time.Duration(rng.Intn(60*24*60)) * time.Minute)
		slots[i] = slot("5020", start, rng.Intn(4) != 0)
	}

	interests := make([]domain.Interest, rng.Intn(8))
	for i := range interests {
		interests[i] = domain.Interest{
			UserID:                 string(rune('A' + i)),
			CurrentAppointmentDate: base.AddDate(0, 0, rng.Intn(70)),
		}
	}

	return slots, interests
}

func runFilters(slots []domain.Slot, interests []domain.Interest) []domain.NotificationJob {
	threshold, ok := Threshold(slots)
	if !ok {
		return nil
	}
	return BuildJobs("5020", slots, coarse(interests, threshold))
}

func TestFilters_UserNotifiedIffEarlierActiveSlotExists(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		slots, interests := randomInput(rng)
		jobs := runFilters(slots, interests)

		notified := map[string]domain.NotificationJob{}
		for _, job := range jobs {
			require.NotEmpty(t, job.MatchedDates)
			notified[job.UserID] = job
		}

		for _, in := range interests {
			expected := false
			for _, s := range slots {
				if s.Active && s.Start.Before(in.CurrentAppointmentDate) {
					expected = true
					break
				}
			}

			_, got := notified[in.UserID]
			assert.Equal(t, expected, got, "user %s, appointment %s, slots %v", in.UserID, in.CurrentAppointmentDate, slots)
		}
	}
}

func TestFilters_Idempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		slots, interests := randomInput(rng)
		assert.Equal(t, runFilters(slots, interests), runFilters(slots, interests))
	}
}
