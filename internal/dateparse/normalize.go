// Package dateparse turns the free-form appointment dates users type into calendar dates.
//
// Candidate layouts are tried in a fixed priority order and the first strict
// match wins, so an ambiguous input such as "01-02-2023" resolves to the
// month-first reading (January 2).
package dateparse

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Proton-105/slotwatch/internal/domain"
)

// ErrInvalidDate is returned when the input matches none of the supported formats.
var ErrInvalidDate = errors.New("unrecognized date")

type format struct {
	name    string
	layouts []string
}

// formats is ordered by priority.
var formats = []format{
	{name: "ISO-8601", layouts: []string{
		"2006-01-02",
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		"20060102",
	}},
	{name: "MM-DD-YYYY", layouts: []string{"01-02-2006"}},
	{name: "MM/DD/YYYY", layouts: []string{"01/02/2006"}},
	{name: "DD-MM-YYYY", layouts: []string{"02-01-2006"}},
	{name: "DD/MM/YYYY", layouts: []string{"02/01/2006"}},
	{name: "YYYY-MM-DD", layouts: []string{"2006-01-02"}},
	{name: "YYYY/MM/DD", layouts: []string{"2006/01/02"}},
	{name: "MMMM D, YYYY", layouts: []string{"January 2, 2006"}},
	{name: "D MMMM, YYYY", layouts: []string{"2 January, 2006"}},
}

// Parse returns the calendar date (midnight UTC) represented by input.
func Parse(input string) (time.Time, error) {
	value := strings.TrimSpace(input)
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: empty input", ErrInvalidDate)
	}

	for _, f := range formats {
		for _, layout := range f.layouts {
			t, err := time.Parse(layout, value)
			if err != nil {
				continue
			}
			return domain.DateOnly(t), nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
}

// Normalize returns input rewritten as YYYY-MM-DD.
func Normalize(input string) (string, error) {
	t, err := Parse(input)
	if err != nil {
		return "", err
	}
	return t.Format(domain.DateLayout), nil
}

// SupportedFormats lists the accepted formats in priority order, for prompts.
func SupportedFormats() []string {
	names := make([]string, 0, len(formats))
	for _, f := range formats {
		names = append(names, f.name)
	}
	return names
}
