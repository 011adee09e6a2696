package analytics

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultWindowDays is the lookback used when no start date is supplied.
const DefaultWindowDays = 30

// ErrInvalidWindow is returned when a date parameter cannot be used.
var ErrInvalidWindow = errors.New("invalid date window")

// ParseBoundary reads a query date. Plain YYYY-MM-DD values are calendar days
// in the policy zone; full timestamps keep their own offset.
func (p TimePolicy) ParseBoundary(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.ParseInLocation(dateLayout, value, p.location()); err == nil {
		return t, nil
	}
	t, err := ParseInstant(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidWindow, err)
	}
	return t, nil
}

// ResolveWindow turns optional start/end parameters into a day-clamped window.
// A missing end means now, a missing start means end minus days.
func (p TimePolicy) ResolveWindow(start, end string, now time.Time, days int) (Window, error) {
	if days <= 0 {
		days = DefaultWindowDays
	}

	endAt := now
	if strings.TrimSpace(end) != "" {
		t, err := p.ParseBoundary(end)
		if err != nil {
			return Window{}, err
		}
		endAt = t
	}
	endAt = p.EndOfDay(endAt)

	startAt := endAt.AddDate(0, 0, -days)
	if strings.TrimSpace(start) != "" {
		t, err := p.ParseBoundary(start)
		if err != nil {
			return Window{}, err
		}
		startAt = t
	}
	startAt = p.StartOfDay(startAt)

	if startAt.After(endAt) {
		return Window{}, fmt.Errorf("%w: start_date is after end_date", ErrInvalidWindow)
	}
	return Window{Start: startAt, End: endAt}, nil
}
