package analytics

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// PolicyLocal buckets by the configured reporting offset.
	PolicyLocal = "local"
	// PolicyUTC buckets by raw UTC day and hour boundaries.
	PolicyUTC = "utc"

	// DefaultReportOffset is the reporting zone used by the summary view.
	DefaultReportOffset = "+05:30"
)

// TimePolicy decides which zone hour-of-day and date buckets are computed in.
type TimePolicy struct {
	Name     string
	Location *time.Location
}

// Bucket is the normalized position of an instant.
type Bucket struct {
	Local   time.Time
	Hour    int
	DateKey string
}

// UTCPolicy buckets instants on UTC boundaries.
func UTCPolicy() TimePolicy {
	return TimePolicy{Name: PolicyUTC, Location: time.UTC}
}

// LocalPolicy builds a fixed-offset policy from values such as "+05:30" or "-0800".
// Fixed offsets carry no DST rules.
func LocalPolicy(offset string) (TimePolicy, error) {
	seconds, err := ParseOffset(offset)
	if err != nil {
		return TimePolicy{}, err
	}
	return TimePolicy{Name: PolicyLocal, Location: time.FixedZone(FormatOffset(seconds), seconds)}, nil
}

// MustLocalPolicy is LocalPolicy for compile-time constants.
func MustLocalPolicy(offset string) TimePolicy {
	p, err := LocalPolicy(offset)
	if err != nil {
		panic(err)
	}
	return p
}

// Normalize converts the instant into the policy zone and derives its buckets.
func (p TimePolicy) Normalize(t time.Time) Bucket {
	local := t.In(p.location())
	return Bucket{
		Local:   local,
		Hour:    local.Hour(),
		DateKey: local.Format(dateLayout),
	}
}

// Zone returns the policy location, defaulting to UTC.
func (p TimePolicy) Zone() *time.Location {
	return p.location()
}

// Label describes the policy zone for report headers, e.g. "UTC+05:30".
func (p TimePolicy) Label() string {
	loc := p.location()
	if loc == time.UTC {
		return "UTC"
	}
	_, offset := time.Date(2000, 1, 1, 0, 0, 0, 0, loc).Zone()
	return "UTC" + FormatOffset(offset)
}

// StartOfDay clamps t to 00:00:00 of its calendar day in the policy zone.
func (p TimePolicy) StartOfDay(t time.Time) time.Time {
	local := t.In(p.location())
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, p.location())
}

// EndOfDay clamps t to the last nanosecond of its calendar day in the policy zone.
func (p TimePolicy) EndOfDay(t time.Time) time.Time {
	return p.StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

func (p TimePolicy) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

const dateLayout = "2006-01-02"

var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04",
	dateLayout,
}

// ParseInstant reads a stored ISO-8601 timestamp. Values without a zone are UTC.
func ParseInstant(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", value)
}

// FormatInstant renders an instant the way ledger writes store it.
func FormatInstant(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000")
}

// ParseOffset converts "+05:30", "+0530", "-08" or "Z" to seconds east of UTC.
func ParseOffset(offset string) (int, error) {
	offset = strings.TrimSpace(offset)
	if offset == "" || strings.EqualFold(offset, "Z") || strings.EqualFold(offset, "UTC") {
		return 0, nil
	}
	sign := 1
	switch offset[0] {
	case '+':
	case '-':
		sign = -1
	default:
		return 0, fmt.Errorf("offset %q must start with + or -", offset)
	}
	body := strings.ReplaceAll(offset[1:], ":", "")
	if len(body) != 2 && len(body) != 4 {
		return 0, fmt.Errorf("invalid offset %q", offset)
	}
	hours, err := strconv.Atoi(body[:2])
	if err != nil {
		return 0, fmt.Errorf("invalid offset hours %q: %w", offset, err)
	}
	minutes := 0
	if len(body) == 4 {
		if minutes, err = strconv.Atoi(body[2:]); err != nil {
			return 0, fmt.Errorf("invalid offset minutes %q: %w", offset, err)
		}
	}
	if hours > 14 || minutes > 59 {
		return 0, fmt.Errorf("offset %q out of range", offset)
	}
	return sign * (hours*3600 + minutes*60), nil
}

// FormatOffset renders seconds east of UTC as "+HH:MM".
func FormatOffset(seconds int) string {
	sign := '+'
	if seconds < 0 {
		sign = '-'
		seconds = -seconds
	}
	return fmt.Sprintf("%c%02d:%02d", sign, seconds/3600, (seconds%3600)/60)
}
