package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInstantTreatsNaiveAsUTC(t *testing.T) {
	cases := map[string]time.Time{
		"2024-03-21T09:00:00":              time.Date(2024, 3, 21, 9, 0, 0, 0, time.UTC),
		"2024-03-21T09:00:00.123456":       time.Date(2024, 3, 21, 9, 0, 0, 123456000, time.UTC),
		"2024-03-21 09:00:00":              time.Date(2024, 3, 21, 9, 0, 0, 0, time.UTC),
		"2024-03-21T09:00:00Z":             time.Date(2024, 3, 21, 9, 0, 0, 0, time.UTC),
		"2024-03-21T14:30:00+05:30":        time.Date(2024, 3, 21, 9, 0, 0, 0, time.UTC),
		"2024-03-21T09:00:00.000000+00:00": time.Date(2024, 3, 21, 9, 0, 0, 0, time.UTC),
	}
	for raw, want := range cases {
		got, err := ParseInstant(raw)
		require.NoError(t, err, raw)
		assert.True(t, want.Equal(got), "%s parsed as %s", raw, got)
		assert.Equal(t, time.UTC, got.Location())
	}

	_, err := ParseInstant("yesterday")
	assert.Error(t, err)
	_, err = ParseInstant("  ")
	assert.Error(t, err)
}

func TestLocalPolicyNormalize(t *testing.T) {
	policy, err := LocalPolicy("+05:30")
	require.NoError(t, err)

	bucket := policy.Normalize(time.Date(2024, 3, 21, 20, 0, 0, 0, time.UTC))
	assert.Equal(t, 1, bucket.Hour)
	assert.Equal(t, "2024-03-22", bucket.DateKey)
	assert.Equal(t, "UTC+05:30", policy.Label())

	again := policy.Normalize(bucket.Local)
	assert.True(t, bucket.Local.Equal(again.Local))
	assert.Equal(t, bucket.Hour, again.Hour)
	assert.Equal(t, bucket.DateKey, again.DateKey)
}

func TestUTCPolicyNormalize(t *testing.T) {
	bucket := UTCPolicy().Normalize(time.Date(2024, 3, 21, 20, 0, 0, 0, time.UTC))
	assert.Equal(t, 20, bucket.Hour)
	assert.Equal(t, "2024-03-21", bucket.DateKey)
	assert.Equal(t, "UTC", UTCPolicy().Label())
}

func TestParseOffset(t *testing.T) {
	cases := map[string]int{
		"+05:30": 19800,
		"+0530":  19800,
		"-08":    -28800,
		"Z":      0,
		"":       0,
	}
	for raw, want := range cases {
		got, err := ParseOffset(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	for _, bad := range []string{"05:30", "+5:3", "+15:00", "+05:75"} {
		_, err := ParseOffset(bad)
		assert.Error(t, err, bad)
	}
	assert.Equal(t, "-08:00", FormatOffset(-28800))
}

func TestPolicyDayBounds(t *testing.T) {
	policy := MustLocalPolicy("+05:30")
	instant := time.Date(2024, 3, 21, 20, 0, 0, 0, time.UTC)

	start := policy.StartOfDay(instant)
	end := policy.EndOfDay(instant)
	assert.Equal(t, "2024-03-22T00:00:00+05:30", start.Format(time.RFC3339))
	assert.Equal(t, "2024-03-22T23:59:59.999999999+05:30", end.Format(time.RFC3339Nano))
}
