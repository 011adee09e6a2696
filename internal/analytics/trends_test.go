package analytics

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/visitor-attendance-api/internal/models"
)

func weekOfEntries(date string, count, successes int) models.AttendanceRecord {
	logs := make([]models.LogEntry, 0, count)
	for i := 0; i < count; i++ {
		logs = append(logs, models.LogEntry{
			Arrival:      fmt.Sprintf("%sT09:%02d:00", date, i),
			FaceVerified: i < successes,
			QRVerified:   i < successes,
		})
	}
	return record("r-"+date, "u1", date, logs...)
}

func TestWeeklyTrendsGrowthRate(t *testing.T) {
	records := []models.AttendanceRecord{
		weekOfEntries("2024-03-11", 10, 10),
		weekOfEntries("2024-03-18", 15, 15),
	}

	trends := WeeklyTrends(records, nil)

	require.Len(t, trends.Weeks, 2)
	assert.Equal(t, 10, trends.Weeks["2024-W11"].TotalEntries)
	assert.Equal(t, 15, trends.Weeks["2024-W12"].TotalEntries)
	assert.Equal(t, 50.0, trends.TrendIndicators.GrowthRate)
	require.NotNil(t, trends.TrendIndicators.PeakWeek)
	assert.Equal(t, "2024-W12", *trends.TrendIndicators.PeakWeek)
	assert.Equal(t, LabelExcellent, trends.TrendIndicators.EfficiencyTrend)
	assert.Equal(t, LabelNoGroupEntries, trends.TrendIndicators.GroupVerificationTrend)
}

func TestWeeklyTrendsSingleWeekHasNoGrowth(t *testing.T) {
	trends := WeeklyTrends([]models.AttendanceRecord{weekOfEntries("2024-03-11", 4, 3)}, nil)

	assert.Zero(t, trends.TrendIndicators.GrowthRate)
	assert.Equal(t, LabelGood, trends.TrendIndicators.EfficiencyTrend)
}

func TestWeeklyTrendsUsesUTCArrivalWeek(t *testing.T) {
	// Sunday 20:00 UTC is already Monday in UTC+05:30 but stays in the Sunday's ISO week.
	rec := record("r1", "u1", "2024-03-17", models.LogEntry{Arrival: "2024-03-17T20:00:00"})

	trends := WeeklyTrends([]models.AttendanceRecord{rec}, nil)

	_, ok := trends.Weeks["2024-W11"]
	assert.True(t, ok)
}

func TestWeeklyTrendsGroupStatistics(t *testing.T) {
	rec := record("r1", "u1", "2024-03-18",
		models.LogEntry{Arrival: "2024-03-18T09:00:00", EntryType: models.EntryTypeGroup, VerifiedByInstructor: strPtr("i1")},
		models.LogEntry{Arrival: "2024-03-18T09:01:00", EntryType: models.EntryTypeGroup},
		models.LogEntry{Arrival: "2024-03-18T09:02:00", Departure: strPtr("2024-03-18T09:12:00"), EntryType: models.EntryTypeBypass},
	)

	trends := WeeklyTrends([]models.AttendanceRecord{rec}, nil)

	week := trends.Weeks["2024-W12"]
	assert.Equal(t, 2, week.GroupEntries)
	assert.Equal(t, 50.0, week.GroupEntrySuccessRate)
	assert.Equal(t, 1, week.InstructorVerificationCount)
	assert.Equal(t, 33.33, week.BypassRate)
	assert.Equal(t, 10.0, week.AverageDurationMinutes)
	assert.Equal(t, LabelNeedsImprovement, trends.TrendIndicators.GroupVerificationTrend)
}

func TestEfficiencyLabel(t *testing.T) {
	cases := map[float64]string{
		100:   LabelExcellent,
		90:    LabelExcellent,
		89.99: LabelGood,
		75:    LabelGood,
		60:    LabelFair,
		59.9:  LabelNeedsImprovement,
		0:     LabelNeedsImprovement,
	}
	for avg, want := range cases {
		assert.Equal(t, want, EfficiencyLabel(avg), "%v", avg)
	}
}

func TestIndicatorsWithZeroFirstWeek(t *testing.T) {
	ind := Indicators(map[string]models.WeekStats{
		"2024-W01": {TotalEntries: 0},
		"2024-W02": {TotalEntries: 5},
	})
	assert.Zero(t, ind.GrowthRate)
	require.NotNil(t, ind.PeakWeek)
	assert.Equal(t, "2024-W02", *ind.PeakWeek)
}
