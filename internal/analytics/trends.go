package analytics

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/noah-isme/visitor-attendance-api/internal/models"
)

// Efficiency labels produced by the trend calculator.
const (
	LabelExcellent        = "Excellent"
	LabelGood             = "Good"
	LabelFair             = "Fair"
	LabelNeedsImprovement = "Needs Improvement"
	LabelNoData           = "No data available"
	LabelNoGroupEntries   = "No group entries recorded"
)

type weekAccumulator struct {
	total         int
	successes     int
	users         map[string]struct{}
	bypass        int
	durations     []float64
	groups        int
	groupSuccess  int
	instructorVer int
}

// WeeklyTrends buckets entries by the ISO week of their UTC arrival and derives
// growth and efficiency indicators. Week keys look like "2024-W12".
//
// Weeks are not shifted into the reporting zone. An entry close to midnight on a
// Sunday may land in a different week than its daily bucket.
func WeeklyTrends(records []models.AttendanceRecord, logger Logger) models.WeeklyTrends {
	if logger == nil {
		logger = zap.NewNop()
	}
	return computeWeeklyTrends(SortRecords(records), logger)
}

func computeWeeklyTrends(records []models.AttendanceRecord, logger Logger) models.WeeklyTrends {
	weeks := make(map[string]*weekAccumulator)
	for _, record := range records {
		for i, entry := range record.TimeLogs {
			if entry.Arrival == "" {
				continue
			}
			arrival, err := ParseInstant(entry.Arrival)
			if err != nil {
				logger.Warn("weekly trends skipped entry",
					zap.String("record_id", record.ID),
					zap.Int("entry_index", i),
					zap.Error(err))
				continue
			}
			year, week := arrival.ISOWeek()
			key := WeekKey(year, week)
			acc, ok := weeks[key]
			if !ok {
				acc = &weekAccumulator{users: make(map[string]struct{})}
				weeks[key] = acc
			}

			c := Classify(entry)
			acc.total++
			acc.users[record.UserID] = struct{}{}
			if c.Success {
				acc.successes++
			}
			switch c.EntryType {
			case models.EntryTypeBypass:
				acc.bypass++
			case models.EntryTypeGroup:
				acc.groups++
				if c.GroupSuccess {
					acc.groupSuccess++
				}
				if entry.VerifiedByInstructor != nil {
					acc.instructorVer++
				}
			}
			if !entry.IsOpen() {
				if departure, err := ParseInstant(*entry.Departure); err == nil {
					if minutes := departure.Sub(arrival).Minutes(); minutes > 0 {
						acc.durations = append(acc.durations, minutes)
					}
				}
			}
		}
	}

	out := models.WeeklyTrends{Weeks: make(map[string]models.WeekStats, len(weeks))}
	for key, acc := range weeks {
		out.Weeks[key] = models.WeekStats{
			TotalEntries:                acc.total,
			SuccessfulEntries:           acc.successes,
			UniqueUsers:                 len(acc.users),
			BypassRate:                  Rate(acc.bypass, acc.total),
			AverageDurationMinutes:      round2(mean(acc.durations)),
			GroupEntries:                acc.groups,
			GroupEntrySuccessRate:       Rate(acc.groupSuccess, acc.groups),
			InstructorVerificationCount: acc.instructorVer,
		}
	}
	out.TrendIndicators = Indicators(out.Weeks)
	return out
}

// Indicators derives growth rate, peak week and efficiency labels from weekly stats.
func Indicators(weeks map[string]models.WeekStats) models.TrendIndicators {
	keys := make([]string, 0, len(weeks))
	for k := range weeks {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ind := models.TrendIndicators{
		EfficiencyTrend:        LabelNoData,
		GroupVerificationTrend: LabelNoData,
	}
	if len(keys) == 0 {
		return ind
	}

	if len(keys) >= 2 {
		first := weeks[keys[0]].TotalEntries
		last := weeks[keys[len(keys)-1]].TotalEntries
		if first > 0 {
			ind.GrowthRate = round2(float64(last-first) / float64(first) * 100)
		}
	}

	peak := keys[0]
	for _, k := range keys[1:] {
		if weeks[k].TotalEntries > weeks[peak].TotalEntries {
			peak = k
		}
	}
	ind.PeakWeek = &peak

	var successSum float64
	for _, k := range keys {
		w := weeks[k]
		if w.TotalEntries > 0 {
			successSum += float64(w.SuccessfulEntries) / float64(w.TotalEntries) * 100
		}
	}
	ind.EfficiencyTrend = EfficiencyLabel(successSum / float64(len(keys)))

	var groupSum float64
	groupWeeks := 0
	for _, k := range keys {
		w := weeks[k]
		if w.GroupEntries > 0 {
			groupSum += w.GroupEntrySuccessRate
			groupWeeks++
		}
	}
	if groupWeeks == 0 {
		ind.GroupVerificationTrend = LabelNoGroupEntries
	} else {
		ind.GroupVerificationTrend = EfficiencyLabel(groupSum / float64(groupWeeks))
	}
	return ind
}

// EfficiencyLabel maps an average success percentage to its ordinal label.
func EfficiencyLabel(avg float64) string {
	switch {
	case avg >= 90:
		return LabelExcellent
	case avg >= 75:
		return LabelGood
	case avg >= 60:
		return LabelFair
	default:
		return LabelNeedsImprovement
	}
}

// WeekKey formats an ISO year and week.
func WeekKey(year, week int) string {
	return fmt.Sprintf("%04d-W%02d", year, week)
}
