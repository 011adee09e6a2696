package analytics

import (
	"sort"
	"time"

	"github.com/noah-isme/visitor-attendance-api/internal/models"
)

// UserActivity summarises one user's sessions, grouped by the policy's calendar day.
// Entries without a parseable arrival are counted but not listed.
func UserActivity(user models.User, records []models.AttendanceRecord, policy TimePolicy) models.UserActivityReport {
	report := models.UserActivityReport{
		SchemaVersion: models.AnalyticsSchemaVersion,
		User:          user.Info(),
		Timezone:      policy.Label(),
		Days:          make([]models.UserActivityDay, 0),
	}

	days := make(map[string]struct{})
	var durations []float64
	var first, last time.Time
	dayIndex := make(map[string]int)

	for _, record := range SortRecords(records) {
		days[record.EntryDateKey()] = struct{}{}
		for _, entry := range record.TimeLogs {
			c := Classify(entry)
			s := &report.Summary
			s.TotalEntries++
			if c.Success {
				s.SuccessfulEntries++
			}
			switch c.EntryType {
			case models.EntryTypeBypass:
				s.BypassEntries++
			case models.EntryTypeGroup:
				s.GroupEntries++
			default:
				s.NormalEntries++
			}
			if entry.FaceVerified {
				s.FaceVerifiedEntries++
			}

			arrival, err := ParseInstant(entry.Arrival)
			if err != nil {
				continue
			}
			if first.IsZero() || arrival.Before(first) {
				first = arrival
			}
			if arrival.After(last) {
				last = arrival
			}

			bucket := policy.Normalize(arrival)
			session := models.UserActivitySession{
				Arrival:      bucket.Local.Format(time.RFC3339),
				EntryType:    string(c.EntryType),
				Success:      c.Success,
				FaceVerified: entry.FaceVerified,
				QRVerified:   entry.QRVerified,
			}
			if !entry.IsOpen() {
				if departure, err := ParseInstant(*entry.Departure); err == nil {
					dep := departure.In(policy.Zone()).Format(time.RFC3339)
					session.Departure = &dep
					minutes := departure.Sub(arrival).Minutes()
					if minutes > 0 {
						rounded := round2(minutes)
						session.DurationMinutes = &rounded
						durations = append(durations, minutes)
					}
				}
			}

			idx, ok := dayIndex[bucket.DateKey]
			if !ok {
				idx = len(report.Days)
				dayIndex[bucket.DateKey] = idx
				report.Days = append(report.Days, models.UserActivityDay{Date: bucket.DateKey})
			}
			report.Days[idx].Sessions = append(report.Days[idx].Sessions, session)
		}
	}

	sort.SliceStable(report.Days, func(i, j int) bool { return report.Days[i].Date < report.Days[j].Date })
	report.Summary.TotalDays = len(days)
	report.Summary.SuccessRate = Rate(report.Summary.SuccessfulEntries, report.Summary.TotalEntries)
	report.Summary.AverageDurationMinutes = round2(mean(durations))
	if !first.IsZero() {
		f := first.In(policy.Zone()).Format(time.RFC3339)
		l := last.In(policy.Zone()).Format(time.RFC3339)
		report.Summary.FirstVisit = &f
		report.Summary.LastVisit = &l
	}
	return report
}
