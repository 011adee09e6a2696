package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/visitor-attendance-api/internal/models"
)

// Logger receives data-quality warnings. *zap.Logger satisfies it.
type Logger interface {
	Warn(msg string, fields ...zap.Field)
}

// Observer is notified about processed entries and anomalies. Optional.
type Observer interface {
	RecordEntriesProcessed(view string, count int)
	RecordDataQualityAnomaly(kind string)
}

// Clock supplies the current instant for ongoing-session durations.
type Clock func() time.Time

// Anomaly kinds reported to the Logger and Observer.
const (
	AnomalyEntryType        = "unrecognized_entry_type"
	AnomalyMissingArrival   = "missing_arrival"
	AnomalyInvalidTimestamp = "invalid_timestamp"
	AnomalyNegativeScan     = "negative_completion_time"
	AnomalyNonPositiveStay  = "non_positive_duration"
)

// Options holds the engine policy. Zero values fall back to DefaultOptions.
type Options struct {
	Policy TimePolicy
	Clock  Clock
	Logger Logger
	// Observer is optional.
	Observer Observer

	// GroupCompletionMinutes is the nominal completion time of group entries.
	GroupCompletionMinutes float64
	// UntimedCompletionMinutes applies to normal and bypass entries without a
	// face verification timestamp.
	UntimedCompletionMinutes float64
	// PeakRatio is the share of the busiest hour an hour needs to be a peak hour.
	PeakRatio      float64
	BusiestPeriods int
	RecentScans    int
}

// DefaultOptions returns the production policy.
func DefaultOptions() Options {
	return Options{
		Policy:                   MustLocalPolicy(DefaultReportOffset),
		Clock:                    time.Now,
		Logger:                   zap.NewNop(),
		GroupCompletionMinutes:   0.5,
		UntimedCompletionMinutes: 1.0,
		PeakRatio:                0.8,
		BusiestPeriods:           3,
		RecentScans:              10,
	}
}

// Window is the inclusive report range, already clamped to day bounds.
type Window struct {
	Start time.Time
	End   time.Time
}

// Engine turns attendance records into analytics reports. It holds no
// per-call state and is safe for concurrent use.
type Engine struct {
	opts Options
}

// NewEngine constructs an Engine, filling unset options with defaults.
func NewEngine(opts Options) *Engine {
	def := DefaultOptions()
	if opts.Policy.Location == nil {
		if opts.Policy.Name == PolicyUTC {
			opts.Policy = UTCPolicy()
		} else {
			opts.Policy = def.Policy
		}
	}
	if opts.Clock == nil {
		opts.Clock = def.Clock
	}
	if opts.Logger == nil {
		opts.Logger = def.Logger
	}
	if opts.GroupCompletionMinutes <= 0 {
		opts.GroupCompletionMinutes = def.GroupCompletionMinutes
	}
	if opts.UntimedCompletionMinutes <= 0 {
		opts.UntimedCompletionMinutes = def.UntimedCompletionMinutes
	}
	if opts.PeakRatio <= 0 || opts.PeakRatio > 1 {
		opts.PeakRatio = def.PeakRatio
	}
	if opts.BusiestPeriods <= 0 {
		opts.BusiestPeriods = def.BusiestPeriods
	}
	if opts.RecentScans <= 0 {
		opts.RecentScans = def.RecentScans
	}
	return &Engine{opts: opts}
}

// Options returns the effective engine options.
func (e *Engine) Options() Options {
	return e.opts
}

// WithPolicy returns a copy of the engine bucketing in a different zone.
func (e *Engine) WithPolicy(policy TimePolicy) *Engine {
	opts := e.opts
	opts.Policy = policy
	return &Engine{opts: opts}
}

// Aggregate computes the full report for records fetched once by the caller.
// The input is not modified and no filtering by date is applied.
func (e *Engine) Aggregate(records []models.AttendanceRecord, window Window, view string) *models.AnalyticsReport {
	ordered := SortRecords(records)
	acc := newAccumulator()
	now := e.opts.Clock()

	for _, record := range ordered {
		for i, entry := range record.TimeLogs {
			e.process(acc, record, i, entry, now)
		}
	}
	if e.opts.Observer != nil {
		e.opts.Observer.RecordEntriesProcessed(view, acc.verification.TotalAttempts)
	}

	report := &models.AnalyticsReport{
		SchemaVersion: models.AnalyticsSchemaVersion,
		View:          view,
		GeneratedAt:   now.UTC(),
		TimeRange: models.TimeRange{
			StartDate: window.Start.In(e.opts.Policy.Zone()).Format(time.RFC3339),
			EndDate:   window.End.In(e.opts.Policy.Zone()).Format(time.RFC3339),
			Timezone:  e.opts.Policy.Label(),
		},
		TrafficAnalysis:     e.traffic(acc),
		PerformanceMetrics:  performance(acc),
		ScanEfficiency:      e.scanEfficiency(acc),
		EntryStatistics:     entryStatistics(acc),
		VerificationSummary: acc.verification,
		GeneralStatistics:   general(ordered),
		UserTypeAnalysis:    acc.userTypes(),
		UserStatistics:      acc.userStatistics(),
		WeeklyTrends:        computeWeeklyTrends(ordered, e.opts.Logger),
	}
	return report
}

func (e *Engine) process(acc *accumulator, record models.AttendanceRecord, index int, entry models.LogEntry, now time.Time) {
	c := Classify(entry)
	acc.verification.TotalAttempts++
	if !c.Recognized {
		e.anomaly(AnomalyEntryType, record, index, zap.String("entry_type", string(entry.EntryType)))
	}

	switch c.EntryType {
	case models.EntryTypeBypass:
		acc.entryTypes.Bypass++
	case models.EntryTypeGroup:
		acc.entryTypes.GroupEntry++
	default:
		acc.entryTypes.Normal++
	}
	if c.FaceSuccess {
		acc.verification.FaceSuccess++
	}
	if c.QRSuccess {
		acc.verification.QRSuccess++
	}
	if c.Success {
		acc.verification.BothSuccess++
	} else {
		acc.verification.Failures++
	}
	if c.GroupSuccess {
		acc.verification.GroupSuccess++
	}

	user := acc.user(record)
	user.entries++
	if c.Success {
		user.successes++
	}

	if entry.Arrival == "" {
		acc.verification.SkippedEntries++
		e.anomaly(AnomalyMissingArrival, record, index)
		return
	}
	arrival, err := ParseInstant(entry.Arrival)
	if err != nil {
		acc.verification.SkippedEntries++
		e.anomaly(AnomalyInvalidTimestamp, record, index, zap.String("field", "arrival"), zap.Error(err))
		return
	}
	bucket := e.opts.Policy.Normalize(arrival)

	hour := acc.hourly[bucket.Hour]
	hour.TotalEntries++
	day := acc.day(bucket.DateKey)
	day.stats.TotalEntries++
	day.users[record.UserID] = struct{}{}
	if c.Success {
		hour.SuccessfulEntries++
		day.stats.SuccessfulEntries++
	} else {
		hour.FailedEntries++
		day.stats.FailedEntries++
	}
	switch c.EntryType {
	case models.EntryTypeBypass:
		hour.BypassEntries++
		day.stats.BypassEntries++
	case models.EntryTypeGroup:
		day.stats.GroupEntries++
	}
	acc.hourly[bucket.Hour] = hour

	if minutes, ok := e.completionMinutes(record, index, entry, c, arrival); ok {
		acc.scans = append(acc.scans, models.RecentScan{
			CompletionTime:   minutes,
			Date:             bucket.DateKey,
			Type:             string(c.EntryType),
			VerificationType: c.VerificationType(entry),
			ArrivalTime:      bucket.Local.Format("15:04:05"),
		})
	}

	if entry.IsOpen() {
		acc.incomplete++
		acc.ongoing = append(acc.ongoing, models.OngoingSession{
			UserID:        record.UserID,
			ArrivalTime:   bucket.Local.Format(time.RFC3339),
			DurationSoFar: round2(now.Sub(arrival).Minutes()),
			EntryType:     string(c.EntryType),
		})
		return
	}

	departure, err := ParseInstant(*entry.Departure)
	if err != nil {
		e.anomaly(AnomalyInvalidTimestamp, record, index, zap.String("field", "departure"), zap.Error(err))
		return
	}
	acc.completed++
	user.completed++
	duration := departure.Sub(arrival).Minutes()
	if duration <= 0 {
		e.anomaly(AnomalyNonPositiveStay, record, index, zap.Float64("minutes", duration))
		return
	}
	acc.durations = append(acc.durations, duration)
	user.durations = append(user.durations, duration)
}

// completionMinutes returns the rounded completion time of an entry, or false
// when the entry cannot contribute a trustworthy value.
func (e *Engine) completionMinutes(record models.AttendanceRecord, index int, entry models.LogEntry, c Classification, arrival time.Time) (float64, bool) {
	if c.EntryType == models.EntryTypeGroup {
		return round2(e.opts.GroupCompletionMinutes), true
	}
	if entry.FaceVerificationTime == nil {
		return round2(e.opts.UntimedCompletionMinutes), true
	}
	verified, err := ParseInstant(*entry.FaceVerificationTime)
	if err != nil {
		e.anomaly(AnomalyInvalidTimestamp, record, index, zap.String("field", "face_verification_time"), zap.Error(err))
		return 0, false
	}
	minutes := verified.Sub(arrival).Minutes()
	if minutes < 0 {
		e.anomaly(AnomalyNegativeScan, record, index, zap.Float64("minutes", minutes))
		return 0, false
	}
	return round2(minutes), true
}

func (e *Engine) anomaly(kind string, record models.AttendanceRecord, index int, fields ...zap.Field) {
	if e.opts.Observer != nil {
		e.opts.Observer.RecordDataQualityAnomaly(kind)
	}
	base := []zap.Field{
		zap.String("kind", kind),
		zap.String("record_id", record.ID),
		zap.String("user_id", record.UserID),
		zap.Int("entry_index", index),
	}
	e.opts.Logger.Warn("attendance entry data quality", append(base, fields...)...)
}

func (e *Engine) traffic(acc *accumulator) models.TrafficAnalysis {
	hours := make([]int, 0, len(acc.hourly))
	for h := range acc.hourly {
		hours = append(hours, h)
	}
	sort.Ints(hours)

	distribution := make(map[string]models.HourlyStats, len(hours))
	maxCount := 0
	for _, h := range hours {
		stats := acc.hourly[h]
		distribution[hourRange(h)] = stats
		if stats.TotalEntries > maxCount {
			maxCount = stats.TotalEntries
		}
	}

	peak := make([]int, 0)
	if maxCount > 0 {
		threshold := float64(maxCount) * e.opts.PeakRatio
		for _, h := range hours {
			if float64(acc.hourly[h].TotalEntries) >= threshold {
				peak = append(peak, h)
			}
		}
	}

	busiest := make([]int, len(hours))
	copy(busiest, hours)
	sort.SliceStable(busiest, func(i, j int) bool {
		return acc.hourly[busiest[i]].TotalEntries > acc.hourly[busiest[j]].TotalEntries
	})
	if len(busiest) > e.opts.BusiestPeriods {
		busiest = busiest[:e.opts.BusiestPeriods]
	}
	periods := make([]models.BusiestPeriod, 0, len(busiest))
	for _, h := range busiest {
		periods = append(periods, models.BusiestPeriod{Period: hourRange(h), Count: acc.hourly[h].TotalEntries})
	}

	return models.TrafficAnalysis{
		PeakHours:          peak,
		HourlyDistribution: distribution,
		BusiestPeriods:     periods,
	}
}

func performance(acc *accumulator) models.PerformanceMetrics {
	v := acc.verification
	return models.PerformanceMetrics{
		SuccessRate:          Rate(v.BothSuccess, v.TotalAttempts),
		FaceVerificationRate: Rate(v.FaceSuccess, v.TotalAttempts),
		QRVerificationRate:   Rate(v.QRSuccess, v.TotalAttempts),
		GroupSuccessRate:     Rate(v.GroupSuccess, acc.entryTypes.GroupEntry),
		BypassRate:           Rate(acc.entryTypes.Bypass, v.TotalAttempts),
		CompletionRate:       Rate(acc.completed, v.TotalAttempts),
	}
}

func (e *Engine) scanEfficiency(acc *accumulator) models.ScanEfficiency {
	recent := acc.scans
	if len(recent) > e.opts.RecentScans {
		recent = recent[len(recent)-e.opts.RecentScans:]
	}
	recentCopy := make([]models.RecentScan, len(recent))
	copy(recentCopy, recent)

	var dist models.CompletionTimeDistribution
	for _, scan := range acc.scans {
		switch {
		case scan.CompletionTime <= 1:
			dist.UnderOneMinute++
		case scan.CompletionTime <= 2:
			dist.OneToTwoMinutes++
		case scan.CompletionTime <= 5:
			dist.TwoToFiveMinutes++
		}
	}

	return models.ScanEfficiency{
		AverageCompletionTimeMinutes:       round2(meanScan(acc.scans)),
		RecentAverageCompletionTimeMinutes: round2(meanScan(recent)),
		RecentScans:                        recentCopy,
		TotalValidScans:                    len(acc.scans),
		CompletionRate:                     Rate(len(acc.scans), acc.verification.TotalAttempts),
		CompletionTimeDistribution:         dist,
	}
}

func entryStatistics(acc *accumulator) models.EntryStatistics {
	daily := make(map[string]models.DailyStats, len(acc.daily))
	for key, day := range acc.daily {
		stats := day.stats
		stats.UniqueUsers = len(day.users)
		stats.SuccessRate = Rate(stats.SuccessfulEntries, stats.TotalEntries)
		daily[key] = stats
	}

	ongoing := make([]models.OngoingSession, len(acc.ongoing))
	copy(ongoing, acc.ongoing)
	sort.SliceStable(ongoing, func(i, j int) bool {
		return ongoing[i].DurationSoFar > ongoing[j].DurationSoFar
	})

	return models.EntryStatistics{
		TotalEntries:           acc.verification.TotalAttempts,
		EntryTypes:             acc.entryTypes,
		CompletedEntries:       acc.completed,
		IncompleteEntries:      acc.incomplete,
		AverageDurationMinutes: round2(mean(acc.durations)),
		DailyPatterns:          daily,
		OngoingUsers: models.OngoingUsers{
			Count:   len(ongoing),
			Details: ongoing,
		},
	}
}

// general counts users and active days from the records themselves.
func general(records []models.AttendanceRecord) models.GeneralStatistics {
	users := make(map[string]struct{})
	days := make(map[string]struct{})
	for _, r := range records {
		users[r.UserID] = struct{}{}
		days[r.EntryDateKey()] = struct{}{}
	}
	avg := 0.0
	if len(days) > 0 {
		avg = round2(float64(len(users)) / float64(len(days)))
	}
	return models.GeneralStatistics{
		TotalUniqueUsers:   len(users),
		TotalActiveDays:    len(days),
		AverageUsersPerDay: avg,
	}
}

// SortRecords returns a copy ordered by entry date, user and record id.
func SortRecords(records []models.AttendanceRecord) []models.AttendanceRecord {
	out := make([]models.AttendanceRecord, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.EntryDate.Equal(b.EntryDate) {
			return a.EntryDate.Before(b.EntryDate)
		}
		if a.UserID != b.UserID {
			return a.UserID < b.UserID
		}
		return a.ID < b.ID
	})
	return out
}

// Rate returns numerator/denominator as a percentage rounded to two decimals,
// or 0 when the denominator is zero.
func Rate(numerator, denominator int) float64 {
	if denominator <= 0 {
		return 0
	}
	return round2(float64(numerator) / float64(denominator) * 100)
}

func hourRange(hour int) string {
	return fmt.Sprintf("%02d:00-%02d:00", hour, hour+1)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func meanScan(scans []models.RecentScan) float64 {
	if len(scans) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range scans {
		sum += s.CompletionTime
	}
	return sum / float64(len(scans))
}

type dayAccumulator struct {
	stats models.DailyStats
	users map[string]struct{}
}

type userAccumulator struct {
	instructor bool
	entries    int
	successes  int
	completed  int
	durations  []float64
	days       map[string]struct{}
}

type accumulator struct {
	hourly       map[int]models.HourlyStats
	daily        map[string]*dayAccumulator
	users        map[string]*userAccumulator
	verification models.VerificationSummary
	entryTypes   models.EntryTypeCounts
	scans        []models.RecentScan
	ongoing      []models.OngoingSession
	durations    []float64
	completed    int
	incomplete   int
}

func newAccumulator() *accumulator {
	return &accumulator{
		hourly:  make(map[int]models.HourlyStats),
		daily:   make(map[string]*dayAccumulator),
		users:   make(map[string]*userAccumulator),
		scans:   make([]models.RecentScan, 0),
		ongoing: make([]models.OngoingSession, 0),
	}
}

func (a *accumulator) day(key string) *dayAccumulator {
	d, ok := a.daily[key]
	if !ok {
		d = &dayAccumulator{users: make(map[string]struct{})}
		a.daily[key] = d
	}
	return d
}

func (a *accumulator) user(record models.AttendanceRecord) *userAccumulator {
	u, ok := a.users[record.UserID]
	if !ok {
		u = &userAccumulator{days: make(map[string]struct{})}
		a.users[record.UserID] = u
	}
	if record.IsInstructor {
		u.instructor = true
	}
	u.days[record.EntryDateKey()] = struct{}{}
	return u
}

func (a *accumulator) userTypes() models.UserTypeAnalysis {
	var out models.UserTypeAnalysis
	for _, u := range a.users {
		if u.instructor {
			out.Instructors.Count++
			out.Instructors.Entries += u.entries
			continue
		}
		out.Students.Count++
		out.Students.Entries += u.entries
	}
	return out
}

func (a *accumulator) userStatistics() map[string]models.UserStat {
	out := make(map[string]models.UserStat, len(a.users))
	for id, u := range a.users {
		out[id] = models.UserStat{
			TotalEntries:           u.entries,
			SuccessfulEntries:      u.successes,
			CompletedEntries:       u.completed,
			AverageDurationMinutes: round2(mean(u.durations)),
			ActiveDays:             len(u.days),
		}
	}
	return out
}
