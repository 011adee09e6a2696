package models

import "time"

// AnalyticsSchemaVersion identifies the layout of AnalyticsReport. Bump it when
// any JSON key is renamed or removed.
const AnalyticsSchemaVersion = "v1"

// AnalyticsFilter scopes record source queries for a report.
type AnalyticsFilter struct {
	View          string
	StartDate     time.Time
	EndDate       time.Time
	InstitutionID string
	UserID        string
}

// AnalyticsReport is the full analytics response shared by every view.
type AnalyticsReport struct {
	SchemaVersion       string              `json:"schema_version"`
	View                string              `json:"view"`
	GeneratedAt         time.Time           `json:"generated_at"`
	TimeRange           TimeRange           `json:"time_range"`
	TrafficAnalysis     TrafficAnalysis     `json:"traffic_analysis"`
	PerformanceMetrics  PerformanceMetrics  `json:"performance_metrics"`
	ScanEfficiency      ScanEfficiency      `json:"scan_efficiency"`
	EntryStatistics     EntryStatistics     `json:"entry_statistics"`
	VerificationSummary VerificationSummary `json:"verification_summary"`
	GeneralStatistics   GeneralStatistics   `json:"general_statistics"`
	UserTypeAnalysis    UserTypeAnalysis    `json:"user_type_analysis"`
	UserStatistics      map[string]UserStat `json:"user_statistics"`
	WeeklyTrends        WeeklyTrends        `json:"weekly_trends"`
}

// TimeRange echoes the window the report covers.
type TimeRange struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Timezone  string `json:"timezone"`
}

// TrafficAnalysis groups hour-of-day statistics.
type TrafficAnalysis struct {
	PeakHours          []int                  `json:"peak_hours"`
	HourlyDistribution map[string]HourlyStats `json:"hourly_distribution"`
	BusiestPeriods     []BusiestPeriod        `json:"busiest_periods"`
}

// HourlyStats counts entries whose arrival falls in one local hour.
type HourlyStats struct {
	TotalEntries      int `json:"total_entries"`
	SuccessfulEntries int `json:"successful_entries"`
	FailedEntries     int `json:"failed_entries"`
	BypassEntries     int `json:"bypass_entries"`
}

// BusiestPeriod names an hour range and its entry count.
type BusiestPeriod struct {
	Period string `json:"period"`
	Count  int    `json:"count"`
}

// PerformanceMetrics are percentage rates rounded to two decimals.
type PerformanceMetrics struct {
	SuccessRate          float64 `json:"success_rate"`
	FaceVerificationRate float64 `json:"face_verification_rate"`
	QRVerificationRate   float64 `json:"qr_verification_rate"`
	GroupSuccessRate     float64 `json:"group_success_rate"`
	BypassRate           float64 `json:"bypass_rate"`
	CompletionRate       float64 `json:"completion_rate"`
}

// ScanEfficiency summarises verification completion times.
type ScanEfficiency struct {
	AverageCompletionTimeMinutes       float64                    `json:"average_completion_time_minutes"`
	RecentAverageCompletionTimeMinutes float64                    `json:"recent_average_completion_time_minutes"`
	RecentScans                        []RecentScan               `json:"recent_scans"`
	TotalValidScans                    int                        `json:"total_valid_scans"`
	CompletionRate                     float64                    `json:"completion_rate"`
	CompletionTimeDistribution         CompletionTimeDistribution `json:"completion_time_distribution"`
}

// RecentScan describes one of the latest processed entries. Time holds the
// completion time in minutes; the arrival clock lives in ArrivalTime.
type RecentScan struct {
	CompletionTime   float64 `json:"time"`
	Date             string  `json:"date"`
	Type             string  `json:"type"`
	VerificationType string  `json:"verification_type"`
	ArrivalTime      string  `json:"arrival_time"`
}

// CompletionTimeDistribution is a fixed-edge histogram of completion times.
type CompletionTimeDistribution struct {
	UnderOneMinute   int `json:"under_1_minute"`
	OneToTwoMinutes  int `json:"1_to_2_minutes"`
	TwoToFiveMinutes int `json:"2_to_5_minutes"`
}

// EntryStatistics groups session-level counts.
type EntryStatistics struct {
	TotalEntries           int                   `json:"total_entries"`
	EntryTypes             EntryTypeCounts       `json:"entry_types"`
	CompletedEntries       int                   `json:"completed_entries"`
	IncompleteEntries      int                   `json:"incomplete_entries"`
	AverageDurationMinutes float64               `json:"average_duration_minutes"`
	DailyPatterns          map[string]DailyStats `json:"daily_patterns"`
	OngoingUsers           OngoingUsers          `json:"ongoing_users"`
}

// EntryTypeCounts counts entries per classified type.
type EntryTypeCounts struct {
	Normal     int `json:"normal"`
	Bypass     int `json:"bypass"`
	GroupEntry int `json:"group_entry"`
}

// DailyStats aggregates one local calendar day.
type DailyStats struct {
	TotalEntries      int     `json:"total_entries"`
	SuccessfulEntries int     `json:"successful_entries"`
	FailedEntries     int     `json:"failed_entries"`
	UniqueUsers       int     `json:"unique_users"`
	BypassEntries     int     `json:"bypass_entries"`
	GroupEntries      int     `json:"group_entries"`
	SuccessRate       float64 `json:"success_rate"`
}

// OngoingUsers lists sessions without a departure.
type OngoingUsers struct {
	Count   int              `json:"count"`
	Details []OngoingSession `json:"details"`
}

// OngoingSession is one open session at report time.
type OngoingSession struct {
	UserID        string  `json:"user_id"`
	ArrivalTime   string  `json:"arrival_time"`
	DurationSoFar float64 `json:"duration_so_far"`
	EntryType     string  `json:"entry_type"`
}

// VerificationSummary holds the global verification counters.
type VerificationSummary struct {
	TotalAttempts  int `json:"total_attempts"`
	FaceSuccess    int `json:"face_success"`
	QRSuccess      int `json:"qr_success"`
	BothSuccess    int `json:"both_success"`
	GroupSuccess   int `json:"group_success"`
	Failures       int `json:"failures"`
	SkippedEntries int `json:"skipped_entries"`
}

// GeneralStatistics describes visitor volume across the window.
type GeneralStatistics struct {
	TotalUniqueUsers   int     `json:"total_unique_users"`
	TotalActiveDays    int     `json:"total_active_days"`
	AverageUsersPerDay float64 `json:"average_users_per_day"`
}

// UserTypeAnalysis splits traffic between instructors and everybody else.
type UserTypeAnalysis struct {
	Instructors UserTypeStats `json:"instructors"`
	Students    UserTypeStats `json:"students"`
}

// UserTypeStats counts distinct users and their entries.
type UserTypeStats struct {
	Count   int `json:"count"`
	Entries int `json:"entries"`
}

// UserStat aggregates one user's activity in the window.
type UserStat struct {
	TotalEntries           int     `json:"total_entries"`
	SuccessfulEntries      int     `json:"successful_entries"`
	CompletedEntries       int     `json:"completed_entries"`
	AverageDurationMinutes float64 `json:"average_duration_minutes"`
	ActiveDays             int     `json:"active_days"`
}

// WeeklyTrends holds per-ISO-week aggregates and derived indicators.
type WeeklyTrends struct {
	Weeks           map[string]WeekStats `json:"weeks"`
	TrendIndicators TrendIndicators      `json:"trend_indicators"`
}

// WeekStats aggregates one ISO week.
type WeekStats struct {
	TotalEntries                int     `json:"total_entries"`
	SuccessfulEntries           int     `json:"successful_entries"`
	UniqueUsers                 int     `json:"unique_users"`
	BypassRate                  float64 `json:"bypass_rate"`
	AverageDurationMinutes      float64 `json:"average_duration_minutes"`
	GroupEntries                int     `json:"group_entries"`
	GroupEntrySuccessRate       float64 `json:"group_entry_success_rate"`
	InstructorVerificationCount int     `json:"instructor_verification_count"`
}

// TrendIndicators are the qualitative outputs of the trend calculator.
type TrendIndicators struct {
	GrowthRate             float64 `json:"growth_rate"`
	PeakWeek               *string `json:"peak_week"`
	EfficiencyTrend        string  `json:"efficiency_trend"`
	GroupVerificationTrend string  `json:"group_verification_trend"`
}

// UserActivityReport is the per-user analytics response.
type UserActivityReport struct {
	SchemaVersion string              `json:"schema_version"`
	User          UserInfo            `json:"user"`
	Timezone      string              `json:"timezone"`
	Summary       UserActivitySummary `json:"summary"`
	Days          []UserActivityDay   `json:"days"`
}

// UserActivitySummary aggregates a user's sessions.
type UserActivitySummary struct {
	TotalDays              int     `json:"total_days"`
	TotalEntries           int     `json:"total_entries"`
	SuccessfulEntries      int     `json:"successful_entries"`
	SuccessRate            float64 `json:"success_rate"`
	NormalEntries          int     `json:"normal_entries"`
	BypassEntries          int     `json:"bypass_entries"`
	GroupEntries           int     `json:"group_entries"`
	FaceVerifiedEntries    int     `json:"face_verified_entries"`
	AverageDurationMinutes float64 `json:"average_duration_minutes"`
	FirstVisit             *string `json:"first_visit,omitempty"`
	LastVisit              *string `json:"last_visit,omitempty"`
}

// UserActivityDay lists one day's sessions for a user.
type UserActivityDay struct {
	Date     string                `json:"date"`
	Sessions []UserActivitySession `json:"sessions"`
}

// UserActivitySession is a normalized view of one log entry.
type UserActivitySession struct {
	Arrival         string   `json:"arrival"`
	Departure       *string  `json:"departure,omitempty"`
	DurationMinutes *float64 `json:"duration_minutes,omitempty"`
	EntryType       string   `json:"entry_type"`
	Success         bool     `json:"success"`
	FaceVerified    bool     `json:"face_verified"`
	QRVerified      bool     `json:"qr_verified"`
}

// AnalyticsSystemMetrics represents system level analytics captured from instrumentation.
type AnalyticsSystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	DBQueryCount             uint64    `json:"db_query_count"`
	AverageDBQueryDurationMs float64   `json:"average_db_query_duration_ms"`
	EntriesProcessed         uint64    `json:"entries_processed"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
