package service

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/visitor-attendance-api/internal/analytics"
	"github.com/noah-isme/visitor-attendance-api/internal/dto"
	"github.com/noah-isme/visitor-attendance-api/internal/models"
	"github.com/noah-isme/visitor-attendance-api/pkg/export"
	"github.com/noah-isme/visitor-attendance-api/pkg/storage"
)

type analyticsReporter interface {
	Report(ctx context.Context, view string, query dto.AnalyticsQuery) (*models.AnalyticsReport, bool, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type documentRenderer interface {
	Render(doc export.Document) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ReportFormat
	ExpiresAt    time.Time
}

// ExportService renders analytics reports to files and signs download links.
type ExportService struct {
	reports analyticsReporter
	storage fileStorage
	csv     documentRenderer
	pdf     documentRenderer
	signer  *storage.SignedURLSigner
	logger  *zap.Logger
	cfg     ExportConfig
	now     func() time.Time
}

// NewExportService constructs an ExportService. Nil renderers fall back to the
// defaults from pkg/export.
func NewExportService(reports analyticsReporter, store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv, pdf documentRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVRenderer()
	}
	if pdf == nil {
		pdf = export.NewPDFRenderer()
	}
	return &ExportService{
		reports: reports,
		storage: store,
		csv:     csv,
		pdf:     pdf,
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Generate computes the analytics report for the job and stores the rendered export.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	view := job.Params.View
	if view == "" {
		view = analytics.ViewSummary
	}
	report, _, err := s.reports.Report(ctx, view, dto.AnalyticsQuery{
		StartDate:     job.Params.StartDate,
		EndDate:       job.Params.EndDate,
		InstitutionID: job.Params.InstitutionID,
	})
	if err != nil {
		return nil, fmt.Errorf("compute %s report: %w", view, err)
	}

	var doc export.Document
	switch job.Type {
	case models.ReportTypeAnalytics, "":
		doc = analyticsDocument(report)
	case models.ReportTypeTrends:
		doc = trendsDocument(report)
	default:
		return nil, fmt.Errorf("unsupported report type %s", job.Type)
	}

	var payload []byte
	switch job.Params.Format {
	case models.ReportFormatCSV:
		payload, err = s.csv.Render(doc)
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(doc)
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return nil, err
	}

	relPath, err := s.storage.Save(s.buildFilename(job, report), payload)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Sign(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	s.logger.Debug("export rendered", zap.String("job_id", job.ID), zap.String("path", relPath), zap.Int("bytes", len(payload)))
	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/export/%s", prefix, token),
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (storage.DownloadToken, error) {
	return s.signer.Verify(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl, or the configured ResultTTL when ttl <= 0.
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.ReportJob, report *models.AnalyticsReport) string {
	kind := job.Type
	if kind == "" {
		kind = models.ReportTypeAnalytics
	}
	timestamp := s.now().UTC().Format("20060102_150405")
	return fmt.Sprintf("%s_%s_%s_%s_%s.%s",
		kind,
		sanitizeFilename(report.View),
		sanitizeFilename(report.TimeRange.StartDate),
		sanitizeFilename(report.TimeRange.EndDate),
		timestamp,
		job.Params.Format,
	)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	if len(raw) >= 10 {
		if _, err := time.Parse("2006-01-02", raw[:10]); err == nil {
			raw = raw[:10]
		}
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func reportSubtitle(report *models.AnalyticsReport) string {
	return fmt.Sprintf("%s to %s (%s)", report.TimeRange.StartDate, report.TimeRange.EndDate, report.TimeRange.Timezone)
}

func analyticsDocument(report *models.AnalyticsReport) export.Document {
	doc := export.Document{
		Title:    fmt.Sprintf("Visitor Analytics (%s)", report.View),
		Subtitle: reportSubtitle(report),
	}

	dates := make([]string, 0, len(report.EntryStatistics.DailyPatterns))
	for date := range report.EntryStatistics.DailyPatterns {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	daily := make([][]string, 0, len(dates))
	for _, date := range dates {
		d := report.EntryStatistics.DailyPatterns[date]
		daily = append(daily, []string{
			date,
			strconv.Itoa(d.TotalEntries),
			strconv.Itoa(d.SuccessfulEntries),
			strconv.Itoa(d.FailedEntries),
			strconv.Itoa(d.UniqueUsers),
			strconv.Itoa(d.BypassEntries),
			strconv.Itoa(d.GroupEntries),
			formatRate(d.SuccessRate),
		})
	}
	doc.AddSection("Daily Patterns",
		[]string{"Date", "Entries", "Successful", "Failed", "Unique Users", "Bypass", "Group", "Success Rate (%)"},
		daily)

	hours := make([]string, 0, len(report.TrafficAnalysis.HourlyDistribution))
	for hour := range report.TrafficAnalysis.HourlyDistribution {
		hours = append(hours, hour)
	}
	sort.Strings(hours)
	hourly := make([][]string, 0, len(hours))
	for _, hour := range hours {
		h := report.TrafficAnalysis.HourlyDistribution[hour]
		hourly = append(hourly, []string{
			hour,
			strconv.Itoa(h.TotalEntries),
			strconv.Itoa(h.SuccessfulEntries),
			strconv.Itoa(h.FailedEntries),
			strconv.Itoa(h.BypassEntries),
		})
	}
	doc.AddSection("Hourly Distribution",
		[]string{"Hour", "Entries", "Successful", "Failed", "Bypass"},
		hourly)

	perf := report.PerformanceMetrics
	doc.AddSection("Performance", []string{"Metric", "Value"}, [][]string{
		{"Success rate (%)", formatRate(perf.SuccessRate)},
		{"Face verification rate (%)", formatRate(perf.FaceVerificationRate)},
		{"QR verification rate (%)", formatRate(perf.QRVerificationRate)},
		{"Bypass rate (%)", formatRate(perf.BypassRate)},
		{"Completion rate (%)", formatRate(perf.CompletionRate)},
		{"Unique visitors", strconv.Itoa(report.GeneralStatistics.TotalUniqueUsers)},
	})
	return doc
}

func trendsDocument(report *models.AnalyticsReport) export.Document {
	doc := export.Document{
		Title:    fmt.Sprintf("Weekly Trends (%s)", report.View),
		Subtitle: reportSubtitle(report),
	}

	weeks := make([]string, 0, len(report.WeeklyTrends.Weeks))
	for week := range report.WeeklyTrends.Weeks {
		weeks = append(weeks, week)
	}
	sort.Strings(weeks)
	rows := make([][]string, 0, len(weeks))
	for _, week := range weeks {
		w := report.WeeklyTrends.Weeks[week]
		rows = append(rows, []string{
			week,
			strconv.Itoa(w.TotalEntries),
			strconv.Itoa(w.SuccessfulEntries),
			strconv.Itoa(w.UniqueUsers),
			formatRate(w.BypassRate),
			formatRate(w.AverageDurationMinutes),
			strconv.Itoa(w.GroupEntries),
			strconv.Itoa(w.InstructorVerificationCount),
		})
	}
	doc.AddSection("Weeks",
		[]string{"Week", "Entries", "Successful", "Unique Users", "Bypass Rate (%)", "Avg Duration (min)", "Group", "Instructor Verified"},
		rows)

	ind := report.WeeklyTrends.TrendIndicators
	peak := ""
	if ind.PeakWeek != nil {
		peak = *ind.PeakWeek
	}
	doc.AddSection("Indicators", []string{"Indicator", "Value"}, [][]string{
		{"Growth rate (%)", formatRate(ind.GrowthRate)},
		{"Peak week", peak},
		{"Efficiency trend", ind.EfficiencyTrend},
		{"Group verification trend", ind.GroupVerificationTrend},
	})
	return doc
}

func formatRate(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
