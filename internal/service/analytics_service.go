package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/visitor-attendance-api/internal/analytics"
	"github.com/noah-isme/visitor-attendance-api/internal/dto"
	"github.com/noah-isme/visitor-attendance-api/internal/models"
	appErrors "github.com/noah-isme/visitor-attendance-api/pkg/errors"
	"github.com/noah-isme/visitor-attendance-api/pkg/logger"
)

// AttendanceRecordSource is the read side of the attendance ledger used for reporting.
type AttendanceRecordSource interface {
	ListForWindow(ctx context.Context, filter models.AttendanceRecordFilter) ([]models.AttendanceRecord, error)
}

// UserReader looks up visitors by id.
type UserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// AnalyticsOptions configures AnalyticsService.
type AnalyticsOptions struct {
	Engine            analytics.Options
	Views             *analytics.ViewRegistry
	DefaultWindowDays int
	CacheTTL          time.Duration
}

// AnalyticsService fetches the record window once, aggregates it and caches the report.
type AnalyticsService struct {
	records AttendanceRecordSource
	users   UserReader
	cache   *CacheService
	metrics *MetricsService
	engine  *analytics.Engine
	views   *analytics.ViewRegistry
	days    int
	ttl     time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

// NewAnalyticsService constructs an analytics service.
func NewAnalyticsService(records AttendanceRecordSource, users UserReader, cache *CacheService, metrics *MetricsService, opts AnalyticsOptions, logger *zap.Logger) (*AnalyticsService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	views := opts.Views
	if views == nil {
		reg, err := analytics.NewViewRegistry(analytics.MustLocalPolicy(analytics.DefaultReportOffset), nil)
		if err != nil {
			return nil, err
		}
		views = reg
	}
	engineOpts := opts.Engine
	if engineOpts.Logger == nil {
		engineOpts.Logger = logger
	}
	if engineOpts.Observer == nil && metrics != nil {
		engineOpts.Observer = metrics
	}
	engine := analytics.NewEngine(engineOpts)

	return &AnalyticsService{
		records: records,
		users:   users,
		cache:   cache,
		metrics: metrics,
		engine:  engine,
		views:   views,
		days:    opts.DefaultWindowDays,
		ttl:     opts.CacheTTL,
		now:     engine.Options().Clock,
		logger:  logger,
	}, nil
}

// Report returns the analytics report for a named view. The boolean indicates a cache hit.
func (s *AnalyticsService) Report(ctx context.Context, view string, query dto.AnalyticsQuery) (*models.AnalyticsReport, bool, error) {
	policy, window, err := s.resolve(view, query)
	if err != nil {
		return nil, false, err
	}

	cacheKey := makeAnalyticsCacheKey("report", models.AnalyticsSchemaVersion, view, window.Start.Format(time.RFC3339), window.End.Format(time.RFC3339), "i="+query.InstitutionID, "u="+query.UserID)
	var cached models.AnalyticsReport
	if s.cache != nil {
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err != nil {
			logger.WithContext(ctx, s.logger).Warn("analytics cache lookup failed", zap.String("view", view), zap.Error(err))
		} else if hit {
			return &cached, true, nil
		}
	}

	records, err := s.fetch(ctx, window, query.InstitutionID, query.UserID)
	if err != nil {
		return nil, false, err
	}

	report := s.engine.WithPolicy(policy).Aggregate(records, window, view)

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, report, s.ttl); err != nil {
			s.logger.Warn("cache analytics report", zap.String("view", view), zap.Error(err))
		}
	}
	return report, false, nil
}

// UserReport returns the per-visitor activity view.
func (s *AnalyticsService) UserReport(ctx context.Context, userID string, query dto.AnalyticsQuery) (*models.UserActivityReport, error) {
	policy, window, err := s.resolve(analytics.ViewUser, query)
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to load user")
	}

	records, err := s.fetch(ctx, window, "", userID)
	if err != nil {
		return nil, err
	}
	report := analytics.UserActivity(*user, records, policy)
	return &report, nil
}

// Views lists the registered report views.
func (s *AnalyticsService) Views() []string {
	return s.views.Views()
}

// SystemMetrics returns system instrumentation snapshot.
func (s *AnalyticsService) SystemMetrics() models.AnalyticsSystemMetrics {
	if s.metrics == nil {
		return models.AnalyticsSystemMetrics{}
	}
	return s.metrics.Snapshot()
}

// Invalidate drops cached reports after ledger writes.
func (s *AnalyticsService) Invalidate(ctx context.Context) {
	if s == nil || s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, "analytics:report:*"); err != nil {
		s.logger.Warn("invalidate analytics cache", zap.Error(err))
	}
}

func (s *AnalyticsService) resolve(view string, query dto.AnalyticsQuery) (analytics.TimePolicy, analytics.Window, error) {
	policy, err := s.views.Policy(view)
	if err != nil {
		return analytics.TimePolicy{}, analytics.Window{}, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("unknown analytics view %q", view))
	}
	window, err := policy.ResolveWindow(query.StartDate, query.EndDate, s.now(), s.days)
	if err != nil {
		return analytics.TimePolicy{}, analytics.Window{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	return policy, window, nil
}

func (s *AnalyticsService) fetch(ctx context.Context, window analytics.Window, institutionID, userID string) ([]models.AttendanceRecord, error) {
	start := time.Now()
	records, err := s.records.ListForWindow(ctx, models.AttendanceRecordFilter{
		DateFrom:      window.Start,
		DateTo:        window.End,
		InstitutionID: institutionID,
		UserID:        userID,
	})
	if err != nil {
		logger.WithContext(ctx, s.logger).Error("fetch attendance records", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, appErrors.ErrUpstream.Message)
	}
	if s.metrics != nil {
		s.metrics.ObserveDBQuery("analytics_records", time.Since(start))
	}
	return records, nil
}

func makeAnalyticsCacheKey(parts ...string) string {
	var builder strings.Builder
	builder.Grow(len(parts) * 16)
	builder.WriteString("analytics")
	for _, part := range parts {
		if part == "" {
			continue
		}
		builder.WriteByte(':')
		builder.WriteString(strings.ReplaceAll(part, ":", "|"))
	}
	return builder.String()
}
