package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/visitor-attendance-api/internal/analytics"
	"github.com/noah-isme/visitor-attendance-api/internal/dto"
	"github.com/noah-isme/visitor-attendance-api/internal/middleware"
	"github.com/noah-isme/visitor-attendance-api/internal/models"
	appErrors "github.com/noah-isme/visitor-attendance-api/pkg/errors"
	"github.com/noah-isme/visitor-attendance-api/pkg/response"
)

type analyticsReader interface {
	Report(ctx context.Context, view string, query dto.AnalyticsQuery) (*models.AnalyticsReport, bool, error)
	UserReport(ctx context.Context, userID string, query dto.AnalyticsQuery) (*models.UserActivityReport, error)
	Views() []string
	SystemMetrics() models.AnalyticsSystemMetrics
}

// AnalyticsHandler exposes dashboard-ready analytics endpoints.
type AnalyticsHandler struct {
	analytics analyticsReader
}

// NewAnalyticsHandler constructs the analytics handler.
func NewAnalyticsHandler(analytics analyticsReader) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

// Summary godoc
// @Summary Visitor analytics summary
// @Description Full analytics report bucketed in the reporting time zone
// @Tags Analytics
// @Produce json
// @Param start_date query string false "Start date (YYYY-MM-DD or RFC3339)"
// @Param end_date query string false "End date (YYYY-MM-DD or RFC3339)"
// @Param institution_id query string false "Institution filter"
// @Param user_id query string false "Visitor filter"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /analytics [get]
func (h *AnalyticsHandler) Summary(c *gin.Context) {
	h.report(c, analytics.ViewSummary)
}

// Detailed godoc
// @Summary Detailed visitor analytics
// @Tags Analytics
// @Produce json
// @Param start_date query string false "Start date"
// @Param end_date query string false "End date"
// @Param institution_id query string false "Institution filter"
// @Success 200 {object} response.Envelope
// @Router /analytics/detailed [get]
func (h *AnalyticsHandler) Detailed(c *gin.Context) {
	h.report(c, analytics.ViewDetailed)
}

// Overview godoc
// @Summary Analytics overview
// @Tags Analytics
// @Produce json
// @Param start_date query string false "Start date"
// @Param end_date query string false "End date"
// @Success 200 {object} response.Envelope
// @Router /analytics/overview [get]
func (h *AnalyticsHandler) Overview(c *gin.Context) {
	h.report(c, analytics.ViewOverview)
}

// Trends godoc
// @Summary Weekly trend analytics
// @Tags Analytics
// @Produce json
// @Param start_date query string false "Start date"
// @Param end_date query string false "End date"
// @Success 200 {object} response.Envelope
// @Router /analytics/trends [get]
func (h *AnalyticsHandler) Trends(c *gin.Context) {
	h.report(c, analytics.ViewTrends)
}

// User godoc
// @Summary Per-visitor activity
// @Tags Analytics
// @Produce json
// @Param id path string true "User ID"
// @Param start_date query string false "Start date"
// @Param end_date query string false "End date"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /analytics/users/{id} [get]
func (h *AnalyticsHandler) User(c *gin.Context) {
	if h.analytics == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	query, ok := bindAnalyticsQuery(c)
	if !ok {
		return
	}
	start := time.Now()
	report, err := h.analytics.UserReport(c.Request.Context(), c.Param("id"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil, middleware.ResponseMeta(c, start))
}

// Views lists the registered report views.
func (h *AnalyticsHandler) Views(c *gin.Context) {
	if h.analytics == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	response.JSON(c, http.StatusOK, h.analytics.Views(), nil)
}

// System returns instrumentation metrics snapshots.
func (h *AnalyticsHandler) System(c *gin.Context) {
	if h.analytics == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	start := time.Now()
	metrics := h.analytics.SystemMetrics()
	middleware.SetCacheHit(c, false)
	response.JSON(c, http.StatusOK, metrics, nil, middleware.ResponseMeta(c, start))
}

func (h *AnalyticsHandler) report(c *gin.Context, view string) {
	if h.analytics == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	query, ok := bindAnalyticsQuery(c)
	if !ok {
		return
	}
	start := time.Now()
	report, cacheHit, err := h.analytics.Report(c.Request.Context(), view, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	middleware.SetMeta(c, "view", view)
	response.JSON(c, http.StatusOK, report, nil, middleware.ResponseMeta(c, start))
}

func bindAnalyticsQuery(c *gin.Context) (dto.AnalyticsQuery, bool) {
	var query dto.AnalyticsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return query, false
	}
	return query, true
}
