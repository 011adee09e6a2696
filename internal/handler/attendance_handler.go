package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/visitor-attendance-api/internal/dto"
	"github.com/noah-isme/visitor-attendance-api/internal/models"
	appErrors "github.com/noah-isme/visitor-attendance-api/pkg/errors"
	"github.com/noah-isme/visitor-attendance-api/pkg/eventlog"
	"github.com/noah-isme/visitor-attendance-api/pkg/response"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = 500
)

type attendanceLedger interface {
	CheckIn(ctx context.Context, req dto.CheckInRequest, operatorID string) (*dto.CheckInResponse, error)
	VerifyFace(ctx context.Context, req dto.FaceVerificationRequest) (*dto.FaceVerificationResponse, error)
	Depart(ctx context.Context, req dto.DepartureRequest, operatorID string) (*dto.DepartureResponse, error)
	UserHistory(ctx context.Context, userID string) (*models.UserAttendanceHistory, error)
}

type activityFeed interface {
	Recent(ctx context.Context, userID string, limit int64) ([]eventlog.Event, error)
}

// AttendanceHandler serves the gate-side ledger endpoints.
type AttendanceHandler struct {
	ledger   attendanceLedger
	activity activityFeed
}

// NewAttendanceHandler constructs the handler. activity may be nil.
func NewAttendanceHandler(ledger attendanceLedger, activity activityFeed) *AttendanceHandler {
	return &AttendanceHandler{ledger: ledger, activity: activity}
}

// CheckIn godoc
// @Summary Record a QR check-in
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body dto.CheckInRequest true "Check-in payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /attendance/check-in [post]
func (h *AttendanceHandler) CheckIn(c *gin.Context) {
	claims, ok := requireOperator(c)
	if !ok {
		return
	}
	var req dto.CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.ledger.CheckIn(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// VerifyFace godoc
// @Summary Verify a visitor's face against the reference image
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body dto.FaceVerificationRequest true "Face verification payload"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /attendance/face-verification [post]
func (h *AttendanceHandler) VerifyFace(c *gin.Context) {
	var req dto.FaceVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.ledger.VerifyFace(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Depart godoc
// @Summary Close a visitor's open session
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body dto.DepartureRequest true "Departure payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /attendance/departure [post]
func (h *AttendanceHandler) Depart(c *gin.Context) {
	claims, ok := requireOperator(c)
	if !ok {
		return
	}
	var req dto.DepartureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.ledger.Depart(c.Request.Context(), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// History godoc
// @Summary Attendance history for a visitor
// @Tags Attendance
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /users/{id}/attendance [get]
func (h *AttendanceHandler) History(c *gin.Context) {
	history, err := h.ledger.UserHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, history, nil)
}

// Activity godoc
// @Summary Recent gate activity
// @Tags Attendance
// @Produce json
// @Param user_id query string false "Visitor filter"
// @Param limit query int false "Maximum events"
// @Success 200 {object} response.Envelope
// @Router /attendance/activity [get]
func (h *AttendanceHandler) Activity(c *gin.Context) {
	if h.activity == nil {
		response.JSON(c, http.StatusOK, []eventlog.Event{}, nil)
		return
	}
	limit := defaultActivityLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "limit must be a positive integer"))
			return
		}
		limit = min(parsed, maxActivityLimit)
	}
	events, err := h.activity.Recent(c.Request.Context(), c.Query("user_id"), int64(limit))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to load activity"))
		return
	}
	response.JSON(c, http.StatusOK, events, nil)
}
