package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/visitor-attendance-api/internal/analytics"
	"github.com/noah-isme/visitor-attendance-api/internal/dto"
	"github.com/noah-isme/visitor-attendance-api/internal/models"
	"github.com/noah-isme/visitor-attendance-api/internal/repository"
	appErrors "github.com/noah-isme/visitor-attendance-api/pkg/errors"
	"github.com/noah-isme/visitor-attendance-api/pkg/eventlog"
	"github.com/noah-isme/visitor-attendance-api/pkg/faceclient"
	"github.com/noah-isme/visitor-attendance-api/pkg/logger"
	"github.com/noah-isme/visitor-attendance-api/pkg/mailer"
)

const (
	maxLedgerAttempts = 3
	defaultBypassNote = "No reason provided"
)

type ledgerStore interface {
	GetByUserDate(ctx context.Context, userID string, date time.Time) (*models.AttendanceRecord, error)
	ListByUser(ctx context.Context, userID string) ([]models.AttendanceRecord, error)
	ListByInstitutionDate(ctx context.Context, institutionID string, date time.Time) ([]models.AttendanceRecord, error)
	Create(ctx context.Context, rec *models.AttendanceRecord) error
	ReplaceTimeLogs(ctx context.Context, rec *models.AttendanceRecord, logs models.TimeLogs) error
}

type ledgerUsers interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindAppUser(ctx context.Context, id string) (*models.AppUser, error)
	ListStudentsByInstitution(ctx context.Context, institutionID string) ([]models.User, error)
}

type faceMatcher interface {
	Compare(ctx context.Context, referenceURL, captureURL string) (*faceclient.CompareResult, error)
}

type reportInvalidator interface {
	Invalidate(ctx context.Context)
}

// AttendanceService writes the visitor attendance ledger.
type AttendanceService struct {
	store         ledgerStore
	users         ledgerUsers
	faces         faceMatcher
	activity      *ActivityService
	notifications *NotificationService
	metrics       *MetricsService
	reports       reportInvalidator
	validator     *validator.Validate
	logger        *zap.Logger
	now           func() time.Time
}

// AttendanceDeps groups the collaborators of AttendanceService. Only Store and
// Users are required.
type AttendanceDeps struct {
	Store         ledgerStore
	Users         ledgerUsers
	Faces         faceMatcher
	Activity      *ActivityService
	Notifications *NotificationService
	Metrics       *MetricsService
	Reports       reportInvalidator
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(deps AttendanceDeps, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{
		store:         deps.Store,
		users:         deps.Users,
		faces:         deps.Faces,
		activity:      deps.Activity,
		notifications: deps.Notifications,
		metrics:       deps.Metrics,
		reports:       deps.Reports,
		validator:     validate,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// CheckIn records a QR scan, opening a new session for today.
func (s *AttendanceService) CheckIn(ctx context.Context, req dto.CheckInRequest, operatorID string) (*dto.CheckInResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid check-in payload")
	}
	user, err := s.loadUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if err := s.loadOperator(ctx, operatorID); err != nil {
		return nil, err
	}
	if req.GroupEntry {
		if !user.IsInstructor {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only instructors can perform group entry")
		}
		if user.InstitutionID == nil || *user.InstitutionID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "instructor must be associated with an institution")
		}
	}

	now := s.now()
	stamp := analytics.FormatInstant(now)
	entryType := models.EntryTypeNormal
	if req.Bypass {
		entryType = models.EntryTypeBypass
	}
	entry := newArrival(entryType, stamp)
	if req.Bypass {
		reason := strings.TrimSpace(req.BypassReason)
		if reason == "" {
			reason = defaultBypassNote
		}
		entry.BypassDetails = &models.BypassDetails{Reason: reason, ApprovedBy: operatorID, ApprovedAt: stamp}
	}

	rec, err := s.mutate(ctx, "check_in", req.UserID, now, operatorID, func(rec *models.AttendanceRecord) (models.TimeLogs, error) {
		var logs models.TimeLogs
		if rec != nil {
			logs = rec.TimeLogs
		}
		if last, ok := logs.Last(); ok && last.IsOpen() {
			return nil, appErrors.Clone(appErrors.ErrOpenEntry, "previous entry not closed, record departure first")
		}
		return logs.WithAppended(entry), nil
	})
	if err != nil {
		s.activity.Log(ctx, eventlog.TypeQRScan, user.ID, user.Name, false, err.Error())
		return nil, err
	}

	resp := &dto.CheckInResponse{
		RecordID:  rec.ID,
		UserID:    user.ID,
		EntryType: string(entryType),
		Arrival:   stamp,
	}
	if req.GroupEntry && !req.Bypass {
		resp.EntryType = string(models.EntryTypeGroup)
		resp.GroupStudents = s.checkInGroup(ctx, user, operatorID, now)
	}

	s.activity.Log(ctx, eventlog.TypeQRScan, user.ID, user.Name, true, "Successful QR scan")
	s.invalidateReports(ctx)
	return resp, nil
}

// checkInGroup opens a group entry for every student of the instructor's
// institution that has no open session today. Individual failures are logged.
func (s *AttendanceService) checkInGroup(ctx context.Context, instructor *models.User, operatorID string, now time.Time) int {
	students, err := s.users.ListStudentsByInstitution(ctx, *instructor.InstitutionID)
	if err != nil {
		s.logger.Error("list institution students", zap.String("institution_id", *instructor.InstitutionID), zap.Error(err))
		return 0
	}

	stamp := analytics.FormatInstant(now)
	marked := 0
	for _, student := range students {
		if student.ID == instructor.ID {
			continue
		}
		entry := newArrival(models.EntryTypeGroup, stamp)
		entry.GroupInstructorID = ref(instructor.ID)

		_, err := s.mutate(ctx, "group_check_in", student.ID, now, operatorID, func(rec *models.AttendanceRecord) (models.TimeLogs, error) {
			var logs models.TimeLogs
			if rec != nil {
				logs = rec.TimeLogs
			}
			if last, ok := logs.Last(); ok && last.IsOpen() {
				return nil, errSkipWrite
			}
			return logs.WithAppended(entry), nil
		})
		switch {
		case errors.Is(err, errSkipWrite):
		case err != nil:
			logger.WithContext(ctx, s.logger).Warn("group check-in failed", zap.String("student_id", student.ID), zap.Error(err))
		default:
			marked++
		}
	}
	return marked
}

// VerifyFace compares the captured image against the user's reference image and
// marks today's open session as face verified.
func (s *AttendanceService) VerifyFace(ctx context.Context, req dto.FaceVerificationRequest) (*dto.FaceVerificationResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid face verification payload")
	}
	user, err := s.loadUser(ctx, req.UserID)
	if err != nil {
		s.activity.Log(ctx, eventlog.TypeFaceVerification, req.UserID, "Unknown", false, "user not found")
		return nil, err
	}
	if user.ImagePath == nil || strings.TrimSpace(*user.ImagePath) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "user has no reference image")
	}
	if s.faces == nil {
		return nil, appErrors.Clone(appErrors.ErrFaceService, "face verification is not configured")
	}

	now := s.now()
	current, err := s.today(ctx, user.ID, now)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, appErrors.Clone(appErrors.ErrNoActiveEntry, "no active entry found for today")
	}
	if last, ok := current.TimeLogs.Last(); !ok || !last.IsOpen() {
		return nil, appErrors.Clone(appErrors.ErrNoActiveEntry, "no active entry found for today")
	}

	result, err := s.faces.Compare(ctx, *user.ImagePath, req.ImageURL)
	if err != nil {
		s.activity.Log(ctx, eventlog.TypeFaceVerification, user.ID, user.Name, false, err.Error())
		if errors.Is(err, faceclient.ErrUnavailable) {
			return nil, appErrors.Wrap(err, appErrors.ErrFaceService.Code, appErrors.ErrFaceService.Status, appErrors.ErrFaceService.Message)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrFaceService.Code, appErrors.ErrFaceService.Status, "face comparison failed")
	}
	s.activity.Log(ctx, eventlog.TypeFaceVerification, user.ID, user.Name, result.Match, fmt.Sprintf("similarity %.3f", result.Similarity))
	if !result.Match {
		return nil, appErrors.Clone(appErrors.ErrFaceMismatch, "face does not match the registered image")
	}

	stamp := analytics.FormatInstant(now)
	_, err = s.mutate(ctx, "face_verification", user.ID, now, "", func(rec *models.AttendanceRecord) (models.TimeLogs, error) {
		if rec == nil {
			return nil, appErrors.Clone(appErrors.ErrNoActiveEntry, "no active entry found for today")
		}
		if last, ok := rec.TimeLogs.Last(); !ok || !last.IsOpen() {
			return nil, appErrors.Clone(appErrors.ErrNoActiveEntry, "no active entry found for today")
		}
		return rec.TimeLogs.WithLastReplaced(func(e models.LogEntry) models.LogEntry {
			e.FaceVerified = true
			e.FaceVerificationTime = ref(stamp)
			return e
		}), nil
	})
	if err != nil {
		return nil, err
	}

	resp := &dto.FaceVerificationResponse{
		UserID:           user.ID,
		Match:            true,
		Similarity:       result.Similarity,
		VerificationTime: stamp,
	}
	if user.IsInstructor && user.InstitutionID != nil && *user.InstitutionID != "" {
		resp.GroupEntriesMarked = s.verifyGroup(ctx, user, now)
	}
	s.invalidateReports(ctx)
	return resp, nil
}

// verifyGroup stamps the instructor on every open group entry they lead today.
func (s *AttendanceService) verifyGroup(ctx context.Context, instructor *models.User, now time.Time) int {
	records, err := s.store.ListByInstitutionDate(ctx, *instructor.InstitutionID, now)
	if err != nil {
		s.logger.Error("list institution records", zap.String("institution_id", *instructor.InstitutionID), zap.Error(err))
		return 0
	}

	marked := 0
	for _, candidate := range records {
		if !ledByInstructor(candidate.TimeLogs, instructor.ID) {
			continue
		}
		_, err := s.mutate(ctx, "group_verification", candidate.UserID, now, "", func(rec *models.AttendanceRecord) (models.TimeLogs, error) {
			if rec == nil || !ledByInstructor(rec.TimeLogs, instructor.ID) {
				return nil, errSkipWrite
			}
			return rec.TimeLogs.WithLastReplaced(func(e models.LogEntry) models.LogEntry {
				e.VerifiedByInstructor = ref(instructor.ID)
				return e
			}), nil
		})
		switch {
		case errors.Is(err, errSkipWrite):
		case err != nil:
			logger.WithContext(ctx, s.logger).Warn("group verification failed", zap.String("student_id", candidate.UserID), zap.Error(err))
		default:
			marked++
		}
	}
	return marked
}

// Depart closes today's open session.
func (s *AttendanceService) Depart(ctx context.Context, req dto.DepartureRequest, operatorID string) (*dto.DepartureResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid departure payload")
	}
	if err := s.loadOperator(ctx, operatorID); err != nil {
		return nil, err
	}
	user, err := s.loadUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	stamp := analytics.FormatInstant(now)
	var closed models.LogEntry
	_, err = s.mutate(ctx, "departure", user.ID, now, operatorID, func(rec *models.AttendanceRecord) (models.TimeLogs, error) {
		if rec == nil {
			return nil, appErrors.Clone(appErrors.ErrNoActiveEntry, "no active entry found for today")
		}
		last, ok := rec.TimeLogs.Last()
		if !ok || !last.IsOpen() {
			return nil, appErrors.Clone(appErrors.ErrNoActiveEntry, "latest entry already has a departure time")
		}
		return rec.TimeLogs.WithLastReplaced(func(e models.LogEntry) models.LogEntry {
			e.Departure = ref(stamp)
			if arrival, err := analytics.ParseInstant(e.Arrival); err == nil {
				e.Duration = ref(now.Sub(arrival).String())
			}
			if operatorID != "" {
				e.DepartureVerifiedBy = ref(operatorID)
			}
			e.DepartureVerificationTime = ref(stamp)
			closed = e
			return e
		}), nil
	})
	if err != nil {
		s.activity.Log(ctx, eventlog.TypeDeparture, user.ID, user.Name, false, err.Error())
		return nil, err
	}

	resp := &dto.DepartureResponse{UserID: user.ID, Arrival: closed.Arrival, Departure: stamp}
	if closed.Duration != nil {
		resp.Duration = *closed.Duration
	}
	s.activity.Log(ctx, eventlog.TypeDeparture, user.ID, user.Name, true, "Departure recorded")
	if user.Email != nil {
		s.notifications.QueueVisitSummary(*user.Email, mailer.VisitSummary{
			UserName:  user.Name,
			Arrival:   resp.Arrival,
			Departure: resp.Departure,
			Duration:  resp.Duration,
		})
	}
	s.invalidateReports(ctx)
	return resp, nil
}

// UserHistory returns every ledger record of a user, newest first.
func (s *AttendanceService) UserHistory(ctx context.Context, userID string) (*models.UserAttendanceHistory, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	records, err := s.store.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance history")
	}
	if records == nil {
		records = []models.AttendanceRecord{}
	}

	summary := models.UserAttendanceSummary{TotalDays: len(records)}
	for _, rec := range records {
		for _, entry := range rec.TimeLogs {
			summary.TotalEntries++
			switch entry.EntryType {
			case models.EntryTypeBypass:
				summary.BypassEntries++
			case models.EntryTypeNormal, "":
				summary.NormalEntries++
			}
			if entry.FaceVerified {
				summary.FaceVerifiedEntries++
			}
		}
	}
	return &models.UserAttendanceHistory{User: user.Info(), Records: records, Summary: summary}, nil
}

var errSkipWrite = errors.New("ledger write skipped")

func (s *AttendanceService) invalidateReports(ctx context.Context) {
	if s.reports != nil {
		s.reports.Invalidate(ctx)
	}
}

// mutate applies build to today's record of userID and persists the result with
// the optimistic updated_at guard, re-reading the row after a lost race. build
// receives nil when no record exists yet and must not modify rec.TimeLogs.
func (s *AttendanceService) mutate(ctx context.Context, operation, userID string, now time.Time, operatorID string, build func(rec *models.AttendanceRecord) (models.TimeLogs, error)) (*models.AttendanceRecord, error) {
	for attempt := 0; attempt < maxLedgerAttempts; attempt++ {
		rec, err := s.today(ctx, userID, now)
		if err != nil {
			return nil, err
		}
		logs, err := build(rec)
		if err != nil {
			return nil, err
		}

		if rec == nil {
			rec = &models.AttendanceRecord{UserID: userID, EntryDate: now, TimeLogs: logs}
			if operatorID != "" {
				rec.VerifyingAppUserID = ref(operatorID)
			}
			err = s.store.Create(ctx, rec)
		} else {
			if operatorID != "" {
				rec.VerifyingAppUserID = ref(operatorID)
			}
			err = s.store.ReplaceTimeLogs(ctx, rec, logs)
		}

		switch {
		case err == nil:
			s.metrics.RecordLedgerWrite(operation, "success")
			return rec, nil
		case errors.Is(err, repository.ErrStaleRecord):
			s.metrics.RecordLedgerWrite(operation, "conflict")
			logger.WithContext(ctx, s.logger).Debug("ledger write lost race", zap.String("operation", operation), zap.String("user_id", userID), zap.Int("attempt", attempt+1))
		default:
			s.metrics.RecordLedgerWrite(operation, "error")
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist attendance record")
		}
	}
	logger.WithContext(ctx, s.logger).Warn("ledger write conflict", zap.String("operation", operation), zap.String("user_id", userID))
	return nil, appErrors.Clone(appErrors.ErrLedgerConflict, "attendance record was modified concurrently, please retry")
}

func (s *AttendanceService) today(ctx context.Context, userID string, now time.Time) (*models.AttendanceRecord, error) {
	rec, err := s.store.GetByUserDate(ctx, userID, now)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance record")
	}
	return rec, nil
}

func (s *AttendanceService) loadUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

func (s *AttendanceService) loadOperator(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "operator is required")
	}
	if _, err := s.users.FindAppUser(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "app user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load app user")
	}
	return nil
}

func newArrival(entryType models.EntryType, stamp string) models.LogEntry {
	return models.LogEntry{
		Arrival:            stamp,
		EntryType:          entryType,
		QRVerified:         true,
		QRVerificationTime: ref(stamp),
	}
}

func ledByInstructor(logs models.TimeLogs, instructorID string) bool {
	last, ok := logs.Last()
	if !ok || !last.IsOpen() || last.EntryType != models.EntryTypeGroup {
		return false
	}
	return last.GroupInstructorID != nil && *last.GroupInstructorID == instructorID && last.VerifiedByInstructor == nil
}

func ref(s string) *string {
	return &s
}
