package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/visitor-attendance-api/internal/dto"
	"github.com/noah-isme/visitor-attendance-api/internal/models"
	"github.com/noah-isme/visitor-attendance-api/internal/repository"
	appErrors "github.com/noah-isme/visitor-attendance-api/pkg/errors"
	"github.com/noah-isme/visitor-attendance-api/pkg/eventlog"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	EmailExists(ctx context.Context, email string) (bool, error)
}

type institutionLookup interface {
	FindByID(ctx context.Context, id string) (*models.Institution, error)
}

// UserService serves the visitor directory and registration.
type UserService struct {
	repo         userRepository
	institutions institutionLookup
	activity     *ActivityService
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, institutions institutionLookup, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, institutions: institutions, validator: validate, logger: logger}
}

// WithActivity records registrations on the activity log.
func (s *UserService) WithActivity(activity *ActivityService) *UserService {
	s.activity = activity
	return s
}

// List returns one page of the visitor directory. Role "visitor" selects
// people who are neither students nor instructors.
func (s *UserService) List(ctx context.Context, query dto.UserListQuery) ([]models.User, *models.Pagination, error) {
	query.Role = strings.ToLower(strings.TrimSpace(query.Role))
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user query")
	}

	filter := models.UserFilter{
		InstitutionID: strings.TrimSpace(query.InstitutionID),
		Enrolled:      query.Enrolled,
		Search:        strings.TrimSpace(query.Search),
		Page:          query.Page,
		PageSize:      query.PageSize,
		SortBy:        query.SortBy,
		SortOrder:     query.SortOrder,
	}.Normalize()
	yes, no := true, false
	switch query.Role {
	case "student":
		filter.IsStudent = &yes
	case "instructor":
		filter.IsInstructor = &yes
	case "visitor":
		filter.IsStudent, filter.IsInstructor = &no, &no
	}

	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to list users")
	}
	if users == nil {
		users = []models.User{}
	}
	return users, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns a visitor by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to load user")
	}
	return user, nil
}

// Create registers a visitor. Emails are stored lower-cased and must be
// unused; students and instructors must belong to an existing institution.
func (s *UserService) Create(ctx context.Context, req dto.CreateUserRequest) (*models.User, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.UserType = strings.ToLower(strings.TrimSpace(req.UserType))
	req.InstitutionID = strings.TrimSpace(req.InstitutionID)
	req.ImageURL = strings.TrimSpace(req.ImageURL)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}

	user := &models.User{
		Name:         req.Name,
		Email:        &req.Email,
		IsStudent:    req.UserType == "student",
		IsInstructor: req.UserType == "instructor",
	}
	if req.ImageURL != "" {
		user.ImagePath = &req.ImageURL
	}
	if user.IsStudent || user.IsInstructor {
		if req.InstitutionID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "institution_id is required for students and instructors")
		}
		if _, err := s.institutions.FindByID(ctx, req.InstitutionID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrValidation, "institution "+req.InstitutionID+" does not exist")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to load institution")
		}
		user.InstitutionID = &req.InstitutionID
	}

	exists, err := s.repo.EmailExists(ctx, req.Email)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to check email")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a user with this email already exists")
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "a user with this email already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	s.logger.Info("visitor registered", zap.String("user_id", user.ID), zap.String("user_type", req.UserType))
	s.activity.Log(ctx, eventlog.TypeUserCreated, user.ID, user.Name, true, "Registered as "+req.UserType)
	return user, nil
}

// EmailExists reports whether email is already registered.
func (s *UserService) EmailExists(ctx context.Context, email string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := s.validator.Var(email, "required,email,max=254"); err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid email")
	}
	exists, err := s.repo.EmailExists(ctx, email)
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to check email")
	}
	return exists, nil
}
