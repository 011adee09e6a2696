package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/visitor-attendance-api/internal/dto"
	"github.com/noah-isme/visitor-attendance-api/internal/models"
	"github.com/noah-isme/visitor-attendance-api/internal/repository"
	appErrors "github.com/noah-isme/visitor-attendance-api/pkg/errors"
)

type institutionRepository interface {
	List(ctx context.Context) ([]models.Institution, error)
	Create(ctx context.Context, inst *models.Institution) error
}

// InstitutionService manages the institutions group check-ins fan out over.
type InstitutionService struct {
	repo      institutionRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewInstitutionService creates an InstitutionService.
func NewInstitutionService(repo institutionRepository, validate *validator.Validate, logger *zap.Logger) *InstitutionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &InstitutionService{repo: repo, validator: validate, logger: logger}
}

// List returns every institution.
func (s *InstitutionService) List(ctx context.Context) ([]models.Institution, error) {
	institutions, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to list institutions")
	}
	return institutions, nil
}

// Create adds an institution with a unique name.
func (s *InstitutionService) Create(ctx context.Context, req dto.CreateInstitutionRequest) (*models.Institution, error) {
	req.Name = strings.Join(strings.Fields(req.Name), " ")
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid institution payload")
	}
	inst := &models.Institution{Name: req.Name}
	if err := s.repo.Create(ctx, inst); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "institution already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create institution")
	}
	s.logger.Info("institution created", zap.String("institution_id", inst.ID), zap.String("name", inst.Name))
	return inst, nil
}
