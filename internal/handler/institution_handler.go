package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/visitor-attendance-api/internal/dto"
	"github.com/noah-isme/visitor-attendance-api/internal/models"
	appErrors "github.com/noah-isme/visitor-attendance-api/pkg/errors"
	"github.com/noah-isme/visitor-attendance-api/pkg/response"
)

type institutionDirectory interface {
	List(ctx context.Context) ([]models.Institution, error)
	Create(ctx context.Context, req dto.CreateInstitutionRequest) (*models.Institution, error)
}

// InstitutionHandler exposes institution endpoints.
type InstitutionHandler struct {
	service institutionDirectory
}

// NewInstitutionHandler creates an InstitutionHandler.
func NewInstitutionHandler(svc institutionDirectory) *InstitutionHandler {
	return &InstitutionHandler{service: svc}
}

// List godoc
// @Summary List institutions
// @Tags Institutions
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /institutions [get]
func (h *InstitutionHandler) List(c *gin.Context) {
	institutions, err := h.service.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, institutions, nil)
}

// Create godoc
// @Summary Create institution
// @Tags Institutions
// @Accept json
// @Produce json
// @Param payload body dto.CreateInstitutionRequest true "Institution"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /institutions [post]
func (h *InstitutionHandler) Create(c *gin.Context) {
	var req dto.CreateInstitutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	inst, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, inst)
}
