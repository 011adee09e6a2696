package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/visitor-attendance-api/internal/middleware"
	"github.com/noah-isme/visitor-attendance-api/internal/models"
	appErrors "github.com/noah-isme/visitor-attendance-api/pkg/errors"
	"github.com/noah-isme/visitor-attendance-api/pkg/response"
)

// requireOperator returns the authenticated operator, writing a 401 when the
// request carries no claims.
func requireOperator(c *gin.Context) (*models.JWTClaims, bool) {
	claims, ok := middleware.Claims(c)
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "operator session required"))
		return nil, false
	}
	return claims, true
}
