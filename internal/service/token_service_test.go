package service

import (
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/visitor-attendance-api/internal/models"
	appErrors "github.com/noah-isme/visitor-attendance-api/pkg/errors"
)

func TestTokenServiceRoundTrip(t *testing.T) {
	svc := NewTokenService(TokenConfig{Secret: "secret", Issuer: "gatekeeper"})

	token, err := svc.IssueToken("op-1", models.RoleOperator, time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "op-1", claims.UserID)
	assert.Equal(t, models.RoleOperator, claims.Role)
}

func TestTokenServiceRejectsWrongIssuerAndExpiry(t *testing.T) {
	issuer := NewTokenService(TokenConfig{Secret: "secret", Issuer: "other"})
	token, err := issuer.IssueToken("op-1", models.RoleAdmin, time.Hour)
	require.NoError(t, err)

	svc := NewTokenService(TokenConfig{Secret: "secret", Issuer: "gatekeeper"})
	_, err = svc.ValidateToken(token)
	assert.Equal(t, http.StatusUnauthorized, appErrors.FromError(err).Status)

	expired, err := svc.IssueToken("op-1", models.RoleAdmin, -time.Minute)
	require.NoError(t, err)
	_, err = svc.ValidateToken(expired)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestTokenServiceRejectsUnknownRole(t *testing.T) {
	svc := NewTokenService(TokenConfig{Secret: "secret"})
	token, err := svc.IssueToken("v-1", models.UserRole("VISITOR"), time.Hour)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.Equal(t, http.StatusForbidden, appErrors.FromError(err).Status)
}
