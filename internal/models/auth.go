package models

import "github.com/golang-jwt/jwt/v5"

// UserInfo describes a visitor in responses.
type UserInfo struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Email         string  `json:"email,omitempty"`
	IsStudent     bool    `json:"is_student"`
	IsInstructor  bool    `json:"is_instructor"`
	InstitutionID *string `json:"institution_id,omitempty"`
}

// JWTClaims represents the payload of operator access tokens.
type JWTClaims struct {
	UserID string   `json:"user_id"`
	Role   UserRole `json:"role"`
	Email  string   `json:"email"`
	Name   string   `json:"name"`
	jwt.RegisteredClaims
}
