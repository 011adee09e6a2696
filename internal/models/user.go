package models

import (
	"strings"
	"time"
)

// UserRole represents the roles carried by operator access tokens.
type UserRole string

const (
	RoleAdmin    UserRole = "ADMIN"
	RoleOperator UserRole = "OPERATOR"
)

// User is a registered visitor tracked by the attendance ledger.
type User struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Email         *string   `db:"email" json:"email,omitempty"`
	ImagePath     *string   `db:"image_path" json:"image_path,omitempty"`
	IsStudent     bool      `db:"is_student" json:"is_student"`
	IsInstructor  bool      `db:"is_instructor" json:"is_instructor"`
	InstitutionID *string   `db:"institution_id" json:"institution_id,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Info projects the user into the compact response shape.
func (u User) Info() UserInfo {
	info := UserInfo{
		ID:            u.ID,
		Name:          u.Name,
		IsStudent:     u.IsStudent,
		IsInstructor:  u.IsInstructor,
		InstitutionID: u.InstitutionID,
	}
	if u.Email != nil {
		info.Email = *u.Email
	}
	return info
}

// AppUser is an operator account allowed to verify check-ins and departures.
type AppUser struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Institution groups students under their instructors.
type Institution struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Visitor directory paging limits.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// UserFilter selects visitors from the directory. Nil booleans do not filter.
type UserFilter struct {
	InstitutionID string
	IsStudent     *bool
	IsInstructor  *bool
	// Enrolled selects visitors with (true) or without (false) a reference
	// image for face verification.
	Enrolled  *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

var userSortColumns = map[string]struct{}{"id": {}, "name": {}, "email": {}, "created_at": {}}

// Normalize clamps paging and replaces unknown sort keys with created_at DESC.
func (f UserFilter) Normalize() UserFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize <= 0 || f.PageSize > MaxPageSize {
		f.PageSize = DefaultPageSize
	}
	if _, ok := userSortColumns[f.SortBy]; !ok {
		f.SortBy = "created_at"
	}
	switch strings.ToUpper(f.SortOrder) {
	case "ASC":
		f.SortOrder = "ASC"
	default:
		f.SortOrder = "DESC"
	}
	return f
}

// Offset is the row offset of the filter's page.
func (f UserFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
