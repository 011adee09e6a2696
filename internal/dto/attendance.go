package dto

// CheckInRequest records a QR scan at the gate.
type CheckInRequest struct {
	UserID       string `json:"user_id" validate:"required"`
	Bypass       bool   `json:"bypass"`
	BypassReason string `json:"bypass_reason" validate:"max=500"`
	GroupEntry   bool   `json:"group_entry"`
}

// FaceVerificationRequest carries the image captured at the gate.
type FaceVerificationRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	ImageURL string `json:"image_url" validate:"required,url"`
}

// DepartureRequest closes the visitor's open session.
type DepartureRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

// CheckInResponse summarises a check-in.
type CheckInResponse struct {
	RecordID      string `json:"record_id"`
	UserID        string `json:"user_id"`
	EntryType     string `json:"entry_type"`
	Arrival       string `json:"arrival"`
	GroupStudents int    `json:"group_students,omitempty"`
}

// FaceVerificationResponse reports the comparison outcome.
type FaceVerificationResponse struct {
	UserID             string  `json:"user_id"`
	Match              bool    `json:"match"`
	Similarity         float64 `json:"similarity"`
	VerificationTime   string  `json:"verification_time"`
	GroupEntriesMarked int     `json:"group_entries_marked,omitempty"`
}

// DepartureResponse summarises a closed session.
type DepartureResponse struct {
	UserID    string `json:"user_id"`
	Arrival   string `json:"arrival"`
	Departure string `json:"departure"`
	Duration  string `json:"duration"`
}

// UserListQuery captures the visitor list query string.
type UserListQuery struct {
	InstitutionID string `form:"institution_id"`
	Role          string `form:"role" validate:"omitempty,oneof=student instructor visitor"`
	Enrolled      *bool  `form:"enrolled"`
	Search        string `form:"search" validate:"max=100"`
	Page          int    `form:"page" validate:"gte=0"`
	PageSize      int    `form:"page_size" validate:"gte=0,lte=100"`
	SortBy        string `form:"sort_by" validate:"omitempty,oneof=id name email created_at"`
	SortOrder     string `form:"sort_order" validate:"omitempty,oneof=asc desc ASC DESC"`
}

// CreateUserRequest registers a visitor. Students and instructors must name
// an existing institution. ImageURL is the reference image used for face
// verification.
type CreateUserRequest struct {
	Name          string `json:"name" validate:"required,max=120"`
	Email         string `json:"email" validate:"required,email,max=254"`
	UserType      string `json:"user_type" validate:"required,oneof=student instructor visitor"`
	InstitutionID string `json:"institution_id" validate:"omitempty,max=64"`
	ImageURL      string `json:"image_url" validate:"omitempty,url,max=512"`
}

// EmailAvailability answers the registration email check.
type EmailAvailability struct {
	Email  string `json:"email"`
	Exists bool   `json:"exists"`
}

// CreateInstitutionRequest adds an institution.
type CreateInstitutionRequest struct {
	Name string `json:"name" validate:"required,max=120"`
}
