package dto

import (
	"time"

	"github.com/noah-isme/visitor-attendance-api/internal/models"
)

// ReportRequest is the body of POST /reports/generate. Type defaults to
// analytics and View to summary.
type ReportRequest struct {
	Type          models.ReportType   `json:"type"`
	View          string              `json:"view" validate:"omitempty,max=32"`
	Format        models.ReportFormat `json:"format" validate:"required,oneof=csv pdf"`
	StartDate     string              `json:"start_date,omitempty" validate:"omitempty,max=40"`
	EndDate       string              `json:"end_date,omitempty" validate:"omitempty,max=40"`
	InstitutionID string              `json:"institution_id,omitempty" validate:"omitempty,max=64"`
}

// ReportJobResponse acknowledges a queued export.
type ReportJobResponse struct {
	ID        string              `json:"id"`
	Status    models.ReportStatus `json:"status"`
	Progress  int                 `json:"progress"`
	StatusURL string              `json:"status_url"`
}

// ReportStatusResponse is the polling view of an export job.
type ReportStatusResponse struct {
	ID         string              `json:"id"`
	Status     models.ReportStatus `json:"status"`
	Progress   int                 `json:"progress"`
	View       string              `json:"view"`
	Format     models.ReportFormat `json:"format"`
	ResultURL  *string             `json:"result_url,omitempty"`
	Error      *string             `json:"error,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	FinishedAt *time.Time          `json:"finished_at,omitempty"`
}
