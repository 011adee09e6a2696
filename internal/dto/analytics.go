package dto

// AnalyticsQuery captures the analytics query string.
type AnalyticsQuery struct {
	StartDate     string `form:"start_date"`
	EndDate       string `form:"end_date"`
	InstitutionID string `form:"institution_id"`
	UserID        string `form:"user_id"`
}
