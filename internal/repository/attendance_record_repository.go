package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/visitor-attendance-api/internal/models"
)

// ErrStaleRecord signals that a guarded ledger write lost a concurrent race.
var ErrStaleRecord = errors.New("attendance record modified concurrently")

const attendanceRecordColumns = `er.id, er.user_id, er.entry_date, er.time_logs, er.face_image_path,
er.verifying_app_user_id, u.is_instructor, er.created_at, er.updated_at`

// AttendanceRecordRepository is the record source and ledger store for entry_records.
type AttendanceRecordRepository struct {
	db *sqlx.DB
}

// NewAttendanceRecordRepository constructs the repository.
func NewAttendanceRecordRepository(db *sqlx.DB) *AttendanceRecordRepository {
	return &AttendanceRecordRepository{db: db}
}

// ListForWindow returns every record whose entry_date falls inside the filter window.
func (r *AttendanceRecordRepository) ListForWindow(ctx context.Context, filter models.AttendanceRecordFilter) ([]models.AttendanceRecord, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	if !filter.DateFrom.IsZero() {
		where = append(where, fmt.Sprintf("er.entry_date >= $%d", len(args)+1))
		args = append(args, dateOnly(filter.DateFrom))
	}
	if !filter.DateTo.IsZero() {
		where = append(where, fmt.Sprintf("er.entry_date <= $%d", len(args)+1))
		args = append(args, dateOnly(filter.DateTo))
	}
	if filter.InstitutionID != "" {
		where = append(where, fmt.Sprintf("u.institution_id = $%d", len(args)+1))
		args = append(args, filter.InstitutionID)
	}
	if filter.UserID != "" {
		where = append(where, fmt.Sprintf("er.user_id = $%d", len(args)+1))
		args = append(args, filter.UserID)
	}

	query := fmt.Sprintf(`SELECT %s
FROM entry_records er
JOIN users u ON u.id = er.user_id
WHERE %s
ORDER BY er.entry_date ASC, er.user_id ASC, er.id ASC`, attendanceRecordColumns, strings.Join(where, " AND "))

	var rows []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list entry records: %w", err)
	}
	return rows, nil
}

// ListByUser returns all records of a user, newest first.
func (r *AttendanceRecordRepository) ListByUser(ctx context.Context, userID string) ([]models.AttendanceRecord, error) {
	query := fmt.Sprintf(`SELECT %s
FROM entry_records er
JOIN users u ON u.id = er.user_id
WHERE er.user_id = $1
ORDER BY er.entry_date DESC`, attendanceRecordColumns)
	var rows []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("list user entry records: %w", err)
	}
	return rows, nil
}

// GetByUserDate returns the record of a user for a calendar day.
func (r *AttendanceRecordRepository) GetByUserDate(ctx context.Context, userID string, date time.Time) (*models.AttendanceRecord, error) {
	query := fmt.Sprintf(`SELECT %s
FROM entry_records er
JOIN users u ON u.id = er.user_id
WHERE er.user_id = $1 AND er.entry_date = $2
LIMIT 1`, attendanceRecordColumns)
	var rec models.AttendanceRecord
	if err := r.db.GetContext(ctx, &rec, query, userID, dateOnly(date)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("get entry record: %w", err)
	}
	return &rec, nil
}

// ListByInstitutionDate returns the records of an institution's students for a day.
func (r *AttendanceRecordRepository) ListByInstitutionDate(ctx context.Context, institutionID string, date time.Time) ([]models.AttendanceRecord, error) {
	query := fmt.Sprintf(`SELECT %s
FROM entry_records er
JOIN users u ON u.id = er.user_id
WHERE u.institution_id = $1 AND u.is_student = TRUE AND er.entry_date = $2
ORDER BY er.user_id ASC`, attendanceRecordColumns)
	var rows []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &rows, query, institutionID, dateOnly(date)); err != nil {
		return nil, fmt.Errorf("list institution entry records: %w", err)
	}
	return rows, nil
}

// Create inserts a new day record. A concurrent insert for the same user and day
// is reported as ErrStaleRecord so the caller can re-fetch and retry.
func (r *AttendanceRecordRepository) Create(ctx context.Context, rec *models.AttendanceRecord) error {
	now := time.Now().UTC()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.EntryDate = dateOnly(rec.EntryDate)
	rec.CreatedAt = now
	rec.UpdatedAt = now

	query := `INSERT INTO entry_records (id, user_id, entry_date, time_logs, face_image_path, verifying_app_user_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (user_id, entry_date) DO NOTHING`
	res, err := r.db.ExecContext(ctx, query, rec.ID, rec.UserID, rec.EntryDate, rec.TimeLogs, rec.FaceImagePath, rec.VerifyingAppUserID, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create entry record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create entry record: %w", err)
	}
	if affected == 0 {
		return ErrStaleRecord
	}
	return nil
}

// ReplaceTimeLogs persists a whole new log sequence if the row is unchanged since
// it was read. The record's UpdatedAt is advanced on success.
func (r *AttendanceRecordRepository) ReplaceTimeLogs(ctx context.Context, rec *models.AttendanceRecord, logs models.TimeLogs) error {
	now := time.Now().UTC()
	query := `UPDATE entry_records
SET time_logs = $1, verifying_app_user_id = COALESCE($2, verifying_app_user_id), updated_at = $3
WHERE id = $4 AND updated_at = $5`
	res, err := r.db.ExecContext(ctx, query, logs, rec.VerifyingAppUserID, now, rec.ID, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update entry record logs: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update entry record logs: %w", err)
	}
	if affected == 0 {
		return ErrStaleRecord
	}
	rec.TimeLogs = logs
	rec.UpdatedAt = now
	return nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
