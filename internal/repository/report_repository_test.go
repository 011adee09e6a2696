package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/visitor-attendance-api/internal/models"
)

var reportJobRowColumns = []string{"id", "type", "params", "status", "progress", "result_url", "created_by", "created_at", "finished_at", "error_message"}

func newReportRepoMock(t *testing.T) (*ReportRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewReportRepository(sqlx.NewDb(db, "postgres")), mock
}

func TestReportRepositoryCreateAssignsDefaults(t *testing.T) {
	repo, mock := newReportRepoMock(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO report_jobs")).
		WithArgs(sqlmock.AnyArg(), "analytics", sqlmock.AnyArg(), "QUEUED", 0, nil, "operator-7", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	job := &models.ReportJob{
		Type:      models.ReportTypeAnalytics,
		Params:    models.ReportJobParams{View: "overview", Format: models.ReportFormatCSV, StartDate: "2024-03-01"},
		CreatedBy: "operator-7",
	}
	require.NoError(t, repo.Create(context.Background(), job))
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, models.ReportStatusQueued, job.Status)
	assert.False(t, job.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryGetByID(t *testing.T) {
	repo, mock := newReportRepoMock(t)

	rows := sqlmock.NewRows(reportJobRowColumns).
		AddRow("job-1", "analytics", `{"view":"trends","format":"pdf","start_date":"2024-02-01","extras":{}}`, "PROCESSING", 40, nil, "operator-7", time.Now(), nil, nil)
	mock.ExpectQuery(regexp.QuoteMeta("FROM report_jobs WHERE id = $1")).
		WithArgs("job-1").
		WillReturnRows(rows)

	job, err := repo.GetByID(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusProcessing, job.Status)
	assert.Equal(t, "trends", job.Params.View)
	assert.Equal(t, models.ReportFormatPDF, job.Params.Format)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryGetByIDNotFound(t *testing.T) {
	repo, mock := newReportRepoMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM report_jobs WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(reportJobRowColumns))

	_, err := repo.GetByID(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestReportRepositoryUpdate(t *testing.T) {
	repo, mock := newReportRepoMock(t)

	now := time.Now().UTC()
	status := models.ReportStatusFailed
	msg := "face service unavailable"
	mock.ExpectExec(regexp.QuoteMeta("UPDATE report_jobs SET status = $1, error_message = $2, finished_at = $3 WHERE id = $4")).
		WithArgs(status, msg, now, "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), "job-1", UpdateReportJobParams{
		Status:       &status,
		ErrorMessage: &msg,
		FinishedAt:   &now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryUpdateEmptyIsNoop(t *testing.T) {
	repo, mock := newReportRepoMock(t)
	require.NoError(t, repo.Update(context.Background(), "job-1", UpdateReportJobParams{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryListRecoverable(t *testing.T) {
	repo, mock := newReportRepoMock(t)

	staleBefore := time.Now().Add(-time.Hour).UTC()
	rows := sqlmock.NewRows(reportJobRowColumns).
		AddRow("job-1", "analytics", `{"view":"summary","format":"csv","extras":{}}`, "QUEUED", 0, nil, "operator-7", time.Now(), nil, nil).
		AddRow("job-2", "analytics", `{"view":"detailed","format":"pdf","extras":{}}`, "PROCESSING", 60, nil, "operator-7", time.Now().Add(-2*time.Hour), nil, nil)
	mock.ExpectQuery(`WHERE status = 'QUEUED' OR \(status = 'PROCESSING' AND created_at < \$1\) ORDER BY created_at ASC LIMIT \$2`).
		WithArgs(staleBefore, 50).
		WillReturnRows(rows)

	jobs, err := repo.ListRecoverable(context.Background(), staleBefore, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, models.ReportStatusProcessing, jobs[1].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryListExpired(t *testing.T) {
	repo, mock := newReportRepoMock(t)

	rows := sqlmock.NewRows(reportJobRowColumns).
		AddRow("job-1", "analytics", `{"view":"detailed","format":"csv","institution_id":"inst-1","extras":{}}`, "FINISHED", 100, "/api/v1/export/token", "operator-7", time.Now().Add(-48*time.Hour), time.Now().Add(-25*time.Hour), nil)
	mock.ExpectQuery(`WHERE status IN \('FINISHED', 'FAILED'\) AND finished_at IS NOT NULL AND finished_at < \$1`).
		WithArgs(sqlmock.AnyArg(), 100).
		WillReturnRows(rows)

	jobs, err := repo.ListExpired(context.Background(), time.Now(), 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "inst-1", jobs[0].Params.InstitutionID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportRepositoryDeleteByIDs(t *testing.T) {
	repo, mock := newReportRepoMock(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM report_jobs WHERE id IN ($1, $2)")).
		WithArgs("job-1", "job-2").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.DeleteByIDs(context.Background(), []string{"job-1", "job-2"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = repo.DeleteByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, mock.ExpectationsWereMet())
}
