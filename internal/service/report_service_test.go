package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/visitor-attendance-api/internal/dto"
	"github.com/noah-isme/visitor-attendance-api/internal/models"
	"github.com/noah-isme/visitor-attendance-api/internal/repository"
	appErrors "github.com/noah-isme/visitor-attendance-api/pkg/errors"
	"github.com/noah-isme/visitor-attendance-api/pkg/jobs"
)

type reportRepoStub struct {
	jobs map[string]*models.ReportJob
}

func newReportRepoStub() *reportRepoStub {
	return &reportRepoStub{jobs: map[string]*models.ReportJob{}}
}

func (r *reportRepoStub) Create(ctx context.Context, job *models.ReportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	r.jobs[job.ID] = job
	return nil
}

func (r *reportRepoStub) GetByID(ctx context.Context, id string) (*models.ReportJob, error) {
	job, ok := r.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return job, nil
}

func (r *reportRepoStub) Update(ctx context.Context, id string, params repository.UpdateReportJobParams) error {
	job, ok := r.jobs[id]
	if !ok {
		return errors.New("not found")
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.Progress != nil {
		job.Progress = *params.Progress
	}
	if params.ResultURL != nil {
		job.ResultURL = params.ResultURL
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	return nil
}

func (r *reportRepoStub) ListRecoverable(ctx context.Context, staleBefore time.Time, limit int) ([]models.ReportJob, error) {
	var out []models.ReportJob
	for _, job := range r.jobs {
		stale := job.Status == models.ReportStatusProcessing && job.CreatedAt.Before(staleBefore)
		if job.Status == models.ReportStatusQueued || stale {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (r *reportRepoStub) ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error) {
	var out []models.ReportJob
	for _, job := range r.jobs {
		done := job.Status == models.ReportStatusFinished || job.Status == models.ReportStatusFailed
		if done && job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			out = append(out, *job)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *reportRepoStub) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	var n int64
	for _, id := range ids {
		if _, ok := r.jobs[id]; ok {
			delete(r.jobs, id)
			n++
		}
	}
	return n, nil
}

type queueStub struct {
	jobs []jobs.Job
	err  error
}

func (q *queueStub) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type viewsStub []string

func (v viewsStub) Views() []string { return v }

func newReportServiceForTest(t *testing.T) (*ReportService, *reportRepoStub, *queueStub, *ExportService) {
	t.Helper()
	repo := newReportRepoStub()
	queue := &queueStub{}
	exportSvc, _ := newExportServiceForTest(t)
	service := NewReportService(repo, viewsStub{"summary", "trends"}, queue, exportSvc, zap.NewNop(), ReportServiceConfig{
		APIPrefix:       "/api/v1/",
		ResultTTL:       time.Hour,
		CleanupInterval: time.Hour,
		MaxRetries:      3,
	})
	return service, repo, queue, exportSvc
}

func TestReportServiceCreateJob(t *testing.T) {
	svc, repo, queue, _ := newReportServiceForTest(t)
	resp, err := svc.CreateJob(context.Background(), dto.ReportRequest{
		Format:        "CSV",
		StartDate:     "2024-03-01",
		InstitutionID: "inst-1",
	}, "admin")
	require.NoError(t, err)
	require.NotEmpty(t, resp.ID)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, models.ReportStatusQueued, resp.Status)
	assert.Equal(t, "/api/v1/reports/status/"+resp.ID, resp.StatusURL)

	stored := repo.jobs[resp.ID]
	require.NotNil(t, stored)
	assert.Equal(t, models.ReportTypeAnalytics, stored.Type)
	assert.Equal(t, "summary", stored.Params.View)
	assert.Equal(t, models.ReportFormatCSV, stored.Params.Format)
	assert.Equal(t, "inst-1", stored.Params.InstitutionID)
}

func TestReportServiceCreateJobValidation(t *testing.T) {
	svc, _, queue, _ := newReportServiceForTest(t)
	ctx := context.Background()

	cases := []dto.ReportRequest{
		{Format: "xlsx"},
		{Format: models.ReportFormatCSV, View: "weekly"},
		{Format: models.ReportFormatCSV, Type: "grades"},
		{Format: models.ReportFormatPDF, StartDate: "yesterday"},
	}
	for _, req := range cases {
		_, err := svc.CreateJob(ctx, req, "admin")
		require.Error(t, err)
		assert.Equal(t, http.StatusBadRequest, appErrors.FromError(err).Status)
	}
	assert.Empty(t, queue.jobs)
}

func TestReportServiceCreateJobEnqueueFailure(t *testing.T) {
	svc, repo, queue, _ := newReportServiceForTest(t)
	queue.err = errors.New("queue full")

	_, err := svc.CreateJob(context.Background(), dto.ReportRequest{Format: models.ReportFormatCSV}, "admin")
	require.Error(t, err)
	for _, job := range repo.jobs {
		assert.Equal(t, models.ReportStatusFailed, job.Status)
	}
}

func TestReportServiceCreateJobQueueFull(t *testing.T) {
	svc, _, queue, _ := newReportServiceForTest(t)
	queue.err = fmt.Errorf("reports: %w", jobs.ErrQueueFull)

	_, err := svc.CreateJob(context.Background(), dto.ReportRequest{Format: models.ReportFormatPDF}, "admin")
	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, appErrors.FromError(err).Status)
	assert.ErrorIs(t, err, jobs.ErrQueueFull)
}

func TestReportServiceGetStatus(t *testing.T) {
	svc, repo, _, _ := newReportServiceForTest(t)
	job := &models.ReportJob{
		ID:        "job-1",
		Type:      models.ReportTypeAnalytics,
		Params:    models.ReportJobParams{View: "summary", Format: models.ReportFormatCSV},
		Status:    models.ReportStatusFinished,
		Progress:  100,
		CreatedBy: "admin",
	}
	repo.jobs[job.ID] = job
	resp, err := svc.GetStatus(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.Status, resp.Status)
	assert.Equal(t, job.Progress, resp.Progress)

	_, err = svc.GetStatus(context.Background(), "missing")
	assert.Equal(t, http.StatusNotFound, appErrors.FromError(err).Status)
}

func TestReportServiceResolveDownload(t *testing.T) {
	svc, repo, _, exportSvc := newReportServiceForTest(t)
	job := &models.ReportJob{
		ID:        "job-download",
		Type:      models.ReportTypeAnalytics,
		Params:    models.ReportJobParams{View: "summary", Format: models.ReportFormatCSV},
		Status:    models.ReportStatusFinished,
		Progress:  100,
		CreatedBy: "admin",
	}
	repo.jobs[job.ID] = job
	result, err := exportSvc.Generate(context.Background(), job)
	require.NoError(t, err)
	job.ResultURL = &result.URL
	now := time.Now()
	job.FinishedAt = &now

	download, err := svc.ResolveDownload(context.Background(), result.Token)
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(result.RelativePath), download.Filename)
	require.NoError(t, download.File.Close())

	_, err = svc.ResolveDownload(context.Background(), "not-a-token")
	assert.Equal(t, http.StatusForbidden, appErrors.FromError(err).Status)
}

func TestReportServiceRecoverPendingJobs(t *testing.T) {
	svc, repo, queue, _ := newReportServiceForTest(t)
	now := time.Now()
	repo.jobs["queued"] = &models.ReportJob{ID: "queued", Type: models.ReportTypeAnalytics, Status: models.ReportStatusQueued, CreatedAt: now}
	repo.jobs["stale"] = &models.ReportJob{ID: "stale", Type: models.ReportTypeAnalytics, Status: models.ReportStatusProcessing, CreatedAt: now.Add(-2 * time.Hour)}
	repo.jobs["running"] = &models.ReportJob{ID: "running", Type: models.ReportTypeAnalytics, Status: models.ReportStatusProcessing, CreatedAt: now}
	repo.jobs["done"] = &models.ReportJob{ID: "done", Type: models.ReportTypeAnalytics, Status: models.ReportStatusFinished, CreatedAt: now.Add(-2 * time.Hour)}

	svc.RecoverPendingJobs(context.Background())

	ids := make([]string, 0, len(queue.jobs))
	for _, job := range queue.jobs {
		ids = append(ids, job.ID)
	}
	assert.ElementsMatch(t, []string{"queued", "stale"}, ids)
}

func TestReportServiceCleanupExpiredPurgesRowsAndFiles(t *testing.T) {
	svc, repo, _, exportSvc := newReportServiceForTest(t)
	old := time.Now().Add(-2 * time.Hour)
	job := &models.ReportJob{
		ID:         "job-old",
		Type:       models.ReportTypeAnalytics,
		Params:     models.ReportJobParams{View: "summary", Format: models.ReportFormatCSV},
		Status:     models.ReportStatusFinished,
		FinishedAt: &old,
	}
	result, err := exportSvc.Generate(context.Background(), job)
	require.NoError(t, err)
	job.ResultURL = &result.URL
	repo.jobs[job.ID] = job

	failedAt := time.Now().Add(-3 * time.Hour)
	repo.jobs["job-failed"] = &models.ReportJob{ID: "job-failed", Status: models.ReportStatusFailed, FinishedAt: &failedAt}
	fresh := time.Now()
	repo.jobs["job-fresh"] = &models.ReportJob{ID: "job-fresh", Status: models.ReportStatusFinished, FinishedAt: &fresh}

	svc.cleanupExpired(context.Background())

	assert.NotContains(t, repo.jobs, "job-old")
	assert.NotContains(t, repo.jobs, "job-failed")
	assert.Contains(t, repo.jobs, "job-fresh")
	_, err = exportSvc.Open(result.RelativePath)
	assert.Error(t, err)
}

type exportStub struct {
	result *ExportResult
	err    error
}

func (e exportStub) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.result, nil
}

func TestReportWorkerHandleSuccess(t *testing.T) {
	repo := &reportRepoStub{
		jobs: map[string]*models.ReportJob{
			"job-1": {
				ID:        "job-1",
				Type:      models.ReportTypeAnalytics,
				Params:    models.ReportJobParams{View: "summary", Format: models.ReportFormatCSV},
				Status:    models.ReportStatusQueued,
				CreatedBy: "admin",
			},
		},
	}
	exporter := exportStub{result: &ExportResult{URL: "/api/v1/export/token"}}
	worker := NewReportWorker(repo, exporter, 3, zap.NewNop())

	err := worker.Handle(context.Background(), jobs.Job{ID: "job-1"})
	require.NoError(t, err)
	require.Equal(t, models.ReportStatusFinished, repo.jobs["job-1"].Status)
	require.Equal(t, 100, repo.jobs["job-1"].Progress)
}

func TestReportWorkerHandleFailureRetries(t *testing.T) {
	repo := &reportRepoStub{
		jobs: map[string]*models.ReportJob{
			"job-1": {
				ID:        "job-1",
				Type:      models.ReportTypeAnalytics,
				Params:    models.ReportJobParams{View: "summary", Format: models.ReportFormatCSV},
				Status:    models.ReportStatusQueued,
				CreatedBy: "admin",
			},
		},
	}
	exporter := exportStub{err: errors.New("boom")}
	worker := NewReportWorker(repo, exporter, 2, zap.NewNop())

	err := worker.Handle(context.Background(), jobs.Job{ID: "job-1", Attempt: 2})
	require.Error(t, err)
	require.Equal(t, models.ReportStatusFailed, repo.jobs["job-1"].Status)
}

func TestReportWorkerHandleRequeuesTransientFailure(t *testing.T) {
	repo := newReportRepoStub()
	repo.jobs["job-1"] = &models.ReportJob{ID: "job-1", Type: models.ReportTypeAnalytics, Status: models.ReportStatusQueued}
	worker := NewReportWorker(repo, exportStub{err: appErrors.ErrUpstream}, 3, zap.NewNop())

	err := worker.Handle(context.Background(), jobs.Job{ID: "job-1"})
	require.Error(t, err)
	assert.Equal(t, models.ReportStatusQueued, repo.jobs["job-1"].Status)
	assert.Nil(t, repo.jobs["job-1"].FinishedAt)
}

func TestReportWorkerHandleFailsFastOnClientError(t *testing.T) {
	repo := newReportRepoStub()
	repo.jobs["job-1"] = &models.ReportJob{ID: "job-1", Type: models.ReportTypeAnalytics, Status: models.ReportStatusQueued}
	worker := NewReportWorker(repo, exportStub{err: appErrors.Clone(appErrors.ErrValidation, "unknown view")}, 3, zap.NewNop())

	err := worker.Handle(context.Background(), jobs.Job{ID: "job-1"})
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusFailed, repo.jobs["job-1"].Status)
	require.NotNil(t, repo.jobs["job-1"].ErrorMessage)
	assert.Contains(t, *repo.jobs["job-1"].ErrorMessage, "unknown view")
}

func TestReportWorkerSkipsSettledJob(t *testing.T) {
	repo := newReportRepoStub()
	repo.jobs["job-1"] = &models.ReportJob{ID: "job-1", Type: models.ReportTypeAnalytics, Status: models.ReportStatusFinished, Progress: 100}
	worker := NewReportWorker(repo, exportStub{err: errors.New("must not run")}, 3, zap.NewNop())

	require.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: "job-1"}))
	assert.Equal(t, models.ReportStatusFinished, repo.jobs["job-1"].Status)
}
