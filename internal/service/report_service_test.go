package service

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/transfer-board-api/internal/dto"
	"github.com/noah-isme/transfer-board-api/internal/models"
	"github.com/noah-isme/transfer-board-api/internal/repository"
	appErrors "github.com/noah-isme/transfer-board-api/pkg/errors"
	"github.com/noah-isme/transfer-board-api/pkg/jobs"
)

type reportRepoStub struct {
	mu   sync.Mutex
	jobs map[string]*models.ReportJob
}

func newReportRepoStub() *reportRepoStub {
	return &reportRepoStub{jobs: map[string]*models.ReportJob{}}
}

func (r *reportRepoStub) Create(ctx context.Context, job *models.ReportJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	r.jobs[job.ID] = job
	return nil
}

func (r *reportRepoStub) GetByID(ctx context.Context, id string) (*models.ReportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return job, nil
}

func (r *reportRepoStub) Update(ctx context.Context, id string, params repository.UpdateReportJobParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return sql.ErrNoRows
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

func (r *reportRepoStub) ListPending(ctx context.Context, limit int) ([]models.ReportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var pending []models.ReportJob
	for _, job := range r.jobs {
		if job.Status == models.ReportStatusQueued || job.Status == models.ReportStatusProcessing {
			pending = append(pending, *job)
		}
	}
	return pending, nil
}

func (r *reportRepoStub) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var finished []models.ReportJob
	for _, job := range r.jobs {
		if job.Status == models.ReportStatusFinished && job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			finished = append(finished, *job)
		}
	}
	return finished, nil
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

type reportAuditStub struct {
	entries []*models.AuditLog
}

func (a *reportAuditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.entries = append(a.entries, log)
	return nil
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

func newReportServiceForTest(t *testing.T) (*ReportService, *reportRepoStub, *queueStub, *ExportService, *reportAuditStub) {
	t.Helper()
	repo := newReportRepoStub()
	queue := &queueStub{}
	audit := &reportAuditStub{}
	exportSvc, _, _ := newExportServiceForTest(t)
	svc := NewReportService(repo, queue, exportSvc, audit, zap.NewNop(), ReportServiceConfig{
		ResultTTL:       time.Hour,
		CleanupInterval: time.Hour,
		MaxRetries:      3,
	})
	return svc, repo, queue, exportSvc, audit
}

func TestReportServiceCreateJob(t *testing.T) {
	svc, repo, queue, _, audit := newReportServiceForTest(t)
	status := models.TransferStatusCompleted
	date := "2026-03-14"
	resp, err := svc.CreateJob(context.Background(), adminSession, dto.ReportRequest{
		Type:   models.ReportTypeTransferHistory,
		Format: models.ReportFormatXLSX,
		Search: "  garcia ",
		Status: &status,
		Date:   &date,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.ID)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, models.ReportStatusQueued, resp.Status)

	stored := repo.jobs[resp.ID]
	require.NotNil(t, stored)
	assert.Equal(t, "garcia", stored.Params.Search)
	assert.Equal(t, models.ReportFormatXLSX, stored.Params.Format)
	assert.Equal(t, adminSession.ActorID, stored.CreatedBy)

	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionReportRequest, audit.entries[0].Action)
}

func TestReportServiceCreateJobValidation(t *testing.T) {
	svc, _, queue, _, _ := newReportServiceForTest(t)
	ctx := context.Background()

	_, err := svc.CreateJob(ctx, requesterSession, dto.ReportRequest{Type: models.ReportTypeTransferHistory, Format: models.ReportFormatCSV})
	assertCode(t, err, appErrors.ErrForbidden)

	_, err = svc.CreateJob(ctx, adminSession, dto.ReportRequest{Type: "attendance", Format: models.ReportFormatCSV})
	assertCode(t, err, appErrors.ErrValidation)

	_, err = svc.CreateJob(ctx, adminSession, dto.ReportRequest{Type: models.ReportTypeTransferMetrics, Format: "docx"})
	assertCode(t, err, appErrors.ErrValidation)

	bad := "14/03/2026"
	_, err = svc.CreateJob(ctx, adminSession, dto.ReportRequest{Type: models.ReportTypeTransferMetrics, Format: models.ReportFormatPDF, Date: &bad})
	assertCode(t, err, appErrors.ErrValidation)

	require.Empty(t, queue.jobs)
}

func TestReportServiceCreateJobQueueFull(t *testing.T) {
	svc, repo, queue, _, _ := newReportServiceForTest(t)
	queue.err = jobs.ErrQueueFull

	_, err := svc.CreateJob(context.Background(), adminSession, dto.ReportRequest{
		Type:   models.ReportTypeTransferMetrics,
		Format: models.ReportFormatCSV,
	})
	assertCode(t, err, appErrors.ErrRateLimited)
	for _, job := range repo.jobs {
		assert.Equal(t, models.ReportStatusFailed, job.Status)
	}
}

func TestReportServiceGetStatus(t *testing.T) {
	svc, repo, _, _, _ := newReportServiceForTest(t)
	url := "/api/v1/export/token"
	repo.jobs["job-1"] = &models.ReportJob{
		ID:        "job-1",
		Type:      models.ReportTypeTransferHistory,
		Params:    models.ReportJobParams{Format: models.ReportFormatCSV},
		Status:    models.ReportStatusFinished,
		Progress:  100,
		ResultURL: &url,
	}

	resp, err := svc.GetStatus(context.Background(), adminSession, "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusFinished, resp.Status)
	assert.Equal(t, 100, resp.Progress)
	require.NotNil(t, resp.ResultURL)
	assert.Nil(t, resp.Error)

	_, err = svc.GetStatus(context.Background(), adminSession, "missing")
	assertCode(t, err, appErrors.ErrNotFound)

	_, err = svc.GetStatus(context.Background(), transporterSession, "job-1")
	assertCode(t, err, appErrors.ErrForbidden)
}

func TestReportServiceResolveDownload(t *testing.T) {
	svc, repo, _, exportSvc, _ := newReportServiceForTest(t)
	job := &models.ReportJob{
		ID:     "job-download",
		Type:   models.ReportTypeTransferHistory,
		Params: models.ReportJobParams{Format: models.ReportFormatCSV},
		Status: models.ReportStatusFinished,
	}
	repo.jobs[job.ID] = job
	result, err := exportSvc.Generate(context.Background(), job)
	require.NoError(t, err)
	job.ResultURL = &result.URL

	download, err := svc.ResolveDownload(context.Background(), result.Token)
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(result.RelativePath), download.Filename)
	assert.Equal(t, models.ReportFormatCSV, download.Format)
	require.NoError(t, download.File.Close())

	_, err = svc.ResolveDownload(context.Background(), "not-a-token")
	assertCode(t, err, appErrors.ErrForbidden)

	other := "/api/v1/export/other"
	job.ResultURL = &other
	_, err = svc.ResolveDownload(context.Background(), result.Token)
	assertCode(t, err, appErrors.ErrForbidden)
}

func TestReportServiceRecoverPendingJobs(t *testing.T) {
	svc, repo, queue, _, _ := newReportServiceForTest(t)
	repo.jobs["a"] = &models.ReportJob{ID: "a", Type: models.ReportTypeTransferHistory, Status: models.ReportStatusQueued}
	repo.jobs["b"] = &models.ReportJob{ID: "b", Type: models.ReportTypeTransferHistory, Status: models.ReportStatusFinished}
	repo.jobs["c"] = &models.ReportJob{ID: "c", Type: models.ReportTypeTransferMetrics, Status: models.ReportStatusProcessing}

	require.Equal(t, 2, svc.RecoverPendingJobs(context.Background()))
	ids := make([]string, 0, len(queue.jobs))
	for _, job := range queue.jobs {
		ids = append(ids, job.ID)
	}
	assert.ElementsMatch(t, []string{"a", "c"}, ids)
}

func TestReportServiceCleanupRemovesExpiredExports(t *testing.T) {
	svc, repo, _, exportSvc, _ := newReportServiceForTest(t)
	finishedAt := time.Now().Add(-48 * time.Hour)
	job := &models.ReportJob{
		ID:         "job-old",
		Type:       models.ReportTypeTransferMetrics,
		Params:     models.ReportJobParams{Format: models.ReportFormatCSV},
		Status:     models.ReportStatusFinished,
		FinishedAt: &finishedAt,
	}
	result, err := exportSvc.Generate(context.Background(), job)
	require.NoError(t, err)
	job.ResultURL = &result.URL
	repo.jobs[job.ID] = job

	svc.cleanupExpired(context.Background())

	_, err = exportSvc.Open(result.RelativePath)
	require.Error(t, err)
	require.Equal(t, models.ReportStatusExpired, repo.jobs["job-old"].Status)

	resp, err := svc.GetStatus(context.Background(), adminSession, "job-old")
	require.NoError(t, err)
	assert.Nil(t, resp.ResultURL)
}

func TestReportWorkerHandleSuccess(t *testing.T) {
	repo := newReportRepoStub()
	repo.jobs["job-1"] = &models.ReportJob{
		ID:     "job-1",
		Type:   models.ReportTypeTransferHistory,
		Params: models.ReportJobParams{Format: models.ReportFormatCSV},
		Status: models.ReportStatusQueued,
	}
	worker := NewReportWorker(repo, exportStub{result: &ExportResult{URL: "/api/v1/export/token"}}, 3, zap.NewNop())

	require.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: "job-1", Attempt: 1}))
	job := repo.jobs["job-1"]
	require.Equal(t, models.ReportStatusFinished, job.Status)
	require.Equal(t, 100, job.Progress)
	require.Equal(t, "/api/v1/export/token", *job.ResultURL)
	require.NotNil(t, job.FinishedAt)
}

func TestReportWorkerHandleFailureRetries(t *testing.T) {
	repo := newReportRepoStub()
	repo.jobs["job-1"] = &models.ReportJob{
		ID:     "job-1",
		Type:   models.ReportTypeTransferHistory,
		Params: models.ReportJobParams{Format: models.ReportFormatCSV},
		Status: models.ReportStatusQueued,
	}
	worker := NewReportWorker(repo, exportStub{err: errors.New("boom")}, 2, zap.NewNop())

	require.Error(t, worker.Handle(context.Background(), jobs.Job{ID: "job-1", Attempt: 1}))
	require.Equal(t, models.ReportStatusQueued, repo.jobs["job-1"].Status)
	require.Equal(t, "boom", *repo.jobs["job-1"].ErrorMessage)

	require.Error(t, worker.Handle(context.Background(), jobs.Job{ID: "job-1", Attempt: 2}))
	require.Equal(t, models.ReportStatusFailed, repo.jobs["job-1"].Status)
	require.NotNil(t, repo.jobs["job-1"].FinishedAt)
}

func TestReportWorkerSkipsSettledJobs(t *testing.T) {
	repo := newReportRepoStub()
	repo.jobs["job-1"] = &models.ReportJob{
		ID:     "job-1",
		Type:   models.ReportTypeTransferHistory,
		Params: models.ReportJobParams{Format: models.ReportFormatCSV},
		Status: models.ReportStatusExpired,
	}
	worker := NewReportWorker(repo, exportStub{err: errors.New("must not run")}, 3, zap.NewNop())

	require.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: "job-1"}))
	require.Equal(t, models.ReportStatusExpired, repo.jobs["job-1"].Status)
	require.Nil(t, repo.jobs["job-1"].ErrorMessage)
}
