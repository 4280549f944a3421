package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/transfer-board-api/internal/dto"
	"github.com/noah-isme/transfer-board-api/internal/models"
	"github.com/noah-isme/transfer-board-api/internal/repository"
	appErrors "github.com/noah-isme/transfer-board-api/pkg/errors"
	"github.com/noah-isme/transfer-board-api/pkg/jobs"
)

const (
	reportCleanupTask = "report-cleanup"
	cleanupBatch      = 100
)

type reportJobStore interface {
	Create(ctx context.Context, job *models.ReportJob) error
	GetByID(ctx context.Context, id string) (*models.ReportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateReportJobParams) error
	ListPending(ctx context.Context, limit int) ([]models.ReportJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type exportGenerator interface {
	Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error)
}

// ReportService runs the lifecycle of asynchronous transfer exports.
type ReportService struct {
	repo     reportJobStore
	queue    jobDispatcher
	exporter *ExportService
	audit    auditWriter
	logger   *zap.Logger
	cfg      ReportServiceConfig
}

// ReportServiceConfig governs queue recovery and cleanup.
type ReportServiceConfig struct {
	ResultTTL       time.Duration
	CleanupInterval time.Duration
	MaxRetries      int
}

// ReportDownload aggregates resolved download data.
type ReportDownload struct {
	File      *os.File
	Filename  string
	Format    models.ReportFormat
	ExpiresAt time.Time
}

// NewReportService constructs the report service. audit may be nil.
func NewReportService(repo reportJobStore, queue jobDispatcher, exporter *ExportService, audit auditWriter, logger *zap.Logger, cfg ReportServiceConfig) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Hour
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &ReportService{
		repo:     repo,
		queue:    queue,
		exporter: exporter,
		audit:    audit,
		logger:   logger,
		cfg:      cfg,
	}
}

// CreateJob validates the request, persists the job, and enqueues it.
func (s *ReportService) CreateJob(ctx context.Context, session models.Session, req dto.ReportRequest) (*dto.ReportJobResponse, error) {
	if !IsAllowed(session.Role, OperationViewHistory, "") {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only administrators can export transfers")
	}
	if err := validateReportRequest(req); err != nil {
		return nil, err
	}

	job := &models.ReportJob{
		Type: req.Type,
		Params: models.ReportJobParams{
			Search: strings.TrimSpace(req.Search),
			Status: req.Status,
			Date:   req.Date,
			Format: req.Format,
		},
		Status:    models.ReportStatusQueued,
		CreatedBy: session.ActorID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type)}); err != nil {
		status := models.ReportStatusFailed
		msg := "failed to enqueue job"
		now := time.Now().UTC()
		progress := 100
		_ = s.repo.Update(ctx, job.ID, repository.UpdateReportJobParams{
			Status:       &status,
			Progress:     &progress,
			ErrorMessage: &msg,
			FinishedAt:   &now,
		})
		if errors.Is(err, jobs.ErrQueueFull) {
			return nil, appErrors.Clone(appErrors.ErrRateLimited, "report queue is full, retry shortly")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue report job")
	}
	s.recordRequest(ctx, session, job)
	return &dto.ReportJobResponse{ID: job.ID, Status: job.Status, Progress: job.Progress}, nil
}

// GetStatus exposes job metadata to administrators.
func (s *ReportService) GetStatus(ctx context.Context, session models.Session, id string) (*dto.ReportStatusResponse, error) {
	if !IsAllowed(session.Role, OperationViewHistory, "") {
		return nil, appErrors.ErrForbidden
	}
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	resp := &dto.ReportStatusResponse{
		ID:        job.ID,
		Status:    job.Status,
		Progress:  job.Progress,
		ResultURL: job.ResultURL,
	}
	if job.Status == models.ReportStatusExpired {
		resp.ResultURL = nil
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		resp.Error = job.ErrorMessage
	}
	return resp, nil
}

// ResolveDownload validates a signed token and opens the stored export.
func (s *ReportService) ResolveDownload(ctx context.Context, token string) (*ReportDownload, error) {
	jobID, relPath, expiresAt, err := s.exporter.ParseToken(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.repo.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	if job.Status != models.ReportStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "report not ready")
	}
	if job.ResultURL == nil || extractToken(*job.ResultURL) != token {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	file, err := s.exporter.Open(relPath)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export file no longer available")
	}
	return &ReportDownload{
		File:      file,
		Filename:  filepath.Base(relPath),
		Format:    job.Params.Format,
		ExpiresAt: expiresAt,
	}, nil
}

// RecoverPendingJobs replays jobs a previous process left queued or in flight.
func (s *ReportService) RecoverPendingJobs(ctx context.Context) int {
	pending, err := s.repo.ListPending(ctx, 50)
	if err != nil {
		s.logger.Warn("failed to recover queued report jobs", zap.Error(err))
		return 0
	}
	requeued := 0
	for _, job := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type)}); err != nil {
			s.logger.Warn("failed to requeue pending job", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		requeued++
	}
	return requeued
}

// ScheduleCleanup registers the periodic purge of expired exports.
func (s *ReportService) ScheduleCleanup(ctx context.Context, scheduler *jobs.Scheduler) error {
	return scheduler.Every(ctx, reportCleanupTask, s.cfg.CleanupInterval, s.cleanupExpired)
}

func (s *ReportService) cleanupExpired(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.ResultTTL)
	expired := models.ReportStatusExpired
	removed := 0
	for {
		finished, err := s.repo.ListFinishedBefore(ctx, cutoff, cleanupBatch)
		if err != nil {
			s.logger.Warn("report cleanup list failed", zap.Error(err))
			return
		}
		for _, job := range finished {
			if s.deleteExport(job) {
				removed++
			}
			// Expired rows drop out of the next listing even when the file was already gone.
			if err := s.repo.Update(ctx, job.ID, repository.UpdateReportJobParams{Status: &expired}); err != nil {
				s.logger.Warn("report cleanup update failed", zap.String("job_id", job.ID), zap.Error(err))
				return
			}
		}
		if len(finished) < cleanupBatch {
			break
		}
	}
	swept, err := s.exporter.Cleanup(s.cfg.ResultTTL)
	if err != nil {
		s.logger.Warn("export directory cleanup failed", zap.Error(err))
	}
	s.logger.Debug("report cleanup finished", zap.Int("jobs", removed), zap.Int("files", len(swept)))
}

func (s *ReportService) deleteExport(job models.ReportJob) bool {
	if job.ResultURL == nil {
		return false
	}
	token := extractToken(*job.ResultURL)
	if token == "" {
		return false
	}
	_, relPath, _, err := s.exporter.ParseToken(token, true)
	if err != nil {
		return false
	}
	if err := s.exporter.Delete(relPath); err != nil {
		s.logger.Warn("report cleanup delete failed", zap.String("job_id", job.ID), zap.Error(err))
		return false
	}
	return true
}

func (s *ReportService) recordRequest(ctx context.Context, session models.Session, job *models.ReportJob) {
	if s.audit == nil {
		return
	}
	values, _ := json.Marshal(job.Params)
	resourceID := job.ID
	entry := &models.AuditLog{
		Role:       string(session.Role),
		Action:     models.AuditActionReportRequest,
		Resource:   "report",
		ResourceID: &resourceID,
		NewValues:  values,
		CreatedAt:  time.Now().UTC(),
	}
	if session.ActorID != "" {
		actor := session.ActorID
		entry.UserID = &actor
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to write report audit log", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func validateReportRequest(req dto.ReportRequest) error {
	switch req.Type {
	case models.ReportTypeTransferHistory, models.ReportTypeTransferMetrics:
	default:
		return appErrors.Clone(appErrors.ErrValidation, "unsupported report type")
	}
	switch req.Format {
	case models.ReportFormatCSV, models.ReportFormatPDF, models.ReportFormatXLSX:
	default:
		return appErrors.Clone(appErrors.ErrValidation, "unsupported report format")
	}
	date := ""
	if req.Date != nil {
		date = *req.Date
	}
	if _, err := BuildTransferFilter(req.Search, req.Status, date); err != nil {
		return err
	}
	return nil
}

func extractToken(url string) string {
	if url == "" {
		return ""
	}
	parts := strings.Split(url, "/")
	return parts[len(parts)-1]
}

// ReportWorker bridges queue jobs to ExportService.
type ReportWorker struct {
	repo       reportJobStore
	exporter   exportGenerator
	logger     *zap.Logger
	maxRetries int
}

// NewReportWorker constructs a worker.
func NewReportWorker(repo reportJobStore, exporter exportGenerator, maxRetries int, logger *zap.Logger) *ReportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &ReportWorker{
		repo:       repo,
		exporter:   exporter,
		logger:     logger,
		maxRetries: maxRetries,
	}
}

// Handle processes one queue job, requeueing it until maxRetries is reached.
func (w *ReportWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.repo.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	if record.Status.Terminal() {
		w.logger.Debug("skipping settled report job", zap.String("job_id", job.ID), zap.String("status", string(record.Status)))
		return nil
	}
	processing := models.ReportStatusProcessing
	progress := 10
	if err := w.repo.Update(ctx, job.ID, repository.UpdateReportJobParams{
		Status:   &processing,
		Progress: &progress,
	}); err != nil {
		return err
	}

	result, err := w.exporter.Generate(ctx, record)
	if err != nil {
		w.markFailed(ctx, job, err)
		return err
	}

	finished := models.ReportStatusFinished
	progress = 100
	now := time.Now().UTC()
	url := result.URL
	clear := ""
	if err := w.repo.Update(ctx, job.ID, repository.UpdateReportJobParams{
		Status:       &finished,
		Progress:     &progress,
		ResultURL:    &url,
		ErrorMessage: &clear,
		FinishedAt:   &now,
	}); err != nil {
		w.logger.Warn("failed to mark report job finished", zap.String("job_id", job.ID), zap.Error(err))
		return err
	}
	w.logger.Info("report job finished", zap.String("job_id", job.ID), zap.String("type", job.Type), zap.Int("attempt", job.Attempt))
	return nil
}

func (w *ReportWorker) markFailed(ctx context.Context, job jobs.Job, cause error) {
	msg := cause.Error()
	params := repository.UpdateReportJobParams{ErrorMessage: &msg}
	if job.Attempt >= w.maxRetries {
		failed := models.ReportStatusFailed
		progress := 100
		now := time.Now().UTC()
		params.Status = &failed
		params.Progress = &progress
		params.FinishedAt = &now
	} else {
		queued := models.ReportStatusQueued
		reset := 0
		params.Status = &queued
		params.Progress = &reset
	}
	if err := w.repo.Update(ctx, job.ID, params); err != nil {
		w.logger.Warn("failed to record report job failure", zap.String("job_id", job.ID), zap.Error(err))
	}
}
