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

	"github.com/noah-isme/transfer-board-api/internal/models"
)

const reportJobColumns = `id, type, params, status, progress, result_url, created_by, created_at, finished_at, error_message`

// ReportRepository stores export job rows.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs the repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// UpdateReportJobParams lists the fields a worker may change; nil fields are kept.
type UpdateReportJobParams struct {
	Status       *models.ReportStatus
	Progress     *int
	ResultURL    *string
	ErrorMessage *string
	FinishedAt   *time.Time
}

// Create inserts job, filling id, status and creation time when unset.
func (r *ReportRepository) Create(ctx context.Context, job *models.ReportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.ReportStatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	query := "INSERT INTO report_jobs (" + reportJobColumns + ") VALUES (:" +
		strings.ReplaceAll(reportJobColumns, ", ", ", :") + ")"
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create report job: %w", err)
	}
	return nil
}

// GetByID returns sql.ErrNoRows unwrapped when the job does not exist.
func (r *ReportRepository) GetByID(ctx context.Context, id string) (*models.ReportJob, error) {
	var job models.ReportJob
	err := r.db.GetContext(ctx, &job, "SELECT "+reportJobColumns+" FROM report_jobs WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("get report job: %w", err)
	}
	return &job, nil
}

// Update writes the non-nil fields of params.
func (r *ReportRepository) Update(ctx context.Context, id string, params UpdateReportJobParams) error {
	setParts := make([]string, 0, 5)
	values := map[string]interface{}{"id": id}
	set := func(column string, value interface{}) {
		setParts = append(setParts, column+" = :"+column)
		values[column] = value
	}
	if params.Status != nil {
		set("status", *params.Status)
	}
	if params.Progress != nil {
		set("progress", *params.Progress)
	}
	if params.ResultURL != nil {
		set("result_url", *params.ResultURL)
	}
	if params.ErrorMessage != nil {
		set("error_message", *params.ErrorMessage)
	}
	if params.FinishedAt != nil {
		set("finished_at", *params.FinishedAt)
	}
	if len(setParts) == 0 {
		return nil
	}

	query := "UPDATE report_jobs SET " + strings.Join(setParts, ", ") + " WHERE id = :id"
	result, err := r.db.NamedExecContext(ctx, query, values)
	if err != nil {
		return fmt.Errorf("update report job: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListPending returns jobs a worker has not finished, oldest first.
func (r *ReportRepository) ListPending(ctx context.Context, limit int) ([]models.ReportJob, error) {
	if limit <= 0 {
		limit = 20
	}
	query := "SELECT " + reportJobColumns + " FROM report_jobs WHERE status IN ($1, $2) ORDER BY created_at ASC LIMIT $3"
	jobs := make([]models.ReportJob, 0)
	if err := r.db.SelectContext(ctx, &jobs, query, models.ReportStatusQueued, models.ReportStatusProcessing, limit); err != nil {
		return nil, fmt.Errorf("list pending report jobs: %w", err)
	}
	return jobs, nil
}

// ListFinishedBefore returns finished jobs whose results predate cutoff.
func (r *ReportRepository) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error) {
	if limit <= 0 {
		limit = 50
	}
	query := "SELECT " + reportJobColumns + " FROM report_jobs WHERE status = $1 AND finished_at < $2 ORDER BY finished_at ASC LIMIT $3"
	jobs := make([]models.ReportJob, 0)
	if err := r.db.SelectContext(ctx, &jobs, query, models.ReportStatusFinished, cutoff, limit); err != nil {
		return nil, fmt.Errorf("list finished report jobs: %w", err)
	}
	return jobs, nil
}
