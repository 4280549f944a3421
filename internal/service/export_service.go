package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/transfer-board-api/internal/models"
	"github.com/noah-isme/transfer-board-api/pkg/export"
	"github.com/noah-isme/transfer-board-api/pkg/storage"
)

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ReportFormat
	ExpiresAt    time.Time
}

type tableRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportService builds transfer datasets and persists rendered files behind signed URLs.
type ExportService struct {
	transfers TransferLister
	storage   fileStorage
	csv       tableRenderer
	xlsx      tableRenderer
	pdf       pdfRenderer
	signer    *storage.SignedURLSigner
	logger    *zap.Logger
	cfg       ExportConfig
	now       func() time.Time
}

// NewExportService constructs an ExportService with the default renderers.
func NewExportService(transfers TransferLister, storage fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportService{
		transfers: transfers,
		storage:   storage,
		csv:       export.NewCSVExporter(),
		xlsx:      export.NewXLSXExporter("Transfers"),
		pdf:       export.NewPDFExporter(),
		signer:    signer,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Generate builds the dataset for job, renders it, stores the file and signs a download URL.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	dataset, title, err := s.buildDataset(ctx, job)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch job.Params.Format {
	case models.ReportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ReportFormatXLSX:
		payload, err = s.xlsx.Render(dataset)
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return nil, err
	}

	relPath, err := s.storage.Save(s.buildFilename(job), payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	s.logger.Info("export generated", zap.String("job_id", job.ID), zap.String("path", relPath), zap.Int("rows", len(dataset.Rows)))

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/export/%s", prefix, token),
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.ReportJob) string {
	timestamp := s.now().UTC().Format("20060102_150405")
	scope := "all"
	if job.Params.Status != nil {
		scope = strings.ToLower(string(*job.Params.Status))
	}
	if job.Params.Date != nil {
		scope += "_" + sanitizeFilename(*job.Params.Date)
	}
	return fmt.Sprintf("%s_%s_%s.%s", string(job.Type), scope, timestamp, job.Params.Format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func (s *ExportService) buildDataset(ctx context.Context, job *models.ReportJob) (export.Dataset, string, error) {
	date := ""
	if job.Params.Date != nil {
		date = *job.Params.Date
	}
	filter, err := BuildTransferFilter(job.Params.Search, job.Params.Status, date)
	if err != nil {
		return export.Dataset{}, "", err
	}
	transfers, err := s.transfers.ListAll(ctx, filter)
	if err != nil {
		return export.Dataset{}, "", fmt.Errorf("load transfers for export: %w", err)
	}

	switch job.Type {
	case models.ReportTypeTransferHistory:
		return historyDataset(transfers), reportTitle("Transfer History", job.Params), nil
	case models.ReportTypeTransferMetrics:
		return metricsDataset(ComputeMetrics(transfers)), reportTitle("Transfer Metrics", job.Params), nil
	default:
		return export.Dataset{}, "", fmt.Errorf("unsupported report type %s", job.Type)
	}
}

var historyHeaders = []string{
	"Requested At", "Patient", "History No.", "Origin", "Destination", "Type",
	"Priority", "Status", "Transporter", "Accepted At", "Completed At", "Observation",
}

func historyDataset(transfers []models.Transfer) export.Dataset {
	rows := make([]map[string]string, 0, len(transfers))
	for _, t := range transfers {
		rows = append(rows, map[string]string{
			"Requested At": t.RequestedAt.UTC().Format(time.RFC3339),
			"Patient":      t.PatientName,
			"History No.":  deref(t.PatientHistoryNumber),
			"Origin":       firstNonEmpty(deref(t.OriginSectorName), t.OriginSectorID),
			"Destination":  firstNonEmpty(deref(t.DestinationSectorName), t.DestinationSectorID),
			"Type":         firstNonEmpty(deref(t.TransferTypeName), t.TransferTypeID),
			"Priority":     string(t.Priority),
			"Status":       string(t.Status),
			"Transporter":  deref(t.TransporterName),
			"Accepted At":  formatReportTime(t.AcceptedAt),
			"Completed At": formatReportTime(t.CompletedAt),
			"Observation":  deref(t.Observation),
		})
	}
	return export.Dataset{Headers: historyHeaders, Rows: rows}
}

func metricsDataset(metrics models.TransferMetrics) export.Dataset {
	rows := []map[string]string{
		{"Metric": "Total transfers", "Value": strconv.Itoa(metrics.Total)},
		{"Metric": "Mean wait (min)", "Value": strconv.FormatInt(metrics.MeanWaitMinutes, 10)},
		{"Metric": "Mean transit (min)", "Value": strconv.FormatInt(metrics.MeanTransitMinutes, 10)},
	}
	for _, demand := range metrics.DemandBySector {
		rows = append(rows, map[string]string{
			"Metric": "Demand: " + demand.Sector,
			"Value":  strconv.Itoa(demand.Count),
			"Share":  fmt.Sprintf("%.1f%%", demand.Share*100),
		})
	}
	return export.Dataset{Headers: []string{"Metric", "Value", "Share"}, Rows: rows}
}

func reportTitle(base string, params models.ReportJobParams) string {
	parts := []string{base}
	if params.Status != nil {
		parts = append(parts, string(*params.Status))
	}
	if params.Date != nil {
		parts = append(parts, *params.Date)
	}
	return strings.Join(parts, " - ")
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func formatReportTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
