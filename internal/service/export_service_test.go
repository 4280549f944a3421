package service

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/transfer-board-api/internal/models"
	"github.com/noah-isme/transfer-board-api/pkg/storage"
)

func exportFixtures() []models.Transfer {
	base := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	return []models.Transfer{
		{
			ID:               "t-1",
			PatientName:      "Maria Garcia",
			OriginSectorID:   "sec-er",
			OriginSectorName: stringRef("Emergency"),
			Priority:         models.TransferPriorityHigh,
			Status:           models.TransferStatusCompleted,
			RequestedAt:      base,
			AcceptedAt:       timePtr(base.Add(4 * time.Minute)),
			CompletedAt:      timePtr(base.Add(20 * time.Minute)),
			TransporterName:  stringRef("Luis"),
		},
		{
			ID:             "t-2",
			PatientName:    "Joao Silva",
			OriginSectorID: "sec-ward3",
			Priority:       models.TransferPriorityMedium,
			Status:         models.TransferStatusPending,
			RequestedAt:    base.Add(time.Hour),
		},
	}
}

func newExportServiceForTest(t *testing.T) (*ExportService, *storage.LocalStorage, *transferListerStub) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	lister := &transferListerStub{transfers: exportFixtures()}
	svc := NewExportService(lister, store, signer, ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour}, zap.NewNop())
	return svc, store, lister
}

func readExport(t *testing.T, store *storage.LocalStorage, rel string) string {
	t.Helper()
	f, err := store.Open(rel)
	require.NoError(t, err)
	defer f.Close()
	body, err := io.ReadAll(f)
	require.NoError(t, err)
	return string(body)
}

func TestExportServiceGenerateHistoryCSV(t *testing.T) {
	svc, store, _ := newExportServiceForTest(t)
	status := models.TransferStatusCompleted
	job := &models.ReportJob{
		ID:     "job-1",
		Type:   models.ReportTypeTransferHistory,
		Params: models.ReportJobParams{Status: &status, Format: models.ReportFormatCSV},
	}
	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(result.URL, "/api/v1/export/"))
	require.Contains(t, result.RelativePath, "transfer_history_completed_")

	body := readExport(t, store, result.RelativePath)
	require.Contains(t, body, "Requested At,Patient")
	require.Contains(t, body, "Maria Garcia")
	require.Contains(t, body, "Emergency")
	require.Contains(t, body, "sec-ward3")

	jobID, rel, _, err := svc.ParseToken(result.Token, false)
	require.NoError(t, err)
	require.Equal(t, "job-1", jobID)
	require.Equal(t, result.RelativePath, rel)
}

func TestExportServiceGenerateMetricsFormats(t *testing.T) {
	svc, store, _ := newExportServiceForTest(t)
	for _, format := range []models.ReportFormat{models.ReportFormatPDF, models.ReportFormatXLSX, models.ReportFormatCSV} {
		job := &models.ReportJob{
			ID:     "job-" + string(format),
			Type:   models.ReportTypeTransferMetrics,
			Params: models.ReportJobParams{Format: format},
		}
		result, err := svc.Generate(context.Background(), job)
		require.NoError(t, err, format)
		info, err := os.Stat(store.Path(result.RelativePath))
		require.NoError(t, err)
		require.Greater(t, info.Size(), int64(0))
	}

	body := readExport(t, store, mustGenerate(t, svc, models.ReportTypeTransferMetrics, models.ReportFormatCSV).RelativePath)
	require.Contains(t, body, "Mean wait (min),4,")
	require.Contains(t, body, "Demand: Emergency,1,50.0%")
}

func TestExportServiceRejectsUnknownInputs(t *testing.T) {
	svc, _, lister := newExportServiceForTest(t)

	_, err := svc.Generate(context.Background(), &models.ReportJob{ID: "x", Type: "attendance", Params: models.ReportJobParams{Format: models.ReportFormatCSV}})
	require.Error(t, err)

	_, err = svc.Generate(context.Background(), &models.ReportJob{ID: "y", Type: models.ReportTypeTransferHistory, Params: models.ReportJobParams{Format: "docx"}})
	require.Error(t, err)

	bad := "yesterday"
	calls := lister.calls
	_, err = svc.Generate(context.Background(), &models.ReportJob{ID: "z", Type: models.ReportTypeTransferHistory, Params: models.ReportJobParams{Date: &bad, Format: models.ReportFormatCSV}})
	require.Error(t, err)
	require.Equal(t, calls, lister.calls)
}

func mustGenerate(t *testing.T, svc *ExportService, typ models.ReportType, format models.ReportFormat) *ExportResult {
	t.Helper()
	result, err := svc.Generate(context.Background(), &models.ReportJob{ID: "job-extra", Type: typ, Params: models.ReportJobParams{Format: format}})
	require.NoError(t, err)
	return result
}
