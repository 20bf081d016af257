package service

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-exam-engine/internal/models"
	appErrors "github.com/noah-isme/sma-exam-engine/pkg/errors"
	"github.com/noah-isme/sma-exam-engine/pkg/storage"
)

func newExportServiceForTest(t *testing.T) (*ExportService, *storage.LocalStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	return NewExportService(store, signer, ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour}, zap.NewNop(), nil, nil), store
}

func sampleCards() []models.ReportCardRow {
	rank := 1
	return []models.ReportCardRow{
		{
			ReportCard: models.ReportCard{
				ID: "rc-1", StudentID: "s1", TotalMarks: 500, MarksObtained: 350, Percentage: 70,
				Grade: "B+", GradePointAverage: 2.86, ClassRank: &rank, ClassSize: 2, GradeSize: 3,
				AttendancePercentage: 90, Status: models.ReportCardDraft,
			},
			AdmissionNumber: "2024-001", StudentName: "Ayu Lestari", ClassName: "X IPA 1",
		},
	}
}

func TestRenderReportCardsCSV(t *testing.T) {
	svc, _ := newExportServiceForTest(t)

	out, err := svc.RenderReportCards(context.Background(), "term-1/10A", "Report Cards", sampleCards(), ExportCSV)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Rows)
	assert.True(t, strings.HasPrefix(out.URL, "/api/v1/report-cards/download/"))
	assert.Equal(t, ".csv", filepath.Ext(out.RelativePath))
	assert.NotContains(t, out.RelativePath, "/10A")

	file, path, err := svc.Open(out.Token)
	require.NoError(t, err)
	defer file.Close()
	assert.Equal(t, out.RelativePath, path)
	body, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Ayu Lestari")
	assert.Contains(t, string(body), "2.86")
	assert.Contains(t, string(body), "1/2")
	assert.Contains(t, string(body), ",-,")
}

func TestRenderReportCardsPDF(t *testing.T) {
	svc, _ := newExportServiceForTest(t)

	out, err := svc.RenderReportCards(context.Background(), "term-1", "Report Cards", sampleCards(), ExportPDF)
	require.NoError(t, err)
	file, _, err := svc.Open(out.Token)
	require.NoError(t, err)
	defer file.Close()
	head := make([]byte, 4)
	_, err = io.ReadFull(file, head)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(head))
}

func TestRenderReportCardsRejectsUnknownFormat(t *testing.T) {
	svc, _ := newExportServiceForTest(t)

	_, err := svc.RenderReportCards(context.Background(), "term-1", "Report Cards", nil, "xlsx")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
}

func TestOpenRejectsTamperedToken(t *testing.T) {
	svc, _ := newExportServiceForTest(t)
	out, err := svc.RenderReportCards(context.Background(), "term-1", "Report Cards", sampleCards(), ExportCSV)
	require.NoError(t, err)

	_, _, err = svc.Open(out.Token + "x")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden.Code))
}

func TestOpenReportsMissingFile(t *testing.T) {
	svc, store := newExportServiceForTest(t)
	out, err := svc.RenderReportCards(context.Background(), "term-1", "Report Cards", sampleCards(), ExportCSV)
	require.NoError(t, err)
	require.NoError(t, store.Delete(out.RelativePath))

	_, _, err = svc.Open(out.Token)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))
}
