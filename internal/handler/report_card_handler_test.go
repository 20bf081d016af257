package handler

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-exam-engine/internal/models"
	"github.com/noah-isme/sma-exam-engine/internal/service"
	appErrors "github.com/noah-isme/sma-exam-engine/pkg/errors"
)

type fakeReportCards struct {
	filter   models.ReportCardFilter
	exportRq service.ExportReportCardsRequest
	card     *models.ReportCardRow
	file     string
}

func (f *fakeReportCards) Generate(_ context.Context, req service.GenerateReportCardsRequest) (*service.GenerateReportCardsSummary, error) {
	return &service.GenerateReportCardsSummary{TermID: req.TermID, Generated: 3}, nil
}

func (f *fakeReportCards) Get(context.Context, string) (*models.ReportCardRow, error) {
	if f.card == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "report card not found")
	}
	return f.card, nil
}

func (f *fakeReportCards) List(_ context.Context, filter models.ReportCardFilter) ([]models.ReportCardRow, *models.Pagination, error) {
	f.filter = filter
	return []models.ReportCardRow{}, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize}, nil
}

func (f *fakeReportCards) UpdateRemarks(context.Context, string, service.UpdateRemarksRequest) (*models.ReportCardRow, error) {
	return nil, appErrors.Clone(appErrors.ErrState, "report card is archived")
}

func (f *fakeReportCards) Archive(_ context.Context, termID string) (int64, error) {
	if termID == "" {
		return 0, appErrors.Clone(appErrors.ErrValidation, "term_id is required")
	}
	return 4, nil
}

func (f *fakeReportCards) Export(_ context.Context, req service.ExportReportCardsRequest) (*service.ExportResult, error) {
	f.exportRq = req
	return &service.ExportResult{Token: "tok", Format: req.Format}, nil
}

func (f *fakeReportCards) Download(string) (*os.File, string, error) {
	file, err := os.Open(f.file)
	return file, filepath.Base(f.file), err
}

func TestReportCardListScopesStudents(t *testing.T) {
	fake := &fakeReportCards{}
	h := NewReportCardHandler(fake)
	c, rec := newTestContext(http.MethodGet, "/report-cards?termId=term-1&studentId=s2&status=draft&page=2", "", studentClaims)

	h.List(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "s1", fake.filter.StudentID)
	assert.Equal(t, models.ReportCardDraft, fake.filter.Status)
	assert.Equal(t, 2, fake.filter.Page)
}

func TestReportCardGetForbidsOtherStudents(t *testing.T) {
	fake := &fakeReportCards{card: &models.ReportCardRow{ReportCard: models.ReportCard{ID: "rc-1", StudentID: "s2"}}}
	h := NewReportCardHandler(fake)
	c, rec := newTestContext(http.MethodGet, "/report-cards/rc-1", "", studentClaims)

	h.Get(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestReportCardRemarksOnArchivedCard(t *testing.T) {
	h := NewReportCardHandler(&fakeReportCards{})
	c, rec := newTestContext(http.MethodPatch, "/report-cards/rc-1/remarks", `{"teacher_remarks":"Great term"}`, nil)

	h.UpdateRemarks(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, "STATE", env.Error.Code)
}

func TestReportCardExportNormalisesFormat(t *testing.T) {
	fake := &fakeReportCards{}
	h := NewReportCardHandler(fake)
	c, rec := newTestContext(http.MethodPost, "/report-cards/export", `{"term_id":"term-1","format":"PDF"}`, nil)

	h.Export(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, service.ExportPDF, fake.exportRq.Format)
}

func TestReportCardDownloadStreamsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report_cards_term-1.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.3"), 0o600))
	h := NewReportCardHandler(&fakeReportCards{file: path})
	c, rec := newTestContext(http.MethodGet, "/report-cards/download/tok", "", nil)
	c.Params = gin.Params{{Key: "token", Value: "tok"}}

	h.Download(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "report_cards_term-1.pdf")
	assert.Equal(t, "%PDF-1.3", rec.Body.String())
}

func TestReportCardArchiveRequiresTerm(t *testing.T) {
	h := NewReportCardHandler(&fakeReportCards{})
	c, rec := newTestContext(http.MethodPost, "/report-cards/archive", `{}`, nil)

	h.Archive(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	c, rec = newTestContext(http.MethodPost, "/report-cards/archive", `{"term_id":"term-1"}`, nil)
	h.Archive(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"archived":4`)
}
