package handler

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-exam-engine/internal/models"
	"github.com/noah-isme/sma-exam-engine/internal/service"
	appErrors "github.com/noah-isme/sma-exam-engine/pkg/errors"
	"github.com/noah-isme/sma-exam-engine/pkg/response"
)

type reportCardService interface {
	Generate(ctx context.Context, req service.GenerateReportCardsRequest) (*service.GenerateReportCardsSummary, error)
	Get(ctx context.Context, id string) (*models.ReportCardRow, error)
	List(ctx context.Context, filter models.ReportCardFilter) ([]models.ReportCardRow, *models.Pagination, error)
	UpdateRemarks(ctx context.Context, id string, req service.UpdateRemarksRequest) (*models.ReportCardRow, error)
	Archive(ctx context.Context, termID string) (int64, error)
	Export(ctx context.Context, req service.ExportReportCardsRequest) (*service.ExportResult, error)
	Download(token string) (*os.File, string, error)
}

// ReportCardHandler exposes report-card generation, review and export.
type ReportCardHandler struct {
	cards reportCardService
}

// NewReportCardHandler constructs the handler.
func NewReportCardHandler(cards reportCardService) *ReportCardHandler {
	return &ReportCardHandler{cards: cards}
}

// Generate godoc
// @Summary Generate report cards for a term
// @Tags ReportCards
// @Accept json
// @Produce json
// @Param payload body service.GenerateReportCardsRequest true "Term and optional classes"
// @Success 200 {object} response.Envelope
// @Router /report-cards/generate [post]
func (h *ReportCardHandler) Generate(c *gin.Context) {
	var req service.GenerateReportCardsRequest
	if !bindJSON(c, &req) {
		return
	}
	summary, err := h.cards.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// ArchiveRequest names the term whose cards are frozen.
type ArchiveRequest struct {
	TermID string `json:"term_id" binding:"required"`
}

// Archive godoc
// @Summary Archive the report cards of a term
// @Description Archived cards are never regenerated.
// @Tags ReportCards
// @Accept json
// @Produce json
// @Param payload body ArchiveRequest true "Term"
// @Success 200 {object} response.Envelope
// @Router /report-cards/archive [post]
func (h *ReportCardHandler) Archive(c *gin.Context) {
	var req ArchiveRequest
	if !bindJSON(c, &req) {
		return
	}
	archived, err := h.cards.Archive(c.Request.Context(), req.TermID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"term_id": req.TermID, "archived": archived}, nil)
}

// List godoc
// @Summary List report cards
// @Tags ReportCards
// @Produce json
// @Param termId query string false "Term ID"
// @Param classId query string false "Class ID"
// @Param studentId query string false "Student ID"
// @Param academicYearId query string false "Academic year ID"
// @Param status query string false "DRAFT, PUBLISHED or ARCHIVED"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /report-cards [get]
func (h *ReportCardHandler) List(c *gin.Context) {
	filter := models.ReportCardFilter{
		TermID:         c.Query("termId"),
		ClassID:        c.Query("classId"),
		StudentID:      c.Query("studentId"),
		AcademicYearID: c.Query("academicYearId"),
		Status:         models.ReportCardStatus(strings.ToUpper(c.Query("status"))),
		Page:           parseQueryInt(c, "page", 1),
		PageSize:       parseQueryInt(c, "pageSize", 50),
	}
	if claims := claimsFromContext(c); claims != nil && claims.Role == models.RoleStudent {
		filter.StudentID = claims.StudentID
	}
	cards, page, err := h.cards.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cards, page)
}

// Get godoc
// @Summary Get report card
// @Tags ReportCards
// @Produce json
// @Param id path string true "Report card ID"
// @Success 200 {object} response.Envelope
// @Router /report-cards/{id} [get]
func (h *ReportCardHandler) Get(c *gin.Context) {
	card, err := h.cards.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if claims := claimsFromContext(c); claims != nil && claims.Role == models.RoleStudent && claims.StudentID != card.StudentID {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	response.JSON(c, http.StatusOK, card, nil)
}

// UpdateRemarks godoc
// @Summary Update report card remarks
// @Tags ReportCards
// @Accept json
// @Produce json
// @Param id path string true "Report card ID"
// @Param payload body service.UpdateRemarksRequest true "Remarks"
// @Success 200 {object} response.Envelope
// @Router /report-cards/{id}/remarks [patch]
func (h *ReportCardHandler) UpdateRemarks(c *gin.Context) {
	var req service.UpdateRemarksRequest
	if !bindJSON(c, &req) {
		return
	}
	card, err := h.cards.UpdateRemarks(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, card, nil)
}

// Export godoc
// @Summary Export report cards
// @Description Renders CSV or PDF and returns a signed download link.
// @Tags ReportCards
// @Accept json
// @Produce json
// @Param payload body service.ExportReportCardsRequest true "Export scope"
// @Success 201 {object} response.Envelope
// @Router /report-cards/export [post]
func (h *ReportCardHandler) Export(c *gin.Context) {
	var req service.ExportReportCardsRequest
	if !bindJSON(c, &req) {
		return
	}
	req.Format = service.ExportFormat(strings.ToLower(string(req.Format)))
	out, err := h.cards.Export(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, out)
}

// Download godoc
// @Summary Download an exported file
// @Tags ReportCards
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Router /report-cards/download/{token} [get]
func (h *ReportCardHandler) Download(c *gin.Context) {
	file, path, err := h.cards.Download(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	contentType := "text/csv"
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		contentType = "application/pdf"
	}
	info, err := file.Stat()
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=\""+filepath.Base(path)+"\"")
	c.DataFromReader(http.StatusOK, info.Size(), contentType, file, nil)
}
