package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-exam-engine/internal/models"
	appErrors "github.com/noah-isme/sma-exam-engine/pkg/errors"
	"github.com/noah-isme/sma-exam-engine/pkg/response"
)

type analyticsService interface {
	GetResultsAnalytics(ctx context.Context, filter models.AnalyticsFilter) (*models.ResultAnalytics, bool, error)
	GetExamAnalytics(ctx context.Context, examID string, topN int) (*models.ResultAnalytics, bool, error)
	GetStudentProgress(ctx context.Context, studentID, academicYearID string) (*models.StudentProgress, error)
	SystemMetrics() models.AnalyticsSystemMetrics
}

// AnalyticsHandler exposes result analytics and student progress.
type AnalyticsHandler struct {
	analytics analyticsService
}

// NewAnalyticsHandler constructs the analytics handler.
func NewAnalyticsHandler(analytics analyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

// Results godoc
// @Summary Result analytics
// @Description Distribution, pass rate, subject averages and top performers for the filtered results.
// @Tags Analytics
// @Produce json
// @Param academicYearId query string false "Academic year ID"
// @Param termId query string false "Term ID"
// @Param classId query string false "Class ID"
// @Param subjectId query string false "Subject ID"
// @Param examId query string false "Exam ID"
// @Param top query int false "Top performers"
// @Success 200 {object} response.Envelope
// @Router /analytics/results [get]
func (h *AnalyticsHandler) Results(c *gin.Context) {
	var filter models.AnalyticsFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid analytics filter"))
		return
	}
	out, hit, err := h.analytics.GetResultsAnalytics(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondCached(c, out, hit)
}

// Exam godoc
// @Summary Exam analytics
// @Tags Analytics
// @Produce json
// @Param id path string true "Exam ID"
// @Param top query int false "Top performers"
// @Success 200 {object} response.Envelope
// @Router /exams/{id}/analytics [get]
func (h *AnalyticsHandler) Exam(c *gin.Context) {
	out, hit, err := h.analytics.GetExamAnalytics(c.Request.Context(), c.Param("id"), parseQueryInt(c, "top", 0))
	if err != nil {
		response.Error(c, err)
		return
	}
	respondCached(c, out, hit)
}

// StudentProgress godoc
// @Summary Student progress across an academic year
// @Tags Analytics
// @Produce json
// @Param id path string true "Student ID"
// @Param academicYearId query string true "Academic year ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/progress [get]
func (h *AnalyticsHandler) StudentProgress(c *gin.Context) {
	yearID := strings.TrimSpace(c.Query("academicYearId"))
	if yearID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "academicYearId required"))
		return
	}
	out, err := h.analytics.GetStudentProgress(c.Request.Context(), c.Param("id"), yearID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, out, nil)
}

// System godoc
// @Summary Runtime counters
// @Tags Analytics
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /analytics/system [get]
func (h *AnalyticsHandler) System(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.analytics.SystemMetrics(), nil)
}
