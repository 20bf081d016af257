package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-exam-engine/internal/models"
	"github.com/noah-isme/sma-exam-engine/internal/service"
	appErrors "github.com/noah-isme/sma-exam-engine/pkg/errors"
	"github.com/noah-isme/sma-exam-engine/pkg/response"
)

type examService interface {
	Create(ctx context.Context, req service.CreateExamRequest, createdBy string) (*service.ExamCreated, error)
	Update(ctx context.Context, id string, req service.UpdateExamRequest) (*models.Exam, error)
	Get(ctx context.Context, id string) (*models.Exam, error)
	List(ctx context.Context, filter models.ExamFilter) ([]models.Exam, *models.Pagination, error)
	Publish(ctx context.Context, id string) (*models.Exam, error)
	Transition(ctx context.Context, id string, next models.ExamStatus) (*models.Exam, error)
}

type examScheduleService interface {
	Schedule(ctx context.Context, examID string, req service.ScheduleExamRequest) ([]models.ExamSchedule, error)
	List(ctx context.Context, examID string, activeOnly bool) ([]models.ScheduleContext, error)
	Deactivate(ctx context.Context, id string) error
}

type rankRecomputer interface {
	Recompute(ctx context.Context, examID string) (*service.RecomputeSummary, error)
}

// ExamHandler exposes the exam lifecycle and scheduling.
type ExamHandler struct {
	exams     examService
	schedules examScheduleService
	ranking   rankRecomputer
}

// NewExamHandler constructs the handler.
func NewExamHandler(exams examService, schedules examScheduleService, ranking rankRecomputer) *ExamHandler {
	return &ExamHandler{exams: exams, schedules: schedules, ranking: ranking}
}

// TransitionRequest moves an exam to another lifecycle status.
type TransitionRequest struct {
	Status string `json:"status" binding:"required"`
}

// Create godoc
// @Summary Create exam
// @Tags Exams
// @Accept json
// @Produce json
// @Param payload body service.CreateExamRequest true "Exam payload"
// @Success 201 {object} response.Envelope
// @Router /exams [post]
func (h *ExamHandler) Create(c *gin.Context) {
	var req service.CreateExamRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.exams.Create(c.Request.Context(), req, userIDFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	var meta map[string]interface{}
	if len(out.Warnings) > 0 {
		meta = map[string]interface{}{"warnings": out.Warnings}
	}
	response.Created(c, out.Exam, meta)
}

// Update godoc
// @Summary Update exam
// @Tags Exams
// @Accept json
// @Produce json
// @Param id path string true "Exam ID"
// @Param payload body service.UpdateExamRequest true "Changes"
// @Success 200 {object} response.Envelope
// @Router /exams/{id} [put]
func (h *ExamHandler) Update(c *gin.Context) {
	var req service.UpdateExamRequest
	if !bindJSON(c, &req) {
		return
	}
	exam, err := h.exams.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exam, nil)
}

// Get godoc
// @Summary Get exam
// @Tags Exams
// @Produce json
// @Param id path string true "Exam ID"
// @Success 200 {object} response.Envelope
// @Router /exams/{id} [get]
func (h *ExamHandler) Get(c *gin.Context) {
	exam, err := h.exams.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exam, nil)
}

// List godoc
// @Summary List exams
// @Tags Exams
// @Produce json
// @Param termId query string false "Term ID"
// @Param academicYearId query string false "Academic year ID"
// @Param status query string false "Exam status"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /exams [get]
func (h *ExamHandler) List(c *gin.Context) {
	filter := models.ExamFilter{
		AcademicYearID: c.Query("academicYearId"),
		TermID:         c.Query("termId"),
		Status:         models.ExamStatus(strings.ToUpper(c.Query("status"))),
		Page:           parseQueryInt(c, "page", 1),
		PageSize:       parseQueryInt(c, "pageSize", 20),
	}
	exams, page, err := h.exams.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exams, page)
}

// Publish godoc
// @Summary Publish exam
// @Description Makes a scheduled exam visible and arms reminders for future slots.
// @Tags Exams
// @Produce json
// @Param id path string true "Exam ID"
// @Success 200 {object} response.Envelope
// @Router /exams/{id}/publish [post]
func (h *ExamHandler) Publish(c *gin.Context) {
	exam, err := h.exams.Publish(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exam, nil)
}

// Transition godoc
// @Summary Change exam status
// @Tags Exams
// @Accept json
// @Produce json
// @Param id path string true "Exam ID"
// @Param payload body TransitionRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Router /exams/{id}/status [post]
func (h *ExamHandler) Transition(c *gin.Context) {
	var req TransitionRequest
	if !bindJSON(c, &req) {
		return
	}
	exam, err := h.exams.Transition(c.Request.Context(), c.Param("id"), models.ExamStatus(strings.ToUpper(req.Status)))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, exam, nil)
}

// Schedule godoc
// @Summary Schedule exam slots
// @Description Accepts the batch only when no slot conflicts with existing slots or with another slot of the batch.
// @Tags Exams
// @Accept json
// @Produce json
// @Param id path string true "Exam ID"
// @Param payload body service.ScheduleExamRequest true "Proposed slots"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /exams/{id}/schedules [post]
func (h *ExamHandler) Schedule(c *gin.Context) {
	var req service.ScheduleExamRequest
	if !bindJSON(c, &req) {
		return
	}
	slots, err := h.schedules.Schedule(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, slots)
}

// Schedules godoc
// @Summary List exam slots
// @Tags Exams
// @Produce json
// @Param id path string true "Exam ID"
// @Param all query bool false "Include inactive slots"
// @Success 200 {object} response.Envelope
// @Router /exams/{id}/schedules [get]
func (h *ExamHandler) Schedules(c *gin.Context) {
	slots, err := h.schedules.List(c.Request.Context(), c.Param("id"), c.Query("all") != "true")
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// DeactivateSchedule godoc
// @Summary Deactivate an exam slot
// @Tags Exams
// @Param id path string true "Schedule ID"
// @Success 204
// @Router /schedules/{id} [delete]
func (h *ExamHandler) DeactivateSchedule(c *gin.Context) {
	if err := h.schedules.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// RecomputeRanks godoc
// @Summary Recompute ranks for every slot of an exam
// @Tags Exams
// @Produce json
// @Param id path string true "Exam ID"
// @Success 200 {object} response.Envelope
// @Router /exams/{id}/ranks/recompute [post]
func (h *ExamHandler) RecomputeRanks(c *gin.Context) {
	if h.ranking == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrDependency, "ranking unavailable"))
		return
	}
	summary, err := h.ranking.Recompute(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
