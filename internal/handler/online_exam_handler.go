package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-exam-engine/internal/service"
	"github.com/noah-isme/sma-exam-engine/pkg/response"
)

// OnlineExamHandler configures online delivery of exam slots.
type OnlineExamHandler struct {
	exams *service.OnlineExamService
}

// NewOnlineExamHandler constructs the handler.
func NewOnlineExamHandler(exams *service.OnlineExamService) *OnlineExamHandler {
	return &OnlineExamHandler{exams: exams}
}

// Create godoc
// @Summary Enable online delivery for a slot
// @Tags OnlineExams
// @Accept json
// @Produce json
// @Param payload body service.CreateOnlineExamRequest true "Online configuration"
// @Success 201 {object} response.Envelope
// @Router /online-exams [post]
func (h *OnlineExamHandler) Create(c *gin.Context) {
	var req service.CreateOnlineExamRequest
	if !bindJSON(c, &req) {
		return
	}
	exam, err := h.exams.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, exam)
}

// SetQuestions godoc
// @Summary Replace the question list
// @Tags OnlineExams
// @Accept json
// @Produce json
// @Param id path string true "Online exam ID"
// @Param payload body service.SetQuestionsRequest true "Ordered questions"
// @Success 200 {object} response.Envelope
// @Router /online-exams/{id}/questions [put]
func (h *OnlineExamHandler) SetQuestions(c *gin.Context) {
	var req service.SetQuestionsRequest
	if !bindJSON(c, &req) {
		return
	}
	slots, err := h.exams.SetQuestions(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// AutoSelect godoc
// @Summary Draw random bank questions
// @Tags OnlineExams
// @Accept json
// @Produce json
// @Param id path string true "Online exam ID"
// @Param payload body service.AutoSelectRequest true "Difficulty distribution or total"
// @Success 200 {object} response.Envelope
// @Router /online-exams/{id}/questions/auto-select [post]
func (h *OnlineExamHandler) AutoSelect(c *gin.Context) {
	var req service.AutoSelectRequest
	if !bindJSON(c, &req) {
		return
	}
	slots, err := h.exams.AutoSelect(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// Questions godoc
// @Summary List questions with answer keys
// @Tags OnlineExams
// @Produce json
// @Param id path string true "Online exam ID"
// @Success 200 {object} response.Envelope
// @Router /online-exams/{id}/questions [get]
func (h *OnlineExamHandler) Questions(c *gin.Context) {
	details, err := h.exams.Questions(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, details, nil)
}
