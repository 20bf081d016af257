package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-exam-engine/internal/models"
	"github.com/noah-isme/sma-exam-engine/internal/service"
	"github.com/noah-isme/sma-exam-engine/pkg/response"
)

// QuestionHandler manages the question bank.
type QuestionHandler struct {
	questions *service.QuestionService
}

// NewQuestionHandler constructs the handler.
func NewQuestionHandler(questions *service.QuestionService) *QuestionHandler {
	return &QuestionHandler{questions: questions}
}

// Create godoc
// @Summary Add a bank question
// @Tags Questions
// @Accept json
// @Produce json
// @Param payload body service.CreateQuestionRequest true "Question"
// @Success 201 {object} response.Envelope
// @Router /questions [post]
func (h *QuestionHandler) Create(c *gin.Context) {
	var req service.CreateQuestionRequest
	if !bindJSON(c, &req) {
		return
	}
	question, err := h.questions.Create(c.Request.Context(), req, userIDFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, question)
}

// List godoc
// @Summary List bank questions
// @Tags Questions
// @Produce json
// @Param subjectId query string false "Subject ID"
// @Param grade query string false "Grade"
// @Param type query string false "Question type"
// @Param difficulty query string false "EASY, MEDIUM or HARD"
// @Param topic query string false "Topic"
// @Param active query bool false "Only active questions"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /questions [get]
func (h *QuestionHandler) List(c *gin.Context) {
	filter := models.QuestionFilter{
		SubjectID:  c.Query("subjectId"),
		Grade:      c.Query("grade"),
		Type:       models.QuestionType(strings.ToUpper(c.Query("type"))),
		Difficulty: models.Difficulty(strings.ToUpper(c.Query("difficulty"))),
		Topic:      c.Query("topic"),
		ActiveOnly: c.Query("active") == "true",
		Page:       parseQueryInt(c, "page", 1),
		PageSize:   parseQueryInt(c, "pageSize", 50),
	}
	questions, page, err := h.questions.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, questions, page)
}
