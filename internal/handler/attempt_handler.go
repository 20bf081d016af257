package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-exam-engine/internal/models"
	"github.com/noah-isme/sma-exam-engine/internal/service"
	"github.com/noah-isme/sma-exam-engine/pkg/response"
)

type attemptService interface {
	Start(ctx context.Context, onlineExamID string, req service.StartAttemptRequest, actor service.Actor) (*models.Attempt, error)
	Get(ctx context.Context, attemptID string, actor service.Actor) (*models.Attempt, error)
	Autosave(ctx context.Context, attemptID string, req service.SaveResponsesRequest, actor service.Actor) (*models.Attempt, error)
	Submit(ctx context.Context, attemptID string, req service.SaveResponsesRequest, actor service.Actor) (*models.Attempt, error)
	Violation(ctx context.Context, attemptID string, req service.ViolationRequest, actor service.Actor) (*models.Attempt, error)
	Grade(ctx context.Context, attemptID string, req service.GradeAttemptRequest, actor service.Actor) (*models.Attempt, error)
	Void(ctx context.Context, attemptID string, actor service.Actor) (*models.Attempt, error)
}

// AttemptHandler drives online exam attempts.
type AttemptHandler struct {
	attempts attemptService
}

// NewAttemptHandler constructs the handler.
func NewAttemptHandler(attempts attemptService) *AttemptHandler {
	return &AttemptHandler{attempts: attempts}
}

// Start godoc
// @Summary Start an attempt
// @Description Students start their own attempt; staff may pass student_id.
// @Tags Attempts
// @Accept json
// @Produce json
// @Param id path string true "Online exam ID"
// @Param payload body service.StartAttemptRequest false "Access code"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /online-exams/{id}/attempts [post]
func (h *AttemptHandler) Start(c *gin.Context) {
	var req service.StartAttemptRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	req.SourceIP = c.ClientIP()
	attempt, err := h.attempts.Start(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, attempt)
}

// Get godoc
// @Summary Get an attempt
// @Description An expired live attempt is timed out before it is returned.
// @Tags Attempts
// @Produce json
// @Param id path string true "Attempt ID"
// @Success 200 {object} response.Envelope
// @Router /attempts/{id} [get]
func (h *AttemptHandler) Get(c *gin.Context) {
	attempt, err := h.attempts.Get(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, attempt, nil)
}

// Autosave godoc
// @Summary Save responses
// @Tags Attempts
// @Accept json
// @Produce json
// @Param id path string true "Attempt ID"
// @Param payload body service.SaveResponsesRequest true "Responses by question"
// @Success 200 {object} response.Envelope
// @Router /attempts/{id}/responses [put]
func (h *AttemptHandler) Autosave(c *gin.Context) {
	var req service.SaveResponsesRequest
	if !bindJSON(c, &req) {
		return
	}
	attempt, err := h.attempts.Autosave(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, attempt, nil)
}

// Submit godoc
// @Summary Submit an attempt
// @Tags Attempts
// @Accept json
// @Produce json
// @Param id path string true "Attempt ID"
// @Param payload body service.SaveResponsesRequest false "Final responses"
// @Success 200 {object} response.Envelope
// @Router /attempts/{id}/submit [post]
func (h *AttemptHandler) Submit(c *gin.Context) {
	var req service.SaveResponsesRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	attempt, err := h.attempts.Submit(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, attempt, nil)
}

// Violation godoc
// @Summary Record a proctoring violation
// @Tags Attempts
// @Accept json
// @Produce json
// @Param id path string true "Attempt ID"
// @Param payload body service.ViolationRequest true "Violation"
// @Success 200 {object} response.Envelope
// @Router /attempts/{id}/violations [post]
func (h *AttemptHandler) Violation(c *gin.Context) {
	var req service.ViolationRequest
	if !bindJSON(c, &req) {
		return
	}
	attempt, err := h.attempts.Violation(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, attempt, nil)
}

// Grade godoc
// @Summary Grade manual questions
// @Tags Attempts
// @Accept json
// @Produce json
// @Param id path string true "Attempt ID"
// @Param payload body service.GradeAttemptRequest true "Marks per question"
// @Success 200 {object} response.Envelope
// @Router /attempts/{id}/grade [post]
func (h *AttemptHandler) Grade(c *gin.Context) {
	var req service.GradeAttemptRequest
	if !bindJSON(c, &req) {
		return
	}
	attempt, err := h.attempts.Grade(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, attempt, nil)
}

// Void godoc
// @Summary Void an attempt
// @Tags Attempts
// @Produce json
// @Param id path string true "Attempt ID"
// @Success 200 {object} response.Envelope
// @Router /attempts/{id}/void [post]
func (h *AttemptHandler) Void(c *gin.Context) {
	attempt, err := h.attempts.Void(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, attempt, nil)
}
