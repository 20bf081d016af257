package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-exam-engine/internal/models"
	"github.com/noah-isme/sma-exam-engine/internal/service"
	"github.com/noah-isme/sma-exam-engine/pkg/response"
)

type resultService interface {
	EnterResults(ctx context.Context, scheduleID string, req service.EnterResultsRequest, enteredBy string) (*service.EnterResultsSummary, error)
	ListResults(ctx context.Context, scheduleID string) ([]models.StudentExamResult, error)
}

// ResultHandler exposes result entry for exam slots.
type ResultHandler struct {
	results resultService
}

// NewResultHandler constructs the handler.
func NewResultHandler(results resultService) *ResultHandler {
	return &ResultHandler{results: results}
}

// Enter godoc
// @Summary Enter results for a slot
// @Description Applies the whole batch or nothing. Every rejected row is reported in error.details.
// @Tags Results
// @Accept json
// @Produce json
// @Param id path string true "Schedule ID"
// @Param payload body service.EnterResultsRequest true "Result rows"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /schedules/{id}/results [post]
func (h *ResultHandler) Enter(c *gin.Context) {
	var req service.EnterResultsRequest
	if !bindJSON(c, &req) {
		return
	}
	summary, err := h.results.EnterResults(c.Request.Context(), c.Param("id"), req, userIDFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// List godoc
// @Summary List results of a slot
// @Tags Results
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id}/results [get]
func (h *ResultHandler) List(c *gin.Context) {
	results, err := h.results.ListResults(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, results, nil)
}
