package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-exam-engine/internal/service"
	appErrors "github.com/noah-isme/sma-exam-engine/pkg/errors"
	"github.com/noah-isme/sma-exam-engine/pkg/response"
)

// GradingSystemHandler manages grading systems.
type GradingSystemHandler struct {
	scales *service.GradingScaleService
}

// NewGradingSystemHandler constructs the handler.
func NewGradingSystemHandler(scales *service.GradingScaleService) *GradingSystemHandler {
	return &GradingSystemHandler{scales: scales}
}

// Create godoc
// @Summary Create grading system
// @Tags GradingSystems
// @Accept json
// @Produce json
// @Param payload body service.CreateGradingSystemRequest true "Grading system with bands"
// @Success 201 {object} response.Envelope
// @Router /grading-systems [post]
func (h *GradingSystemHandler) Create(c *gin.Context) {
	var req service.CreateGradingSystemRequest
	if !bindJSON(c, &req) {
		return
	}
	system, err := h.scales.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, system)
}

// List godoc
// @Summary List grading systems of an academic year
// @Tags GradingSystems
// @Produce json
// @Param academicYearId query string true "Academic year ID"
// @Success 200 {object} response.Envelope
// @Router /grading-systems [get]
func (h *GradingSystemHandler) List(c *gin.Context) {
	yearID := strings.TrimSpace(c.Query("academicYearId"))
	if yearID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "academicYearId required"))
		return
	}
	systems, err := h.scales.List(c.Request.Context(), yearID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, systems, nil)
}

// SetDefault godoc
// @Summary Make a grading system the default of its year
// @Tags GradingSystems
// @Produce json
// @Param id path string true "Grading system ID"
// @Success 200 {object} response.Envelope
// @Router /grading-systems/{id}/default [post]
func (h *GradingSystemHandler) SetDefault(c *gin.Context) {
	system, err := h.scales.SetDefault(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, system, nil)
}

// Resolve godoc
// @Summary Resolve the grade band of a percentage
// @Tags GradingSystems
// @Produce json
// @Param academicYearId query string true "Academic year ID"
// @Param percentage query number true "Percentage"
// @Success 200 {object} response.Envelope
// @Router /grading-systems/resolve [get]
func (h *GradingSystemHandler) Resolve(c *gin.Context) {
	yearID := strings.TrimSpace(c.Query("academicYearId"))
	percentage, err := strconv.ParseFloat(c.Query("percentage"), 64)
	if yearID == "" || err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "academicYearId and numeric percentage required"))
		return
	}
	band, err := h.scales.Resolve(c.Request.Context(), yearID, percentage)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, band, nil)
}
