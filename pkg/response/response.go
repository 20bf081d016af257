// Package response writes the JSON envelope shared by every endpoint.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-exam-engine/internal/models"
	appErrors "github.com/noah-isme/sma-exam-engine/pkg/errors"
)

// Envelope is the body of every response: data or error, never both.
type Envelope struct {
	Data       interface{}            `json:"data,omitempty"`
	Error      *appErrors.Error       `json:"error,omitempty"`
	Pagination *models.Pagination     `json:"pagination,omitempty"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
}

// JSON writes a success envelope. Only the first meta map is used.
func JSON(c *gin.Context, status int, data interface{}, page *models.Pagination, meta ...map[string]interface{}) {
	write(c, status, Envelope{Data: data, Pagination: page, Meta: first(meta)})
}

// Created writes a 201 envelope.
func Created(c *gin.Context, data interface{}, meta ...map[string]interface{}) {
	write(c, http.StatusCreated, Envelope{Data: data, Meta: first(meta)})
}

// Error maps err onto its status and code. Internal failures are reported
// with a generic message; the cause stays on the gin context for logging.
func Error(c *gin.Context, err error) {
	_ = c.Error(err)
	write(c, 0, Envelope{Error: public(appErrors.FromError(err))})
}

// NoContent sends a 204 response.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func public(e *appErrors.Error) *appErrors.Error {
	if e.Status < http.StatusInternalServerError || e.Code != appErrors.ErrInternal.Code {
		return e
	}
	return appErrors.New(e.Code, e.Status, appErrors.ErrInternal.Message)
}

func write(c *gin.Context, status int, env Envelope) {
	if env.Error != nil {
		status = env.Error.Status
	}
	h := c.Writer.Header()
	h.Set("Cache-Control", "no-store")
	h.Set("Pragma", "no-cache")
	c.JSON(status, env)
}

func first(meta []map[string]interface{}) map[string]interface{} {
	if len(meta) == 0 {
		return nil
	}
	return meta[0]
}
