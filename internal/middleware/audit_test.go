package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/sma-exam-engine/internal/models"
)

func TestAuditLogsSuccessfulMutations(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.InfoLevel)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})
	}, Audit(zap.New(core)))
	r.POST("/exams/:id/publish", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/exams/:id/status", func(c *gin.Context) { c.Status(http.StatusConflict) })
	r.GET("/exams/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodPost, "/exams/exam-1/publish", nil),
		httptest.NewRequest(http.MethodPost, "/exams/exam-1/status", nil),
		httptest.NewRequest(http.MethodGet, "/exams/exam-1", nil),
	} {
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "/exams/:id/publish", fields["route"])
	assert.Equal(t, "admin-1", fields["actor_id"])
	assert.Equal(t, "ADMIN", fields["role"])
}
