package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestResponseMeta(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var got map[string]interface{}
	r := gin.New()
	r.GET("/cached", WithResponseMeta(), func(c *gin.Context) {
		MarkCacheHit(c, true)
		got = ResponseMeta(c)
		c.Status(http.StatusOK)
	})
	r.GET("/bare", func(c *gin.Context) {
		got = ResponseMeta(c)
		c.Status(http.StatusOK)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/cached", nil))
	assert.Equal(t, true, got["cache_hit"])
	assert.Contains(t, got, "processing_time_ms")

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/bare", nil))
	assert.Nil(t, got)
}
