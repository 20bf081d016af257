package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-exam-engine/pkg/middleware/requestid"
)

const (
	metaStartKey    = "meta.started_at"
	metaCacheHitKey = "meta.cache_hit"
)

// WithResponseMeta stamps the request start so handlers can report timing in the envelope.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(metaStartKey, time.Now())
		c.Next()
	}
}

// MarkCacheHit records whether the payload came from the analytics cache.
func MarkCacheHit(c *gin.Context, hit bool) {
	c.Set(metaCacheHitKey, hit)
}

// ResponseMeta assembles the envelope meta block for the current request.
// It returns nil when WithResponseMeta is not installed.
func ResponseMeta(c *gin.Context) map[string]interface{} {
	value, ok := c.Get(metaStartKey)
	if !ok {
		return nil
	}
	meta := map[string]interface{}{}
	if started, ok := value.(time.Time); ok {
		meta["processing_time_ms"] = time.Since(started).Milliseconds()
	}
	if id := requestid.Value(c); id != "" {
		meta["request_id"] = id
	}
	if hit, ok := c.Get(metaCacheHitKey); ok {
		meta["cache_hit"] = hit
	}
	return meta
}
