package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

type requestObserver interface {
	ObserveHTTPRequest(method, route string, status int, elapsed time.Duration)
}

// unmatchedRoute labels requests that hit no registered route.
const unmatchedRoute = "unmatched"

// Metrics records one observation per request, keyed by the route template.
// Scrapes of the metrics endpoint are not counted.
func Metrics(observer requestObserver, skip ...string) gin.HandlerFunc {
	skipped := map[string]bool{"/metrics": true}
	for _, route := range skip {
		skipped[route] = true
	}
	return func(c *gin.Context) {
		if observer == nil || skipped[c.Request.URL.Path] {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		observer.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
