package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/coverage-backend/internal/observability"
)

// Metrics records request counts and latency per route, plus body sizes of
// uploads. Unmatched paths share one label so scanners cannot blow up the
// series count.
func Metrics(m *observability.Metrics) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		start := time.Now()
		m.APIInflightInc()
		defer m.APIInflightDec()

		c.Next()

		m.ObserveAPI(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
		if c.Request.Method == http.MethodPost {
			m.ObserveRequestBytes(route, c.Request.ContentLength)
		}
	}
}
