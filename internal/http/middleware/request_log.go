package middleware

import (
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"

	"github.com/yungbote/coverage-backend/internal/platform/ctxutil"
	"github.com/yungbote/coverage-backend/internal/platform/logger"
)

// quietRoutes are probed by load balancers and logged at debug level.
var quietRoutes = map[string]bool{
	"/healthcheck": true,
	"/readyz":      true,
}

// RequestLogger logs one line per request once the handler chain is done.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if log == nil {
			return
		}

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		fields := []interface{}{
			"method", strings.ToUpper(c.Request.Method),
			"route", path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		fields = append(fields, ctxutil.RequestIDsFrom(c.Request.Context()).LogFields()...)
		if key := c.GetHeader("Idempotency-Key"); key != "" {
			fields = append(fields, "idempotency_key", key)
		}
		if n := c.Request.ContentLength; n > 0 {
			fields = append(fields, "bytes_in", humanize.Bytes(uint64(n)))
		}
		if id := c.Writer.Header().Get("X-Submission-Id"); id != "" {
			fields = append(fields, "submission_id", id)
		}
		if errs := c.Errors.ByType(gin.ErrorTypePrivate); len(errs) > 0 {
			fields = append(fields, "error", errs.String())
		}

		switch {
		case quietRoutes[path] && status < 400:
			log.Debug("HTTP request", fields...)
		case status >= 500:
			log.Error("HTTP request", fields...)
		case status >= 400:
			log.Warn("HTTP request", fields...)
		default:
			log.Info("HTTP request", fields...)
		}
	}
}
