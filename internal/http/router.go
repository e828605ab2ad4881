package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/coverage-backend/internal/http/handlers"
	httpMW "github.com/yungbote/coverage-backend/internal/http/middleware"
	"github.com/yungbote/coverage-backend/internal/observability"
	"github.com/yungbote/coverage-backend/internal/platform/logger"
)

type RouterConfig struct {
	CoverageHandler *httpH.CoverageHandler
	HealthHandler   *httpH.HealthHandler

	Log         *logger.Logger
	Metrics     *observability.Metrics
	CORSOrigins []string
	// ServiceName names the server spans; tracing middleware is skipped when empty.
	ServiceName string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	if cfg.Log != nil {
		r.Use(httpMW.RequestLogger(cfg.Log))
	}
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}

	if cfg.CoverageHandler != nil {
		// Unversioned alias kept for older uploaders.
		r.POST("/test", cfg.CoverageHandler.Test)

		v0 := r.Group("/v0")
		{
			v0.GET("/ping", cfg.CoverageHandler.Ping)
			v0.POST("/test", cfg.CoverageHandler.Test)
			v0.GET("/reports/:organisation/:commit", cfg.CoverageHandler.Report)
		}
	}

	return r
}
