package app

import (
	"github.com/yungbote/coverage-backend/internal/http"
	httpH "github.com/yungbote/coverage-backend/internal/http/handlers"
	"github.com/yungbote/coverage-backend/internal/observability"
	"github.com/yungbote/coverage-backend/internal/platform/logger"
	"github.com/yungbote/coverage-backend/internal/services"
)

type Handlers struct {
	Health   *httpH.HealthHandler
	Coverage *httpH.CoverageHandler
}

func wireHandlers(log *logger.Logger, cfg Config, svc services.CoverageService, metrics *observability.Metrics, health *observability.Health) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:   httpH.NewHealthHandler(health),
		Coverage: httpH.NewCoverageHandler(svc, metrics, cfg.HTTP.MaxBodyBytes),
	}
}

func routerConfig(log *logger.Logger, cfg Config, h Handlers, metrics *observability.Metrics) http.RouterConfig {
	rc := http.RouterConfig{
		CoverageHandler: h.Coverage,
		HealthHandler:   h.Health,
		Log:             log,
		Metrics:         metrics,
		CORSOrigins:     cfg.CORS.Origins,
	}
	if cfg.OTel.Enabled {
		rc.ServiceName = cfg.OTel.ServiceName
	}
	return rc
}
