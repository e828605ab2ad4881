package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/coverage-backend/internal/observability"
)

type HealthHandler struct {
	health *observability.Health
}

func NewHealthHandler(health *observability.Health) *HealthHandler {
	return &HealthHandler{health: health}
}

// HealthCheck is the liveness probe. It answers as long as the process serves.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// Ready is the readiness probe: 503 while a dependency (store, redis,
// archive) is marked unhealthy.
func (h *HealthHandler) Ready(c *gin.Context) {
	status, report := h.health.Report()
	c.JSON(status, report)
}
