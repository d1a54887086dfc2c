package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthHandler answers liveness probes.
type HealthHandler struct {
	common *CommonServices
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(common *CommonServices) *HealthHandler {
	return &HealthHandler{common: common}
}

// Health handles GET /health. It reports degraded when the store is
// unreachable but still answers 200 so orchestrators do not kill the
// process over a transient database blip.
func (h *HealthHandler) Health(c *gin.Context) {
	status := "ok"
	if err := h.common.store.Ping(c.Request.Context()); err != nil {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}
