package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-broker/internal/telemetry"
)

// RegisterDebugRoutes wires endpoints for smoke-testing the audit pipeline.
// Off unless DEBUG_ROUTES is set; never enable in production.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), "INFO", "audit test", requestIDFromContext(c), userIDFromContext(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
