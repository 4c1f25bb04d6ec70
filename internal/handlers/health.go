package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lyrasync/backend/internal/logger"
)

// Health pings the broker and reports gateway readiness
func (h *Handlers) Health(c *gin.Context) {
	if err := h.broker.Ping(c.Request.Context()); err != nil {
		logger.ErrorWithFields("Health check: broker unreachable", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":             "unavailable",
			"redis_health_check": "disconnected",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":             "OK",
		"redis_health_check": "connected",
	})
}
