package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// GetHealth is the unauthenticated liveness surface polled by monitoring.
func (h *Handler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"connections": h.relay.Registry().Count(),
		"uptime":      time.Since(h.startedAt).Round(time.Second).String(),
	})
}
