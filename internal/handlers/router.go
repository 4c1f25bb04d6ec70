package handlers

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes attaches the gateway's API surface to the router
func (h *Handlers) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		api.POST("/translate", h.Translate)
		api.GET("/translate/health", h.Health)
		api.GET("/results/:job_id", h.Results)
		api.GET("/files/:name", h.ServeFile)
		api.DELETE("/cleanup/:name", h.DeleteFile)
	}
}
