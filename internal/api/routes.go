package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(handler *Handler, metrics http.Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// Health check
	r.GET("/health", handler.Health)
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(metrics))
	}

	// API v1
	v1 := r.Group("/api/v1")
	{
		v1.POST("/alerts/process", handler.ProcessAlerts)
		v1.POST("/webhook/alertmanager", handler.ReceiveAlertManagerWebhook)

		v1.GET("/alerts", handler.ListAlerts)
		v1.GET("/alerts/statistics", handler.AlertStatistics)

		v1.GET("/engine/statistics", handler.EngineStatistics)
		v1.POST("/engine/reset", handler.ResetEngine)

		v1.GET("/tickets", handler.OpenTickets)
		v1.PATCH("/tickets/:id", handler.UpdateTicket)

		v1.POST("/digest", handler.SendDigest)
	}

	return r
}
