package api

import (
	"vectorsync-backend/internal/auth/delivery"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine, h *Handler) {
	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", h.Health)

		// Change notifications from the content service (shared secret, not JWT)
		webhooks := api.Group("/webhooks")
		{
			webhooks.POST("/nextcloud", h.webhookHandler.Receive)
		}

		// Sync settings (protected)
		sync := api.Group("/sync")
		sync.Use(delivery.AuthMiddleware(h.authUsecase))
		{
			sync.POST("/enable", h.settingsHandler.Enable)
			sync.POST("/disable", h.settingsHandler.Disable)
			sync.GET("/status", h.settingsHandler.Status)
		}

		// Embedding provider settings (protected)
		settings := api.Group("/settings")
		settings.Use(delivery.AuthMiddleware(h.authUsecase))
		{
			settings.GET("/embedding", h.embeddingSettings.GetEmbeddingSettings)
			settings.POST("/embedding/test", h.embeddingSettings.TestEmbeddingConnection)
		}
	}
}
