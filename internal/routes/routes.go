package routes

import (
	"learnhub_backend/internal/handlers"
	"learnhub_backend/ws"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// RegisterRoutes регистрирует все HTTP и WebSocket маршруты.
func RegisterRoutes(
	ginRouter *gin.Engine,
	db *gorm.DB,
	appHandlers *handlers.AppHandlers,
	wsHandler *ws.WebSocketHandler,
	authMiddleware gin.HandlerFunc,
) {
	SetupPublicRoutes(ginRouter, db)

	// Регистрация HTTP API v1
	api := ginRouter.Group("/api/v1")
	{
		appHandlers.PaymentHandler.RegisterRoutes(api)
		appHandlers.DiscountHandler.RegisterRoutes(api)
		appHandlers.EnrollmentHandler.RegisterRoutes(api)
		appHandlers.ReviewHandler.RegisterRoutes(api)
		appHandlers.NotificationHandler.RegisterRoutes(api)
	}

	// Регистрация WebSocket
	SetupWebSocketRoutes(ginRouter, wsHandler, authMiddleware)
}
