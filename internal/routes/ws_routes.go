package routes

import (
	"learnhub_backend/internal/logger"
	"learnhub_backend/ws"

	"github.com/gin-gonic/gin"
)

// SetupWebSocketRoutes - поток уведомлений, только авторизованные пользователи.
// Старый путь /api/v1/ws оставлен для клиентов с общим base URL.
func SetupWebSocketRoutes(r *gin.Engine, wsHandler *ws.WebSocketHandler, authMiddleware gin.HandlerFunc) {
	wsGroup := r.Group("/ws")
	wsGroup.Use(authMiddleware)
	{
		wsGroup.GET("", wsHandler.ServeWS)
	}
	r.GET("/api/v1/ws", authMiddleware, wsHandler.ServeWS)
	logger.Info("WebSocket route /ws registered")
}
