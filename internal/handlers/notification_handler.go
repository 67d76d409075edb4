package handlers

import (
	"net/http"

	"learnhub_backend/internal/services"
	"learnhub_backend/internal/services/dto"

	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	*BaseHandler
	notificationService services.NotificationService
}

func NewNotificationHandler(base *BaseHandler, notificationService services.NotificationService) *NotificationHandler {
	return &NotificationHandler{
		BaseHandler:         base,
		notificationService: notificationService,
	}
}

func (h *NotificationHandler) RegisterRoutes(r *gin.RouterGroup) {
	// Protected routes - All authenticated users
	notifications := r.Group("/notifications")
	notifications.Use(h.RequireAuth())
	{
		notifications.GET("", h.GetUserNotifications)
		notifications.PUT("/:id/read", h.MarkAsRead)
	}
}

func (h *NotificationHandler) GetUserNotifications(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	var query dto.NotificationListQuery
	if !h.BindAndValidate_Query(c, &query) {
		return
	}
	page, pageSize := ParsePagination(c)

	response, err := h.notificationService.GetUserNotifications(c.Request.Context(), h.GetDB(c), userID, query.UnreadOnly, page, pageSize)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	if err := h.notificationService.MarkAsRead(c.Request.Context(), h.GetDB(c), userID, c.Param("id")); err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Notification marked as read"})
}
