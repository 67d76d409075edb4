package dto

import (
	"time"

	"learnhub_backend/internal/models"
)

// ---------------- Requests ----------------

type NotificationListQuery struct {
	UnreadOnly bool `form:"unread_only"`
}

// ---------------- Responses ----------------

type NotificationResponse struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	EntityID  string                 `json:"entity_id,omitempty"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	IsRead    bool                   `json:"is_read"`
	ReadAt    *time.Time             `json:"read_at,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

type NotificationListResponse struct {
	Notifications []*NotificationResponse `json:"notifications"`
	Total         int64                   `json:"total"`
	Unread        int64                   `json:"unread"`
	Page          int                     `json:"page"`
	PageSize      int                     `json:"page_size"`
}

// PushMessage - то, что уходит в websocket.
type PushMessage struct {
	Type         string                `json:"type"`
	Notification *NotificationResponse `json:"notification"`
}

func NewNotificationResponse(n *models.Notification, data map[string]interface{}) *NotificationResponse {
	return &NotificationResponse{
		ID:        n.ID,
		Type:      n.Type,
		EntityID:  n.EntityID,
		Title:     n.Title,
		Message:   n.Message,
		Data:      data,
		IsRead:    n.IsRead,
		ReadAt:    n.ReadAt,
		CreatedAt: n.CreatedAt,
	}
}
