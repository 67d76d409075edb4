package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification - outbox-запись на каждое доменное событие и получателя.
type Notification struct {
	BaseModel
	UserID      string         `gorm:"type:uuid;not null;index" json:"user_id"`
	Type        string         `gorm:"type:varchar(50);not null" json:"type"` // "payment.completed", "enrollment.created", ...
	EntityID    string         `gorm:"type:uuid" json:"entity_id"`
	Title       string         `gorm:"not null" json:"title"`
	Message     string         `json:"message"`
	Data        datatypes.JSON `json:"data,omitempty"`
	IsRead      bool           `gorm:"not null" json:"is_read"`
	ReadAt      *time.Time     `json:"read_at,omitempty"`
	DeliveredAt *time.Time     `json:"delivered_at,omitempty"`
}
