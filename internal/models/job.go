package models

import (
	"time"

	"gorm.io/datatypes"
)

// Job - отложенная задача. Пара (kind, key) уникальна: повторная постановка
// той же задачи ничего не делает.
type Job struct {
	BaseModel
	Kind        string         `gorm:"type:varchar(50);not null;uniqueIndex:idx_jobs_kind_key" json:"kind"`
	Key         string         `gorm:"type:varchar(100);not null;uniqueIndex:idx_jobs_kind_key" json:"key"`
	Payload     datatypes.JSON `json:"payload,omitempty"`
	Status      JobStatus      `gorm:"type:varchar(20);not null;default:'queued';index:idx_jobs_status_run_at" json:"status"`
	Attempts    int            `gorm:"not null;default:0" json:"attempts"`
	MaxAttempts int            `gorm:"not null;default:5" json:"max_attempts"`
	RunAt       time.Time      `gorm:"not null;index:idx_jobs_status_run_at" json:"run_at"`
	LockedAt    *time.Time     `json:"locked_at,omitempty"`
	LastError   string         `json:"last_error,omitempty"`
}
