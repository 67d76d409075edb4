package models

type User struct {
	BaseModel
	Email    string   `gorm:"uniqueIndex;not null" json:"email"`
	FullName string   `gorm:"not null" json:"full_name"`
	Role     UserRole `gorm:"type:varchar(20);not null;default:'student'" json:"role"`
	IsActive bool     `gorm:"not null" json:"is_active"`
}
