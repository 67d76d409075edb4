package models

import "github.com/shopspring/decimal"

type Course struct {
	BaseModel
	Title        string          `gorm:"not null" json:"title"`
	InstructorID string          `gorm:"type:uuid;not null;index" json:"instructor_id"`
	Price        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	IsPublished  bool            `gorm:"not null;default:false" json:"is_published"`

	Instructor *User    `gorm:"foreignKey:InstructorID" json:"instructor,omitempty"`
	Lessons    []Lesson `gorm:"foreignKey:CourseID" json:"lessons,omitempty"`
}

type Lesson struct {
	BaseModel
	CourseID string `gorm:"type:uuid;not null;index" json:"course_id"`
	Title    string `gorm:"not null" json:"title"`
	Position int    `gorm:"not null;default:0" json:"position"`
}
