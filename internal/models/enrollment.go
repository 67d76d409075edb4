package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Enrollment - доступ студента к курсу. Одна запись на пару (student, course).
type Enrollment struct {
	BaseModel
	StudentID             string           `gorm:"type:uuid;not null;uniqueIndex:idx_enrollment_student_course" json:"student_id"`
	CourseID              string           `gorm:"type:uuid;not null;uniqueIndex:idx_enrollment_student_course" json:"course_id"`
	Status                EnrollmentStatus `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	ProgressPercentage    decimal.Decimal  `gorm:"type:decimal(5,2);not null;default:0" json:"progress_percentage"`
	CompletedLessonsCount int              `gorm:"not null;default:0" json:"completed_lessons_count"`
	PaymentID             *string          `gorm:"type:uuid;index" json:"payment_id,omitempty"`
	GrantedBy             *string          `gorm:"type:uuid" json:"granted_by,omitempty"`
	EnrolledAt            time.Time        `gorm:"not null" json:"enrolled_at"`
	CompletedAt           *time.Time       `json:"completed_at,omitempty"`
	LastAccessedAt        *time.Time       `json:"last_accessed_at,omitempty"`

	Course      *Course      `gorm:"foreignKey:CourseID" json:"course,omitempty"`
	Certificate *Certificate `gorm:"foreignKey:EnrollmentID" json:"certificate,omitempty"`
}

type LessonProgress struct {
	BaseModel
	EnrollmentID string     `gorm:"type:uuid;not null;uniqueIndex:idx_progress_enrollment_lesson" json:"enrollment_id"`
	LessonID     string     `gorm:"type:uuid;not null;uniqueIndex:idx_progress_enrollment_lesson" json:"lesson_id"`
	IsCompleted  bool       `gorm:"not null" json:"is_completed"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

func (LessonProgress) TableName() string {
	return "lesson_progress"
}

type Certificate struct {
	BaseModel
	EnrollmentID      string    `gorm:"type:uuid;not null;uniqueIndex" json:"enrollment_id"`
	CertificateNumber string    `gorm:"type:varchar(40);not null;uniqueIndex" json:"certificate_number"`
	StudentName       string    `gorm:"not null" json:"student_name"`
	CourseTitle       string    `gorm:"not null" json:"course_title"`
	InstructorName    string    `json:"instructor_name"`
	IssuedAt          time.Time `gorm:"not null" json:"issued_at"`
	VerificationURL   string    `json:"verification_url"`
	FilePath          string    `json:"file_path,omitempty"`
}
