package dto

import (
	"time"

	"learnhub_backend/internal/models"

	"github.com/shopspring/decimal"
)

// ---------------- Requests ----------------

// EnrollRequest - UserID задает только администратор (ручная выдача доступа).
type EnrollRequest struct {
	CourseID string `json:"course_id" validate:"required,uuid"`
	UserID   string `json:"user_id" validate:"omitempty,uuid"`
}

type UpdateEnrollmentStatusRequest struct {
	Status string `json:"status" validate:"required,is-enrollment-status"`
}

// ---------------- Responses ----------------

type EnrollmentResponse struct {
	ID                    string                  `json:"id"`
	StudentID             string                  `json:"student_id"`
	CourseID              string                  `json:"course_id"`
	CourseTitle           string                  `json:"course_title,omitempty"`
	Status                models.EnrollmentStatus `json:"status"`
	ProgressPercentage    decimal.Decimal         `json:"progress_percentage"`
	CompletedLessonsCount int                     `json:"completed_lessons_count"`
	PaymentID             *string                 `json:"payment_id,omitempty"`
	EnrolledAt            time.Time               `json:"enrolled_at"`
	CompletedAt           *time.Time              `json:"completed_at,omitempty"`
	LastAccessedAt        *time.Time              `json:"last_accessed_at,omitempty"`
	CertificateNumber     string                  `json:"certificate_number,omitempty"`
}

type CertificateResponse struct {
	CertificateNumber string    `json:"certificate_number"`
	StudentName       string    `json:"student_name"`
	CourseTitle       string    `json:"course_title"`
	InstructorName    string    `json:"instructor_name"`
	IssuedAt          time.Time `json:"issued_at"`
	VerificationURL   string    `json:"verification_url"`
	DownloadURL       string    `json:"download_url,omitempty"`
}

func NewEnrollmentResponse(e *models.Enrollment) *EnrollmentResponse {
	resp := &EnrollmentResponse{
		ID:                    e.ID,
		StudentID:             e.StudentID,
		CourseID:              e.CourseID,
		Status:                e.Status,
		ProgressPercentage:    e.ProgressPercentage,
		CompletedLessonsCount: e.CompletedLessonsCount,
		PaymentID:             e.PaymentID,
		EnrolledAt:            e.EnrolledAt,
		CompletedAt:           e.CompletedAt,
		LastAccessedAt:        e.LastAccessedAt,
	}
	if e.Course != nil {
		resp.CourseTitle = e.Course.Title
	}
	if e.Certificate != nil {
		resp.CertificateNumber = e.Certificate.CertificateNumber
	}
	return resp
}
