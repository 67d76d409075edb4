package dto

import (
	"time"

	"learnhub_backend/internal/models"
)

// ======================
// Request DTOs
// ======================

type CreateReviewRequest struct {
	EnrollmentID string `json:"enrollment_id" validate:"required,uuid"`
	Rating       int    `json:"rating" validate:"required,min=1,max=5"`
	Comment      string `json:"comment" validate:"omitempty,max=2000"`
}

// UpdateReviewRequest - видимость сюда не входит: ее выставляет только система.
type UpdateReviewRequest struct {
	Rating  *int    `json:"rating,omitempty" validate:"omitempty,min=1,max=5"`
	Comment *string `json:"comment,omitempty" validate:"omitempty,max=2000"`
}

type CreateReplyRequest struct {
	Text string `json:"text" validate:"required,max=2000"`
}

// ======================
// Response DTOs
// ======================

type ReviewReplyResponse struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type ReviewResponse struct {
	ID        string                 `json:"id"`
	StudentID string                 `json:"student_id"`
	CourseID  string                 `json:"course_id"`
	Rating    int                    `json:"rating"`
	Comment   string                 `json:"comment"`
	IsVisible bool                   `json:"is_visible"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
	Replies   []*ReviewReplyResponse `json:"replies,omitempty"`
}

type ReviewListResponse struct {
	Reviews    []*ReviewResponse `json:"reviews"`
	Total      int64             `json:"total"`
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
	TotalPages int               `json:"total_pages"`
}

func NewReviewResponse(r *models.Review) *ReviewResponse {
	resp := &ReviewResponse{
		ID:        r.ID,
		StudentID: r.StudentID,
		CourseID:  r.CourseID,
		Rating:    r.Rating,
		Comment:   r.Comment,
		IsVisible: r.IsVisible,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	for _, reply := range r.Replies {
		resp.Replies = append(resp.Replies, &ReviewReplyResponse{
			ID:        reply.ID,
			AuthorID:  reply.AuthorID,
			Text:      reply.Text,
			CreatedAt: reply.CreatedAt,
		})
	}
	return resp
}
