package services

import (
	"context"
	"errors"

	"learnhub_backend/internal/events"
	"learnhub_backend/internal/logger"
	"learnhub_backend/internal/models"
	"learnhub_backend/internal/repositories"
	"learnhub_backend/internal/services/dto"
	"learnhub_backend/pkg/apperrors"

	"gorm.io/gorm"
)

type ReviewService interface {
	// Review operations
	CreateReview(ctx context.Context, db *gorm.DB, userID string, req *dto.CreateReviewRequest) (*dto.ReviewResponse, error)
	UpdateReview(ctx context.Context, db *gorm.DB, userID, reviewID string, req *dto.UpdateReviewRequest) (*dto.ReviewResponse, error)
	GetCourseReviews(ctx context.Context, db *gorm.DB, courseID string, page, pageSize int) (*dto.ReviewListResponse, error)
	CreateReply(ctx context.Context, db *gorm.DB, userID string, role models.UserRole, reviewID string, req *dto.CreateReplyRequest) (*dto.ReviewReplyResponse, error)

	// Гейт видимости: подписчик EnrollmentStatusChanged
	ApplyEnrollmentStatus(ctx context.Context, tx *gorm.DB, evt events.EnrollmentStatusChanged) error
}

type reviewService struct {
	reviewRepo     repositories.ReviewRepository
	enrollmentRepo repositories.EnrollmentRepository
	userRepo       repositories.UserRepository
	bus            *events.Bus
}

func NewReviewService(
	reviewRepo repositories.ReviewRepository,
	enrollmentRepo repositories.EnrollmentRepository,
	userRepo repositories.UserRepository,
	bus *events.Bus,
) ReviewService {
	return &reviewService{
		reviewRepo:     reviewRepo,
		enrollmentRepo: enrollmentRepo,
		userRepo:       userRepo,
		bus:            bus,
	}
}

// ---------------- Review operations ----------------

func (s *reviewService) CreateReview(ctx context.Context, db *gorm.DB, userID string, req *dto.CreateReviewRequest) (*dto.ReviewResponse, error) {
	enrollment, err := s.enrollmentRepo.FindEnrollmentByID(db, req.EnrollmentID)
	if err != nil {
		return nil, handleRepoError(err)
	}
	if enrollment.StudentID != userID {
		return nil, apperrors.ErrInsufficientPermissions
	}
	if !enrollment.Status.GrantsAccess() {
		return nil, apperrors.ErrEnrollmentInactive
	}

	// Один отзыв на зачисление; гонку двух вставок ловит уникальный индекс
	_, err = s.reviewRepo.FindReviewByEnrollment(db, enrollment.ID)
	switch {
	case err == nil:
		return nil, apperrors.ErrReviewAlreadyExists
	case !errors.Is(err, repositories.ErrReviewNotFound):
		return nil, apperrors.DatabaseError(err)
	}

	review := &models.Review{
		EnrollmentID: enrollment.ID,
		StudentID:    enrollment.StudentID,
		CourseID:     enrollment.CourseID,
		Rating:       req.Rating,
		Comment:      req.Comment,
		IsVisible:    true,
	}
	if err := s.reviewRepo.CreateReview(db, review); err != nil {
		return nil, handleRepoError(err)
	}

	logger.CtxInfo(ctx, "Review created", "review_id", review.ID, "course_id", review.CourseID)
	return dto.NewReviewResponse(review), nil
}

// UpdateReview - автор меняет только текст и оценку, и только пока доступ есть.
func (s *reviewService) UpdateReview(ctx context.Context, db *gorm.DB, userID, reviewID string, req *dto.UpdateReviewRequest) (*dto.ReviewResponse, error) {
	review, err := s.reviewRepo.FindReviewByID(db, reviewID)
	if err != nil {
		return nil, handleRepoError(err)
	}
	if review.StudentID != userID {
		return nil, apperrors.ErrInsufficientPermissions
	}

	enrollment, err := s.enrollmentRepo.FindEnrollmentByID(db, review.EnrollmentID)
	if err != nil {
		return nil, handleRepoError(err)
	}
	if !enrollment.Status.GrantsAccess() {
		return nil, apperrors.ErrEnrollmentInactive
	}

	if req.Rating != nil {
		review.Rating = *req.Rating
	}
	if req.Comment != nil {
		review.Comment = *req.Comment
	}
	if err := s.reviewRepo.UpdateReviewContent(db, review.ID, review.Rating, review.Comment); err != nil {
		return nil, handleRepoError(err)
	}
	return dto.NewReviewResponse(review), nil
}

func (s *reviewService) GetCourseReviews(ctx context.Context, db *gorm.DB, courseID string, page, pageSize int) (*dto.ReviewListResponse, error) {
	page, pageSize = dto.NormalizePage(page, pageSize)

	reviews, total, err := s.reviewRepo.FindVisibleByCourse(db, courseID, page, pageSize)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	items := make([]*dto.ReviewResponse, 0, len(reviews))
	for i := range reviews {
		items = append(items, dto.NewReviewResponse(&reviews[i]))
	}
	return &dto.ReviewListResponse{
		Reviews:    items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: dto.TotalPages(total, pageSize),
	}, nil
}

// CreateReply - отвечает преподаватель курса или администратор.
func (s *reviewService) CreateReply(ctx context.Context, db *gorm.DB, userID string, role models.UserRole, reviewID string, req *dto.CreateReplyRequest) (*dto.ReviewReplyResponse, error) {
	review, err := s.reviewRepo.FindReviewByID(db, reviewID)
	if err != nil {
		return nil, handleRepoError(err)
	}

	if role != models.UserRoleAdmin {
		course, err := s.userRepo.FindCourseByID(db, review.CourseID)
		if err != nil {
			return nil, handleRepoError(err)
		}
		if role != models.UserRoleInstructor || course.InstructorID != userID {
			return nil, apperrors.ErrInsufficientPermissions
		}
	}

	tx := db.Begin()
	if tx.Error != nil {
		return nil, apperrors.DatabaseError(tx.Error)
	}
	defer tx.Rollback()

	reply := &models.ReviewReply{
		ReviewID: review.ID,
		AuthorID: userID,
		Text:     req.Text,
	}
	if err := s.reviewRepo.CreateReply(tx, reply); err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	err = s.bus.Publish(ctx, tx, events.Event{
		Name:     events.ReviewReplyCreated,
		EntityID: review.ID,
		UserID:   review.StudentID,
		Data: map[string]interface{}{
			"reply_id":  reply.ID,
			"course_id": review.CourseID,
		},
	})
	if err != nil {
		return nil, busError(err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	return &dto.ReviewReplyResponse{
		ID:        reply.ID,
		AuthorID:  reply.AuthorID,
		Text:      reply.Text,
		CreatedAt: reply.CreatedAt,
	}, nil
}

// ---------------- Visibility gate ----------------

// ApplyEnrollmentStatus прячет отзывы при потере доступа и возвращает их при
// восстановлении. Возвращаются только строки, скрытые этим же гейтом.
func (s *reviewService) ApplyEnrollmentStatus(ctx context.Context, tx *gorm.DB, evt events.EnrollmentStatusChanged) error {
	switch {
	case !evt.To.GrantsAccess():
		hidden, err := s.reviewRepo.HideForEnrollment(tx, evt.StudentID, evt.CourseID, models.HiddenReasonEnrollmentInactive)
		if err != nil {
			return err
		}
		if hidden > 0 {
			logger.CtxInfo(ctx, "Reviews hidden", "enrollment_id", evt.EnrollmentID, "count", hidden, "status", evt.To)
		}
	case !evt.From.GrantsAccess():
		restored, err := s.reviewRepo.RestoreForEnrollment(tx, evt.StudentID, evt.CourseID, models.HiddenReasonEnrollmentInactive)
		if err != nil {
			return err
		}
		if restored > 0 {
			logger.CtxInfo(ctx, "Reviews restored", "enrollment_id", evt.EnrollmentID, "count", restored)
		}
	}
	return nil
}
