package services

import (
	"context"

	"learnhub_backend/internal/events"
	"learnhub_backend/internal/logger"
	"learnhub_backend/internal/models"
	"learnhub_backend/internal/repositories"
	"learnhub_backend/internal/services/dto"
	"learnhub_backend/pkg/apperrors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ProgressService interface {
	CompleteLesson(ctx context.Context, db *gorm.DB, userID, enrollmentID, lessonID string) (*dto.EnrollmentResponse, error)
	OnProgress(ctx context.Context, tx *gorm.DB, enrollment *models.Enrollment) error
}

type progressService struct {
	enrollmentRepo    repositories.EnrollmentRepository
	enrollmentService EnrollmentService
	bus               *events.Bus
}

func NewProgressService(
	enrollmentRepo repositories.EnrollmentRepository,
	enrollmentService EnrollmentService,
	bus *events.Bus,
) ProgressService {
	return &progressService{
		enrollmentRepo:    enrollmentRepo,
		enrollmentService: enrollmentService,
		bus:               bus,
	}
}

var hundred = decimal.NewFromInt(100)

// progressPercentage - completed*100/total, 2 знака, не больше 100.
func progressPercentage(completed, total int64) decimal.Decimal {
	if total <= 0 {
		return decimal.Zero
	}
	pct := decimal.NewFromInt(completed).Mul(hundred).Div(decimal.NewFromInt(total)).Round(2)
	if pct.GreaterThan(hundred) {
		return hundred
	}
	return pct
}

func (s *progressService) CompleteLesson(ctx context.Context, db *gorm.DB, userID, enrollmentID, lessonID string) (*dto.EnrollmentResponse, error) {
	tx := db.Begin()
	if tx.Error != nil {
		return nil, apperrors.DatabaseError(tx.Error)
	}
	defer tx.Rollback()

	enrollment, err := s.enrollmentRepo.FindEnrollmentByID(tx, enrollmentID)
	if err != nil {
		return nil, handleRepoError(err)
	}
	if enrollment.StudentID != userID {
		return nil, apperrors.ErrInsufficientPermissions
	}
	if !enrollment.Status.GrantsAccess() {
		return nil, apperrors.ErrEnrollmentInactive
	}

	if _, err := s.enrollmentRepo.FindLesson(tx, enrollment.CourseID, lessonID); err != nil {
		return nil, handleRepoError(err)
	}

	now := nowUTC()
	if err := s.enrollmentRepo.MarkLessonCompleted(tx, enrollment.ID, lessonID, now); err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	completed, err := s.enrollmentRepo.CountCompletedLessons(tx, enrollment.ID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	total, err := s.enrollmentRepo.CountCourseLessons(tx, enrollment.CourseID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	pct := progressPercentage(completed, total)
	if err := s.enrollmentRepo.UpdateProgress(tx, enrollment.ID, int(completed), pct, now); err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	enrollment.CompletedLessonsCount = int(completed)
	enrollment.ProgressPercentage = pct
	enrollment.LastAccessedAt = &now

	if err := s.OnProgress(ctx, tx, enrollment); err != nil {
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	s.enrollmentService.Invalidate(ctx, enrollment.StudentID)

	logger.CtxDebug(ctx, "Lesson completed",
		"enrollment_id", enrollment.ID,
		"lesson_id", lessonID,
		"progress", pct.String(),
	)
	return dto.NewEnrollmentResponse(enrollment), nil
}

// OnProgress завершает зачисление на 100%. Сертификат ставится в очередь
// подписчиком enrollment.completed в этой же транзакции.
func (s *progressService) OnProgress(ctx context.Context, tx *gorm.DB, enrollment *models.Enrollment) error {
	if enrollment.Status != models.EnrollmentStatusActive || enrollment.ProgressPercentage.LessThan(hundred) {
		return nil
	}

	err := s.enrollmentService.ChangeStatus(ctx, tx, enrollment, models.EnrollmentStatusCompleted)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeConcurrencyNoOp) {
			return nil
		}
		return err
	}

	err = s.bus.Publish(ctx, tx, events.Event{
		Name:     events.EnrollmentCompleted,
		EntityID: enrollment.ID,
		UserID:   enrollment.StudentID,
		Data:     map[string]interface{}{"course_id": enrollment.CourseID},
	})
	if err != nil {
		return busError(err)
	}
	return nil
}
