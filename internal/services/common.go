package services

import (
	"errors"
	"time"

	"learnhub_backend/internal/repositories"
	"learnhub_backend/pkg/apperrors"
)

// nowUTC - единая точка времени для сервисов
func nowUTC() time.Time {
	return time.Now().UTC()
}

// handleRepoError переводит ошибки репозиториев в AppError
func handleRepoError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, repositories.ErrPaymentNotFound):
		return apperrors.ErrNotFound("payment", err)
	case errors.Is(err, repositories.ErrDiscountNotFound):
		return apperrors.ErrInvalidDiscountCode
	case errors.Is(err, repositories.ErrEnrollmentNotFound):
		return apperrors.ErrNotFound("enrollment", err)
	case errors.Is(err, repositories.ErrLessonNotFound):
		return apperrors.ErrNotFound("lesson", err)
	case errors.Is(err, repositories.ErrCertificateNotFound):
		return apperrors.ErrNotFound("certificate", err)
	case errors.Is(err, repositories.ErrReviewNotFound):
		return apperrors.ErrNotFound("review", err)
	case errors.Is(err, repositories.ErrReviewAlreadyExists):
		return apperrors.ErrReviewAlreadyExists
	case errors.Is(err, repositories.ErrNotificationNotFound):
		return apperrors.ErrNotFound("notification", err)
	case errors.Is(err, repositories.ErrUserNotFound):
		return apperrors.ErrNotFound("user", err)
	case errors.Is(err, repositories.ErrCourseNotFound):
		return apperrors.ErrNotFound("course", err)
	case errors.Is(err, repositories.ErrPaymentLocked):
		return apperrors.ErrConcurrencyNoOp
	default:
		return apperrors.DatabaseError(err)
	}
}

// busError сохраняет AppError подписчика, остальное - внутренняя ошибка.
func busError(err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperrors.InternalError(err)
}
