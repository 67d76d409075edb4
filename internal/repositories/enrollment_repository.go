package repositories

import (
	"errors"
	"time"

	"learnhub_backend/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrEnrollmentNotFound = errors.New("enrollment not found")
	ErrLessonNotFound     = errors.New("lesson not found")
)

type EnrollmentRepository interface {
	// Enrollment operations
	CreateEnrollment(db *gorm.DB, enrollment *models.Enrollment) (bool, error)
	FindEnrollmentByID(db *gorm.DB, id string) (*models.Enrollment, error)
	FindEnrollmentByStudentAndCourse(db *gorm.DB, studentID, courseID string) (*models.Enrollment, error)
	FindStudentEnrollments(db *gorm.DB, studentID string) ([]models.Enrollment, error)
	HasAccess(db *gorm.DB, studentID, courseID string) (bool, error)

	// State changes
	AttachPayment(db *gorm.DB, id, paymentID string) (bool, error)
	UpdateStatus(db *gorm.DB, id string, from, to models.EnrollmentStatus, fields map[string]interface{}) (bool, error)
	UpdateProgress(db *gorm.DB, id string, completed int, percentage decimal.Decimal, accessedAt time.Time) error

	// Lesson progress
	FindLesson(db *gorm.DB, courseID, lessonID string) (*models.Lesson, error)
	MarkLessonCompleted(db *gorm.DB, enrollmentID, lessonID string, at time.Time) error
	CountCompletedLessons(db *gorm.DB, enrollmentID string) (int64, error)
	CountCourseLessons(db *gorm.DB, courseID string) (int64, error)
}

type EnrollmentRepositoryImpl struct{}

func NewEnrollmentRepository() EnrollmentRepository {
	return &EnrollmentRepositoryImpl{}
}

// Enrollment operations

// CreateEnrollment вставляет строку, опираясь на уникальный индекс
// (student_id, course_id). false = строка уже была, ничего не создано.
func (r *EnrollmentRepositoryImpl) CreateEnrollment(db *gorm.DB, enrollment *models.Enrollment) (bool, error) {
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "student_id"}, {Name: "course_id"}},
		DoNothing: true,
	}).Create(enrollment)
	if result.Error != nil {
		if isDuplicateKey(result.Error) {
			return false, nil
		}
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *EnrollmentRepositoryImpl) FindEnrollmentByID(db *gorm.DB, id string) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	if err := db.Preload("Certificate").Take(&enrollment, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEnrollmentNotFound
		}
		return nil, err
	}
	return &enrollment, nil
}

func (r *EnrollmentRepositoryImpl) FindEnrollmentByStudentAndCourse(db *gorm.DB, studentID, courseID string) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	err := db.Where("student_id = ? AND course_id = ?", studentID, courseID).Take(&enrollment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEnrollmentNotFound
		}
		return nil, err
	}
	return &enrollment, nil
}

func (r *EnrollmentRepositoryImpl) FindStudentEnrollments(db *gorm.DB, studentID string) ([]models.Enrollment, error) {
	var enrollments []models.Enrollment
	err := db.Preload("Course").
		Where("student_id = ?", studentID).
		Order("enrolled_at DESC").
		Find(&enrollments).Error
	return enrollments, err
}

func (r *EnrollmentRepositoryImpl) HasAccess(db *gorm.DB, studentID, courseID string) (bool, error) {
	var count int64
	err := db.Model(&models.Enrollment{}).
		Where("student_id = ? AND course_id = ? AND status IN ?", studentID, courseID, []models.EnrollmentStatus{
			models.EnrollmentStatusActive,
			models.EnrollmentStatusCompleted,
		}).
		Count(&count).Error
	return count > 0, err
}

// State changes

// AttachPayment привязывает платеж, только если привязки еще нет.
func (r *EnrollmentRepositoryImpl) AttachPayment(db *gorm.DB, id, paymentID string) (bool, error) {
	result := db.Model(&models.Enrollment{}).
		Where("id = ? AND payment_id IS NULL", id).
		Update("payment_id", paymentID)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// UpdateStatus - условный переход: строка меняется, только если статус все еще from.
func (r *EnrollmentRepositoryImpl) UpdateStatus(db *gorm.DB, id string, from, to models.EnrollmentStatus, fields map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{"status": to}
	for k, v := range fields {
		updates[k] = v
	}

	result := db.Model(&models.Enrollment{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *EnrollmentRepositoryImpl) UpdateProgress(db *gorm.DB, id string, completed int, percentage decimal.Decimal, accessedAt time.Time) error {
	return db.Model(&models.Enrollment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"completed_lessons_count": completed,
			"progress_percentage":     percentage,
			"last_accessed_at":        accessedAt,
		}).Error
}

// Lesson progress

func (r *EnrollmentRepositoryImpl) FindLesson(db *gorm.DB, courseID, lessonID string) (*models.Lesson, error) {
	var lesson models.Lesson
	if err := db.Take(&lesson, "id = ? AND course_id = ?", lessonID, courseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLessonNotFound
		}
		return nil, err
	}
	return &lesson, nil
}

// MarkLessonCompleted - upsert по (enrollment_id, lesson_id). Повторное
// завершение урока ничего не меняет.
func (r *EnrollmentRepositoryImpl) MarkLessonCompleted(db *gorm.DB, enrollmentID, lessonID string, at time.Time) error {
	progress := models.LessonProgress{
		EnrollmentID: enrollmentID,
		LessonID:     lessonID,
		IsCompleted:  true,
		CompletedAt:  &at,
	}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "enrollment_id"}, {Name: "lesson_id"}},
		DoNothing: true,
	}).Create(&progress).Error
	if err != nil && !isDuplicateKey(err) {
		return err
	}
	return nil
}

func (r *EnrollmentRepositoryImpl) CountCompletedLessons(db *gorm.DB, enrollmentID string) (int64, error) {
	var count int64
	err := db.Model(&models.LessonProgress{}).
		Where("enrollment_id = ? AND is_completed = ?", enrollmentID, true).
		Count(&count).Error
	return count, err
}

func (r *EnrollmentRepositoryImpl) CountCourseLessons(db *gorm.DB, courseID string) (int64, error) {
	var count int64
	err := db.Model(&models.Lesson{}).Where("course_id = ?", courseID).Count(&count).Error
	return count, err
}
