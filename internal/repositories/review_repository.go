package repositories

import (
	"errors"

	"learnhub_backend/internal/models"

	"gorm.io/gorm"
)

var (
	ErrReviewNotFound      = errors.New("review not found")
	ErrReviewAlreadyExists = errors.New("review already exists for this enrollment")
)

type ReviewRepository interface {
	// Review operations
	CreateReview(db *gorm.DB, review *models.Review) error
	FindReviewByID(db *gorm.DB, id string) (*models.Review, error)
	FindReviewByEnrollment(db *gorm.DB, enrollmentID string) (*models.Review, error)
	UpdateReviewContent(db *gorm.DB, id string, rating int, comment string) error
	FindVisibleByCourse(db *gorm.DB, courseID string, page, pageSize int) ([]models.Review, int64, error)

	// Visibility (только для гейта видимости)
	HideForEnrollment(db *gorm.DB, studentID, courseID, reason string) (int64, error)
	RestoreForEnrollment(db *gorm.DB, studentID, courseID, reason string) (int64, error)

	// Replies
	CreateReply(db *gorm.DB, reply *models.ReviewReply) error
}

type ReviewRepositoryImpl struct{}

func NewReviewRepository() ReviewRepository {
	return &ReviewRepositoryImpl{}
}

// Review operations

func (r *ReviewRepositoryImpl) CreateReview(db *gorm.DB, review *models.Review) error {
	if err := db.Create(review).Error; err != nil {
		if isDuplicateKey(err) {
			return ErrReviewAlreadyExists
		}
		return err
	}
	return nil
}

func (r *ReviewRepositoryImpl) FindReviewByID(db *gorm.DB, id string) (*models.Review, error) {
	var review models.Review
	if err := db.Preload("Replies").Take(&review, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReviewNotFound
		}
		return nil, err
	}
	return &review, nil
}

func (r *ReviewRepositoryImpl) FindReviewByEnrollment(db *gorm.DB, enrollmentID string) (*models.Review, error) {
	var review models.Review
	if err := db.Take(&review, "enrollment_id = ?", enrollmentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReviewNotFound
		}
		return nil, err
	}
	return &review, nil
}

// UpdateReviewContent трогает только текст и оценку; видимость не меняется.
func (r *ReviewRepositoryImpl) UpdateReviewContent(db *gorm.DB, id string, rating int, comment string) error {
	result := db.Model(&models.Review{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"rating":  rating,
			"comment": comment,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrReviewNotFound
	}
	return nil
}

func (r *ReviewRepositoryImpl) FindVisibleByCourse(db *gorm.DB, courseID string, page, pageSize int) ([]models.Review, int64, error) {
	var reviews []models.Review
	var total int64

	query := db.Model(&models.Review{}).Where("course_id = ? AND is_visible = ?", courseID, true)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Preload("Replies").
		Scopes(paginate(page, pageSize)).
		Order("created_at DESC").
		Find(&reviews).Error
	return reviews, total, err
}

// Visibility

func (r *ReviewRepositoryImpl) HideForEnrollment(db *gorm.DB, studentID, courseID, reason string) (int64, error) {
	result := db.Model(&models.Review{}).
		Where("student_id = ? AND course_id = ? AND is_visible = ?", studentID, courseID, true).
		Updates(map[string]interface{}{
			"is_visible":    false,
			"hidden_reason": reason,
		})
	return result.RowsAffected, result.Error
}

// RestoreForEnrollment возвращает только то, что скрыли с той же причиной.
func (r *ReviewRepositoryImpl) RestoreForEnrollment(db *gorm.DB, studentID, courseID, reason string) (int64, error) {
	result := db.Model(&models.Review{}).
		Where("student_id = ? AND course_id = ? AND is_visible = ? AND hidden_reason = ?", studentID, courseID, false, reason).
		Updates(map[string]interface{}{
			"is_visible":    true,
			"hidden_reason": "",
		})
	return result.RowsAffected, result.Error
}

// Replies

func (r *ReviewRepositoryImpl) CreateReply(db *gorm.DB, reply *models.ReviewReply) error {
	return db.Create(reply).Error
}
