package repositories

import (
	"errors"

	"learnhub_backend/internal/models"

	"gorm.io/gorm"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrCourseNotFound    = errors.New("course not found")
)

// UserRepository - пользователи и курсы нужны движку только для чтения
// (цена, название, преподаватель, is_active). Create оставлен для сидов и тестов.
type UserRepository interface {
	// User operations
	CreateUser(db *gorm.DB, user *models.User) error
	FindUserByID(db *gorm.DB, id string) (*models.User, error)
	FindUserByEmail(db *gorm.DB, email string) (*models.User, error)

	// Course operations
	CreateCourse(db *gorm.DB, course *models.Course) error
	FindCourseByID(db *gorm.DB, id string) (*models.Course, error)
}

type UserRepositoryImpl struct{}

func NewUserRepository() UserRepository {
	return &UserRepositoryImpl{}
}

// User operations

func (r *UserRepositoryImpl) CreateUser(db *gorm.DB, user *models.User) error {
	if err := db.Create(user).Error; err != nil {
		if isDuplicateKey(err) {
			return ErrUserAlreadyExists
		}
		return err
	}
	return nil
}

func (r *UserRepositoryImpl) FindUserByID(db *gorm.DB, id string) (*models.User, error) {
	var user models.User
	if err := db.Take(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *UserRepositoryImpl) FindUserByEmail(db *gorm.DB, email string) (*models.User, error) {
	var user models.User
	if err := db.Take(&user, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// Course operations

func (r *UserRepositoryImpl) CreateCourse(db *gorm.DB, course *models.Course) error {
	return db.Create(course).Error
}

func (r *UserRepositoryImpl) FindCourseByID(db *gorm.DB, id string) (*models.Course, error) {
	var course models.Course
	if err := db.Preload("Instructor").Take(&course, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCourseNotFound
		}
		return nil, err
	}
	return &course, nil
}
