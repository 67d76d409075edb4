package repositories

import (
	"errors"
	"time"

	"learnhub_backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrDiscountNotFound      = errors.New("discount not found")
	ErrDiscountAlreadyExists = errors.New("discount code already exists")
)

type DiscountRepository interface {
	// Discount operations
	CreateDiscount(db *gorm.DB, discount *models.Discount) error
	FindDiscountByID(db *gorm.DB, id string) (*models.Discount, error)
	FindDiscountByCode(db *gorm.DB, code string) (*models.Discount, error)
	FindDiscounts(db *gorm.DB, activeOnly bool) ([]models.Discount, error)
	DeactivateDiscount(db *gorm.DB, id string) error

	// Quota operations (только атомарные UPDATE)
	TryReserve(db *gorm.DB, id string, now time.Time) (bool, error)
	Release(db *gorm.DB, id string) (bool, error)

	// Usage records
	CreateUsage(db *gorm.DB, usage *models.DiscountUsage) (bool, error)
	CountUserUsages(db *gorm.DB, discountID, userID string) (int64, error)
}

type DiscountRepositoryImpl struct{}

func NewDiscountRepository() DiscountRepository {
	return &DiscountRepositoryImpl{}
}

// Discount operations

func (r *DiscountRepositoryImpl) CreateDiscount(db *gorm.DB, discount *models.Discount) error {
	if err := db.Create(discount).Error; err != nil {
		if isDuplicateKey(err) {
			return ErrDiscountAlreadyExists
		}
		return err
	}
	return nil
}

func (r *DiscountRepositoryImpl) FindDiscountByID(db *gorm.DB, id string) (*models.Discount, error) {
	var discount models.Discount
	if err := db.Take(&discount, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDiscountNotFound
		}
		return nil, err
	}
	return &discount, nil
}

func (r *DiscountRepositoryImpl) FindDiscountByCode(db *gorm.DB, code string) (*models.Discount, error) {
	var discount models.Discount
	if err := db.Take(&discount, "code = ?", code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDiscountNotFound
		}
		return nil, err
	}
	return &discount, nil
}

func (r *DiscountRepositoryImpl) FindDiscounts(db *gorm.DB, activeOnly bool) ([]models.Discount, error) {
	var discounts []models.Discount
	query := db.Model(&models.Discount{})
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	err := query.Order("created_at DESC").Find(&discounts).Error
	return discounts, err
}

func (r *DiscountRepositoryImpl) DeactivateDiscount(db *gorm.DB, id string) error {
	result := db.Model(&models.Discount{}).Where("id = ?", id).Update("is_active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrDiscountNotFound
	}
	return nil
}

// Quota operations

// TryReserve - одно условное UPDATE: used_count растет только пока есть место
// и код действует. false = слот не получен.
func (r *DiscountRepositoryImpl) TryReserve(db *gorm.DB, id string, now time.Time) (bool, error) {
	result := db.Model(&models.Discount{}).
		Where("id = ? AND used_count < usage_limit AND is_active = ? AND valid_from <= ? AND valid_until >= ?",
			id, true, now, now).
		Update("used_count", gorm.Expr("used_count + 1"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Release - атомарный декремент с полом в 0.
func (r *DiscountRepositoryImpl) Release(db *gorm.DB, id string) (bool, error) {
	result := db.Model(&models.Discount{}).
		Where("id = ? AND used_count > 0", id).
		Update("used_count", gorm.Expr("used_count - 1"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Usage records

// CreateUsage пишет запись один раз на платеж; повтор ничего не делает.
func (r *DiscountRepositoryImpl) CreateUsage(db *gorm.DB, usage *models.DiscountUsage) (bool, error) {
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "payment_id"}},
		DoNothing: true,
	}).Create(usage)
	if result.Error != nil {
		if isDuplicateKey(result.Error) {
			return false, nil
		}
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// CountUserUsages считает платежи пользователя, которые держат или уже
// потребили слот этого кода.
func (r *DiscountRepositoryImpl) CountUserUsages(db *gorm.DB, discountID, userID string) (int64, error) {
	var count int64
	err := db.Model(&models.Payment{}).
		Where("discount_id = ? AND user_id = ? AND status IN ?", discountID, userID, []models.PaymentStatus{
			models.PaymentStatusPending,
			models.PaymentStatusCompleted,
			models.PaymentStatusRefunded,
		}).
		Count(&count).Error
	return count, err
}
