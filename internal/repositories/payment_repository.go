package repositories

import (
	"errors"
	"time"

	"learnhub_backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrPaymentLocked - строка существует, но ее держит другая транзакция
	ErrPaymentLocked = errors.New("payment row is locked by another transaction")
)

type PaymentRepository interface {
	// Payment operations
	CreatePayment(db *gorm.DB, payment *models.Payment) error
	FindPaymentByID(db *gorm.DB, id string) (*models.Payment, error)
	FindPaymentByRef(db *gorm.DB, ref string) (*models.Payment, error)
	FindUserPayments(db *gorm.DB, userID string, page, pageSize int) ([]models.Payment, int64, error)
	FindFlaggedPayments(db *gorm.DB, page, pageSize int) ([]models.Payment, int64, error)

	// Locking (FOR UPDATE SKIP LOCKED, без ожидания)
	LockPaymentByID(db *gorm.DB, id string) (*models.Payment, error)
	LockPaymentByRef(db *gorm.DB, ref string) (*models.Payment, error)

	// State changes (всегда с проверкой ожидаемого статуса)
	TransitionStatus(db *gorm.DB, id string, from, to models.PaymentStatus, fields map[string]interface{}) (bool, error)
	FlagForReview(db *gorm.DB, id, reason string) error
	MarkDiscountReleased(db *gorm.DB, id string, at time.Time) (bool, error)

	// Sweeper
	FindStalePendingIDs(db *gorm.DB, cutoff time.Time, limit int) ([]string, error)
}

type PaymentRepositoryImpl struct{}

func NewPaymentRepository() PaymentRepository {
	return &PaymentRepositoryImpl{}
}

// Payment operations

func (r *PaymentRepositoryImpl) CreatePayment(db *gorm.DB, payment *models.Payment) error {
	return db.Create(payment).Error
}

func (r *PaymentRepositoryImpl) FindPaymentByID(db *gorm.DB, id string) (*models.Payment, error) {
	return r.findOne(db, "id = ?", id)
}

func (r *PaymentRepositoryImpl) FindPaymentByRef(db *gorm.DB, ref string) (*models.Payment, error) {
	return r.findOne(db, "transaction_ref = ?", ref)
}

func (r *PaymentRepositoryImpl) findOne(db *gorm.DB, query string, arg interface{}) (*models.Payment, error) {
	var payment models.Payment
	if err := db.Where(query, arg).Take(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

func (r *PaymentRepositoryImpl) FindUserPayments(db *gorm.DB, userID string, page, pageSize int) ([]models.Payment, int64, error) {
	var payments []models.Payment
	var total int64

	query := db.Model(&models.Payment{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Scopes(paginate(page, pageSize)).Order("created_at DESC").Find(&payments).Error
	return payments, total, err
}

func (r *PaymentRepositoryImpl) FindFlaggedPayments(db *gorm.DB, page, pageSize int) ([]models.Payment, int64, error) {
	var payments []models.Payment
	var total int64

	query := db.Model(&models.Payment{}).Where("needs_review = ?", true)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Scopes(paginate(page, pageSize)).Order("created_at ASC").Find(&payments).Error
	return payments, total, err
}

// Locking

func (r *PaymentRepositoryImpl) LockPaymentByID(db *gorm.DB, id string) (*models.Payment, error) {
	return r.lockOne(db, "id = ?", id)
}

func (r *PaymentRepositoryImpl) LockPaymentByRef(db *gorm.DB, ref string) (*models.Payment, error) {
	return r.lockOne(db, "transaction_ref = ?", ref)
}

// lockOne берет строку под FOR UPDATE SKIP LOCKED. Пустой результат
// неоднозначен: строки нет или ее держат. Второй запрос без блокировки
// это различает.
func (r *PaymentRepositoryImpl) lockOne(db *gorm.DB, query string, arg interface{}) (*models.Payment, error) {
	var payment models.Payment
	err := db.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where(query, arg).
		Take(&payment).Error
	if err == nil {
		return &payment, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var count int64
	if err := db.Model(&models.Payment{}).Where(query, arg).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrPaymentLocked
	}
	return nil, ErrPaymentNotFound
}

// State changes

// TransitionStatus меняет статус только если он все еще равен from.
// false = кто-то успел раньше.
func (r *PaymentRepositoryImpl) TransitionStatus(db *gorm.DB, id string, from, to models.PaymentStatus, fields map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{"status": to}
	for k, v := range fields {
		updates[k] = v
	}

	result := db.Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *PaymentRepositoryImpl) FlagForReview(db *gorm.DB, id, reason string) error {
	return db.Model(&models.Payment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"needs_review":  true,
			"review_reason": reason,
		}).Error
}

// MarkDiscountReleased - маркер "слот уже возвращен". Срабатывает ровно один
// раз на платеж; только после него можно декрементить used_count.
func (r *PaymentRepositoryImpl) MarkDiscountReleased(db *gorm.DB, id string, at time.Time) (bool, error) {
	result := db.Model(&models.Payment{}).
		Where("id = ? AND discount_id IS NOT NULL AND discount_released_at IS NULL", id).
		Update("discount_released_at", at)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Sweeper

// FindStalePendingIDs - кандидаты на истечение. Помеченные к ручной проверке
// (needs_review) не истекают автоматически.
func (r *PaymentRepositoryImpl) FindStalePendingIDs(db *gorm.DB, cutoff time.Time, limit int) ([]string, error) {
	var ids []string
	err := db.Model(&models.Payment{}).
		Where("status = ? AND created_at < ? AND needs_review = ?", models.PaymentStatusPending, cutoff, false).
		Order("created_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}
