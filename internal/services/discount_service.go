package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"learnhub_backend/internal/logger"
	"learnhub_backend/internal/models"
	"learnhub_backend/internal/repositories"
	"learnhub_backend/internal/services/dto"
	"learnhub_backend/pkg/apperrors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DiscountService - учет слотов промокодов. used_count меняется только
// условными UPDATE; Reserve / Release / Consume работают в tx вызывающего.
type DiscountService interface {
	// Ledger (внутри транзакции платежа)
	Reserve(ctx context.Context, tx *gorm.DB, userID string, course *models.Course, code string) (*Reservation, error)
	Release(ctx context.Context, tx *gorm.DB, payment *models.Payment) (bool, error)
	Consume(ctx context.Context, tx *gorm.DB, payment *models.Payment) error

	// Валидация без резервирования
	Quote(ctx context.Context, db *gorm.DB, userID, courseID, code string) (*dto.DiscountQuote, error)

	// Admin operations
	CreateDiscount(ctx context.Context, db *gorm.DB, req *dto.CreateDiscountRequest) (*models.Discount, error)
	ListDiscounts(ctx context.Context, db *gorm.DB, activeOnly bool) ([]models.Discount, error)
	DeactivateDiscount(ctx context.Context, db *gorm.DB, discountID string) error
}

// Reservation - полученный слот и рассчитанная скидка.
type Reservation struct {
	Discount *models.Discount
	Amount   decimal.Decimal
}

type discountService struct {
	discountRepo repositories.DiscountRepository
	paymentRepo  repositories.PaymentRepository
	userRepo     repositories.UserRepository
}

func NewDiscountService(
	discountRepo repositories.DiscountRepository,
	paymentRepo repositories.PaymentRepository,
	userRepo repositories.UserRepository,
) DiscountService {
	return &discountService{
		discountRepo: discountRepo,
		paymentRepo:  paymentRepo,
		userRepo:     userRepo,
	}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CalculateDiscount - процент от цены (с потолком max_discount_amount) или
// фиксированная сумма; никогда не больше цены и не меньше нуля.
func CalculateDiscount(d *models.Discount, price decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch d.DiscountType {
	case models.DiscountTypePercentage:
		amount = price.Mul(d.Value).Div(decimal.NewFromInt(100)).Round(2)
		if d.MaxDiscountAmount != nil && amount.GreaterThan(*d.MaxDiscountAmount) {
			amount = *d.MaxDiscountAmount
		}
	case models.DiscountTypeFixed:
		amount = d.Value
	}

	if amount.GreaterThan(price) {
		amount = price
	}
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	return amount
}

// checkApplicable - все проверки, кроме квоты.
func (s *discountService) checkApplicable(tx *gorm.DB, d *models.Discount, userID string, course *models.Course, now time.Time) error {
	if !d.IsWithinWindow(now) {
		return apperrors.ErrDiscountExpired
	}
	if d.CourseID != nil && *d.CourseID != course.ID {
		return apperrors.ErrDiscountNotApplicable
	}
	if d.MinPurchaseAmount != nil && course.Price.LessThan(*d.MinPurchaseAmount) {
		return apperrors.ErrDiscountNotApplicable
	}

	used, err := s.discountRepo.CountUserUsages(tx, d.ID, userID)
	if err != nil {
		return apperrors.DatabaseError(err)
	}
	if used >= int64(d.MaxUsesPerUser) {
		return apperrors.ErrDiscountNotApplicable
	}
	return nil
}

// ---------------- Ledger ----------------

func (s *discountService) Reserve(ctx context.Context, tx *gorm.DB, userID string, course *models.Course, code string) (*Reservation, error) {
	now := nowUTC()

	discount, err := s.discountRepo.FindDiscountByCode(tx, normalizeCode(code))
	if err != nil {
		return nil, handleRepoError(err)
	}
	if err := s.checkApplicable(tx, discount, userID, course, now); err != nil {
		return nil, err
	}

	reserved, err := s.discountRepo.TryReserve(tx, discount.ID, now)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	if !reserved {
		// Перечитываем, чтобы отличить "истек" от "закончились слоты"
		current, err := s.discountRepo.FindDiscountByID(tx, discount.ID)
		if err != nil {
			return nil, handleRepoError(err)
		}
		if !current.IsWithinWindow(now) {
			return nil, apperrors.ErrDiscountExpired
		}
		logger.CtxInfo(ctx, "Discount quota exhausted", "discount_id", discount.ID, "usage_limit", current.UsageLimit)
		return nil, apperrors.ErrQuotaExhausted
	}

	return &Reservation{
		Discount: discount,
		Amount:   CalculateDiscount(discount, course.Price),
	}, nil
}

// Release возвращает слот ровно один раз на платеж. false = возвращать
// нечего или это уже сделал кто-то другой.
func (s *discountService) Release(ctx context.Context, tx *gorm.DB, payment *models.Payment) (bool, error) {
	if payment.DiscountID == nil {
		return false, nil
	}

	marked, err := s.paymentRepo.MarkDiscountReleased(tx, payment.ID, nowUTC())
	if err != nil {
		return false, apperrors.DatabaseError(err)
	}
	if !marked {
		return false, nil
	}

	decremented, err := s.discountRepo.Release(tx, *payment.DiscountID)
	if err != nil {
		return false, apperrors.DatabaseError(err)
	}
	if !decremented {
		logger.CtxWarn(ctx, "Discount release hit zero floor", "discount_id", *payment.DiscountID, "payment_id", payment.ID)
	}
	return true, nil
}

// Consume фиксирует использование при завершении платежа. Повтор безопасен.
func (s *discountService) Consume(ctx context.Context, tx *gorm.DB, payment *models.Payment) error {
	if payment.DiscountID == nil {
		return nil
	}

	usedAt := nowUTC()
	if payment.PaidAt != nil {
		usedAt = *payment.PaidAt
	}

	_, err := s.discountRepo.CreateUsage(tx, &models.DiscountUsage{
		DiscountID:  *payment.DiscountID,
		UserID:      payment.UserID,
		CourseID:    payment.CourseID,
		PaymentID:   payment.ID,
		AmountSaved: payment.DiscountAmount,
		UsedAt:      usedAt,
	})
	if err != nil {
		return apperrors.DatabaseError(err)
	}
	return nil
}

// ---------------- Quote ----------------

func (s *discountService) Quote(ctx context.Context, db *gorm.DB, userID, courseID, code string) (*dto.DiscountQuote, error) {
	course, err := s.userRepo.FindCourseByID(db, courseID)
	if err != nil {
		return nil, handleRepoError(err)
	}

	discount, err := s.discountRepo.FindDiscountByCode(db, normalizeCode(code))
	if err != nil {
		return nil, handleRepoError(err)
	}
	if err := s.checkApplicable(db, discount, userID, course, nowUTC()); err != nil {
		return nil, err
	}
	if discount.UsedCount >= discount.UsageLimit {
		return nil, apperrors.ErrQuotaExhausted
	}

	amount := CalculateDiscount(discount, course.Price)
	return &dto.DiscountQuote{
		Code:           discount.Code,
		CourseID:       course.ID,
		OriginalPrice:  course.Price,
		DiscountAmount: amount,
		FinalPrice:     course.Price.Sub(amount),
		RemainingUses:  discount.UsageLimit - discount.UsedCount,
	}, nil
}

// ---------------- Admin ----------------

func (s *discountService) CreateDiscount(ctx context.Context, db *gorm.DB, req *dto.CreateDiscountRequest) (*models.Discount, error) {
	if !req.Value.IsPositive() {
		return nil, apperrors.ValidationError(map[string]string{"value": "must be positive"})
	}
	if models.DiscountType(req.DiscountType) == models.DiscountTypePercentage && req.Value.GreaterThan(decimal.NewFromInt(100)) {
		return nil, apperrors.ValidationError(map[string]string{"value": "percentage must not exceed 100"})
	}

	maxUses := req.MaxUsesPerUser
	if maxUses == 0 {
		maxUses = 1
	}

	discount := &models.Discount{
		Code:              normalizeCode(req.Code),
		Description:       req.Description,
		DiscountType:      models.DiscountType(req.DiscountType),
		Value:             req.Value,
		MaxDiscountAmount: req.MaxDiscountAmount,
		MinPurchaseAmount: req.MinPurchaseAmount,
		CourseID:          req.CourseID,
		MaxUsesPerUser:    maxUses,
		UsageLimit:        req.UsageLimit,
		ValidFrom:         req.ValidFrom.UTC(),
		ValidUntil:        req.ValidUntil.UTC(),
		IsActive:          true,
	}

	if err := s.discountRepo.CreateDiscount(db, discount); err != nil {
		if errors.Is(err, repositories.ErrDiscountAlreadyExists) {
			return nil, apperrors.New(apperrors.CodeAlreadyExists, "discount", "Discount code already exists", http.StatusConflict)
		}
		return nil, apperrors.DatabaseError(err)
	}

	logger.CtxInfo(ctx, "Discount created", "discount_id", discount.ID, "code", discount.Code, "usage_limit", discount.UsageLimit)
	return discount, nil
}

func (s *discountService) ListDiscounts(ctx context.Context, db *gorm.DB, activeOnly bool) ([]models.Discount, error) {
	discounts, err := s.discountRepo.FindDiscounts(db, activeOnly)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return discounts, nil
}

func (s *discountService) DeactivateDiscount(ctx context.Context, db *gorm.DB, discountID string) error {
	if err := s.discountRepo.DeactivateDiscount(db, discountID); err != nil {
		if errors.Is(err, repositories.ErrDiscountNotFound) {
			return apperrors.ErrNotFound("discount", err)
		}
		return apperrors.DatabaseError(err)
	}
	logger.CtxInfo(ctx, "Discount deactivated", "discount_id", discountID)
	return nil
}
