package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Discount - промокод с конечной квотой использований.
// used_count меняется только атомарными UPDATE, см. DiscountRepository.
type Discount struct {
	BaseModel
	Code              string           `gorm:"uniqueIndex;not null" json:"code"`
	Description       string           `json:"description"`
	DiscountType      DiscountType     `gorm:"type:varchar(20);not null" json:"discount_type"`
	Value             decimal.Decimal  `gorm:"type:decimal(12,2);not null" json:"value"`
	MaxDiscountAmount *decimal.Decimal `gorm:"type:decimal(12,2)" json:"max_discount_amount,omitempty"`
	MinPurchaseAmount *decimal.Decimal `gorm:"type:decimal(12,2)" json:"min_purchase_amount,omitempty"`
	CourseID          *string          `gorm:"type:uuid;index" json:"course_id,omitempty"` // nil = все курсы
	MaxUsesPerUser    int              `gorm:"not null;default:1" json:"max_uses_per_user"`
	UsageLimit        int              `gorm:"not null;check:usage_limit >= 0" json:"usage_limit"`
	UsedCount         int              `gorm:"not null;default:0;check:used_count >= 0" json:"used_count"`
	ValidFrom         time.Time        `gorm:"not null" json:"valid_from"`
	ValidUntil        time.Time        `gorm:"not null" json:"valid_until"`
	IsActive          bool             `gorm:"not null" json:"is_active"`
}

// IsWithinWindow - активен и попадает в окно действия.
func (d *Discount) IsWithinWindow(now time.Time) bool {
	return d.IsActive && !now.Before(d.ValidFrom) && !now.After(d.ValidUntil)
}

// DiscountUsage фиксирует потребленный слот: пишется один раз, когда платеж завершен.
type DiscountUsage struct {
	BaseModel
	DiscountID  string          `gorm:"type:uuid;not null;index" json:"discount_id"`
	UserID      string          `gorm:"type:uuid;not null;index" json:"user_id"`
	CourseID    string          `gorm:"type:uuid;not null" json:"course_id"`
	PaymentID   string          `gorm:"type:uuid;not null;uniqueIndex" json:"payment_id"`
	AmountSaved decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount_saved"`
	UsedAt      time.Time       `gorm:"not null" json:"used_at"`
}
