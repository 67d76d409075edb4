package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// ---------------- Requests ----------------

type ApplyDiscountRequest struct {
	CourseID string `json:"course_id" validate:"required,uuid"`
	Code     string `json:"code" validate:"required,max=50"`
}

type CreateDiscountRequest struct {
	Code              string           `json:"code" validate:"required,min=3,max=50"`
	Description       string           `json:"description" validate:"omitempty,max=500"`
	DiscountType      string           `json:"discount_type" validate:"required,is-discount-type"`
	Value             decimal.Decimal  `json:"value" validate:"required"`
	MaxDiscountAmount *decimal.Decimal `json:"max_discount_amount,omitempty"`
	MinPurchaseAmount *decimal.Decimal `json:"min_purchase_amount,omitempty"`
	CourseID          *string          `json:"course_id,omitempty" validate:"omitempty,uuid"`
	MaxUsesPerUser    int              `json:"max_uses_per_user" validate:"omitempty,min=1"`
	UsageLimit        int              `json:"usage_limit" validate:"min=0"`
	ValidFrom         time.Time        `json:"valid_from" validate:"required"`
	ValidUntil        time.Time        `json:"valid_until" validate:"required,gtfield=ValidFrom"`
}

type DiscountListQuery struct {
	ActiveOnly bool `form:"active_only"`
}

// ---------------- Responses ----------------

// DiscountQuote - предварительный расчет, слот не резервируется.
type DiscountQuote struct {
	Code           string          `json:"code"`
	CourseID       string          `json:"course_id"`
	OriginalPrice  decimal.Decimal `json:"original_price"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	FinalPrice     decimal.Decimal `json:"final_price"`
	RemainingUses  int             `json:"remaining_uses"`
}
