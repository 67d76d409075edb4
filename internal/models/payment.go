package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	ReviewReasonAmountMismatch = "amount_mismatch"
	ReviewReasonLateSettlement = "late_settlement"
)

// Payment - одна попытка покупки курса. Amount всегда считает сервер.
type Payment struct {
	BaseModel
	TransactionRef string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_ref"`
	UserID         string          `gorm:"type:uuid;not null;index:idx_payments_user_status" json:"user_id"`
	CourseID       string          `gorm:"type:uuid;not null;index" json:"course_id"`
	OriginalPrice  decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"original_price"`
	DiscountAmount decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"discount_amount"`
	Amount         decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency       string          `gorm:"type:varchar(3);not null;default:'VND'" json:"currency"`
	DiscountID     *string         `gorm:"type:uuid;index" json:"discount_id,omitempty"`
	Status         PaymentStatus   `gorm:"type:varchar(20);not null;default:'pending';index:idx_payments_user_status;index" json:"status"`
	PaymentMethod  PaymentMethod   `gorm:"type:varchar(20);not null" json:"payment_method"`

	GatewayTransactionNo string         `json:"gateway_transaction_no,omitempty"`
	GatewayResponseCode  string         `gorm:"type:varchar(10)" json:"gateway_response_code,omitempty"`
	GatewayPayload       datatypes.JSON `json:"-"`

	NeedsReview  bool   `gorm:"not null;default:false;index" json:"needs_review"`
	ReviewReason string `json:"review_reason,omitempty"`

	DiscountReleasedAt *time.Time `json:"discount_released_at,omitempty"`
	PaidAt             *time.Time `json:"paid_at,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	ExpiredAt          *time.Time `json:"expired_at,omitempty"`
	RefundedAt         *time.Time `json:"refunded_at,omitempty"`

	ClientIP  string `json:"-"`
	UserAgent string `json:"-"`
}
