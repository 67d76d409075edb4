package dto

import (
	"time"

	"learnhub_backend/internal/models"

	"github.com/shopspring/decimal"
)

// ---------------- Requests ----------------

// CreatePaymentRequest - цену клиент не передает, ее считает сервер.
type CreatePaymentRequest struct {
	CourseID      string `json:"course_id" validate:"required,uuid"`
	DiscountCode  string `json:"discount_code" validate:"omitempty,max=50"`
	PaymentMethod string `json:"payment_method" validate:"omitempty,is-payment-method"`
}

type RefundPaymentRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// ---------------- Responses ----------------

type PaymentResponse struct {
	ID             string               `json:"id"`
	TransactionRef string               `json:"transaction_ref"`
	CourseID       string               `json:"course_id"`
	OriginalPrice  decimal.Decimal      `json:"original_price"`
	DiscountAmount decimal.Decimal      `json:"discount_amount"`
	Amount         decimal.Decimal      `json:"amount"`
	Currency       string               `json:"currency"`
	Status         models.PaymentStatus `json:"status"`
	PaymentMethod  models.PaymentMethod `json:"payment_method"`
	NeedsReview    bool                 `json:"needs_review"`
	ReviewReason   string               `json:"review_reason,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	PaidAt         *time.Time           `json:"paid_at,omitempty"`
	CancelledAt    *time.Time           `json:"cancelled_at,omitempty"`
	ExpiredAt      *time.Time           `json:"expired_at,omitempty"`
	RefundedAt     *time.Time           `json:"refunded_at,omitempty"`
}

// CreatePaymentResponse - PaymentURL пустой для бесплатного пути.
type CreatePaymentResponse struct {
	Payment      *PaymentResponse `json:"payment"`
	PaymentURL   string           `json:"payment_url,omitempty"`
	EnrollmentID string           `json:"enrollment_id,omitempty"`
}

type PaymentListResponse struct {
	Payments   []*PaymentResponse `json:"payments"`
	Total      int64              `json:"total"`
	Page       int                `json:"page"`
	PageSize   int                `json:"page_size"`
	TotalPages int                `json:"total_pages"`
}

// SettleResult - исход обработки отчета шлюза.
type SettleResult struct {
	PaymentID      string               `json:"payment_id"`
	TransactionRef string               `json:"transaction_ref"`
	Status         models.PaymentStatus `json:"status"`
	// Replay - повторный отчет по уже завершенному платежу
	Replay bool `json:"replay"`
}

// IPNResponse - формат ответа, который ждет VNPay.
type IPNResponse struct {
	RspCode string `json:"RspCode"`
	Message string `json:"Message"`
}

// SweepResult - итог одного прохода свипера.
type SweepResult struct {
	Scanned int `json:"scanned"`
	Expired int `json:"expired"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

func NewPaymentResponse(p *models.Payment) *PaymentResponse {
	return &PaymentResponse{
		ID:             p.ID,
		TransactionRef: p.TransactionRef,
		CourseID:       p.CourseID,
		OriginalPrice:  p.OriginalPrice,
		DiscountAmount: p.DiscountAmount,
		Amount:         p.Amount,
		Currency:       p.Currency,
		Status:         p.Status,
		PaymentMethod:  p.PaymentMethod,
		NeedsReview:    p.NeedsReview,
		ReviewReason:   p.ReviewReason,
		CreatedAt:      p.CreatedAt,
		PaidAt:         p.PaidAt,
		CancelledAt:    p.CancelledAt,
		ExpiredAt:      p.ExpiredAt,
		RefundedAt:     p.RefundedAt,
	}
}
