package apperrors

import (
	"fmt"
	"net/http"
)

// =========================================================================
// Фабрики
// =========================================================================

// ErrNotFound - ресурс не найден (404)
func ErrNotFound(domain string, err error) *AppError {
	return Wrap(err, CodeNotFound, domain, fmt.Sprintf("%s not found", domain), http.StatusNotFound)
}

// ErrInvalidTransition - запрещенный переход статуса (409)
func ErrInvalidTransition(domain string, from, to string) *AppError {
	return New(CodeInvalidTransition, domain,
		fmt.Sprintf("transition %s -> %s is not allowed", from, to),
		http.StatusConflict,
	).WithDetails(map[string]string{"from": from, "to": to})
}

// ErrSecurityViolation - нарушение, при котором операция закрывается без побочных эффектов
func ErrSecurityViolation(domain, message string) *AppError {
	return New(CodeSecurityViolation, domain, message, http.StatusBadRequest)
}

// =========================================================================
// Предопределенные ошибки
// =========================================================================

// --- Discounts ---

var ErrQuotaExhausted = New(
	CodeQuotaExhausted,
	"discount",
	"This discount code has reached its usage limit",
	http.StatusConflict,
)

var ErrDiscountExpired = New(
	CodeDiscountExpired,
	"discount",
	"This discount code is expired or inactive",
	http.StatusConflict,
)

var ErrDiscountNotApplicable = New(
	CodeDiscountNotApplicable,
	"discount",
	"This discount code cannot be applied to this purchase",
	http.StatusBadRequest,
)

var ErrInvalidDiscountCode = New(
	CodeValidationFailed,
	"discount",
	"Invalid discount code",
	http.StatusBadRequest,
)

// --- Payments ---

// ErrAmountMismatch - сумма из шлюза не совпадает с суммой платежа.
// Платеж остается pending и помечается на ручную проверку.
var ErrAmountMismatch = New(
	CodeAmountMismatch,
	"payment",
	"Reported amount does not match payment amount",
	http.StatusConflict,
)

// ErrConcurrencyNoOp - строку держит другой обработчик. Это не ошибка.
var ErrConcurrencyNoOp = New(
	CodeConcurrencyNoOp,
	"payment",
	"Payment is being processed concurrently",
	http.StatusOK,
)

var ErrInvalidSignature = New(
	CodeInvalidSignature,
	"payment",
	"Invalid gateway signature",
	http.StatusBadRequest,
)

var ErrAccountDisabled = New(
	CodeValidationFailed,
	"payment",
	"Account is disabled",
	http.StatusBadRequest,
)

var ErrCourseUnavailable = New(
	CodeValidationFailed,
	"payment",
	"Course is not available for purchase",
	http.StatusBadRequest,
)

// --- Enrollments ---

var ErrPaymentRequired = New(
	CodePaymentRequired,
	"enrollment",
	"Enrollment requires a completed payment",
	http.StatusPaymentRequired,
)

var ErrAlreadyEnrolled = New(
	CodeAlreadyEnrolled,
	"enrollment",
	"You are already enrolled in this course",
	http.StatusConflict,
)

var ErrEnrollmentInactive = New(
	CodeForbidden,
	"enrollment",
	"Enrollment is not active",
	http.StatusForbidden,
)

// --- Reviews ---

var ErrReviewAlreadyExists = New(
	CodeAlreadyExists,
	"review",
	"You have already reviewed this course",
	http.StatusConflict,
)

// --- Auth ---

var ErrInsufficientPermissions = New(
	CodeForbidden,
	"auth",
	"Insufficient permissions",
	http.StatusForbidden,
)
