package apperrors

// ErrorCode - тип для кодов ошибок
type ErrorCode string

const (
	// Системные
	CodeInternalError        ErrorCode = "INTERNAL_ERROR"
	CodeDatabaseError        ErrorCode = "DATABASE_ERROR"
	CodeExternalServiceError ErrorCode = "EXTERNAL_SERVICE_ERROR"

	// Общие
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeAlreadyExists    ErrorCode = "ALREADY_EXISTS"
	CodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	CodeConflict         ErrorCode = "CONFLICT"

	// Auth
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"
	CodeForbidden    ErrorCode = "FORBIDDEN"
	CodeInvalidToken ErrorCode = "INVALID_TOKEN"

	// Платежи и скидки
	CodeQuotaExhausted        ErrorCode = "QUOTA_EXHAUSTED"
	CodeDiscountExpired       ErrorCode = "DISCOUNT_EXPIRED"
	CodeDiscountNotApplicable ErrorCode = "DISCOUNT_NOT_APPLICABLE"
	CodeInvalidTransition     ErrorCode = "INVALID_TRANSITION"
	CodeAmountMismatch        ErrorCode = "AMOUNT_MISMATCH"
	CodeConcurrencyNoOp       ErrorCode = "CONCURRENCY_NOOP"
	CodeInvalidSignature      ErrorCode = "INVALID_SIGNATURE"

	// Зачисления
	CodePaymentRequired ErrorCode = "PAYMENT_REQUIRED"
	CodeAlreadyEnrolled ErrorCode = "ALREADY_ENROLLED"

	// Безопасность
	CodeSecurityViolation ErrorCode = "SECURITY_VIOLATION"
)
