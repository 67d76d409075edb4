package models

type UserRole string
type PaymentStatus string
type PaymentMethod string
type EnrollmentStatus string
type DiscountType string
type JobStatus string

const (
	UserRoleStudent    UserRole = "student"
	UserRoleInstructor UserRole = "instructor"
	UserRoleAdmin      UserRole = "admin"

	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
	PaymentStatusExpired   PaymentStatus = "expired"
	PaymentStatusRefunded  PaymentStatus = "refunded"

	PaymentMethodVNPay  PaymentMethod = "vnpay"
	PaymentMethodFree   PaymentMethod = "free"
	PaymentMethodManual PaymentMethod = "manual"

	EnrollmentStatusActive    EnrollmentStatus = "active"
	EnrollmentStatusCompleted EnrollmentStatus = "completed"
	EnrollmentStatusCancelled EnrollmentStatus = "cancelled"
	EnrollmentStatusExpired   EnrollmentStatus = "expired"
	EnrollmentStatusRefunded  EnrollmentStatus = "refunded"

	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"

	JobStatusQueued  JobStatus = "queued"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusDead    JobStatus = "dead"
)

// IsTerminal - из терминального статуса платеж сам по себе не выходит.
func (s PaymentStatus) IsTerminal() bool {
	return s != PaymentStatusPending
}

// GrantsAccess - статусы, при которых у студента есть доступ к курсу.
func (s EnrollmentStatus) GrantsAccess() bool {
	return s == EnrollmentStatusActive || s == EnrollmentStatusCompleted
}
