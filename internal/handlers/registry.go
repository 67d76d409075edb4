package handlers

// AppHandlers содержит все хэндлеры приложения.
type AppHandlers struct {
	PaymentHandler      *PaymentHandler
	DiscountHandler     *DiscountHandler
	EnrollmentHandler   *EnrollmentHandler
	ReviewHandler       *ReviewHandler
	NotificationHandler *NotificationHandler
}
