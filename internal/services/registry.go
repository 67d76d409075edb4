package services

import (
	"learnhub_backend/internal/cache"
	"learnhub_backend/internal/email"
	"learnhub_backend/internal/events"
	"learnhub_backend/internal/jobs"
	"learnhub_backend/internal/repositories"
	"learnhub_backend/internal/storage"

	"gorm.io/gorm"
)

// ServiceContainer содержит все сервисы приложения.
type ServiceContainer struct {
	DiscountService     DiscountService
	PaymentService      PaymentService
	EnrollmentService   EnrollmentService
	ProgressService     ProgressService
	CertificateService  CertificateService
	ReviewService       ReviewService
	NotificationService NotificationService
	EmailService        email.Provider
	Bus                 *events.Bus
}

// Dependencies - внешние зависимости сервисов
type Dependencies struct {
	Bus         *events.Bus
	Queue       *jobs.Queue
	Cache       *cache.Versioned // nil = без кэша
	Gateway     PaymentGateway
	Storage     storage.Storage
	Generator   CertificateGenerator // nil = текстовый сертификат в Storage
	Mailer      email.Provider
	Pusher      Pusher
	Payment     PaymentConfig
	Certificate CertificateConfig
	FrontendURL string
}

// NewServiceContainer собирает сервисы и подписывает их на шину.
func NewServiceContainer(deps Dependencies) *ServiceContainer {
	// --- Репозитории ---
	userRepo := repositories.NewUserRepository()
	discountRepo := repositories.NewDiscountRepository()
	paymentRepo := repositories.NewPaymentRepository()
	enrollmentRepo := repositories.NewEnrollmentRepository()
	certificateRepo := repositories.NewCertificateRepository()
	reviewRepo := repositories.NewReviewRepository()
	notificationRepo := repositories.NewNotificationRepository()

	generator := deps.Generator
	if generator == nil {
		generator = NewStorageCertificateGenerator(deps.Storage, deps.Certificate.AllowedPrefix)
	}

	// --- Сервисы ---
	discountService := NewDiscountService(discountRepo, paymentRepo, userRepo)
	enrollmentService := NewEnrollmentService(enrollmentRepo, userRepo, deps.Bus, deps.Cache)
	paymentService := NewPaymentService(paymentRepo, userRepo, enrollmentRepo, discountService, enrollmentService, deps.Gateway, deps.Bus, deps.Payment)
	progressService := NewProgressService(enrollmentRepo, enrollmentService, deps.Bus)
	certificateService := NewCertificateService(certificateRepo, enrollmentRepo, userRepo, deps.Queue, generator, deps.Storage, deps.Certificate)
	reviewService := NewReviewService(reviewRepo, enrollmentRepo, userRepo, deps.Bus)
	notificationService := NewNotificationService(notificationRepo, userRepo, deps.Queue, deps.Mailer, deps.Pusher, deps.FrontendURL)

	// --- Подписки (выполняются в транзакции публикующего) ---
	deps.Bus.OnEnrollmentStatusChanged(reviewService.ApplyEnrollmentStatus)
	deps.Bus.Subscribe(events.EnrollmentCompleted, certificateService.OnEnrollmentCompleted)
	deps.Bus.SubscribeAll(notificationService.Dispatch)

	return &ServiceContainer{
		DiscountService:     discountService,
		PaymentService:      paymentService,
		EnrollmentService:   enrollmentService,
		ProgressService:     progressService,
		CertificateService:  certificateService,
		ReviewService:       reviewService,
		NotificationService: notificationService,
		EmailService:        deps.Mailer,
		Bus:                 deps.Bus,
	}
}

// RegisterJobs регистрирует обработчики отложенных задач.
func (c *ServiceContainer) RegisterJobs(db *gorm.DB, registry *jobs.Registry) {
	registry.Register(jobs.KindCertificateGenerate, c.CertificateService.JobHandler(db))
	registry.Register(jobs.KindNotificationDeliver, c.NotificationService.DeliveryHandler(db))
}
