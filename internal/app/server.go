package app

import (
	"learnhub_backend/internal/auth"
	"learnhub_backend/internal/cache"
	"learnhub_backend/internal/config"
	"learnhub_backend/internal/email"
	"learnhub_backend/internal/events"
	"learnhub_backend/internal/handlers"
	"learnhub_backend/internal/jobs"
	"learnhub_backend/internal/middleware"
	"learnhub_backend/internal/repositories"
	"learnhub_backend/internal/routes"
	"learnhub_backend/internal/services"
	"learnhub_backend/internal/services/gateway"
	"learnhub_backend/internal/storage"
	"learnhub_backend/internal/validator"
	"learnhub_backend/internal/workers"
	"learnhub_backend/ws"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Infra - внешние ресурсы, которые Run поднимает до сборки приложения
type Infra struct {
	Cache   *cache.Versioned
	Storage storage.Storage
	Mailer  email.Provider
}

// Server - собранное приложение без сетевого слушателя и без запущенных воркеров.
type Server struct {
	Router    *gin.Engine
	Services  *services.ServiceContainer
	Tokens    *auth.TokenManager
	Gateway   *gateway.VNPayService
	Registry  *jobs.Registry
	JobWorker *workers.JobWorker
	Sweeper   *workers.ExpirySweeper
	WS        *ws.WebSocketManager
}

// Build связывает сервисы, воркеры и маршруты.
func Build(cfg *config.Config, db *gorm.DB, infra Infra) *Server {
	tokens := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWTTTL())
	wsManager := ws.NewWebSocketManager()
	vnpay := gateway.NewVNPayService(gateway.Config{
		TmnCode:    cfg.VNPay.TmnCode,
		HashSecret: cfg.VNPay.HashSecret,
		PaymentURL: cfg.VNPay.PaymentURL,
		ReturnURL:  cfg.VNPay.ReturnURL,
	})

	// 1. Сервисы
	jobRepo := repositories.NewJobRepository()
	serviceContainer := services.NewServiceContainer(services.Dependencies{
		Bus:     events.NewBus(),
		Queue:   jobs.NewQueue(jobRepo, cfg.Jobs.MaxAttempts),
		Cache:   infra.Cache,
		Gateway: vnpay,
		Storage: infra.Storage,
		Mailer:  infra.Mailer,
		Pusher:  wsManager,
		Payment: services.PaymentConfig{
			Currency:       cfg.Payments.Currency,
			PendingTTL:     cfg.PendingTTL(),
			SweepBatchSize: cfg.Payments.SweepBatchSize,
		},
		Certificate: services.CertificateConfig{
			AllowedPrefix:   cfg.Certificates.AllowedPrefix,
			VerificationURL: cfg.Certificates.VerificationURL,
		},
		FrontendURL: cfg.FrontendURL,
	})

	registry := jobs.NewRegistry()
	serviceContainer.RegisterJobs(db, registry)

	// 2. Фоновые воркеры (стартует вызывающий)
	jobWorker := workers.NewJobWorker(db, jobRepo, registry, workers.JobWorkerConfig{
		PollInterval:      cfg.JobPollInterval(),
		VisibilityTimeout: cfg.JobVisibilityTimeout(),
		BatchSize:         cfg.Jobs.BatchSize,
		RatePerMinute:     cfg.Jobs.RatePerMinute,
	})
	sweeper := workers.NewExpirySweeper(db, serviceContainer.PaymentService, cfg.Payments.SweepSchedule)

	// 3. HTTP
	appHandlers := initializeHandlers(serviceContainer, tokens, sweeper, cfg.FrontendURL)
	ginRouter := initializeGinRouter(db, cfg.FrontendURL)
	if cfg.Storage.Type == "local" {
		ginRouter.Static("/uploads", cfg.Storage.BasePath)
	}
	routes.RegisterRoutes(ginRouter, db, appHandlers, ws.NewWebSocketHandler(wsManager), middleware.AuthMiddleware(tokens))

	return &Server{
		Router:    ginRouter,
		Services:  serviceContainer,
		Tokens:    tokens,
		Gateway:   vnpay,
		Registry:  registry,
		JobWorker: jobWorker,
		Sweeper:   sweeper,
		WS:        wsManager,
	}
}

func initializeHandlers(services *services.ServiceContainer, tokens *auth.TokenManager, sweeper handlers.SweepRunner, frontendURL string) *handlers.AppHandlers {
	baseHandler := handlers.NewBaseHandler(validator.New(), tokens)

	return &handlers.AppHandlers{
		PaymentHandler:      handlers.NewPaymentHandler(baseHandler, services.PaymentService, sweeper, frontendURL),
		DiscountHandler:     handlers.NewDiscountHandler(baseHandler, services.DiscountService),
		EnrollmentHandler:   handlers.NewEnrollmentHandler(baseHandler, services.EnrollmentService, services.ProgressService, services.CertificateService),
		ReviewHandler:       handlers.NewReviewHandler(baseHandler, services.ReviewService),
		NotificationHandler: handlers.NewNotificationHandler(baseHandler, services.NotificationService),
	}
}

func initializeGinRouter(db *gorm.DB, frontendURL string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware())
	router.Use(middleware.CORSMiddleware(frontendURL))
	router.Use(middleware.DBMiddleware(db))
	return router
}

