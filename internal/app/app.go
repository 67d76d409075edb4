package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"learnhub_backend/database"
	"learnhub_backend/internal/auth"
	"learnhub_backend/internal/cache"
	"learnhub_backend/internal/config"
	"learnhub_backend/internal/email"
	"learnhub_backend/internal/logger"
	"learnhub_backend/internal/models"
	"learnhub_backend/internal/repositories"
	"learnhub_backend/internal/storage"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const enrollmentCacheTTL = 10 * time.Minute

func Run() {
	config.LoadConfig()
	cfg := config.AppConfig
	logger.Init(cfg.Server.Env)
	logger.Info("Logger initialized", "env", cfg.Server.Env)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Info("Connecting to database...")
	gormDB, err := database.ConnectGorm(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	if err := database.AutoMigrate(gormDB); err != nil {
		logger.Fatal("Failed to migrate database", "error", err)
	}
	logger.Info("Database connected")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.JWT.Secret == "" {
		logger.Fatal("JWT_SECRET is not set")
	}
	// 1. Инфраструктура
	versioned, closeCache := initializeCache(cfg)
	defer closeCache()

	storageInstance, err := storage.NewStorage(storage.Config{
		Type:       cfg.Storage.Type,
		BasePath:   cfg.Storage.BasePath,
		BaseURL:    cfg.Storage.BaseURL,
		Bucket:     cfg.Storage.Bucket,
		Region:     cfg.Storage.Region,
		AccessKey:  cfg.Storage.AccessKey,
		SecretKey:  cfg.Storage.SecretKey,
		Endpoint:   cfg.Storage.Endpoint,
		PublicRead: cfg.Storage.PublicRead,
	})
	if err != nil {
		logger.Fatal("Failed to initialize storage", "error", err)
	}
	logger.Info("Storage initialized", "type", cfg.Storage.Type)

	mailer := initializeEmail(cfg)
	defer mailer.Close()

	// 2. Сервисы, воркеры и маршруты
	server := Build(cfg, gormDB, Infra{
		Cache:   versioned,
		Storage: storageInstance,
		Mailer:  mailer,
	})
	if err := seedFirstAdmin(gormDB, cfg, server.Tokens); err != nil {
		// Если не удалось создать админа (проблемы с БД и т.д.) - не запускаем сервер
		logger.Fatal("Failed to seed first admin user", "error", err)
	}

	go server.WS.Run(ctx)
	server.JobWorker.Start(ctx)
	if err := server.Sweeper.Start(ctx); err != nil {
		logger.Fatal("Failed to start expiry sweeper", "error", err)
	}

	address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              address,
		Handler:           server.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server starting", "address", address)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server startup error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}
	server.Sweeper.Stop()
	logger.Info("Server stopped")
}

// initializeCache - Redis, если задан URL, иначе in-memory
func initializeCache(cfg *config.Config) (*cache.Versioned, func()) {
	if cfg.Redis.URL == "" {
		logger.Warn("REDIS_URL not set, using in-memory cache")
		return cache.NewVersioned(cache.NewMemoryCache(), enrollmentCacheTTL), func() {}
	}

	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		logger.Warn("Redis unavailable, falling back to in-memory cache", "error", err)
		return cache.NewVersioned(cache.NewMemoryCache(), enrollmentCacheTTL), func() {}
	}
	logger.Info("Redis cache connected")
	return cache.NewVersioned(redisCache, enrollmentCacheTTL), func() { _ = redisCache.Close() }
}

// initializeEmail - без SMTP_HOST письма складываются в mock
func initializeEmail(cfg *config.Config) email.Provider {
	if cfg.Email.SMTPHost == "" {
		logger.Warn("SMTP is not configured, email delivery uses mock provider")
		return email.NewMockProvider()
	}

	smtpConfig := email.DefaultConfig()
	smtpConfig.Host = cfg.Email.SMTPHost
	if cfg.Email.SMTPPort != 0 {
		smtpConfig.Port = cfg.Email.SMTPPort
	}
	smtpConfig.Username = cfg.Email.SMTPUsername
	smtpConfig.Password = cfg.Email.SMTPPassword
	smtpConfig.FromEmail = cfg.Email.FromEmail
	smtpConfig.FromName = cfg.Email.FromName
	smtpConfig.UseTLS = cfg.Email.UseTLS

	provider := email.NewSMTPProvider(smtpConfig, email.NewDefaultTemplateManager())
	if err := provider.Validate(); err != nil {
		logger.Warn("SMTP config invalid, email delivery uses mock provider", "error", err)
		return email.NewMockProvider()
	}
	return provider
}

// seedFirstAdmin создает администратора по FIRST_ADMIN_EMAIL. Паролей в
// системе нет: вне production в лог пишется токен для первого входа.
func seedFirstAdmin(db *gorm.DB, cfg *config.Config, tokens *auth.TokenManager) error {
	adminEmail := cfg.Admin.Email
	if adminEmail == "" {
		logger.Warn("FIRST_ADMIN_EMAIL is not set. Skipping admin seeding.")
		return nil
	}

	tx := db.Begin()
	if tx.Error != nil {
		return fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	defer tx.Rollback()

	userRepo := repositories.NewUserRepository()
	adminUser, err := userRepo.FindUserByEmail(tx, adminEmail)
	switch {
	case err == nil:
		logger.Info("Admin user already exists. Skipping creation.", "email", adminEmail)
	case errors.Is(err, repositories.ErrUserNotFound):
		logger.Warn("No admin user found with specified email. Creating first admin...", "email", adminEmail)
		adminUser = &models.User{
			Email:    adminEmail,
			FullName: cfg.Admin.FullName,
			Role:     models.UserRoleAdmin,
			IsActive: true,
		}
		if err := userRepo.CreateUser(tx, adminUser); err != nil {
			return fmt.Errorf("failed to create admin user in database: %w", err)
		}
	default:
		return fmt.Errorf("failed to check for admin user: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return err
	}

	if cfg.Server.Env != "production" {
		token, err := tokens.GenerateToken(adminUser.ID, adminUser.Email, adminUser.Role)
		if err != nil {
			return fmt.Errorf("failed to issue admin token: %w", err)
		}
		logger.Info("Admin bootstrap token issued", "email", adminEmail, "token", token)
	}
	return nil
}
