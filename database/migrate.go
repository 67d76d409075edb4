package database

import (
	"fmt"
	"time"

	"learnhub_backend/internal/config"
	"learnhub_backend/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormConfig - общие настройки gorm: время в UTC, ошибки драйвера
// переводятся в gorm.ErrDuplicatedKey и т.п.
func GormConfig(logLevel gormlogger.LogLevel) *gorm.Config {
	return &gorm.Config{
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(logLevel),
	}
}

// ConnectGorm открывает Postgres по DSN из конфига
func ConnectGorm(cfg *config.Config) (*gorm.DB, error) {
	level := gormlogger.Warn
	if cfg.Server.Env == "development" {
		level = gormlogger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), GormConfig(level))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to GORM: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get *sql.DB from GORM: %w", err)
	}
	if cfg.Database.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}
	if cfg.Database.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database unavailable: %w", err)
	}
	return db, nil
}

// AutoMigrate выполняет миграцию всех моделей
func AutoMigrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Course{},
		&models.Lesson{},
		&models.Discount{},
		&models.DiscountUsage{},
		&models.Payment{},
		&models.Enrollment{},
		&models.LessonProgress{},
		&models.Certificate{},
		&models.Review{},
		&models.ReviewReply{},
		&models.Notification{},
		&models.Job{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
