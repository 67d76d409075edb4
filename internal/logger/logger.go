package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// До вызова Init пишем текстом в stdout, чтобы тесты и утилиты не падали на nil.
var log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

// Init инициализирует глобальный логгер
// env: "development", "production" или "test"
func Init(env string) {
	log = slog.New(newHandler(env, os.Stdout))
	slog.SetDefault(log) // Устанавливаем как default для всего приложения
}

func newHandler(env string, w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:     slog.LevelInfo,
		AddSource: true, // Добавляет файл и строку где вызван лог
	}

	switch env {
	case "development":
		// Development: читаемый текстовый формат
		opts.Level = slog.LevelDebug
		return slog.NewTextHandler(w, opts)
	case "test":
		// В тестах шумим только предупреждениями
		opts.Level = slog.LevelWarn
		opts.AddSource = false
		return slog.NewTextHandler(w, opts)
	default:
		// Production: JSON формат для парсинга
		return slog.NewJSONHandler(w, opts)
	}
}

// GetLogger возвращает глобальный логгер
func GetLogger() *slog.Logger {
	return log
}

// ============================================
// Convenience функции для быстрого логирования
// ============================================

// Debug логирует debug сообщение
func Debug(msg string, args ...any) {
	GetLogger().Debug(msg, args...)
}

// Info логирует info сообщение
func Info(msg string, args ...any) {
	GetLogger().Info(msg, args...)
}

// Warn логирует warning сообщение
func Warn(msg string, args ...any) {
	GetLogger().Warn(msg, args...)
}

// Error логирует error сообщение
func Error(msg string, args ...any) {
	GetLogger().Error(msg, args...)
}

// Fatal логирует fatal ошибку и завершает программу
func Fatal(msg string, args ...any) {
	GetLogger().Error(msg, args...)
	os.Exit(1)
}

// ============================================
// Логирование с дополнительными полями
// ============================================

// With создает новый логгер с дополнительными полями
// Пример: logger.With("user_id", 123, "action", "login").Info("user logged in")
func With(args ...any) *slog.Logger {
	return GetLogger().With(args...)
}

// WithError создает логгер с полем error
func WithError(err error) *slog.Logger {
	return GetLogger().With("error", err.Error())
}

// ============================================
// Специализированные логгеры
// ============================================

// HTTPLog логирует HTTP запрос
func HTTPLog(method, path string, status int, duration time.Duration, size int) {
	GetLogger().Info("http request",
		"method", method,
		"path", path,
		"status", status,
		"duration_ms", duration.Milliseconds(),
		"size_bytes", size,
	)
}

// DBLog логирует database операцию
func DBLog(operation, query string, duration time.Duration, err error) {
	fields := []any{
		"operation", operation,
		"query", query,
		"duration_ms", duration.Milliseconds(),
	}

	if err != nil {
		fields = append(fields, "error", err.Error())
		GetLogger().Error("database operation failed", fields...)
	} else {
		GetLogger().Debug("database operation", fields...)
	}
}

// WorkerLog логирует background worker операцию
func WorkerLog(worker, operation string, err error, args ...any) {
	fields := append([]any{
		"worker", worker,
		"operation", operation,
	}, args...)

	if err != nil {
		fields = append(fields, "error", err.Error())
		GetLogger().Error("worker operation failed", fields...)
	} else {
		GetLogger().Info("worker operation completed", fields...)
	}
}

// Alert - событие безопасности высокой важности. Такие записи забирает алертинг
// по полю alert=true.
func Alert(ctx context.Context, msg string, args ...any) {
	fields := append([]any{"severity", "high", "alert", true}, args...)
	FromContext(ctx).Error(msg, fields...)
}
