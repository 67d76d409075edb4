package testutil

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"learnhub_backend/database"
	"learnhub_backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewDB - чистая in-memory SQLite с миграциями. Одно соединение: параллельные
// транзакции в тестах выстраиваются в очередь, как под строковой блокировкой.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), database.GormConfig(gormlogger.Silent))
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.AutoMigrate(db))

	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// ---------------- Fixtures ----------------

func CreateUser(t *testing.T, db *gorm.DB, role models.UserRole) *models.User {
	t.Helper()
	user := &models.User{
		Email:    fmt.Sprintf("%s_%s@test.local", role, uuid.NewString()[:8]),
		FullName: "Test " + string(role),
		Role:     role,
		IsActive: true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// CreateCourse создает опубликованный курс с lessons уроками.
func CreateCourse(t *testing.T, db *gorm.DB, instructorID, price string, lessons int) *models.Course {
	t.Helper()
	course := &models.Course{
		Title:        "Course " + uuid.NewString()[:8],
		InstructorID: instructorID,
		Price:        decimal.RequireFromString(price),
		IsPublished:  true,
	}
	require.NoError(t, db.Create(course).Error)

	for i := 0; i < lessons; i++ {
		lesson := &models.Lesson{
			CourseID: course.ID,
			Title:    fmt.Sprintf("Lesson %d", i+1),
			Position: i + 1,
		}
		require.NoError(t, db.Create(lesson).Error)
		course.Lessons = append(course.Lessons, *lesson)
	}
	return course
}

type DiscountOpts struct {
	Code           string
	Type           models.DiscountType
	Value          string
	UsageLimit     int
	MaxUsesPerUser int
	CourseID       *string
	ValidFrom      time.Time
	ValidUntil     time.Time
	Inactive       bool
}

func CreateDiscount(t *testing.T, db *gorm.DB, opts DiscountOpts) *models.Discount {
	t.Helper()
	now := time.Now().UTC()
	if opts.Code == "" {
		opts.Code = strings.ToUpper("CODE" + uuid.NewString()[:6])
	}
	if opts.Type == "" {
		opts.Type = models.DiscountTypePercentage
	}
	if opts.Value == "" {
		opts.Value = "10"
	}
	if opts.MaxUsesPerUser == 0 {
		opts.MaxUsesPerUser = 1
	}
	if opts.ValidFrom.IsZero() {
		opts.ValidFrom = now.Add(-time.Hour)
	}
	if opts.ValidUntil.IsZero() {
		opts.ValidUntil = now.Add(24 * time.Hour)
	}

	discount := &models.Discount{
		Code:           opts.Code,
		DiscountType:   opts.Type,
		Value:          decimal.RequireFromString(opts.Value),
		CourseID:       opts.CourseID,
		MaxUsesPerUser: opts.MaxUsesPerUser,
		UsageLimit:     opts.UsageLimit,
		ValidFrom:      opts.ValidFrom,
		ValidUntil:     opts.ValidUntil,
		IsActive:       !opts.Inactive,
	}
	require.NoError(t, db.Create(discount).Error)
	return discount
}

// Reload перечитывает строку по id.
func Reload[T any](t *testing.T, db *gorm.DB, id string) *T {
	t.Helper()
	var out T
	require.NoError(t, db.Take(&out, "id = ?", id).Error)
	return &out
}
