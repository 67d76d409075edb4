package services

import (
	"fmt"
	"sync"
	"testing"

	"learnhub_backend/internal/models"
	"learnhub_backend/internal/services/dto"
	"learnhub_backend/internal/testutil"
	"learnhub_backend/pkg/apperrors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// completedPayment пишет завершенный платеж напрямую, минуя шлюз
func completedPayment(t *testing.T, env *testEnv, userID string, course *models.Course, n int) *models.Payment {
	t.Helper()
	p := &models.Payment{
		TransactionRef: fmt.Sprintf("TEST%s%03d", course.ID[:8], n),
		UserID:         userID,
		CourseID:       course.ID,
		OriginalPrice:  course.Price,
		DiscountAmount: decimal.Zero,
		Amount:         course.Price,
		Currency:       "VND",
		Status:         models.PaymentStatusCompleted,
		PaymentMethod:  models.PaymentMethodManual,
	}
	require.NoError(t, env.db.Create(p).Error)
	return p
}

// TestMaterialize_SingleRowUnderConcurrency - N завершенных платежей за один курс
func TestMaterialize_SingleRowUnderConcurrency(t *testing.T) {
	env := newTestEnv(t)

	instructor := testutil.CreateUser(t, env.db, models.UserRoleInstructor)
	student := testutil.CreateUser(t, env.db, models.UserRoleStudent)
	course := testutil.CreateCourse(t, env.db, instructor.ID, "100000", 1)

	const n = 6
	payments := make([]*models.Payment, n)
	for i := range payments {
		payments[i] = completedPayment(t, env, student.ID, course, i)
	}

	var wg sync.WaitGroup
	ids := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tx := env.db.Begin()
			defer tx.Rollback()
			enrollment, err := env.svc.EnrollmentService.Materialize(env.ctx, tx, payments[i])
			if err != nil {
				errs[i] = err
				return
			}
			errs[i] = tx.Commit().Error
			ids[i] = enrollment.ID
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	assert.EqualValues(t, 1, countRows(t, env, &models.Enrollment{}, "student_id = ? AND course_id = ?", student.ID, course.ID))

	enrollment := testutil.Reload[models.Enrollment](t, env.db, ids[0])
	assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	require.NotNil(t, enrollment.PaymentID)
}

func TestRequestEnrollment(t *testing.T) {
	env := newTestEnv(t)

	admin := testutil.CreateUser(t, env.db, models.UserRoleAdmin)
	instructor := testutil.CreateUser(t, env.db, models.UserRoleInstructor)
	student := testutil.CreateUser(t, env.db, models.UserRoleStudent)
	course := testutil.CreateCourse(t, env.db, instructor.ID, "100000", 2)

	// 1. Студент без оплаты
	_, err := env.svc.EnrollmentService.RequestEnrollment(env.ctx, env.db, student.ID, models.UserRoleStudent, &dto.EnrollRequest{CourseID: course.ID})
	assert.ErrorIs(t, err, apperrors.ErrPaymentRequired)
	assert.EqualValues(t, 0, countRows(t, env, &models.Enrollment{}, "student_id = ?", student.ID))

	// 2. Администратор выдает доступ
	granted, err := env.svc.EnrollmentService.RequestEnrollment(env.ctx, env.db, admin.ID, models.UserRoleAdmin, &dto.EnrollRequest{
		CourseID: course.ID,
		UserID:   student.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, student.ID, granted.StudentID)
	assert.Equal(t, models.EnrollmentStatusActive, granted.Status)
	assert.Nil(t, granted.PaymentID)

	enrollment := testutil.Reload[models.Enrollment](t, env.db, granted.ID)
	require.NotNil(t, enrollment.GrantedBy)
	assert.Equal(t, admin.ID, *enrollment.GrantedBy)

	// 3. Повторная выдача возвращает ту же строку
	again, err := env.svc.EnrollmentService.RequestEnrollment(env.ctx, env.db, admin.ID, models.UserRoleAdmin, &dto.EnrollRequest{
		CourseID: course.ID,
		UserID:   student.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, granted.ID, again.ID)

	// 4. После выдачи купить курс нельзя
	_, err = env.svc.PaymentService.CreatePayment(env.ctx, env.db, student.ID, &dto.CreatePaymentRequest{CourseID: course.ID}, "", "")
	assert.ErrorIs(t, err, apperrors.ErrAlreadyEnrolled)
}

func TestUpdateStatus_Transitions(t *testing.T) {
	env := newTestEnv(t)

	admin := testutil.CreateUser(t, env.db, models.UserRoleAdmin)
	instructor := testutil.CreateUser(t, env.db, models.UserRoleInstructor)
	student := testutil.CreateUser(t, env.db, models.UserRoleStudent)
	course := testutil.CreateCourse(t, env.db, instructor.ID, "100000", 1)

	granted, err := env.svc.EnrollmentService.RequestEnrollment(env.ctx, env.db, admin.ID, models.UserRoleAdmin, &dto.EnrollRequest{
		CourseID: course.ID,
		UserID:   student.ID,
	})
	require.NoError(t, err)
	svc := env.svc.EnrollmentService

	steps := []struct {
		to      models.EnrollmentStatus
		wantErr bool
	}{
		{models.EnrollmentStatusCompleted, false},
		{models.EnrollmentStatusActive, true},
		{models.EnrollmentStatusCancelled, false},
		{models.EnrollmentStatusCompleted, true},
		{models.EnrollmentStatusActive, false},
		{models.EnrollmentStatusActive, false},
		{models.EnrollmentStatusExpired, false},
	}

	for i, step := range steps {
		_, err := svc.UpdateStatus(env.ctx, env.db, granted.ID, step.to)
		if step.wantErr {
			assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTransition), "step %d -> %s: %v", i, step.to, err)
			continue
		}
		require.NoError(t, err, "step %d -> %s", i, step.to)
		assert.Equal(t, step.to, testutil.Reload[models.Enrollment](t, env.db, granted.ID).Status)
	}

	final := testutil.Reload[models.Enrollment](t, env.db, granted.ID)
	assert.Nil(t, final.CompletedAt)

	_, err = svc.UpdateStatus(env.ctx, env.db, "00000000-0000-0000-0000-000000000000", models.EnrollmentStatusActive)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestGetMyEnrollments_Cache(t *testing.T) {
	env := newTestEnv(t)

	instructor := testutil.CreateUser(t, env.db, models.UserRoleInstructor)
	student := testutil.CreateUser(t, env.db, models.UserRoleStudent)
	course := testutil.CreateCourse(t, env.db, instructor.ID, "100000", 1)
	svc := env.svc.EnrollmentService

	// 1. Пустой список попадает в кэш
	list, err := svc.GetMyEnrollments(env.ctx, env.db, student.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	// 2. Запись в обход сервиса кэш не видит
	payment := completedPayment(t, env, student.ID, course, 1)
	tx := env.db.Begin()
	_, err = svc.Materialize(env.ctx, tx, payment)
	require.NoError(t, err)
	require.NoError(t, tx.Commit().Error)

	list, err = svc.GetMyEnrollments(env.ctx, env.db, student.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	// 3. После Invalidate список свежий
	svc.Invalidate(env.ctx, student.ID)
	list, err = svc.GetMyEnrollments(env.ctx, env.db, student.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, course.Title, list[0].CourseTitle)
}

func TestGetEnrollment_Ownership(t *testing.T) {
	env := newTestEnv(t)

	instructor := testutil.CreateUser(t, env.db, models.UserRoleInstructor)
	student := testutil.CreateUser(t, env.db, models.UserRoleStudent)
	stranger := testutil.CreateUser(t, env.db, models.UserRoleStudent)
	course := testutil.CreateCourse(t, env.db, instructor.ID, "0", 1)

	resp := env.createPayment(t, student.ID, course.ID, "")

	got, err := env.svc.EnrollmentService.GetEnrollment(env.ctx, env.db, student.ID, false, resp.EnrollmentID)
	require.NoError(t, err)
	assert.Equal(t, course.ID, got.CourseID)

	_, err = env.svc.EnrollmentService.GetEnrollment(env.ctx, env.db, stranger.ID, false, resp.EnrollmentID)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientPermissions)

	_, err = env.svc.EnrollmentService.GetEnrollment(env.ctx, env.db, stranger.ID, true, resp.EnrollmentID)
	assert.NoError(t, err)
}
