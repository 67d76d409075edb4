package services

import (
	"net/url"
	"sync"
	"testing"
	"time"

	"learnhub_backend/internal/jobs"
	"learnhub_backend/internal/models"
	"learnhub_backend/internal/services/dto"
	"learnhub_backend/internal/testutil"
	"learnhub_backend/pkg/apperrors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countRows(t *testing.T, env *testEnv, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, env.db.Model(model).Where(query, args...).Count(&n).Error)
	return n
}

// TestCreatePayment_FullDiscountIsFree - курс за 1 000 000 и код на 100%
func TestCreatePayment_FullDiscountIsFree(t *testing.T) {
	env := newTestEnv(t)

	// 1. Подготовка
	instructor := testutil.CreateUser(t, env.db, models.UserRoleInstructor)
	student := testutil.CreateUser(t, env.db, models.UserRoleStudent)
	course := testutil.CreateCourse(t, env.db, instructor.ID, "1000000", 3)
	discount := testutil.CreateDiscount(t, env.db, testutil.DiscountOpts{Value: "100", UsageLimit: 10})

	// 2. Действие
	resp := env.createPayment(t, student.ID, course.ID, discount.Code)

	// 3. Проверка: платеж завершен без шлюза
	assert.Empty(t, resp.PaymentURL)
	assert.Equal(t, models.PaymentStatusCompleted, resp.Payment.Status)
	assert.Equal(t, models.PaymentMethodFree, resp.Payment.PaymentMethod)
	assert.True(t, resp.Payment.Amount.IsZero())
	assert.True(t, resp.Payment.DiscountAmount.Equal(decimal.NewFromInt(1000000)))
	require.NotEmpty(t, resp.EnrollmentID)

	payment := testutil.Reload[models.Payment](t, env.db, resp.Payment.ID)
	assert.Equal(t, models.PaymentStatusCompleted, payment.Status)
	assert.NotNil(t, payment.PaidAt)

	enrollment := testutil.Reload[models.Enrollment](t, env.db, resp.EnrollmentID)
	assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	require.NotNil(t, enrollment.PaymentID)
	assert.Equal(t, payment.ID, *enrollment.PaymentID)

	assert.Equal(t, 1, testutil.Reload[models.Discount](t, env.db, discount.ID).UsedCount)
	assert.EqualValues(t, 1, countRows(t, env, &models.DiscountUsage{}, "payment_id = ?", payment.ID))

	// payment.completed и enrollment.created ушли в outbox
	queued, err := env.jobRepo.CountByStatus(env.db, jobs.KindNotificationDeliver, models.JobStatusQueued)
	require.NoError(t, err)
	assert.EqualValues(t, 2, queued)
	t.Logf("Бесплатный путь: completed / free / active - Успешно.")
}

func TestCreatePayment_BuildsGatewayURL(t *testing.T) {
	env := newTestEnv(t)

	instructor := testutil.CreateUser(t, env.db, models.UserRoleInstructor)
	student := testutil.CreateUser(t, env.db, models.UserRoleStudent)
	course := testutil.CreateCourse(t, env.db, instructor.ID, "499000", 1)
	discount := testutil.CreateDiscount(t, env.db, testutil.DiscountOpts{Value: "10", UsageLimit: 10})

	resp := env.createPayment(t, student.ID, course.ID, discount.Code)

	assert.Equal(t, models.PaymentStatusPending, resp.Payment.Status)
	assert.True(t, resp.Payment.Amount.Equal(decimal.RequireFromString("449100")))
	assert.Empty(t, resp.EnrollmentID)

	u, err := url.Parse(resp.PaymentURL)
	require.NoError(t, err)
	assert.Equal(t, "44910000", u.Query().Get("vnp_Amount"))
	assert.Equal(t, resp.Payment.TransactionRef, u.Query().Get("vnp_TxnRef"))

	assert.Equal(t, 1, testutil.Reload[models.Discount](t, env.db, discount.ID).UsedCount)
	assert.EqualValues(t, 0, countRows(t, env, &models.Enrollment{}, "student_id = ?", student.ID))
}

func TestCreatePayment_Rejections(t *testing.T) {
	env := newTestEnv(t)

	instructor := testutil.CreateUser(t, env.db, models.UserRoleInstructor)
	student := testutil.CreateUser(t, env.db, models.UserRoleStudent)
	course := testutil.CreateCourse(t, env.db, instructor.ID, "0", 1)

	// Бесплатный курс: сразу зачисление
	env.createPayment(t, student.ID, course.ID, "")

	_, err := env.svc.PaymentService.CreatePayment(env.ctx, env.db, student.ID, &dto.CreatePaymentRequest{CourseID: course.ID}, "", "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeAlreadyEnrolled))

	other := testutil.CreateUser(t, env.db, models.UserRoleStudent)
	_, err = env.svc.PaymentService.CreatePayment(env.ctx, env.db, other.ID, &dto.CreatePaymentRequest{
		CourseID:     course.ID,
		DiscountCode: "NOPE",
	}, "", "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidDiscountCode)

	require.NoError(t, env.db.Model(&models.User{}).Where("id = ?", other.ID).Update("is_active", false).Error)
	_, err = env.svc.PaymentService.CreatePayment(env.ctx, env.db, other.ID, &dto.CreatePaymentRequest{CourseID: course.ID}, "", "")
	assert.ErrorIs(t, err, apperrors.ErrAccountDisabled)
}

func TestSettle_SuccessThenReplay(t *testing.T) {
	env := newTestEnv(t)

	instructor := testutil.CreateUser(t, env.db, models.UserRoleInstructor)
	student := testutil.CreateUser(t, env.db, models.UserRoleStudent)
	course := testutil.CreateCourse(t, env.db, instructor.ID, "200000", 1)
	discount := testutil.CreateDiscount(t, env.db, testutil.DiscountOpts{Type: models.DiscountTypeFixed, Value: "50000", UsageLimit: 5})

	resp := env.createPayment(t, student.ID, course.ID, discount.Code)
	payment := testutil.Reload[models.Payment](t, env.db, resp.Payment.ID)

	// 1. Первый отчет
	result, err := env.svc.PaymentService.Settle(env.ctx, env.db, report(payment, "00"))
	require.NoError(t, err)
	assert.False(t, result.Replay)
	assert.Equal(t, models.PaymentStatusCompleted, result.Status)
	assert.Equal(t, "00", AcknowledgeIPN(result, err).RspCode)

	// 2. Повтор того же отчета
	result, err = env.svc.PaymentService.Settle(env.ctx, env.db, report(payment, "00"))
	require.NoError(t, err)
	assert.True(t, result.Replay)
	assert.Equal(t, "00", AcknowledgeIPN(result, err).RspCode)

	// 3. Проверка: одно зачисление, одно использование, слот занят
	settled := testutil.Reload[models.Payment](t, env.db, payment.ID)
	assert.Equal(t, models.PaymentStatusCompleted, settled.Status)
	assert.Equal(t, "14000001", settled.GatewayTransactionNo)
	assert.EqualValues(t, 1, countRows(t, env, &models.Enrollment{}, "student_id = ? AND course_id = ?", student.ID, course.ID))
	assert.EqualValues(t, 1, countRows(t, env, &models.DiscountUsage{}, "payment_id = ?", payment.ID))
	assert.Equal(t, 1, testutil.Reload[models.Discount](t, env.db, discount.ID).UsedCount)
}

// TestSettle_ConcurrentReports - два (и больше) одновременных отчета по одному платежу
func TestSettle_ConcurrentReports(t *testing.T) {
	env := newTestEnv(t)

	instructor := testutil.CreateUser(t, env.db, models.UserRoleInstructor)
	student := testutil.CreateUser(t, env.db, models.UserRoleStudent)
	course := testutil.CreateCourse(t, env.db, instructor.ID, "300000", 1)

	resp := env.createPayment(t, student.ID, course.ID, "")
	payment := testutil.Reload[models.Payment](t, env.db, resp.Payment.ID)

	const workers = 5
	var wg sync.WaitGroup
	results := make([]*dto.SettleResult, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = env.svc.PaymentService.Settle(env.ctx, env.db, report(payment, "00"))
		}(i)
	}
	wg.Wait()

	firstSettles := 0
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			assert.True(t, apperrors.HasCode(errs[i], apperrors.CodeConcurrencyNoOp), "unexpected error: %v", errs[i])
			continue
		}
		if !results[i].Replay {
			firstSettles++
		}
	}

	assert.Equal(t, 1, firstSettles)
	assert.Equal(t, models.PaymentStatusCompleted, testutil.Reload[models.Payment](t, env.db, payment.ID).Status)
	assert.EqualValues(t, 1, countRows(t, env, &models.Enrollment{}, "student_id = ? AND course_id = ?", student.ID, course.ID))

	queued, err := env.jobRepo.CountByStatus(env.db, jobs.KindNotificationDeliver, models.JobStatusQueued)
	require.NoError(t, err)
	assert.EqualValues(t, 2, queued, "one payment.completed and one enrollment.created")
}

func TestSettle_AmountMismatchStaysPending(t *testing.T) {
	env := newTestEnv(t)

	instructor := testutil.CreateUser(t, env.db, models.UserRoleInstructor)
	student := testutil.CreateUser(t, env.db, models.UserRoleStudent)
	course := testutil.CreateCourse(t, env.db, instructor.ID, "150000", 1)

	resp := env.createPayment(t, student.ID, course.ID, "")
	payment := testutil.Reload[models.Payment](t, env.db, resp.Payment.ID)

	bad := report(payment, "00")
	bad.Amount += 100

	result, err := env.svc.PaymentService.Settle(env.ctx, env.db, bad)
	assert.Nil(t, result)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeAmountMismatch))
	assert.Equal(t, "04", AcknowledgeIPN(result, err).RspCode)

	flagged := testutil.Reload[models.Payment](t, env.db, payment.ID)
	assert.Equal(t, models.PaymentStatusPending, flagged.Status)
	assert.True(t, flagged.NeedsReview)
	assert.Equal(t, models.ReviewReasonAmountMismatch, flagged.ReviewReason)
	assert.EqualValues(t, 0, countRows(t, env, &models.Enrollment{}, "student_id = ?", student.ID))

	list, err := env.svc.PaymentService.GetFlaggedPayments(env.ctx, env.db, 1, 20)
	require.NoError(t, err)
	require.Len(t, list.Payments, 1)
	assert.Equal(t, payment.ID, list.Payments[0].ID)
}

func TestSettle_DeclineReleasesSlot(t *testing.T) {
	env := newTestEnv(t)

	instructor := testutil.CreateUser(t, env.db, models.UserRoleInstructor)
	student := testutil.CreateUser(t, env.db, models.UserRoleStudent)
	course := testutil.CreateCourse(t, env.db, instructor.ID, "150000", 1)
	discount := testutil.CreateDiscount(t, env.db, testutil.DiscountOpts{Value: "20", UsageLimit: 1})

	resp := env.createPayment(t, student.ID, course.ID, discount.Code)
	payment := testutil.Reload[models.Payment](t, env.db, resp.Payment.ID)
	assert.Equal(t, 1, testutil.Reload[models.Discount](t, env.db, discount.ID).UsedCount)

	result, err := env.svc.PaymentService.Settle(env.ctx, env.db, report(payment, "24"))
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCancelled, result.Status)

	declined := testutil.Reload[models.Payment](t, env.db, payment.ID)
	assert.Equal(t, models.PaymentStatusCancelled, declined.Status)
	assert.NotNil(t, declined.DiscountReleasedAt)
	assert.Equal(t, 0, testutil.Reload[models.Discount](t, env.db, discount.ID).UsedCount)

	// Слот снова свободен
	other := testutil.CreateUser(t, env.db, models.UserRoleStudent)
	env.createPayment(t, other.ID, course.ID, discount.Code)
	assert.Equal(t, 1, testutil.Reload[models.Discount](t, env.db, discount.ID).UsedCount)
}

// TestSweep_ThirtyMinutes - pending старше 30 минут истекает, свежий остается
func TestSweep_ThirtyMinutes(t *testing.T) {
	env := newTestEnv(t)

	instructor := testutil.CreateUser(t, env.db, models.UserRoleInstructor)
	course := testutil.CreateCourse(t, env.db, instructor.ID, "100000", 1)
	discount := testutil.CreateDiscount(t, env.db, testutil.DiscountOpts{Value: "10", UsageLimit: 5})

	stale := env.createPayment(t, testutil.CreateUser(t, env.db, models.UserRoleStudent).ID, course.ID, discount.Code)
	fresh := env.createPayment(t, testutil.CreateUser(t, env.db, models.UserRoleStudent).ID, course.ID, discount.Code)
	env.backdate(t, stale.Payment.ID, 31*time.Minute)
	env.backdate(t, fresh.Payment.ID, 29*time.Minute)

	result, err := env.svc.PaymentService.Sweep(env.ctx, env.db, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Scanned)
	assert.Equal(t, 1, result.Expired)
	assert.Zero(t, result.Failed)

	expired := testutil.Reload[models.Payment](t, env.db, stale.Payment.ID)
	assert.Equal(t, models.PaymentStatusExpired, expired.Status)
	assert.NotNil(t, expired.ExpiredAt)
	assert.Equal(t, models.PaymentStatusPending, testutil.Reload[models.Payment](t, env.db, fresh.Payment.ID).Status)
	assert.Equal(t, 1, testutil.Reload[models.Discount](t, env.db, discount.ID).UsedCount)

	// Повторный проход ничего не трогает
	result, err = env.svc.PaymentService.Sweep(env.ctx, env.db, time.Now())
	require.NoError(t, err)
	assert.Zero(t, result.Scanned)
	assert.Equal(t, 1, testutil.Reload[models.Discount](t, env.db, discount.ID).UsedCount)

	// Поздний успех по истекшему платежу: no-op и флаг на проверку
	late, err := env.svc.PaymentService.Settle(env.ctx, env.db, report(expired, "00"))
	require.NoError(t, err)
	assert.True(t, late.Replay)
	assert.Equal(t, "02", AcknowledgeIPN(late, nil).RspCode)

	flagged := testutil.Reload[models.Payment](t, env.db, stale.Payment.ID)
	assert.Equal(t, models.PaymentStatusExpired, flagged.Status)
	assert.True(t, flagged.NeedsReview)
	assert.Equal(t, models.ReviewReasonLateSettlement, flagged.ReviewReason)
	assert.Equal(t, 1, testutil.Reload[models.Discount](t, env.db, discount.ID).UsedCount)
}

// TestSettleAndSweep_ReleaseOnce - отказ шлюза и свипер гонятся за одним платежом
func TestSettleAndSweep_ReleaseOnce(t *testing.T) {
	env := newTestEnv(t)

	instructor := testutil.CreateUser(t, env.db, models.UserRoleInstructor)
	course := testutil.CreateCourse(t, env.db, instructor.ID, "100000", 1)
	discount := testutil.CreateDiscount(t, env.db, testutil.DiscountOpts{Value: "10", UsageLimit: 5})

	// второй платеж держит свой слот: двойной возврат был бы виден
	raced := env.createPayment(t, testutil.CreateUser(t, env.db, models.UserRoleStudent).ID, course.ID, discount.Code)
	env.createPayment(t, testutil.CreateUser(t, env.db, models.UserRoleStudent).ID, course.ID, discount.Code)
	env.backdate(t, raced.Payment.ID, time.Hour)
	require.Equal(t, 2, testutil.Reload[models.Discount](t, env.db, discount.ID).UsedCount)

	payment := testutil.Reload[models.Payment](t, env.db, raced.Payment.ID)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = env.svc.PaymentService.Settle(env.ctx, env.db, report(payment, "24"))
	}()
	go func() {
		defer wg.Done()
		_, _ = env.svc.PaymentService.Sweep(env.ctx, env.db, time.Now())
	}()
	wg.Wait()

	final := testutil.Reload[models.Payment](t, env.db, payment.ID)
	assert.Contains(t, []models.PaymentStatus{models.PaymentStatusCancelled, models.PaymentStatusExpired}, final.Status)
	assert.NotNil(t, final.DiscountReleasedAt)
	assert.Equal(t, 1, testutil.Reload[models.Discount](t, env.db, discount.ID).UsedCount)
}

func TestCancelPayment(t *testing.T) {
	env := newTestEnv(t)

	instructor := testutil.CreateUser(t, env.db, models.UserRoleInstructor)
	student := testutil.CreateUser(t, env.db, models.UserRoleStudent)
	course := testutil.CreateCourse(t, env.db, instructor.ID, "100000", 1)
	discount := testutil.CreateDiscount(t, env.db, testutil.DiscountOpts{Value: "10", UsageLimit: 5})

	resp := env.createPayment(t, student.ID, course.ID, discount.Code)
	svc := env.svc.PaymentService

	// Чужой платеж
	_, err := svc.CancelPayment(env.ctx, env.db, instructor.ID, false, resp.Payment.ID)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientPermissions)

	cancelled, err := svc.CancelPayment(env.ctx, env.db, student.ID, false, resp.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCancelled, cancelled.Status)
	assert.Equal(t, 0, testutil.Reload[models.Discount](t, env.db, discount.ID).UsedCount)

	// Повтор - no-op, слот второй раз не возвращается
	again, err := svc.CancelPayment(env.ctx, env.db, student.ID, false, resp.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCancelled, again.Status)
	assert.Equal(t, 0, testutil.Reload[models.Discount](t, env.db, discount.ID).UsedCount)

	// Терминальный платеж не принимает отчеты шлюза
	payment := testutil.Reload[models.Payment](t, env.db, resp.Payment.ID)
	result, err := svc.Settle(env.ctx, env.db, report(payment, "24"))
	require.NoError(t, err)
	assert.True(t, result.Replay)
	assert.Equal(t, models.PaymentStatusCancelled, testutil.Reload[models.Payment](t, env.db, payment.ID).Status)

	// completed -> cancelled запрещен
	paid := env.createPayment(t, student.ID, course.ID, "")
	_, err = svc.Settle(env.ctx, env.db, report(testutil.Reload[models.Payment](t, env.db, paid.Payment.ID), "00"))
	require.NoError(t, err)
	_, err = svc.CancelPayment(env.ctx, env.db, student.ID, false, paid.Payment.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTransition))
}

// TestRefund_HidesAndRepurchaseRestoresReviews - отзыв скрывается при возврате
// и возвращается, когда доступ восстановлен
func TestRefund_HidesAndRepurchaseRestoresReviews(t *testing.T) {
	env := newTestEnv(t)

	admin := testutil.CreateUser(t, env.db, models.UserRoleAdmin)
	instructor := testutil.CreateUser(t, env.db, models.UserRoleInstructor)
	student := testutil.CreateUser(t, env.db, models.UserRoleStudent)
	course := testutil.CreateCourse(t, env.db, instructor.ID, "250000", 1)
	discount := testutil.CreateDiscount(t, env.db, testutil.DiscountOpts{Value: "10", UsageLimit: 5})

	// 1. Покупка и отзыв
	first := env.createPayment(t, student.ID, course.ID, discount.Code)
	_, err := env.svc.PaymentService.Settle(env.ctx, env.db, report(testutil.Reload[models.Payment](t, env.db, first.Payment.ID), "00"))
	require.NoError(t, err)

	enrollment, err := env.svc.EnrollmentService.GetMyEnrollments(env.ctx, env.db, student.ID)
	require.NoError(t, err)
	require.Len(t, enrollment, 1)

	review, err := env.svc.ReviewService.CreateReview(env.ctx, env.db, student.ID, &dto.CreateReviewRequest{
		EnrollmentID: enrollment[0].ID,
		Rating:       5,
		Comment:      "Great course",
	})
	require.NoError(t, err)

	// 2. Возврат
	refunded, err := env.svc.PaymentService.RefundPayment(env.ctx, env.db, admin.ID, first.Payment.ID, &dto.RefundPaymentRequest{Reason: "requested"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRefunded, refunded.Status)

	assert.Equal(t, models.EnrollmentStatusRefunded, testutil.Reload[models.Enrollment](t, env.db, enrollment[0].ID).Status)
	hidden := testutil.Reload[models.Review](t, env.db, review.ID)
	assert.False(t, hidden.IsVisible)
	assert.Equal(t, models.HiddenReasonEnrollmentInactive, hidden.HiddenReason)
	// слот при возврате не освобождается
	assert.Equal(t, 1, testutil.Reload[models.Discount](t, env.db, discount.ID).UsedCount)

	// кэш "мои зачисления" инвалидирован
	mine, err := env.svc.EnrollmentService.GetMyEnrollments(env.ctx, env.db, student.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusRefunded, mine[0].Status)

	list, err := env.svc.ReviewService.GetCourseReviews(env.ctx, env.db, course.ID, 1, 20)
	require.NoError(t, err)
	assert.Empty(t, list.Reviews)

	// 3. Повторная покупка реактивирует ту же строку зачисления
	second := env.createPayment(t, student.ID, course.ID, "")
	_, err = env.svc.PaymentService.Settle(env.ctx, env.db, report(testutil.Reload[models.Payment](t, env.db, second.Payment.ID), "00"))
	require.NoError(t, err)

	assert.EqualValues(t, 1, countRows(t, env, &models.Enrollment{}, "student_id = ? AND course_id = ?", student.ID, course.ID))
	assert.Equal(t, models.EnrollmentStatusActive, testutil.Reload[models.Enrollment](t, env.db, enrollment[0].ID).Status)

	restored := testutil.Reload[models.Review](t, env.db, review.ID)
	assert.True(t, restored.IsVisible)
	assert.Empty(t, restored.HiddenReason)

	// Возврат дважды - no-op
	again, err := env.svc.PaymentService.RefundPayment(env.ctx, env.db, admin.ID, first.Payment.ID, &dto.RefundPaymentRequest{Reason: "again"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRefunded, again.Status)
}

// settled - платеж через публичный путь и успешный отчет шлюза
func (e *testEnv) settled(t *testing.T, userID, courseID string) string {
	t.Helper()
	resp := e.createPayment(t, userID, courseID, "")
	_, err := e.svc.PaymentService.Settle(e.ctx, e.db, report(testutil.Reload[models.Payment](t, e.db, resp.Payment.ID), "00"))
	require.NoError(t, err)
	return resp.Payment.ID
}

// TestRefund_AfterRepurchase - возврат второй покупки снова закрывает доступ
func TestRefund_AfterRepurchase(t *testing.T) {
	env := newTestEnv(t)

	admin := testutil.CreateUser(t, env.db, models.UserRoleAdmin)
	instructor := testutil.CreateUser(t, env.db, models.UserRoleInstructor)
	student := testutil.CreateUser(t, env.db, models.UserRoleStudent)
	course := testutil.CreateCourse(t, env.db, instructor.ID, "250000", 1)
	refund := &dto.RefundPaymentRequest{Reason: "requested"}

	firstID := env.settled(t, student.ID, course.ID)
	_, err := env.svc.PaymentService.RefundPayment(env.ctx, env.db, admin.ID, firstID, refund)
	require.NoError(t, err)

	secondID := env.settled(t, student.ID, course.ID)
	mine, err := env.svc.EnrollmentService.GetMyEnrollments(env.ctx, env.db, student.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)

	reactivated := testutil.Reload[models.Enrollment](t, env.db, mine[0].ID)
	assert.Equal(t, models.EnrollmentStatusActive, reactivated.Status)
	require.NotNil(t, reactivated.PaymentID)
	assert.Equal(t, secondID, *reactivated.PaymentID)

	review, err := env.svc.ReviewService.CreateReview(env.ctx, env.db, student.ID, &dto.CreateReviewRequest{
		EnrollmentID: reactivated.ID,
		Rating:       4,
	})
	require.NoError(t, err)

	_, err = env.svc.PaymentService.RefundPayment(env.ctx, env.db, admin.ID, secondID, refund)
	require.NoError(t, err)

	assert.Equal(t, models.EnrollmentStatusRefunded, testutil.Reload[models.Enrollment](t, env.db, reactivated.ID).Status)
	assert.False(t, testutil.Reload[models.Review](t, env.db, review.ID).IsVisible)
}

// TestRefund_CancelledEnrollment - доступ уже отозван администратором, деньги все равно возвращаются
func TestRefund_CancelledEnrollment(t *testing.T) {
	env := newTestEnv(t)

	admin := testutil.CreateUser(t, env.db, models.UserRoleAdmin)
	instructor := testutil.CreateUser(t, env.db, models.UserRoleInstructor)
	student := testutil.CreateUser(t, env.db, models.UserRoleStudent)
	course := testutil.CreateCourse(t, env.db, instructor.ID, "250000", 1)

	paymentID := env.settled(t, student.ID, course.ID)
	mine, err := env.svc.EnrollmentService.GetMyEnrollments(env.ctx, env.db, student.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)

	_, err = env.svc.EnrollmentService.UpdateStatus(env.ctx, env.db, mine[0].ID, models.EnrollmentStatusCancelled)
	require.NoError(t, err)

	refunded, err := env.svc.PaymentService.RefundPayment(env.ctx, env.db, admin.ID, paymentID, &dto.RefundPaymentRequest{Reason: "requested"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRefunded, refunded.Status)
	assert.Equal(t, models.PaymentStatusRefunded, testutil.Reload[models.Payment](t, env.db, paymentID).Status)
	assert.Equal(t, models.EnrollmentStatusRefunded, testutil.Reload[models.Enrollment](t, env.db, mine[0].ID).Status)
}

// TestSweep_SkipsAmountMismatch - платеж на ручной проверке не истекает и держит слот
func TestSweep_SkipsAmountMismatch(t *testing.T) {
	env := newTestEnv(t)

	instructor := testutil.CreateUser(t, env.db, models.UserRoleInstructor)
	student := testutil.CreateUser(t, env.db, models.UserRoleStudent)
	course := testutil.CreateCourse(t, env.db, instructor.ID, "150000", 1)
	discount := testutil.CreateDiscount(t, env.db, testutil.DiscountOpts{Value: "10", UsageLimit: 5})

	resp := env.createPayment(t, student.ID, course.ID, discount.Code)
	payment := testutil.Reload[models.Payment](t, env.db, resp.Payment.ID)

	bad := report(payment, "00")
	bad.Amount += 100
	_, err := env.svc.PaymentService.Settle(env.ctx, env.db, bad)
	require.True(t, apperrors.HasCode(err, apperrors.CodeAmountMismatch))

	env.backdate(t, payment.ID, 2*time.Hour)

	result, err := env.svc.PaymentService.Sweep(env.ctx, env.db, time.Now())
	require.NoError(t, err)
	assert.Zero(t, result.Scanned)
	assert.Zero(t, result.Expired)

	flagged := testutil.Reload[models.Payment](t, env.db, payment.ID)
	assert.Equal(t, models.PaymentStatusPending, flagged.Status)
	assert.True(t, flagged.NeedsReview)
	assert.Nil(t, flagged.DiscountReleasedAt)
	assert.Equal(t, 1, testutil.Reload[models.Discount](t, env.db, discount.ID).UsedCount)

	// Флаг проверяется и под блокировкой, даже если строка попала в выборку
	expired, err := env.svc.PaymentService.(*paymentService).expireOne(env.ctx, env.db, payment.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, expired)
	assert.Equal(t, models.PaymentStatusPending, testutil.Reload[models.Payment](t, env.db, payment.ID).Status)
}

func TestHandleGatewayReport_Signature(t *testing.T) {
	env := newTestEnv(t)

	instructor := testutil.CreateUser(t, env.db, models.UserRoleInstructor)
	student := testutil.CreateUser(t, env.db, models.UserRoleStudent)
	course := testutil.CreateCourse(t, env.db, instructor.ID, "120000", 1)
	resp := env.createPayment(t, student.ID, course.ID, "")

	params := map[string]string{
		"vnp_TxnRef":            resp.Payment.TransactionRef,
		"vnp_Amount":            "12000000",
		"vnp_ResponseCode":      "00",
		"vnp_TransactionStatus": "00",
		"vnp_TransactionNo":     "14099999",
		"vnp_BankCode":          "NCB",
	}

	// 1. Подпись подделана
	params["vnp_SecureHash"] = "deadbeef"
	result, err := env.svc.PaymentService.HandleGatewayReport(env.ctx, env.db, params)
	assert.Equal(t, "97", AcknowledgeIPN(result, err).RspCode)
	assert.Equal(t, models.PaymentStatusPending, testutil.Reload[models.Payment](t, env.db, resp.Payment.ID).Status)

	// 2. Правильная подпись
	delete(params, "vnp_SecureHash")
	params["vnp_SecureHash"] = env.gw.SignParams(params)
	result, err = env.svc.PaymentService.HandleGatewayReport(env.ctx, env.db, params)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, result.Status)

	// 3. Неизвестный ref
	params["vnp_TxnRef"] = "UNKNOWNREF"
	delete(params, "vnp_SecureHash")
	params["vnp_SecureHash"] = env.gw.SignParams(params)
	result, err = env.svc.PaymentService.HandleGatewayReport(env.ctx, env.db, params)
	assert.Equal(t, "01", AcknowledgeIPN(result, err).RspCode)
}

func TestAcknowledgeIPN(t *testing.T) {
	tests := []struct {
		name   string
		result *dto.SettleResult
		err    error
		code   string
	}{
		{"settled", &dto.SettleResult{Status: models.PaymentStatusCompleted}, nil, "00"},
		{"replay of completed", &dto.SettleResult{Status: models.PaymentStatusCompleted, Replay: true}, nil, "00"},
		{"declined", &dto.SettleResult{Status: models.PaymentStatusCancelled}, nil, "00"},
		{"closed in another state", &dto.SettleResult{Status: models.PaymentStatusExpired, Replay: true}, nil, "02"},
		{"locked", nil, apperrors.ErrConcurrencyNoOp, "00"},
		{"not found", nil, apperrors.ErrNotFound("payment", nil), "01"},
		{"amount", nil, apperrors.ErrAmountMismatch, "04"},
		{"signature", nil, apperrors.ErrInvalidSignature, "97"},
		{"unknown", nil, apperrors.DatabaseError(assert.AnError), "99"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, AcknowledgeIPN(tt.result, tt.err).RspCode)
		})
	}
}

func TestGetPayment_Ownership(t *testing.T) {
	env := newTestEnv(t)

	instructor := testutil.CreateUser(t, env.db, models.UserRoleInstructor)
	student := testutil.CreateUser(t, env.db, models.UserRoleStudent)
	course := testutil.CreateCourse(t, env.db, instructor.ID, "120000", 1)
	resp := env.createPayment(t, student.ID, course.ID, "")

	_, err := env.svc.PaymentService.GetPayment(env.ctx, env.db, instructor.ID, false, resp.Payment.ID)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientPermissions)

	got, err := env.svc.PaymentService.GetPayment(env.ctx, env.db, instructor.ID, true, resp.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, resp.Payment.ID, got.ID)

	mine, err := env.svc.PaymentService.GetMyPayments(env.ctx, env.db, student.ID, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, mine.Total)
	assert.Equal(t, 1, mine.TotalPages)
}
