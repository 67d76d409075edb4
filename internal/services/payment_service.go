package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"learnhub_backend/internal/events"
	"learnhub_backend/internal/logger"
	"learnhub_backend/internal/models"
	"learnhub_backend/internal/repositories"
	"learnhub_backend/internal/services/dto"
	"learnhub_backend/internal/services/gateway"
	"learnhub_backend/pkg/apperrors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PaymentGateway - граница платежного шлюза. Реализация: gateway.VNPayService.
type PaymentGateway interface {
	BuildPaymentURL(req gateway.PaymentRequest) (string, error)
	VerifySignature(params map[string]string) error
	ParseReport(params map[string]string) (*gateway.Report, error)
}

// PaymentConfig - параметры платежей
type PaymentConfig struct {
	Currency       string
	PendingTTL     time.Duration
	SweepBatchSize int
}

// =======================
// 1. ИНТЕРФЕЙС
// =======================
type PaymentService interface {
	// Payment lifecycle
	CreatePayment(ctx context.Context, db *gorm.DB, userID string, req *dto.CreatePaymentRequest, clientIP, userAgent string) (*dto.CreatePaymentResponse, error)
	Settle(ctx context.Context, db *gorm.DB, report *gateway.Report) (*dto.SettleResult, error)
	HandleGatewayReport(ctx context.Context, db *gorm.DB, params map[string]string) (*dto.SettleResult, error)
	CancelPayment(ctx context.Context, db *gorm.DB, userID string, isAdmin bool, paymentID string) (*dto.PaymentResponse, error)
	RefundPayment(ctx context.Context, db *gorm.DB, adminID, paymentID string, req *dto.RefundPaymentRequest) (*dto.PaymentResponse, error)

	// Sweeper
	Sweep(ctx context.Context, db *gorm.DB, now time.Time) (*dto.SweepResult, error)

	// Reads
	GetPayment(ctx context.Context, db *gorm.DB, userID string, isAdmin bool, paymentID string) (*dto.PaymentResponse, error)
	GetPaymentStatus(ctx context.Context, db *gorm.DB, transactionRef string) (models.PaymentStatus, error)
	GetMyPayments(ctx context.Context, db *gorm.DB, userID string, page, pageSize int) (*dto.PaymentListResponse, error)
	GetFlaggedPayments(ctx context.Context, db *gorm.DB, page, pageSize int) (*dto.PaymentListResponse, error)
}

// =======================
// 2. РЕАЛИЗАЦИЯ
// =======================
type paymentService struct {
	paymentRepo       repositories.PaymentRepository
	userRepo          repositories.UserRepository
	enrollmentRepo    repositories.EnrollmentRepository
	discountService   DiscountService
	enrollmentService EnrollmentService
	gateway           PaymentGateway
	bus               *events.Bus
	cfg               PaymentConfig
}

func NewPaymentService(
	paymentRepo repositories.PaymentRepository,
	userRepo repositories.UserRepository,
	enrollmentRepo repositories.EnrollmentRepository,
	discountService DiscountService,
	enrollmentService EnrollmentService,
	gw PaymentGateway,
	bus *events.Bus,
	cfg PaymentConfig,
) PaymentService {
	if cfg.Currency == "" {
		cfg.Currency = "VND"
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = 30 * time.Minute
	}
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = 100
	}
	return &paymentService{
		paymentRepo:       paymentRepo,
		userRepo:          userRepo,
		enrollmentRepo:    enrollmentRepo,
		discountService:   discountService,
		enrollmentService: enrollmentService,
		gateway:           gw,
		bus:               bus,
		cfg:               cfg,
	}
}

// Разрешенные переходы статусов платежа
var paymentTransitions = map[models.PaymentStatus][]models.PaymentStatus{
	models.PaymentStatusPending: {
		models.PaymentStatusCompleted,
		models.PaymentStatusCancelled,
		models.PaymentStatusExpired,
	},
	models.PaymentStatusCompleted: {models.PaymentStatusRefunded},
}

func canTransitionPayment(from, to models.PaymentStatus) bool {
	for _, allowed := range paymentTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// newTransactionRef - буквенно-цифровой ref, который принимает шлюз.
func newTransactionRef(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
	return now.Format("20060102150405") + suffix
}

// ---------------- Create ----------------

func (s *paymentService) CreatePayment(ctx context.Context, db *gorm.DB, userID string, req *dto.CreatePaymentRequest, clientIP, userAgent string) (*dto.CreatePaymentResponse, error) {
	user, err := s.userRepo.FindUserByID(db, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return nil, apperrors.ValidationError(map[string]string{"user_id": "user does not exist"})
		}
		return nil, handleRepoError(err)
	}
	if !user.IsActive {
		return nil, apperrors.ErrAccountDisabled
	}

	course, err := s.userRepo.FindCourseByID(db, req.CourseID)
	if err != nil {
		return nil, handleRepoError(err)
	}
	if !course.IsPublished {
		return nil, apperrors.ErrCourseUnavailable
	}

	enrolled, err := s.enrollmentRepo.HasAccess(db, userID, course.ID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	if enrolled {
		return nil, apperrors.ErrAlreadyEnrolled
	}

	if req.PaymentMethod != "" && models.PaymentMethod(req.PaymentMethod) != models.PaymentMethodVNPay {
		return nil, apperrors.ValidationError(map[string]string{"payment_method": "unsupported payment method"})
	}

	now := nowUTC()
	payment := &models.Payment{
		TransactionRef: newTransactionRef(now),
		UserID:         userID,
		CourseID:       course.ID,
		OriginalPrice:  course.Price,
		DiscountAmount: decimal.Zero,
		Amount:         course.Price,
		Currency:       s.cfg.Currency,
		Status:         models.PaymentStatusPending,
		PaymentMethod:  models.PaymentMethodVNPay,
		ClientIP:       clientIP,
		UserAgent:      userAgent,
	}

	tx := db.Begin()
	if tx.Error != nil {
		return nil, apperrors.DatabaseError(tx.Error)
	}
	defer tx.Rollback()

	// 1. Слот промокода резервируется синхронно, отказ сразу уходит клиенту
	if code := strings.TrimSpace(req.DiscountCode); code != "" {
		reservation, err := s.discountService.Reserve(ctx, tx, userID, course, code)
		if err != nil {
			return nil, err
		}
		payment.DiscountID = &reservation.Discount.ID
		payment.DiscountAmount = reservation.Amount
		payment.Amount = course.Price.Sub(reservation.Amount)
		if payment.Amount.IsNegative() {
			payment.Amount = decimal.Zero
		}
	}

	// 2. Платеж всегда рождается pending
	if err := s.paymentRepo.CreatePayment(tx, payment); err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	response := &dto.CreatePaymentResponse{}

	// 3. Бесплатный путь: завершение в той же транзакции, без шлюза
	if payment.Amount.IsZero() {
		fields := map[string]interface{}{
			"payment_method": models.PaymentMethodFree,
			"paid_at":        now,
		}
		enrollment, err := s.complete(ctx, tx, payment, fields)
		if err != nil {
			return nil, err
		}
		payment.PaymentMethod = models.PaymentMethodFree
		response.EnrollmentID = enrollment.ID
	} else {
		url, err := s.gateway.BuildPaymentURL(gateway.PaymentRequest{
			TxnRef:    payment.TransactionRef,
			Amount:    payment.Amount,
			OrderInfo: fmt.Sprintf("Payment for course %s", course.Title),
			ClientIP:  clientIP,
			CreatedAt: now,
		})
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeExternalServiceError, "payment",
				"Failed to build payment URL", http.StatusBadGateway)
		}
		response.PaymentURL = url
	}

	if err := tx.Commit().Error; err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	if payment.Status == models.PaymentStatusCompleted {
		s.enrollmentService.Invalidate(ctx, userID)
	}

	logger.CtxInfo(ctx, "Payment created",
		"payment_id", payment.ID,
		"transaction_ref", payment.TransactionRef,
		"amount", payment.Amount.String(),
		"status", payment.Status,
	)

	response.Payment = dto.NewPaymentResponse(payment)
	return response, nil
}

// complete - pending -> completed, потребление слота, зачисление и событие.
// Все в транзакции вызывающего.
func (s *paymentService) complete(ctx context.Context, tx *gorm.DB, payment *models.Payment, fields map[string]interface{}) (*models.Enrollment, error) {
	updated, err := s.paymentRepo.TransitionStatus(tx, payment.ID, models.PaymentStatusPending, models.PaymentStatusCompleted, fields)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	if !updated {
		return nil, apperrors.ErrConcurrencyNoOp
	}

	payment.Status = models.PaymentStatusCompleted
	if paidAt, ok := fields["paid_at"].(time.Time); ok {
		payment.PaidAt = &paidAt
	}

	if err := s.discountService.Consume(ctx, tx, payment); err != nil {
		return nil, err
	}

	enrollment, err := s.enrollmentService.Materialize(ctx, tx, payment)
	if err != nil {
		return nil, err
	}

	err = s.bus.Publish(ctx, tx, events.Event{
		Name:     events.PaymentCompleted,
		EntityID: payment.ID,
		UserID:   payment.UserID,
		Data: map[string]interface{}{
			"course_id":       payment.CourseID,
			"amount":          payment.Amount.String(),
			"transaction_ref": payment.TransactionRef,
			"enrollment_id":   enrollment.ID,
		},
	})
	if err != nil {
		return nil, busError(err)
	}
	return enrollment, nil
}

// closePending - pending -> cancelled / expired и возврат слота в одной транзакции.
func (s *paymentService) closePending(ctx context.Context, tx *gorm.DB, payment *models.Payment, to models.PaymentStatus, fields map[string]interface{}) error {
	updated, err := s.paymentRepo.TransitionStatus(tx, payment.ID, models.PaymentStatusPending, to, fields)
	if err != nil {
		return apperrors.DatabaseError(err)
	}
	if !updated {
		return apperrors.ErrConcurrencyNoOp
	}
	payment.Status = to

	released, err := s.discountService.Release(ctx, tx, payment)
	if err != nil {
		return err
	}
	if released {
		logger.CtxInfo(ctx, "Discount slot released", "payment_id", payment.ID, "discount_id", *payment.DiscountID, "reason", to)
	}
	return nil
}

// ---------------- Settlement ----------------

// HandleGatewayReport - общий вход для return redirect и IPN.
func (s *paymentService) HandleGatewayReport(ctx context.Context, db *gorm.DB, params map[string]string) (*dto.SettleResult, error) {
	if err := s.gateway.VerifySignature(params); err != nil {
		logger.CtxWarn(ctx, "Gateway signature rejected", "txn_ref", params["vnp_TxnRef"], "error", err)
		return nil, apperrors.ErrInvalidSignature
	}

	report, err := s.gateway.ParseReport(params)
	if err != nil {
		return nil, apperrors.NewBadRequestError(err.Error())
	}
	return s.Settle(ctx, db, report)
}

// Settle применяет отчет шлюза. Строка берется SKIP LOCKED: если ее держит
// другой обработчик, возвращается ErrConcurrencyNoOp без ожидания.
func (s *paymentService) Settle(ctx context.Context, db *gorm.DB, report *gateway.Report) (*dto.SettleResult, error) {
	tx := db.Begin()
	if tx.Error != nil {
		return nil, apperrors.DatabaseError(tx.Error)
	}
	defer tx.Rollback()

	payment, err := s.paymentRepo.LockPaymentByRef(tx, report.TxnRef)
	if err != nil {
		if errors.Is(err, repositories.ErrPaymentLocked) {
			logger.CtxDebug(ctx, "Payment locked by another settlement", "transaction_ref", report.TxnRef)
		}
		return nil, handleRepoError(err)
	}

	result := &dto.SettleResult{
		PaymentID:      payment.ID,
		TransactionRef: payment.TransactionRef,
		Status:         payment.Status,
	}

	// 1. Терминальный статус: повтор или поздний отчет
	if payment.Status.IsTerminal() {
		result.Replay = true
		if payment.Status == models.PaymentStatusCompleted || !report.Succeeded() {
			return result, nil
		}

		if !payment.NeedsReview {
			if err := s.paymentRepo.FlagForReview(tx, payment.ID, models.ReviewReasonLateSettlement); err != nil {
				return nil, apperrors.DatabaseError(err)
			}
			if err := tx.Commit().Error; err != nil {
				return nil, apperrors.DatabaseError(err)
			}
		}
		logger.Alert(ctx, "Gateway reported success for a closed payment",
			"payment_id", payment.ID,
			"status", payment.Status,
			"gateway_transaction_no", report.TransactionNo,
		)
		return result, nil
	}

	// 2. Сумма должна совпасть точно; иначе платеж остается pending
	if !report.AmountMatches(payment.Amount) {
		if err := s.paymentRepo.FlagForReview(tx, payment.ID, models.ReviewReasonAmountMismatch); err != nil {
			return nil, apperrors.DatabaseError(err)
		}
		if err := tx.Commit().Error; err != nil {
			return nil, apperrors.DatabaseError(err)
		}
		logger.Alert(ctx, "Gateway amount mismatch",
			"payment_id", payment.ID,
			"expected_minor", payment.Amount.Mul(decimal.NewFromInt(100)).String(),
			"reported_minor", report.Amount,
		)
		return nil, apperrors.ErrAmountMismatch
	}

	fields := map[string]interface{}{
		"gateway_response_code": report.ResponseCode,
		"gateway_payload":       gatewayPayload(report),
	}
	now := nowUTC()

	// 3. Успех или отказ шлюза
	if report.Succeeded() {
		fields["paid_at"] = now
		fields["gateway_transaction_no"] = report.TransactionNo
		if _, err := s.complete(ctx, tx, payment, fields); err != nil {
			return nil, err
		}
	} else {
		fields["cancelled_at"] = now
		if err := s.closePending(ctx, tx, payment, models.PaymentStatusCancelled, fields); err != nil {
			return nil, err
		}
		logger.CtxInfo(ctx, "Payment declined by gateway",
			"payment_id", payment.ID,
			"response_code", report.ResponseCode,
			"message", gateway.ResponseMessage(report.ResponseCode),
		)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	if payment.Status == models.PaymentStatusCompleted {
		s.enrollmentService.Invalidate(ctx, payment.UserID)
		logger.CtxInfo(ctx, "Payment settled", "payment_id", payment.ID, "transaction_ref", payment.TransactionRef)
	}

	result.Status = payment.Status
	return result, nil
}

func gatewayPayload(report *gateway.Report) datatypes.JSON {
	if len(report.Raw) == 0 {
		return nil
	}
	raw, err := json.Marshal(report.Raw)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

// AcknowledgeIPN переводит исход Settle в код ответа шлюзу.
func AcknowledgeIPN(result *dto.SettleResult, err error) dto.IPNResponse {
	switch {
	case err == nil && result != nil && result.Replay && result.Status != models.PaymentStatusCompleted:
		return dto.IPNResponse{RspCode: "02", Message: "Order already confirmed"}
	case err == nil:
		return dto.IPNResponse{RspCode: "00", Message: "Confirm Success"}
	case apperrors.HasCode(err, apperrors.CodeConcurrencyNoOp):
		return dto.IPNResponse{RspCode: "00", Message: "Confirm Success"}
	case apperrors.HasCode(err, apperrors.CodeNotFound):
		return dto.IPNResponse{RspCode: "01", Message: "Order not found"}
	case apperrors.HasCode(err, apperrors.CodeAmountMismatch):
		return dto.IPNResponse{RspCode: "04", Message: "Invalid amount"}
	case apperrors.HasCode(err, apperrors.CodeInvalidSignature):
		return dto.IPNResponse{RspCode: "97", Message: "Invalid signature"}
	default:
		return dto.IPNResponse{RspCode: "99", Message: "Unknown error"}
	}
}

// ---------------- Cancel / Refund ----------------

func (s *paymentService) CancelPayment(ctx context.Context, db *gorm.DB, userID string, isAdmin bool, paymentID string) (*dto.PaymentResponse, error) {
	tx := db.Begin()
	if tx.Error != nil {
		return nil, apperrors.DatabaseError(tx.Error)
	}
	defer tx.Rollback()

	payment, err := s.paymentRepo.LockPaymentByID(tx, paymentID)
	if err != nil {
		return nil, handleRepoError(err)
	}
	if !isAdmin && payment.UserID != userID {
		return nil, apperrors.ErrInsufficientPermissions
	}

	if payment.Status == models.PaymentStatusCancelled {
		return dto.NewPaymentResponse(payment), nil
	}
	if !canTransitionPayment(payment.Status, models.PaymentStatusCancelled) {
		logger.CtxError(ctx, "Invalid payment transition", "payment_id", payment.ID, "from", payment.Status, "to", models.PaymentStatusCancelled)
		return nil, apperrors.ErrInvalidTransition("payment", string(payment.Status), string(models.PaymentStatusCancelled))
	}

	now := nowUTC()
	if err := s.closePending(ctx, tx, payment, models.PaymentStatusCancelled, map[string]interface{}{"cancelled_at": now}); err != nil {
		return nil, err
	}
	payment.CancelledAt = &now

	if err := tx.Commit().Error; err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	logger.CtxInfo(ctx, "Payment cancelled", "payment_id", payment.ID, "by_admin", isAdmin)
	return dto.NewPaymentResponse(payment), nil
}

// RefundPayment - completed -> refunded. Слот промокода не возвращается.
func (s *paymentService) RefundPayment(ctx context.Context, db *gorm.DB, adminID, paymentID string, req *dto.RefundPaymentRequest) (*dto.PaymentResponse, error) {
	tx := db.Begin()
	if tx.Error != nil {
		return nil, apperrors.DatabaseError(tx.Error)
	}
	defer tx.Rollback()

	payment, err := s.paymentRepo.LockPaymentByID(tx, paymentID)
	if err != nil {
		return nil, handleRepoError(err)
	}

	if payment.Status == models.PaymentStatusRefunded {
		return dto.NewPaymentResponse(payment), nil
	}
	if !canTransitionPayment(payment.Status, models.PaymentStatusRefunded) {
		logger.CtxError(ctx, "Invalid payment transition", "payment_id", payment.ID, "from", payment.Status, "to", models.PaymentStatusRefunded)
		return nil, apperrors.ErrInvalidTransition("payment", string(payment.Status), string(models.PaymentStatusRefunded))
	}

	now := nowUTC()
	updated, err := s.paymentRepo.TransitionStatus(tx, payment.ID, models.PaymentStatusCompleted, models.PaymentStatusRefunded,
		map[string]interface{}{"refunded_at": now})
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	if !updated {
		return nil, apperrors.ErrConcurrencyNoOp
	}
	payment.Status = models.PaymentStatusRefunded
	payment.RefundedAt = &now

	// Зачисление, выданное этим платежом, уходит в refunded через общий путь статусов
	enrollment, err := s.enrollmentRepo.FindEnrollmentByStudentAndCourse(tx, payment.UserID, payment.CourseID)
	switch {
	case err == nil:
		if enrollment.PaymentID == nil || *enrollment.PaymentID == payment.ID {
			if err := s.enrollmentService.ChangeStatus(ctx, tx, enrollment, models.EnrollmentStatusRefunded); err != nil {
				return nil, err
			}
		}
	case !errors.Is(err, repositories.ErrEnrollmentNotFound):
		return nil, apperrors.DatabaseError(err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	s.enrollmentService.Invalidate(ctx, payment.UserID)

	logger.CtxInfo(ctx, "Payment refunded", "payment_id", payment.ID, "admin_id", adminID, "reason", req.Reason)
	return dto.NewPaymentResponse(payment), nil
}

// ---------------- Sweeper ----------------

// Sweep переводит зависшие pending-платежи в expired. Каждая строка в своей
// транзакции; ошибка одной строки не останавливает проход.
func (s *paymentService) Sweep(ctx context.Context, db *gorm.DB, now time.Time) (*dto.SweepResult, error) {
	cutoff := now.UTC().Add(-s.cfg.PendingTTL)

	ids, err := s.paymentRepo.FindStalePendingIDs(db, cutoff, s.cfg.SweepBatchSize)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	result := &dto.SweepResult{Scanned: len(ids)}
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}

		expired, err := s.expireOne(ctx, db, id, cutoff)
		switch {
		case err != nil:
			result.Failed++
			logger.CtxWithError(ctx, "Failed to expire payment", err, "payment_id", id)
		case expired:
			result.Expired++
		default:
			result.Skipped++
		}
	}

	if result.Scanned > 0 {
		logger.CtxInfo(ctx, "Pending payments swept",
			"scanned", result.Scanned,
			"expired", result.Expired,
			"skipped", result.Skipped,
			"failed", result.Failed,
		)
	}
	return result, nil
}

// expireOne: false без ошибки = строку держат или она уже не pending.
func (s *paymentService) expireOne(ctx context.Context, db *gorm.DB, paymentID string, cutoff time.Time) (bool, error) {
	tx := db.Begin()
	if tx.Error != nil {
		return false, tx.Error
	}
	defer tx.Rollback()

	payment, err := s.paymentRepo.LockPaymentByID(tx, paymentID)
	if err != nil {
		if errors.Is(err, repositories.ErrPaymentLocked) || errors.Is(err, repositories.ErrPaymentNotFound) {
			return false, nil
		}
		return false, err
	}
	if payment.Status != models.PaymentStatusPending || !payment.CreatedAt.Before(cutoff) {
		return false, nil
	}
	// Расхождение суммы: деньги могли быть списаны, решает администратор
	if payment.NeedsReview {
		logger.CtxDebug(ctx, "Payment awaits manual review, not expiring", "payment_id", payment.ID, "reason", payment.ReviewReason)
		return false, nil
	}

	err = s.closePending(ctx, tx, payment, models.PaymentStatusExpired, map[string]interface{}{"expired_at": nowUTC()})
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeConcurrencyNoOp) {
			return false, nil
		}
		return false, err
	}

	if err := tx.Commit().Error; err != nil {
		return false, err
	}
	return true, nil
}

// ---------------- Reads ----------------

func (s *paymentService) GetPayment(ctx context.Context, db *gorm.DB, userID string, isAdmin bool, paymentID string) (*dto.PaymentResponse, error) {
	payment, err := s.paymentRepo.FindPaymentByID(db, paymentID)
	if err != nil {
		return nil, handleRepoError(err)
	}
	if !isAdmin && payment.UserID != userID {
		return nil, apperrors.ErrInsufficientPermissions
	}
	return dto.NewPaymentResponse(payment), nil
}

// GetPaymentStatus - статус без блокировки, для редиректа браузера
func (s *paymentService) GetPaymentStatus(ctx context.Context, db *gorm.DB, transactionRef string) (models.PaymentStatus, error) {
	payment, err := s.paymentRepo.FindPaymentByRef(db, transactionRef)
	if err != nil {
		return "", handleRepoError(err)
	}
	return payment.Status, nil
}

func (s *paymentService) GetMyPayments(ctx context.Context, db *gorm.DB, userID string, page, pageSize int) (*dto.PaymentListResponse, error) {
	page, pageSize = dto.NormalizePage(page, pageSize)
	payments, total, err := s.paymentRepo.FindUserPayments(db, userID, page, pageSize)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return newPaymentList(payments, total, page, pageSize), nil
}

func (s *paymentService) GetFlaggedPayments(ctx context.Context, db *gorm.DB, page, pageSize int) (*dto.PaymentListResponse, error) {
	page, pageSize = dto.NormalizePage(page, pageSize)
	payments, total, err := s.paymentRepo.FindFlaggedPayments(db, page, pageSize)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return newPaymentList(payments, total, page, pageSize), nil
}

func newPaymentList(payments []models.Payment, total int64, page, pageSize int) *dto.PaymentListResponse {
	items := make([]*dto.PaymentResponse, 0, len(payments))
	for i := range payments {
		items = append(items, dto.NewPaymentResponse(&payments[i]))
	}
	return &dto.PaymentListResponse{
		Payments:   items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: dto.TotalPages(total, pageSize),
	}
}
