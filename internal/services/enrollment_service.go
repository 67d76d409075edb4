package services

import (
	"context"

	"learnhub_backend/internal/cache"
	"learnhub_backend/internal/events"
	"learnhub_backend/internal/logger"
	"learnhub_backend/internal/models"
	"learnhub_backend/internal/repositories"
	"learnhub_backend/internal/services/dto"
	"learnhub_backend/pkg/apperrors"

	"gorm.io/gorm"
)

const enrollmentsCacheNS = "enrollments"

// =======================
// 1. ИНТЕРФЕЙС
// =======================
type EnrollmentService interface {
	// Внутри транзакции вызывающего
	Materialize(ctx context.Context, tx *gorm.DB, payment *models.Payment) (*models.Enrollment, error)
	ChangeStatus(ctx context.Context, tx *gorm.DB, enrollment *models.Enrollment, to models.EnrollmentStatus) error

	// Public operations
	RequestEnrollment(ctx context.Context, db *gorm.DB, userID string, role models.UserRole, req *dto.EnrollRequest) (*dto.EnrollmentResponse, error)
	GetEnrollment(ctx context.Context, db *gorm.DB, userID string, isAdmin bool, enrollmentID string) (*dto.EnrollmentResponse, error)
	GetMyEnrollments(ctx context.Context, db *gorm.DB, userID string) ([]*dto.EnrollmentResponse, error)

	// Admin operations
	UpdateStatus(ctx context.Context, db *gorm.DB, enrollmentID string, to models.EnrollmentStatus) (*dto.EnrollmentResponse, error)

	// Кэш: вызывается после коммита
	Invalidate(ctx context.Context, studentID string)
}

// Разрешенные переходы статусов зачисления
var enrollmentTransitions = map[models.EnrollmentStatus][]models.EnrollmentStatus{
	models.EnrollmentStatusActive: {
		models.EnrollmentStatusCompleted,
		models.EnrollmentStatusCancelled,
		models.EnrollmentStatusExpired,
		models.EnrollmentStatusRefunded,
	},
	models.EnrollmentStatusCompleted: {
		models.EnrollmentStatusRefunded,
		models.EnrollmentStatusCancelled,
	},
	// refunded из закрытых статусов: возврат денег после отмены доступа
	models.EnrollmentStatusCancelled: {models.EnrollmentStatusActive, models.EnrollmentStatusRefunded},
	models.EnrollmentStatusExpired:   {models.EnrollmentStatusActive, models.EnrollmentStatusRefunded},
	models.EnrollmentStatusRefunded:  {models.EnrollmentStatusActive},
}

func canTransitionEnrollment(from, to models.EnrollmentStatus) bool {
	for _, allowed := range enrollmentTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// =======================
// 2. РЕАЛИЗАЦИЯ
// =======================
type enrollmentService struct {
	enrollmentRepo repositories.EnrollmentRepository
	userRepo       repositories.UserRepository
	bus            *events.Bus
	cache          *cache.Versioned // nil = без кэша
}

func NewEnrollmentService(
	enrollmentRepo repositories.EnrollmentRepository,
	userRepo repositories.UserRepository,
	bus *events.Bus,
	versioned *cache.Versioned,
) EnrollmentService {
	return &enrollmentService{
		enrollmentRepo: enrollmentRepo,
		userRepo:       userRepo,
		bus:            bus,
		cache:          versioned,
	}
}

// Materialize - get-or-create зачисления по завершенному платежу.
// Вторая строка на пару (student, course) не появляется никогда.
func (s *enrollmentService) Materialize(ctx context.Context, tx *gorm.DB, payment *models.Payment) (*models.Enrollment, error) {
	paymentID := payment.ID
	return s.getOrCreate(ctx, tx, payment.UserID, payment.CourseID, &paymentID, nil)
}

func (s *enrollmentService) getOrCreate(ctx context.Context, tx *gorm.DB, studentID, courseID string, paymentID, grantedBy *string) (*models.Enrollment, error) {
	enrollment := &models.Enrollment{
		StudentID:  studentID,
		CourseID:   courseID,
		Status:     models.EnrollmentStatusActive,
		PaymentID:  paymentID,
		GrantedBy:  grantedBy,
		EnrolledAt: nowUTC(),
	}

	created, err := s.enrollmentRepo.CreateEnrollment(tx, enrollment)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	if created {
		logger.CtxInfo(ctx, "Enrollment created",
			"enrollment_id", enrollment.ID,
			"student_id", studentID,
			"course_id", courseID,
		)
		err := s.bus.Publish(ctx, tx, events.Event{
			Name:     events.EnrollmentCreated,
			EntityID: enrollment.ID,
			UserID:   studentID,
			Data:     map[string]interface{}{"course_id": courseID},
		})
		if err != nil {
			return nil, busError(err)
		}
		return enrollment, nil
	}

	// Строка уже есть: перечитываем и дополняем
	existing, err := s.enrollmentRepo.FindEnrollmentByStudentAndCourse(tx, studentID, courseID)
	if err != nil {
		return nil, handleRepoError(err)
	}

	// Повторная покупка после возврата/отмены: доступ восстанавливается, и
	// зачисление переходит на новый платеж тем же условным UPDATE.
	if !existing.Status.GrantsAccess() {
		var fields map[string]interface{}
		if paymentID != nil {
			fields = map[string]interface{}{"payment_id": *paymentID}
		}
		if err := s.changeStatus(ctx, tx, existing, models.EnrollmentStatusActive, fields); err != nil {
			return nil, err
		}
		if paymentID != nil {
			existing.PaymentID = paymentID
		}
	}

	if paymentID != nil && existing.PaymentID == nil {
		attached, err := s.enrollmentRepo.AttachPayment(tx, existing.ID, *paymentID)
		if err != nil {
			return nil, apperrors.DatabaseError(err)
		}
		if attached {
			existing.PaymentID = paymentID
		}
	}

	logger.CtxDebug(ctx, "Enrollment already exists", "enrollment_id", existing.ID, "status", existing.Status)
	return existing, nil
}

// ChangeStatus - единственное место, где меняется статус зачисления.
// Подписчики (гейт отзывов) выполняются в той же транзакции.
func (s *enrollmentService) ChangeStatus(ctx context.Context, tx *gorm.DB, enrollment *models.Enrollment, to models.EnrollmentStatus) error {
	return s.changeStatus(ctx, tx, enrollment, to, nil)
}

// changeStatus - переход статуса; extra пишется в той же строке тем же UPDATE.
func (s *enrollmentService) changeStatus(ctx context.Context, tx *gorm.DB, enrollment *models.Enrollment, to models.EnrollmentStatus, extra map[string]interface{}) error {
	from := enrollment.Status
	if from == to {
		return nil
	}
	if !canTransitionEnrollment(from, to) {
		logger.CtxError(ctx, "Invalid enrollment transition",
			"enrollment_id", enrollment.ID,
			"from", from,
			"to", to,
		)
		return apperrors.ErrInvalidTransition("enrollment", string(from), string(to))
	}

	fields := map[string]interface{}{}
	for k, v := range extra {
		fields[k] = v
	}
	now := nowUTC()
	switch to {
	case models.EnrollmentStatusCompleted:
		fields["completed_at"] = now
	case models.EnrollmentStatusActive:
		fields["completed_at"] = nil
	}

	updated, err := s.enrollmentRepo.UpdateStatus(tx, enrollment.ID, from, to, fields)
	if err != nil {
		return apperrors.DatabaseError(err)
	}
	if !updated {
		logger.CtxDebug(ctx, "Enrollment status changed concurrently", "enrollment_id", enrollment.ID, "expected", from)
		return apperrors.ErrConcurrencyNoOp
	}

	enrollment.Status = to
	switch to {
	case models.EnrollmentStatusCompleted:
		enrollment.CompletedAt = &now
	case models.EnrollmentStatusActive:
		enrollment.CompletedAt = nil
	}

	logger.CtxInfo(ctx, "Enrollment status changed", "enrollment_id", enrollment.ID, "from", from, "to", to)

	err = s.bus.PublishStatusChanged(ctx, tx, events.EnrollmentStatusChanged{
		EnrollmentID: enrollment.ID,
		StudentID:    enrollment.StudentID,
		CourseID:     enrollment.CourseID,
		From:         from,
		To:           to,
		OccurredAt:   now,
	})
	if err != nil {
		return busError(err)
	}
	return nil
}

// ---------------- Public operations ----------------

// RequestEnrollment - прямое зачисление только для администратора.
// Остальным нужен завершенный платеж.
func (s *enrollmentService) RequestEnrollment(ctx context.Context, db *gorm.DB, userID string, role models.UserRole, req *dto.EnrollRequest) (*dto.EnrollmentResponse, error) {
	if role != models.UserRoleAdmin {
		return nil, apperrors.ErrPaymentRequired
	}

	studentID := req.UserID
	if studentID == "" {
		studentID = userID
	}

	if _, err := s.userRepo.FindUserByID(db, studentID); err != nil {
		return nil, handleRepoError(err)
	}
	if _, err := s.userRepo.FindCourseByID(db, req.CourseID); err != nil {
		return nil, handleRepoError(err)
	}

	tx := db.Begin()
	if tx.Error != nil {
		return nil, apperrors.DatabaseError(tx.Error)
	}
	defer tx.Rollback()

	adminID := userID
	enrollment, err := s.getOrCreate(ctx, tx, studentID, req.CourseID, nil, &adminID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	s.Invalidate(ctx, studentID)

	logger.CtxInfo(ctx, "Enrollment granted by admin", "enrollment_id", enrollment.ID, "admin_id", adminID)
	return dto.NewEnrollmentResponse(enrollment), nil
}

func (s *enrollmentService) GetEnrollment(ctx context.Context, db *gorm.DB, userID string, isAdmin bool, enrollmentID string) (*dto.EnrollmentResponse, error) {
	enrollment, err := s.enrollmentRepo.FindEnrollmentByID(db, enrollmentID)
	if err != nil {
		return nil, handleRepoError(err)
	}
	if !isAdmin && enrollment.StudentID != userID {
		return nil, apperrors.ErrInsufficientPermissions
	}
	return dto.NewEnrollmentResponse(enrollment), nil
}

// GetMyEnrollments читает через версионный кэш. Ошибки кэша не фатальны.
func (s *enrollmentService) GetMyEnrollments(ctx context.Context, db *gorm.DB, userID string) ([]*dto.EnrollmentResponse, error) {
	if s.cache != nil {
		var cached []*dto.EnrollmentResponse
		hit, err := s.cache.GetJSON(ctx, enrollmentsCacheNS, userID, &cached)
		if err != nil {
			logger.CtxWarn(ctx, "Enrollment cache read failed", "error", err)
		}
		if hit {
			return cached, nil
		}
	}

	enrollments, err := s.enrollmentRepo.FindStudentEnrollments(db, userID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	result := make([]*dto.EnrollmentResponse, 0, len(enrollments))
	for i := range enrollments {
		result = append(result, dto.NewEnrollmentResponse(&enrollments[i]))
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, enrollmentsCacheNS, userID, result); err != nil {
			logger.CtxWarn(ctx, "Enrollment cache write failed", "error", err)
		}
	}
	return result, nil
}

// ---------------- Admin operations ----------------

func (s *enrollmentService) UpdateStatus(ctx context.Context, db *gorm.DB, enrollmentID string, to models.EnrollmentStatus) (*dto.EnrollmentResponse, error) {
	tx := db.Begin()
	if tx.Error != nil {
		return nil, apperrors.DatabaseError(tx.Error)
	}
	defer tx.Rollback()

	enrollment, err := s.enrollmentRepo.FindEnrollmentByID(tx, enrollmentID)
	if err != nil {
		return nil, handleRepoError(err)
	}
	if err := s.ChangeStatus(ctx, tx, enrollment, to); err != nil {
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	s.Invalidate(ctx, enrollment.StudentID)
	return dto.NewEnrollmentResponse(enrollment), nil
}

// Invalidate - один INCR версии; старые ключи просто перестают читаться.
func (s *enrollmentService) Invalidate(ctx context.Context, studentID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx, enrollmentsCacheNS, studentID); err != nil {
		logger.CtxWarn(ctx, "Enrollment cache bump failed", "student_id", studentID, "error", err)
	}
}
