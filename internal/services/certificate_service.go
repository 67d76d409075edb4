package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"learnhub_backend/internal/events"
	"learnhub_backend/internal/jobs"
	"learnhub_backend/internal/logger"
	"learnhub_backend/internal/models"
	"learnhub_backend/internal/repositories"
	"learnhub_backend/internal/services/dto"
	"learnhub_backend/internal/storage"
	"learnhub_backend/pkg/apperrors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CertificateGenerator создает артефакт сертификата и возвращает путь к нему.
// Путь не доверенный: перед сохранением он проверяется storage.GuardPath.
type CertificateGenerator interface {
	Generate(ctx context.Context, cert *models.Certificate) (string, error)
}

// CertificateConfig - параметры выдачи
type CertificateConfig struct {
	AllowedPrefix   string
	VerificationURL string
}

type CertificateService interface {
	// Event / job plumbing
	OnEnrollmentCompleted(ctx context.Context, tx *gorm.DB, evt events.Event) error
	JobHandler(db *gorm.DB) jobs.Handler
	Issue(ctx context.Context, db *gorm.DB, enrollmentID string) (*models.Certificate, error)

	// Reads
	GetCertificate(ctx context.Context, db *gorm.DB, userID string, isAdmin bool, enrollmentID string) (*dto.CertificateResponse, error)
	VerifyCertificate(ctx context.Context, db *gorm.DB, number string) (*dto.CertificateResponse, error)
}

type certificatePayload struct {
	EnrollmentID string `json:"enrollment_id"`
}

type certificateService struct {
	certificateRepo repositories.CertificateRepository
	enrollmentRepo  repositories.EnrollmentRepository
	userRepo        repositories.UserRepository
	queue           *jobs.Queue
	generator       CertificateGenerator
	storage         storage.Storage
	cfg             CertificateConfig
}

func NewCertificateService(
	certificateRepo repositories.CertificateRepository,
	enrollmentRepo repositories.EnrollmentRepository,
	userRepo repositories.UserRepository,
	queue *jobs.Queue,
	generator CertificateGenerator,
	store storage.Storage,
	cfg CertificateConfig,
) CertificateService {
	if cfg.AllowedPrefix == "" {
		cfg.AllowedPrefix = "certificates"
	}
	return &certificateService{
		certificateRepo: certificateRepo,
		enrollmentRepo:  enrollmentRepo,
		userRepo:        userRepo,
		queue:           queue,
		generator:       generator,
		storage:         store,
		cfg:             cfg,
	}
}

// OnEnrollmentCompleted ставит генерацию в очередь; ключ - id зачисления,
// поэтому повторное завершение вторую задачу не создаст.
func (s *certificateService) OnEnrollmentCompleted(ctx context.Context, tx *gorm.DB, evt events.Event) error {
	created, err := s.queue.Enqueue(tx, jobs.KindCertificateGenerate, evt.EntityID, certificatePayload{EnrollmentID: evt.EntityID})
	if err != nil {
		return err
	}
	if created {
		logger.CtxInfo(ctx, "Certificate generation queued", "enrollment_id", evt.EntityID)
	}
	return nil
}

func (s *certificateService) JobHandler(db *gorm.DB) jobs.Handler {
	return func(ctx context.Context, job *models.Job) error {
		var payload certificatePayload
		if err := jobs.DecodePayload(job, &payload); err != nil {
			return err
		}

		_, err := s.Issue(ctx, db, payload.EnrollmentID)
		if apperrors.HasCode(err, apperrors.CodeSecurityViolation) {
			// Сертификат уже сохранен без файла, повтор не нужен
			return nil
		}
		return err
	}
}

// Issue выдает сертификат ровно один раз на зачисление.
func (s *certificateService) Issue(ctx context.Context, db *gorm.DB, enrollmentID string) (*models.Certificate, error) {
	enrollment, err := s.enrollmentRepo.FindEnrollmentByID(db, enrollmentID)
	if err != nil {
		return nil, handleRepoError(err)
	}
	if enrollment.Status != models.EnrollmentStatusCompleted {
		logger.CtxInfo(ctx, "Certificate skipped, enrollment not completed", "enrollment_id", enrollmentID, "status", enrollment.Status)
		return nil, nil
	}

	existing, err := s.certificateRepo.FindCertificateByEnrollment(db, enrollmentID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repositories.ErrCertificateNotFound) {
		return nil, apperrors.DatabaseError(err)
	}

	student, err := s.userRepo.FindUserByID(db, enrollment.StudentID)
	if err != nil {
		return nil, handleRepoError(err)
	}
	course, err := s.userRepo.FindCourseByID(db, enrollment.CourseID)
	if err != nil {
		return nil, handleRepoError(err)
	}

	number, err := s.newCertificateNumber(db)
	if err != nil {
		return nil, err
	}

	cert := &models.Certificate{
		EnrollmentID:      enrollment.ID,
		CertificateNumber: number,
		StudentName:       student.FullName,
		CourseTitle:       course.Title,
		IssuedAt:          nowUTC(),
		VerificationURL:   strings.TrimRight(s.cfg.VerificationURL, "/") + "/" + number,
	}
	if course.Instructor != nil {
		cert.InstructorName = course.Instructor.FullName
	}

	path, err := s.generator.Generate(ctx, cert)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeExternalServiceError, "certificate", "Failed to generate certificate", http.StatusBadGateway)
	}

	var violation error
	safePath, err := storage.GuardPath(s.cfg.AllowedPrefix, path)
	if err != nil {
		logger.Alert(ctx, "Certificate artifact path rejected",
			"enrollment_id", enrollment.ID,
			"certificate_number", number,
			"path", path,
			"error", err,
		)
		violation = apperrors.ErrSecurityViolation("certificate", "Generated certificate path is outside the allowed location")
		safePath = ""
	}
	cert.FilePath = safePath

	created, err := s.certificateRepo.CreateCertificate(db, cert)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	if !created {
		// Параллельная задача успела раньше
		existing, err := s.certificateRepo.FindCertificateByEnrollment(db, enrollmentID)
		if err != nil {
			return nil, handleRepoError(err)
		}
		return existing, nil
	}

	logger.CtxInfo(ctx, "Certificate issued", "enrollment_id", enrollment.ID, "certificate_number", number)
	return cert, violation
}

func (s *certificateService) newCertificateNumber(db *gorm.DB) (string, error) {
	date := nowUTC().Format("20060102")
	for i := 0; i < 5; i++ {
		suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
		number := fmt.Sprintf("CERT-%s-%s", date, suffix)

		exists, err := s.certificateRepo.CertificateNumberExists(db, number)
		if err != nil {
			return "", apperrors.DatabaseError(err)
		}
		if !exists {
			return number, nil
		}
	}
	return "", apperrors.InternalError(errors.New("could not allocate a unique certificate number"))
}

// ---------------- Reads ----------------

func (s *certificateService) GetCertificate(ctx context.Context, db *gorm.DB, userID string, isAdmin bool, enrollmentID string) (*dto.CertificateResponse, error) {
	enrollment, err := s.enrollmentRepo.FindEnrollmentByID(db, enrollmentID)
	if err != nil {
		return nil, handleRepoError(err)
	}
	if !isAdmin && enrollment.StudentID != userID {
		return nil, apperrors.ErrInsufficientPermissions
	}

	cert, err := s.certificateRepo.FindCertificateByEnrollment(db, enrollmentID)
	if err != nil {
		return nil, handleRepoError(err)
	}
	return s.toResponse(ctx, cert), nil
}

func (s *certificateService) VerifyCertificate(ctx context.Context, db *gorm.DB, number string) (*dto.CertificateResponse, error) {
	cert, err := s.certificateRepo.FindCertificateByNumber(db, strings.TrimSpace(number))
	if err != nil {
		return nil, handleRepoError(err)
	}
	resp := s.toResponse(ctx, cert)
	resp.DownloadURL = ""
	return resp, nil
}

func (s *certificateService) toResponse(ctx context.Context, cert *models.Certificate) *dto.CertificateResponse {
	resp := &dto.CertificateResponse{
		CertificateNumber: cert.CertificateNumber,
		StudentName:       cert.StudentName,
		CourseTitle:       cert.CourseTitle,
		InstructorName:    cert.InstructorName,
		IssuedAt:          cert.IssuedAt,
		VerificationURL:   cert.VerificationURL,
	}
	if cert.FilePath != "" && s.storage != nil {
		url, err := s.storage.GetURL(ctx, cert.FilePath)
		if err != nil {
			logger.CtxWarn(ctx, "Failed to build certificate URL", "certificate_number", cert.CertificateNumber, "error", err)
		} else {
			resp.DownloadURL = url
		}
	}
	return resp
}

// =======================
// Генератор по умолчанию
// =======================

// StorageCertificateGenerator пишет текстовый сертификат в хранилище.
type StorageCertificateGenerator struct {
	storage storage.Storage
	prefix  string
}

func NewStorageCertificateGenerator(store storage.Storage, prefix string) *StorageCertificateGenerator {
	if prefix == "" {
		prefix = "certificates"
	}
	return &StorageCertificateGenerator{storage: store, prefix: prefix}
}

func (g *StorageCertificateGenerator) Generate(ctx context.Context, cert *models.Certificate) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "CERTIFICATE OF COMPLETION\n\n")
	fmt.Fprintf(&b, "Number:     %s\n", cert.CertificateNumber)
	fmt.Fprintf(&b, "Student:    %s\n", cert.StudentName)
	fmt.Fprintf(&b, "Course:     %s\n", cert.CourseTitle)
	if cert.InstructorName != "" {
		fmt.Fprintf(&b, "Instructor: %s\n", cert.InstructorName)
	}
	fmt.Fprintf(&b, "Issued:     %s\n", cert.IssuedAt.Format(time.RFC1123))
	fmt.Fprintf(&b, "Verify:     %s\n", cert.VerificationURL)

	path := fmt.Sprintf("%s/%s/%s.txt", g.prefix, cert.IssuedAt.Format("2006/01"), cert.CertificateNumber)
	if err := g.storage.Save(ctx, path, strings.NewReader(b.String()), "text/plain; charset=utf-8"); err != nil {
		return "", fmt.Errorf("save certificate %s: %w", cert.CertificateNumber, err)
	}
	return path, nil
}
