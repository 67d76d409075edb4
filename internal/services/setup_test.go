package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"learnhub_backend/internal/cache"
	"learnhub_backend/internal/email"
	"learnhub_backend/internal/events"
	"learnhub_backend/internal/jobs"
	"learnhub_backend/internal/logger"
	"learnhub_backend/internal/models"
	"learnhub_backend/internal/repositories"
	"learnhub_backend/internal/services/dto"
	"learnhub_backend/internal/services/gateway"
	"learnhub_backend/internal/storage"
	"learnhub_backend/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func init() {
	logger.Init("test")
}

// fakePusher запоминает, что ушло в websocket
type fakePusher struct {
	mu   sync.Mutex
	sent map[string][]any
}

func (p *fakePusher) SendToUser(userID string, message any) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sent == nil {
		p.sent = make(map[string][]any)
	}
	p.sent[userID] = append(p.sent[userID], message)
	return true
}

func (p *fakePusher) count(userID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent[userID])
}

type testEnv struct {
	ctx      context.Context
	db       *gorm.DB
	svc      *ServiceContainer
	gw       *gateway.VNPayService
	mailer   *email.MockProvider
	pusher   *fakePusher
	registry *jobs.Registry
	jobRepo  repositories.JobRepository
	store    storage.Storage
}

type envOption func(*Dependencies)

func withGenerator(g CertificateGenerator) envOption {
	return func(d *Dependencies) { d.Generator = g }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	db := testutil.NewDB(t)
	store, err := storage.NewLocalStorage(storage.Config{BasePath: t.TempDir(), BaseURL: "http://files.test"})
	require.NoError(t, err)

	gw := gateway.NewVNPayService(gateway.Config{
		TmnCode:    "TESTTMN1",
		HashSecret: "SECRETKEY",
		PaymentURL: "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
		ReturnURL:  "http://localhost/api/v1/payments/vnpay/return",
	})

	jobRepo := repositories.NewJobRepository()
	env := &testEnv{
		ctx:      context.Background(),
		db:       db,
		gw:       gw,
		mailer:   email.NewMockProvider(),
		pusher:   &fakePusher{},
		registry: jobs.NewRegistry(),
		jobRepo:  jobRepo,
		store:    store,
	}

	deps := Dependencies{
		Bus:     events.NewBus(),
		Queue:   jobs.NewQueue(jobRepo, 3),
		Cache:   cache.NewVersioned(cache.NewMemoryCache(), time.Minute),
		Gateway: gw,
		Storage: store,
		Mailer:  env.mailer,
		Pusher:  env.pusher,
		Payment: PaymentConfig{
			Currency:       "VND",
			PendingTTL:     30 * time.Minute,
			SweepBatchSize: 50,
		},
		Certificate: CertificateConfig{
			AllowedPrefix:   "certificates",
			VerificationURL: "http://localhost/verify",
		},
		FrontendURL: "http://localhost:3000",
	}
	for _, opt := range opts {
		opt(&deps)
	}

	env.svc = NewServiceContainer(deps)
	env.svc.RegisterJobs(db, env.registry)
	return env
}

// createPayment - платеж через публичный путь, без промокода если code пустой
func (e *testEnv) createPayment(t *testing.T, userID, courseID, code string) *dto.CreatePaymentResponse {
	t.Helper()
	resp, err := e.svc.PaymentService.CreatePayment(e.ctx, e.db, userID, &dto.CreatePaymentRequest{
		CourseID:     courseID,
		DiscountCode: code,
	}, "10.0.0.1", "test-agent")
	require.NoError(t, err)
	return resp
}

// report - отчет шлюза на сумму платежа
func report(p *models.Payment, code string) *gateway.Report {
	return &gateway.Report{
		TxnRef:        p.TransactionRef,
		Amount:        p.Amount.Mul(decimal.NewFromInt(100)).IntPart(),
		ResponseCode:  code,
		TransactionNo: "14000001",
		BankCode:      "NCB",
	}
}

// backdate сдвигает created_at платежа в прошлое
func (e *testEnv) backdate(t *testing.T, paymentID string, d time.Duration) {
	t.Helper()
	err := e.db.Model(&models.Payment{}).
		Where("id = ?", paymentID).
		UpdateColumn("created_at", time.Now().UTC().Add(-d)).Error
	require.NoError(t, err)
}

// runJobs синхронно выполняет все задачи вида kind. Возвращает число успешных.
func (e *testEnv) runJobs(t *testing.T, kind string) int {
	t.Helper()
	handler, ok := e.registry.Handler(kind)
	require.True(t, ok)

	done := 0
	for {
		now := time.Now().UTC()
		job, err := e.jobRepo.ClaimNext(e.db, kind, now, now.Add(-time.Minute))
		require.NoError(t, err)
		if job == nil {
			return done
		}
		if err := handler(e.ctx, job); err != nil {
			_, ferr := e.jobRepo.Fail(e.db, job, err.Error(), now.Add(time.Hour))
			require.NoError(t, ferr)
			continue
		}
		require.NoError(t, e.jobRepo.Complete(e.db, job.ID))
		done++
	}
}
