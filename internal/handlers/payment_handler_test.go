package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"learnhub_backend/internal/auth"
	"learnhub_backend/internal/logger"
	"learnhub_backend/internal/middleware"
	"learnhub_backend/internal/models"
	"learnhub_backend/internal/services"
	"learnhub_backend/internal/services/dto"
	"learnhub_backend/internal/validator"
	"learnhub_backend/pkg/apperrors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func init() {
	logger.Init("test")
	gin.SetMode(gin.TestMode)
}

// contendedPayments - отчет упирается в блокировку строки, статус читается отдельно
type contendedPayments struct {
	services.PaymentService
	status models.PaymentStatus
	reads  int
}

func (s *contendedPayments) HandleGatewayReport(ctx context.Context, db *gorm.DB, params map[string]string) (*dto.SettleResult, error) {
	return nil, apperrors.ErrConcurrencyNoOp
}

func (s *contendedPayments) GetPaymentStatus(ctx context.Context, db *gorm.DB, transactionRef string) (models.PaymentStatus, error) {
	s.reads++
	return s.status, nil
}

func newReturnRouter(payments services.PaymentService) *gin.Engine {
	base := NewBaseHandler(validator.New(), auth.NewTokenManager("test_secret", time.Hour))
	handler := NewPaymentHandler(base, payments, nil, "http://front.test")

	router := gin.New()
	router.Use(middleware.DBMiddleware(&gorm.DB{}))
	handler.RegisterRoutes(router.Group("/api/v1"))
	return router
}

func TestVNPayReturn_LockContentionUsesStoredStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   models.PaymentStatus
		location string
	}{
		{
			name:     "concurrent report completed the payment",
			status:   models.PaymentStatusCompleted,
			location: "http://front.test/payment-success?transaction_id=REF123",
		},
		{
			name:     "concurrent report declined the payment",
			status:   models.PaymentStatusCancelled,
			location: "http://front.test/payment-failed?error=Payment+was+not+completed",
		},
		{
			name:     "concurrent report still running",
			status:   models.PaymentStatusPending,
			location: "http://front.test/payment-failed?error=Payment+is+still+being+processed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payments := &contendedPayments{status: tt.status}
			router := newReturnRouter(payments)

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/vnpay/return?vnp_TxnRef=REF123&vnp_ResponseCode=00", nil)
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusFound, w.Code)
			assert.Equal(t, tt.location, w.Header().Get("Location"))
			assert.Equal(t, 1, payments.reads)
		})
	}
}

func TestVNPayIPN_LockContentionAcknowledged(t *testing.T) {
	payments := &contendedPayments{status: models.PaymentStatusPending}
	router := newReturnRouter(payments)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/vnpay/ipn?vnp_TxnRef=REF123", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"RspCode":"00","Message":"Confirm Success"}`, w.Body.String())
	assert.Zero(t, payments.reads)
}
