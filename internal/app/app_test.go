package app

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"learnhub_backend/internal/cache"
	"learnhub_backend/internal/config"
	"learnhub_backend/internal/email"
	"learnhub_backend/internal/logger"
	"learnhub_backend/internal/models"
	"learnhub_backend/internal/storage"
	"learnhub_backend/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func init() {
	logger.Init("test")
	gin.SetMode(gin.TestMode)
}

// testServer - приложение целиком поверх httptest и in-memory SQLite
type testServer struct {
	*Server
	http *httptest.Server
	db   *gorm.DB
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg := &config.Config{}
	cfg.JWT.Secret = "test_secret_key_12345"
	cfg.JWT.TTL = 60
	cfg.VNPay.TmnCode = "TESTTMN1"
	cfg.VNPay.HashSecret = "SECRETKEY"
	cfg.VNPay.PaymentURL = "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html"
	cfg.VNPay.ReturnURL = "http://localhost/api/v1/payments/vnpay/return"
	cfg.Payments.Currency = "VND"
	cfg.Payments.PendingTTLMinutes = 30
	cfg.Payments.SweepBatchSize = 50
	cfg.Jobs.MaxAttempts = 3
	cfg.Certificates.AllowedPrefix = "certificates"
	cfg.Storage.Type = "local"
	cfg.Storage.BasePath = t.TempDir()
	cfg.Storage.BaseURL = "http://files.test"
	cfg.FrontendURL = "http://localhost:3000"

	db := testutil.NewDB(t)
	store, err := storage.NewLocalStorage(storage.Config{BasePath: cfg.Storage.BasePath, BaseURL: cfg.Storage.BaseURL})
	require.NoError(t, err)

	server := Build(cfg, db, Infra{
		Cache:   cache.NewVersioned(cache.NewMemoryCache(), time.Minute),
		Storage: store,
		Mailer:  email.NewMockProvider(),
	})

	ts := &testServer{Server: server, http: httptest.NewServer(server.Router), db: db}
	t.Cleanup(ts.http.Close)
	return ts
}

func (ts *testServer) token(t *testing.T, user *models.User) string {
	t.Helper()
	token, err := ts.Tokens.GenerateToken(user.ID, user.Email, user.Role)
	require.NoError(t, err)
	return token
}

// sendRequest не ходит по редиректам: return-маршрут уводит на фронтенд.
func (ts *testServer) sendRequest(t *testing.T, method, path, token string, body interface{}) (*http.Response, string) {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, ts.http.URL+path, reqBody)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	res, err := client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, string(raw)
}

// signedQuery - отчет шлюза с валидной подписью
func (ts *testServer) signedQuery(params map[string]string) string {
	params["vnp_SecureHash"] = ts.Gateway.SignParams(params)
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	return values.Encode()
}

type createPaymentBody struct {
	Payment struct {
		ID             string `json:"id"`
		TransactionRef string `json:"transaction_ref"`
		Status         string `json:"status"`
	} `json:"payment"`
	PaymentURL string `json:"payment_url"`
}

func TestHTTP_Health(t *testing.T) {
	ts := newTestServer(t)

	res, body := ts.sendRequest(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, `"database":"up"`)
	assert.NotEmpty(t, res.Header.Get("X-Request-ID"))
}

func TestHTTP_PaymentFlow(t *testing.T) {
	ts := newTestServer(t)

	instructor := testutil.CreateUser(t, ts.db, models.UserRoleInstructor)
	student := testutil.CreateUser(t, ts.db, models.UserRoleStudent)
	course := testutil.CreateCourse(t, ts.db, instructor.ID, "120000", 2)
	token := ts.token(t, student)

	// 1. Создание платежа
	res, body := ts.sendRequest(t, http.MethodPost, "/api/v1/payments", token, map[string]string{"course_id": course.ID})
	require.Equal(t, http.StatusCreated, res.StatusCode, body)

	var created createPaymentBody
	require.NoError(t, json.Unmarshal([]byte(body), &created))
	assert.Equal(t, "pending", created.Payment.Status)
	assert.Contains(t, created.PaymentURL, "vnp_Amount=12000000")

	// 2. IPN от шлюза
	report := map[string]string{
		"vnp_TxnRef":            created.Payment.TransactionRef,
		"vnp_Amount":            "12000000",
		"vnp_ResponseCode":      "00",
		"vnp_TransactionStatus": "00",
		"vnp_TransactionNo":     "14000001",
		"vnp_BankCode":          "NCB",
	}
	query := ts.signedQuery(report)

	res, body = ts.sendRequest(t, http.MethodGet, "/api/v1/payments/vnpay/ipn?"+query, "", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, `{"RspCode":"00","Message":"Confirm Success"}`, body)

	// 3. Браузер возвращается тем же отчетом: повтор, редирект на успех
	res, _ = ts.sendRequest(t, http.MethodGet, "/api/v1/payments/vnpay/return?"+query, "", nil)
	assert.Equal(t, http.StatusFound, res.StatusCode)
	assert.Equal(t,
		"http://localhost:3000/payment-success?transaction_id="+url.QueryEscape(created.Payment.TransactionRef),
		res.Header.Get("Location"))

	// 4. Доступ к курсу появился
	res, body = ts.sendRequest(t, http.MethodGet, "/api/v1/enrollments/my", token, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, course.ID)
	assert.Contains(t, body, `"total":1`)

	// 5. Платеж виден владельцу, но не чужому студенту
	res, body = ts.sendRequest(t, http.MethodGet, "/api/v1/payments/"+created.Payment.ID, token, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, `"status":"completed"`)

	stranger := testutil.CreateUser(t, ts.db, models.UserRoleStudent)
	res, _ = ts.sendRequest(t, http.MethodGet, "/api/v1/payments/"+created.Payment.ID, ts.token(t, stranger), nil)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
}

func TestHTTP_GatewayRejections(t *testing.T) {
	ts := newTestServer(t)

	// Подпись не сходится: IPN все равно 200, код 97
	res, body := ts.sendRequest(t, http.MethodGet, "/api/v1/payments/vnpay/ipn?vnp_TxnRef=X&vnp_Amount=100&vnp_SecureHash=deadbeef", "", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, `"RspCode":"97"`)

	res, _ = ts.sendRequest(t, http.MethodGet, "/api/v1/payments/vnpay/return?vnp_TxnRef=X&vnp_Amount=100&vnp_SecureHash=deadbeef", "", nil)
	assert.Equal(t, http.StatusFound, res.StatusCode)
	assert.Equal(t, "http://localhost:3000/payment-error?error=invalid_signature", res.Header.Get("Location"))

	res, _ = ts.sendRequest(t, http.MethodGet, "/api/v1/payments/vnpay/return", "", nil)
	assert.Equal(t, "http://localhost:3000/payment-error?error=no_params", res.Header.Get("Location"))

	// Валидная подпись, неизвестный заказ
	query := ts.signedQuery(map[string]string{
		"vnp_TxnRef":       "UNKNOWNREF",
		"vnp_Amount":       "100",
		"vnp_ResponseCode": "00",
	})
	res, body = ts.sendRequest(t, http.MethodGet, "/api/v1/payments/vnpay/ipn?"+query, "", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, `"RspCode":"01"`)

	res, _ = ts.sendRequest(t, http.MethodGet, "/api/v1/payments/vnpay/return?"+query, "", nil)
	assert.True(t, strings.HasPrefix(res.Header.Get("Location"), "http://localhost:3000/payment-failed?error="))
}

func TestHTTP_AuthAndPermissions(t *testing.T) {
	ts := newTestServer(t)

	admin := testutil.CreateUser(t, ts.db, models.UserRoleAdmin)
	instructor := testutil.CreateUser(t, ts.db, models.UserRoleInstructor)
	student := testutil.CreateUser(t, ts.db, models.UserRoleStudent)
	course := testutil.CreateCourse(t, ts.db, instructor.ID, "500000", 1)

	// Без токена и с мусорным токеном
	res, _ := ts.sendRequest(t, http.MethodGet, "/api/v1/payments/my", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	res, _ = ts.sendRequest(t, http.MethodGet, "/api/v1/payments/my", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	discount := map[string]interface{}{
		"code":          "spring25",
		"discount_type": "percentage",
		"value":         "25",
		"usage_limit":   10,
		"valid_from":    time.Now().UTC().Add(-time.Hour).Format(time.RFC3339),
		"valid_until":   time.Now().UTC().Add(24 * time.Hour).Format(time.RFC3339),
	}

	// Админские маршруты закрыты для студента и преподавателя
	res, _ = ts.sendRequest(t, http.MethodPost, "/api/v1/admin/discounts", ts.token(t, student), discount)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	res, _ = ts.sendRequest(t, http.MethodPost, "/api/v1/admin/payments/sweep", ts.token(t, instructor), nil)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	adminToken := ts.token(t, admin)
	res, body := ts.sendRequest(t, http.MethodPost, "/api/v1/admin/discounts", adminToken, discount)
	assert.Equal(t, http.StatusCreated, res.StatusCode, body)
	assert.Contains(t, body, "SPRING25")

	res, body = ts.sendRequest(t, http.MethodPost, "/api/v1/admin/payments/sweep", adminToken, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, body, `"scanned":0`)

	// Студент не может зачислиться в обход оплаты
	res, body = ts.sendRequest(t, http.MethodPost, "/api/v1/enrollments", ts.token(t, student), map[string]string{"course_id": course.ID})
	assert.Equal(t, http.StatusPaymentRequired, res.StatusCode)
	assert.Contains(t, body, "PAYMENT_REQUIRED")

	// Администратор выдает доступ вручную
	res, _ = ts.sendRequest(t, http.MethodPost, "/api/v1/enrollments", adminToken, map[string]string{
		"course_id": course.ID,
		"user_id":   student.ID,
	})
	assert.Equal(t, http.StatusCreated, res.StatusCode)
}

func TestHTTP_Validation(t *testing.T) {
	ts := newTestServer(t)

	student := testutil.CreateUser(t, ts.db, models.UserRoleStudent)
	token := ts.token(t, student)

	res, body := ts.sendRequest(t, http.MethodPost, "/api/v1/payments", token, map[string]string{
		"course_id":      "not-a-uuid",
		"payment_method": "cash",
	})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Contains(t, body, "VALIDATION_FAILED")
	assert.Contains(t, body, "course_id")
	assert.Contains(t, body, "payment_method")

	res, _ = ts.sendRequest(t, http.MethodPost, "/api/v1/reviews", token, map[string]interface{}{
		"enrollment_id": "6f1c1f7e-8a57-4c5e-9a39-6d0e0b2f6b11",
		"rating":        9,
	})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}
