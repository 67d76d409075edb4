package handlers

import (
	"context"
	"net/http"
	"net/url"

	"learnhub_backend/internal/auth"
	"learnhub_backend/internal/logger"
	"learnhub_backend/internal/middleware"
	"learnhub_backend/internal/models"
	"learnhub_backend/internal/services"
	"learnhub_backend/internal/services/dto"
	"learnhub_backend/pkg/apperrors"

	"github.com/gin-gonic/gin"
)

// SweepRunner - ручной запуск свипера (workers.ExpirySweeper)
type SweepRunner interface {
	RunOnce(ctx context.Context) (*dto.SweepResult, error)
}

type PaymentHandler struct {
	*BaseHandler
	paymentService services.PaymentService
	sweeper        SweepRunner
	frontendURL    string
}

func NewPaymentHandler(base *BaseHandler, paymentService services.PaymentService, sweeper SweepRunner, frontendURL string) *PaymentHandler {
	return &PaymentHandler{
		BaseHandler:    base,
		paymentService: paymentService,
		sweeper:        sweeper,
		frontendURL:    frontendURL,
	}
}

func (h *PaymentHandler) RegisterRoutes(r *gin.RouterGroup) {
	// Public routes - колбэки шлюза, защищены подписью
	gatewayRoutes := r.Group("/payments/vnpay")
	{
		gatewayRoutes.GET("/return", h.VNPayReturn)
		gatewayRoutes.GET("/ipn", h.VNPayIPN)
	}

	// Protected routes - All authenticated users
	payments := r.Group("/payments")
	payments.Use(h.RequireAuth())
	{
		payments.POST("", h.CreatePayment)
		payments.GET("/my", h.GetMyPayments)
		payments.GET("/:paymentId", h.GetPayment)
		payments.POST("/:paymentId/cancel", h.CancelPayment)
	}

	// Admin routes
	admin := r.Group("/admin/payments")
	admin.Use(h.RequireAuth(), middleware.RequirePermission(auth.PermPaymentsManage))
	{
		admin.GET("/flagged", h.GetFlaggedPayments)
		admin.POST("/sweep", h.RunSweep)
		admin.POST("/:paymentId/refund", h.RefundPayment)
	}
}

// --- User handlers ---

func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	var req dto.CreatePaymentRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	resp, err := h.paymentService.CreatePayment(c.Request.Context(), h.GetDB(c), userID, &req, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *PaymentHandler) GetMyPayments(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}
	page, pageSize := ParsePagination(c)

	resp, err := h.paymentService.GetMyPayments(c.Request.Context(), h.GetDB(c), userID, page, pageSize)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *PaymentHandler) GetPayment(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	resp, err := h.paymentService.GetPayment(c.Request.Context(), h.GetDB(c), userID, h.IsAdmin(c), c.Param("paymentId"))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *PaymentHandler) CancelPayment(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	resp, err := h.paymentService.CancelPayment(c.Request.Context(), h.GetDB(c), userID, h.IsAdmin(c), c.Param("paymentId"))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// --- Gateway handlers ---

func queryParams(values url.Values) map[string]string {
	params := make(map[string]string, len(values))
	for key := range values {
		params[key] = values.Get(key)
	}
	return params
}

// VNPayReturn - браузер возвращается со шлюза. Результат применяется так же,
// как IPN; пользователь уходит на фронтенд.
func (h *PaymentHandler) VNPayReturn(c *gin.Context) {
	ctx := c.Request.Context()
	params := queryParams(c.Request.URL.Query())
	if len(params) == 0 {
		c.Redirect(http.StatusFound, h.frontendURL+"/payment-error?error=no_params")
		return
	}

	result, err := h.paymentService.HandleGatewayReport(ctx, h.GetDB(c), params)
	if apperrors.HasCode(err, apperrors.CodeInvalidSignature) {
		c.Redirect(http.StatusFound, h.frontendURL+"/payment-error?error=invalid_signature")
		return
	}

	ack := services.AcknowledgeIPN(result, err)
	status := models.PaymentStatus("")
	switch {
	case result != nil:
		status = result.Status
	case ack.RspCode == "00":
		// Строку держит параллельный IPN: исход берем из базы, а не из кода подтверждения
		status, err = h.paymentService.GetPaymentStatus(ctx, h.GetDB(c), params["vnp_TxnRef"])
		if err != nil {
			logger.CtxWithError(ctx, "Failed to re-read payment status", err, "txn_ref", params["vnp_TxnRef"])
		}
	}

	if ack.RspCode == "00" && status == models.PaymentStatusCompleted {
		c.Redirect(http.StatusFound, h.frontendURL+"/payment-success?transaction_id="+url.QueryEscape(params["vnp_TxnRef"]))
		return
	}

	logger.CtxInfo(ctx, "Payment return without success", "txn_ref", params["vnp_TxnRef"], "rsp_code", ack.RspCode, "status", status)
	message := ack.Message
	if ack.RspCode == "00" {
		message = "Payment was not completed"
		if status == models.PaymentStatusPending {
			message = "Payment is still being processed"
		}
	}
	c.Redirect(http.StatusFound, h.frontendURL+"/payment-failed?error="+url.QueryEscape(message))
}

// VNPayIPN - серверный вызов шлюза. Всегда 200, код исхода в теле.
func (h *PaymentHandler) VNPayIPN(c *gin.Context) {
	ctx := c.Request.Context()
	params := queryParams(c.Request.URL.Query())

	result, err := h.paymentService.HandleGatewayReport(ctx, h.GetDB(c), params)
	ack := services.AcknowledgeIPN(result, err)
	if ack.RspCode == "99" {
		logger.CtxWithError(ctx, "IPN processing failed", err, "txn_ref", params["vnp_TxnRef"])
	}

	c.JSON(http.StatusOK, ack)
}

// --- Admin handlers ---

func (h *PaymentHandler) RefundPayment(c *gin.Context) {
	adminID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	var req dto.RefundPaymentRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	resp, err := h.paymentService.RefundPayment(c.Request.Context(), h.GetDB(c), adminID, c.Param("paymentId"), &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *PaymentHandler) GetFlaggedPayments(c *gin.Context) {
	page, pageSize := ParsePagination(c)

	resp, err := h.paymentService.GetFlaggedPayments(c.Request.Context(), h.GetDB(c), page, pageSize)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *PaymentHandler) RunSweep(c *gin.Context) {
	result, err := h.sweeper.RunOnce(c.Request.Context())
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
