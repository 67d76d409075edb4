package handlers

import (
	"net/http"

	"learnhub_backend/internal/auth"
	"learnhub_backend/internal/middleware"
	"learnhub_backend/internal/models"
	"learnhub_backend/internal/services"
	"learnhub_backend/internal/services/dto"

	"github.com/gin-gonic/gin"
)

type EnrollmentHandler struct {
	*BaseHandler
	enrollmentService  services.EnrollmentService
	progressService    services.ProgressService
	certificateService services.CertificateService
}

func NewEnrollmentHandler(
	base *BaseHandler,
	enrollmentService services.EnrollmentService,
	progressService services.ProgressService,
	certificateService services.CertificateService,
) *EnrollmentHandler {
	return &EnrollmentHandler{
		BaseHandler:        base,
		enrollmentService:  enrollmentService,
		progressService:    progressService,
		certificateService: certificateService,
	}
}

func (h *EnrollmentHandler) RegisterRoutes(r *gin.RouterGroup) {
	// Public routes
	r.GET("/certificates/verify/:number", h.VerifyCertificate)

	// Protected routes - All authenticated users
	enrollments := r.Group("/enrollments")
	enrollments.Use(h.RequireAuth())
	{
		enrollments.POST("", h.RequestEnrollment)
		enrollments.GET("/my", h.GetMyEnrollments)
		enrollments.GET("/:enrollmentId", h.GetEnrollment)
		enrollments.POST("/:enrollmentId/lessons/:lessonId/complete", h.CompleteLesson)
		enrollments.GET("/:enrollmentId/certificate", h.GetCertificate)
	}

	// Admin routes
	admin := r.Group("/admin/enrollments")
	admin.Use(h.RequireAuth(), middleware.RequirePermission(auth.PermEnrollmentsManage))
	{
		admin.PUT("/:enrollmentId/status", h.UpdateStatus)
	}
}

// RequestEnrollment - студент получает 402 (доступ только через оплату),
// администратор выдает доступ вручную.
func (h *EnrollmentHandler) RequestEnrollment(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	var req dto.EnrollRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	resp, err := h.enrollmentService.RequestEnrollment(c.Request.Context(), h.GetDB(c), userID, h.GetRole(c), &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *EnrollmentHandler) GetMyEnrollments(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	enrollments, err := h.enrollmentService.GetMyEnrollments(c.Request.Context(), h.GetDB(c), userID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"enrollments": enrollments, "total": len(enrollments)})
}

func (h *EnrollmentHandler) GetEnrollment(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	resp, err := h.enrollmentService.GetEnrollment(c.Request.Context(), h.GetDB(c), userID, h.IsAdmin(c), c.Param("enrollmentId"))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *EnrollmentHandler) CompleteLesson(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	resp, err := h.progressService.CompleteLesson(c.Request.Context(), h.GetDB(c), userID, c.Param("enrollmentId"), c.Param("lessonId"))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// --- Certificates ---

func (h *EnrollmentHandler) GetCertificate(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	resp, err := h.certificateService.GetCertificate(c.Request.Context(), h.GetDB(c), userID, h.IsAdmin(c), c.Param("enrollmentId"))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *EnrollmentHandler) VerifyCertificate(c *gin.Context) {
	resp, err := h.certificateService.VerifyCertificate(c.Request.Context(), h.GetDB(c), c.Param("number"))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// --- Admin handlers ---

func (h *EnrollmentHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateEnrollmentStatusRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	resp, err := h.enrollmentService.UpdateStatus(c.Request.Context(), h.GetDB(c), c.Param("enrollmentId"), models.EnrollmentStatus(req.Status))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
