package handlers

import (
	"net/http"

	"learnhub_backend/internal/auth"
	"learnhub_backend/internal/middleware"
	"learnhub_backend/internal/services"
	"learnhub_backend/internal/services/dto"

	"github.com/gin-gonic/gin"
)

type ReviewHandler struct {
	*BaseHandler
	reviewService services.ReviewService
}

func NewReviewHandler(base *BaseHandler, reviewService services.ReviewService) *ReviewHandler {
	return &ReviewHandler{
		BaseHandler:   base,
		reviewService: reviewService,
	}
}

func (h *ReviewHandler) RegisterRoutes(r *gin.RouterGroup) {
	// Public routes
	r.GET("/courses/:courseId/reviews", h.GetCourseReviews)

	// Protected routes - студенты с доступом к курсу
	reviews := r.Group("/reviews")
	reviews.Use(h.RequireAuth())
	{
		reviews.POST("", h.CreateReview)
		reviews.PUT("/:reviewId", h.UpdateReview)
	}

	// Instructor / admin
	replies := r.Group("/reviews")
	replies.Use(h.RequireAuth(), middleware.RequirePermission(auth.PermReviewsReply))
	{
		replies.POST("/:reviewId/replies", h.CreateReply)
	}
}

// --- Public handlers ---

// GetCourseReviews - только видимые отзывы
func (h *ReviewHandler) GetCourseReviews(c *gin.Context) {
	page, pageSize := ParsePagination(c)

	reviews, err := h.reviewService.GetCourseReviews(c.Request.Context(), h.GetDB(c), c.Param("courseId"), page, pageSize)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, reviews)
}

// --- Protected handlers ---

func (h *ReviewHandler) CreateReview(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	var req dto.CreateReviewRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	review, err := h.reviewService.CreateReview(c.Request.Context(), h.GetDB(c), userID, &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, review)
}

func (h *ReviewHandler) UpdateReview(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	var req dto.UpdateReviewRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	review, err := h.reviewService.UpdateReview(c.Request.Context(), h.GetDB(c), userID, c.Param("reviewId"), &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, review)
}

func (h *ReviewHandler) CreateReply(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	var req dto.CreateReplyRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	reply, err := h.reviewService.CreateReply(c.Request.Context(), h.GetDB(c), userID, h.GetRole(c), c.Param("reviewId"), &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, reply)
}
