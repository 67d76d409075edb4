package handlers

import (
	"net/http"

	"learnhub_backend/internal/auth"
	"learnhub_backend/internal/middleware"
	"learnhub_backend/internal/services"
	"learnhub_backend/internal/services/dto"

	"github.com/gin-gonic/gin"
)

type DiscountHandler struct {
	*BaseHandler
	discountService services.DiscountService
}

func NewDiscountHandler(base *BaseHandler, discountService services.DiscountService) *DiscountHandler {
	return &DiscountHandler{
		BaseHandler:     base,
		discountService: discountService,
	}
}

func (h *DiscountHandler) RegisterRoutes(r *gin.RouterGroup) {
	// Protected routes - All authenticated users
	discounts := r.Group("/discounts")
	discounts.Use(h.RequireAuth())
	{
		discounts.POST("/apply", h.ApplyDiscount)
	}

	// Admin routes
	admin := r.Group("/admin/discounts")
	admin.Use(h.RequireAuth(), middleware.RequirePermission(auth.PermDiscountsManage))
	{
		admin.POST("", h.CreateDiscount)
		admin.GET("", h.ListDiscounts)
		admin.PUT("/:id/deactivate", h.DeactivateDiscount)
	}
}

// ApplyDiscount - расчет цены по коду. Слот не резервируется.
func (h *DiscountHandler) ApplyDiscount(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	var req dto.ApplyDiscountRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	quote, err := h.discountService.Quote(c.Request.Context(), h.GetDB(c), userID, req.CourseID, req.Code)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, quote)
}

// --- Admin handlers ---

func (h *DiscountHandler) CreateDiscount(c *gin.Context) {
	var req dto.CreateDiscountRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	discount, err := h.discountService.CreateDiscount(c.Request.Context(), h.GetDB(c), &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, discount)
}

func (h *DiscountHandler) ListDiscounts(c *gin.Context) {
	var query dto.DiscountListQuery
	if !h.BindAndValidate_Query(c, &query) {
		return
	}

	discounts, err := h.discountService.ListDiscounts(c.Request.Context(), h.GetDB(c), query.ActiveOnly)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"discounts": discounts, "total": len(discounts)})
}

func (h *DiscountHandler) DeactivateDiscount(c *gin.Context) {
	if err := h.discountService.DeactivateDiscount(c.Request.Context(), h.GetDB(c), c.Param("id")); err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Discount deactivated"})
}
