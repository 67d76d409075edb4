package middleware

import (
	"errors"
	"strings"

	"learnhub_backend/internal/auth"
	"learnhub_backend/internal/logger"
	"learnhub_backend/internal/models"
	"learnhub_backend/pkg/apperrors"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware - middleware проверки JWT.
// Для /ws токен можно передать в query (?token=), браузер не ставит заголовки на upgrade.
func AuthMiddleware(tokens *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearerToken(c)
		if tokenStr == "" {
			apperrors.HandleError(c, apperrors.NewUnauthorizedError("Authorization header missing or invalid"))
			c.Abort()
			return
		}

		claims, err := tokens.ParseToken(tokenStr)
		if err != nil {
			msg := "Invalid token"
			if errors.Is(err, auth.ErrExpiredToken) {
				msg = "Token expired"
			}
			logger.CtxWarn(c.Request.Context(), "Rejected token", "error", err, "path", c.Request.URL.Path)
			apperrors.HandleError(c, apperrors.NewUnauthorizedError(msg))
			c.Abort()
			return
		}

		// Сохраняем claims в контекст
		c.Set("userID", claims.UserID)
		c.Set("role", claims.Role)
		c.Request = c.Request.WithContext(logger.WithUserID(c.Request.Context(), claims.UserID))
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return c.Query("token")
}

// RequireRoles - пропускает только перечисленные роли
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	roleSet := make(map[models.UserRole]bool)
	for _, r := range roles {
		roleSet[r] = true
	}

	return func(c *gin.Context) {
		role, ok := GetRole(c)
		if !ok {
			apperrors.HandleError(c, apperrors.NewForbiddenError("Access denied: no role"))
			c.Abort()
			return
		}

		if !roleSet[role] {
			apperrors.HandleError(c, apperrors.NewForbiddenError("Access denied: insufficient role"))
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequirePermission - проверка по таблице разрешений auth.Permissions
func RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := GetRole(c)
		if !ok || !auth.HasPermission(role, permission) {
			logger.CtxWarn(c.Request.Context(), "Permission denied",
				"permission", permission,
				"role", role,
				"path", c.Request.URL.Path,
			)
			apperrors.HandleError(c, apperrors.NewForbiddenError("Access denied: insufficient permissions"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetUserID извлекает ID пользователя из контекста
func GetUserID(c *gin.Context) string {
	userID, exists := c.Get("userID")
	if !exists {
		return ""
	}

	id, ok := userID.(string)
	if !ok {
		return ""
	}

	return id
}

// GetRole извлекает роль из контекста
func GetRole(c *gin.Context) (models.UserRole, bool) {
	roleVal, exists := c.Get("role")
	if !exists {
		return "", false
	}

	switch role := roleVal.(type) {
	case models.UserRole:
		return role, true
	case string:
		return models.UserRole(role), true
	default:
		return "", false
	}
}
