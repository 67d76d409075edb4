package auth

import (
	"errors"

	"learnhub_backend/internal/models"
)

// Разрешения
const (
	PermPaymentsManage    = "payments:manage" // возврат, флаги, ручной свип
	PermDiscountsManage   = "discounts:manage"
	PermEnrollmentsManage = "enrollments:manage" // выдача доступа и смена статуса
	PermReviewsReply      = "reviews:reply"
)

// Permissions список разрешений по ролям
var Permissions = map[models.UserRole][]string{
	models.UserRoleAdmin: {
		PermPaymentsManage,
		PermDiscountsManage,
		PermEnrollmentsManage,
		PermReviewsReply,
	},
	models.UserRoleInstructor: {
		PermReviewsReply,
	},
	models.UserRoleStudent: {},
}

// HasPermission проверяет есть ли у роли указанное разрешение
func HasPermission(role models.UserRole, permission string) bool {
	for _, p := range Permissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// IsAdmin проверяет является ли пользователь администратором
func IsAdmin(claims *Claims) bool {
	return claims != nil && claims.Role == models.UserRoleAdmin
}

// ValidateRole проверяет валидность роли
func ValidateRole(role string) error {
	switch models.UserRole(role) {
	case models.UserRoleStudent, models.UserRoleInstructor, models.UserRoleAdmin:
		return nil
	default:
		return errors.New("invalid role")
	}
}
