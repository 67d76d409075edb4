package validator

import (
	"log"

	"learnhub_backend/internal/models"

	"github.com/go-playground/validator/v10"
)

// registerCustomRules регистрирует все кастомные функции валидации в
// переданном экземпляре валидатора.
func registerCustomRules(v *validator.Validate) {
	mustRegister := func(tag string, fn validator.Func) {
		if err := v.RegisterValidation(tag, fn); err != nil {
			// Ошибка регистрации - ошибка сборки приложения, не запроса
			log.Fatalf("failed to register custom validation tag '%s': %v", tag, err)
		}
	}

	// -----------------------------------------------------------------
	// Правила на основе statuses.go
	// -----------------------------------------------------------------
	mustRegister("is-user-role", oneOf(
		models.UserRoleStudent,
		models.UserRoleInstructor,
		models.UserRoleAdmin,
	))
	mustRegister("is-payment-status", oneOf(
		models.PaymentStatusPending,
		models.PaymentStatusCompleted,
		models.PaymentStatusCancelled,
		models.PaymentStatusExpired,
		models.PaymentStatusRefunded,
	))
	mustRegister("is-enrollment-status", oneOf(
		models.EnrollmentStatusActive,
		models.EnrollmentStatusCompleted,
		models.EnrollmentStatusCancelled,
		models.EnrollmentStatusExpired,
		models.EnrollmentStatusRefunded,
	))
	mustRegister("is-discount-type", oneOf(
		models.DiscountTypePercentage,
		models.DiscountTypeFixed,
	))

	// Клиент выбирает только внешний шлюз; free и manual ставит сервер
	mustRegister("is-payment-method", oneOf(models.PaymentMethodVNPay))
}

// --- Функции валидации ---

// oneOf - строковое поле должно совпасть с одним из значений.
// Пустое значение пропускаем, для этого есть 'required'.
func oneOf[T ~string](allowed ...T) validator.Func {
	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		set[string(a)] = struct{}{}
	}
	return func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		if value == "" {
			return true
		}
		_, ok := set[value]
		return ok
	}
}
