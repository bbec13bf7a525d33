package middleware

import (
	"studydrive/internal/validation"

	"github.com/gofiber/fiber/v2"
)

// ValidationMiddleware provides request validation middleware
type ValidationMiddleware struct {
	validator *validation.Validator
}

// NewValidationMiddleware creates a new validation middleware instance
func NewValidationMiddleware() *ValidationMiddleware {
	return &ValidationMiddleware{
		validator: validation.NewValidator(),
	}
}

// ValidateFileName validates the fileName path parameter
func (vm *ValidationMiddleware) ValidateFileName() fiber.Handler {
	return func(c *fiber.Ctx) error {
		fileName := c.Params("fileName")

		if errors := vm.validator.ValidateFileName(fileName); len(errors) > 0 {
			return errors // This will be handled by ErrorHandler middleware
		}

		// Store validated value in context for handlers to use
		c.Locals("validated_file_name", fileName)
		return c.Next()
	}
}
