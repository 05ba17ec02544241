package utils

import "github.com/gofiber/fiber/v3"

// SuccessResponse sends a standardized success response
func SuccessResponse(c fiber.Ctx, data interface{}) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

// ErrorResponse sends a standardized error response
func ErrorResponse(c fiber.Ctx, statusCode int, message string) error {
	return c.Status(statusCode).JSON(fiber.Map{
		"success": false,
		"error":   message,
	})
}

// ListResponse sends a list together with its length
func ListResponse(c fiber.Ctx, key string, items interface{}, count int) error {
	return c.JSON(fiber.Map{
		"success": true,
		key:       items,
		"count":   count,
	})
}
