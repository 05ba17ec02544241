package utils

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v3"
	"github.com/rapprochement/rapprochement-api/internal/services"
)

type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

func NewBadRequestError(message string, details any) *APIError {
	return &APIError{
		StatusCode: fiber.StatusBadRequest,
		Code:       "BAD_REQUEST",
		Message:    message,
		Details:    details,
	}
}

func NewUnauthorizedError(message string) *APIError {
	return &APIError{
		StatusCode: fiber.StatusUnauthorized,
		Code:       "UNAUTHORIZED",
		Message:    message,
	}
}

func NewNotFoundError(resource string) *APIError {
	return &APIError{
		StatusCode: fiber.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
	}
}

func NewConflictError(code, message string) *APIError {
	return &APIError{
		StatusCode: fiber.StatusConflict,
		Code:       code,
		Message:    message,
	}
}

func NewInternalError(err error) *APIError {
	return &APIError{
		StatusCode: fiber.StatusInternalServerError,
		Code:       services.CodeInternal,
		Message:    "An internal error occurred",
		Details:    err.Error(), // Only in development
	}
}

// FromError maps the typed service errors onto HTTP errors.
func FromError(err error) *APIError {
	var (
		apiErr *APIError
		ve     *services.ValidationError
		nf     *services.NotFoundError
		is     *services.InvalidStateError
		pf     *services.PartialFailureError
		pe     *services.PersistenceError
	)
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.As(err, &ve):
		var details any
		if ve.Field != "" {
			details = fiber.Map{"field": ve.Field}
		}
		return &APIError{StatusCode: fiber.StatusBadRequest, Code: services.CodeValidation, Message: ve.Error(), Details: details}
	case errors.As(err, &nf):
		return &APIError{StatusCode: fiber.StatusNotFound, Code: services.CodeNotFound, Message: nf.Error()}
	case errors.As(err, &is):
		return NewConflictError(services.CodeInvalidState, is.Error())
	case errors.As(err, &pf):
		// The client repairs through POST /transactions/:id/repair
		return &APIError{
			StatusCode: fiber.StatusInternalServerError,
			Code:       services.CodePartialFailure,
			Message:    pf.Error(),
			Details: fiber.Map{
				"transaction_id": pf.TransactionID,
				"invoice_id":     pf.InvoiceID,
				"written":        pf.Written,
				"pending":        pf.Pending,
			},
		}
	case errors.As(err, &pe):
		return &APIError{StatusCode: fiber.StatusServiceUnavailable, Code: services.CodePersistence, Message: "datastore unavailable, retry later", Details: pe.Op}
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		return &APIError{StatusCode: fe.Code, Code: "HTTP_ERROR", Message: fe.Message}
	}
	return NewInternalError(err)
}

// ErrorHandler is the fiber error handler rendering every error as an APIError
func ErrorHandler(c fiber.Ctx, err error) error {
	apiErr := FromError(err)
	return c.Status(apiErr.StatusCode).JSON(apiErr)
}
