package presenters

import (
	"errors"

	"github.com/fadedpez/royalcharge/internal/types"
	"github.com/gofiber/fiber/v2"
)

// Response is the envelope of every API reply
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Code    string `json:"code,omitempty"`
	Logout  bool   `json:"logout,omitempty"`
}

var statusByCode = map[types.ErrorCode]int{
	types.ErrAccountNotFound:      fiber.StatusNotFound,
	types.ErrInvalidCredentials:   fiber.StatusUnauthorized,
	types.ErrAccountExists:        fiber.StatusConflict,
	types.ErrAccountBlocked:       fiber.StatusForbidden,
	types.ErrInsufficientFunds:    fiber.StatusPaymentRequired,
	types.ErrBelowMinimum:         fiber.StatusUnprocessableEntity,
	types.ErrAlreadyFinalized:     fiber.StatusConflict,
	types.ErrOrderNotFound:        fiber.StatusNotFound,
	types.ErrNotFound:             fiber.StatusNotFound,
	types.ErrValidation:           fiber.StatusBadRequest,
	types.ErrConfirmationRequired: fiber.StatusPreconditionRequired,
	types.ErrPermissionDenied:     fiber.StatusForbidden,
	types.ErrStoreUnavailable:     fiber.StatusServiceUnavailable,
	types.ErrInternalError:        fiber.StatusInternalServerError,
}

// StatusFor maps an error code to its HTTP status
func StatusFor(code types.ErrorCode) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return fiber.StatusInternalServerError
}

func SuccessResponse(c *fiber.Ctx, data any, status int, message string) error {
	return c.Status(status).JSON(Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// ErrorResponse renders err. StoreError values keep their code and user-facing
// message; anything else is reported as an internal error without detail.
func ErrorResponse(c *fiber.Ctx, err error) error {
	var storeErr *types.StoreError
	if !types.As(err, &storeErr) {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(Response{Message: fiberErr.Message})
		}
		storeErr = types.WrapError(types.ErrInternalError, "Something went wrong", err)
	}

	return c.Status(StatusFor(storeErr.Code)).JSON(Response{
		Message: storeErr.Message,
		Code:    string(storeErr.Code),
	})
}

// SessionEndedResponse tells the client to drop its session
func SessionEndedResponse(c *fiber.Ctx, code types.ErrorCode, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(Response{
		Message: message,
		Code:    string(code),
		Logout:  true,
	})
}
