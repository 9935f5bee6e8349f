// Package response writes JSON bodies in the API's uniform shape.
// Errors are always {"error":{"code","message","details"}}.
package response

import "github.com/gofiber/fiber/v2"

// Error codes
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeNotFound        = "NOT_FOUND"
	CodeRateLimited     = "RATE_LIMITED"
	CodeInvalidState    = "INVALID_STATE"
	CodeNoProfile       = "NO_ACTIVE_PROFILE"
	CodeServiceError    = "SERVICE_ERROR"
	CodeUpstreamError   = "UPSTREAM_ERROR"
)

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func Error(c *fiber.Ctx, status int, code, message string, details interface{}) error {
	return c.Status(status).JSON(ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// ValidationError is a 400 for malformed or invalid input; details maps field to failed rule
func ValidationError(c *fiber.Ctx, message string, details interface{}) error {
	return Error(c, fiber.StatusBadRequest, CodeValidationError, message, details)
}

// InvalidState rejects an operation the resource's current state does not allow
func InvalidState(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusBadRequest, CodeInvalidState, message, nil)
}

func NoActiveProfile(c *fiber.Ctx) error {
	return Error(c, fiber.StatusBadRequest, CodeNoProfile, "No active profile, add credentials first", nil)
}

func Unauthorized(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusUnauthorized, CodeUnauthorized, message, nil)
}

func NotFound(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusNotFound, CodeNotFound, message, nil)
}

func RateLimited(c *fiber.Ctx) error {
	return Error(c, fiber.StatusTooManyRequests, CodeRateLimited, "Rate limit exceeded", nil)
}

func ServiceError(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusInternalServerError, CodeServiceError, message, nil)
}

// UpstreamError reports a failure of the remote song API
func UpstreamError(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusBadGateway, CodeUpstreamError, message, nil)
}

func OK(c *fiber.Ctx, data interface{}) error {
	return c.JSON(data)
}

func Created(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(data)
}

// Accepted is used for work handed to the background worker
func Accepted(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusAccepted).JSON(data)
}

func NoContent(c *fiber.Ctx) error {
	return c.SendStatus(fiber.StatusNoContent)
}
