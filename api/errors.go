package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/strata/pkg/memory"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// statusFor maps manager errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, memory.ErrInvalidKey):
		return fiber.StatusBadRequest
	case errors.Is(err, memory.ErrCapacityExceeded):
		return fiber.StatusRequestEntityTooLarge
	case errors.Is(err, memory.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	case errors.Is(err, memory.ErrVersionConflict):
		return fiber.StatusConflict
	case errors.Is(err, memory.ErrClosed),
		errors.Is(err, memory.ErrDeadLettered),
		errors.Is(err, memory.ErrDurableUnavailable):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func (s *Server) fail(c *fiber.Ctx, op string, key memory.Key, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		s.logger.Warn("memory request failed",
			"op", op,
			"key", key.String(),
			"status", status,
			"error", err,
		)
	}

	return c.Status(status).JSON(ErrorResponse{Error: err.Error()})
}
