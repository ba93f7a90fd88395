package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/instant-tutor/backend/internal/apperr"
	"github.com/instant-tutor/backend/pkg/logger"
)

// ErrorHandler renders every error returned by a handler or middleware as
// {"error": kind, "detail": message}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	if appErr, ok := apperr.As(err); ok {
		status := appErr.Status()
		if status >= fiber.StatusInternalServerError {
			logger.Error("Request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.String("kind", string(appErr.Kind)),
				zap.Error(err),
			)
		}
		return c.Status(status).JSON(fiber.Map{
			"error":  appErr.Kind,
			"detail": appErr.Public(),
		})
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(fiber.Map{
			"error":  httpErrorSlug(fiberErr.Code),
			"detail": fiberErr.Message,
		})
	}

	logger.Error("Unhandled request error",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Error(err),
	)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":  apperr.KindInternal,
		"detail": "internal server error",
	})
}

func httpErrorSlug(code int) string {
	switch code {
	case fiber.StatusNotFound:
		return string(apperr.KindNotFound)
	case fiber.StatusMethodNotAllowed:
		return "method_not_allowed"
	case fiber.StatusRequestEntityTooLarge:
		return "request_too_large"
	case fiber.StatusUnsupportedMediaType:
		return "unsupported_media_type"
	case fiber.StatusTooManyRequests:
		return "rate_limited"
	case fiber.StatusUnprocessableEntity, fiber.StatusBadRequest:
		return string(apperr.KindValidation)
	default:
		return "http_error"
	}
}

// parseBody decodes the JSON body into out. Malformed bodies are validation
// failures.
func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		logger.Debug("Failed to parse request body", zap.String("path", c.Path()), zap.Error(err))
		return apperr.Validation("invalid request body")
	}
	return nil
}
