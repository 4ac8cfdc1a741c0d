package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
)

// ErrorHandler отвечает {"error": ...} на ошибки, вернувшиеся из обработчиков.
// 5xx пишутся в лог, тело ответа не раскрывает внутреннюю ошибку.
func ErrorHandler(log zerolog.Logger) fiber.ErrorHandler {
	return func(c fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		msg := "internal error"

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			msg = fe.Message
		}

		if code >= fiber.StatusInternalServerError {
			log.Error().Err(err).Str("method", c.Method()).Str("path", c.Path()).Msg("request failed")
		}
		return c.Status(code).JSON(fiber.Map{"error": msg})
	}
}
