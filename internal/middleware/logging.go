package middleware

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rapprochement/rapprochement-api/internal/utils"
	"github.com/rs/zerolog"
)

// RequestLogger logs one line per request. Handler errors are logged with the
// status the error handler will render.
func RequestLogger(log zerolog.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = utils.FromError(err).StatusCode
		}

		var event *zerolog.Event
		switch {
		case status >= fiber.StatusInternalServerError:
			event = log.Error().Err(err)
		case status >= fiber.StatusBadRequest:
			event = log.Warn()
		default:
			event = log.Info()
		}

		event.
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("actor", Actor(c)).
			Msg("request")
		return err
	}
}
