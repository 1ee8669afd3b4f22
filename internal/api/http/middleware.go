package http

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-bot/internal/observability"
	apperrors "github.com/spec-kit/ticket-bot/pkg/util/errorutil"
)

// unmatchedRoute keys errors for paths no ops route serves, so probing
// random URLs cannot grow the metrics map.
const unmatchedRoute = "unmatched"

// NewApp builds the ops API fiber app with its error envelope and the
// request timeout, logging and panic recovery middlewares.
func NewApp(logger *zap.Logger, metrics *observability.Metrics, timeout time.Duration) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          ErrorHandler(logger, metrics),
	})
	if timeout > 0 {
		app.Use(requestTimeoutMiddleware(timeout))
	}
	app.Use(observability.RequestLogger(logger, metrics))
	app.Use(fiberrecover.New(fiberrecover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c *fiber.Ctx, r interface{}) {
			logger.Error("ops handler panicked",
				zap.String("route", c.Route().Path),
				zap.Any("panic", r))
		},
	}))
	return app
}

func requestTimeoutMiddleware(timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}

// ErrorHandler renders every ops API failure as
// {"error":{"code","message","details"}} and counts it per route pattern.
func ErrorHandler(logger *zap.Logger, metrics *observability.Metrics) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		opsErr, route := classify(c, err)
		metrics.RecordError(route, c.Method(), opsErr.Code)
		if opsErr.HTTPStatus >= fiber.StatusInternalServerError {
			logger.Error("ops request failed",
				zap.String("route", route),
				zap.String("method", c.Method()),
				zap.Error(opsErr))
		}

		body := fiber.Map{"code": opsErr.Code, "message": opsErr.Message}
		if len(opsErr.Details) > 0 {
			body["details"] = opsErr.Details
		}
		return c.Status(opsErr.HTTPStatus).JSON(fiber.Map{"error": body})
	}
}

func classify(c *fiber.Ctx, err error) (*apperrors.DomainError, string) {
	var fiberErr *fiber.Error
	if !errors.As(err, &fiberErr) {
		return apperrors.ToDomainError(err), c.Route().Path
	}
	switch fiberErr.Code {
	case fiber.StatusNotFound:
		return apperrors.NewDomainError("NOT_FOUND", fmt.Sprintf("no ops route for %s %s", c.Method(), c.Path()), fiber.StatusNotFound, nil), unmatchedRoute
	case fiber.StatusMethodNotAllowed:
		return apperrors.NewDomainError("METHOD_NOT_ALLOWED", fiberErr.Message, fiber.StatusMethodNotAllowed, nil), c.Route().Path
	}
	return apperrors.NewDomainError("HTTP_ERROR", fiberErr.Message, fiberErr.Code, nil), c.Route().Path
}
