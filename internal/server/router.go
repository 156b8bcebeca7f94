package server

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ArtifactHandler serves one artifact request for a resolved source. It allows
// injecting fake handlers during tests.
type ArtifactHandler interface {
	Handle(fiber.Ctx, *SourceRoute) error
}

// ArtifactHandlerFunc adapts a function to the ArtifactHandler interface.
type ArtifactHandlerFunc func(fiber.Ctx, *SourceRoute) error

// Handle makes ArtifactHandlerFunc satisfy ArtifactHandler.
func (f ArtifactHandlerFunc) Handle(c fiber.Ctx, route *SourceRoute) error {
	return f(c, route)
}

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger    *logrus.Logger
	Registry  *SourceRegistry
	Artifacts ArtifactHandler
}

const (
	contextKeyRoute     = "_anycache_route"
	contextKeyRequestID = "_anycache_request_id"
)

// NewApp builds a Fiber application with identifier routing middleware and
// structured error handling.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("source registry is required")
	}
	if opts.Artifacts == nil {
		return nil, errors.New("artifact handler is required")
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware(opts))

	app.Get("/:identifier/*", func(c fiber.Ctx) error {
		if isDiagnosticsPath(string(c.Request().URI().Path())) {
			return c.Next()
		}
		route, _ := getRouteFromContext(c)
		if route == nil {
			return renderSourceUnmapped(c, opts.Logger, c.Params("identifier"))
		}
		return opts.Artifacts.Handle(c, route)
	})

	return app, nil
}

// requestContextMiddleware 负责生成请求 ID，并基于路径第一段查找 SourceRoute。
func requestContextMiddleware(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)

		path := string(c.Request().URI().Path())
		if isDiagnosticsPath(path) {
			return c.Next()
		}

		identifier := identifierFromPath(path)
		route, ok := opts.Registry.Lookup(identifier)
		if !ok {
			return renderSourceUnmapped(c, opts.Logger, identifier)
		}

		c.Locals(contextKeyRoute, route)
		return c.Next()
	}
}

func renderSourceUnmapped(c fiber.Ctx, logger *logrus.Logger, identifier string) error {
	logger.WithFields(logrus.Fields{
		"action":     "source_lookup",
		"identifier": identifier,
		"request_id": RequestID(c),
	}).Warn("source unmapped")

	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": "source_unmapped",
	})
}

// identifierFromPath 返回 /<identifier>/... 的第一段。
func identifierFromPath(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	if idx := strings.IndexByte(trimmed, '/'); idx >= 0 {
		return trimmed[:idx]
	}
	return trimmed
}

func getRouteFromContext(c fiber.Ctx) (*SourceRoute, bool) {
	if value := c.Locals(contextKeyRoute); value != nil {
		if route, ok := value.(*SourceRoute); ok {
			return route, true
		}
	}
	return nil, false
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, "/-/")
}
