package server

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/clip-cache/internal/media"
)

// AppOptions controls how the Fiber application should behave on a specific port.
type AppOptions struct {
	Logger     *logrus.Logger
	Service    *media.Service
	ListenPort int
}

const contextKeyRequestID = "_clipcache_request_id"

// NewApp builds a Fiber application with request-id middleware, panic recovery
// and the media read routes.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Service == nil {
		return nil, errors.New("media service is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware())

	handler := NewMediaHandler(opts.Service, opts.Logger)
	app.Get("/media/*", handler.Serve)
	app.Get("/play/*", handler.Play)
	app.Get("/-/handles/*", handler.Handle)
	app.Get(media.ObjectPathPrefix+":id", handler.ServeObject)
	app.Delete(media.ObjectPathPrefix+":id", handler.RevokeObject)

	return app, nil
}

// requestContextMiddleware 为每个请求生成请求 ID 并写入响应头。
func requestContextMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
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

// LogicalPath 从通配参数中取出逻辑媒体路径，失败或为空时返回 false。
// Fiber 的参数引用请求缓冲区，这里复制一份，结果可以在请求结束后继续持有。
func LogicalPath(c fiber.Ctx) (string, bool) {
	raw := strings.Clone(c.Params("*"))
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return "", false
	}
	decoded = strings.TrimLeft(decoded, "/")
	if strings.TrimSpace(decoded) == "" {
		return "", false
	}
	return decoded, true
}

// WriteError 输出统一的 JSON 错误体。
func WriteError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}
