package routes

import (
	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/clip-cache/internal/media"
	"github.com/any-hub/clip-cache/internal/server"
	"github.com/any-hub/clip-cache/internal/version"
)

// RegisterCacheRoutes 暴露 /-/cache 诊断与管理接口。
func RegisterCacheRoutes(app *fiber.App, svc *media.Service) {
	if app == nil || svc == nil {
		return
	}

	app.Get("/-/cache/stats", func(c fiber.Ctx) error {
		return c.JSON(svc.Stats(server.RequestContext(c)))
	})

	app.Get("/-/cache/entries/*", func(c fiber.Ctx) error {
		logicalPath, ok := server.LogicalPath(c)
		if !ok {
			return server.WriteError(c, fiber.StatusBadRequest, "path_required")
		}
		return c.JSON(entryPayload{
			Path:   logicalPath,
			Key:    svc.Key(logicalPath),
			Cached: svc.IsCached(server.RequestContext(c), logicalPath),
		})
	})

	app.Delete("/-/cache/entries/*", func(c fiber.Ctx) error {
		logicalPath, ok := server.LogicalPath(c)
		if !ok {
			return server.WriteError(c, fiber.StatusBadRequest, "path_required")
		}
		svc.Invalidate(server.RequestContext(c), logicalPath)
		return c.SendStatus(fiber.StatusNoContent)
	})

	app.Delete("/-/cache", func(c fiber.Ctx) error {
		svc.ClearAll(server.RequestContext(c))
		return c.SendStatus(fiber.StatusNoContent)
	})
}

// RegisterVersionRoute 暴露 /-/version。
func RegisterVersionRoute(app *fiber.App) {
	if app == nil {
		return
	}
	app.Get("/-/version", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"version": version.Full()})
	})
}

type entryPayload struct {
	Path   string `json:"path"`
	Key    string `json:"key"`
	Cached bool   `json:"cached"`
}
