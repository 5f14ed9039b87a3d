package server

import (
	"context"
	"errors"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/clip-cache/internal/logging"
	"github.com/any-hub/clip-cache/internal/media"
)

// MediaHandler 把 media.Service 暴露为 Fiber handler。
type MediaHandler struct {
	svc    *media.Service
	logger *logrus.Logger
}

// NewMediaHandler constructs a handler around the shared media service.
func NewMediaHandler(svc *media.Service, logger *logrus.Logger) *MediaHandler {
	return &MediaHandler{svc: svc, logger: logger}
}

// Serve 处理 GET /media/*：返回正文，命中与否通过响应头告知调用方。
func (h *MediaHandler) Serve(c fiber.Ctx) error {
	started := time.Now()
	logicalPath, ok := LogicalPath(c)
	if !ok {
		return WriteError(c, fiber.StatusBadRequest, "path_required")
	}

	result, err := h.svc.Fetch(RequestContext(c), logicalPath)
	h.logResult(c, "media", logicalPath, result, started, err)
	if err != nil {
		return h.writeFetchError(c, err)
	}

	c.Set("X-Clip-Cache-Hit", strconv.FormatBool(result.CacheHit))
	c.Set("X-Clip-Cache-Key", result.Key)
	c.Set(fiber.HeaderContentType, inferContentType(logicalPath))
	return c.Status(fiber.StatusOK).Send(result.Payload)
}

// Play 处理 GET /play/*：重定向到本地对象或直连源站地址。
func (h *MediaHandler) Play(c fiber.Ctx) error {
	logicalPath, ok := LogicalPath(c)
	if !ok {
		return WriteError(c, fiber.StatusBadRequest, "path_required")
	}
	handle := h.svc.GetCacheBackedURL(RequestContext(c), logicalPath)
	c.Set("X-Clip-Cache-Local", strconv.FormatBool(handle.Cached))
	return c.Redirect().Status(fiber.StatusFound).To(handle.URL)
}

// Handle 处理 GET /-/handles/*：以 JSON 返回播放句柄。
func (h *MediaHandler) Handle(c fiber.Ctx) error {
	logicalPath, ok := LogicalPath(c)
	if !ok {
		return WriteError(c, fiber.StatusBadRequest, "path_required")
	}
	return c.JSON(h.svc.GetCacheBackedURL(RequestContext(c), logicalPath))
}

// ServeObject 处理 GET /-/objects/:id。
func (h *MediaHandler) ServeObject(c fiber.Ctx) error {
	obj, ok := h.svc.Objects().Lookup(c.Params("id"))
	if !ok {
		return WriteError(c, fiber.StatusNotFound, "object_not_found")
	}
	c.Set("X-Clip-Cache-Key", obj.Key)
	c.Set(fiber.HeaderContentType, inferContentType(obj.Key))
	return c.Status(fiber.StatusOK).Send(obj.Payload)
}

// RevokeObject 处理 DELETE /-/objects/:id，重复撤销同样返回 204。
func (h *MediaHandler) RevokeObject(c fiber.Ctx) error {
	h.svc.Objects().Revoke(c.Params("id"))
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *MediaHandler) writeFetchError(c fiber.Ctx, err error) error {
	var failure *media.NetworkFailure
	if errors.As(err, &failure) {
		return WriteError(c, fiber.StatusBadGateway, "origin_failed")
	}
	return WriteError(c, fiber.StatusInternalServerError, "internal_error")
}

func (h *MediaHandler) logResult(
	c fiber.Ctx,
	action string,
	logicalPath string,
	result media.Result,
	started time.Time,
	err error,
) {
	fields := logging.RequestFields(logicalPath, result.Key, result.CacheHit)
	fields["action"] = action
	fields["size_bytes"] = len(result.Payload)
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if requestID := RequestID(c); requestID != "" {
		fields["request_id"] = requestID
	}
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Error("media_failed")
		return
	}
	h.logger.WithFields(fields).Info("media_complete")
}

// RequestContext 返回请求级 context。Fiber 不会在客户端断开时取消它，回源耗时由 http.Client 的超时约束。
func RequestContext(c fiber.Ctx) context.Context {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx
}

// inferContentType 根据扩展名推断媒体类型，未知类型按二进制流处理。
func inferContentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".mp4", ".m4v":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mov":
		return "video/quicktime"
	case ".mkv":
		return "video/x-matroska"
	case ".ts":
		return "video/mp2t"
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/mp4"
	case ".ogg", ".oga":
		return "audio/ogg"
	case ".wav":
		return "audio/wav"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	case ".vtt":
		return "text/vtt"
	}
	return "application/octet-stream"
}
