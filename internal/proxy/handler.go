package proxy

import (
	"context"
	"errors"
	"mime"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-cache/internal/cache"
	"github.com/any-hub/any-cache/internal/logging"
	"github.com/any-hub/any-cache/internal/server"
	"github.com/any-hub/any-cache/internal/upstream"
)

// HeaderCacheHit 标记响应由哪一层缓存满足：memory/disk/miss/bypass。
const HeaderCacheHit = "X-Any-Cache-Hit"

// ProducerFactory 为 source 下的 name 构造 cache.Producer，测试中可替换为假实现。
type ProducerFactory interface {
	Producer(source upstream.Source, name string) cache.Producer
}

// ProducerFactoryFunc adapts a function to the ProducerFactory interface.
type ProducerFactoryFunc func(upstream.Source, string) cache.Producer

func (f ProducerFactoryFunc) Producer(source upstream.Source, name string) cache.Producer {
	return f(source, name)
}

// Handler 负责 “内存 → 磁盘 → 回源写缓存” 的请求编排，对外实现 server.ArtifactHandler。
type Handler struct {
	logger    *logrus.Logger
	cacher    *cache.Cacher
	producers ProducerFactory
}

// NewHandler constructs an artifact handler with shared logger/cacher/upstream.
func NewHandler(logger *logrus.Logger, cacher *cache.Cacher, producers ProducerFactory) *Handler {
	return &Handler{
		logger:    logger,
		cacher:    cacher,
		producers: producers,
	}
}

// Handle 查询缓存并返回制品正文，任何阶段出错都会输出结构化日志。
func (h *Handler) Handle(c fiber.Ctx, route *server.SourceRoute) error {
	started := time.Now()
	requestID := server.RequestID(c)
	// Params 的底层内存随请求复用，而合并后的回源可能比本次请求活得更久。
	name := strings.Clone(c.Params("*"))

	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var opts []cache.GetOption
	if skip, _ := strconv.ParseBool(c.Query("nocache")); skip {
		opts = append(opts, cache.SkipCache())
	}

	result, err := h.cacher.Lookup(ctx, route.Config.Name, name, h.producers.Producer(route.Source, name), opts...)
	if err != nil {
		status, code := classifyError(err)
		h.logResult(route, name, requestID, "", status, result.Shared, started, err)
		return c.Status(status).JSON(fiber.Map{"error": code})
	}

	c.Set(HeaderCacheHit, string(result.Tier))
	c.Set(fiber.HeaderContentType, inferContentType(name))
	h.logResult(route, name, requestID, string(result.Tier), fiber.StatusOK, result.Shared, started, nil)
	return c.Status(fiber.StatusOK).SendString(result.Content)
}

// classifyError 将缓存/上游错误映射为 HTTP 状态码与错误码。
func classifyError(err error) (int, string) {
	var producerErr *cache.ProducerError
	switch {
	case errors.Is(err, cache.ErrInvalidKey):
		return fiber.StatusBadRequest, "invalid_key"
	case errors.Is(err, upstream.ErrUpstreamRejected):
		return fiber.StatusNotFound, "upstream_rejected"
	case errors.Is(err, cache.ErrTypeMismatch):
		return fiber.StatusBadGateway, "invalid_content"
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout, "upstream_timeout"
	case errors.As(err, &producerErr):
		return fiber.StatusBadGateway, "upstream_failed"
	case errors.Is(err, cache.ErrIO):
		return fiber.StatusInternalServerError, "cache_io_failed"
	default:
		return fiber.StatusInternalServerError, "internal_error"
	}
}

func (h *Handler) logResult(
	route *server.SourceRoute,
	name string,
	requestID string,
	tier string,
	status int,
	shared bool,
	started time.Time,
	err error,
) {
	fields := logging.RequestFields(route.Config.Name, name, tier, requestID)
	fields["action"] = "artifact"
	fields["auth_mode"] = route.Config.AuthMode()
	fields["status"] = status
	fields["shared"] = shared
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Error("artifact_failed")
		return
	}
	h.logger.WithFields(fields).Info("artifact_served")
}

// inferContentType 根据常见制品后缀推断 Content-Type，未知时回退到 octet-stream。
func inferContentType(name string) string {
	clean := strings.ToLower(name)
	switch {
	case strings.HasSuffix(clean, ".tar.gz"), strings.HasSuffix(clean, ".tgz"), strings.HasSuffix(clean, ".whl"):
		return "application/octet-stream"
	case strings.HasSuffix(clean, ".tar.bz2"):
		return "application/x-tar"
	case strings.HasSuffix(clean, ".mod"), strings.HasSuffix(clean, "/@v/list"):
		return "text/plain; charset=utf-8"
	case strings.HasSuffix(clean, ".info"):
		return "application/json"
	}
	if ct := mime.TypeByExtension(path.Ext(clean)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
