package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/cache"
	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/logging"
	"github.com/Embers-of-the-Fire/EVE-MultiTools/internal/resource"
)

// ResourceService 是 serve 模式依赖的资源访问接口，由 resource.Cache 实现。
type ResourceService interface {
	Tree() *resource.Tree
	Open(ctx context.Context, id string) (*resource.Leaf, *cache.ReadResult, error)
	List(ctx context.Context, id string, download bool) ([]*resource.Leaf, error)
}

var _ ResourceService = (*resource.Cache)(nil)

// AppOptions controls the serve-mode Fiber application.
type AppOptions struct {
	Logger     *logrus.Logger
	Resources  ResourceService
	Server     string
	ListenPort int
}

const (
	contextKeyRequestID = "_bundle_request_id"

	resourcePrefix = "res:/"
)

// NewApp builds the Fiber application exposing cached resources and
// diagnostics.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Resources == nil {
		return nil, errors.New("resource service is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware())

	h := &handler{opts: opts, started: time.Now()}
	app.Get("/res/*", h.serveResource)
	app.Get("/-/list/*", h.listResources)
	app.Get("/-/status", h.status)

	return app, nil
}

// requestContextMiddleware 为每个请求生成请求 ID。
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

type handler struct {
	opts    AppOptions
	started time.Time
}

// resourceID 把 URL 通配部分还原为资源标识符。
func resourceID(c fiber.Ctx) string {
	return resourcePrefix + strings.TrimPrefix(c.Params("*"), "/")
}

func (h *handler) serveResource(c fiber.Ctx) error {
	started := time.Now()
	id := resourceID(c)

	leaf, result, err := h.opts.Resources.Open(c.Context(), id)
	if err != nil {
		h.logResult(c, id, "", 0, started, err)
		return writeResourceError(c, err)
	}
	defer result.Reader.Close()

	if ext := strings.TrimPrefix(path.Ext(leaf.Name), "."); ext != "" {
		c.Type(ext)
	}
	if size := result.Entry.SizeBytes; size > 0 {
		c.Response().Header.SetContentLength(int(size))
	}
	if leaf.Checksum != "" {
		c.Set("ETag", `"`+leaf.Checksum+`"`)
	}
	c.Set("X-Resource-ID", leaf.ResID)
	c.Status(fiber.StatusOK)

	n, err := io.Copy(c.Response().BodyWriter(), result.Reader)
	h.logResult(c, id, leaf.LocalPath, n, started, err)
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, fmt.Sprintf("read cache failed: %v", err))
	}
	return nil
}

type leafPayload struct {
	ResID         string `json:"res_id"`
	Name          string `json:"name"`
	RemoteLocator string `json:"remote_locator"`
	Checksum      string `json:"checksum,omitempty"`
}

func (h *handler) listResources(c fiber.Ctx) error {
	id := resourceID(c)
	leaves, err := h.opts.Resources.List(c.Context(), id, false)
	if err != nil {
		return writeResourceError(c, err)
	}
	payload := make([]leafPayload, 0, len(leaves))
	for _, leaf := range leaves {
		payload = append(payload, leafPayload{
			ResID:         leaf.ResID,
			Name:          leaf.Name,
			RemoteLocator: leaf.RemoteLocator,
			Checksum:      leaf.Checksum,
		})
	}
	return c.JSON(fiber.Map{"id": id, "leaves": payload})
}

func (h *handler) status(c fiber.Ctx) error {
	tree := h.opts.Resources.Tree()
	return c.JSON(fiber.Map{
		"server":         h.opts.Server,
		"resources":      tree.Len(),
		"cache_root":     tree.CacheRoot(),
		"uptime_seconds": int64(time.Since(h.started) / time.Second),
	})
}

// statusForError 将资源错误类别映射为 HTTP 状态码。
func statusForError(err error) int {
	switch resource.KindOf(err) {
	case resource.KindNotFound:
		return http.StatusNotFound
	case resource.KindTypeMismatch:
		return http.StatusConflict
	case resource.KindNetwork, resource.KindChecksum:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeResourceError(c fiber.Ctx, err error) error {
	return c.Status(statusForError(err)).JSON(fiber.Map{
		"error":  resource.KindOf(err).String(),
		"detail": err.Error(),
	})
}

func (h *handler) logResult(c fiber.Ctx, id, localPath string, size int64, started time.Time, err error) {
	fields := logging.ResourceFields(id, localPath)
	fields["action"] = "serve"
	fields["bytes"] = size
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if reqID := RequestID(c); reqID != "" {
		fields["request_id"] = reqID
	}
	if err != nil {
		fields["error"] = err.Error()
		h.opts.Logger.WithFields(fields).Error("serve_failed")
		return
	}
	h.opts.Logger.WithFields(fields).Info("serve_complete")
}
