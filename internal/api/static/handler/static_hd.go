package staticHandler

import (
	"DefectVision/internal/api/static"
	"DefectVision/pkg/handlerUtil"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

const indexFile = "index.html"

func (h *StaticHandler) Index(ctx *fiber.Ctx) error {
	return h.serve(ctx, indexFile)
}

func (h *StaticHandler) Asset(ctx *fiber.Ctx) error {
	return h.serve(ctx, ctx.Params("*"))
}

func (h *StaticHandler) serve(ctx *fiber.Ctx, name string) error {
	requestID := h.middleware.GetRequestID(ctx)
	errHandler := handlerUtil.New(h.log)

	fullPath, ok := h.resolve(name)
	if !ok {
		return errHandler.Handle(ctx, requestID, static.ErrNotFound, ctx.Path(), "resolve_asset")
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			err = static.ErrNotFound
		}
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "read_asset")
	}

	ctx.Set(fiber.HeaderContentType, ContentType(fullPath))
	return ctx.Send(data)
}

// resolve maps a URL path to a regular file below the root. Cleaning the path
// as an absolute URL path drops any ".." that would climb out of the root.
func (h *StaticHandler) resolve(name string) (string, bool) {
	cleaned := path.Clean("/" + name)
	if cleaned == "/" {
		return "", false
	}

	fullPath := filepath.Join(h.root, filepath.FromSlash(strings.TrimPrefix(cleaned, "/")))
	info, err := os.Stat(fullPath)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return fullPath, true
}

func ContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".js":
		return "application/javascript; charset=utf-8"
	case ".css":
		return "text/css; charset=utf-8"
	case ".html":
		return "text/html; charset=utf-8"
	}

	if mime := utils.GetMIME(ext); mime != "" {
		return mime
	}
	return fiber.MIMEOctetStream
}
