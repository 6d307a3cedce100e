package staticHandler

import (
	"DefectVision/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// StaticHandler serves the browser front end. It must be started after every
// API handler because its wildcard route matches any GET.
type StaticHandler struct {
	log        *logrus.Logger
	middleware middleware.Middleware
	root       string
}

func New(log *logrus.Logger, middleware middleware.Middleware, root string) *StaticHandler {
	return &StaticHandler{
		log:        log,
		middleware: middleware,
		root:       root,
	}
}

func (h *StaticHandler) Start(srv fiber.Router) {
	srv.Get("/", h.Index)
	srv.Get("/*", h.Asset)
}
