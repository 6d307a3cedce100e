package inferenceHandler

import (
	inferenceService "DefectVision/internal/api/inference/service"
	"DefectVision/internal/middleware"
	"DefectVision/pkg/utils"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

type InferenceHandler struct {
	log              *logrus.Logger
	middleware       middleware.Middleware
	inferenceService inferenceService.IInferenceService
	utils            utils.IUtils
	timeout          time.Duration
}

func New(
	log *logrus.Logger,
	middleware middleware.Middleware,
	is inferenceService.IInferenceService,
	utils utils.IUtils,
	timeout time.Duration,
) *InferenceHandler {
	return &InferenceHandler{
		inferenceService: is,
		log:              log,
		middleware:       middleware,
		utils:            utils,
		timeout:          timeout,
	}
}

func (h *InferenceHandler) Start(srv fiber.Router) {
	wsMiddleware := func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}

	srv.Get("/health", h.Health)
	srv.Post("/predict", h.middleware.NewRateLimiter, h.Predict)

	srv.Use("/predict/ws", wsMiddleware)
	srv.Get("/predict/ws", websocket.New(h.handlePredictWebSocket))
}
